package state

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/programerr"
)

// NoArgs is the argument body of instructions that take none.
type NoArgs struct{}

func (NoArgs) MarshalWithEncoder(*bin.Encoder) error   { return nil }
func (NoArgs) UnmarshalWithDecoder(*bin.Decoder) error { return nil }

// EncodeInstruction returns the instruction data for name with args.
func EncodeInstruction(name string, args Body) ([]byte, error) {
	return Encode(InstructionDiscriminator(name), args)
}

// SplitInstruction separates instruction data into its discriminator and a
// decoder positioned at the arguments.
func SplitInstruction(data []byte) (Discriminator, *bin.Decoder, error) {
	if len(data) < DiscriminatorLength {
		return Discriminator{}, nil, programerr.ErrInstructionMissing
	}
	var d Discriminator
	copy(d[:], data[:DiscriminatorLength])
	return d, bin.NewBorshDecoder(data[DiscriminatorLength:]), nil
}

// DecodeArgs decodes instruction arguments, mapping failures to
// InstructionDidNotDeserialize.
func DecodeArgs(decoder *bin.Decoder, args Body) error {
	if err := args.UnmarshalWithDecoder(decoder); err != nil {
		return fmt.Errorf("%w: %v", programerr.ErrInstructionDidNotDeserialize, err)
	}
	return nil
}

// AccountKeys checks that metas holds at least n accounts and that the
// accounts at signers are marked as signers, then returns their keys.
func AccountKeys(metas []*solana.AccountMeta, n int, signers ...int) ([]solana.PublicKey, error) {
	if len(metas) < n {
		return nil, fmt.Errorf("%w: have %d, need %d", programerr.ErrAccountNotEnoughKeys, len(metas), n)
	}
	for _, i := range signers {
		if !metas[i].IsSigner {
			return nil, fmt.Errorf("%w: %s", programerr.ErrAccountNotSigner, metas[i].PublicKey)
		}
	}
	keys := make([]solana.PublicKey, n)
	for i := range keys {
		keys[i] = metas[i].PublicKey
	}
	return keys, nil
}

// WriteOptionUint16 and ReadOptionUint16 encode Option<u16>.
func WriteOptionUint16(encoder *bin.Encoder, v *uint16) error {
	if v == nil {
		return encoder.WriteByte(0)
	}
	if err := encoder.WriteByte(1); err != nil {
		return err
	}
	return encoder.WriteUint16(*v, bin.LE)
}

func ReadOptionUint16(decoder *bin.Decoder) (*uint16, error) {
	present, err := readOptionTag(decoder)
	if err != nil || !present {
		return nil, err
	}
	v, err := decoder.ReadUint16(bin.LE)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// WriteOptionHash and ReadOptionHash encode Option<[u8; 64]>.
func WriteOptionHash(encoder *bin.Encoder, h *Hash) error {
	if h == nil {
		return encoder.WriteByte(0)
	}
	if err := encoder.WriteByte(1); err != nil {
		return err
	}
	return encoder.WriteBytes(h[:], false)
}

func ReadOptionHash(decoder *bin.Decoder) (*Hash, error) {
	present, err := readOptionTag(decoder)
	if err != nil || !present {
		return nil, err
	}
	b, err := decoder.ReadBytes(HashLength)
	if err != nil {
		return nil, err
	}
	var h Hash
	copy(h[:], b)
	return &h, nil
}

// WritePubkey and ReadPubkey encode a 32 byte public key.
func WritePubkey(encoder *bin.Encoder, pk solana.PublicKey) error {
	return writePubkey(encoder, pk)
}

func ReadPubkey(decoder *bin.Decoder) (solana.PublicKey, error) {
	return readPubkey(decoder)
}

// WriteBool and ReadBool encode a Borsh bool.
func WriteBool(encoder *bin.Encoder, v bool) error {
	return writeBool(encoder, v)
}

func ReadBool(decoder *bin.Decoder) (bool, error) {
	return readBool(decoder)
}
