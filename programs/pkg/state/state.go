// Package state holds the on-chain account layouts of the rakurai programs.
//
// Every account is an 8 byte discriminator followed by the Borsh encoding of
// its body. Accounts are allocated at their maximum encoded size so that
// optional fields can be set later without reallocating.
package state

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/programerr"
)

const DiscriminatorLength = 8

type Discriminator [DiscriminatorLength]byte

// AccountDiscriminator returns sha256("account:" + name)[:8].
func AccountDiscriminator(name string) Discriminator {
	return prefixedHash("account:" + name)
}

// InstructionDiscriminator returns sha256("global:" + name)[:8].
func InstructionDiscriminator(name string) Discriminator {
	return prefixedHash("global:" + name)
}

func prefixedHash(s string) Discriminator {
	sum := sha256.Sum256([]byte(s))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

var (
	MultisigConfigDiscriminator     = AccountDiscriminator("Config")
	MultisigAccountDiscriminator    = AccountDiscriminator("MultiSigAccount")
	ActivationConfigDiscriminator   = AccountDiscriminator("RakuraiActivationConfigAccount")
	ActivationAccountDiscriminator  = AccountDiscriminator("RakuraiActivationAccount")
	DistributionConfigDiscriminator = AccountDiscriminator("RewardDistributionConfigAccount")
	RewardCollectionDiscriminator   = AccountDiscriminator("RewardCollectionAccount")
	ClaimStatusDiscriminator        = AccountDiscriminator("ClaimStatus")
)

// Body is an account body with a Borsh codec.
type Body interface {
	MarshalWithEncoder(encoder *bin.Encoder) error
	UnmarshalWithDecoder(decoder *bin.Decoder) error
}

// Encode returns disc followed by the Borsh encoding of body.
func Encode(disc Discriminator, body Body) ([]byte, error) {
	buf := new(bytes.Buffer)
	encoder := bin.NewBorshEncoder(buf)
	if err := encoder.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	if err := body.MarshalWithEncoder(encoder); err != nil {
		return nil, fmt.Errorf("failed to encode account: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeInto writes disc and body into dst, which must be large enough.
// Bytes past the encoding are zeroed.
func EncodeInto(dst []byte, disc Discriminator, body Body) error {
	data, err := Encode(disc, body)
	if err != nil {
		return err
	}
	if len(data) > len(dst) {
		return fmt.Errorf("account data too small: have %d, need %d", len(dst), len(data))
	}
	n := copy(dst, data)
	clear(dst[n:])
	return nil
}

// Decode checks the owner and discriminator of an account and decodes its
// body into v.
func Decode(programID, owner solana.PublicKey, data []byte, disc Discriminator, v Body) error {
	if !owner.Equals(programID) {
		return programerr.ErrAccountOwnedByWrongProgram
	}
	if len(data) == 0 {
		return programerr.ErrAccountNotInitialized
	}
	if len(data) < DiscriminatorLength || !bytes.Equal(data[:DiscriminatorLength], disc[:]) {
		return programerr.ErrAccountDiscriminatorMismatch
	}
	if err := v.UnmarshalWithDecoder(bin.NewBorshDecoder(data[DiscriminatorLength:])); err != nil {
		return fmt.Errorf("%w: %v", programerr.ErrAccountDidNotDeserialize, err)
	}
	return nil
}

// HasDiscriminator reports whether data starts with disc.
func HasDiscriminator(data []byte, disc Discriminator) bool {
	return len(data) >= DiscriminatorLength && bytes.Equal(data[:DiscriminatorLength], disc[:])
}

func writePubkey(encoder *bin.Encoder, pk solana.PublicKey) error {
	return encoder.WriteBytes(pk[:], false)
}

func readPubkey(decoder *bin.Decoder) (solana.PublicKey, error) {
	b, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

func writeOptionPubkey(encoder *bin.Encoder, pk *solana.PublicKey) error {
	if pk == nil {
		return encoder.WriteByte(0)
	}
	if err := encoder.WriteByte(1); err != nil {
		return err
	}
	return writePubkey(encoder, *pk)
}

func readOptionPubkey(decoder *bin.Decoder) (*solana.PublicKey, error) {
	present, err := readOptionTag(decoder)
	if err != nil || !present {
		return nil, err
	}
	pk, err := readPubkey(decoder)
	if err != nil {
		return nil, err
	}
	return &pk, nil
}

func readOptionTag(decoder *bin.Decoder) (bool, error) {
	tag, err := decoder.ReadByte()
	if err != nil {
		return false, err
	}
	switch tag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid option tag %d", tag)
	}
}

func readBool(decoder *bin.Decoder) (bool, error) {
	b, err := decoder.ReadByte()
	if err != nil {
		return false, err
	}
	if b > 1 {
		return false, fmt.Errorf("invalid bool %d", b)
	}
	return b == 1, nil
}

func writeBool(encoder *bin.Encoder, v bool) error {
	if v {
		return encoder.WriteByte(1)
	}
	return encoder.WriteByte(0)
}
