package state

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/safemath"
)

const HashLength = 64

// Hash is the opaque value the block builder attaches to an activation.
type Hash [HashLength]byte

const (
	ApprovalConfigSpace    = DiscriminatorLength + 32 + 32 + 2 + 32 + 1
	MultisigAccountSpace   = DiscriminatorLength + 1 + (1 + 32) + 32 + 2 + 32 + 32 + 2 + 32 + 1
	ActivationAccountSpace = DiscriminatorLength + 1 + (1 + 32) + 32 + 2 + 2 + 1 + (1 + HashLength)
)

// ApprovalConfig is the singleton config of both approval programs. The two
// programs share the layout and differ only in discriminator and seed.
type ApprovalConfig struct {
	Authority                     solana.PublicKey
	BlockBuilderAuthority         solana.PublicKey
	BlockBuilderCommissionBps     uint16
	BlockBuilderCommissionAccount solana.PublicKey
	Bump                          uint8
}

func (c *ApprovalConfig) Validate() error {
	if c.BlockBuilderAuthority.IsZero() {
		return errors.New("block builder authority is required")
	}
	if c.BlockBuilderCommissionAccount.IsZero() {
		return errors.New("block builder commission account is required")
	}
	if c.BlockBuilderCommissionBps > safemath.MaxBps {
		return fmt.Errorf("block builder commission %d exceeds %d bps", c.BlockBuilderCommissionBps, safemath.MaxBps)
	}
	return nil
}

func (c *ApprovalConfig) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := writePubkey(encoder, c.Authority); err != nil {
		return err
	}
	if err := writePubkey(encoder, c.BlockBuilderAuthority); err != nil {
		return err
	}
	if err := encoder.WriteUint16(c.BlockBuilderCommissionBps, bin.LE); err != nil {
		return err
	}
	if err := writePubkey(encoder, c.BlockBuilderCommissionAccount); err != nil {
		return err
	}
	return encoder.WriteByte(c.Bump)
}

func (c *ApprovalConfig) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if c.Authority, err = readPubkey(decoder); err != nil {
		return err
	}
	if c.BlockBuilderAuthority, err = readPubkey(decoder); err != nil {
		return err
	}
	if c.BlockBuilderCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	if c.BlockBuilderCommissionAccount, err = readPubkey(decoder); err != nil {
		return err
	}
	c.Bump, err = decoder.ReadByte()
	return err
}

// MultisigAccount is the per-validator approval record of the multisig
// program.
type MultisigAccount struct {
	IsEnabled                     bool
	Proposer                      *solana.PublicKey
	ValidatorAuthority            solana.PublicKey
	ValidatorCommissionBps        uint16
	ValidatorVoteAccount          solana.PublicKey
	BlockBuilderAuthority         solana.PublicKey
	BlockBuilderCommissionBps     uint16
	BlockBuilderCommissionAccount solana.PublicKey
	Bump                          uint8
}

func (a *MultisigAccount) Validate() error {
	if a.ValidatorVoteAccount.IsZero() {
		return errors.New("validator vote account is required")
	}
	if a.ValidatorAuthority.IsZero() {
		return errors.New("validator authority is required")
	}
	if a.BlockBuilderCommissionAccount.IsZero() {
		return errors.New("block builder commission account is required")
	}
	return nil
}

func (a *MultisigAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := writeBool(encoder, a.IsEnabled); err != nil {
		return err
	}
	if err := writeOptionPubkey(encoder, a.Proposer); err != nil {
		return err
	}
	if err := writePubkey(encoder, a.ValidatorAuthority); err != nil {
		return err
	}
	if err := encoder.WriteUint16(a.ValidatorCommissionBps, bin.LE); err != nil {
		return err
	}
	if err := writePubkey(encoder, a.ValidatorVoteAccount); err != nil {
		return err
	}
	if err := writePubkey(encoder, a.BlockBuilderAuthority); err != nil {
		return err
	}
	if err := encoder.WriteUint16(a.BlockBuilderCommissionBps, bin.LE); err != nil {
		return err
	}
	if err := writePubkey(encoder, a.BlockBuilderCommissionAccount); err != nil {
		return err
	}
	return encoder.WriteByte(a.Bump)
}

func (a *MultisigAccount) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.IsEnabled, err = readBool(decoder); err != nil {
		return err
	}
	if a.Proposer, err = readOptionPubkey(decoder); err != nil {
		return err
	}
	if a.ValidatorAuthority, err = readPubkey(decoder); err != nil {
		return err
	}
	if a.ValidatorCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	if a.ValidatorVoteAccount, err = readPubkey(decoder); err != nil {
		return err
	}
	if a.BlockBuilderAuthority, err = readPubkey(decoder); err != nil {
		return err
	}
	if a.BlockBuilderCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	if a.BlockBuilderCommissionAccount, err = readPubkey(decoder); err != nil {
		return err
	}
	a.Bump, err = decoder.ReadByte()
	return err
}

// ActivationAccount is the per-validator approval record of the activation
// program. It carries the block builder's hash instead of vote and commission
// account references.
type ActivationAccount struct {
	IsEnabled                 bool
	Proposer                  *solana.PublicKey
	ValidatorAuthority        solana.PublicKey
	ValidatorCommissionBps    uint16
	BlockBuilderCommissionBps uint16
	Bump                      uint8
	Hash                      *Hash
}

func (a *ActivationAccount) Validate() error {
	if a.ValidatorAuthority.IsZero() {
		return errors.New("validator authority is required")
	}
	if a.ValidatorCommissionBps > safemath.MaxBps {
		return fmt.Errorf("validator commission %d exceeds %d bps", a.ValidatorCommissionBps, safemath.MaxBps)
	}
	if a.BlockBuilderCommissionBps > safemath.MaxBps {
		return fmt.Errorf("block builder commission %d exceeds %d bps", a.BlockBuilderCommissionBps, safemath.MaxBps)
	}
	return nil
}

func (a *ActivationAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := writeBool(encoder, a.IsEnabled); err != nil {
		return err
	}
	if err := writeOptionPubkey(encoder, a.Proposer); err != nil {
		return err
	}
	if err := writePubkey(encoder, a.ValidatorAuthority); err != nil {
		return err
	}
	if err := encoder.WriteUint16(a.ValidatorCommissionBps, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteUint16(a.BlockBuilderCommissionBps, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteByte(a.Bump); err != nil {
		return err
	}
	if a.Hash == nil {
		return encoder.WriteByte(0)
	}
	if err := encoder.WriteByte(1); err != nil {
		return err
	}
	return encoder.WriteBytes(a.Hash[:], false)
}

func (a *ActivationAccount) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.IsEnabled, err = readBool(decoder); err != nil {
		return err
	}
	if a.Proposer, err = readOptionPubkey(decoder); err != nil {
		return err
	}
	if a.ValidatorAuthority, err = readPubkey(decoder); err != nil {
		return err
	}
	if a.ValidatorCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	if a.BlockBuilderCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	if a.Bump, err = decoder.ReadByte(); err != nil {
		return err
	}
	present, err := readOptionTag(decoder)
	if err != nil {
		return err
	}
	a.Hash = nil
	if present {
		b, err := decoder.ReadBytes(HashLength)
		if err != nil {
			return err
		}
		var h Hash
		copy(h[:], b)
		a.Hash = &h
	}
	return nil
}
