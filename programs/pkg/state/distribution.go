package state

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/safemath"
)

// MaxNumEpochsValid bounds how long a collection can stay claimable.
const MaxNumEpochsValid = 10

const (
	DistributionConfigSpace = DiscriminatorLength + 32 + 8 + 2 + 1
	merkleRootSize          = 32 + 8 + 8 + 8 + 8
	RewardCollectionSpace   = DiscriminatorLength + 32 + 32 + (1 + merkleRootSize) + 8 + 2 + 2 + 32 + 8 + 32 + 1
	ClaimStatusSpace        = DiscriminatorLength + 1 + 32 + 32 + 8 + 8 + 8 + 1
)

type DistributionConfig struct {
	Authority        solana.PublicKey
	NumEpochsValid   uint64
	MaxCommissionBps uint16
	Bump             uint8
}

func (c *DistributionConfig) Validate() error {
	if c.NumEpochsValid == 0 || c.NumEpochsValid > MaxNumEpochsValid {
		return fmt.Errorf("num epochs valid %d outside [1, %d]", c.NumEpochsValid, MaxNumEpochsValid)
	}
	if c.MaxCommissionBps > safemath.MaxBps {
		return fmt.Errorf("max commission %d exceeds %d bps", c.MaxCommissionBps, safemath.MaxBps)
	}
	return nil
}

func (c *DistributionConfig) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := writePubkey(encoder, c.Authority); err != nil {
		return err
	}
	if err := encoder.WriteUint64(c.NumEpochsValid, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteUint16(c.MaxCommissionBps, bin.LE); err != nil {
		return err
	}
	return encoder.WriteByte(c.Bump)
}

func (c *DistributionConfig) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if c.Authority, err = readPubkey(decoder); err != nil {
		return err
	}
	if c.NumEpochsValid, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if c.MaxCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	c.Bump, err = decoder.ReadByte()
	return err
}

// MerkleRoot is an uploaded distribution root with its claim caps and
// running totals.
type MerkleRoot struct {
	Root              [32]byte
	MaxTotalClaim     uint64
	MaxNumNodes       uint64
	TotalFundsClaimed uint64
	NumNodesClaimed   uint64
}

func (m *MerkleRoot) marshal(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(m.Root[:], false); err != nil {
		return err
	}
	for _, v := range []uint64{m.MaxTotalClaim, m.MaxNumNodes, m.TotalFundsClaimed, m.NumNodesClaimed} {
		if err := encoder.WriteUint64(v, bin.LE); err != nil {
			return err
		}
	}
	return nil
}

func (m *MerkleRoot) unmarshal(decoder *bin.Decoder) error {
	b, err := decoder.ReadBytes(32)
	if err != nil {
		return err
	}
	copy(m.Root[:], b)
	for _, v := range []*uint64{&m.MaxTotalClaim, &m.MaxNumNodes, &m.TotalFundsClaimed, &m.NumNodesClaimed} {
		if *v, err = decoder.ReadUint64(bin.LE); err != nil {
			return err
		}
	}
	return nil
}

// RewardCollection holds one validator's staker rewards for one epoch until
// they are claimed or the collection expires.
type RewardCollection struct {
	ValidatorVoteAccount      solana.PublicKey
	MerkleRootUploadAuthority solana.PublicKey
	MerkleRoot                *MerkleRoot
	CreationEpoch             uint64
	ValidatorCommissionBps    uint16
	RakuraiCommissionBps      uint16
	RakuraiCommissionAccount  solana.PublicKey
	ExpiresAt                 uint64
	Initializer               solana.PublicKey
	Bump                      uint8
}

func (r *RewardCollection) Validate() error {
	if r.ValidatorVoteAccount.IsZero() {
		return errors.New("validator vote account is required")
	}
	if r.MerkleRootUploadAuthority.IsZero() {
		return errors.New("merkle root upload authority is required")
	}
	if r.RakuraiCommissionAccount.IsZero() {
		return errors.New("rakurai commission account is required")
	}
	if r.Initializer.IsZero() {
		return errors.New("initializer is required")
	}
	if m := r.MerkleRoot; m != nil {
		if m.TotalFundsClaimed > m.MaxTotalClaim {
			return fmt.Errorf("total claimed %d exceeds max %d", m.TotalFundsClaimed, m.MaxTotalClaim)
		}
		if m.NumNodesClaimed > m.MaxNumNodes {
			return fmt.Errorf("nodes claimed %d exceeds max %d", m.NumNodesClaimed, m.MaxNumNodes)
		}
	}
	return nil
}

func (r *RewardCollection) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := writePubkey(encoder, r.ValidatorVoteAccount); err != nil {
		return err
	}
	if err := writePubkey(encoder, r.MerkleRootUploadAuthority); err != nil {
		return err
	}
	if r.MerkleRoot == nil {
		if err := encoder.WriteByte(0); err != nil {
			return err
		}
	} else {
		if err := encoder.WriteByte(1); err != nil {
			return err
		}
		if err := r.MerkleRoot.marshal(encoder); err != nil {
			return err
		}
	}
	if err := encoder.WriteUint64(r.CreationEpoch, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteUint16(r.ValidatorCommissionBps, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteUint16(r.RakuraiCommissionBps, bin.LE); err != nil {
		return err
	}
	if err := writePubkey(encoder, r.RakuraiCommissionAccount); err != nil {
		return err
	}
	if err := encoder.WriteUint64(r.ExpiresAt, bin.LE); err != nil {
		return err
	}
	if err := writePubkey(encoder, r.Initializer); err != nil {
		return err
	}
	return encoder.WriteByte(r.Bump)
}

func (r *RewardCollection) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if r.ValidatorVoteAccount, err = readPubkey(decoder); err != nil {
		return err
	}
	if r.MerkleRootUploadAuthority, err = readPubkey(decoder); err != nil {
		return err
	}
	present, err := readOptionTag(decoder)
	if err != nil {
		return err
	}
	r.MerkleRoot = nil
	if present {
		var m MerkleRoot
		if err := m.unmarshal(decoder); err != nil {
			return err
		}
		r.MerkleRoot = &m
	}
	if r.CreationEpoch, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if r.ValidatorCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	if r.RakuraiCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	if r.RakuraiCommissionAccount, err = readPubkey(decoder); err != nil {
		return err
	}
	if r.ExpiresAt, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if r.Initializer, err = readPubkey(decoder); err != nil {
		return err
	}
	r.Bump, err = decoder.ReadByte()
	return err
}

// ClaimStatus records a single claimant's claim against a collection. Its
// existence is what prevents a second claim.
type ClaimStatus struct {
	IsClaimed        bool
	Claimant         solana.PublicKey
	ClaimStatusPayer solana.PublicKey
	SlotClaimedAt    uint64
	Amount           uint64
	ExpiresAt        uint64
	Bump             uint8
}

func (c *ClaimStatus) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := writeBool(encoder, c.IsClaimed); err != nil {
		return err
	}
	if err := writePubkey(encoder, c.Claimant); err != nil {
		return err
	}
	if err := writePubkey(encoder, c.ClaimStatusPayer); err != nil {
		return err
	}
	for _, v := range []uint64{c.SlotClaimedAt, c.Amount, c.ExpiresAt} {
		if err := encoder.WriteUint64(v, bin.LE); err != nil {
			return err
		}
	}
	return encoder.WriteByte(c.Bump)
}

func (c *ClaimStatus) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if c.IsClaimed, err = readBool(decoder); err != nil {
		return err
	}
	if c.Claimant, err = readPubkey(decoder); err != nil {
		return err
	}
	if c.ClaimStatusPayer, err = readPubkey(decoder); err != nil {
		return err
	}
	for _, v := range []*uint64{&c.SlotClaimedAt, &c.Amount, &c.ExpiresAt} {
		if *v, err = decoder.ReadUint64(bin.LE); err != nil {
			return err
		}
	}
	c.Bump, err = decoder.ReadByte()
	return err
}
