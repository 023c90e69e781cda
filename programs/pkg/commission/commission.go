// Package commission splits a leader's rewards between the block builder, the
// validator and its stakers.
package commission

import (
	"errors"
	"fmt"

	"github.com/rakurai-io/rakurai/programs/pkg/safemath"
)

var (
	ErrBpsOutOfRange = errors.New("commission: bps exceeds 10000")
	ErrSumMismatch   = errors.New("commission: split does not sum to total")
)

type Split struct {
	BlockBuilderFee uint64
	ValidatorFee    uint64
	StakerRewards   uint64
}

// Compute takes the block builder's cut of total first and the validator's cut
// of what remains; stakers get the rest. Both cuts round down.
func Compute(total uint64, blockBuilderBps, validatorBps uint16) (Split, error) {
	if blockBuilderBps > safemath.MaxBps || validatorBps > safemath.MaxBps {
		return Split{}, ErrBpsOutOfRange
	}
	blockBuilderFee, err := safemath.MulDivBps(total, blockBuilderBps)
	if err != nil {
		return Split{}, fmt.Errorf("failed to compute block builder fee: %w", err)
	}
	remaining, err := safemath.Sub(total, blockBuilderFee)
	if err != nil {
		return Split{}, err
	}
	validatorFee, err := safemath.MulDivBps(remaining, validatorBps)
	if err != nil {
		return Split{}, fmt.Errorf("failed to compute validator fee: %w", err)
	}
	stakerRewards, err := safemath.Sub(remaining, validatorFee)
	if err != nil {
		return Split{}, err
	}

	s := Split{BlockBuilderFee: blockBuilderFee, ValidatorFee: validatorFee, StakerRewards: stakerRewards}
	sum, err := safemath.Sum(s.BlockBuilderFee, s.ValidatorFee, s.StakerRewards)
	if err != nil || sum != total {
		return Split{}, ErrSumMismatch
	}
	return s, nil
}
