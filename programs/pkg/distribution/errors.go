package distribution

import (
	"fmt"

	"github.com/rakurai-io/rakurai/programs/pkg/programerr"
)

var (
	ErrAccountValidationFailure              = programerr.New(programerr.CustomOffset+0, "AccountValidationFailure", "Account failed validation.")
	ErrArithmeticError                       = programerr.New(programerr.CustomOffset+1, "ArithmeticError", "Encountered an arithmetic under/overflow error.")
	ErrExceedsMaxClaim                       = programerr.New(programerr.CustomOffset+2, "ExceedsMaxClaim", "The maximum number of funds to be claimed has been exceeded.")
	ErrExceedsMaxNumNodes                    = programerr.New(programerr.CustomOffset+3, "ExceedsMaxNumNodes", "The maximum number of claims has been exceeded.")
	ErrExpiredRewardCollectionAccount        = programerr.New(programerr.CustomOffset+4, "ExpiredRewardCollectionAccount", "The given RewardCollectionAccount has expired.")
	ErrFundsAlreadyClaimed                   = programerr.New(programerr.CustomOffset+5, "FundsAlreadyClaimed", "The funds for the given index and RewardCollectionAccount have already been claimed.")
	ErrInvalidProof                          = programerr.New(programerr.CustomOffset+6, "InvalidProof", "The given proof is invalid.")
	ErrMaxCommissionFeeBpsExceeded           = programerr.New(programerr.CustomOffset+7, "MaxCommissionFeeBpsExceeded", "Validator's commission basis points must be less than or equal to the RewardDistributionConfigAccount account's max_commission_bps.")
	ErrPrematureCloseRewardCollectionAccount = programerr.New(programerr.CustomOffset+8, "PrematureCloseRewardCollectionAccount", "The given RewardCollectionAccount is not ready to be closed.")
	ErrPrematureCloseClaimStatus             = programerr.New(programerr.CustomOffset+9, "PrematureCloseClaimStatus", "The given ClaimStatus account is not ready to be closed.")
	ErrPrematureMerkleRootUpload             = programerr.New(programerr.CustomOffset+10, "PrematureMerkleRootUpload", "Must wait till at least one epoch after the reward distribution account was created to upload the merkle root.")
	ErrRootNotUploaded                       = programerr.New(programerr.CustomOffset+11, "RootNotUploaded", "No merkle root has been uploaded to the given RewardCollectionAccount.")
	ErrUnauthorized                          = programerr.New(programerr.CustomOffset+12, "Unauthorized", "Unauthorized signer.")
	ErrRewardsTooLow                         = programerr.New(programerr.CustomOffset+13, "RewardsTooLow", "Total rewards must be greater than 0.")
	ErrInvalidRakuraiCommissionAccount       = programerr.New(programerr.CustomOffset+14, "InvalidRakuraiCommissionAccount", "Rakurai's commission account must be equal to the RewardCollectionAccount account's rakurai_commission_account.")
)

// ErrMerkleRootLocked is returned when replacing a root that already paid out
// a claim. It reports the Unauthorized code.
var ErrMerkleRootLocked = fmt.Errorf("%w: merkle root already has claims", ErrUnauthorized)

// Errors resolves error codes returned by the distribution program.
var Errors = programerr.NewTable(
	ErrAccountValidationFailure,
	ErrArithmeticError,
	ErrExceedsMaxClaim,
	ErrExceedsMaxNumNodes,
	ErrExpiredRewardCollectionAccount,
	ErrFundsAlreadyClaimed,
	ErrInvalidProof,
	ErrMaxCommissionFeeBpsExceeded,
	ErrPrematureCloseRewardCollectionAccount,
	ErrPrematureCloseClaimStatus,
	ErrPrematureMerkleRootUpload,
	ErrRootNotUploaded,
	ErrUnauthorized,
	ErrRewardsTooLow,
	ErrInvalidRakuraiCommissionAccount,
)
