package approval

import "github.com/rakurai-io/rakurai/programs/pkg/programerr"

var (
	ErrAccountValidationFailure = programerr.New(programerr.CustomOffset+0, "AccountValidationFailure", "Account failed validation.")
	ErrArithmeticError          = programerr.New(programerr.CustomOffset+1, "ArithmeticError", "Encountered an arithmetic under/overflow error.")
	ErrMaxCommissionBpsExceeded = programerr.New(programerr.CustomOffset+2, "MaxCommissionBpsExceeded", "Validator's commission basis points must be less than or equal to 10_000")
	ErrMissingHashForEnable     = programerr.New(programerr.CustomOffset+3, "MissingHashForEnable", "Hash must be provided when enabling the account as block builder.")
	ErrUnauthorized             = programerr.New(programerr.CustomOffset+4, "Unauthorized", "Unauthorized signer.")
)

// Errors resolves error codes returned by either approval program.
var Errors = programerr.NewTable(
	ErrAccountValidationFailure,
	ErrArithmeticError,
	ErrMaxCommissionBpsExceeded,
	ErrMissingHashForEnable,
	ErrUnauthorized,
)
