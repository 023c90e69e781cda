// Package programerr defines coded program errors. Custom program errors are
// numbered from 6000 in declaration order; framework errors reuse the Anchor
// numbering so codes reported by the CLI match what the deployed programs
// return.
package programerr

import (
	"errors"
	"fmt"
)

// CustomOffset is the first code assigned to program-specific errors.
const CustomOffset = 6000

type Error struct {
	Code    uint32
	Name    string
	Message string
}

func New(code uint32, name, message string) *Error {
	return &Error{Code: code, Name: name, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (uint32, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}

// Table indexes a program's errors by code.
type Table map[uint32]*Error

func NewTable(errs ...*Error) Table {
	t := make(Table, len(errs)+len(framework))
	for _, e := range framework {
		t[e.Code] = e
	}
	for _, e := range errs {
		t[e.Code] = e
	}
	return t
}

// Lookup returns the error registered for code.
func (t Table) Lookup(code uint32) (*Error, bool) {
	e, ok := t[code]
	return e, ok
}

var (
	ErrInstructionMissing           = New(100, "InstructionMissing", "8 byte instruction identifier not provided")
	ErrInstructionFallbackNotFound  = New(101, "InstructionFallbackNotFound", "Fallback functions are not supported")
	ErrInstructionDidNotDeserialize = New(102, "InstructionDidNotDeserialize", "The program could not deserialize the given instruction")
	ErrConstraintSeeds              = New(2006, "ConstraintSeeds", "A seeds constraint was violated")
	ErrAccountDiscriminatorMismatch = New(3002, "AccountDiscriminatorMismatch", "8 byte discriminator did not match what was expected")
	ErrAccountDidNotDeserialize     = New(3003, "AccountDidNotDeserialize", "Failed to deserialize the account")
	ErrAccountNotEnoughKeys         = New(3005, "AccountNotEnoughKeys", "Not enough account keys given to the instruction")
	ErrAccountOwnedByWrongProgram   = New(3007, "AccountOwnedByWrongProgram", "The given account is owned by a different program than expected")
	ErrAccountNotSigner             = New(3010, "AccountNotSigner", "The given account did not sign")
	ErrAccountNotInitialized        = New(3012, "AccountNotInitialized", "The program expected this account to be already initialized")
)

var framework = []*Error{
	ErrInstructionMissing,
	ErrInstructionFallbackNotFound,
	ErrInstructionDidNotDeserialize,
	ErrConstraintSeeds,
	ErrAccountDiscriminatorMismatch,
	ErrAccountDidNotDeserialize,
	ErrAccountNotEnoughKeys,
	ErrAccountOwnedByWrongProgram,
	ErrAccountNotSigner,
	ErrAccountNotInitialized,
}
