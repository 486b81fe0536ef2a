package ledger

import (
	"errors"
	"fmt"
)

// Runtime errors. Program-specific errors live with the program.
var (
	ErrAlreadyProcessed       = errors.New("ledger: transaction already processed")
	ErrAccountAlreadyInUse    = errors.New("ledger: account already in use")
	ErrInsufficientLamports   = errors.New("ledger: insufficient lamports")
	ErrUnknownProgram         = errors.New("ledger: unknown program")
	ErrInvalidInstructionData = errors.New("ledger: invalid instruction data")
	ErrNotEnoughAccountKeys   = errors.New("ledger: not enough account keys")
	ErrMissingAccount         = errors.New("ledger: account not passed to caller")
	ErrPrivilegeEscalation    = errors.New("ledger: cross-program invocation privilege escalation")
	ErrCallDepth              = errors.New("ledger: cross-program invocation depth exceeded")
	ErrReentrancy             = errors.New("ledger: program re-entered itself")
	ErrExternalLamportSpend   = errors.New("ledger: instruction spent from an account it does not own")
	ErrExternalDataModified   = errors.New("ledger: instruction modified data of an account it does not own")
	ErrReadonlyModified       = errors.New("ledger: instruction modified a read-only account")
	ErrModifiedOwner          = errors.New("ledger: instruction illegally changed account owner")
	ErrUnbalancedInstruction  = errors.New("ledger: sum of account balances changed")
	ErrExecutableModified     = errors.New("ledger: instruction modified a program account")
	ErrArithmeticOverflow     = errors.New("ledger: arithmetic overflow")
)

// InstructionError attributes a failure to the top-level instruction that raised it
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }
