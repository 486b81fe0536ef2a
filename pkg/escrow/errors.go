package escrow

import "errors"

// Escrow failure kinds. Every one aborts the enclosing transaction.
var (
	ErrDecode             = errors.New("escrow: malformed record or payload")
	ErrUninitialized      = errors.New("escrow: account holds no data")
	ErrAddressMismatch    = errors.New("escrow: account does not match derived address")
	ErrOwnershipMismatch  = errors.New("escrow: account not controlled by expected program")
	ErrArgumentMismatch   = errors.New("escrow: request does not match stored order")
	ErrInsufficientFunds  = errors.New("escrow: authorized amount below reserved amount")
	ErrInvalidInstruction = errors.New("escrow: unknown instruction")
	ErrInvalidAccountData = errors.New("escrow: payload identity does not match signer")
	ErrMissingSignature   = errors.New("escrow: required signer did not sign")
	ErrPaymentOverflow    = errors.New("escrow: payment computation overflows 64 bits")
	ErrNotEnoughAccounts  = errors.New("escrow: not enough accounts")
	ErrAccountNotWritable = errors.New("escrow: account must be writable")
	ErrOrderNotActive     = errors.New("escrow: order is not active")
)
