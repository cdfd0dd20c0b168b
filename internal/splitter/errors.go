package splitter

import "errors"

// Access and pause errors
var (
	ErrUnauthorized    = errors.New("caller is not the owner")
	ErrOperationPaused = errors.New("operation is paused")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Split validation errors, in the order Split checks them
var (
	ErrZeroAmount           = errors.New("amount must be greater than zero")
	ErrOddAmount            = errors.New("amount must be even")
	ErrSelfDealingForbidden = errors.New("sender cannot be a recipient")
	ErrDuplicateRecipient   = errors.New("recipients must differ")
	ErrInvalidRecipient     = errors.New("recipient is the zero address")
)

var (
	ErrTransferFailed  = errors.New("value transfer failed")
	ErrReentrantCall   = errors.New("reentrant call")
	ErrNonPayable      = errors.New("non-payable constructor")
	ErrBalanceOverflow = errors.New("balance overflow")
)
