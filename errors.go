package fundme

import (
	"errors"
)

// Sentinel errors for common failure scenarios.
var (
	// Ledger errors
	ErrInsufficientContribution = errors.New("fundme: contribution below minimum USD value")
	ErrNotAuthorized            = errors.New("fundme: caller is not the owner")
	ErrIndexOutOfRange          = errors.New("fundme: funder index out of range")
	ErrTransferFailed           = errors.New("fundme: transfer failed")
	ErrPriceUnavailable         = errors.New("fundme: price unavailable")
	ErrInvalidAddress           = errors.New("fundme: invalid address")

	// Journal errors
	ErrEntryNotFound  = errors.New("fundme: journal entry not found")
	ErrDuplicateEntry = errors.New("fundme: journal entry already exists")
	ErrJournalCorrupt = errors.New("fundme: journal corrupt")

	// Store errors
	ErrStoreNotReady = errors.New("fundme: store not ready")
	ErrStoreClosed   = errors.New("fundme: store is closed")
)

// IsAuthorizationError returns true if the call was refused because of who made it.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrNotAuthorized)
}

// IsRecoverable returns true if the failure is temporary and the same call
// may succeed later without changing its arguments.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrPriceUnavailable) ||
		errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrStoreNotReady)
}
