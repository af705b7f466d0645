// Package tradeerrors defines the sentinel errors shared by the coin ledger
// and the auction engine, split into the three classes callers care about:
// validation mistakes (never retry), business-state conflicts (retry after
// re-reading state), and infrastructure failures (retryable as-is).
package tradeerrors

import "errors"

// Validation errors: the request itself is malformed. Nothing was mutated.
var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrSelfTransfer    = errors.New("cannot transfer coins to the same account")
	ErrSelfBid         = errors.New("cannot bid on your own auction")
	ErrBidTooLow       = errors.New("bid must exceed the current bid")
	ErrBidBelowMinimum = errors.New("bid is below the minimum increment")
	ErrNotSeller       = errors.New("only the seller can cancel this auction")
	ErrInvalidAuction  = errors.New("invalid auction parameters")
)

// Business-state errors: a valid request the current state cannot satisfy.
var (
	ErrInsufficientFunds = errors.New("insufficient coin balance")
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrAuctionClosed     = errors.New("auction is not active")
	ErrAuctionExpired    = errors.New("auction has expired")
	ErrAlreadyClosed     = errors.New("auction already completed or cancelled")
)

// Infrastructure errors: the backing store misbehaved. No partial financial
// mutation is left behind; callers may retry.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrLockContention     = errors.New("could not acquire lock")
)

// IsValidation reports whether err is a caller mistake.
func IsValidation(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidAmount, ErrSelfTransfer, ErrSelfBid,
		ErrBidTooLow, ErrBidBelowMinimum, ErrNotSeller, ErrInvalidAuction,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsBusiness reports whether err reflects a state conflict the caller may
// resolve by re-reading and retrying.
func IsBusiness(err error) bool {
	for _, sentinel := range []error{
		ErrInsufficientFunds, ErrAuctionNotFound,
		ErrAuctionClosed, ErrAuctionExpired, ErrAlreadyClosed,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err is transient infrastructure failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrLockContention)
}
