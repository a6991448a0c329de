package credits

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount  = errors.New("credits: amount must be positive")
	ErrInvalidUser    = errors.New("credits: user id is required")
	ErrAccountMissing = errors.New("credits: account not found")
)

// InsufficientCreditsError is returned when a debit would take the balance
// below zero. Needed is the shortfall, Cost the full price of the request.
type InsufficientCreditsError struct {
	Balance int64
	Cost    int64
	Needed  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, cost %d, short by %d", e.Balance, e.Cost, e.Needed)
}

// newInsufficientCredits builds the error for a rejected debit. The balance
// is read after the conditional update failed and may have grown since, so
// the shortfall is never reported below 1.
func newInsufficientCredits(balance, cost int64) *InsufficientCreditsError {
	needed := cost - balance
	if needed < 1 {
		needed = 1
	}
	return &InsufficientCreditsError{Balance: balance, Cost: cost, Needed: needed}
}

// IsInsufficientCredits reports whether err carries an InsufficientCreditsError.
func IsInsufficientCredits(err error) bool {
	var target *InsufficientCreditsError
	return errors.As(err, &target)
}

// WorkFailedError wraps the failure of work that ran after a successful debit.
// Refunded is false only when the compensating refund itself failed.
type WorkFailedError struct {
	Err      error
	ChargeID string
	Amount   int64
	Refunded bool
}

func (e *WorkFailedError) Error() string {
	if e.Refunded {
		return fmt.Sprintf("charge %s failed and was refunded: %v", e.ChargeID, e.Err)
	}
	return fmt.Sprintf("charge %s failed, refund pending: %v", e.ChargeID, e.Err)
}

func (e *WorkFailedError) Unwrap() error { return e.Err }
