package credits

import "context"

// Store persists account balances. Implementations must make TryDebit a
// single atomic conditional decrement: concurrent debits on the same user
// can never drive the balance below zero.
type Store interface {
	// EnsureAccount creates the account with the starting balance if it does
	// not exist yet. An existing account is left untouched.
	EnsureAccount(ctx context.Context, userID string, starting int64) error

	// GetBalance returns the balance, or 0 when the account does not exist.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// TryDebit subtracts amount only if the balance covers it.
	TryDebit(ctx context.Context, userID string, amount int64, reference string) (Result, error)

	// Credit adds amount. A non-empty IdempotencyKey that was already used
	// makes the call a no-op reporting the current balance.
	Credit(ctx context.Context, req CreditRequest) (Result, error)

	// Entries lists the most recent journal rows for a user.
	Entries(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Result is the outcome of a balance mutation.
type Result struct {
	Applied bool  `json:"applied"`
	Balance int64 `json:"balance"`
}

// CreditRequest describes an increment of a user's balance.
type CreditRequest struct {
	UserID         string
	Amount         int64
	Kind           EntryKind
	Reference      string
	IdempotencyKey string
}

func (r CreditRequest) validate() error {
	if r.UserID == "" {
		return ErrInvalidUser
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
