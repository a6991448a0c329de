package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Ledger applies the debit/refund protocol on top of a Store.
type Ledger struct {
	store         Store
	starting      int64
	refundTimeout time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStartingBalance sets the balance new accounts are created with.
func WithStartingBalance(n int64) Option {
	return func(l *Ledger) { l.starting = n }
}

// WithRefundTimeout bounds how long a compensating refund may take.
func WithRefundTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.refundTimeout = d }
}

// NewLedger creates a ledger over the given store
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, refundTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StartingBalance returns the balance new accounts receive.
func (l *Ledger) StartingBalance() int64 {
	return l.starting
}

// EnsureAccount creates the user's account if it does not exist yet.
func (l *Ledger) EnsureAccount(ctx context.Context, userID string) error {
	return l.store.EnsureAccount(ctx, userID, l.starting)
}

// Balance ensures the account exists and returns its balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	if err := l.EnsureAccount(ctx, userID); err != nil {
		return 0, err
	}
	return l.store.GetBalance(ctx, userID)
}

// Debit atomically subtracts amount and returns the new balance. When the
// balance does not cover the amount nothing changes and an
// *InsufficientCreditsError is returned.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reference string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if err := l.EnsureAccount(ctx, userID); err != nil {
		debitsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	res, err := l.store.TryDebit(ctx, userID, amount, reference)
	if err != nil {
		debitsTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	if !res.Applied {
		debitsTotal.WithLabelValues("insufficient").Inc()
		return res.Balance, newInsufficientCredits(res.Balance, amount)
	}

	debitsTotal.WithLabelValues("applied").Inc()
	return res.Balance, nil
}

// Grant adds credits to a user's balance, creating the account if needed.
func (l *Ledger) Grant(ctx context.Context, req CreditRequest) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if req.Kind == "" {
		req.Kind = KindAdjustment
	}
	if err := l.EnsureAccount(ctx, req.UserID); err != nil {
		return Result{}, err
	}

	res, err := l.store.Credit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if res.Applied {
		creditsGranted.WithLabelValues(string(req.Kind)).Add(float64(req.Amount))
	}
	return res, nil
}

// History returns the user's most recent credit transactions.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return l.store.Entries(ctx, userID, limit)
}

// Reserve debits amount for one unit of billed work. On insufficient
// balance the returned charge is in StateRejected alongside the error.
func (l *Ledger) Reserve(ctx context.Context, userID string, amount int64, reference string) (*Charge, error) {
	charge := newCharge(l, userID, amount, reference)

	balance, err := l.Debit(ctx, userID, amount, charge.debitReference())
	if err != nil {
		if IsInsufficientCredits(err) {
			charge.reject(balance)
			return charge, err
		}
		return nil, fmt.Errorf("failed to reserve credits: %w", err)
	}

	charge.debited(balance)
	return charge, nil
}

// Spend runs work between a debit and either completion or a refund.
// Work that fails or panics is refunded exactly once; the returned error
// is then a *WorkFailedError wrapping the original failure.
func (l *Ledger) Spend(ctx context.Context, userID string, amount int64, reference string, work func(ctx context.Context) error) (charge *Charge, err error) {
	charge, err = l.Reserve(ctx, userID, amount, reference)
	if err != nil {
		return charge, err
	}

	charge.begin()
	defer func() {
		if r := recover(); r != nil {
			charge.Fail(ctx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	if werr := work(ctx); werr != nil {
		refunded := charge.Fail(ctx, werr)
		return charge, &WorkFailedError{
			Err:      werr,
			ChargeID: charge.ID,
			Amount:   amount,
			Refunded: refunded,
		}
	}

	charge.Complete()
	return charge, nil
}

// refund credits back one charge. It runs detached from the request
// context so a cancelled client cannot stop the compensation.
func (l *Ledger) refund(ctx context.Context, c *Charge) (Result, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.refundTimeout)
	defer cancel()

	return l.store.Credit(rctx, CreditRequest{
		UserID:         c.UserID,
		Amount:         c.Amount,
		Kind:           KindRefund,
		Reference:      c.Reference,
		IdempotencyKey: "refund:" + c.ID,
	})
}

func logRefundFailure(c *Charge, cause, err error) {
	log.Error().
		Err(err).
		Str("charge_id", c.ID).
		Str("user_id", c.UserID).
		Int64("credits", c.Amount).
		AnErr("cause", cause).
		Msg("❌ Refund failed, balance needs manual reconciliation")
}
