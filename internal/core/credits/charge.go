package credits

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle position of a billed request.
type State string

const (
	StateInit              State = "init"
	StateRejected          State = "rejected"
	StateDebited           State = "debited"
	StateWorking           State = "working"
	StateDone              State = "done"
	StateRefundedAndFailed State = "refunded_and_failed"
)

// Charge tracks one debit from reservation to completion or refund.
// A charge refunds at most once no matter how many times Fail is called.
type Charge struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Amount       int64  `json:"amount"`
	Reference    string `json:"reference,omitempty"`
	BalanceAfter int64  `json:"balance_after"`

	ledger *Ledger

	mu             sync.Mutex
	state          State
	charged        bool
	refundAttempts int
	refunded       bool
	refundErr      error
}

func newCharge(l *Ledger, userID string, amount int64, reference string) *Charge {
	return &Charge{
		ID:        uuid.New().String(),
		UserID:    userID,
		Amount:    amount,
		Reference: reference,
		ledger:    l,
		state:     StateInit,
	}
}

func (c *Charge) debitReference() string {
	if c.Reference == "" {
		return "charge:" + c.ID
	}
	return c.Reference + " charge:" + c.ID
}

func (c *Charge) reject(balance int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateRejected
	c.BalanceAfter = balance
}

func (c *Charge) debited(balance int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDebited
	c.charged = true
	c.BalanceAfter = balance
}

func (c *Charge) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDebited {
		c.state = StateWorking
	}
}

// State returns the current lifecycle state.
func (c *Charge) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Refunded reports whether the charged credits were returned.
func (c *Charge) Refunded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refunded
}

// RefundErr returns the error of a failed refund attempt, if any.
func (c *Charge) RefundErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refundErr
}

// NetCharged is what the user actually paid for this request.
func (c *Charge) NetCharged() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.charged || c.refunded {
		return 0
	}
	return c.Amount
}

// Complete marks the work as finished successfully.
func (c *Charge) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDebited && c.state != StateWorking {
		return
	}
	c.state = StateDone
	creditsSpent.Add(float64(c.Amount))
}

// Fail refunds the charge after failed work. Refund errors are logged and
// counted, never returned. The result reports whether the credits are back.
func (c *Charge) Fail(ctx context.Context, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.charged || c.state == StateDone {
		return false
	}
	if c.refundAttempts > 0 {
		return c.refunded
	}
	c.refundAttempts++
	c.state = StateRefundedAndFailed

	res, err := c.ledger.refund(ctx, c)
	if err != nil {
		c.refundErr = err
		refundsTotal.WithLabelValues("failed").Inc()
		logRefundFailure(c, cause, err)
		return false
	}

	c.refunded = true
	c.BalanceAfter = res.Balance
	if !res.Applied {
		refundsTotal.WithLabelValues("duplicate").Inc()
	} else {
		refundsTotal.WithLabelValues("ok").Inc()
	}

	log.Warn().
		Str("charge_id", c.ID).
		Str("user_id", c.UserID).
		Int64("credits", c.Amount).
		AnErr("cause", cause).
		Msg("↩️ Charge refunded after failed work")
	return true
}
