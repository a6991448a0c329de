package credits

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EntryKind classifies a balance change.
type EntryKind string

const (
	KindGrant      EntryKind = "grant"
	KindDebit      EntryKind = "debit"
	KindRefund     EntryKind = "refund"
	KindTopup      EntryKind = "topup"
	KindAdjustment EntryKind = "adjustment"
)

// Account is the balance row for one user.
type Account struct {
	UserID    string    `gorm:"type:text;primaryKey" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (Account) TableName() string {
	return "user_credits"
}

// Entry is one row of the credit transaction journal. It is written in the
// same database transaction as the balance change it describes.
type Entry struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string    `gorm:"type:text;not null;index" json:"user_id"`
	Kind           EntryKind `gorm:"type:text;not null" json:"kind"`
	Amount         int64     `gorm:"not null" json:"amount"`
	BalanceAfter   int64     `gorm:"not null" json:"balance_after"`
	Reference      string    `gorm:"type:text" json:"reference,omitempty"`
	IdempotencyKey *string   `gorm:"type:text;uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name
func (Entry) TableName() string {
	return "credit_transactions"
}

// BeforeCreate sets UUID before creating
func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
