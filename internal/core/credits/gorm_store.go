package credits

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	debitSQL = `UPDATE user_credits
		SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND balance >= ?
		RETURNING balance`

	creditSQL = `UPDATE user_credits
		SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
		RETURNING balance`
)

type balanceRow struct {
	Balance int64
}

// GormStore keeps balances in the user_credits table. It works on Postgres
// and on SQLite 3.35+ since both understand UPDATE ... RETURNING.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed ledger store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates the ledger tables. Production schemas come from
// cmd/migrate; this is used by tests and sqlite development databases.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Account{}, &Entry{})
}

func (s *GormStore) EnsureAccount(ctx context.Context, userID string, starting int64) error {
	if userID == "" {
		return ErrInvalidUser
	}
	if starting < 0 {
		starting = 0
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&Account{UserID: userID, Balance: starting})
		if res.Error != nil {
			return fmt.Errorf("failed to ensure account: %w", res.Error)
		}

		// Only the call that actually created the row journals the grant.
		if res.RowsAffected == 0 || starting == 0 {
			return nil
		}
		return tx.Create(&Entry{
			UserID:       userID,
			Kind:         KindGrant,
			Amount:       starting,
			BalanceAfter: starting,
			Reference:    "starting balance",
		}).Error
	})
}

func (s *GormStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return account.Balance, nil
}

func (s *GormStore) TryDebit(ctx context.Context, userID string, amount int64, reference string) (Result, error) {
	if userID == "" {
		return Result{}, ErrInvalidUser
	}
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	var result Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []balanceRow
		if err := tx.Raw(debitSQL, amount, userID, amount).Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		result = Result{Applied: true, Balance: rows[0].Balance}
		return tx.Create(&Entry{
			UserID:       userID,
			Kind:         KindDebit,
			Amount:       -amount,
			BalanceAfter: result.Balance,
			Reference:    reference,
		}).Error
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to debit credits: %w", err)
	}

	if !result.Applied {
		// Informational only: the balance may already have moved again.
		balance, err := s.GetBalance(ctx, userID)
		if err != nil {
			return Result{}, err
		}
		result.Balance = balance
	}
	return result, nil
}

func (s *GormStore) Credit(ctx context.Context, req CreditRequest) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	var result Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := &Entry{
			UserID:    req.UserID,
			Kind:      req.Kind,
			Amount:    req.Amount,
			Reference: req.Reference,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			entry.IdempotencyKey = &key
		}

		// Claim the idempotency key first; a duplicate leaves the balance alone.
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var rows []balanceRow
		if err := tx.Raw(creditSQL, req.Amount, req.UserID).Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrAccountMissing
		}

		result = Result{Applied: true, Balance: rows[0].Balance}
		return tx.Model(&Entry{}).Where("id = ?", entry.ID).Update("balance_after", result.Balance).Error
	})
	if err != nil {
		if errors.Is(err, ErrAccountMissing) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("failed to credit account: %w", err)
	}

	if !result.Applied {
		balance, err := s.GetBalance(ctx, req.UserID)
		if err != nil {
			return Result{}, err
		}
		result.Balance = balance
	}
	return result, nil
}

func (s *GormStore) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}

	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	return entries, nil
}
