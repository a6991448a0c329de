package credits

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used for tests and for running the API
// without a database. One mutex serialises every mutation.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  []Entry
	keys     map[string]struct{}
}

// NewMemoryStore creates an empty in-memory ledger store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]int64),
		keys:     make(map[string]struct{}),
	}
}

func (s *MemoryStore) EnsureAccount(_ context.Context, userID string, starting int64) error {
	if userID == "" {
		return ErrInvalidUser
	}
	if starting < 0 {
		starting = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balances[userID]; ok {
		return nil
	}
	s.balances[userID] = starting
	if starting > 0 {
		s.appendLocked(userID, KindGrant, starting, starting, "starting balance", "")
	}
	return nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *MemoryStore) TryDebit(_ context.Context, userID string, amount int64, reference string) (Result, error) {
	if userID == "" {
		return Result{}, ErrInvalidUser
	}
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[userID]
	if !ok || balance < amount {
		return Result{Applied: false, Balance: balance}, nil
	}

	balance -= amount
	s.balances[userID] = balance
	s.appendLocked(userID, KindDebit, -amount, balance, reference, "")
	return Result{Applied: true, Balance: balance}, nil
}

func (s *MemoryStore) Credit(_ context.Context, req CreditRequest) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[req.UserID]
	if !ok {
		return Result{}, ErrAccountMissing
	}
	if req.IdempotencyKey != "" {
		if _, used := s.keys[req.IdempotencyKey]; used {
			return Result{Applied: false, Balance: balance}, nil
		}
		s.keys[req.IdempotencyKey] = struct{}{}
	}

	balance += req.Amount
	s.balances[req.UserID] = balance
	s.appendLocked(req.UserID, req.Kind, req.Amount, balance, req.Reference, req.IdempotencyKey)
	return Result{Applied: true, Balance: balance}, nil
}

func (s *MemoryStore) Entries(_ context.Context, userID string, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) appendLocked(userID string, kind EntryKind, amount, balanceAfter int64, reference, key string) {
	entry := Entry{
		ID:           uuid.New(),
		UserID:       userID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Reference:    reference,
		CreatedAt:    time.Now(),
	}
	if key != "" {
		k := key
		entry.IdempotencyKey = &k
	}
	s.entries = append(s.entries, entry)
}
