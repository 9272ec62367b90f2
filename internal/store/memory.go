package store

import (
	"context"
	"sync"

	"fliptowin/internal/game"
)

type memoryAccount struct {
	mu       sync.Mutex
	balances game.Balances
}

// MemoryStore keeps accounts in process. Each account has its own lock, so
// settlements for different users never contend.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*memoryAccount

	ledgerMu sync.Mutex
	ledger   []game.Settlement
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*memoryAccount)}
}

func (s *MemoryStore) account(userID string) (*memoryAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[userID]
	return acc, ok
}

func (s *MemoryStore) Balances(ctx context.Context, userID string) (game.Balances, error) {
	acc, ok := s.account(userID)
	if !ok {
		return game.Balances{}, game.ErrAccountNotFound
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balances, nil
}

func (s *MemoryStore) Settle(ctx context.Context, userID string, fn func(game.Balances) (game.Settlement, error)) (game.Settlement, error) {
	acc, ok := s.account(userID)
	if !ok {
		return game.Settlement{}, game.ErrAccountNotFound
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return game.Settlement{}, err
	}
	st, err := fn(acc.balances)
	if err != nil {
		return game.Settlement{}, err
	}
	acc.balances = st.After

	s.ledgerMu.Lock()
	s.ledger = append(s.ledger, st)
	s.ledgerMu.Unlock()

	return st, nil
}

func (s *MemoryStore) SetBalances(ctx context.Context, userID string, b game.Balances) error {
	s.mu.Lock()
	acc, ok := s.accounts[userID]
	if !ok {
		acc = &memoryAccount{}
		s.accounts[userID] = acc
	}
	s.mu.Unlock()

	acc.mu.Lock()
	acc.balances = b
	acc.mu.Unlock()
	return nil
}

// Ledger returns a copy of every settlement recorded so far.
func (s *MemoryStore) Ledger() []game.Settlement {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	out := make([]game.Settlement, len(s.ledger))
	copy(out, s.ledger)
	return out
}
