package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// inMemoryStore serializes mutations per user with a keyed mutex, so different
// wallets never contend.
type inMemoryStore struct {
	currency string
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu      sync.RWMutex
	wallets map[string]Wallet
	entries map[string][]Transaction
	seq     int64
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests and
// single-instance development runs.
func NewInMemory(currency string) Store {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &inMemoryStore{
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sync.Mutex),
		wallets:  make(map[string]Wallet),
		entries:  make(map[string][]Transaction),
	}
}

func (s *inMemoryStore) walletLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *inMemoryStore) newWallet(userID string) Wallet {
	now := s.now()
	return Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  s.currency,
		Status:    WalletStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *inMemoryStore) FindByUserID(_ context.Context, userID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *inMemoryStore) Create(_ context.Context, userID string) (Wallet, error) {
	lock := s.walletLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[userID]; ok {
		return w, nil
	}
	w := s.newWallet(userID)
	s.wallets[userID] = w
	return w, nil
}

func (s *inMemoryStore) Transactions(_ context.Context, userID string, page Page) ([]Transaction, error) {
	page = page.Clamp()
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	if !ok {
		return []Transaction{}, nil
	}
	log := s.entries[w.ID]
	out := make([]Transaction, 0, page.Limit)
	for i := len(log) - 1 - page.Offset; i >= 0 && len(out) < page.Limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}

func (s *inMemoryStore) UpdateBalance(ctx context.Context, m Mutation) (Transaction, error) {
	return s.UpdateBalanceWith(ctx, m, nil)
}

func (s *inMemoryStore) UpdateBalanceWith(ctx context.Context, m Mutation, hook Hook) (Transaction, error) {
	if err := m.Validate(); err != nil {
		return Transaction{}, err
	}

	lock := s.walletLock(m.UserID)
	lock.Lock()
	defer lock.Unlock()

	entry, wallet, err := s.stage(m)
	if err != nil {
		recordMutation(ctx, m.Type, err)
		return entry, err
	}

	if hook != nil {
		if err := hook(ctx, entry); err != nil {
			recordMutation(ctx, m.Type, err)
			return Transaction{}, err
		}
	}

	s.mu.Lock()
	s.seq++
	entry.Sequence = s.seq
	wallet.Balance = entry.BalanceAfter
	wallet.UpdatedAt = entry.CreatedAt
	s.wallets[m.UserID] = wallet
	s.entries[wallet.ID] = append(s.entries[wallet.ID], entry)
	s.mu.Unlock()

	recordMutation(ctx, m.Type, nil)
	return entry, nil
}

// stage computes the entry under the caller-held wallet lock without persisting
// anything, including a lazily created wallet.
func (s *inMemoryStore) stage(m Mutation) (Transaction, Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet, ok := s.wallets[m.UserID]
	if !ok {
		wallet = s.newWallet(m.UserID)
	}

	if m.ReferenceID != "" {
		for _, e := range s.entries[wallet.ID] {
			if e.Type == m.Type && e.ReferenceID == m.ReferenceID {
				return e, wallet, ErrDuplicateTransaction
			}
		}
	}

	after, err := Apply(wallet.Balance, m.Amount, m.Type)
	if err != nil {
		return Transaction{}, wallet, err
	}

	return Transaction{
		ID:            uuid.NewString(),
		WalletID:      wallet.ID,
		Type:          m.Type,
		Amount:        m.Amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  after,
		Status:        StatusCompleted,
		ReferenceID:   m.ReferenceID,
		Description:   m.Description,
		CreatedAt:     s.now(),
	}, wallet, nil
}
