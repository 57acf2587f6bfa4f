package payments

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAttemptNotFound is returned when no attempt carries the gateway order id.
var ErrAttemptNotFound = errors.New("payment attempt not found")

// Kind says what a gateway payment pays for.
type Kind string

const (
	KindDeposit Kind = "deposit"
	KindOrder   Kind = "order"
)

// AttemptStatus tracks what we know about a gateway payment.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	// AttemptReview marks money the gateway took that could not be applied.
	AttemptReview    AttemptStatus = "review"
)

// Attempt is one payment created on the gateway. It is written before the gateway
// call so a timed-out request can still be reconciled.
type Attempt struct {
	RequestID      string
	GatewayOrderID string
	Kind           Kind
	UserID         string
	OrderID        string
	Amount         decimal.Decimal
	Status         AttemptStatus
	ResultCode     *int
	GatewayTransID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AttemptStore persists gateway payment attempts.
type AttemptStore interface {
	Create(ctx context.Context, a Attempt) error
	Get(ctx context.Context, gatewayOrderID string) (Attempt, error)
	// Resolve records a definitive outcome. Attempts that are no longer pending are
	// returned unchanged.
	Resolve(ctx context.Context, gatewayOrderID string, status AttemptStatus, resultCode int, transID string) (Attempt, error)
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]Attempt, error)
}

type memoryAttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
	now      func() time.Time
}

// NewMemoryAttemptStore creates an in-memory attempt store for tests and local runs.
func NewMemoryAttemptStore() AttemptStore {
	return &memoryAttemptStore{
		attempts: make(map[string]Attempt),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryAttemptStore) Create(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.UpdatedAt = a.CreatedAt
	if a.Status == "" {
		a.Status = AttemptPending
	}
	s.attempts[a.GatewayOrderID] = a
	return nil
}

func (s *memoryAttemptStore) Get(_ context.Context, gatewayOrderID string) (Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[gatewayOrderID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (s *memoryAttemptStore) Resolve(_ context.Context, gatewayOrderID string, status AttemptStatus, resultCode int, transID string) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[gatewayOrderID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != AttemptPending {
		return a, nil
	}
	a.Status = status
	a.ResultCode = &resultCode
	a.GatewayTransID = transID
	a.UpdatedAt = s.now()
	s.attempts[gatewayOrderID] = a
	return a, nil
}

func (s *memoryAttemptStore) ListPending(_ context.Context, createdBefore time.Time, limit int) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Attempt
	for _, a := range s.attempts {
		if a.Status == AttemptPending && a.CreatedAt.Before(createdBefore) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
