package settlement

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps orders, enrollments and carts in process memory. Every
// write happens under one mutex, so a completion is all-or-nothing.
type MemoryRepository struct {
	mu          sync.Mutex
	orders      map[string]Order
	items       map[string][]Item
	enrollments map[string]map[string]string
	carts       map[string]map[string]struct{}
	failNext    error
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:      make(map[string]Order),
		items:       make(map[string][]Item),
		enrollments: make(map[string]map[string]string),
		carts:       make(map[string]map[string]struct{}),
	}
}

// AddOrder stores a pending order with its line items. The order service owns
// order creation; this seeds development runs and tests.
func (r *MemoryRepository) AddOrder(order Order, items ...Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.PaymentStatus == "" {
		order.PaymentStatus = StatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	r.orders[order.ID] = order
	r.items[order.ID] = append([]Item(nil), items...)
}

// AddToCart puts courses in the user's cart.
func (r *MemoryRepository) AddToCart(userID string, courseIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[userID]
	if !ok {
		cart = make(map[string]struct{})
		r.carts[userID] = cart
	}
	for _, id := range courseIDs {
		cart[id] = struct{}{}
	}
}

// Cart lists the user's cart, sorted.
func (r *MemoryRepository) Cart(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.carts[userID]))
	for id := range r.carts[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Enrollments lists the courses the user is enrolled in, sorted.
func (r *MemoryRepository) Enrollments(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.enrollments[userID]))
	for id := range r.enrollments[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FailNextCompletion makes the next Complete call fail while writing enrollments.
func (r *MemoryRepository) FailNextCompletion(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

func (r *MemoryRepository) Get(_ context.Context, orderID string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (r *MemoryRepository) Items(_ context.Context, orderID string) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return nil, ErrOrderNotFound
	}
	return append([]Item(nil), r.items[orderID]...), nil
}

func (r *MemoryRepository) Complete(_ context.Context, orderID string, c Completion) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return Result{}, ErrOrderNotFound
	}
	switch o.PaymentStatus {
	case StatusCompleted, StatusRefunded:
		return Result{Order: o, AlreadySettled: true}, nil
	case StatusFailed:
		return Result{Order: o}, ErrInvalidTransition
	}

	if err := r.failNext; err != nil {
		r.failNext = nil
		return Result{}, err
	}

	paidAt := c.PaidAt.UTC()
	o.PaymentStatus = StatusCompleted
	o.PaymentMethod = c.PaymentMethod
	o.PaymentRef = c.PaymentRef
	o.PaidAt = &paidAt
	r.orders[orderID] = o

	enrolled, ok := r.enrollments[o.UserID]
	if !ok {
		enrolled = make(map[string]string)
		r.enrollments[o.UserID] = enrolled
	}
	count := 0
	for _, item := range r.items[orderID] {
		if _, exists := enrolled[item.CourseID]; exists {
			continue
		}
		enrolled[item.CourseID] = orderID
		count++
	}
	if cart, ok := r.carts[o.UserID]; ok {
		for _, item := range r.items[orderID] {
			delete(cart, item.CourseID)
		}
	}
	return Result{Order: o, Enrolled: count}, nil
}

func (r *MemoryRepository) Fail(_ context.Context, orderID string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	switch o.PaymentStatus {
	case StatusFailed:
		return o, nil
	case StatusPending:
		o.PaymentStatus = StatusFailed
		r.orders[orderID] = o
		return o, nil
	default:
		return o, ErrInvalidTransition
	}
}

func (r *MemoryRepository) Refund(_ context.Context, orderID string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if o.PaymentStatus != StatusCompleted {
		return o, ErrInvalidTransition
	}
	o.PaymentStatus = StatusRefunded
	r.orders[orderID] = o
	return o, nil
}
