package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
)

var (
	// ErrOrderNotFound is returned when the order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned when the order's status does not allow the change.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrAmountMismatch is returned when a payment signal does not cover the order total.
	ErrAmountMismatch = errors.New("paid amount does not match order total")
	// ErrNotOwner is returned when a user acts on someone else's order.
	ErrNotOwner = errors.New("order belongs to another user")
)

// Status is the order's payment status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Settled reports whether the order has already been paid. Completed and refunded
// absorb further success signals.
func (s Status) Settled() bool {
	return s == StatusCompleted || s == StatusRefunded
}

// Payment methods stamped on settled orders.
const (
	MethodWallet = "wallet"
	MethodMoMo   = "momo"
)

// Signal sources.
const (
	SourceWallet     = "wallet"
	SourceIPN        = "momo_ipn"
	SourceReturn     = "momo_return"
	SourceReconciler = "reconciler"
)

// Order is the slice of an order that settlement reads and writes.
type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	PaymentMethod string          `json:"payment_method"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	PaymentStatus Status          `json:"payment_status"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Item is one course line on an order.
type Item struct {
	CourseID string          `json:"course_id"`
	Price    decimal.Decimal `json:"price"`
}

// Signal says a payment for an order succeeded. Amount is nil when the source
// carries no amount to cross-check.
type Signal struct {
	Source         string
	Amount         *decimal.Decimal
	GatewayTransID string
}

// Method derives the payment method from the signal source.
func (s Signal) Method() string {
	if s.Source == SourceWallet {
		return MethodWallet
	}
	return MethodMoMo
}

// Result describes the outcome of a settlement attempt.
type Result struct {
	Order          Order
	Enrolled       int
	AlreadySettled bool
	Debit          *ledger.Transaction
}

// Completion carries the values stamped on the order when it completes.
type Completion struct {
	PaymentMethod string
	PaymentRef    string // gateway transaction id, empty for wallet payments
	PaidAt        time.Time
}

// Repository persists orders, enrollments and carts. Complete and Refund lock the
// order row and run as one unit of work, joining any transaction carried by ctx.
type Repository interface {
	Get(ctx context.Context, orderID string) (Order, error)
	Items(ctx context.Context, orderID string) ([]Item, error)
	// Complete moves a pending order to completed, enrolls the user in every line
	// item and clears those courses from the cart. A settled order is reported with
	// AlreadySettled and left untouched.
	Complete(ctx context.Context, orderID string, c Completion) (Result, error)
	Fail(ctx context.Context, orderID string) (Order, error)
	Refund(ctx context.Context, orderID string) (Order, error)
}

var settlementCounter, _ = otel.Meter("github.com/learnhub/learnhub-wallet/internal/settlement").Int64Counter(
	"settlement.signals",
	metric.WithDescription("Settlement signals by source and outcome"),
)

func recordSignal(ctx context.Context, source, outcome string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}
