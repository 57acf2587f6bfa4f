package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrInsufficientFunds occurs when a debit would drive the wallet balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the reference was already recorded for the
	// wallet and type, so the mutation has already been applied.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidAmount is returned for zero, negative or sub-cent amounts.
	ErrInvalidAmount = errors.New("amount must be positive with at most 2 decimal places")

	// ErrUnknownType is returned for transaction types the mutator cannot sign.
	ErrUnknownType = errors.New("unknown transaction type")

	// ErrWalletNotFound is returned by lookups for users without a wallet yet.
	ErrWalletNotFound = errors.New("wallet not found")
)

// InsufficientFundsError carries the shortfall of a rejected debit.
type InsufficientFundsError struct {
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

// Shortfall is the additional balance the debit would have needed.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Balance)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance, need %s more", e.Shortfall().String())
}

// Is lets errors.Is match the sentinel.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// TxType tags a ledger entry and decides the sign of its effect on the balance.
type TxType string

const (
	TypeDeposit    TxType = "deposit"
	TypeWithdraw   TxType = "withdraw"
	TypePurchase   TxType = "purchase"
	TypeRefund     TxType = "refund"
	TypeCommission TxType = "commission"
	TypeWithdrawal TxType = "withdrawal"
)

// Valid reports whether t is a known type.
func (t TxType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdraw, TypePurchase, TypeRefund, TypeCommission, TypeWithdrawal:
		return true
	}
	return false
}

// IsCredit reports whether entries of this type increase the balance.
func (t TxType) IsCredit() bool {
	switch t {
	case TypeDeposit, TypeRefund, TypeCommission:
		return true
	}
	return false
}

// TxStatus is the lifecycle state of a ledger entry.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusCompleted TxStatus = "completed"
	StatusFailed    TxStatus = "failed"
	StatusCancelled TxStatus = "cancelled"
)

const (
	WalletStatusActive    = "active"
	WalletStatusSuspended = "suspended"

	// DefaultCurrency is used when a store is built without one.
	DefaultCurrency = "VND"
)

// Wallet is the per-user stored-value account. Balance is a cached fold of the log.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is an immutable ledger entry. Amount is always a positive magnitude.
type Transaction struct {
	ID            string          `json:"id"`
	Sequence      int64           `json:"-"`
	WalletID      string          `json:"wallet_id"`
	Type          TxType          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        TxStatus        `json:"status"`
	ReferenceID   string          `json:"reference_id"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Mutation describes a requested balance change.
type Mutation struct {
	UserID      string
	Amount      decimal.Decimal
	Type        TxType
	ReferenceID string
	Description string
}

// Validate rejects malformed mutations before any lock is taken.
func (m Mutation) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return errors.New("user id is required")
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return ValidateAmount(m.Amount)
}

// ValidateAmount accepts strictly positive amounts with at most two fractional digits.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// Apply computes the balance after applying amount under type t.
func Apply(before, amount decimal.Decimal, t TxType) (decimal.Decimal, error) {
	if !t.Valid() {
		return before, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err := ValidateAmount(amount); err != nil {
		return before, err
	}
	if t.IsCredit() {
		return before.Add(amount), nil
	}
	after := before.Sub(amount)
	if after.IsNegative() {
		return before, &InsufficientFundsError{Balance: before, Requested: amount}
	}
	return after, nil
}

// Fold recomputes a balance from ledger entries, in any order.
func Fold(entries []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Status != StatusCompleted {
			continue
		}
		if e.Type.IsCredit() {
			total = total.Add(e.Amount)
		} else {
			total = total.Sub(e.Amount)
		}
	}
	return total
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a window of the most-recent-first transaction history.
type Page struct {
	Limit  int
	Offset int
}

// Clamp bounds the limit to [1, MaxPageSize] and the offset to >= 0.
func (p Page) Clamp() Page {
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Hook runs inside the mutation's atomic unit after the balance check and before
// commit. Returning an error aborts the mutation with no effect.
type Hook func(ctx context.Context, entry Transaction) error

// Store persists wallets and their append-only transaction log. UpdateBalance is
// the only way to change a balance.
type Store interface {
	FindByUserID(ctx context.Context, userID string) (Wallet, error)
	Create(ctx context.Context, userID string) (Wallet, error)
	Transactions(ctx context.Context, userID string, page Page) ([]Transaction, error)
	UpdateBalance(ctx context.Context, m Mutation) (Transaction, error)
	UpdateBalanceWith(ctx context.Context, m Mutation, hook Hook) (Transaction, error)
}

var mutationCounter, _ = otel.Meter("github.com/learnhub/learnhub-wallet/internal/ledger").Int64Counter(
	"ledger.mutations",
	metric.WithDescription("Balance mutations by type and outcome"),
)

func recordMutation(ctx context.Context, t TxType, err error) {
	outcome := "committed"
	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientFunds):
		outcome = "insufficient_funds"
	case errors.Is(err, ErrDuplicateTransaction):
		outcome = "duplicate"
	default:
		outcome = "error"
	}
	if mutationCounter == nil {
		return
	}
	mutationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(t)),
		attribute.String("outcome", outcome),
	))
}
