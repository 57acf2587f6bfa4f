package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
	"github.com/learnhub/learnhub-wallet/internal/logging"
	"github.com/learnhub/learnhub-wallet/internal/notification"
	"github.com/learnhub/learnhub-wallet/internal/payments"
)

var (
	// MinDeposit and MaxDeposit bound a single top-up.
	MinDeposit = decimal.NewFromInt(1_000)
	MaxDeposit = decimal.NewFromInt(50_000_000)

	// ErrTestTopUpDisabled is returned when direct credits are switched off.
	ErrTestTopUpDisabled = errors.New("test top-up is disabled")
)

// Service coordinates wallet top-ups through the gateway or, outside production,
// directly on the ledger.
type Service struct {
	wallets   ledger.Store
	gateway   Initiator
	testTopUp bool
	notifier  notification.Notifier
	logger    *slog.Logger
}

// NewService prepares a funding service. testTopUp enables direct credits.
func NewService(wallets ledger.Store, gateway Initiator, testTopUp bool, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{wallets: wallets, gateway: gateway, testTopUp: testTopUp, notifier: notifier, logger: logger}, nil
}

// Deposit validates the amount and returns a gateway checkout. The wallet is only
// credited once the gateway confirms the payment.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (payments.Checkout, error) {
	if err := validateDeposit(amount); err != nil {
		return payments.Checkout{}, err
	}
	return s.gateway.Initiate(ctx, payments.Initiation{
		Kind:      payments.KindDeposit,
		UserID:    userID,
		Amount:    amount,
		OrderInfo: "Wallet deposit",
	})
}

// TestTopUp credits the wallet without a gateway round trip.
func (s *Service) TestTopUp(ctx context.Context, userID string, amount decimal.Decimal) (ledger.Transaction, error) {
	if !s.testTopUp {
		return ledger.Transaction{}, ErrTestTopUpDisabled
	}
	if err := ledger.ValidateAmount(amount); err != nil {
		return ledger.Transaction{}, err
	}
	if amount.GreaterThan(MaxDeposit) {
		return ledger.Transaction{}, fmt.Errorf("%w: at most %s per top-up", ledger.ErrInvalidAmount, MaxDeposit)
	}

	entry, err := s.wallets.UpdateBalance(ctx, ledger.Mutation{
		UserID:      userID,
		Amount:      amount,
		Type:        ledger.TypeDeposit,
		ReferenceID: "TEST_" + uuid.NewString(),
		Description: "Test top-up",
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.logger.InfoContext(ctx, "test top-up credited", "user_id", userID, "amount", amount.String())
	s.notify(ctx, notification.Message{
		Kind:        notification.KindDeposit,
		Destination: userID,
		Body:        fmt.Sprintf("%s was added to your wallet", amount.String()),
	})
	return entry, nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed", "kind", msg.Kind, "user_id", msg.Destination, "error", err)
	}
}

func validateDeposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(0)) {
		return fmt.Errorf("%w: deposits must be whole amounts", ledger.ErrInvalidAmount)
	}
	if amount.LessThan(MinDeposit) {
		return fmt.Errorf("%w: minimum deposit is %s", ledger.ErrInvalidAmount, MinDeposit)
	}
	if amount.GreaterThan(MaxDeposit) {
		return fmt.Errorf("%w: maximum deposit is %s", ledger.ErrInvalidAmount, MaxDeposit)
	}
	return nil
}
