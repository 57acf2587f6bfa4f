package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
	"github.com/learnhub/learnhub-wallet/internal/logging"
	"github.com/learnhub/learnhub-wallet/internal/momo"
	"github.com/learnhub/learnhub-wallet/internal/notification"
	"github.com/learnhub/learnhub-wallet/internal/settlement"
)

var (
	// ErrInvalidAmount is returned when the gateway cannot charge the amount.
	ErrInvalidAmount = errors.New("gateway amount must be a positive whole number")
	// ErrMalformedNotification is returned for a correctly signed notification whose
	// extraData cannot be interpreted.
	ErrMalformedNotification = errors.New("malformed gateway notification")
)

// Gateway is the part of the MoMo client the payment flows need.
type Gateway interface {
	CreatePayment(ctx context.Context, req momo.PaymentRequest) (momo.PaymentResponse, error)
	QueryStatus(ctx context.Context, orderID string) (momo.StatusResponse, error)
}

// Service starts gateway payments and applies their outcomes to wallets and orders.
type Service struct {
	gateway  Gateway
	signer   momo.Signer
	attempts AttemptStore
	wallets  ledger.Store
	orders   *settlement.Orchestrator
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the payment service. notifier and logger may be nil.
func NewService(gateway Gateway, signer momo.Signer, attempts AttemptStore, wallets ledger.Store, orders *settlement.Orchestrator, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		gateway:  gateway,
		signer:   signer,
		attempts: attempts,
		wallets:  wallets,
		orders:   orders,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Initiation describes a payment to start on the gateway.
type Initiation struct {
	Kind      Kind
	UserID    string
	OrderID   string
	Amount    decimal.Decimal
	OrderInfo string
}

// Checkout is what the client needs to send the user to the gateway. Pending is
// set when the gateway did not answer; the payment may still complete.
type Checkout struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PayURL         string `json:"pay_url,omitempty"`
	Deeplink       string `json:"deeplink,omitempty"`
	QRCodeURL      string `json:"qr_code_url,omitempty"`
	Pending        bool   `json:"pending"`
}

// Initiate records an attempt and creates the payment on the gateway. A timeout
// returns the Checkout with Pending set together with momo.ErrOutcomeUnknown.
func (s *Service) Initiate(ctx context.Context, in Initiation) (Checkout, error) {
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Truncate(0)) {
		return Checkout{}, ErrInvalidAmount
	}
	if in.UserID == "" {
		return Checkout{}, fmt.Errorf("user id is required")
	}

	var (
		reference string
		extra     momo.ExtraData
	)
	switch in.Kind {
	case KindDeposit:
		reference = "DEP_" + uuid.NewString()
		extra = momo.ExtraData{UserID: in.UserID, Type: momo.PurposeDeposit}
	case KindOrder:
		if in.OrderID == "" {
			return Checkout{}, fmt.Errorf("order id is required")
		}
		reference = "ORD_" + in.OrderID
		extra = momo.ExtraData{UserID: in.UserID, Type: momo.PurposeOrder, OrderID: in.OrderID}
	default:
		return Checkout{}, fmt.Errorf("unknown payment kind %q", in.Kind)
	}

	gatewayOrderID := momo.NewRequestID(reference, s.now())
	if err := s.attempts.Create(ctx, Attempt{
		RequestID:      gatewayOrderID,
		GatewayOrderID: gatewayOrderID,
		Kind:           in.Kind,
		UserID:         in.UserID,
		OrderID:        in.OrderID,
		Amount:         in.Amount,
		Status:         AttemptPending,
	}); err != nil {
		return Checkout{}, err
	}

	resp, err := s.gateway.CreatePayment(ctx, momo.PaymentRequest{
		Reference: reference,
		RequestID: gatewayOrderID,
		Amount:    in.Amount,
		OrderInfo: in.OrderInfo,
		ExtraData: extra,
	})
	out := Checkout{
		GatewayOrderID: gatewayOrderID,
		PayURL:         resp.PayURL,
		Deeplink:       resp.Deeplink,
		QRCodeURL:      resp.QRCodeURL,
	}
	if err != nil {
		var gwErr *momo.GatewayError
		switch {
		case errors.As(err, &gwErr):
			if _, rerr := s.attempts.Resolve(ctx, gatewayOrderID, AttemptFailed, gwErr.Code, ""); rerr != nil {
				s.logger.ErrorContext(ctx, "resolve rejected attempt", "gateway_order_id", gatewayOrderID, "error", rerr)
			}
		case errors.Is(err, momo.ErrOutcomeUnknown):
			s.logger.WarnContext(ctx, "gateway outcome unknown, leaving attempt for reconciliation",
				"gateway_order_id", gatewayOrderID, "error", err)
			out.Pending = true
		}
		return out, err
	}
	return out, nil
}

// InitiateOrder starts a gateway payment for the caller's pending order.
func (s *Service) InitiateOrder(ctx context.Context, userID, orderID string) (Checkout, error) {
	order, err := s.orders.Order(ctx, orderID)
	if err != nil {
		return Checkout{}, err
	}
	if order.UserID != userID {
		return Checkout{}, settlement.ErrNotOwner
	}
	if order.PaymentStatus != settlement.StatusPending {
		return Checkout{}, settlement.ErrInvalidTransition
	}
	return s.Initiate(ctx, Initiation{
		Kind:      KindOrder,
		UserID:    userID,
		OrderID:   orderID,
		Amount:    order.FinalAmount,
		OrderInfo: "Payment for order " + orderID,
	})
}

// Resolution reports what a gateway outcome did.
type Resolution struct {
	Outcome     momo.Outcome
	Kind        Kind
	Duplicate   bool
	// NeedsReview marks a successful charge that settled nothing, such as a
	// second payment for an order that was already paid another way.
	NeedsReview bool
}

// HandleNotification verifies and applies a gateway notification. Unsigned or
// tampered payloads return momo.ErrInvalidSignature and change nothing.
func (s *Service) HandleNotification(ctx context.Context, n momo.Notification, source string) (Resolution, error) {
	if err := n.Verify(s.signer); err != nil {
		s.logger.WarnContext(ctx, "rejected gateway notification with bad signature",
			"gateway_order_id", n.OrderID, "source", source)
		recordNotification(ctx, source, "bad_signature")
		return Resolution{}, err
	}
	extra, err := momo.DecodeExtraData(n.ExtraData)
	if err != nil {
		s.logger.ErrorContext(ctx, "signed notification with unusable extraData",
			"gateway_order_id", n.OrderID, "error", err)
		recordNotification(ctx, source, "malformed")
		return Resolution{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	res, err := s.apply(ctx, outcome{
		source:         source,
		gatewayOrderID: n.OrderID,
		resultCode:     n.ResultCode,
		transID:        n.TransID,
		amount:         n.AmountDecimal(),
		extra:          extra,
	})
	if err != nil {
		recordNotification(ctx, source, "error")
		return res, err
	}
	if res.NeedsReview {
		recordNotification(ctx, source, "needs_review")
	} else {
		recordNotification(ctx, source, string(res.Outcome))
	}
	return res, nil
}

type outcome struct {
	source         string
	gatewayOrderID string
	resultCode     int
	transID        int64
	amount         decimal.Decimal
	extra          momo.ExtraData

	// keepOrderPending skips failing the order, used when the gateway never saw the payment.
	keepOrderPending bool
}

// apply routes a definitive gateway outcome. Every branch is safe to repeat.
func (s *Service) apply(ctx context.Context, o outcome) (Resolution, error) {
	res := Resolution{Outcome: momo.Classify(o.resultCode), Kind: Kind(o.extra.Type)}
	transID, ref := "", "momo:"+o.gatewayOrderID
	if o.transID != 0 {
		transID = strconv.FormatInt(o.transID, 10)
		ref = "momo:" + transID
	}

	switch res.Outcome {
	case momo.OutcomePending:
		return res, nil

	case momo.OutcomeSuccess:
		switch res.Kind {
		case KindDeposit:
			entry, err := s.wallets.UpdateBalance(ctx, ledger.Mutation{
				UserID:      o.extra.UserID,
				Amount:      o.amount,
				Type:        ledger.TypeDeposit,
				ReferenceID: ref,
				Description: "MoMo deposit " + o.gatewayOrderID,
			})
			switch {
			case errors.Is(err, ledger.ErrDuplicateTransaction):
				res.Duplicate = true
			case err != nil:
				return res, fmt.Errorf("credit deposit: %w", err)
			default:
				s.logger.InfoContext(ctx, "deposit credited", "user_id", o.extra.UserID,
					"amount", o.amount.String(), "balance", entry.BalanceAfter.String(), "source", o.source)
				s.notify(ctx, notification.Message{
					Kind:        notification.KindDeposit,
					Destination: o.extra.UserID,
					Body:        fmt.Sprintf("%s was added to your wallet", o.amount.String()),
				})
			}
		case KindOrder:
			amount := o.amount
			settled, err := s.orders.Settle(ctx, o.extra.OrderID, settlement.Signal{
				Source:         o.source,
				Amount:         &amount,
				GatewayTransID: transID,
			})
			if err != nil {
				return res, fmt.Errorf("settle order %s: %w", o.extra.OrderID, err)
			}
			res.Duplicate = settled.AlreadySettled
			if settled.AlreadySettled && !settledBy(settled.Order, transID) {
				s.logger.ErrorContext(ctx, "gateway payment landed on an order that was already paid",
					"order_id", o.extra.OrderID, "gateway_order_id", o.gatewayOrderID, "trans_id", transID,
					"paid_with", settled.Order.PaymentMethod, "paid_ref", settled.Order.PaymentRef,
					"amount", o.amount.String(), "source", o.source)
				res.NeedsReview = true
				s.resolveAttempt(ctx, o.gatewayOrderID, AttemptReview, o.resultCode, transID)
				return res, nil
			}
		}
		s.resolveAttempt(ctx, o.gatewayOrderID, AttemptSucceeded, o.resultCode, transID)
		return res, nil

	default:
		if res.Kind == KindOrder && !o.keepOrderPending {
			_, err := s.orders.Fail(ctx, o.extra.OrderID, momo.Describe(o.resultCode))
			switch {
			case errors.Is(err, settlement.ErrInvalidTransition):
				s.logger.InfoContext(ctx, "ignoring failure for settled order",
					"order_id", o.extra.OrderID, "result_code", o.resultCode)
			case err != nil:
				return res, fmt.Errorf("fail order %s: %w", o.extra.OrderID, err)
			}
		}
		s.resolveAttempt(ctx, o.gatewayOrderID, AttemptFailed, o.resultCode, transID)
		return res, nil
	}
}

// settledBy reports whether the order was completed by the gateway
// transaction transID, so a replay of that same transaction is harmless.
func settledBy(o settlement.Order, transID string) bool {
	if o.PaymentMethod != settlement.MethodMoMo {
		return false
	}
	return o.PaymentRef == "" || transID == "" || o.PaymentRef == transID
}

func (s *Service) resolveAttempt(ctx context.Context, gatewayOrderID string, status AttemptStatus, code int, transID string) {
	_, err := s.attempts.Resolve(ctx, gatewayOrderID, status, code, transID)
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		s.logger.DebugContext(ctx, "no attempt recorded for gateway order", "gateway_order_id", gatewayOrderID)
	case err != nil:
		s.logger.ErrorContext(ctx, "resolve payment attempt", "gateway_order_id", gatewayOrderID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed", "kind", msg.Kind, "error", err)
	}
}

var notificationCounter, _ = otel.Meter("github.com/learnhub/learnhub-wallet/internal/payments").Int64Counter(
	"payments.notifications",
	metric.WithDescription("Gateway notifications by source and outcome"),
)

func recordNotification(ctx context.Context, source, outcome string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}
