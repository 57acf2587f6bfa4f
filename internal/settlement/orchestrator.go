package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
	"github.com/learnhub/learnhub-wallet/internal/logging"
	"github.com/learnhub/learnhub-wallet/internal/notification"
)

var tracer = otel.Tracer("github.com/learnhub/learnhub-wallet/internal/settlement")

// Orchestrator drives orders from a successful payment to enrolled courses, at
// most once per order however many times the signal arrives.
type Orchestrator struct {
	orders   Repository
	wallets  ledger.Store
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator wires the orchestrator. notifier and logger may be nil.
func NewOrchestrator(orders Repository, wallets ledger.Store, notifier notification.Notifier, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		orders:   orders,
		wallets:  wallets,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Order returns the order as stored.
func (o *Orchestrator) Order(ctx context.Context, orderID string) (Order, error) {
	return o.orders.Get(ctx, orderID)
}

// Settle applies a payment success signal. Repeated signals for a settled order
// return AlreadySettled without touching enrollments or the cart.
func (o *Orchestrator) Settle(ctx context.Context, orderID string, sig Signal) (Result, error) {
	ctx, span := tracer.Start(ctx, "settlement.Settle")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("signal.source", sig.Source))

	order, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if order.PaymentStatus.Settled() {
		recordSignal(ctx, sig.Source, "already_settled")
		return Result{Order: order, AlreadySettled: true}, nil
	}
	if order.PaymentStatus == StatusFailed {
		o.logger.WarnContext(ctx, "payment success for failed order needs manual reconciliation",
			"order_id", orderID, "source", sig.Source, "gateway_trans_id", sig.GatewayTransID)
		recordSignal(ctx, sig.Source, "invalid_transition")
		return Result{Order: order}, ErrInvalidTransition
	}
	if sig.Amount != nil && !sig.Amount.Equal(order.FinalAmount) {
		o.logger.WarnContext(ctx, "paid amount does not match order total",
			"order_id", orderID, "paid", sig.Amount.String(), "total", order.FinalAmount.String())
		recordSignal(ctx, sig.Source, "amount_mismatch")
		return Result{Order: order}, ErrAmountMismatch
	}

	res, err := o.orders.Complete(ctx, orderID, Completion{PaymentMethod: sig.Method(), PaymentRef: sig.GatewayTransID, PaidAt: o.now()})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete")
		recordSignal(ctx, sig.Source, "error")
		return res, err
	}
	o.afterSettle(ctx, sig.Source, res)
	return res, nil
}

// Fail marks a pending order failed. Failing a failed order is a no-op; failing a
// settled order is ErrInvalidTransition.
func (o *Orchestrator) Fail(ctx context.Context, orderID, reason string) (Order, error) {
	order, err := o.orders.Fail(ctx, orderID)
	if err != nil {
		return order, err
	}
	o.logger.InfoContext(ctx, "order payment failed", "order_id", orderID, "reason", reason)
	o.notify(ctx, notification.Message{
		Kind:        notification.KindPaymentFailed,
		Destination: order.UserID,
		Body:        fmt.Sprintf("Payment for order %s failed: %s", orderID, reason),
	})
	return order, nil
}

// PayWithWallet debits the order total from the owner's wallet and settles the
// order in one atomic unit. Either both happen or neither does.
func (o *Orchestrator) PayWithWallet(ctx context.Context, userID, orderID string) (Result, error) {
	ctx, span := tracer.Start(ctx, "settlement.PayWithWallet")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if order.UserID != userID {
		return Result{}, ErrNotOwner
	}
	if order.PaymentStatus.Settled() {
		recordSignal(ctx, SourceWallet, "already_settled")
		return Result{Order: order, AlreadySettled: true}, nil
	}
	if order.PaymentStatus != StatusPending {
		return Result{Order: order}, ErrInvalidTransition
	}
	if order.FinalAmount.IsZero() {
		return o.Settle(ctx, orderID, Signal{Source: SourceWallet})
	}

	var res Result
	debit, err := o.wallets.UpdateBalanceWith(ctx, ledger.Mutation{
		UserID:      userID,
		Amount:      order.FinalAmount,
		Type:        ledger.TypePurchase,
		ReferenceID: orderID,
		Description: "Payment for order " + orderID,
	}, func(ctx context.Context, _ ledger.Transaction) error {
		var err error
		res, err = o.orders.Complete(ctx, orderID, Completion{PaymentMethod: MethodWallet, PaidAt: o.now()})
		if err != nil {
			return err
		}
		if res.AlreadySettled {
			// settled by another channel while we waited on the wallet lock
			return errAbortDebit
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errAbortDebit), errors.Is(err, ledger.ErrDuplicateTransaction):
		current, getErr := o.orders.Get(ctx, orderID)
		if getErr != nil {
			return Result{}, getErr
		}
		recordSignal(ctx, SourceWallet, "already_settled")
		return Result{Order: current, AlreadySettled: true}, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "pay with wallet")
		recordSignal(ctx, SourceWallet, "rejected")
		return Result{Order: order}, err
	}

	res.Debit = &debit
	o.afterSettle(ctx, SourceWallet, res)
	return res, nil
}

var errAbortDebit = errors.New("order already settled")

// Refund credits the order total back to the owner's wallet and marks the order
// refunded in one atomic unit. Enrollments are kept.
func (o *Orchestrator) Refund(ctx context.Context, orderID string) (Order, error) {
	ctx, span := tracer.Start(ctx, "settlement.Refund")
	defer span.End()

	order, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.PaymentStatus != StatusCompleted {
		return order, ErrInvalidTransition
	}

	if order.FinalAmount.IsZero() {
		refunded, err := o.orders.Refund(ctx, orderID)
		if err != nil {
			return refunded, err
		}
		o.afterRefund(ctx, refunded)
		return refunded, nil
	}

	var refunded Order
	_, err = o.wallets.UpdateBalanceWith(ctx, ledger.Mutation{
		UserID:      order.UserID,
		Amount:      order.FinalAmount,
		Type:        ledger.TypeRefund,
		ReferenceID: "refund:" + orderID,
		Description: "Refund for order " + orderID,
	}, func(ctx context.Context, _ ledger.Transaction) error {
		var err error
		refunded, err = o.orders.Refund(ctx, orderID)
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			current, getErr := o.orders.Get(ctx, orderID)
			if getErr != nil {
				return Order{}, getErr
			}
			return current, ErrInvalidTransition
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "refund")
		return order, err
	}
	o.afterRefund(ctx, refunded)
	return refunded, nil
}

func (o *Orchestrator) afterSettle(ctx context.Context, source string, res Result) {
	if res.AlreadySettled {
		recordSignal(ctx, source, "already_settled")
		return
	}
	recordSignal(ctx, source, "settled")
	o.logger.InfoContext(ctx, "order settled",
		"order_id", res.Order.ID, "user_id", res.Order.UserID, "source", source, "enrolled", res.Enrolled)
	o.notify(ctx, notification.Message{
		Kind:        notification.KindEnrollment,
		Destination: res.Order.UserID,
		Body:        fmt.Sprintf("Order %s is paid, %d course(s) unlocked", res.Order.ID, res.Enrolled),
	})
}

func (o *Orchestrator) afterRefund(ctx context.Context, order Order) {
	o.logger.InfoContext(ctx, "order refunded", "order_id", order.ID, "user_id", order.UserID, "amount", order.FinalAmount.String())
	o.notify(ctx, notification.Message{
		Kind:        notification.KindRefund,
		Destination: order.UserID,
		Body:        fmt.Sprintf("Order %s refunded: %s credited to your wallet", order.ID, order.FinalAmount.String()),
	})
}

func (o *Orchestrator) notify(ctx context.Context, msg notification.Message) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Send(ctx, msg); err != nil {
		o.logger.WarnContext(ctx, "notification failed", "kind", msg.Kind, "error", err)
	}
}
