package payments

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/learnhub/learnhub-wallet/internal/logging"
	"github.com/learnhub/learnhub-wallet/internal/momo"
	"github.com/learnhub/learnhub-wallet/internal/settlement"
)

// codeOrderNotFound is what the gateway answers for a payment it never created.
const codeOrderNotFound = 42

// Reconciler resolves attempts whose outcome never reached us, typically because
// the create call timed out or the IPN was lost. It asks the gateway and feeds the
// answer through the same idempotent path as a notification.
type Reconciler struct {
	svc      *Service
	interval time.Duration
	after    time.Duration
	batch    int
	logger   *slog.Logger
}

// NewReconciler builds a reconciler that checks every interval for attempts still
// pending after the given age.
func NewReconciler(svc *Service, interval, after time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if after <= 0 {
		after = 15 * time.Minute
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reconciler{svc: svc, interval: interval, after: after, batch: 50, logger: logger}
}

// Run loops until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := r.RunOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "reconciliation pass failed", "error", err)
			} else if n > 0 {
				r.logger.InfoContext(ctx, "reconciled payment attempts", "resolved", n)
			}
		}
	}
}

// RunOnce checks one batch of stale attempts and returns how many reached a
// definitive outcome.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	stale, err := r.svc.attempts.ListPending(ctx, r.svc.now().Add(-r.after), r.batch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, a := range stale {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		st, err := r.svc.gateway.QueryStatus(ctx, a.GatewayOrderID)
		if err != nil {
			r.logger.WarnContext(ctx, "status query failed", "gateway_order_id", a.GatewayOrderID, "error", err)
			continue
		}
		if momo.Classify(st.ResultCode) == momo.OutcomePending {
			continue
		}

		amount := a.Amount
		if st.Amount > 0 {
			amount = decimal.NewFromInt(st.Amount)
		} else if momo.Classify(st.ResultCode) == momo.OutcomeSuccess {
			// a success without a confirmed amount is not enough to move money
			r.logger.WarnContext(ctx, "gateway reported success without an amount",
				"gateway_order_id", a.GatewayOrderID, "trans_id", st.TransID)
			continue
		}
		extra := momo.ExtraData{UserID: a.UserID, Type: string(a.Kind), OrderID: a.OrderID}
		_, err = r.svc.apply(ctx, outcome{
			source:           settlement.SourceReconciler,
			gatewayOrderID:   a.GatewayOrderID,
			resultCode:       st.ResultCode,
			transID:          st.TransID,
			amount:           amount,
			extra:            extra,
			keepOrderPending: st.ResultCode == codeOrderNotFound,
		})
		if err != nil {
			if errors.Is(err, settlement.ErrAmountMismatch) || errors.Is(err, settlement.ErrInvalidTransition) {
				// needs a human; stop retrying it every pass
				r.logger.ErrorContext(ctx, "attempt needs manual reconciliation",
					"gateway_order_id", a.GatewayOrderID, "error", err)
				r.svc.resolveAttempt(ctx, a.GatewayOrderID, AttemptReview, st.ResultCode, strconv.FormatInt(st.TransID, 10))
				continue
			}
			r.logger.ErrorContext(ctx, "apply reconciled outcome", "gateway_order_id", a.GatewayOrderID, "error", err)
			continue
		}
		resolved++
	}
	return resolved, nil
}
