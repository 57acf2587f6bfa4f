package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
	"github.com/learnhub/learnhub-wallet/internal/notification"
)

type fixture struct {
	orders   *MemoryRepository
	wallets  ledger.Store
	notifier *notification.Recorder
	svc      *Orchestrator
}

func newFixture() fixture {
	orders := NewMemoryRepository()
	wallets := ledger.NewInMemory("VND")
	notifier := &notification.Recorder{}
	return fixture{
		orders:   orders,
		wallets:  wallets,
		notifier: notifier,
		svc:      NewOrchestrator(orders, wallets, notifier, nil),
	}
}

func (f fixture) seedOrder(id, userID string, total int64, courses ...string) {
	items := make([]Item, 0, len(courses))
	for _, c := range courses {
		items = append(items, Item{CourseID: c, Price: decimal.NewFromInt(total / int64(len(courses)))})
	}
	f.orders.AddOrder(Order{ID: id, UserID: userID, FinalAmount: decimal.NewFromInt(total)}, items...)
	f.orders.AddToCart(userID, courses...)
}

func (f fixture) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.FindByUserID(context.Background(), userID)
	if errors.Is(err, ledger.ErrWalletNotFound) {
		return decimal.Zero
	}
	require.NoError(t, err)
	return w.Balance
}

func amount(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOrder("o1", "u1", 300_000, "go-101", "sql-201")
	f.orders.AddToCart("u1", "k8s-301")

	first, err := f.svc.Settle(ctx, "o1", Signal{Source: SourceIPN, Amount: amount(300_000), GatewayTransID: "99"})
	require.NoError(t, err)
	assert.False(t, first.AlreadySettled)
	assert.Equal(t, 2, first.Enrolled)
	assert.Equal(t, StatusCompleted, first.Order.PaymentStatus)
	assert.Equal(t, MethodMoMo, first.Order.PaymentMethod)
	assert.Equal(t, "99", first.Order.PaymentRef)
	require.NotNil(t, first.Order.PaidAt)

	for i := 0; i < 4; i++ {
		again, err := f.svc.Settle(ctx, "o1", Signal{Source: SourceIPN, Amount: amount(300_000)})
		require.NoError(t, err)
		assert.True(t, again.AlreadySettled)
		assert.Zero(t, again.Enrolled)
	}

	assert.Equal(t, []string{"go-101", "sql-201"}, f.orders.Enrollments("u1"))
	assert.Equal(t, []string{"k8s-301"}, f.orders.Cart("u1"), "only purchased courses leave the cart")
	assert.Equal(t, 1, f.notifier.Count(notification.KindEnrollment))
}

func TestSettleConcurrentSignals(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOrder("o1", "u1", 100_000, "go-101")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Settle(ctx, "o1", Signal{Source: SourceIPN})
			if err != nil {
				t.Errorf("settle: %v", err)
				return
			}
			if !res.AlreadySettled {
				mu.Lock()
				settled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, f.notifier.Count(notification.KindEnrollment))
}

func TestSettleFailureLeavesOrderPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOrder("o1", "u1", 100_000, "go-101")

	boom := errors.New("enrollment insert failed")
	f.orders.FailNextCompletion(boom)

	_, err := f.svc.Settle(ctx, "o1", Signal{Source: SourceIPN})
	require.ErrorIs(t, err, boom)

	order, err := f.svc.Order(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, order.PaymentStatus)
	assert.Empty(t, f.orders.Enrollments("u1"))
	assert.Equal(t, []string{"go-101"}, f.orders.Cart("u1"))

	res, err := f.svc.Settle(ctx, "o1", Signal{Source: SourceReconciler})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)
}

func TestSettleRejectsAmountMismatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOrder("o1", "u1", 100_000, "go-101")

	_, err := f.svc.Settle(ctx, "o1", Signal{Source: SourceIPN, Amount: amount(1_000)})
	require.ErrorIs(t, err, ErrAmountMismatch)

	order, _ := f.svc.Order(ctx, "o1")
	assert.Equal(t, StatusPending, order.PaymentStatus)
	assert.Empty(t, f.orders.Enrollments("u1"))
}

func TestSettleFailedOrderIsInvalid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOrder("o1", "u1", 100_000, "go-101")

	_, err := f.svc.Fail(ctx, "o1", "User denied the payment")
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.Count(notification.KindPaymentFailed))

	_, err = f.svc.Settle(ctx, "o1", Signal{Source: SourceIPN})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, f.orders.Enrollments("u1"))
}

func TestFailDoesNotOverrideCompletedOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOrder("o1", "u1", 100_000, "go-101")

	_, err := f.svc.Settle(ctx, "o1", Signal{Source: SourceIPN})
	require.NoError(t, err)

	_, err = f.svc.Fail(ctx, "o1", "late failure notification")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	order, _ := f.svc.Order(ctx, "o1")
	assert.Equal(t, StatusCompleted, order.PaymentStatus)
}

func TestSettleUnknownOrder(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Settle(context.Background(), "missing", Signal{Source: SourceIPN})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPayWithWallet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ledger.SeedBalance(f.wallets, "u1", 500_000)
	f.seedOrder("o1", "u1", 300_000, "go-101", "sql-201")

	res, err := f.svc.PayWithWallet(ctx, "u1", "o1")
	require.NoError(t, err)
	require.NotNil(t, res.Debit)
	assert.Equal(t, ledger.TypePurchase, res.Debit.Type)
	assert.Equal(t, "o1", res.Debit.ReferenceID)
	assert.True(t, res.Debit.BalanceAfter.Equal(decimal.NewFromInt(200_000)))
	assert.Equal(t, MethodWallet, res.Order.PaymentMethod)
	assert.Equal(t, 2, res.Enrolled)
	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(200_000)))
	assert.Empty(t, f.orders.Cart("u1"))

	again, err := f.svc.PayWithWallet(ctx, "u1", "o1")
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)
	assert.Nil(t, again.Debit)
	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(200_000)), "second call must not debit")
}

func TestPayWithWalletInsufficientFunds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ledger.SeedBalance(f.wallets, "u1", 10_000)
	f.seedOrder("o1", "u1", 20_000, "go-101")

	_, err := f.svc.PayWithWallet(ctx, "u1", "o1")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, "insufficient balance, need 10000 more", err.Error())

	order, _ := f.svc.Order(ctx, "o1")
	assert.Equal(t, StatusPending, order.PaymentStatus)
	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(10_000)))
	log, _ := f.wallets.Transactions(ctx, "u1", ledger.Page{Limit: 10})
	assert.Len(t, log, 1)
}

func TestPayWithWalletRollsBackDebitWhenSettlementFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ledger.SeedBalance(f.wallets, "u1", 50_000)
	f.seedOrder("o1", "u1", 20_000, "go-101")

	boom := errors.New("enrollment insert failed")
	f.orders.FailNextCompletion(boom)

	_, err := f.svc.PayWithWallet(ctx, "u1", "o1")
	require.ErrorIs(t, err, boom)
	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(50_000)), "debit must roll back with the settlement")
	order, _ := f.svc.Order(ctx, "o1")
	assert.Equal(t, StatusPending, order.PaymentStatus)

	res, err := f.svc.PayWithWallet(ctx, "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)
	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(30_000)))
}

func TestPayWithWalletAfterGatewaySettlement(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ledger.SeedBalance(f.wallets, "u1", 50_000)
	f.seedOrder("o1", "u1", 20_000, "go-101")

	_, err := f.svc.Settle(ctx, "o1", Signal{Source: SourceIPN})
	require.NoError(t, err)

	res, err := f.svc.PayWithWallet(ctx, "u1", "o1")
	require.NoError(t, err)
	assert.True(t, res.AlreadySettled)
	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(50_000)))
}

func TestPayWithWalletConcurrentCallsDebitOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ledger.SeedBalance(f.wallets, "u1", 100_000)
	f.seedOrder("o1", "u1", 30_000, "go-101")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.PayWithWallet(ctx, "u1", "o1"); err != nil {
				t.Errorf("pay: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(70_000)))
	assert.Equal(t, []string{"go-101"}, f.orders.Enrollments("u1"))
}

func TestPayWithWalletChecksOwnerAndStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ledger.SeedBalance(f.wallets, "u2", 100_000)
	f.seedOrder("o1", "u1", 30_000, "go-101")

	_, err := f.svc.PayWithWallet(ctx, "u2", "o1")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.svc.Fail(ctx, "o1", "cancelled")
	require.NoError(t, err)
	ledger.SeedBalance(f.wallets, "u1", 100_000)
	_, err = f.svc.PayWithWallet(ctx, "u1", "o1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(100_000)))
}

func TestPayWithWalletFreeOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOrder("free", "u1", 0, "intro-001")

	res, err := f.svc.PayWithWallet(ctx, "u1", "free")
	require.NoError(t, err)
	assert.Nil(t, res.Debit)
	assert.Equal(t, []string{"intro-001"}, f.orders.Enrollments("u1"))
	_, err = f.wallets.FindByUserID(ctx, "u1")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound, "free orders never touch the wallet")
}

func TestRefund(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ledger.SeedBalance(f.wallets, "u1", 50_000)
	f.seedOrder("o1", "u1", 20_000, "go-101")

	_, err := f.svc.Refund(ctx, "o1")
	require.ErrorIs(t, err, ErrInvalidTransition, "pending orders cannot be refunded")

	_, err = f.svc.PayWithWallet(ctx, "u1", "o1")
	require.NoError(t, err)

	order, err := f.svc.Refund(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, order.PaymentStatus)
	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(50_000)))
	assert.Equal(t, 1, f.notifier.Count(notification.KindRefund))

	_, err = f.svc.Refund(ctx, "o1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.True(t, f.balance(t, "u1").Equal(decimal.NewFromInt(50_000)))

	res, err := f.svc.Settle(ctx, "o1", Signal{Source: SourceIPN})
	require.NoError(t, err)
	assert.True(t, res.AlreadySettled, "refunded absorbs late success signals")
	assert.Equal(t, []string{"go-101"}, f.orders.Enrollments("u1"))
}
