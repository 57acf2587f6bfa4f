package settlement

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
)

func newTestApp(f fixture, userID string) *fiber.App {
	app := fiber.New()
	h := NewHandler(f.svc)
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Post("/orders/:orderId/pay/wallet", h.PayWithWallet)
	app.Post("/orders/:orderId/refund", h.Refund)
	return app
}

func TestHandlerPayWithWallet(t *testing.T) {
	f := newFixture()
	ledger.SeedBalance(f.wallets, "u1", 10_000)
	f.seedOrder("cheap", "u1", 5_000, "go-101")
	f.seedOrder("pricey", "u1", 50_000, "sql-201")
	app := newTestApp(f, "u1")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/orders/cheap/pay/wallet", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Order          Order `json:"order"`
		Enrolled       int   `json:"enrolled"`
		AlreadySettled bool  `json:"already_settled"`
		Transaction    struct {
			BalanceAfter string `json:"balance_after"`
		} `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, StatusCompleted, body.Order.PaymentStatus)
	assert.Equal(t, 1, body.Enrolled)
	assert.Equal(t, "5000", body.Transaction.BalanceAfter)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/orders/cheap/pay/wallet", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/orders/pricey/pay/wallet", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/orders/nope/pay/wallet", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerPayWithWalletForeignOrder(t *testing.T) {
	f := newFixture()
	f.seedOrder("o1", "u1", 5_000, "go-101")
	app := newTestApp(f, "intruder")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/orders/o1/pay/wallet", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandlerRefundPendingOrderConflicts(t *testing.T) {
	f := newFixture()
	f.seedOrder("o1", "u1", 5_000, "go-101")
	app := newTestApp(f, "admin")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/orders/o1/refund", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
