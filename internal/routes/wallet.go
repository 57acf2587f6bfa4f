package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/learnhub/learnhub-wallet/internal/wallet"
)

// RegisterWalletRoutes wires the wallet read endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet", h.Get)
	r.Get("/wallet/transactions", h.Transactions)
}
