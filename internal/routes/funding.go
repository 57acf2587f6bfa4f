package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/learnhub/learnhub-wallet/internal/funding"
)

// RegisterFundingRoutes wires wallet top-up endpoints. limiter guards gateway
// deposit initiation.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, limiter fiber.Handler) {
	r.Post("/wallet/deposit", limiter, h.Deposit)
	r.Post("/wallet/test-topup", h.TestTopUp)
}
