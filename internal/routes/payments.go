package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/learnhub/learnhub-wallet/internal/auth"
	"github.com/learnhub/learnhub-wallet/internal/middleware"
	"github.com/learnhub/learnhub-wallet/internal/payments"
	"github.com/learnhub/learnhub-wallet/internal/settlement"
)

// RegisterGatewayRoutes wires the MoMo callbacks.
func RegisterGatewayRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/payments/momo/ipn", h.IPN)
	r.Get("/payments/momo/return", h.Return)
}

// RegisterOrderRoutes wires order payment and refund endpoints.
func RegisterOrderRoutes(r fiber.Router, orders *settlement.Handler, gateway *payments.Handler) {
	r.Post("/orders/:orderId/pay/wallet", orders.PayWithWallet)
	r.Post("/orders/:orderId/pay/momo", gateway.PayOrder)
	r.Post("/orders/:orderId/refund", middleware.RequireRole(auth.RoleAdmin), orders.Refund)
}
