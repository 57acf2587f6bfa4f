package payments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/learnhub/learnhub-wallet/internal/logging"
	"github.com/learnhub/learnhub-wallet/internal/momo"
	"github.com/learnhub/learnhub-wallet/internal/settlement"
)

const notificationTimeout = 15 * time.Second

// Handler exposes gateway payment endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{service: service, logger: logger}
}

// IPN receives the gateway's server-to-server notification. Bad signatures get a
// 400; everything else is acknowledged with 200 so the gateway stops retrying.
func (h *Handler) IPN(c *fiber.Ctx) error {
	var n momo.Notification
	if err := c.BodyParser(&n); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid notification payload")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), notificationTimeout)
	defer cancel()

	res, err := h.service.HandleNotification(ctx, n, settlement.SourceIPN)
	if err != nil {
		if errors.Is(err, momo.ErrInvalidSignature) {
			h.logger.Warn("ipn signature mismatch", "gateway_order_id", n.OrderID, "ip", c.IP())
			return fiber.NewError(http.StatusBadRequest, "invalid signature")
		}
		h.logger.Error("ipn processing failed", "gateway_order_id", n.OrderID, "result_code", n.ResultCode, "error", err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "received",
		"outcome": res.Outcome,
	})
}

// Return handles the browser redirect back from the gateway. The query string is
// signed like the IPN and drives the same idempotent settlement.
func (h *Handler) Return(c *fiber.Ctx) error {
	var n momo.Notification
	if err := c.QueryParser(&n); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid redirect parameters")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), notificationTimeout)
	defer cancel()

	res, err := h.service.HandleNotification(ctx, n, settlement.SourceReturn)
	if err != nil {
		if errors.Is(err, momo.ErrInvalidSignature) {
			h.logger.Warn("return signature mismatch", "gateway_order_id", n.OrderID, "ip", c.IP())
			return fiber.NewError(http.StatusBadRequest, "invalid signature")
		}
		h.logger.Error("return processing failed", "gateway_order_id", n.OrderID, "error", err)
		return fiber.NewError(http.StatusInternalServerError, "payment could not be confirmed yet")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"gateway_order_id": n.OrderID,
		"outcome":          res.Outcome,
		"message":          momo.Describe(n.ResultCode),
	})
}

// PayOrder starts a MoMo payment for one of the caller's pending orders.
func (h *Handler) PayOrder(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	checkout, err := h.service.InitiateOrder(c.UserContext(), uid, c.Params("orderId"))
	if err != nil {
		return h.checkoutError(c, checkout, err)
	}
	return c.Status(http.StatusCreated).JSON(checkout)
}

func (h *Handler) checkoutError(c *fiber.Ctx, checkout Checkout, err error) error {
	var gwErr *momo.GatewayError
	switch {
	case errors.Is(err, momo.ErrOutcomeUnknown):
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"gateway_order_id": checkout.GatewayOrderID,
			"pending":          true,
			"message":          "payment gateway did not answer in time, check the payment status later",
		})
	case errors.As(err, &gwErr):
		return fiber.NewError(http.StatusBadGateway, momo.Describe(gwErr.Code))
	case errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, settlement.ErrOrderNotFound):
		return fiber.NewError(http.StatusNotFound, "order not found")
	case errors.Is(err, settlement.ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, "order belongs to another user")
	case errors.Is(err, settlement.ErrInvalidTransition):
		return fiber.NewError(http.StatusConflict, "order is not awaiting payment")
	default:
		h.logger.Error("payment initiation failed", "error", err)
		return fiber.NewError(http.StatusInternalServerError, "could not start payment")
	}
}
