package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
	"github.com/learnhub/learnhub-wallet/internal/momo"
	"github.com/learnhub/learnhub-wallet/internal/payments"
)

// Handler exposes HTTP endpoints for wallet top-ups.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Deposit starts a gateway top-up and returns where to send the user.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	checkout, err := h.service.Deposit(c.UserContext(), uid, req.Amount)
	if err != nil {
		var gwErr *momo.GatewayError
		switch {
		case errors.Is(err, momo.ErrOutcomeUnknown):
			return c.Status(http.StatusAccepted).JSON(checkout)
		case errors.As(err, &gwErr):
			return fiber.NewError(http.StatusBadGateway, momo.Describe(gwErr.Code))
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, payments.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, "could not start deposit")
		}
	}
	return c.Status(http.StatusCreated).JSON(checkout)
}

// TestTopUp credits the caller's wallet directly on non-production deployments.
func (h *Handler) TestTopUp(c *fiber.Ctx) error {
	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	entry, err := h.service.TestTopUp(c.UserContext(), uid, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrTestTopUpDisabled):
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, "could not top up wallet")
		}
	}
	return c.Status(http.StatusCreated).JSON(TopUpResponse{Transaction: entry, Balance: entry.BalanceAfter})
}
