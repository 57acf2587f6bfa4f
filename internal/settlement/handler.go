package settlement

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
)

// Handler exposes order payment endpoints backed by the wallet.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler constructs a settlement handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

type settlementResponse struct {
	Order          Order               `json:"order"`
	Enrolled       int                 `json:"enrolled"`
	AlreadySettled bool                `json:"already_settled"`
	Transaction    *ledger.Transaction `json:"transaction,omitempty"`
}

// PayWithWallet pays a pending order from the caller's wallet.
func (h *Handler) PayWithWallet(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	res, err := h.orchestrator.PayWithWallet(c.UserContext(), uid, c.Params("orderId"))
	if err != nil {
		return toHTTPError(err)
	}
	status := http.StatusCreated
	if res.AlreadySettled {
		status = http.StatusOK
	}
	return c.Status(status).JSON(settlementResponse{
		Order:          res.Order,
		Enrolled:       res.Enrolled,
		AlreadySettled: res.AlreadySettled,
		Transaction:    res.Debit,
	})
}

// Refund returns a completed order's total to the buyer's wallet.
func (h *Handler) Refund(c *fiber.Ctx) error {
	order, err := h.orchestrator.Refund(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"order": order})
}

func toHTTPError(err error) error {
	var shortfall *ledger.InsufficientFundsError
	switch {
	case errors.As(err, &shortfall):
		return fiber.NewError(http.StatusPaymentRequired, shortfall.Error())
	case errors.Is(err, ErrOrderNotFound):
		return fiber.NewError(http.StatusNotFound, "order not found")
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, "order belongs to another user")
	case errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(http.StatusConflict, "order cannot be processed in its current status")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, "could not process order payment")
	}
}
