package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func pageFromQuery(c *fiber.Ctx) ledger.Page {
	return ledger.Page{
		Limit:  c.QueryInt("limit", ledger.DefaultPageSize),
		Offset: c.QueryInt("offset", 0),
	}
}

// Get returns the authenticated user's wallet and its most recent transactions.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	overview, err := h.service.Overview(c.UserContext(), uid, pageFromQuery(c))
	if err != nil {
		if errors.Is(err, ErrMissingUser) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, "could not load wallet")
	}
	return c.Status(http.StatusOK).JSON(overview)
}

// Transactions returns a page of the authenticated user's history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	entries, page, err := h.service.Transactions(c.UserContext(), uid, pageFromQuery(c))
	if err != nil {
		if errors.Is(err, ErrMissingUser) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, "could not load transactions")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transactions": entries,
		"limit":        page.Limit,
		"offset":       page.Offset,
	})
}
