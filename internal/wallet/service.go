package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
)

// ErrMissingUser is returned when no user id is attached to the request.
var ErrMissingUser = errors.New("user id is required")

// Service exposes the read side of a user's wallet.
type Service struct {
	wallets ledger.Store
	now     func() time.Time
}

// NewService builds a wallet service instance.
func NewService(wallets ledger.Store) *Service {
	return &Service{wallets: wallets, now: time.Now}
}

// Overview returns the wallet, creating it on first access, and the requested page
// of transactions, most recent first.
func (s *Service) Overview(ctx context.Context, userID string, page ledger.Page) (Overview, error) {
	if userID == "" {
		return Overview{}, ErrMissingUser
	}
	w, err := s.wallets.FindByUserID(ctx, userID)
	if errors.Is(err, ledger.ErrWalletNotFound) {
		w, err = s.wallets.Create(ctx, userID)
	}
	if err != nil {
		return Overview{}, err
	}

	page = page.Clamp()
	entries, err := s.wallets.Transactions(ctx, userID, page)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		Wallet:       w,
		Transactions: entries,
		Limit:        page.Limit,
		Offset:       page.Offset,
		AsOf:         s.now().UTC(),
	}, nil
}

// Transactions returns one page of history without touching the wallet row.
func (s *Service) Transactions(ctx context.Context, userID string, page ledger.Page) ([]ledger.Transaction, ledger.Page, error) {
	if userID == "" {
		return nil, ledger.Page{}, ErrMissingUser
	}
	page = page.Clamp()
	entries, err := s.wallets.Transactions(ctx, userID, page)
	return entries, page, err
}
