package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that funds a wallet through a regular deposit, so the
// seeded balance stays consistent with the log.
func SeedBalance(s Store, userID string, amount int64) {
	_, _ = s.UpdateBalance(context.Background(), Mutation{
		UserID:      userID,
		Amount:      decimal.NewFromInt(amount),
		Type:        TypeDeposit,
		ReferenceID: "seed-" + uuid.NewString(),
		Description: "seed",
	})
}
