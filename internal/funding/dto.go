package funding

import (
	"github.com/shopspring/decimal"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
)

// DepositRequest asks for a gateway top-up of the caller's wallet.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TopUpRequest asks for a direct credit on non-production deployments.
type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TopUpResponse carries the ledger entry written by a test top-up.
type TopUpResponse struct {
	Transaction ledger.Transaction `json:"transaction"`
	Balance     decimal.Decimal    `json:"balance"`
}
