package wallet

import (
	"time"

	"github.com/learnhub/learnhub-wallet/internal/ledger"
)

// Overview is the caller's wallet together with one page of its history.
type Overview struct {
	Wallet       ledger.Wallet        `json:"wallet"`
	Transactions []ledger.Transaction `json:"transactions"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
	AsOf         time.Time            `json:"as_of"`
}
