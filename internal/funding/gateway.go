package funding

import (
	"context"

	"github.com/learnhub/learnhub-wallet/internal/payments"
)

// Initiator starts a payment on the external gateway. payments.Service satisfies it.
type Initiator interface {
	Initiate(ctx context.Context, in payments.Initiation) (payments.Checkout, error)
}
