package gateway

import (
	"context"
	"math"

	"dryclean/internal/models"
)

// minorUnits converts a rupee/dollar amount to the smallest currency unit.
// Rounding matters: 19.99 has no exact float representation and truncation
// would turn it into 1998 paise.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Intent is what a gateway hands back when a payment attempt is opened.
// ClientSecret goes to the client app to complete the flow; GatewayOrderID
// is the reference webhooks later arrive under.
type Intent struct {
	GatewayOrderID string
	ClientSecret   string
	Raw            string
}

// Result is one gateway verdict on a payment, either pulled (verify) or
// pushed (webhook). TransactionID is the gateway-side transaction id used
// for replay deduplication.
type Result struct {
	TransactionID string
	Succeeded     bool
	Raw           string
	ErrorCode     string
	ErrorMessage  string
	GatewayFee    float64
}

type RefundResult struct {
	GatewayRefundID string
	Succeeded       bool
	Raw             string
}

// Gateway abstracts one payment provider. Implementations wrap provider
// failures in *errs.GatewayError.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, payment *models.Payment) (*Intent, error)
	FetchStatus(ctx context.Context, payment *models.Payment) (*Result, error)
	Refund(ctx context.Context, payment *models.Payment, refund *models.Refund) (*RefundResult, error)
}

// Registry resolves a gateway by payment method name.
type Registry map[string]Gateway

func (r Registry) Get(method string) (Gateway, bool) {
	gw, ok := r[method]
	return gw, ok
}
