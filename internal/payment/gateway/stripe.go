package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"dryclean/internal/errs"
	"dryclean/internal/logger"
	"dryclean/internal/models"
)

// StripeGateway drives card payments through Stripe payment intents.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key not configured")
	}

	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{client: sc, log: log}, nil
}

func (g *StripeGateway) Name() string {
	return models.MethodStripe
}

func stripeError(err error) *errs.GatewayError {
	gwErr := &errs.GatewayError{
		Gateway: models.MethodStripe,
		Message: err.Error(),
		Err:     err,
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		gwErr.Code = string(stripeErr.Code)
		gwErr.Message = stripeErr.Msg
		if raw, marshalErr := json.Marshal(stripeErr); marshalErr == nil {
			gwErr.Raw = string(raw)
		}
	}
	return gwErr
}

// CreateIntent opens a manual-capture payment intent for the amount. The
// amount is converted to the smallest currency unit.
func (g *StripeGateway) CreateIntent(ctx context.Context, payment *models.Payment) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(payment.Amount)),
		Currency: stripe.String(payment.Currency),
		Metadata: map[string]string{
			"payment_id": payment.PaymentID,
			"order_id":   payment.OrderID,
		},
		PaymentMethodTypes: []*string{stripe.String("card")},
	}
	params.Context = ctx

	g.log.Info("STRIPE", fmt.Sprintf("Creating payment intent for %s, amount %.2f %s", payment.PaymentID, payment.Amount, payment.Currency))
	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return nil, stripeError(err)
	}

	raw, _ := json.Marshal(map[string]interface{}{"id": pi.ID, "status": pi.Status})
	return &Intent{
		GatewayOrderID: pi.ID,
		ClientSecret:   pi.ClientSecret,
		Raw:            string(raw),
	}, nil
}

// FetchStatus pulls the intent and reduces it to a Result.
func (g *StripeGateway) FetchStatus(ctx context.Context, payment *models.Payment) (*Result, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Get(payment.GatewayOrderID, params)
	if err != nil {
		return nil, stripeError(err)
	}

	raw, _ := json.Marshal(map[string]interface{}{"id": pi.ID, "status": pi.Status})
	result := &Result{
		TransactionID: pi.ID,
		Raw:           string(raw),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Succeeded = true
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation, stripe.PaymentIntentStatusRequiresPaymentMethod:
		result.ErrorCode = "payment_incomplete"
		result.ErrorMessage = fmt.Sprintf("payment intent is %s", pi.Status)
	default:
		result.ErrorCode = "payment_failed"
		result.ErrorMessage = fmt.Sprintf("payment intent is %s", pi.Status)
	}
	if pi.LastPaymentError != nil {
		result.ErrorCode = string(pi.LastPaymentError.Code)
		result.ErrorMessage = pi.LastPaymentError.Msg
	}
	return result, nil
}

func (g *StripeGateway) Refund(ctx context.Context, payment *models.Payment, refund *models.Refund) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(payment.GatewayOrderID),
		Amount:        stripe.Int64(minorUnits(refund.Amount)),
		Metadata: map[string]string{
			"refund_id":  refund.ID,
			"payment_id": payment.PaymentID,
		},
	}
	params.Context = ctx

	g.log.Info("STRIPE", fmt.Sprintf("Refunding %.2f on intent %s", refund.Amount, payment.GatewayOrderID))
	r, err := g.client.Refunds.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Refund failed: %v", err))
		return nil, stripeError(err)
	}

	raw, _ := json.Marshal(map[string]interface{}{"id": r.ID, "status": r.Status})
	return &RefundResult{
		GatewayRefundID: r.ID,
		Succeeded:       r.Status == stripe.RefundStatusSucceeded || r.Status == stripe.RefundStatusPending,
		Raw:             string(raw),
	}, nil
}
