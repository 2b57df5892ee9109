package payment

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"dryclean/internal/errs"
	"dryclean/internal/payment/gateway"
)

// RazorpayVerifier is the slice of the razorpay gateway the webhook path
// needs.
type RazorpayVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
	VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// WebhookHandler terminates gateway callbacks and feeds verdicts into the
// payment service. Signature verification happens here; everything after
// it goes through PaymentService.Confirm and inherits its replay safety.
type WebhookHandler struct {
	Payments            *PaymentService
	StripeWebhookSecret string
	Razorpay            RazorpayVerifier
}

// HandleStripeWebhook verifies and applies one Stripe event.
func (h *WebhookHandler) HandleStripeWebhook(r *http.Request) error {
	if h.StripeWebhookSecret == "" {
		return &errs.GatewayError{
			Gateway: "stripe",
			Message: "stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read webhook payload: %v", errs.ErrValidation, err)
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.StripeWebhookSecret, opts)
	if err != nil {
		h.Payments.Logger.Error("WEBHOOK", fmt.Sprintf("Stripe signature verification failed: %v", err))
		return fmt.Errorf("%w: invalid webhook signature", errs.ErrValidation)
	}

	h.Payments.Logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return fmt.Errorf("%w: failed to unmarshal payment intent: %v", errs.ErrValidation, err)
		}

		transactionID := pi.ID
		if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
			transactionID = pi.LatestCharge.ID
		}
		result := &gateway.Result{
			TransactionID: transactionID,
			Succeeded:     event.Type == "payment_intent.succeeded",
			Raw:           string(event.Data.Raw),
		}
		if pi.LastPaymentError != nil {
			result.ErrorCode = string(pi.LastPaymentError.Code)
			result.ErrorMessage = pi.LastPaymentError.Msg
		}

		if _, err := h.Payments.Confirm(r.Context(), pi.ID, result); err != nil {
			return err
		}

	default:
		h.Payments.Logger.Info("WEBHOOK", fmt.Sprintf("Unhandled Stripe event type: %s", event.Type))
	}
	return nil
}

type razorpayWebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				Fee              int64  `json:"fee"`
				ErrorCode        string `json:"error_code"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleRazorpayWebhook verifies the HMAC header and applies one Razorpay
// event.
func (h *WebhookHandler) HandleRazorpayWebhook(r *http.Request) error {
	if h.Razorpay == nil {
		return &errs.GatewayError{
			Gateway: "razorpay",
			Message: "razorpay webhook verification is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read webhook payload: %v", errs.ErrValidation, err)
	}

	if !h.Razorpay.VerifyWebhookSignature(payload, r.Header.Get("X-Razorpay-Signature")) {
		h.Payments.Logger.Error("WEBHOOK", "Razorpay signature verification failed")
		return fmt.Errorf("%w: invalid webhook signature", errs.ErrValidation)
	}

	var event razorpayWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: failed to unmarshal webhook event: %v", errs.ErrValidation, err)
	}

	h.Payments.Logger.Info("WEBHOOK", fmt.Sprintf("Processing Razorpay webhook event: %s", event.Event))

	switch event.Event {
	case "payment.captured", "payment.failed":
		entity := event.Payload.Payment.Entity
		result := &gateway.Result{
			TransactionID: entity.ID,
			Succeeded:     event.Event == "payment.captured",
			Raw:           string(payload),
			ErrorCode:     entity.ErrorCode,
			ErrorMessage:  entity.ErrorDescription,
			GatewayFee:    float64(entity.Fee) / 100.0,
		}

		if _, err := h.Payments.Confirm(r.Context(), entity.OrderID, result); err != nil {
			return err
		}

	default:
		h.Payments.Logger.Info("WEBHOOK", fmt.Sprintf("Unhandled Razorpay event type: %s", event.Event))
	}
	return nil
}
