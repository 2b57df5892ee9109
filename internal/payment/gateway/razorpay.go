package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dryclean/internal/errs"
	"dryclean/internal/logger"
	"dryclean/internal/models"
)

// RazorpayGateway drives UPI and regional card payments through the
// Razorpay orders API. There is no official Go SDK in use here; the REST
// surface is small enough to call directly.
type RazorpayGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
	log           *logger.Logger
}

func NewRazorpayGateway(keyID, keySecret, webhookSecret, baseURL string, log *logger.Logger) (*RazorpayGateway, error) {
	if keyID == "" || keySecret == "" {
		return nil, fmt.Errorf("razorpay credentials not configured")
	}
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	return &RazorpayGateway{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
		log:           log,
	}, nil
}

func (g *RazorpayGateway) Name() string {
	return models.MethodRazorpay
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// call performs one authenticated API request and decodes the response
// into out. Non-2xx responses become *errs.GatewayError.
func (g *RazorpayGateway) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &errs.GatewayError{
			Gateway: models.MethodRazorpay,
			Message: err.Error(),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gwErr := &errs.GatewayError{
			Gateway: models.MethodRazorpay,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Raw:     string(respBody),
		}
		var apiErr razorpayError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Code != "" {
			gwErr.Code = apiErr.Error.Code
			gwErr.Message = apiErr.Error.Description
		}
		g.log.Error("RAZORPAY", fmt.Sprintf("%s %s failed: %s", method, path, gwErr.Message))
		return gwErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode razorpay response: %w", err)
		}
	}
	return nil
}

type razorpayOrder struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type razorpayPayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Fee         int64  `json:"fee"`
	ErrorCode   string `json:"error_code"`
	ErrorReason string `json:"error_description"`
}

type razorpayPaymentList struct {
	Items []razorpayPayment `json:"items"`
}

type razorpayRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateIntent opens a Razorpay order. Amounts are sent in paise.
func (g *RazorpayGateway) CreateIntent(ctx context.Context, payment *models.Payment) (*Intent, error) {
	body := map[string]interface{}{
		"amount":   minorUnits(payment.Amount),
		"currency": payment.Currency,
		"receipt":  payment.PaymentID,
		"notes": map[string]string{
			"payment_id": payment.PaymentID,
			"order_id":   payment.OrderID,
		},
	}

	g.log.Info("RAZORPAY", fmt.Sprintf("Creating order for %s, amount %.2f %s", payment.PaymentID, payment.Amount, payment.Currency))
	var order razorpayOrder
	if err := g.call(ctx, http.MethodPost, "/v1/orders", body, &order); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(order)
	return &Intent{
		GatewayOrderID: order.ID,
		Raw:            string(raw),
	}, nil
}

// FetchStatus lists the payments captured against the gateway order and
// reduces the newest one to a Result.
func (g *RazorpayGateway) FetchStatus(ctx context.Context, payment *models.Payment) (*Result, error) {
	var list razorpayPaymentList
	path := fmt.Sprintf("/v1/orders/%s/payments", payment.GatewayOrderID)
	if err := g.call(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	if len(list.Items) == 0 {
		return &Result{
			TransactionID: payment.GatewayOrderID,
			ErrorCode:     "payment_incomplete",
			ErrorMessage:  "no payment captured for order yet",
		}, nil
	}

	latest := list.Items[len(list.Items)-1]
	raw, _ := json.Marshal(latest)
	return &Result{
		TransactionID: latest.ID,
		Succeeded:     latest.Status == "captured",
		Raw:           string(raw),
		ErrorCode:     latest.ErrorCode,
		ErrorMessage:  latest.ErrorReason,
		GatewayFee:    float64(latest.Fee) / 100.0,
	}, nil
}

func (g *RazorpayGateway) Refund(ctx context.Context, payment *models.Payment, refund *models.Refund) (*RefundResult, error) {
	body := map[string]interface{}{
		"amount": minorUnits(refund.Amount),
		"notes": map[string]string{
			"refund_id": refund.ID,
			"reason":    refund.Reason,
		},
	}

	g.log.Info("RAZORPAY", fmt.Sprintf("Refunding %.2f on payment %s", refund.Amount, payment.GatewayPaymentID))
	var r razorpayRefund
	path := fmt.Sprintf("/v1/payments/%s/refund", payment.GatewayPaymentID)
	if err := g.call(ctx, http.MethodPost, path, body, &r); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(r)
	return &RefundResult{
		GatewayRefundID: r.ID,
		Succeeded:       r.Status == "processed" || r.Status == "pending",
		Raw:             string(raw),
	}, nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature HMAC over the raw
// webhook body.
func (g *RazorpayGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyPaymentSignature checks the checkout callback signature
// (order_id|payment_id signed with the key secret).
func (g *RazorpayGateway) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
