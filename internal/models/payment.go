package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

const (
	MethodStripe   = "stripe"
	MethodRazorpay = "razorpay"
	MethodPaypal   = "paypal"
	MethodCOD      = "cod"
)

func ValidPaymentMethod(m string) bool {
	switch m {
	case MethodStripe, MethodRazorpay, MethodPaypal, MethodCOD:
		return true
	}
	return false
}

// Payment is one attempt to pay an order. Retries create new Payment rows
// against the same order.
type Payment struct {
	PaymentID string        `json:"payment_id"`
	OrderID   string        `json:"order_id"`
	UserID    string        `json:"user_id"`
	Method    string        `json:"payment_method"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Status    PaymentStatus `json:"status"`

	// Gateway-specific identifiers
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	GatewaySignature string `json:"gateway_signature,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PaymentTransaction is an append-only record of one gateway response.
// TransactionID is the gateway transaction id and is unique, which is what
// makes webhook replays no-ops.
type PaymentTransaction struct {
	ID              string        `json:"id"`
	PaymentID       string        `json:"payment_id"`
	TransactionID   string        `json:"transaction_id"`
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency"`
	Status          PaymentStatus `json:"status"`
	GatewayResponse string        `json:"gateway_response,omitempty"`
	GatewayFee      float64       `json:"gateway_fee"`
	CreatedAt       time.Time     `json:"created_at"`
}

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
)

type Refund struct {
	ID              string       `json:"id"`
	PaymentID       string       `json:"payment_id"`
	Amount          float64      `json:"amount"`
	Reason          string       `json:"reason"`
	Status          RefundStatus `json:"status"`
	GatewayRefundID string       `json:"gateway_refund_id,omitempty"`
	GatewayResponse string       `json:"gateway_response,omitempty"`
	ProcessedBy     string       `json:"processed_by,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// SavedPaymentMethod is a stored instrument. Card data is fingerprint only,
// never the raw number. At most one default per user.
type SavedPaymentMethod struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Method       string `json:"payment_method"`
	CardLast4    string `json:"card_last4,omitempty"`
	CardBrand    string `json:"card_brand,omitempty"`
	CardExpMonth int    `json:"card_exp_month,omitempty"`
	CardExpYear  int    `json:"card_exp_year,omitempty"`

	GatewayMethodID string `json:"gateway_payment_method_id,omitempty"`
	IsDefault       bool   `json:"is_default"`
	IsActive        bool   `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ---------------- PAYMENT DTOs ----------------

type CreatePaymentRequest struct {
	OrderID  string  `json:"order_id"`
	Method   string  `json:"payment_method"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

type CreatePaymentResponse struct {
	Payment        *Payment `json:"payment"`
	GatewayOrderID string   `json:"gateway_order_id,omitempty"`
	ClientSecret   string   `json:"client_secret,omitempty"`
}

type VerifyPaymentRequest struct {
	PaymentID string `json:"payment_id"`
}

type CreateRefundRequest struct {
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}

type SavePaymentMethodRequest struct {
	Method          string `json:"payment_method"`
	CardLast4       string `json:"card_last4,omitempty"`
	CardBrand       string `json:"card_brand,omitempty"`
	CardExpMonth    int    `json:"card_exp_month,omitempty"`
	CardExpYear     int    `json:"card_exp_year,omitempty"`
	GatewayMethodID string `json:"gateway_payment_method_id,omitempty"`
	IsDefault       bool   `json:"is_default"`
}
