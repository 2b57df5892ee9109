package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dryclean/internal/auth"
	"dryclean/internal/errs"
	"dryclean/internal/models"
	"dryclean/internal/payment"
	"dryclean/internal/payment/gateway"
	"dryclean/internal/utils"
)

type Handler struct {
	Payments *payment.PaymentService
	Webhooks *payment.WebhookHandler
	Razorpay payment.RazorpayVerifier
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/payments", h.CreatePayment)
	r.Get("/payments/{paymentId}", h.GetPayment)
	r.Get("/payments/{paymentId}/transactions", h.ListTransactions)
	r.Post("/payments/{paymentId}/verify", h.VerifyPayment)
	r.Post("/payments/razorpay/callback", h.RazorpayCallback)
	r.Get("/orders/{orderId}/payments", h.ListOrderPayments)

	r.Post("/payment-methods", h.SaveMethod)
	r.Get("/payment-methods", h.ListMethods)
	r.Delete("/payment-methods/{methodId}", h.RemoveMethod)
}

// RegisterStaffRoutes mounts refund and COD settlement endpoints.
func (h *Handler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/refunds", h.CreateRefund)
	r.Post("/refunds/{refundId}/process", h.ProcessRefund)
	r.Get("/payments/{paymentId}/refunds", h.ListRefunds)
	r.Post("/payments/{paymentId}/confirm-cod", h.ConfirmCOD)
}

// RegisterWebhookRoutes mounts the unauthenticated gateway callbacks.
func (h *Handler) RegisterWebhookRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.StripeWebhook)
	r.Post("/webhooks/razorpay", h.RazorpayWebhook)
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, errs.HTTPStatus(err), utils.ErrorResponse(message, err.Error()))
}

// ---------------- PAYMENTS ----------------

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.Payments.CreatePayment(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, "Could not create payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Payment created", resp))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payments.GetPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		writeError(w, "Payment not found", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment retrieved", p))
}

func (h *Handler) ListOrderPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Payments.PaymentsByOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, "Could not list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payments retrieved", payments))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.Payments.Transactions(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		writeError(w, "Could not list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Transactions retrieved", txns))
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payments.Verify(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		writeError(w, "Could not verify payment", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment verified", p))
}

// RazorpayCallback handles the browser checkout callback, which carries a
// signature over order_id|payment_id.
func (h *Handler) RazorpayCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RazorpayOrderID   string `json:"razorpay_order_id"`
		RazorpayPaymentID string `json:"razorpay_payment_id"`
		RazorpaySignature string `json:"razorpay_signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if h.Razorpay == nil || !h.Razorpay.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		http.Error(w, "Invalid payment signature", http.StatusBadRequest)
		return
	}

	p, err := h.Payments.Confirm(r.Context(), req.RazorpayOrderID, &gateway.Result{
		TransactionID: req.RazorpayPaymentID,
		Succeeded:     true,
	})
	if err != nil {
		writeError(w, "Could not confirm payment", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment confirmed", p))
}

func (h *Handler) ConfirmCOD(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payments.ConfirmCOD(r.Context(), chi.URLParam(r, "paymentId"), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, "Could not confirm cash payment", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Cash payment confirmed", p))
}

// ---------------- REFUNDS ----------------

func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	refund, err := h.Payments.CreateRefund(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, "Could not create refund", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Refund created", refund))
}

func (h *Handler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	refund, err := h.Payments.ProcessRefund(r.Context(), chi.URLParam(r, "refundId"))
	if err != nil {
		writeError(w, "Could not process refund", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Refund processed", refund))
}

func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.Payments.RefundsByPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		writeError(w, "Could not list refunds", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Refunds retrieved", refunds))
}

// ---------------- SAVED METHODS ----------------

func (h *Handler) SaveMethod(w http.ResponseWriter, r *http.Request) {
	var req models.SavePaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	method, err := h.Payments.SaveMethod(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, "Could not save payment method", err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Payment method saved", method))
}

func (h *Handler) ListMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.Payments.ListMethods(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, "Could not list payment methods", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment methods retrieved", methods))
}

func (h *Handler) RemoveMethod(w http.ResponseWriter, r *http.Request) {
	if err := h.Payments.RemoveMethod(r.Context(), chi.URLParam(r, "methodId"), auth.UserID(r.Context())); err != nil {
		writeError(w, "Could not remove payment method", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment method removed", nil))
}

// ---------------- WEBHOOKS ----------------

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Webhooks.HandleStripeWebhook(r); err != nil {
		writeError(w, "Webhook processing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Webhook processed", nil))
}

func (h *Handler) RazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Webhooks.HandleRazorpayWebhook(r); err != nil {
		writeError(w, "Webhook processing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Webhook processed", nil))
}
