package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dryclean/internal/errs"
	"dryclean/internal/logger"
	"dryclean/internal/models"
	"dryclean/internal/payment/gateway"
	"dryclean/internal/payment/storage"
	"dryclean/internal/pricing"
	"dryclean/internal/utils"
)

// OrderUpdater is the slice of the order side the payment service needs:
// reading an order for amount checks and flipping its payment status.
type OrderUpdater interface {
	OrderByID(ctx context.Context, id string) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID, method string) error
	MarkRefunded(ctx context.Context, orderID string) error
}

// Notifier mirrors order.Notifier; implementations never block.
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent)
}

type PaymentService struct {
	Store    storage.Store
	Gateways gateway.Registry
	Orders   OrderUpdater
	Notify   Notifier
	Logger   *logger.Logger
}

func NewPaymentService(store storage.Store, gateways gateway.Registry, orders OrderUpdater, notify Notifier, log *logger.Logger) *PaymentService {
	return &PaymentService{Store: store, Gateways: gateways, Orders: orders, Notify: notify, Logger: log}
}

// ---------------- CREATION ----------------

// CreatePayment opens a payment attempt for an order. The amount must
// equal the order total exactly; the payment row is persisted before the
// gateway is called so a gateway crash leaves an auditable failed attempt.
func (s *PaymentService) CreatePayment(ctx context.Context, userID string, req models.CreatePaymentRequest) (*models.CreatePaymentResponse, error) {
	if !models.ValidPaymentMethod(req.Method) {
		return nil, fmt.Errorf("%w: unknown payment method %q", errs.ErrValidation, req.Method)
	}

	order, err := s.Orders.OrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == models.OrderPaymentPaid {
		return nil, fmt.Errorf("%w: order %s is already paid", errs.ErrConflict, req.OrderID)
	}
	if order.Status == models.OrderCancelled {
		return nil, fmt.Errorf("%w: order %s is cancelled", errs.ErrInvalidTransition, req.OrderID)
	}
	if pricing.RoundMoney(req.Amount) != order.TotalAmount {
		return nil, fmt.Errorf("%w: amount %.2f does not match order total %.2f",
			errs.ErrValidation, req.Amount, order.TotalAmount)
	}

	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}

	now := time.Now()
	payment := &models.Payment{
		PaymentID: utils.GeneratePaymentID(),
		OrderID:   req.OrderID,
		UserID:    userID,
		Method:    req.Method,
		Amount:    order.TotalAmount,
		Currency:  currency,
		Status:    models.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.SavePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}
	s.Logger.LogPayment("CREATE", payment.PaymentID, fmt.Sprintf("order %s, %.2f %s via %s", req.OrderID, payment.Amount, currency, req.Method))

	resp := &models.CreatePaymentResponse{Payment: payment}

	// Cash on delivery has no gateway leg; the attempt stays pending
	// until staff confirm collection.
	gw, ok := s.Gateways.Get(req.Method)
	if !ok {
		return resp, nil
	}

	intent, err := gw.CreateIntent(ctx, payment)
	if err != nil {
		payment.Status = models.PaymentFailed
		payment.UpdatedAt = time.Now()
		if gwErr, ok := err.(*errs.GatewayError); ok {
			payment.ErrorCode = gwErr.Code
			payment.ErrorMessage = gwErr.Message
		} else {
			payment.ErrorMessage = err.Error()
		}
		if updateErr := s.Store.UpdatePayment(payment); updateErr != nil {
			s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to record gateway failure for %s: %v", payment.PaymentID, updateErr))
		}
		return nil, err
	}

	payment.GatewayOrderID = intent.GatewayOrderID
	payment.Status = models.PaymentProcessing
	payment.UpdatedAt = time.Now()
	if err := s.Store.UpdatePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to store gateway reference: %w", err)
	}

	resp.GatewayOrderID = intent.GatewayOrderID
	resp.ClientSecret = intent.ClientSecret
	return resp, nil
}

// ---------------- CONFIRMATION ----------------

// Confirm applies a gateway verdict to the payment found under
// gatewayOrderID. It is idempotent: a result whose transaction id was
// already recorded is a no-op, which is what makes webhook replays safe.
// This is the only code path that marks an order paid.
func (s *PaymentService) Confirm(ctx context.Context, gatewayOrderID string, result *gateway.Result) (*models.Payment, error) {
	payment, err := s.Store.GetPaymentByGatewayOrderID(gatewayOrderID)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, payment, result)
}

func (s *PaymentService) confirm(ctx context.Context, payment *models.Payment, result *gateway.Result) (*models.Payment, error) {
	if result.TransactionID == "" {
		return nil, fmt.Errorf("%w: gateway result has no transaction id", errs.ErrValidation)
	}

	seen, err := s.Store.TransactionExists(result.TransactionID)
	if err != nil {
		return nil, err
	}
	if seen {
		s.Logger.LogPayment("REPLAY", payment.PaymentID, fmt.Sprintf("transaction %s already recorded", result.TransactionID))
		return payment, nil
	}
	if payment.Status == models.PaymentCompleted || payment.Status == models.PaymentRefunded {
		return payment, nil
	}

	now := time.Now()
	txn := &models.PaymentTransaction{
		ID:              uuid.NewString(),
		PaymentID:       payment.PaymentID,
		TransactionID:   result.TransactionID,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		GatewayResponse: result.Raw,
		GatewayFee:      result.GatewayFee,
		CreatedAt:       now,
	}

	if result.Succeeded {
		payment.Status = models.PaymentCompleted
		payment.GatewayPaymentID = result.TransactionID
		payment.CompletedAt = &now
		payment.ErrorCode = ""
		payment.ErrorMessage = ""
		txn.Status = models.PaymentCompleted
	} else {
		payment.Status = models.PaymentFailed
		payment.ErrorCode = result.ErrorCode
		payment.ErrorMessage = result.ErrorMessage
		txn.Status = models.PaymentFailed
	}
	payment.UpdatedAt = now

	if err := s.Store.UpdatePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	if err := s.Store.SaveTransaction(txn); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	if result.Succeeded {
		if err := s.Orders.MarkPaid(ctx, payment.OrderID, payment.Method); err != nil {
			s.Logger.Error("PAYMENT", fmt.Sprintf("Payment %s completed but order %s not marked paid: %v", payment.PaymentID, payment.OrderID, err))
		}
		s.Logger.LogPayment("COMPLETED", payment.PaymentID, fmt.Sprintf("transaction %s", result.TransactionID))
		s.Notify.Notify(ctx, models.NotificationEvent{
			UserID:    payment.UserID,
			Channel:   models.ChannelEmail,
			Title:     "Payment received",
			Body:      fmt.Sprintf("We received your payment of %.2f %s.", payment.Amount, payment.Currency),
			OrderID:   payment.OrderID,
			Timestamp: time.Now(),
		})
	} else {
		// The failure lives on the payment attempt and its transaction.
		// The order keeps payment_status pending so a fresh payment can
		// be opened for it.
		s.Logger.LogPayment("FAILED", payment.PaymentID, result.ErrorMessage)
	}

	return payment, nil
}

// Verify pulls the current status from the gateway and reconciles it.
// Recovery path for missed webhooks.
func (s *PaymentService) Verify(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.Store.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentCompleted || payment.Status == models.PaymentRefunded {
		return payment, nil
	}

	gw, ok := s.Gateways.Get(payment.Method)
	if !ok {
		return nil, fmt.Errorf("%w: payment method %s cannot be verified against a gateway", errs.ErrValidation, payment.Method)
	}

	result, err := gw.FetchStatus(ctx, payment)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded && result.ErrorCode == "payment_incomplete" {
		// Still in flight at the gateway; nothing to reconcile yet.
		return payment, nil
	}
	return s.confirm(ctx, payment, result)
}

// ConfirmCOD settles a cash-on-delivery payment once staff collect the
// money at the door.
func (s *PaymentService) ConfirmCOD(ctx context.Context, paymentID, actorID string) (*models.Payment, error) {
	payment, err := s.Store.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Method != models.MethodCOD {
		return nil, fmt.Errorf("%w: payment %s is not cash on delivery", errs.ErrValidation, paymentID)
	}

	return s.confirm(ctx, payment, &gateway.Result{
		TransactionID: utils.GenerateTransactionID(),
		Succeeded:     true,
		Raw:           fmt.Sprintf(`{"collected_by":%q}`, actorID),
	})
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.Store.GetPayment(paymentID)
}

func (s *PaymentService) PaymentsByOrder(ctx context.Context, orderID string) ([]*models.Payment, error) {
	return s.Store.ListPaymentsByOrder(orderID)
}

func (s *PaymentService) Transactions(ctx context.Context, paymentID string) ([]*models.PaymentTransaction, error) {
	if _, err := s.Store.GetPayment(paymentID); err != nil {
		return nil, err
	}
	return s.Store.ListTransactionsByPayment(paymentID)
}

// ---------------- REFUNDS ----------------

// CreateRefund opens a refund against a completed payment. The amount may
// not exceed what is left after earlier refunds.
func (s *PaymentService) CreateRefund(ctx context.Context, req models.CreateRefundRequest, processedBy string) (*models.Refund, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", errs.ErrValidation)
	}

	payment, err := s.Store.GetPayment(req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentCompleted {
		return nil, fmt.Errorf("%w: payment %s is %s, only completed payments can be refunded",
			errs.ErrInvalidTransition, req.PaymentID, payment.Status)
	}

	refunded, err := s.Store.CompletedRefundTotal(req.PaymentID)
	if err != nil {
		return nil, err
	}
	remaining := pricing.RoundMoney(payment.Amount - refunded)
	if pricing.RoundMoney(req.Amount) > remaining {
		return nil, fmt.Errorf("%w: refund %.2f exceeds remaining balance %.2f",
			errs.ErrInvariant, req.Amount, remaining)
	}

	now := time.Now()
	refund := &models.Refund{
		ID:          utils.GenerateRefundID(),
		PaymentID:   req.PaymentID,
		Amount:      pricing.RoundMoney(req.Amount),
		Reason:      req.Reason,
		Status:      models.RefundPending,
		ProcessedBy: processedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.SaveRefund(refund); err != nil {
		return nil, fmt.Errorf("failed to save refund: %w", err)
	}
	s.Logger.LogPayment("REFUND_CREATE", payment.PaymentID, fmt.Sprintf("refund %s for %.2f", refund.ID, refund.Amount))
	return refund, nil
}

// ProcessRefund pushes a pending refund through the gateway. When the
// refunds now cover the full payment amount, the payment and the order
// cascade to refunded.
func (s *PaymentService) ProcessRefund(ctx context.Context, refundID string) (*models.Refund, error) {
	refund, err := s.Store.GetRefund(refundID)
	if err != nil {
		return nil, err
	}
	if refund.Status != models.RefundPending {
		return nil, fmt.Errorf("%w: refund %s is %s", errs.ErrInvalidTransition, refundID, refund.Status)
	}

	payment, err := s.Store.GetPayment(refund.PaymentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	gw, hasGateway := s.Gateways.Get(payment.Method)
	if hasGateway {
		result, err := gw.Refund(ctx, payment, refund)
		if err != nil {
			refund.Status = models.RefundFailed
			refund.UpdatedAt = now
			if gwErr, ok := err.(*errs.GatewayError); ok {
				refund.GatewayResponse = gwErr.Raw
			}
			if updateErr := s.Store.UpdateRefund(refund); updateErr != nil {
				s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to record refund failure %s: %v", refundID, updateErr))
			}
			return nil, err
		}
		refund.GatewayRefundID = result.GatewayRefundID
		refund.GatewayResponse = result.Raw
	}

	refund.Status = models.RefundCompleted
	refund.CompletedAt = &now
	refund.UpdatedAt = now
	if err := s.Store.UpdateRefund(refund); err != nil {
		return nil, fmt.Errorf("failed to update refund: %w", err)
	}
	s.Logger.LogPayment("REFUND_COMPLETED", payment.PaymentID, fmt.Sprintf("refund %s for %.2f", refund.ID, refund.Amount))

	refunded, err := s.Store.CompletedRefundTotal(payment.PaymentID)
	if err != nil {
		return nil, err
	}
	if pricing.RoundMoney(refunded) >= payment.Amount {
		payment.Status = models.PaymentRefunded
		payment.UpdatedAt = time.Now()
		if err := s.Store.UpdatePayment(payment); err != nil {
			return nil, fmt.Errorf("failed to mark payment refunded: %w", err)
		}
		if err := s.Orders.MarkRefunded(ctx, payment.OrderID); err != nil {
			s.Logger.Error("PAYMENT", fmt.Sprintf("Payment %s refunded but order %s not cascaded: %v", payment.PaymentID, payment.OrderID, err))
		}
	}

	s.Notify.Notify(ctx, models.NotificationEvent{
		UserID:    payment.UserID,
		Channel:   models.ChannelEmail,
		Title:     "Refund processed",
		Body:      fmt.Sprintf("A refund of %.2f %s has been processed.", refund.Amount, payment.Currency),
		OrderID:   payment.OrderID,
		Timestamp: time.Now(),
	})

	return refund, nil
}

func (s *PaymentService) RefundsByPayment(ctx context.Context, paymentID string) ([]*models.Refund, error) {
	if _, err := s.Store.GetPayment(paymentID); err != nil {
		return nil, err
	}
	return s.Store.ListRefundsByPayment(paymentID)
}

// ---------------- SAVED METHODS ----------------

func (s *PaymentService) SaveMethod(ctx context.Context, userID string, req models.SavePaymentMethodRequest) (*models.SavedPaymentMethod, error) {
	if !models.ValidPaymentMethod(req.Method) {
		return nil, fmt.Errorf("%w: unknown payment method %q", errs.ErrValidation, req.Method)
	}
	if req.CardLast4 != "" && len(req.CardLast4) != 4 {
		return nil, fmt.Errorf("%w: card_last4 must be four digits", errs.ErrValidation)
	}

	if req.IsDefault {
		if err := s.Store.ClearDefaultMethods(userID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	method := &models.SavedPaymentMethod{
		ID:              uuid.NewString(),
		UserID:          userID,
		Method:          req.Method,
		CardLast4:       req.CardLast4,
		CardBrand:       req.CardBrand,
		CardExpMonth:    req.CardExpMonth,
		CardExpYear:     req.CardExpYear,
		GatewayMethodID: req.GatewayMethodID,
		IsDefault:       req.IsDefault,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Store.SaveMethod(method); err != nil {
		return nil, fmt.Errorf("failed to save payment method: %w", err)
	}
	return method, nil
}

func (s *PaymentService) ListMethods(ctx context.Context, userID string) ([]*models.SavedPaymentMethod, error) {
	return s.Store.ListMethodsByUser(userID)
}

func (s *PaymentService) RemoveMethod(ctx context.Context, id, userID string) error {
	return s.Store.DeactivateMethod(id, userID)
}
