package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dryclean/internal/errs"
	"dryclean/internal/logger"
	"dryclean/internal/models"
	"dryclean/internal/payment"
	"dryclean/internal/payment/gateway"
)

// Mock implementations

type MockStore struct {
	mock.Mock
}

func (m *MockStore) SavePayment(p *models.Payment) error {
	args := m.Called(p)
	return args.Error(0)
}

func (m *MockStore) GetPayment(id string) (*models.Payment, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockStore) UpdatePayment(p *models.Payment) error {
	args := m.Called(p)
	return args.Error(0)
}

func (m *MockStore) GetPaymentByGatewayOrderID(gatewayOrderID string) (*models.Payment, error) {
	args := m.Called(gatewayOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockStore) ListPaymentsByOrder(orderID string) ([]*models.Payment, error) {
	args := m.Called(orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

func (m *MockStore) SaveTransaction(txn *models.PaymentTransaction) error {
	args := m.Called(txn)
	return args.Error(0)
}

func (m *MockStore) TransactionExists(transactionID string) (bool, error) {
	args := m.Called(transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ListTransactionsByPayment(paymentID string) ([]*models.PaymentTransaction, error) {
	args := m.Called(paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentTransaction), args.Error(1)
}

func (m *MockStore) SaveRefund(refund *models.Refund) error {
	args := m.Called(refund)
	return args.Error(0)
}

func (m *MockStore) GetRefund(id string) (*models.Refund, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Refund), args.Error(1)
}

func (m *MockStore) UpdateRefund(refund *models.Refund) error {
	args := m.Called(refund)
	return args.Error(0)
}

func (m *MockStore) ListRefundsByPayment(paymentID string) ([]*models.Refund, error) {
	args := m.Called(paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Refund), args.Error(1)
}

func (m *MockStore) CompletedRefundTotal(paymentID string) (float64, error) {
	args := m.Called(paymentID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockStore) SaveMethod(method *models.SavedPaymentMethod) error {
	args := m.Called(method)
	return args.Error(0)
}

func (m *MockStore) GetMethod(id string) (*models.SavedPaymentMethod, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SavedPaymentMethod), args.Error(1)
}

func (m *MockStore) ListMethodsByUser(userID string) ([]*models.SavedPaymentMethod, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SavedPaymentMethod), args.Error(1)
}

func (m *MockStore) ClearDefaultMethods(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStore) DeactivateMethod(id, userID string) error {
	args := m.Called(id, userID)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) HealthCheck() error {
	args := m.Called()
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockGateway) CreateIntent(ctx context.Context, p *models.Payment) (*gateway.Intent, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Intent), args.Error(1)
}

func (m *MockGateway) FetchStatus(ctx context.Context, p *models.Payment) (*gateway.Result, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Result), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, p *models.Payment, refund *models.Refund) (*gateway.RefundResult, error) {
	args := m.Called(ctx, p, refund)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.RefundResult), args.Error(1)
}

type MockOrderUpdater struct {
	mock.Mock
}

func (m *MockOrderUpdater) OrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderUpdater) MarkPaid(ctx context.Context, orderID, method string) error {
	args := m.Called(ctx, orderID, method)
	return args.Error(0)
}

func (m *MockOrderUpdater) MarkRefunded(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event models.NotificationEvent) {
	m.Called(ctx, event)
}

func newTestService(store *MockStore, gw *MockGateway, orders *MockOrderUpdater, notify *MockNotifier) *payment.PaymentService {
	registry := gateway.Registry{}
	if gw != nil {
		registry[models.MethodStripe] = gw
	}
	return payment.NewPaymentService(store, registry, orders, notify, logger.NewTestLogger())
}

// Tests start here

func TestCreatePayment_AmountMismatch(t *testing.T) {
	store := new(MockStore)
	orders := new(MockOrderUpdater)
	svc := newTestService(store, new(MockGateway), orders, new(MockNotifier))
	ctx := context.Background()

	orders.On("OrderByID", ctx, "order-1").Return(&models.Order{
		ID:            "order-1",
		Status:        models.OrderPending,
		PaymentStatus: models.OrderPaymentPending,
		TotalAmount:   113.00,
	}, nil)

	_, err := svc.CreatePayment(ctx, "user-1", models.CreatePaymentRequest{
		OrderID: "order-1",
		Method:  models.MethodStripe,
		Amount:  100.00,
	})

	assert.ErrorIs(t, err, errs.ErrValidation)
	store.AssertNotCalled(t, "SavePayment")
}

func TestCreatePayment_AlreadyPaid(t *testing.T) {
	store := new(MockStore)
	orders := new(MockOrderUpdater)
	svc := newTestService(store, new(MockGateway), orders, new(MockNotifier))
	ctx := context.Background()

	orders.On("OrderByID", ctx, "order-1").Return(&models.Order{
		ID:            "order-1",
		Status:        models.OrderConfirmed,
		PaymentStatus: models.OrderPaymentPaid,
		TotalAmount:   113.00,
	}, nil)

	_, err := svc.CreatePayment(ctx, "user-1", models.CreatePaymentRequest{
		OrderID: "order-1",
		Method:  models.MethodStripe,
		Amount:  113.00,
	})
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestCreatePayment_CancelledOrder(t *testing.T) {
	store := new(MockStore)
	orders := new(MockOrderUpdater)
	svc := newTestService(store, new(MockGateway), orders, new(MockNotifier))
	ctx := context.Background()

	orders.On("OrderByID", ctx, "order-1").Return(&models.Order{
		ID:            "order-1",
		Status:        models.OrderCancelled,
		PaymentStatus: models.OrderPaymentPending,
		TotalAmount:   113.00,
	}, nil)

	_, err := svc.CreatePayment(ctx, "user-1", models.CreatePaymentRequest{
		OrderID: "order-1",
		Method:  models.MethodStripe,
		Amount:  113.00,
	})
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestCreatePayment_GatewayIntent(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	orders := new(MockOrderUpdater)
	svc := newTestService(store, gw, orders, new(MockNotifier))
	ctx := context.Background()

	orders.On("OrderByID", ctx, "order-1").Return(&models.Order{
		ID:            "order-1",
		Status:        models.OrderPending,
		PaymentStatus: models.OrderPaymentPending,
		TotalAmount:   113.00,
	}, nil)
	store.On("SavePayment", mock.MatchedBy(func(p *models.Payment) bool {
		return p.Status == models.PaymentPending && p.Amount == 113.00 && p.Currency == "INR"
	})).Return(nil)
	gw.On("CreateIntent", ctx, mock.AnythingOfType("*models.Payment")).Return(&gateway.Intent{
		GatewayOrderID: "pi_123",
		ClientSecret:   "pi_123_secret",
	}, nil)
	store.On("UpdatePayment", mock.MatchedBy(func(p *models.Payment) bool {
		return p.Status == models.PaymentProcessing && p.GatewayOrderID == "pi_123"
	})).Return(nil)

	resp, err := svc.CreatePayment(ctx, "user-1", models.CreatePaymentRequest{
		OrderID: "order-1",
		Method:  models.MethodStripe,
		Amount:  113.00,
	})
	require.NoError(t, err)

	assert.Equal(t, "pi_123", resp.GatewayOrderID)
	assert.Equal(t, "pi_123_secret", resp.ClientSecret)
	store.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestCreatePayment_CODStaysPending(t *testing.T) {
	store := new(MockStore)
	orders := new(MockOrderUpdater)
	// No gateway registered for cod.
	svc := newTestService(store, new(MockGateway), orders, new(MockNotifier))
	ctx := context.Background()

	orders.On("OrderByID", ctx, "order-1").Return(&models.Order{
		ID:            "order-1",
		Status:        models.OrderPending,
		PaymentStatus: models.OrderPaymentPending,
		TotalAmount:   113.00,
	}, nil)
	store.On("SavePayment", mock.AnythingOfType("*models.Payment")).Return(nil)

	resp, err := svc.CreatePayment(ctx, "user-1", models.CreatePaymentRequest{
		OrderID: "order-1",
		Method:  models.MethodCOD,
		Amount:  113.00,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentPending, resp.Payment.Status)
	assert.Empty(t, resp.ClientSecret)
	store.AssertNotCalled(t, "UpdatePayment")
}

func TestConfirm_Success(t *testing.T) {
	store := new(MockStore)
	orders := new(MockOrderUpdater)
	notify := new(MockNotifier)
	svc := newTestService(store, new(MockGateway), orders, notify)
	ctx := context.Background()

	p := &models.Payment{
		PaymentID:      "pay-1",
		OrderID:        "order-1",
		UserID:         "user-1",
		Method:         models.MethodStripe,
		Amount:         113.00,
		Currency:       "INR",
		Status:         models.PaymentProcessing,
		GatewayOrderID: "pi_123",
	}

	store.On("GetPaymentByGatewayOrderID", "pi_123").Return(p, nil)
	store.On("TransactionExists", "ch_abc").Return(false, nil)
	store.On("UpdatePayment", mock.MatchedBy(func(updated *models.Payment) bool {
		return updated.Status == models.PaymentCompleted && updated.CompletedAt != nil
	})).Return(nil)
	store.On("SaveTransaction", mock.MatchedBy(func(txn *models.PaymentTransaction) bool {
		return txn.TransactionID == "ch_abc" && txn.Status == models.PaymentCompleted
	})).Return(nil).Once()
	orders.On("MarkPaid", ctx, "order-1", models.MethodStripe).Return(nil).Once()
	notify.On("Notify", ctx, mock.AnythingOfType("models.NotificationEvent")).Return()

	confirmed, err := svc.Confirm(ctx, "pi_123", &gateway.Result{
		TransactionID: "ch_abc",
		Succeeded:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentCompleted, confirmed.Status)
	store.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestConfirm_ReplayIsNoop(t *testing.T) {
	store := new(MockStore)
	orders := new(MockOrderUpdater)
	svc := newTestService(store, new(MockGateway), orders, new(MockNotifier))
	ctx := context.Background()

	p := &models.Payment{
		PaymentID:      "pay-1",
		OrderID:        "order-1",
		Status:         models.PaymentCompleted,
		GatewayOrderID: "pi_123",
	}

	store.On("GetPaymentByGatewayOrderID", "pi_123").Return(p, nil)
	store.On("TransactionExists", "ch_abc").Return(true, nil)

	confirmed, err := svc.Confirm(ctx, "pi_123", &gateway.Result{
		TransactionID: "ch_abc",
		Succeeded:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentCompleted, confirmed.Status)
	store.AssertNotCalled(t, "SaveTransaction")
	store.AssertNotCalled(t, "UpdatePayment")
	orders.AssertNotCalled(t, "MarkPaid")
}

func TestConfirm_EmptyTransactionID(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store, new(MockGateway), new(MockOrderUpdater), new(MockNotifier))

	store.On("GetPaymentByGatewayOrderID", "pi_123").Return(&models.Payment{PaymentID: "pay-1"}, nil)

	_, err := svc.Confirm(context.Background(), "pi_123", &gateway.Result{Succeeded: true})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestConfirm_FailureLeavesOrderUntouched(t *testing.T) {
	store := new(MockStore)
	orders := new(MockOrderUpdater)
	svc := newTestService(store, new(MockGateway), orders, new(MockNotifier))
	ctx := context.Background()

	p := &models.Payment{
		PaymentID:      "pay-1",
		OrderID:        "order-1",
		Status:         models.PaymentProcessing,
		GatewayOrderID: "pi_123",
	}

	store.On("GetPaymentByGatewayOrderID", "pi_123").Return(p, nil)
	store.On("TransactionExists", "ch_bad").Return(false, nil)
	store.On("UpdatePayment", mock.MatchedBy(func(updated *models.Payment) bool {
		return updated.Status == models.PaymentFailed && updated.ErrorCode == "card_declined"
	})).Return(nil)
	store.On("SaveTransaction", mock.AnythingOfType("*models.PaymentTransaction")).Return(nil)

	confirmed, err := svc.Confirm(ctx, "pi_123", &gateway.Result{
		TransactionID: "ch_bad",
		Succeeded:     false,
		ErrorCode:     "card_declined",
		ErrorMessage:  "Your card was declined.",
	})
	require.NoError(t, err)

	// The failed attempt is recorded on the payment side only. The order
	// stays pending so the customer can retry with a new payment.
	assert.Equal(t, models.PaymentFailed, confirmed.Status)
	orders.AssertNotCalled(t, "MarkPaid")
	assert.Empty(t, orders.Calls)
}

func TestConfirmCOD(t *testing.T) {
	store := new(MockStore)
	orders := new(MockOrderUpdater)
	notify := new(MockNotifier)
	svc := newTestService(store, new(MockGateway), orders, notify)
	ctx := context.Background()

	p := &models.Payment{
		PaymentID: "pay-1",
		OrderID:   "order-1",
		UserID:    "user-1",
		Method:    models.MethodCOD,
		Amount:    113.00,
		Currency:  "INR",
		Status:    models.PaymentPending,
	}

	store.On("GetPayment", "pay-1").Return(p, nil)
	store.On("TransactionExists", mock.AnythingOfType("string")).Return(false, nil)
	store.On("UpdatePayment", mock.AnythingOfType("*models.Payment")).Return(nil)
	store.On("SaveTransaction", mock.AnythingOfType("*models.PaymentTransaction")).Return(nil)
	orders.On("MarkPaid", ctx, "order-1", models.MethodCOD).Return(nil)
	notify.On("Notify", ctx, mock.AnythingOfType("models.NotificationEvent")).Return()

	confirmed, err := svc.ConfirmCOD(ctx, "pay-1", "staff-1")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentCompleted, confirmed.Status)
}

func TestConfirmCOD_WrongMethod(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store, new(MockGateway), new(MockOrderUpdater), new(MockNotifier))

	store.On("GetPayment", "pay-1").Return(&models.Payment{
		PaymentID: "pay-1",
		Method:    models.MethodStripe,
	}, nil)

	_, err := svc.ConfirmCOD(context.Background(), "pay-1", "staff-1")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestCreateRefund_ExceedsRemaining(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store, new(MockGateway), new(MockOrderUpdater), new(MockNotifier))
	ctx := context.Background()

	store.On("GetPayment", "pay-1").Return(&models.Payment{
		PaymentID: "pay-1",
		Amount:    113.00,
		Status:    models.PaymentCompleted,
	}, nil)
	store.On("CompletedRefundTotal", "pay-1").Return(60.00, nil)

	_, err := svc.CreateRefund(ctx, models.CreateRefundRequest{
		PaymentID: "pay-1",
		Amount:    60.00,
		Reason:    "damaged garment",
	}, "staff-1")

	assert.ErrorIs(t, err, errs.ErrInvariant)
	store.AssertNotCalled(t, "SaveRefund")
}

func TestCreateRefund_PartialWithinRemaining(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store, new(MockGateway), new(MockOrderUpdater), new(MockNotifier))
	ctx := context.Background()

	store.On("GetPayment", "pay-1").Return(&models.Payment{
		PaymentID: "pay-1",
		Amount:    113.00,
		Status:    models.PaymentCompleted,
	}, nil)
	store.On("CompletedRefundTotal", "pay-1").Return(60.00, nil)
	store.On("SaveRefund", mock.MatchedBy(func(r *models.Refund) bool {
		return r.Status == models.RefundPending && r.Amount == 53.00 && r.ProcessedBy == "staff-1"
	})).Return(nil)

	refund, err := svc.CreateRefund(ctx, models.CreateRefundRequest{
		PaymentID: "pay-1",
		Amount:    53.00,
		Reason:    "damaged garment",
	}, "staff-1")
	require.NoError(t, err)

	assert.Equal(t, models.RefundPending, refund.Status)
	store.AssertExpectations(t)
}

func TestCreateRefund_NotCompleted(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store, new(MockGateway), new(MockOrderUpdater), new(MockNotifier))

	store.On("GetPayment", "pay-1").Return(&models.Payment{
		PaymentID: "pay-1",
		Amount:    113.00,
		Status:    models.PaymentPending,
	}, nil)

	_, err := svc.CreateRefund(context.Background(), models.CreateRefundRequest{
		PaymentID: "pay-1",
		Amount:    10.00,
	}, "staff-1")
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestProcessRefund_FullRefundCascades(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	orders := new(MockOrderUpdater)
	notify := new(MockNotifier)
	svc := newTestService(store, gw, orders, notify)
	ctx := context.Background()

	refund := &models.Refund{
		ID:        "rfnd-1",
		PaymentID: "pay-1",
		Amount:    113.00,
		Status:    models.RefundPending,
	}
	p := &models.Payment{
		PaymentID:        "pay-1",
		OrderID:          "order-1",
		UserID:           "user-1",
		Method:           models.MethodStripe,
		Amount:           113.00,
		Currency:         "INR",
		Status:           models.PaymentCompleted,
		GatewayPaymentID: "ch_abc",
	}

	store.On("GetRefund", "rfnd-1").Return(refund, nil)
	store.On("GetPayment", "pay-1").Return(p, nil)
	gw.On("Refund", ctx, p, refund).Return(&gateway.RefundResult{
		GatewayRefundID: "re_xyz",
		Succeeded:       true,
	}, nil)
	store.On("UpdateRefund", mock.MatchedBy(func(r *models.Refund) bool {
		return r.Status == models.RefundCompleted && r.GatewayRefundID == "re_xyz"
	})).Return(nil)
	store.On("CompletedRefundTotal", "pay-1").Return(113.00, nil)
	store.On("UpdatePayment", mock.MatchedBy(func(updated *models.Payment) bool {
		return updated.Status == models.PaymentRefunded
	})).Return(nil)
	orders.On("MarkRefunded", ctx, "order-1").Return(nil).Once()
	notify.On("Notify", ctx, mock.AnythingOfType("models.NotificationEvent")).Return()

	processed, err := svc.ProcessRefund(ctx, "rfnd-1")
	require.NoError(t, err)

	assert.Equal(t, models.RefundCompleted, processed.Status)
	store.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestProcessRefund_PartialDoesNotCascade(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	orders := new(MockOrderUpdater)
	notify := new(MockNotifier)
	svc := newTestService(store, gw, orders, notify)
	ctx := context.Background()

	refund := &models.Refund{
		ID:        "rfnd-1",
		PaymentID: "pay-1",
		Amount:    50.00,
		Status:    models.RefundPending,
	}
	p := &models.Payment{
		PaymentID: "pay-1",
		OrderID:   "order-1",
		Method:    models.MethodStripe,
		Amount:    113.00,
		Currency:  "INR",
		Status:    models.PaymentCompleted,
	}

	store.On("GetRefund", "rfnd-1").Return(refund, nil)
	store.On("GetPayment", "pay-1").Return(p, nil)
	gw.On("Refund", ctx, p, refund).Return(&gateway.RefundResult{Succeeded: true}, nil)
	store.On("UpdateRefund", mock.AnythingOfType("*models.Refund")).Return(nil)
	store.On("CompletedRefundTotal", "pay-1").Return(50.00, nil)
	notify.On("Notify", ctx, mock.AnythingOfType("models.NotificationEvent")).Return()

	_, err := svc.ProcessRefund(ctx, "rfnd-1")
	require.NoError(t, err)

	store.AssertNotCalled(t, "UpdatePayment")
	orders.AssertNotCalled(t, "MarkRefunded")
}

func TestProcessRefund_PendingRefundDoesNotCascade(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	orders := new(MockOrderUpdater)
	notify := new(MockNotifier)
	svc := newTestService(store, gw, orders, notify)
	ctx := context.Background()

	// A second refund of 50.00 is still pending on this payment. Together
	// the two would cover the full 113.00, but only settled money counts.
	refund := &models.Refund{
		ID:        "rfnd-2",
		PaymentID: "pay-1",
		Amount:    63.00,
		Status:    models.RefundPending,
	}
	p := &models.Payment{
		PaymentID: "pay-1",
		OrderID:   "order-1",
		Method:    models.MethodStripe,
		Amount:    113.00,
		Currency:  "INR",
		Status:    models.PaymentCompleted,
	}

	store.On("GetRefund", "rfnd-2").Return(refund, nil)
	store.On("GetPayment", "pay-1").Return(p, nil)
	gw.On("Refund", ctx, p, refund).Return(&gateway.RefundResult{Succeeded: true}, nil)
	store.On("UpdateRefund", mock.AnythingOfType("*models.Refund")).Return(nil)
	store.On("CompletedRefundTotal", "pay-1").Return(63.00, nil)
	notify.On("Notify", ctx, mock.AnythingOfType("models.NotificationEvent")).Return()

	_, err := svc.ProcessRefund(ctx, "rfnd-2")
	require.NoError(t, err)

	store.AssertNotCalled(t, "UpdatePayment")
	orders.AssertNotCalled(t, "MarkRefunded")
}

func TestProcessRefund_NotPending(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store, new(MockGateway), new(MockOrderUpdater), new(MockNotifier))

	store.On("GetRefund", "rfnd-1").Return(&models.Refund{
		ID:     "rfnd-1",
		Status: models.RefundCompleted,
	}, nil)

	_, err := svc.ProcessRefund(context.Background(), "rfnd-1")
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestSaveMethod_DefaultClearsOthers(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store, new(MockGateway), new(MockOrderUpdater), new(MockNotifier))
	ctx := context.Background()

	store.On("ClearDefaultMethods", "user-1").Return(nil).Once()
	store.On("SaveMethod", mock.MatchedBy(func(m *models.SavedPaymentMethod) bool {
		return m.IsDefault && m.IsActive && m.CardLast4 == "4242"
	})).Return(nil)

	method, err := svc.SaveMethod(ctx, "user-1", models.SavePaymentMethodRequest{
		Method:    models.MethodStripe,
		CardLast4: "4242",
		CardBrand: "visa",
		IsDefault: true,
	})
	require.NoError(t, err)

	assert.True(t, method.IsDefault)
	store.AssertExpectations(t)
}

func TestSaveMethod_BadCardLast4(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store, new(MockGateway), new(MockOrderUpdater), new(MockNotifier))

	_, err := svc.SaveMethod(context.Background(), "user-1", models.SavePaymentMethodRequest{
		Method:    models.MethodStripe,
		CardLast4: "42",
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
	store.AssertNotCalled(t, "SaveMethod")
}
