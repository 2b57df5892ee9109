package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dryclean/internal/errs"
	"dryclean/internal/logger"
	"dryclean/internal/models"
	"dryclean/internal/order"
	"dryclean/internal/pricing"
)

// Mock implementations

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreateOrder(ctx context.Context, o *models.Order, items []models.OrderItem) error {
	args := m.Called(ctx, o, items)
	return args.Error(0)
}

func (m *MockDBLayer) OrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) OrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) ItemsByOrder(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderItem), args.Error(1)
}

func (m *MockDBLayer) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockDBLayer) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, notes, actorID string) error {
	args := m.Called(ctx, orderID, from, to, notes, actorID)
	return args.Error(0)
}

func (m *MockDBLayer) StatusHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderStatusHistory), args.Error(1)
}

func (m *MockDBLayer) AddItem(ctx context.Context, item *models.OrderItem, o *models.Order) error {
	args := m.Called(ctx, item, o)
	return args.Error(0)
}

func (m *MockDBLayer) RemoveItem(ctx context.Context, itemID string, o *models.Order) error {
	args := m.Called(ctx, itemID, o)
	return args.Error(0)
}

func (m *MockDBLayer) UpdateTotals(ctx context.Context, o *models.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockDBLayer) PickupScheduleByOrder(ctx context.Context, orderID string) (*models.PickupSchedule, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PickupSchedule), args.Error(1)
}

func (m *MockDBLayer) DeliveryScheduleByOrder(ctx context.Context, orderID string) (*models.DeliverySchedule, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DeliverySchedule), args.Error(1)
}

func (m *MockDBLayer) SavePickupSchedule(ctx context.Context, schedule *models.PickupSchedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockDBLayer) SaveDeliverySchedule(ctx context.Context, schedule *models.DeliverySchedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockDBLayer) OrderStats(ctx context.Context, customerID string) (*models.OrderStats, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderStats), args.Error(1)
}

type MockOrderLock struct {
	mock.Mock
}

func (m *MockOrderLock) Acquire(ctx context.Context, orderID, owner string) (bool, error) {
	args := m.Called(ctx, orderID, owner)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderLock) Release(ctx context.Context, orderID, owner string) error {
	args := m.Called(ctx, orderID, owner)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event models.NotificationEvent) {
	m.Called(ctx, event)
}

type MockCatalogReader struct {
	mock.Mock
}

func (m *MockCatalogReader) ServiceByID(ctx context.Context, id string) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

func (m *MockCatalogReader) VariantByID(ctx context.Context, id string) (*models.ServiceVariant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceVariant), args.Error(1)
}

func (m *MockCatalogReader) FindRule(ctx context.Context, serviceID string, variantID *string, quantity int) (*models.PricingRule, error) {
	args := m.Called(ctx, serviceID, variantID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PricingRule), args.Error(1)
}

func newTestService(db *MockDBLayer, lock *MockOrderLock, notify *MockNotifier, catalog *MockCatalogReader) *order.OrderService {
	return order.NewOrderService(db, lock, notify, pricing.NewEngine(catalog), nil, logger.NewTestLogger())
}

// Tests start here

func TestPlaceOrder(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockLock := new(MockOrderLock)
	mockNotify := new(MockNotifier)
	mockCatalog := new(MockCatalogReader)
	svc := newTestService(mockDB, mockLock, mockNotify, mockCatalog)
	ctx := context.Background()

	shirt := &models.Service{ID: "svc-shirt", Name: "Shirt Wash", BasePrice: 15.00}
	mockCatalog.On("ServiceByID", ctx, "svc-shirt").Return(shirt, nil)
	mockCatalog.On("FindRule", ctx, "svc-shirt", (*string)(nil), 4).Return(nil, nil)

	mockDB.On("CreateOrder", ctx, mock.MatchedBy(func(o *models.Order) bool {
		return o.Status == models.OrderPending &&
			o.Subtotal == 60.00 &&
			o.Tax == 3.00 &&
			o.DeliveryFee == 50.00 &&
			o.TotalAmount == 113.00
	}), mock.AnythingOfType("[]models.OrderItem")).Return(nil)
	mockNotify.On("Notify", ctx, mock.AnythingOfType("models.NotificationEvent")).Return()

	result, err := svc.PlaceOrder(ctx, "customer-1", models.CreateOrderRequest{
		OrderType:      models.OrderTypePickup,
		PickupAddress:  "12 Main St",
		PickupDate:     "2026-09-01",
		PickupTimeSlot: "9:00 AM - 12:00 PM",
		Items: []models.EstimateItem{
			{ServiceID: "svc-shirt", Quantity: 4},
		},
	})
	require.NoError(t, err)

	assert.Len(t, result.Items, 1)
	assert.Equal(t, 15.00, result.Items[0].UnitPrice)
	assert.Equal(t, 60.00, result.Items[0].TotalPrice)
	assert.Equal(t, "Shirt Wash", result.Items[0].Description)

	mockDB.AssertExpectations(t)
	mockNotify.AssertExpectations(t)
}

func TestPlaceOrder_Validation(t *testing.T) {
	svc := newTestService(new(MockDBLayer), new(MockOrderLock), new(MockNotifier), new(MockCatalogReader))
	ctx := context.Background()

	// No items.
	_, err := svc.PlaceOrder(ctx, "customer-1", models.CreateOrderRequest{
		OrderType: models.OrderTypePickup,
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	// Pickup order without pickup details.
	_, err = svc.PlaceOrder(ctx, "customer-1", models.CreateOrderRequest{
		OrderType: models.OrderTypePickup,
		Items:     []models.EstimateItem{{ServiceID: "svc-1", Quantity: 1}},
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	// Malformed date.
	_, err = svc.PlaceOrder(ctx, "customer-1", models.CreateOrderRequest{
		OrderType:      models.OrderTypePickup,
		PickupAddress:  "12 Main St",
		PickupDate:     "01-09-2026",
		PickupTimeSlot: "9:00 AM - 12:00 PM",
		Items:          []models.EstimateItem{{ServiceID: "svc-1", Quantity: 1}},
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	// Delivery before pickup.
	_, err = svc.PlaceOrder(ctx, "customer-1", models.CreateOrderRequest{
		OrderType:      models.OrderTypePickup,
		PickupAddress:  "12 Main St",
		PickupDate:     "2026-09-02",
		PickupTimeSlot: "9:00 AM - 12:00 PM",
		DeliveryDate:   "2026-09-01",
		Items:          []models.EstimateItem{{ServiceID: "svc-1", Quantity: 1}},
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestUpdateStatus_ValidTransition(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockNotify := new(MockNotifier)
	svc := newTestService(mockDB, new(MockOrderLock), mockNotify, new(MockCatalogReader))
	ctx := context.Background()

	existing := &models.Order{
		ID:          "order-1",
		OrderNumber: "ORD000001",
		CustomerID:  "customer-1",
		Status:      models.OrderPending,
	}
	mockDB.On("OrderByID", ctx, "order-1").Return(existing, nil)
	mockDB.On("UpdateOrderStatus", ctx, "order-1", models.OrderPending, models.OrderConfirmed, "looks good", "staff-1").Return(nil)
	mockNotify.On("Notify", ctx, mock.AnythingOfType("models.NotificationEvent")).Return()

	updated, err := svc.UpdateStatus(ctx, "order-1", models.UpdateOrderStatusRequest{
		Status: models.OrderConfirmed,
		Notes:  "looks good",
	}, "staff-1")
	require.NoError(t, err)

	assert.Equal(t, models.OrderConfirmed, updated.Status)
	mockDB.AssertExpectations(t)
	mockNotify.AssertExpectations(t)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newTestService(mockDB, new(MockOrderLock), new(MockNotifier), new(MockCatalogReader))
	ctx := context.Background()

	existing := &models.Order{ID: "order-1", Status: models.OrderConfirmed}
	mockDB.On("OrderByID", ctx, "order-1").Return(existing, nil)

	_, err := svc.UpdateStatus(ctx, "order-1", models.UpdateOrderStatusRequest{
		Status: models.OrderReady,
	}, "staff-1")

	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	mockDB.AssertNotCalled(t, "UpdateOrderStatus")
}

func TestUpdateStatus_TerminalOrder(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newTestService(mockDB, new(MockOrderLock), new(MockNotifier), new(MockCatalogReader))
	ctx := context.Background()

	for _, status := range []models.OrderStatus{models.OrderDelivered, models.OrderCancelled} {
		existing := &models.Order{ID: "order-1", Status: status}
		mockDB.ExpectedCalls = nil
		mockDB.On("OrderByID", ctx, "order-1").Return(existing, nil)

		_, err := svc.UpdateStatus(ctx, "order-1", models.UpdateOrderStatusRequest{
			Status: models.OrderCancelled,
		}, "staff-1")
		assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	}
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	svc := newTestService(new(MockDBLayer), new(MockOrderLock), new(MockNotifier), new(MockCatalogReader))

	_, err := svc.UpdateStatus(context.Background(), "order-1", models.UpdateOrderStatusRequest{
		Status: "ironed",
	}, "staff-1")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAddItem_LockHeld(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockLock := new(MockOrderLock)
	svc := newTestService(mockDB, mockLock, new(MockNotifier), new(MockCatalogReader))
	ctx := context.Background()

	existing := &models.Order{ID: "order-1", Status: models.OrderPending}
	mockDB.On("OrderByID", ctx, "order-1").Return(existing, nil)
	mockLock.On("Acquire", ctx, "order-1", mock.AnythingOfType("string")).Return(false, nil)

	_, err := svc.AddItem(ctx, "order-1", models.EstimateItem{ServiceID: "svc-1", Quantity: 1})

	assert.ErrorIs(t, err, errs.ErrConflict)
	mockDB.AssertNotCalled(t, "AddItem")
}

func TestAddItem_ImmutableAfterPickup(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockLock := new(MockOrderLock)
	svc := newTestService(mockDB, mockLock, new(MockNotifier), new(MockCatalogReader))
	ctx := context.Background()

	existing := &models.Order{ID: "order-1", Status: models.OrderPickedUp}
	mockDB.On("OrderByID", ctx, "order-1").Return(existing, nil)

	_, err := svc.AddItem(ctx, "order-1", models.EstimateItem{ServiceID: "svc-1", Quantity: 1})

	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	mockLock.AssertNotCalled(t, "Acquire")
}

func TestRemoveItem_LastItem(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockLock := new(MockOrderLock)
	svc := newTestService(mockDB, mockLock, new(MockNotifier), new(MockCatalogReader))
	ctx := context.Background()

	existing := &models.Order{ID: "order-1", Status: models.OrderPending}
	mockDB.On("OrderByID", ctx, "order-1").Return(existing, nil)
	mockLock.On("Acquire", ctx, "order-1", mock.AnythingOfType("string")).Return(true, nil)
	mockLock.On("Release", ctx, "order-1", mock.AnythingOfType("string")).Return(nil)
	mockDB.On("ItemsByOrder", ctx, "order-1").Return([]models.OrderItem{
		{ID: "item-1", OrderID: "order-1", TotalPrice: 40.00},
	}, nil)

	_, err := svc.RemoveItem(ctx, "order-1", "item-1")

	assert.ErrorIs(t, err, errs.ErrValidation)
	mockDB.AssertNotCalled(t, "RemoveItem")
	mockLock.AssertExpectations(t)
}

func TestCompletePickup(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockNotify := new(MockNotifier)
	svc := newTestService(mockDB, new(MockOrderLock), mockNotify, new(MockCatalogReader))
	ctx := context.Background()

	schedule := &models.PickupSchedule{
		ID:                "sched-1",
		OrderID:           "order-1",
		ScheduledDate:     "2026-09-01",
		ScheduledTimeSlot: "9:00 AM - 12:00 PM",
		AgentID:           "agent-1",
		CreatedAt:         time.Now(),
	}
	existing := &models.Order{ID: "order-1", OrderNumber: "ORD000001", CustomerID: "customer-1", Status: models.OrderConfirmed}

	mockDB.On("PickupScheduleByOrder", ctx, "order-1").Return(schedule, nil)
	mockDB.On("SavePickupSchedule", ctx, mock.MatchedBy(func(s *models.PickupSchedule) bool {
		return s.IsCompleted && s.ActualPickupTime != nil
	})).Return(nil)
	mockDB.On("OrderByID", ctx, "order-1").Return(existing, nil)
	mockDB.On("UpdateOrderStatus", ctx, "order-1", models.OrderConfirmed, models.OrderPickedUp, "Pickup completed", "agent-1").Return(nil)
	mockNotify.On("Notify", ctx, mock.AnythingOfType("models.NotificationEvent")).Return()

	result, err := svc.CompletePickup(ctx, "order-1", "agent-1", "")
	require.NoError(t, err)

	assert.True(t, result.IsCompleted)
	mockDB.AssertExpectations(t)
}

func TestCompletePickup_AlreadyCompleted(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newTestService(mockDB, new(MockOrderLock), new(MockNotifier), new(MockCatalogReader))
	ctx := context.Background()

	schedule := &models.PickupSchedule{ID: "sched-1", OrderID: "order-1", IsCompleted: true}
	mockDB.On("PickupScheduleByOrder", ctx, "order-1").Return(schedule, nil)

	_, err := svc.CompletePickup(ctx, "order-1", "agent-1", "")
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestAssignPickupAgent_CreatesScheduleFromOrderSlot(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newTestService(mockDB, new(MockOrderLock), new(MockNotifier), new(MockCatalogReader))
	ctx := context.Background()

	existing := &models.Order{
		ID:             "order-1",
		Status:         models.OrderConfirmed,
		PickupDate:     "2026-09-01",
		PickupTimeSlot: "9:00 AM - 12:00 PM",
	}
	mockDB.On("OrderByID", ctx, "order-1").Return(existing, nil)
	mockDB.On("PickupScheduleByOrder", ctx, "order-1").Return(nil, nil)
	mockDB.On("SavePickupSchedule", ctx, mock.MatchedBy(func(s *models.PickupSchedule) bool {
		return s.AgentID == "agent-1" && s.ScheduledDate == "2026-09-01"
	})).Return(nil)

	schedule, err := svc.AssignPickupAgent(ctx, "order-1", "agent-1")
	require.NoError(t, err)

	assert.Equal(t, "agent-1", schedule.AgentID)
	mockDB.AssertExpectations(t)
}

func TestRecomputeTotals(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newTestService(mockDB, new(MockOrderLock), new(MockNotifier), new(MockCatalogReader))
	ctx := context.Background()

	existing := &models.Order{ID: "order-1", Status: models.OrderPending, Subtotal: 999.99}
	mockDB.On("OrderByID", ctx, "order-1").Return(existing, nil)
	mockDB.On("ItemsByOrder", ctx, "order-1").Return([]models.OrderItem{
		{ID: "item-1", TotalPrice: 300.00},
		{ID: "item-2", TotalPrice: 250.00},
	}, nil)
	mockDB.On("UpdateTotals", ctx, mock.MatchedBy(func(o *models.Order) bool {
		return o.Subtotal == 550.00 && o.Tax == 27.50 && o.DeliveryFee == 0 && o.TotalAmount == 577.50
	})).Return(nil)

	updated, err := svc.RecomputeTotals(ctx, "order-1")
	require.NoError(t, err)

	assert.Equal(t, 550.00, updated.Subtotal)
	mockDB.AssertExpectations(t)
}
