package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dryclean/internal/errs"
	"dryclean/internal/logger"
	"dryclean/internal/models"
	"dryclean/internal/order/qr"
	"dryclean/internal/pricing"
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	OrderByID(ctx context.Context, id string) (*models.Order, error)
	OrderByNumber(ctx context.Context, number string) (*models.Order, error)
	ItemsByOrder(ctx context.Context, orderID string) ([]models.OrderItem, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, notes, actorID string) error
	StatusHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error)
	AddItem(ctx context.Context, item *models.OrderItem, order *models.Order) error
	RemoveItem(ctx context.Context, itemID string, order *models.Order) error
	UpdateTotals(ctx context.Context, order *models.Order) error
	PickupScheduleByOrder(ctx context.Context, orderID string) (*models.PickupSchedule, error)
	DeliveryScheduleByOrder(ctx context.Context, orderID string) (*models.DeliverySchedule, error)
	SavePickupSchedule(ctx context.Context, schedule *models.PickupSchedule) error
	SaveDeliverySchedule(ctx context.Context, schedule *models.DeliverySchedule) error
	OrderStats(ctx context.Context, customerID string) (*models.OrderStats, error)
}

// OrderLock serializes item mutations per order.
type OrderLock interface {
	Acquire(ctx context.Context, orderID, owner string) (bool, error)
	Release(ctx context.Context, orderID, owner string) error
}

// Notifier enqueues customer notifications. Implementations must never
// block order processing; failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent)
}

type OrderService struct {
	DB      DBLayer
	Lock    OrderLock
	Notify  Notifier
	Pricing *pricing.Engine
	QR      *qr.Generator
	Logger  *logger.Logger
}

func NewOrderService(db DBLayer, lock OrderLock, notify Notifier, engine *pricing.Engine, qrGen *qr.Generator, log *logger.Logger) *OrderService {
	return &OrderService{DB: db, Lock: lock, Notify: notify, Pricing: engine, QR: qrGen, Logger: log}
}

// statusNotifications maps each status to the message the customer gets.
var statusNotifications = map[models.OrderStatus][2]string{
	models.OrderConfirmed:      {"Order confirmed", "Your order has been confirmed and is being scheduled for pickup."},
	models.OrderPickedUp:       {"Items picked up", "We have collected your items and they are on the way to the facility."},
	models.OrderInProcess:      {"Cleaning in progress", "Your items are being cleaned."},
	models.OrderReady:          {"Order ready", "Your items are cleaned and ready for delivery."},
	models.OrderOutForDelivery: {"Out for delivery", "Your items are out for delivery."},
	models.OrderDelivered:      {"Order delivered", "Your items have been delivered. Thank you!"},
	models.OrderCancelled:      {"Order cancelled", "Your order has been cancelled."},
}

// ---------------- PLACEMENT ----------------

// PlaceOrder validates the request, prices every line through the pricing
// engine and persists order, items and the initial pending history row in
// one transaction. Item prices are snapshots: later catalog edits never
// change an existing order.
func (s *OrderService) PlaceOrder(ctx context.Context, customerID string, req models.CreateOrderRequest) (*models.OrderWithItems, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", errs.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", errs.ErrValidation)
	}
	if req.OrderType != models.OrderTypePickup && req.OrderType != models.OrderTypeDropoff {
		return nil, fmt.Errorf("%w: unknown order type %q", errs.ErrValidation, req.OrderType)
	}
	if req.OrderType == models.OrderTypePickup {
		if req.PickupAddress == "" || req.PickupDate == "" || req.PickupTimeSlot == "" {
			return nil, fmt.Errorf("%w: pickup address, date and time slot are required", errs.ErrValidation)
		}
		if err := validateDate(req.PickupDate); err != nil {
			return nil, err
		}
	}
	if req.DeliveryDate != "" {
		if err := validateDate(req.DeliveryDate); err != nil {
			return nil, err
		}
		if req.PickupDate != "" && req.DeliveryDate < req.PickupDate {
			return nil, fmt.Errorf("%w: delivery date is before pickup date", errs.ErrValidation)
		}
	}

	now := time.Now()
	order := &models.Order{
		ID:                  uuid.NewString(),
		CustomerID:          customerID,
		Status:              models.OrderPending,
		OrderType:           req.OrderType,
		PickupAddress:       req.PickupAddress,
		PickupDate:          req.PickupDate,
		PickupTimeSlot:      req.PickupTimeSlot,
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryDate:        req.DeliveryDate,
		DeliveryTimeSlot:    req.DeliveryTimeSlot,
		PaymentStatus:       models.OrderPaymentPending,
		SpecialInstructions: req.SpecialInstructions,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, reqItem := range req.Items {
		quote, err := s.Pricing.Quote(ctx, reqItem.ServiceID, reqItem.VariantID, reqItem.Quantity)
		if err != nil {
			return nil, err
		}
		description := quote.ServiceName
		if quote.VariantName != "" {
			description = fmt.Sprintf("%s (%s)", quote.ServiceName, quote.VariantName)
		}
		items = append(items, models.OrderItem{
			ID:                  uuid.NewString(),
			ServiceID:           reqItem.ServiceID,
			VariantID:           reqItem.VariantID,
			Quantity:            reqItem.Quantity,
			UnitPrice:           quote.UnitPrice,
			TotalPrice:          quote.TotalPrice,
			Description:         description,
			SpecialInstructions: reqItem.SpecialInstructions,
			CreatedAt:           now,
		})
		order.Subtotal = pricing.RoundMoney(order.Subtotal + quote.TotalPrice)
	}
	order.Tax, order.DeliveryFee, order.TotalAmount = pricing.Totals(order.Subtotal)

	if err := s.DB.CreateOrder(ctx, order, items); err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}
	s.Logger.LogOrder("CREATE", order.OrderNumber, fmt.Sprintf("customer %s, total %.2f", customerID, order.TotalAmount))

	s.Notify.Notify(ctx, models.NotificationEvent{
		UserID:    customerID,
		Channel:   models.ChannelEmail,
		Title:     "Order placed",
		Body:      fmt.Sprintf("Your order %s has been placed. Total: %.2f", order.OrderNumber, order.TotalAmount),
		OrderID:   order.ID,
		Timestamp: time.Now(),
	})

	return &models.OrderWithItems{Order: *order, Items: items}, nil
}

func validateDate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", errs.ErrValidation, date)
	}
	return nil
}

// ---------------- READS ----------------

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.OrderWithItems, error) {
	order, err := s.DB.OrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.DB.ItemsByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithItems{Order: *order, Items: items}, nil
}

func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	return s.DB.ListOrders(ctx, filter)
}

// Tracking assembles the full customer-facing view: order, items, the
// audit trail and any schedules.
func (s *OrderService) Tracking(ctx context.Context, orderNumber string) (*models.OrderTracking, error) {
	order, err := s.DB.OrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	items, err := s.DB.ItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	history, err := s.DB.StatusHistory(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	pickup, err := s.DB.PickupScheduleByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	delivery, err := s.DB.DeliveryScheduleByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &models.OrderTracking{
		Order:            *order,
		Items:            items,
		StatusHistory:    history,
		PickupSchedule:   pickup,
		DeliverySchedule: delivery,
	}, nil
}

func (s *OrderService) Stats(ctx context.Context, customerID string) (*models.OrderStats, error) {
	return s.DB.OrderStats(ctx, customerID)
}

// ---------------- STATUS ----------------

// UpdateStatus moves an order along the lifecycle. Transitions outside the
// whitelist are rejected with the state untouched; a successful move
// appends exactly one history row and fires a best-effort notification.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, req models.UpdateOrderStatusRequest, actorID string) (*models.Order, error) {
	if !models.ValidOrderStatus(req.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", errs.ErrValidation, req.Status)
	}

	order, err := s.DB.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(order.Status, req.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, order.Status, req.Status)
	}

	if err := s.DB.UpdateOrderStatus(ctx, orderID, order.Status, req.Status, req.Notes, actorID); err != nil {
		return nil, err
	}
	s.Logger.LogOrder("STATUS", order.OrderNumber, fmt.Sprintf("%s -> %s", order.Status, req.Status))

	if msg, ok := statusNotifications[req.Status]; ok {
		s.Notify.Notify(ctx, models.NotificationEvent{
			UserID:    order.CustomerID,
			Channel:   models.ChannelPush,
			Title:     msg[0],
			Body:      fmt.Sprintf("%s (order %s)", msg[1], order.OrderNumber),
			OrderID:   order.ID,
			Timestamp: time.Now(),
		})
	}

	order.Status = req.Status
	order.UpdatedAt = time.Now()
	return order, nil
}

// CancelOrder is UpdateStatus sugar: any non-terminal order can be
// cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason, actorID string) (*models.Order, error) {
	return s.UpdateStatus(ctx, orderID, models.UpdateOrderStatusRequest{
		Status: models.OrderCancelled,
		Notes:  reason,
	}, actorID)
}

// ---------------- ITEM MUTATION ----------------

// mutableStatuses: items can only change before the clothes leave the
// customer's hands.
func itemsMutable(status models.OrderStatus) bool {
	return status == models.OrderPending || status == models.OrderConfirmed
}

// AddItem prices the new line and appends it under the order mutation
// lock, recomputing totals in the same transaction as the insert.
func (s *OrderService) AddItem(ctx context.Context, orderID string, reqItem models.EstimateItem) (*models.OrderWithItems, error) {
	order, err := s.DB.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !itemsMutable(order.Status) {
		return nil, fmt.Errorf("%w: items cannot change once the order is %s", errs.ErrInvalidTransition, order.Status)
	}

	owner := uuid.NewString()
	ok, err := s.Lock.Acquire(ctx, orderID, owner)
	if err != nil {
		return nil, fmt.Errorf("order lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("order %s is being modified: %w", orderID, errs.ErrConflict)
	}
	defer func() {
		if err := s.Lock.Release(ctx, orderID, owner); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("failed to release lock for order %s: %v", orderID, err))
		}
	}()

	quote, err := s.Pricing.Quote(ctx, reqItem.ServiceID, reqItem.VariantID, reqItem.Quantity)
	if err != nil {
		return nil, err
	}
	description := quote.ServiceName
	if quote.VariantName != "" {
		description = fmt.Sprintf("%s (%s)", quote.ServiceName, quote.VariantName)
	}
	item := &models.OrderItem{
		ID:                  uuid.NewString(),
		OrderID:             orderID,
		ServiceID:           reqItem.ServiceID,
		VariantID:           reqItem.VariantID,
		Quantity:            reqItem.Quantity,
		UnitPrice:           quote.UnitPrice,
		TotalPrice:          quote.TotalPrice,
		Description:         description,
		SpecialInstructions: reqItem.SpecialInstructions,
		CreatedAt:           time.Now(),
	}

	order.Subtotal = pricing.RoundMoney(order.Subtotal + quote.TotalPrice)
	order.Tax, order.DeliveryFee, order.TotalAmount = pricing.Totals(order.Subtotal)
	order.UpdatedAt = time.Now()

	if err := s.DB.AddItem(ctx, item, order); err != nil {
		return nil, fmt.Errorf("failed to add item: %w", err)
	}
	s.Logger.LogOrder("ITEM_ADD", order.OrderNumber, fmt.Sprintf("item %s, new total %.2f", item.ID, order.TotalAmount))

	items, err := s.DB.ItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithItems{Order: *order, Items: items}, nil
}

// RemoveItem drops a line under the mutation lock. The last item cannot be
// removed; cancel the order instead.
func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID string) (*models.OrderWithItems, error) {
	order, err := s.DB.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !itemsMutable(order.Status) {
		return nil, fmt.Errorf("%w: items cannot change once the order is %s", errs.ErrInvalidTransition, order.Status)
	}

	owner := uuid.NewString()
	ok, err := s.Lock.Acquire(ctx, orderID, owner)
	if err != nil {
		return nil, fmt.Errorf("order lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("order %s is being modified: %w", orderID, errs.ErrConflict)
	}
	defer func() {
		if err := s.Lock.Release(ctx, orderID, owner); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("failed to release lock for order %s: %v", orderID, err))
		}
	}()

	items, err := s.DB.ItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(items) <= 1 {
		return nil, fmt.Errorf("%w: an order must keep at least one item", errs.ErrValidation)
	}

	var removed *models.OrderItem
	for i := range items {
		if items[i].ID == itemID {
			removed = &items[i]
			break
		}
	}
	if removed == nil {
		return nil, fmt.Errorf("order item %s: %w", itemID, errs.ErrNotFound)
	}

	order.Subtotal = pricing.RoundMoney(order.Subtotal - removed.TotalPrice)
	order.Tax, order.DeliveryFee, order.TotalAmount = pricing.Totals(order.Subtotal)
	order.UpdatedAt = time.Now()

	if err := s.DB.RemoveItem(ctx, itemID, order); err != nil {
		return nil, fmt.Errorf("failed to remove item: %w", err)
	}
	s.Logger.LogOrder("ITEM_REMOVE", order.OrderNumber, fmt.Sprintf("item %s, new total %.2f", itemID, order.TotalAmount))

	return s.GetOrder(ctx, orderID)
}

// RecomputeTotals re-derives the order totals from the stored item
// snapshots. Repair tool for drift; unit prices are never re-quoted.
func (s *OrderService) RecomputeTotals(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.DB.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.DB.ItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var subtotal float64
	for _, item := range items {
		subtotal = pricing.RoundMoney(subtotal + item.TotalPrice)
	}
	order.Subtotal = subtotal
	order.Tax, order.DeliveryFee, order.TotalAmount = pricing.Totals(subtotal)

	if err := s.DB.UpdateTotals(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update totals: %w", err)
	}
	return order, nil
}

// ---------------- SCHEDULES & AGENTS ----------------

// AssignPickupAgent attaches an agent to the order's pickup schedule,
// creating the schedule from the order's requested slot if it does not
// exist yet.
func (s *OrderService) AssignPickupAgent(ctx context.Context, orderID, agentID string) (*models.PickupSchedule, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", errs.ErrValidation)
	}
	order, err := s.DB.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminal(order.Status) {
		return nil, fmt.Errorf("%w: order %s is %s", errs.ErrInvalidTransition, orderID, order.Status)
	}

	schedule, err := s.DB.PickupScheduleByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		schedule = &models.PickupSchedule{
			ID:                uuid.NewString(),
			OrderID:           orderID,
			ScheduledDate:     order.PickupDate,
			ScheduledTimeSlot: order.PickupTimeSlot,
			CreatedAt:         time.Now(),
		}
	}
	schedule.AgentID = agentID

	if err := s.DB.SavePickupSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save pickup schedule: %w", err)
	}
	s.Logger.LogOrder("PICKUP_AGENT", order.OrderNumber, fmt.Sprintf("agent %s assigned", agentID))
	return schedule, nil
}

func (s *OrderService) AssignDeliveryAgent(ctx context.Context, orderID, agentID string) (*models.DeliverySchedule, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", errs.ErrValidation)
	}
	order, err := s.DB.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminal(order.Status) {
		return nil, fmt.Errorf("%w: order %s is %s", errs.ErrInvalidTransition, orderID, order.Status)
	}

	schedule, err := s.DB.DeliveryScheduleByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		schedule = &models.DeliverySchedule{
			ID:                uuid.NewString(),
			OrderID:           orderID,
			ScheduledDate:     order.DeliveryDate,
			ScheduledTimeSlot: order.DeliveryTimeSlot,
			CreatedAt:         time.Now(),
		}
	}
	schedule.AgentID = agentID

	if err := s.DB.SaveDeliverySchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save delivery schedule: %w", err)
	}
	s.Logger.LogOrder("DELIVERY_AGENT", order.OrderNumber, fmt.Sprintf("agent %s assigned", agentID))
	return schedule, nil
}

// CompletePickup stamps the actual pickup time and advances the order to
// picked_up.
func (s *OrderService) CompletePickup(ctx context.Context, orderID, agentID, notes string) (*models.PickupSchedule, error) {
	schedule, err := s.DB.PickupScheduleByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("pickup schedule for order %s: %w", orderID, errs.ErrNotFound)
	}
	if schedule.IsCompleted {
		return nil, fmt.Errorf("%w: pickup already completed", errs.ErrConflict)
	}

	now := time.Now()
	schedule.ActualPickupTime = &now
	schedule.IsCompleted = true
	if notes != "" {
		schedule.Notes = notes
	}
	if err := s.DB.SavePickupSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save pickup schedule: %w", err)
	}

	if _, err := s.UpdateStatus(ctx, orderID, models.UpdateOrderStatusRequest{
		Status: models.OrderPickedUp,
		Notes:  "Pickup completed",
	}, agentID); err != nil {
		return nil, err
	}
	return schedule, nil
}

// CompleteDelivery stamps the actual delivery time and advances the order
// to delivered.
func (s *OrderService) CompleteDelivery(ctx context.Context, orderID, agentID, notes string) (*models.DeliverySchedule, error) {
	schedule, err := s.DB.DeliveryScheduleByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("delivery schedule for order %s: %w", orderID, errs.ErrNotFound)
	}
	if schedule.IsCompleted {
		return nil, fmt.Errorf("%w: delivery already completed", errs.ErrConflict)
	}

	now := time.Now()
	schedule.ActualDeliveryTime = &now
	schedule.IsCompleted = true
	if notes != "" {
		schedule.Notes = notes
	}
	if err := s.DB.SaveDeliverySchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save delivery schedule: %w", err)
	}

	if _, err := s.UpdateStatus(ctx, orderID, models.UpdateOrderStatusRequest{
		Status: models.OrderDelivered,
		Notes:  "Delivery completed",
	}, agentID); err != nil {
		return nil, err
	}
	return schedule, nil
}

// ---------------- HANDOFF QR ----------------

// HandoffQR renders the scannable code an agent presents at pickup or
// delivery.
func (s *OrderService) HandoffQR(ctx context.Context, orderID, kind string) ([]byte, error) {
	if kind != "pickup" && kind != "delivery" {
		return nil, fmt.Errorf("%w: unknown handoff kind %q", errs.ErrValidation, kind)
	}
	order, err := s.DB.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.QR.GenerateHandoffQR(qr.HandoffPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Kind:        kind,
		IssuedAt:    time.Now(),
	})
}
