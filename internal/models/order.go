package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderPickedUp       OrderStatus = "picked_up"
	OrderInProcess      OrderStatus = "in_process"
	OrderReady          OrderStatus = "ready"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// orderTransitions is the strict whitelist of allowed status moves.
// delivered and cancelled are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderConfirmed, OrderCancelled},
	OrderConfirmed:      {OrderPickedUp, OrderCancelled},
	OrderPickedUp:       {OrderInProcess, OrderCancelled},
	OrderInProcess:      {OrderReady, OrderCancelled},
	OrderReady:          {OrderOutForDelivery, OrderCancelled},
	OrderOutForDelivery: {OrderDelivered, OrderCancelled},
	OrderDelivered:      {},
	OrderCancelled:      {},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func IsTerminal(status OrderStatus) bool {
	return len(orderTransitions[status]) == 0
}

func ValidOrderStatus(s OrderStatus) bool {
	_, ok := orderTransitions[s]
	return ok
}

type OrderType string

const (
	OrderTypePickup  OrderType = "pickup"
	OrderTypeDropoff OrderType = "dropoff"
)

// OrderPaymentStatus is the order-level payment state, distinct from the
// per-attempt Payment.Status.
type OrderPaymentStatus string

const (
	OrderPaymentPending  OrderPaymentStatus = "pending"
	OrderPaymentPaid     OrderPaymentStatus = "paid"
	OrderPaymentFailed   OrderPaymentStatus = "failed"
	OrderPaymentRefunded OrderPaymentStatus = "refunded"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID          string      `json:"id" bun:"id,pk"`
	CustomerID  string      `json:"customer_id" bun:"customer_id"`
	OrderNumber string      `json:"order_number" bun:"order_number"`
	Status      OrderStatus `json:"status" bun:"status"`
	OrderType   OrderType   `json:"order_type" bun:"order_type"`

	PickupAddress    string `json:"pickup_address" bun:"pickup_address"`
	PickupDate       string `json:"pickup_date" bun:"pickup_date"` // YYYY-MM-DD
	PickupTimeSlot   string `json:"pickup_time_slot" bun:"pickup_time_slot"` // e.g. "9:00 AM - 12:00 PM"
	DeliveryAddress  string `json:"delivery_address,omitempty" bun:"delivery_address,nullzero"`
	DeliveryDate     string `json:"delivery_date,omitempty" bun:"delivery_date,nullzero"`
	DeliveryTimeSlot string `json:"delivery_time_slot,omitempty" bun:"delivery_time_slot,nullzero"`

	Subtotal    float64 `json:"subtotal" bun:"subtotal"`
	Tax         float64 `json:"tax" bun:"tax"`
	DeliveryFee float64 `json:"delivery_fee" bun:"delivery_fee"`
	TotalAmount float64 `json:"total_amount" bun:"total_amount"`

	PaymentStatus OrderPaymentStatus `json:"payment_status" bun:"payment_status"`
	PaymentMethod string             `json:"payment_method,omitempty" bun:"payment_method,nullzero"`

	SpecialInstructions string     `json:"special_instructions,omitempty" bun:"special_instructions,nullzero"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty" bun:"estimated_completion,nullzero"`

	CreatedAt time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bun:"updated_at"`
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID                  string  `json:"id" bun:"id,pk"`
	OrderID             string  `json:"order_id" bun:"order_id"`
	ServiceID           string  `json:"service_id" bun:"service_id"`
	VariantID           *string `json:"variant_id,omitempty" bun:"variant_id,nullzero"`
	Quantity            int     `json:"quantity" bun:"quantity"`
	UnitPrice           float64 `json:"unit_price" bun:"unit_price"` // snapshot at creation, never re-derived
	TotalPrice          float64 `json:"total_price" bun:"total_price"`
	Description         string  `json:"description,omitempty" bun:"description,nullzero"`
	SpecialInstructions string  `json:"special_instructions,omitempty" bun:"special_instructions,nullzero"`

	CreatedAt time.Time `json:"created_at" bun:"created_at"`
}

// OrderStatusHistory is the append-only audit trail: one row per
// transition, including the initial pending row. An empty ActorID means
// the change was made by the system.
type OrderStatusHistory struct {
	bun.BaseModel `bun:"table:order_status_history"`

	ID        string      `json:"id" bun:"id,pk"`
	OrderID   string      `json:"order_id" bun:"order_id"`
	Status    OrderStatus `json:"status" bun:"status"`
	Notes     string      `json:"notes,omitempty" bun:"notes,nullzero"`
	ActorID   string      `json:"actor_id,omitempty" bun:"actor_id,nullzero"`
	CreatedAt time.Time   `json:"created_at" bun:"created_at"`
}

type PickupSchedule struct {
	bun.BaseModel `bun:"table:pickup_schedules"`

	ID                string     `json:"id" bun:"id,pk"`
	OrderID           string     `json:"order_id" bun:"order_id"`
	ScheduledDate     string     `json:"scheduled_date" bun:"scheduled_date"`
	ScheduledTimeSlot string     `json:"scheduled_time_slot" bun:"scheduled_time_slot"`
	ActualPickupTime  *time.Time `json:"actual_pickup_time,omitempty" bun:"actual_pickup_time,nullzero"`
	AgentID           string     `json:"agent_id,omitempty" bun:"agent_id,nullzero"`
	Notes             string     `json:"notes,omitempty" bun:"notes,nullzero"`
	IsCompleted       bool       `json:"is_completed" bun:"is_completed"`
	CreatedAt         time.Time  `json:"created_at" bun:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" bun:"updated_at"`
}

type DeliverySchedule struct {
	bun.BaseModel `bun:"table:delivery_schedules"`

	ID                 string     `json:"id" bun:"id,pk"`
	OrderID            string     `json:"order_id" bun:"order_id"`
	ScheduledDate      string     `json:"scheduled_date" bun:"scheduled_date"`
	ScheduledTimeSlot  string     `json:"scheduled_time_slot" bun:"scheduled_time_slot"`
	ActualDeliveryTime *time.Time `json:"actual_delivery_time,omitempty" bun:"actual_delivery_time,nullzero"`
	AgentID            string     `json:"agent_id,omitempty" bun:"agent_id,nullzero"`
	Notes              string     `json:"notes,omitempty" bun:"notes,nullzero"`
	IsCompleted        bool       `json:"is_completed" bun:"is_completed"`
	CreatedAt          time.Time  `json:"created_at" bun:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" bun:"updated_at"`
}

// OrderCounter backs gapless order-number allocation. A single named row
// is incremented inside the order-creation transaction.
type OrderCounter struct {
	bun.BaseModel `bun:"table:order_counters"`

	Name      string `bun:"name,pk"`
	LastValue int64  `bun:"last_value"`
}

const OrderNumberCounter = "order_number"

// ---------------- ORDER DTOs ----------------

type CreateOrderRequest struct {
	OrderType           OrderType      `json:"order_type"`
	PickupAddress       string         `json:"pickup_address"`
	PickupDate          string         `json:"pickup_date"`
	PickupTimeSlot      string         `json:"pickup_time_slot"`
	DeliveryAddress     string         `json:"delivery_address,omitempty"`
	DeliveryDate        string         `json:"delivery_date,omitempty"`
	DeliveryTimeSlot    string         `json:"delivery_time_slot,omitempty"`
	SpecialInstructions string         `json:"special_instructions,omitempty"`
	Items               []EstimateItem `json:"items"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
	Notes  string      `json:"notes,omitempty"`
}

type OrderFilter struct {
	CustomerID    string
	Status        OrderStatus
	OrderType     OrderType
	PaymentStatus OrderPaymentStatus
	DateFrom      string
	DateTo        string
	Limit         int
	Offset        int
}

type OrderWithItems struct {
	Order Order       `json:"order"`
	Items []OrderItem `json:"items"`
}

type OrderTracking struct {
	Order            Order                `json:"order"`
	Items            []OrderItem          `json:"items"`
	StatusHistory    []OrderStatusHistory `json:"status_history"`
	PickupSchedule   *PickupSchedule      `json:"pickup_schedule,omitempty"`
	DeliverySchedule *DeliverySchedule    `json:"delivery_schedule,omitempty"`
}

type OrderStats struct {
	TotalOrders     int                 `json:"total_orders"`
	TotalSpent      float64             `json:"total_spent"`
	StatusBreakdown map[OrderStatus]int `json:"status_breakdown"`
}
