package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"dryclean/internal/errs"
	"dryclean/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDER CREATION ----------------

// nextOrderNumber increments the named counter row and formats the order
// number. The UPDATE serializes concurrent creators on the row lock, so
// numbers come out gapless as long as the surrounding transaction commits.
func nextOrderNumber(ctx context.Context, tx bun.Tx) (string, error) {
	var lastValue int64
	err := tx.QueryRowContext(ctx,
		"UPDATE order_counters SET last_value = last_value + 1 WHERE name = ? RETURNING last_value",
		models.OrderNumberCounter,
	).Scan(&lastValue)
	if err != nil {
		return "", fmt.Errorf("order number allocation: %w", err)
	}
	return fmt.Sprintf("ORD%06d", lastValue), nil
}

// CreateOrder persists the order, its items and the initial status history
// row in one transaction, allocating the order number inside it.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		number, err := nextOrderNumber(ctx, tx)
		if err != nil {
			return err
		}
		order.OrderNumber = number

		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range items {
			items[i].OrderID = order.ID
		}
		if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		history := models.OrderStatusHistory{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			Status:    order.Status,
			Notes:     "Order placed",
			CreatedAt: time.Now(),
		}
		if _, err := tx.NewInsert().Model(&history).Exec(ctx); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
		return nil
	})
}

// ---------------- ORDER READS ----------------

func (d *DB) OrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) OrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_number = ?", number).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", number, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) ItemsByOrder(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DB) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var orders []models.Order
	q := d.Bun.NewSelect().Model(&orders)
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.OrderType != "" {
		q = q.Where("order_type = ?", filter.OrderType)
	}
	if filter.PaymentStatus != "" {
		q = q.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.DateFrom != "" {
		q = q.Where("pickup_date >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		q = q.Where("pickup_date <= ?", filter.DateTo)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	err := q.Order("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ---------------- STATUS ----------------

// UpdateOrderStatus moves the order to newStatus and appends the history
// row in one transaction. The WHERE guard on the current status turns a
// lost race into errs.ErrConflict instead of a silent double transition.
func (d *DB) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, notes, actorID string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", to).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", orderID).
			Where("status = ?", from).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("order %s changed status concurrently: %w", orderID, errs.ErrConflict)
		}

		history := models.OrderStatusHistory{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			Status:    to,
			Notes:     notes,
			ActorID:   actorID,
			CreatedAt: time.Now(),
		}
		if _, err := tx.NewInsert().Model(&history).Exec(ctx); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
		return nil
	})
}

func (d *DB) StatusHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	var history []models.OrderStatusHistory
	err := d.Bun.NewSelect().
		Model(&history).
		Where("order_id = ?", orderID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return history, nil
}

// ---------------- ITEM MUTATION ----------------

// AddItem inserts the item and rewrites the order totals in one
// transaction. Totals are computed by the caller from the full item set.
func (d *DB) AddItem(ctx context.Context, item *models.OrderItem, order *models.Order) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(item).Exec(ctx); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
		return updateTotalsTx(ctx, tx, order)
	})
}

// RemoveItem deletes the item and rewrites the order totals in one
// transaction.
func (d *DB) RemoveItem(ctx context.Context, itemID string, order *models.Order) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.OrderItem)(nil)).
			Where("id = ?", itemID).
			Where("order_id = ?", order.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete order item: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return fmt.Errorf("order item %s: %w", itemID, errs.ErrNotFound)
		}
		return updateTotalsTx(ctx, tx, order)
	})
}

func updateTotalsTx(ctx context.Context, tx bun.Tx, order *models.Order) error {
	_, err := tx.NewUpdate().
		Model(order).
		Column("subtotal", "tax", "delivery_fee", "total_amount", "updated_at").
		Where("id = ?", order.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update order totals: %w", err)
	}
	return nil
}

func (d *DB) UpdateTotals(ctx context.Context, order *models.Order) error {
	order.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(order).
		Column("subtotal", "tax", "delivery_fee", "total_amount", "updated_at").
		Where("id = ?", order.ID).
		Exec(ctx)
	return err
}

// ---------------- PAYMENT SIDE ----------------

// MarkPaid flips the order payment status to paid. Guarded on the current
// pending/failed state so a replayed confirmation cannot double-apply.
func (d *DB) MarkPaid(ctx context.Context, orderID, method string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", models.OrderPaymentPaid).
		Set("payment_method = ?", method).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", orderID).
		Where("payment_status IN (?)", bun.In([]models.OrderPaymentStatus{
			models.OrderPaymentPending, models.OrderPaymentFailed,
		})).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("order %s is not awaiting payment: %w", orderID, errs.ErrConflict)
	}
	return nil
}

// MarkRefunded is the full-refund cascade target.
func (d *DB) MarkRefunded(ctx context.Context, orderID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", models.OrderPaymentRefunded).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", orderID).
		Where("payment_status = ?", models.OrderPaymentPaid).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("order %s is not paid: %w", orderID, errs.ErrConflict)
	}
	return nil
}

// ---------------- SCHEDULES ----------------

func (d *DB) PickupScheduleByOrder(ctx context.Context, orderID string) (*models.PickupSchedule, error) {
	var schedule models.PickupSchedule
	err := d.Bun.NewSelect().
		Model(&schedule).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (d *DB) DeliveryScheduleByOrder(ctx context.Context, orderID string) (*models.DeliverySchedule, error) {
	var schedule models.DeliverySchedule
	err := d.Bun.NewSelect().
		Model(&schedule).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (d *DB) SavePickupSchedule(ctx context.Context, schedule *models.PickupSchedule) error {
	schedule.UpdatedAt = time.Now()
	_, err := d.Bun.NewInsert().
		Model(schedule).
		On("CONFLICT (id) DO UPDATE").
		Set("agent_id = EXCLUDED.agent_id").
		Set("scheduled_date = EXCLUDED.scheduled_date").
		Set("scheduled_time_slot = EXCLUDED.scheduled_time_slot").
		Set("actual_pickup_time = EXCLUDED.actual_pickup_time").
		Set("notes = EXCLUDED.notes").
		Set("is_completed = EXCLUDED.is_completed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (d *DB) SaveDeliverySchedule(ctx context.Context, schedule *models.DeliverySchedule) error {
	schedule.UpdatedAt = time.Now()
	_, err := d.Bun.NewInsert().
		Model(schedule).
		On("CONFLICT (id) DO UPDATE").
		Set("agent_id = EXCLUDED.agent_id").
		Set("scheduled_date = EXCLUDED.scheduled_date").
		Set("scheduled_time_slot = EXCLUDED.scheduled_time_slot").
		Set("actual_delivery_time = EXCLUDED.actual_delivery_time").
		Set("notes = EXCLUDED.notes").
		Set("is_completed = EXCLUDED.is_completed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ---------------- STATS ----------------

func (d *DB) OrderStats(ctx context.Context, customerID string) (*models.OrderStats, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("customer_id = ?", customerID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.OrderStats{
		TotalOrders:     len(orders),
		StatusBreakdown: make(map[models.OrderStatus]int),
	}
	for _, order := range orders {
		stats.StatusBreakdown[order.Status]++
		if order.PaymentStatus == models.OrderPaymentPaid {
			stats.TotalSpent += order.TotalAmount
		}
	}
	return stats, nil
}
