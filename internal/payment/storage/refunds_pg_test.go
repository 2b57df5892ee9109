package storage

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"dryclean/internal/logger"
	"dryclean/internal/models"
)

// TestCompletedRefundTotal_SettledOnly runs the refund sum against a real
// Postgres container. Refunds that are still pending must not count toward
// the total, or a refund waiting on the gateway would shrink the remaining
// balance and fire the refunded cascade early.
func TestCompletedRefundTotal_SettledOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "dryclean",
				"POSTGRES_PASSWORD": "dryclean",
				"POSTGRES_DB":       "dryclean_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Docker is unavailable: %v", err)
	}
	defer pgContainer.Terminate(ctx)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=dryclean password=dryclean dbname=dryclean_test sslmode=disable",
		host, port.Port())
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	store, err := NewPostgreSQLStoreWithDB(db, logger.NewTestLogger())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.SavePayment(&models.Payment{
		PaymentID: "pay-1",
		OrderID:   "order-1",
		UserID:    "user-1",
		Method:    models.MethodStripe,
		Amount:    113.00,
		Currency:  "INR",
		Status:    models.PaymentCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	saveRefund := func(id string, amount float64) *models.Refund {
		refund := &models.Refund{
			ID:        id,
			PaymentID: "pay-1",
			Amount:    amount,
			Status:    models.RefundPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, store.SaveRefund(refund))
		return refund
	}
	first := saveRefund("rfnd-1", 50.00)
	second := saveRefund("rfnd-2", 63.00)

	total, err := store.CompletedRefundTotal("pay-1")
	require.NoError(t, err)
	assert.Equal(t, 0.00, total)

	// Settling one refund leaves the other pending 50.00 out of the sum.
	second.Status = models.RefundCompleted
	second.CompletedAt = &now
	second.UpdatedAt = now
	require.NoError(t, store.UpdateRefund(second))

	total, err = store.CompletedRefundTotal("pay-1")
	require.NoError(t, err)
	assert.Equal(t, 63.00, total)

	first.Status = models.RefundCompleted
	first.CompletedAt = &now
	first.UpdatedAt = now
	require.NoError(t, store.UpdateRefund(first))

	total, err = store.CompletedRefundTotal("pay-1")
	require.NoError(t, err)
	assert.Equal(t, 113.00, total)
}
