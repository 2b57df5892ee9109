package storage

import (
	"dryclean/internal/models"
)

type Store interface {
	// Payment operations
	SavePayment(payment *models.Payment) error
	GetPayment(id string) (*models.Payment, error)
	UpdatePayment(payment *models.Payment) error
	GetPaymentByGatewayOrderID(gatewayOrderID string) (*models.Payment, error)
	ListPaymentsByOrder(orderID string) ([]*models.Payment, error)

	// Transaction ledger (append-only)
	SaveTransaction(txn *models.PaymentTransaction) error
	TransactionExists(transactionID string) (bool, error)
	ListTransactionsByPayment(paymentID string) ([]*models.PaymentTransaction, error)

	// Refund operations
	SaveRefund(refund *models.Refund) error
	GetRefund(id string) (*models.Refund, error)
	UpdateRefund(refund *models.Refund) error
	ListRefundsByPayment(paymentID string) ([]*models.Refund, error)
	CompletedRefundTotal(paymentID string) (float64, error)

	// Saved payment methods
	SaveMethod(method *models.SavedPaymentMethod) error
	GetMethod(id string) (*models.SavedPaymentMethod, error)
	ListMethodsByUser(userID string) ([]*models.SavedPaymentMethod, error)
	ClearDefaultMethods(userID string) error
	DeactivateMethod(id, userID string) error

	// Health and maintenance
	Close() error
	HealthCheck() error
}
