package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"dryclean/internal/config"
	"dryclean/internal/errs"
	"dryclean/internal/logger"
	"dryclean/internal/models"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a payment store on an existing database
// connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	log.Info("DATABASE", "Creating payment storage with existing database connection")

	store := &PostgreSQLStore{db: db, log: log}
	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment tables: %w", err)
	}

	log.Info("DATABASE", "Payment storage initialized successfully with existing connection")
	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{db: db, log: log}
	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and tables initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payment tables if not exist")

	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			payment_id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(36) NOT NULL,
			user_id VARCHAR(36) NOT NULL,
			payment_method VARCHAR(20) NOT NULL,
			amount DECIMAL(10,2) NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'INR',
			status VARCHAR(20) NOT NULL,
			gateway_payment_id VARCHAR(255),
			gateway_order_id VARCHAR(255),
			gateway_signature VARCHAR(255),
			error_message TEXT,
			error_code VARCHAR(100),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
			id VARCHAR(36) PRIMARY KEY,
			payment_id VARCHAR(64) NOT NULL,
			transaction_id VARCHAR(255) NOT NULL UNIQUE,
			amount DECIMAL(10,2) NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'INR',
			status VARCHAR(20) NOT NULL,
			gateway_response TEXT,
			gateway_fee DECIMAL(10,2) DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS refunds (
			id VARCHAR(64) PRIMARY KEY,
			payment_id VARCHAR(64) NOT NULL,
			amount DECIMAL(10,2) NOT NULL,
			reason TEXT,
			status VARCHAR(20) NOT NULL,
			gateway_refund_id VARCHAR(255),
			gateway_response TEXT,
			processed_by VARCHAR(36),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS saved_payment_methods (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			payment_method VARCHAR(20) NOT NULL,
			card_last4 VARCHAR(4),
			card_brand VARCHAR(20),
			card_exp_month INT,
			card_exp_year INT,
			gateway_payment_method_id VARCHAR(255),
			is_default BOOLEAN DEFAULT FALSE,
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		"CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments(order_id);",
		"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);",
		"CREATE INDEX IF NOT EXISTS idx_payments_gateway_order_id ON payments(gateway_order_id);",
		"CREATE INDEX IF NOT EXISTS idx_transactions_payment_id ON payment_transactions(payment_id);",
		"CREATE INDEX IF NOT EXISTS idx_refunds_payment_id ON refunds(payment_id);",
		"CREATE INDEX IF NOT EXISTS idx_saved_methods_user_id ON saved_payment_methods(user_id);",
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create payment schema: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Payment tables and indexes ready")
	return nil
}

// ---------------- PAYMENTS ----------------

func (s *PostgreSQLStore) SavePayment(payment *models.Payment) error {
	s.log.LogDatabase("INSERT", "payments", fmt.Sprintf("Saving payment %s", payment.PaymentID))

	query := `
    INSERT INTO payments (
        payment_id, order_id, user_id, payment_method, amount, currency, status,
        gateway_payment_id, gateway_order_id, gateway_signature,
        error_message, error_code, created_at, updated_at, completed_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `

	_, err := s.db.Exec(query,
		payment.PaymentID, payment.OrderID, payment.UserID, payment.Method,
		payment.Amount, payment.Currency, payment.Status,
		payment.GatewayPaymentID, payment.GatewayOrderID, payment.GatewaySignature,
		payment.ErrorMessage, payment.ErrorCode,
		payment.CreatedAt, payment.UpdatedAt, payment.CompletedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payment %s: %s", payment.PaymentID, err.Error()))
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

const paymentColumns = `
    payment_id, order_id, user_id, payment_method, amount, currency, status,
    gateway_payment_id, gateway_order_id, gateway_signature,
    error_message, error_code, created_at, updated_at, completed_at
`

func scanPayment(row interface{ Scan(...interface{}) error }) (*models.Payment, error) {
	payment := &models.Payment{}
	var gatewayPaymentID, gatewayOrderID, gatewaySignature sql.NullString
	var errorMessage, errorCode sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&payment.PaymentID, &payment.OrderID, &payment.UserID, &payment.Method,
		&payment.Amount, &payment.Currency, &payment.Status,
		&gatewayPaymentID, &gatewayOrderID, &gatewaySignature,
		&errorMessage, &errorCode,
		&payment.CreatedAt, &payment.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	payment.GatewayPaymentID = gatewayPaymentID.String
	payment.GatewayOrderID = gatewayOrderID.String
	payment.GatewaySignature = gatewaySignature.String
	payment.ErrorMessage = errorMessage.String
	payment.ErrorCode = errorCode.String
	if completedAt.Valid {
		payment.CompletedAt = &completedAt.Time
	}
	return payment, nil
}

func (s *PostgreSQLStore) GetPayment(id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`

	payment, err := scanPayment(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("payment %s: %w", id, errs.ErrNotFound)
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment %s: %s", id, err.Error()))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

func (s *PostgreSQLStore) GetPaymentByGatewayOrderID(gatewayOrderID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_order_id = $1`

	payment, err := scanPayment(s.db.QueryRow(query, gatewayOrderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("payment with gateway order %s: %w", gatewayOrderID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

func (s *PostgreSQLStore) UpdatePayment(payment *models.Payment) error {
	s.log.LogDatabase("UPDATE", "payments", fmt.Sprintf("Updating payment %s", payment.PaymentID))

	query := `
    UPDATE payments SET
        status = $1, gateway_payment_id = $2, gateway_order_id = $3,
        gateway_signature = $4, error_message = $5, error_code = $6,
        updated_at = $7, completed_at = $8
    WHERE payment_id = $9
    `

	_, err := s.db.Exec(query,
		payment.Status, payment.GatewayPaymentID, payment.GatewayOrderID,
		payment.GatewaySignature, payment.ErrorMessage, payment.ErrorCode,
		payment.UpdatedAt, payment.CompletedAt, payment.PaymentID,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update payment %s: %s", payment.PaymentID, err.Error()))
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) ListPaymentsByOrder(orderID string) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.Query(query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return payments, nil
}

// ---------------- TRANSACTIONS ----------------

func (s *PostgreSQLStore) SaveTransaction(txn *models.PaymentTransaction) error {
	s.log.LogDatabase("INSERT", "payment_transactions", fmt.Sprintf("Recording transaction %s", txn.TransactionID))

	query := `
    INSERT INTO payment_transactions (
        id, payment_id, transaction_id, amount, currency, status,
        gateway_response, gateway_fee, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `

	_, err := s.db.Exec(query,
		txn.ID, txn.PaymentID, txn.TransactionID, txn.Amount, txn.Currency,
		txn.Status, txn.GatewayResponse, txn.GatewayFee, txn.CreatedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to record transaction %s: %s", txn.TransactionID, err.Error()))
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) TransactionExists(transactionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM payment_transactions WHERE transaction_id = $1)",
		transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	return exists, nil
}

func (s *PostgreSQLStore) ListTransactionsByPayment(paymentID string) ([]*models.PaymentTransaction, error) {
	query := `
    SELECT id, payment_id, transaction_id, amount, currency, status,
        gateway_response, gateway_fee, created_at
    FROM payment_transactions WHERE payment_id = $1 ORDER BY created_at ASC
    `

	rows, err := s.db.Query(query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.PaymentTransaction
	for rows.Next() {
		txn := &models.PaymentTransaction{}
		var gatewayResponse sql.NullString
		err := rows.Scan(
			&txn.ID, &txn.PaymentID, &txn.TransactionID, &txn.Amount, &txn.Currency,
			&txn.Status, &gatewayResponse, &txn.GatewayFee, &txn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.GatewayResponse = gatewayResponse.String
		txns = append(txns, txn)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return txns, nil
}

// ---------------- REFUNDS ----------------

func (s *PostgreSQLStore) SaveRefund(refund *models.Refund) error {
	s.log.LogDatabase("INSERT", "refunds", fmt.Sprintf("Saving refund %s", refund.ID))

	query := `
    INSERT INTO refunds (
        id, payment_id, amount, reason, status, gateway_refund_id,
        gateway_response, processed_by, created_at, updated_at, completed_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `

	_, err := s.db.Exec(query,
		refund.ID, refund.PaymentID, refund.Amount, refund.Reason, refund.Status,
		refund.GatewayRefundID, refund.GatewayResponse, refund.ProcessedBy,
		refund.CreatedAt, refund.UpdatedAt, refund.CompletedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save refund %s: %s", refund.ID, err.Error()))
		return fmt.Errorf("failed to save refund: %w", err)
	}
	return nil
}

func scanRefund(row interface{ Scan(...interface{}) error }) (*models.Refund, error) {
	refund := &models.Refund{}
	var gatewayRefundID, gatewayResponse, processedBy, reason sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&refund.ID, &refund.PaymentID, &refund.Amount, &reason, &refund.Status,
		&gatewayRefundID, &gatewayResponse, &processedBy,
		&refund.CreatedAt, &refund.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	refund.Reason = reason.String
	refund.GatewayRefundID = gatewayRefundID.String
	refund.GatewayResponse = gatewayResponse.String
	refund.ProcessedBy = processedBy.String
	if completedAt.Valid {
		refund.CompletedAt = &completedAt.Time
	}
	return refund, nil
}

const refundColumns = `
    id, payment_id, amount, reason, status, gateway_refund_id,
    gateway_response, processed_by, created_at, updated_at, completed_at
`

func (s *PostgreSQLStore) GetRefund(id string) (*models.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1`

	refund, err := scanRefund(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("refund %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	return refund, nil
}

func (s *PostgreSQLStore) UpdateRefund(refund *models.Refund) error {
	query := `
    UPDATE refunds SET
        status = $1, gateway_refund_id = $2, gateway_response = $3,
        updated_at = $4, completed_at = $5
    WHERE id = $6
    `

	_, err := s.db.Exec(query,
		refund.Status, refund.GatewayRefundID, refund.GatewayResponse,
		refund.UpdatedAt, refund.CompletedAt, refund.ID,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update refund %s: %s", refund.ID, err.Error()))
		return fmt.Errorf("failed to update refund: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) ListRefundsByPayment(paymentID string) ([]*models.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE payment_id = $1 ORDER BY created_at ASC`

	rows, err := s.db.Query(query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*models.Refund
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		refunds = append(refunds, refund)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return refunds, nil
}

// CompletedRefundTotal sums the refunds that have actually settled.
// Pending refunds do not count: a refund that never reaches the gateway
// must not shrink the remaining balance or trigger the refunded cascade.
func (s *PostgreSQLStore) CompletedRefundTotal(paymentID string) (float64, error) {
	var total float64
	err := s.db.QueryRow(`
    SELECT COALESCE(SUM(amount), 0) FROM refunds
    WHERE payment_id = $1 AND status = 'completed'
    `, paymentID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum refunds: %w", err)
	}
	return total, nil
}

// ---------------- SAVED METHODS ----------------

func (s *PostgreSQLStore) SaveMethod(method *models.SavedPaymentMethod) error {
	query := `
    INSERT INTO saved_payment_methods (
        id, user_id, payment_method, card_last4, card_brand,
        card_exp_month, card_exp_year, gateway_payment_method_id,
        is_default, is_active, created_at, updated_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `

	_, err := s.db.Exec(query,
		method.ID, method.UserID, method.Method, method.CardLast4, method.CardBrand,
		method.CardExpMonth, method.CardExpYear, method.GatewayMethodID,
		method.IsDefault, method.IsActive, method.CreatedAt, method.UpdatedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payment method %s: %s", method.ID, err.Error()))
		return fmt.Errorf("failed to save payment method: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) GetMethod(id string) (*models.SavedPaymentMethod, error) {
	query := `
    SELECT id, user_id, payment_method, card_last4, card_brand,
        card_exp_month, card_exp_year, gateway_payment_method_id,
        is_default, is_active, created_at, updated_at
    FROM saved_payment_methods WHERE id = $1
    `

	method := &models.SavedPaymentMethod{}
	var cardLast4, cardBrand, gatewayMethodID sql.NullString
	var expMonth, expYear sql.NullInt64
	err := s.db.QueryRow(query, id).Scan(
		&method.ID, &method.UserID, &method.Method, &cardLast4, &cardBrand,
		&expMonth, &expYear, &gatewayMethodID,
		&method.IsDefault, &method.IsActive, &method.CreatedAt, &method.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("payment method %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}
	method.CardLast4 = cardLast4.String
	method.CardBrand = cardBrand.String
	method.GatewayMethodID = gatewayMethodID.String
	method.CardExpMonth = int(expMonth.Int64)
	method.CardExpYear = int(expYear.Int64)
	return method, nil
}

func (s *PostgreSQLStore) ListMethodsByUser(userID string) ([]*models.SavedPaymentMethod, error) {
	query := `
    SELECT id, user_id, payment_method, card_last4, card_brand,
        card_exp_month, card_exp_year, gateway_payment_method_id,
        is_default, is_active, created_at, updated_at
    FROM saved_payment_methods
    WHERE user_id = $1 AND is_active = TRUE
    ORDER BY is_default DESC, created_at DESC
    `

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []*models.SavedPaymentMethod
	for rows.Next() {
		method := &models.SavedPaymentMethod{}
		var cardLast4, cardBrand, gatewayMethodID sql.NullString
		var expMonth, expYear sql.NullInt64
		err := rows.Scan(
			&method.ID, &method.UserID, &method.Method, &cardLast4, &cardBrand,
			&expMonth, &expYear, &gatewayMethodID,
			&method.IsDefault, &method.IsActive, &method.CreatedAt, &method.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		method.CardLast4 = cardLast4.String
		method.CardBrand = cardBrand.String
		method.GatewayMethodID = gatewayMethodID.String
		method.CardExpMonth = int(expMonth.Int64)
		method.CardExpYear = int(expYear.Int64)
		methods = append(methods, method)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return methods, nil
}

// ClearDefaultMethods drops the default flag on every method a user has,
// so the caller can set exactly one.
func (s *PostgreSQLStore) ClearDefaultMethods(userID string) error {
	_, err := s.db.Exec(
		"UPDATE saved_payment_methods SET is_default = FALSE, updated_at = CURRENT_TIMESTAMP WHERE user_id = $1",
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear default methods: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) DeactivateMethod(id, userID string) error {
	res, err := s.db.Exec(
		"UPDATE saved_payment_methods SET is_active = FALSE, is_default = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND user_id = $2",
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate payment method: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("payment method %s: %w", id, errs.ErrNotFound)
	}
	return nil
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "postgresql", "Closing PostgreSQL connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
