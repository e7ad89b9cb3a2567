package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"biashara-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateSale persists a payment and its line items in one transaction.
//
// All product rows for the sale are locked FOR UPDATE in ascending ID order,
// stock is validated for every line item before anything is written, and
// stock decrements happen together with the inserts. If the payment arrives
// already in completed status (the cash path), the customer's running totals
// are updated in the same transaction. Any validation failure rolls the
// whole thing back.
//
// Returns the post-decrement state of every product that ended at or below
// its low-stock threshold, so the caller can emit alerts after commit.
func (s *Store) CreateSale(ctx context.Context, scope models.Scope, payment *models.Payment, items []models.PaymentItem) ([]models.Product, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Aggregate quantities per product; the same product may appear on
	// more than one line.
	wanted := make(map[int64]int)
	for _, item := range items {
		wanted[item.ProductID] += item.Quantity
	}

	ids := make([]int64, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	// Locking in ID order keeps concurrent sales from deadlocking.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	query, args, err := sqlx.In(
		"SELECT * FROM products WHERE business_id = ? AND id IN (?) ORDER BY id FOR UPDATE",
		scope.BusinessID, ids)
	if err != nil {
		return nil, err
	}
	query = tx.Rebind(query)

	var products []models.Product
	if err := tx.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}

	locked := make(map[int64]*models.Product, len(products))
	for i := range products {
		locked[products[i].ID] = &products[i]
	}

	for _, id := range ids {
		product, ok := locked[id]
		if !ok {
			return nil, &models.NotFoundError{Resource: "product", ID: id}
		}
		if product.Stock < wanted[id] {
			return nil, &models.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   wanted[id],
				Available:   product.Stock,
			}
		}
	}

	err = tx.GetContext(ctx, payment, `
		INSERT INTO payments (customer_id, business_id, user_id, amount, status, method, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *`,
		payment.CustomerID, payment.BusinessID, payment.UserID, payment.Amount,
		payment.Status, payment.Method, payment.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	for i := range items {
		items[i].PaymentID = payment.ID
		err = tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO payment_items (payment_id, product_id, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].PaymentID, items[i].ProductID, items[i].Quantity,
			items[i].UnitPrice, items[i].TotalPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to create payment item: %w", err)
		}
	}

	var lowStock []models.Product
	for _, id := range ids {
		_, err = tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2",
			wanted[id], id)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}

		product := locked[id]
		product.Stock -= wanted[id]
		if product.Stock <= product.LowStockThreshold {
			lowStock = append(lowStock, *product)
		}
	}

	if payment.Status == models.PaymentStatusCompleted {
		if err := applyCustomerPurchase(ctx, tx, payment.CustomerID, payment.Amount); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return lowStock, nil
}

func applyCustomerPurchase(ctx context.Context, tx *sqlx.Tx, customerID int64, amount float64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET total_purchases = total_purchases + $1, last_purchase = NOW(), updated_at = NOW()
		WHERE id = $2`,
		amount, customerID)
	if err != nil {
		return fmt.Errorf("failed to update customer totals: %w", err)
	}
	return nil
}

// SetCheckoutRequestID stores the provider checkout reference after a
// successful push initiation. The pending guard means a callback that
// already resolved the sale wins over a slow dispatcher.
func (s *Store) SetCheckoutRequestID(ctx context.Context, paymentID int64, checkoutRequestID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET checkout_request_id = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		checkoutRequestID, paymentID, models.PaymentStatusPending)
	return err
}

// FailSale moves a still-pending payment to failed. Terminal payments are
// left untouched; product stock is never restored.
func (s *Store) FailSale(ctx context.Context, paymentID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.PaymentStatusFailed, paymentID, models.PaymentStatusPending)
	return err
}

// CompleteSaleByCheckoutID resolves a provider success callback: the single
// pending payment carrying the checkout reference is completed, the receipt
// stored, and the customer's totals updated, all in one transaction.
//
// Returns (nil, nil) when no pending payment matches, which covers unknown
// references, replayed callbacks, and races with a concurrent resolution --
// the status guard in the UPDATE makes reprocessing a no-op at the row level.
func (s *Store) CompleteSaleByCheckoutID(ctx context.Context, checkoutRequestID, receiptNumber string) (*models.Payment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var payment models.Payment
	err = tx.GetContext(ctx, &payment, `
		UPDATE payments
		SET status = $1, mpesa_receipt_number = $2, updated_at = NOW()
		WHERE checkout_request_id = $3 AND status = $4
		RETURNING *`,
		models.PaymentStatusCompleted, receiptNumber,
		checkoutRequestID, models.PaymentStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete payment: %w", err)
	}

	if err := applyCustomerPurchase(ctx, tx, payment.CustomerID, payment.Amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FailSaleByCheckoutID resolves a provider failure callback. No customer
// ledger update happens for a failed sale.
func (s *Store) FailSaleByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE checkout_request_id = $2 AND status = $3
		RETURNING *`,
		models.PaymentStatusFailed, checkoutRequestID, models.PaymentStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fail payment: %w", err)
	}
	return &payment, nil
}

// GetPayment retrieves a payment scoped to a business
func (s *Store) GetPayment(ctx context.Context, businessID, paymentID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE id = $1 AND business_id = $2", paymentID, businessID)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Resource: "payment", ID: paymentID}
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentItems retrieves all line items for a payment
func (s *Store) GetPaymentItems(ctx context.Context, paymentID int64) ([]models.PaymentItem, error) {
	var items []models.PaymentItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM payment_items WHERE payment_id = $1 ORDER BY id", paymentID)
	return items, err
}

// ListPayments retrieves payments for a business, newest first, with
// optional status and method filters
func (s *Store) ListPayments(ctx context.Context, businessID int64, status, method string, limit, offset int) ([]models.Payment, error) {
	query := "SELECT * FROM payments WHERE business_id = $1"
	args := []interface{}{businessID}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if method != "" {
		args = append(args, method)
		query += fmt.Sprintf(" AND method = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments, query, args...)
	return payments, err
}

// ListPaymentsByCustomer retrieves a customer's payments, newest first
func (s *Store) ListPaymentsByCustomer(ctx context.Context, businessID, customerID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE business_id = $1 AND customer_id = $2 ORDER BY created_at DESC",
		businessID, customerID)
	return payments, err
}

// DashboardStats holds completed-sale totals for the dashboard
type DashboardStats struct {
	TodaySales float64 `db:"today_sales" json:"today_sales"`
	WeekSales  float64 `db:"week_sales" json:"week_sales"`
	MonthSales float64 `db:"month_sales" json:"month_sales"`
}

// GetDashboardStats aggregates completed-sale revenue for today, the
// current week, and the current month
func (s *Store) GetDashboardStats(ctx context.Context, businessID int64) (*DashboardStats, error) {
	var stats DashboardStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE created_at::date = CURRENT_DATE), 0)                  AS today_sales,
			COALESCE(SUM(amount) FILTER (WHERE created_at >= date_trunc('week', CURRENT_DATE)), 0)  AS week_sales,
			COALESCE(SUM(amount) FILTER (WHERE created_at >= date_trunc('month', CURRENT_DATE)), 0) AS month_sales
		FROM payments
		WHERE business_id = $1 AND status = $2`,
		businessID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
