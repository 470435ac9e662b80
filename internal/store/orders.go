package store

import (
	"context"
	"database/sql"
	"fmt"

	"course-service/internal/models"
)

// Ledger write steps, reported when a purchase transaction fails
const (
	LedgerStepOrder        = "order"
	LedgerStepOrderItem    = "order_item"
	LedgerStepPayment      = "payment"
	LedgerStepStatusUpdate = "order_status_update"
)

// LedgerError identifies which step of the purchase write failed
type LedgerError struct {
	Step string
	Err  error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger step %s failed: %v", e.Step, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Purchase bundles the rows written together at checkout
type Purchase struct {
	Order     models.Order
	OrderItem models.OrderItem
	Payment   models.Payment
}

// CreatePurchaseTx writes Order, OrderItem and Payment in a single
// transaction. All rows commit together or not at all; a failure is
// reported with the failing step identified.
func (s *Store) CreatePurchaseTx(ctx context.Context, p *Purchase) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin purchase tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, &p.Order, `
		INSERT INTO orders (learner_id, purchase_type, subtotal_cents, discount_cents,
		                    tax_cents, total_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`,
		p.Order.LearnerID, p.Order.PurchaseType, p.Order.SubtotalCents, p.Order.DiscountCents,
		p.Order.TaxCents, p.Order.TotalCents, p.Order.Currency, p.Order.Status)
	if err != nil {
		return &LedgerError{Step: LedgerStepOrder, Err: err}
	}

	p.OrderItem.OrderID = p.Order.ID
	err = tx.GetContext(ctx, &p.OrderItem.ID, `
		INSERT INTO order_items (order_id, course_id, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		p.OrderItem.OrderID, p.OrderItem.CourseID, p.OrderItem.Quantity, p.OrderItem.UnitPriceCents)
	if err != nil {
		return &LedgerError{Step: LedgerStepOrderItem, Err: err}
	}

	p.Payment.OrderID = p.Order.ID
	err = tx.GetContext(ctx, &p.Payment, `
		INSERT INTO payments (order_id, provider, provider_payment_id, status, amount_cents, receipt_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		p.Payment.OrderID, p.Payment.Provider, p.Payment.ProviderPaymentID,
		p.Payment.Status, p.Payment.AmountCents, p.Payment.ReceiptURL)
	if err != nil {
		return &LedgerError{Step: LedgerStepPayment, Err: err}
	}

	if p.Order.Status != models.OrderStatusCompleted {
		err = tx.GetContext(ctx, &p.Order, `
			UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2
			RETURNING *`,
			models.OrderStatusCompleted, p.Order.ID)
		if err != nil {
			return &LedgerError{Step: LedgerStepStatusUpdate, Err: err}
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByLearnerID retrieves orders for a learner
func (s *Store) GetOrdersByLearnerID(ctx context.Context, learnerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE learner_id = $1 ORDER BY created_at DESC", learnerID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// GetPaymentByOrderID retrieves the payment for an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment not found for order: %d", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
