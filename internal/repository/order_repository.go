package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/google/uuid"
)

const orderColumns = `id, checkout_id, user_id, total_amount, status, customer_name, customer_email,
	customer_phone, shipping_address, city, postal_code, payment_method, created_at, updated_at`

func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order, event *OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, insertErr := tx.ExecContext(ctx, query,
		order.ID,
		order.CheckoutID,
		order.UserID,
		order.Total.String(),
		string(order.Status),
		order.Customer.Name,
		order.Customer.Email,
		order.Customer.Phone,
		order.Customer.Address,
		order.Customer.City,
		nullString(order.Customer.PostalCode),
		string(order.PaymentMethod),
		order.CreatedAt,
		order.UpdatedAt)
	if insertErr != nil {
		if uniqueOn(insertErr, "checkout_id") {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	itemQuery := `INSERT INTO order_items (order_id, position, product_id, quantity, price, created_at)
	              VALUES ($1, $2, $3, $4, $5, $6)`
	for i, line := range order.Lines {
		if _, err := tx.ExecContext(ctx, itemQuery,
			order.ID,
			i,
			line.ProductID,
			line.Quantity,
			line.UnitPrice.String(),
			order.CreatedAt); err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	if event != nil {
		if err := insertOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Repository) GetOrderByCheckoutID(ctx context.Context, checkoutID uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE checkout_id = $1`, checkoutID)
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *Repository) ListAllOrders(ctx context.Context) ([]*domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, event *OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}

	if event != nil {
		if err := insertOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order status: %w", err)
	}
	return nil
}

func (r *Repository) getOrder(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if err := r.loadLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) listOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	// headers must be released before lines are read: sqlite runs on one connection
	rows.Close()

	for _, order := range orders {
		if err := r.loadLines(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// loadLines joins the purchased lines back to the catalog for display,
// falling back to placeholders when a product has since been deleted.
func (r *Repository) loadLines(ctx context.Context, order *domain.Order) error {
	query := `SELECT oi.product_id, oi.quantity, oi.price, p.name, p.image_url, c.name
	          FROM order_items oi
	          LEFT JOIN products p ON p.id = oi.product_id
	          LEFT JOIN categories c ON c.id = p.category_id
	          WHERE oi.order_id = $1
	          ORDER BY oi.position`

	rows, err := r.db.QueryContext(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	order.Lines = make([]domain.OrderLine, 0)
	for rows.Next() {
		var (
			line                    domain.OrderLine
			price                   string
			name, image, categoryNm sql.NullString
		)
		if err := rows.Scan(&line.ProductID, &line.Quantity, &price, &name, &image, &categoryNm); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if line.UnitPrice, err = parseMoney(price); err != nil {
			return fmt.Errorf("parse order item price: %w", err)
		}
		line.Display = domain.LineDisplay{
			Name:     orDefault(name, domain.PlaceholderProductName),
			ImageURL: orDefault(image, domain.PlaceholderImageURL),
			Category: orDefault(categoryNm, domain.PlaceholderCategory),
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order      domain.Order
		total      string
		status     string
		payment    string
		postalCode sql.NullString
	)
	err := row.Scan(
		&order.ID,
		&order.CheckoutID,
		&order.UserID,
		&total,
		&status,
		&order.Customer.Name,
		&order.Customer.Email,
		&order.Customer.Phone,
		&order.Customer.Address,
		&order.Customer.City,
		&postalCode,
		&payment,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if order.Total, err = parseMoney(total); err != nil {
		return nil, fmt.Errorf("parse order total: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentKind(payment)
	order.Customer.PostalCode = postalCode.String
	return &order, nil
}
