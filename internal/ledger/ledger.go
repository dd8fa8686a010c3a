// Package ledger is the durable record of placed orders.
//
// An order is written once, header and lines together, and afterwards only
// its status changes. Every write also records an outbox event in the same
// transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Ledger struct {
	orders repository.OrderRepository
	now    func() time.Time
}

func New(orders repository.OrderRepository) *Ledger {
	return &Ledger{
		orders: orders,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists the order described by req and returns its id. A request
// whose CheckoutID is already stored returns the stored order's id, so a
// retry after an ambiguous failure never creates a second order.
func (l *Ledger) Create(ctx context.Context, req domain.OrderRequest) (uuid.UUID, error) {
	if req.UserID == "" {
		return uuid.Nil, domain.ErrUnauthorized
	}
	lines, err := validate(req)
	if err != nil {
		return uuid.Nil, err
	}

	checkoutID := req.CheckoutID
	if checkoutID == uuid.Nil {
		checkoutID = uuid.New()
	}
	now := l.now()
	order := &domain.Order{
		ID:            uuid.New(),
		CheckoutID:    checkoutID,
		UserID:        req.UserID,
		Lines:         lines,
		Total:         domain.SumLines(lines),
		Status:        domain.OrderStatusPending,
		Customer:      req.Customer,
		PaymentMethod: req.Payment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	event, err := orderPlacedEvent(order)
	if err != nil {
		return uuid.Nil, err
	}

	err = l.orders.CreateOrder(ctx, order, event)
	if errors.Is(err, repository.ErrDuplicateCheckout) {
		return l.existing(ctx, req.UserID, checkoutID)
	}
	if err != nil {
		return uuid.Nil, &domain.PersistenceError{Op: "create order", Err: err}
	}

	log.Printf("Order %s placed by %s: %d lines, total %s", order.ID, order.UserID, len(order.Lines), order.Total)
	return order.ID, nil
}

func (l *Ledger) existing(ctx context.Context, userID string, checkoutID uuid.UUID) (uuid.UUID, error) {
	order, err := l.orders.GetOrderByCheckoutID(ctx, checkoutID)
	if err != nil {
		return uuid.Nil, &domain.PersistenceError{Op: "load order by checkout", Err: err}
	}
	if order.UserID != userID {
		return uuid.Nil, domain.InvalidOperation("checkout %s belongs to another user", checkoutID)
	}
	log.Printf("Duplicate checkout %s, returning order %s", checkoutID, order.ID)
	return order.ID, nil
}

// ListFor returns the user's orders newest first, or every order when the
// user is an administrator.
func (l *Ledger) ListFor(ctx context.Context, user *domain.User) ([]*domain.Order, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrUnauthorized
	}

	var (
		orders []*domain.Order
		err    error
	)
	if user.IsAdmin {
		orders, err = l.orders.ListAllOrders(ctx)
	} else {
		orders, err = l.orders.ListOrdersByUserID(ctx, user.ID)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

// Get returns one order. Another user's order is reported as missing.
func (l *Ledger) Get(ctx context.Context, user *domain.User, id uuid.UUID) (*domain.Order, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrUnauthorized
	}

	order, err := l.orders.GetOrderByID(ctx, id)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, domain.NotFound("order %s", id)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get order", Err: err}
	}
	if !user.IsAdmin && order.UserID != user.ID {
		return nil, domain.NotFound("order %s", id)
	}
	return order, nil
}

// UpdateStatus overwrites the status. Any known status may follow any other.
func (l *Ledger) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	if !status.Valid() {
		verr := domain.NewValidationError()
		verr.Add("status", fmt.Sprintf("unknown order status %q", status))
		return verr
	}

	event, err := statusChangedEvent(id.String(), status, l.now())
	if err != nil {
		return err
	}

	err = l.orders.UpdateOrderStatus(ctx, id, status, event)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return domain.NotFound("order %s", id)
	}
	if err != nil {
		return &domain.PersistenceError{Op: "update order status", Err: err}
	}

	log.Printf("Order %s status set to %s", id, status)
	return nil
}

// Overview summarizes every order for the admin console. ProductCount is
// left to the caller, which owns the catalog.
func (l *Ledger) Overview(ctx context.Context, user *domain.User) (*domain.Overview, error) {
	if err := domain.RequireAdmin(user); err != nil {
		return nil, err
	}

	orders, err := l.orders.ListAllOrders(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list orders", Err: err}
	}

	overview := &domain.Overview{
		OrderCount: len(orders),
		Revenue:    decimal.Zero,
		ByStatus:   make(map[domain.OrderStatus]int, len(domain.OrderStatuses)),
	}
	for _, s := range domain.OrderStatuses {
		overview.ByStatus[s] = 0
	}
	customers := make(map[string]struct{})
	for _, o := range orders {
		overview.Revenue = overview.Revenue.Add(o.Total)
		overview.ByStatus[o.Status]++
		customers[o.UserID] = struct{}{}
	}
	overview.CustomerCount = len(customers)
	return overview, nil
}

// validate checks the request and turns the snapshot into order lines.
func validate(req domain.OrderRequest) ([]domain.OrderLine, error) {
	verr := domain.NewValidationError()

	if len(req.Snapshot.Lines) == 0 {
		verr.Add("cart", "cart is empty")
		return nil, verr
	}
	if !req.Payment.Valid() {
		verr.Add("payment_method", fmt.Sprintf("unknown payment method %q", req.Payment))
	}

	lines := make([]domain.OrderLine, 0, len(req.Snapshot.Lines))
	for i, cl := range req.Snapshot.Lines {
		if cl.Quantity <= 0 {
			verr.Add(fmt.Sprintf("lines[%d].quantity", i), "quantity must be positive")
		}
		if cl.UnitPrice.IsNegative() {
			verr.Add(fmt.Sprintf("lines[%d].unitPrice", i), "price cannot be negative")
		}
		lines = append(lines, domain.OrderLine{
			ProductID: cl.ProductID,
			Quantity:  cl.Quantity,
			UnitPrice: cl.UnitPrice,
			Display: domain.LineDisplay{
				Name:     cl.Product.Name,
				ImageURL: cl.Product.ImageURL,
				Category: cl.Product.Category,
			},
		})
	}

	if total := domain.SumLines(lines); !verr.HasErrors() && !total.Equal(req.Snapshot.Total) {
		verr.Add("total", fmt.Sprintf("snapshot total %s does not match lines %s", req.Snapshot.Total, total))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return lines, nil
}
