package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderLedger interface {
	ListFor(ctx context.Context, user *domain.User) ([]*domain.Order, error)
	Get(ctx context.Context, user *domain.User, id uuid.UUID) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
	Overview(ctx context.Context, user *domain.User) (*domain.Overview, error)
}

type ProductCounter interface {
	CountProducts(ctx context.Context) (int, error)
}

type OrdersHandler struct {
	ledger   OrderLedger
	products ProductCounter
	timeout  time.Duration
}

func NewOrdersHandler(ledger OrderLedger, products ProductCounter, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		ledger:   ledger,
		products: products,
		timeout:  timeout,
	}
}

type UpdateStatusRequestDTO struct {
	Status domain.OrderStatus `json:"status"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.ledger.ListFor(ctx, userFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.ledger.Get(ctx, userFromContext(r.Context()), orderID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// PUT /api/v1/admin/orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.ledger.UpdateStatus(ctx, orderID, req.Status); err != nil {
		handleError(w, err)
		return
	}

	order, err := h.ledger.Get(ctx, userFromContext(r.Context()), orderID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// GET /api/v1/admin/overview
func (h *OrdersHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	overview, err := h.ledger.Overview(ctx, userFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}

	count, err := h.products.CountProducts(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	overview.ProductCount = count

	respondJSON(w, http.StatusOK, overview)
}

// parseOrderID writes the 404 itself: a malformed id names no order.
func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "order_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "order "+raw+" not found")
		return uuid.Nil, false
	}
	return id, true
}
