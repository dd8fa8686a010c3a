package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/checkout"
	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/google/uuid"
)

type CheckoutSessions interface {
	State(user *domain.User) (checkout.State, error)
	SubmitShipping(user *domain.User, info domain.CustomerInfo) (checkout.State, error)
	SubmitPayment(user *domain.User, sel domain.PaymentSelection) (checkout.State, error)
	Back(user *domain.User) (checkout.State, error)
	Confirm(ctx context.Context, user *domain.User) (uuid.UUID, error)
	SignOut(userID string)
}

type CheckoutHandler struct {
	sessions CheckoutSessions
	timeout  time.Duration
}

func NewCheckoutHandler(sessions CheckoutSessions, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		sessions: sessions,
		timeout:  timeout,
	}
}

type ConfirmResponseDTO struct {
	OrderID uuid.UUID `json:"order_id"`
}

// checkoutErrorDTO keeps the current state next to field errors so the
// client can stay on the step it submitted.
type checkoutErrorDTO struct {
	ErrorResponse
	State checkout.State `json:"state"`
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.State(userFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

// POST /api/v1/checkout/shipping
func (h *CheckoutHandler) SubmitShipping(w http.ResponseWriter, r *http.Request) {
	var info domain.CustomerInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := h.sessions.SubmitShipping(userFromContext(r.Context()), info)
	h.respondStep(w, state, err)
}

// POST /api/v1/checkout/payment
func (h *CheckoutHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var sel domain.PaymentSelection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := h.sessions.SubmitPayment(userFromContext(r.Context()), sel)
	h.respondStep(w, state, err)
}

// POST /api/v1/checkout/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.Back(userFromContext(r.Context()))
	h.respondStep(w, state, err)
}

// POST /api/v1/checkout/confirm
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := h.sessions.Confirm(ctx, userFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, ConfirmResponseDTO{OrderID: orderID})
}

func (h *CheckoutHandler) respondStep(w http.ResponseWriter, state checkout.State, err error) {
	var verr *domain.ValidationError
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, state)
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, checkoutErrorDTO{
			ErrorResponse: ErrorResponse{Error: "validation failed", Code: "validation_failed", Fields: verr.Fields},
			State:         state,
		})
	default:
		handleError(w, err)
	}
}
