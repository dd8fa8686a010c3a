package http

import (
	"context"
	"net/http"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/arabiperfum/perfume-store-website/internal/favorites"
	"github.com/go-chi/chi/v5"
)

type FavoritesSessions interface {
	For(ctx context.Context, user *domain.User) (*favorites.Set, error)
	SignOut(userID string)
}

type FavoritesHandler struct {
	sessions FavoritesSessions
	timeout  time.Duration
}

func NewFavoritesHandler(sessions FavoritesSessions, timeout time.Duration) *FavoritesHandler {
	return &FavoritesHandler{
		sessions: sessions,
		timeout:  timeout,
	}
}

type FavoritesResponseDTO struct {
	ProductIDs []string `json:"product_ids"`
}

type ToggleResponseDTO struct {
	ProductID string `json:"product_id"`
	Favorite  bool   `json:"favorite"`
}

// GET /api/v1/favorites
func (h *FavoritesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	set, err := h.sessions.For(ctx, userFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, FavoritesResponseDTO{ProductIDs: set.IDs()})
}

// POST /api/v1/favorites/{product_id}/toggle
func (h *FavoritesHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	set, err := h.sessions.For(ctx, userFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}

	productID := chi.URLParam(r, "product_id")
	favorite, err := set.Toggle(ctx, productID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ToggleResponseDTO{ProductID: productID, Favorite: favorite})
}
