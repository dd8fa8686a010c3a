package http

import (
	"net/http"
)

type AuthHandler struct {
	favorites FavoritesSessions
	checkout  CheckoutSessions
}

func NewAuthHandler(favorites FavoritesSessions, checkout CheckoutSessions) *AuthHandler {
	return &AuthHandler{
		favorites: favorites,
		checkout:  checkout,
	}
}

// POST /api/v1/auth/signout
// Drops the per-user favorites view and any unfinished checkout.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	h.favorites.SignOut(userID)
	h.checkout.SignOut(userID)

	w.WriteHeader(http.StatusNoContent)
}
