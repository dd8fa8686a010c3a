package domain

type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	IsAdmin bool   `json:"is_admin"`
}

// RequireAdmin gates the administrative capability, a single boolean.
func RequireAdmin(u *User) error {
	if u == nil {
		return ErrUnauthorized
	}
	if !u.IsAdmin {
		return ErrForbidden
	}
	return nil
}
