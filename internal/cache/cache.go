package cache

import (
	"context"
	"errors"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
)

// CartCache holds read copies of stored carts. Entries are dropped on every
// write, so a miss is always safe.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

// ErrCacheMiss covers absent entries and entries in an older payload format.
var ErrCacheMiss = errors.New("cache miss")
