package cart

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/cache"
	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
	"golang.org/x/sync/singleflight"
)

// ProductLookup is the slice of the catalog a cart needs: the current price
// and stock flag of one product.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Service keeps each user's cart between requests. Reads are cache-aside
// through Redis; writes go to the repository and invalidate the cache.
type Service struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	products ProductLookup
	sfg      singleflight.Group

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo repository.CartRepository, cache cache.CartCache, products ProductLookup) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		products: products,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err)
		}

		// filled under the user's lock so a stale read cannot land after a write's invalidation
		unlock := s.lock(userID)
		defer unlock()

		cart, err = s.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.Set(setCtx, userID, cart.Copy()); err != nil {
			log.Printf("cache set error: %v", err)
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing one flight must not share one cart
	return v.(*domain.Cart).Copy(), nil
}

// AddItem adds qty of the product at its current catalog price.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		return c.Add(product, qty)
	})
}

// UpdateQuantity sets the line's quantity; zero or less removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, qty int) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		c.SetQuantity(productID, qty)
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		c.Remove(productID)
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrUnauthorized
	}
	unlock := s.lock(userID)
	defer unlock()

	if err := s.repo.DeleteCart(ctx, userID); err != nil {
		return &domain.PersistenceError{Op: "clear cart", Err: err}
	}

	s.invalidateCache(userID)
	return nil
}

// ClearIfNotModifiedSince empties the cart unless it changed after at. It
// reports whether a stored cart was removed.
func (s *Service) ClearIfNotModifiedSince(ctx context.Context, userID string, at time.Time) (bool, error) {
	if userID == "" {
		return false, domain.ErrUnauthorized
	}
	unlock := s.lock(userID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &domain.PersistenceError{Op: "load cart", Err: err}
	}
	if cart.UpdatedAt.After(at) {
		return false, nil
	}

	if err := s.repo.DeleteCart(ctx, userID); err != nil {
		return false, &domain.PersistenceError{Op: "clear cart", Err: err}
	}
	s.invalidateCache(userID)
	return true, nil
}

func (s *Service) mutate(ctx context.Context, userID string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	unlock := s.lock(userID)
	defer unlock()

	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(cart); err != nil {
		return nil, err
	}
	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, &domain.PersistenceError{Op: "save cart", Err: err}
	}

	s.invalidateCache(userID)
	return cart, nil
}

// load reads the stored cart; a user without one gets an empty cart.
func (s *Service) load(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(userID), nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load cart", Err: err}
	}
	return cart, nil
}

func (s *Service) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}
