// Package favorites keeps a signed-in user's favorited product ids.
//
// The in-process set is a cache of the favorites table. Storage owns
// correctness: the (user_id, product_id) unique key turns duplicate adds
// into no-ops and a delete of a missing row is not an error, so racing
// toggles from several tabs converge without any lock shared between them.
package favorites

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type Set struct {
	store repository.FavoriteRepository
	sfg   singleflight.Group

	// toggles are serialized so every call is exactly one flip
	toggleMu sync.Mutex

	mu     sync.RWMutex
	userID string
	ids    map[string]struct{}
}

func NewSet(store repository.FavoriteRepository) *Set {
	return &Set{
		store: store,
		ids:   make(map[string]struct{}),
	}
}

// SignIn binds the set to user and rehydrates it from storage.
func (s *Set) SignIn(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID == "" {
		return domain.ErrUnauthorized
	}
	s.bind(user.ID)
	return s.Refresh(ctx)
}

func (s *Set) bind(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != userID {
		s.ids = make(map[string]struct{})
	}
	s.userID = userID
}

func (s *Set) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.ids = make(map[string]struct{})
}

// Toggle flips membership of productID and reports the new state.
func (s *Set) Toggle(ctx context.Context, productID string) (bool, error) {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	userID, err := s.user()
	if err != nil {
		return false, err
	}
	if _, err := uuid.Parse(productID); err != nil {
		return false, domain.NotFound("product %q", productID)
	}

	if s.Contains(productID) {
		if err := s.store.RemoveFavorite(ctx, userID, productID); err != nil {
			return true, &domain.PersistenceError{Op: "remove favorite", Err: err}
		}
		s.mu.Lock()
		delete(s.ids, productID)
		s.mu.Unlock()
		return false, nil
	}

	err = s.store.AddFavorite(ctx, userID, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return false, domain.NotFound("product %s", productID)
	}
	if err != nil {
		return false, &domain.PersistenceError{Op: "add favorite", Err: err}
	}
	s.mu.Lock()
	s.ids[productID] = struct{}{}
	s.mu.Unlock()
	return true, nil
}

func (s *Set) Contains(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[productID]
	return ok
}

// IDs returns the members in a stable order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Refresh replaces the cached view with what storage holds now.
func (s *Set) Refresh(ctx context.Context) error {
	userID, err := s.user()
	if err != nil {
		return err
	}

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		return s.store.ListFavorites(ctx, userID)
	})
	if err != nil {
		return &domain.PersistenceError{Op: "list favorites", Err: err}
	}

	ids := make(map[string]struct{})
	for _, id := range v.([]string) {
		ids[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// a sign-out or switch while loading wins over the loaded rows
	if s.userID == userID {
		s.ids = ids
	}
	return nil
}

func (s *Set) user() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return "", domain.ErrUnauthorized
	}
	return s.userID, nil
}
