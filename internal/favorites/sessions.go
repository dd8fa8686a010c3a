package favorites

import (
	"context"
	"sync"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
)

// Sessions holds one Set per signed-in user.
type Sessions struct {
	store repository.FavoriteRepository

	mu   sync.Mutex
	sets map[string]*Set
}

func NewSessions(store repository.FavoriteRepository) *Sessions {
	return &Sessions{
		store: store,
		sets:  make(map[string]*Set),
	}
}

// For returns the user's set, signing it in on first use.
func (s *Sessions) For(ctx context.Context, user *domain.User) (*Set, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrUnauthorized
	}

	s.mu.Lock()
	set, ok := s.sets[user.ID]
	if !ok {
		set = NewSet(s.store)
		set.bind(user.ID)
		s.sets[user.ID] = set
	}
	s.mu.Unlock()

	if ok {
		return set, nil
	}
	if err := set.Refresh(ctx); err != nil {
		s.mu.Lock()
		if s.sets[user.ID] == set {
			delete(s.sets, user.ID)
		}
		s.mu.Unlock()
		return nil, err
	}
	return set, nil
}

func (s *Sessions) SignOut(userID string) {
	s.mu.Lock()
	set, ok := s.sets[userID]
	delete(s.sets, userID)
	s.mu.Unlock()

	if ok {
		set.SignOut()
	}
}
