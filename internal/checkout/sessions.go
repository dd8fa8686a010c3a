package checkout

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/google/uuid"
)

// Carts is the stored cart a confirmation reads and clears. The clear only
// happens when nothing touched the cart after the read.
type Carts interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	ClearIfNotModifiedSince(ctx context.Context, userID string, at time.Time) (bool, error)
}

type session struct {
	mu       sync.Mutex
	pipeline *Pipeline
}

// Sessions keeps one pipeline per signed-in user and runs every operation
// on it under that user's lock.
type Sessions struct {
	orders OrderCreator
	carts  Carts

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessions(orders OrderCreator, carts Carts) *Sessions {
	return &Sessions{
		orders:   orders,
		carts:    carts,
		sessions: make(map[string]*session),
	}
}

func (s *Sessions) State(user *domain.User) (State, error) {
	var st State
	err := s.with(user, func(p *Pipeline) error {
		st = p.State()
		return nil
	})
	return st, err
}

func (s *Sessions) SubmitShipping(user *domain.User, info domain.CustomerInfo) (State, error) {
	return s.apply(user, func(p *Pipeline) error { return p.SubmitShipping(info) })
}

func (s *Sessions) SubmitPayment(user *domain.User, sel domain.PaymentSelection) (State, error) {
	return s.apply(user, func(p *Pipeline) error { return p.SubmitPayment(sel) })
}

func (s *Sessions) Back(user *domain.User) (State, error) {
	return s.apply(user, func(p *Pipeline) error { return p.Back() })
}

// Confirm places the order for the user's stored cart and clears it. Lines
// added from another session while the order was being written survive.
func (s *Sessions) Confirm(ctx context.Context, user *domain.User) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.with(user, func(p *Pipeline) error {
		if p.Step() != domain.CheckoutStepReview {
			return domain.InvalidOperation("checkout cannot be confirmed at step %s", p.Step())
		}
		cart, err := s.carts.GetCart(ctx, user.ID)
		if err != nil {
			return err
		}
		seen := cart.UpdatedAt
		id, err = p.Confirm(ctx, user, cart)
		if err != nil {
			return err
		}
		// the order is durable at this point; a stale cart is only logged
		cleared, err := s.carts.ClearIfNotModifiedSince(ctx, user.ID, seen)
		switch {
		case err != nil:
			log.Printf("order %s placed but cart of %s not cleared: %v", id, user.ID, err)
		case !cleared:
			log.Printf("order %s placed; cart of %s changed since checkout, kept", id, user.ID)
		}
		return nil
	})
	return id, err
}

func (s *Sessions) SignOut(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

func (s *Sessions) apply(user *domain.User, fn func(*Pipeline) error) (State, error) {
	var st State
	err := s.with(user, func(p *Pipeline) error {
		err := fn(p)
		st = p.State()
		return err
	})
	return st, err
}

func (s *Sessions) with(user *domain.User, fn func(*Pipeline) error) error {
	if user == nil || user.ID == "" {
		return domain.ErrUnauthorized
	}

	s.mu.Lock()
	sess, ok := s.sessions[user.ID]
	if !ok {
		sess = &session{pipeline: NewPipeline(s.orders)}
		s.sessions[user.ID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess.pipeline)
}
