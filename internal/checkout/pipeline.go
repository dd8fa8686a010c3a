// Package checkout turns a cart into an order in three validated steps:
// shipping information, payment method, review.
package checkout

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/google/uuid"
)

// OrderCreator is the ledger operation a confirmed checkout calls.
type OrderCreator interface {
	Create(ctx context.Context, req domain.OrderRequest) (uuid.UUID, error)
}

// State is what a client may see of a pipeline. Card details are never part of it.
type State struct {
	Step          domain.CheckoutStep `json:"step"`
	CheckoutID    uuid.UUID           `json:"checkout_id"`
	Customer      domain.CustomerInfo `json:"customer"`
	PaymentMethod domain.PaymentKind  `json:"payment_method,omitempty"`
}

// Pipeline is one user's checkout. It is not safe for concurrent use;
// Sessions serializes access per user.
type Pipeline struct {
	orders     OrderCreator
	step       domain.CheckoutStep
	checkoutID uuid.UUID
	customer   domain.CustomerInfo
	payment    domain.PaymentSelection
	now        func() time.Time
}

func NewPipeline(orders OrderCreator) *Pipeline {
	p := &Pipeline{
		orders: orders,
		now:    func() time.Time { return time.Now().UTC() },
	}
	p.reset()
	return p
}

func (p *Pipeline) Step() domain.CheckoutStep {
	return p.step
}

// CheckoutID identifies the order this pipeline will create. It survives a
// failed confirmation so the retry is recognized by the ledger.
func (p *Pipeline) CheckoutID() uuid.UUID {
	return p.checkoutID
}

func (p *Pipeline) State() State {
	return State{
		Step:          p.step,
		CheckoutID:    p.checkoutID,
		Customer:      p.customer,
		PaymentMethod: p.payment.Kind,
	}
}

// SubmitShipping stores info and advances to the payment step when every
// required field is present.
func (p *Pipeline) SubmitShipping(info domain.CustomerInfo) error {
	if p.step != domain.CheckoutStepShippingInfo {
		return domain.InvalidOperation("shipping info cannot be submitted at step %s", p.step)
	}

	p.customer = info
	if err := validateShipping(info).OrNil(); err != nil {
		return err
	}
	p.step = domain.CheckoutStepPaymentMethod
	return nil
}

// SubmitPayment stores sel and advances to review. Cash always passes; a
// card needs all four fields, checked for presence only.
func (p *Pipeline) SubmitPayment(sel domain.PaymentSelection) error {
	if p.step != domain.CheckoutStepPaymentMethod {
		return domain.InvalidOperation("payment cannot be submitted at step %s", p.step)
	}

	p.payment = sel
	if err := validatePayment(sel).OrNil(); err != nil {
		return err
	}
	p.step = domain.CheckoutStepReview
	return nil
}

// Back returns to the previous step, keeping what was entered.
func (p *Pipeline) Back() error {
	prev, ok := p.step.Previous()
	if !ok {
		return domain.InvalidOperation("no step before %s", p.step)
	}
	p.step = prev
	return nil
}

// Confirm places the order for cart. On success the cart is cleared and the
// pipeline starts over with a new checkout id. On failure nothing changes.
func (p *Pipeline) Confirm(ctx context.Context, user *domain.User, cart *domain.Cart) (uuid.UUID, error) {
	if p.step != domain.CheckoutStepReview {
		return uuid.Nil, domain.InvalidOperation("checkout cannot be confirmed at step %s", p.step)
	}
	if user == nil || user.ID == "" {
		return uuid.Nil, domain.ErrUnauthorized
	}
	if cart == nil || cart.IsEmpty() {
		verr := domain.NewValidationError()
		verr.Add("cart", "cart is empty")
		return uuid.Nil, verr
	}

	id, err := p.orders.Create(ctx, domain.OrderRequest{
		CheckoutID: p.checkoutID,
		UserID:     user.ID,
		Snapshot:   cart.Snapshot(p.now()),
		Customer:   p.customer,
		Payment:    p.payment.Kind,
	})
	if err != nil {
		return uuid.Nil, err
	}

	p.step = domain.CheckoutStepCommitted
	cart.Clear()
	p.reset()
	return id, nil
}

func (p *Pipeline) reset() {
	p.step = domain.CheckoutStepShippingInfo
	p.checkoutID = uuid.New()
	p.customer = domain.CustomerInfo{}
	p.payment = domain.PaymentSelection{}
}

func validateShipping(info domain.CustomerInfo) *domain.ValidationError {
	verr := domain.NewValidationError()
	if blank(info.Name) {
		verr.Add("name", "name is required")
	}
	switch {
	case blank(info.Email):
		verr.Add("email", "email is required")
	case !validEmail(info.Email):
		verr.Add("email", "email is not valid")
	}
	if blank(info.Phone) {
		verr.Add("phone", "phone is required")
	}
	if blank(info.Address) {
		verr.Add("address", "address is required")
	}
	if blank(info.City) {
		verr.Add("city", "city is required")
	}
	return verr
}

func validatePayment(sel domain.PaymentSelection) *domain.ValidationError {
	verr := domain.NewValidationError()
	switch sel.Kind {
	case domain.PaymentCash:
	case domain.PaymentCard:
		card := sel.Card
		if card == nil {
			card = &domain.CardDetails{}
		}
		if blank(card.Number) {
			verr.Add("card.number", "card number is required")
		}
		if blank(card.Expiry) {
			verr.Add("card.expiry", "expiry date is required")
		}
		if blank(card.CVV) {
			verr.Add("card.cvv", "security code is required")
		}
		if blank(card.HolderName) {
			verr.Add("card.holder_name", "card holder name is required")
		}
	default:
		verr.Add("kind", "choose card or cash")
	}
	return verr
}

// validEmail accepts a bare address with a dotted domain.
func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return strings.Contains(s[at+1:], ".")
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
