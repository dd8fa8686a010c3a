package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
)

type orderPlacedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type orderPlaced struct {
	OrderID       string            `json:"order_id"`
	CheckoutID    string            `json:"checkout_id"`
	UserID        string            `json:"user_id"`
	Items         []orderPlacedItem `json:"items"`
	TotalAmount   string            `json:"total_amount"`
	PaymentMethod string            `json:"payment_method"`
	CreatedAt     time.Time         `json:"created_at"`
}

type orderStatusChanged struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

func orderPlacedEvent(order *domain.Order) (*repository.OutboxEvent, error) {
	payload := orderPlaced{
		OrderID:       order.ID.String(),
		CheckoutID:    order.CheckoutID.String(),
		UserID:        order.UserID,
		Items:         make([]orderPlacedItem, 0, len(order.Lines)),
		TotalAmount:   order.Total.String(),
		PaymentMethod: string(order.PaymentMethod),
		CreatedAt:     order.CreatedAt,
	}
	for _, l := range order.Lines {
		payload.Items = append(payload.Items, orderPlacedItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.String(),
		})
	}
	return newEvent(order.ID.String(), repository.EventOrderPlaced, payload, order.CreatedAt)
}

func statusChangedEvent(orderID string, status domain.OrderStatus, at time.Time) (*repository.OutboxEvent, error) {
	return newEvent(orderID, repository.EventOrderStatusChanged, orderStatusChanged{
		OrderID:   orderID,
		Status:    string(status),
		ChangedAt: at,
	}, at)
}

func newEvent(aggregateID, eventType string, payload any, at time.Time) (*repository.OutboxEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &repository.OutboxEvent{
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     payloadJSON,
		CreatedAt:   at,
	}, nil
}
