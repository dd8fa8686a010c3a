package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

type CustomerInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
}

// OrderLine is the purchased quantity at the price paid. Display is resolved
// on read from the catalog and falls back to placeholders when the product is gone.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Display   LineDisplay     `json:"display"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type LineDisplay struct {
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	Category string `json:"category"`
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	CheckoutID    uuid.UUID       `json:"checkout_id"`
	UserID        string          `json:"user_id"`
	Lines         []OrderLine     `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	Status        OrderStatus     `json:"status"`
	Customer      CustomerInfo    `json:"customer"`
	PaymentMethod PaymentKind     `json:"payment_method"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SumLines is the only definition of an order total.
func SumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// OrderRequest is what a checkout hands to the ledger.
type OrderRequest struct {
	CheckoutID uuid.UUID
	UserID     string
	Snapshot   CartSnapshot
	Customer   CustomerInfo
	Payment    PaymentKind
}

type Overview struct {
	OrderCount    int                 `json:"order_count"`
	CustomerCount int                 `json:"customer_count"`
	Revenue       decimal.Decimal     `json:"revenue"`
	ByStatus      map[OrderStatus]int `json:"by_status"`
	ProductCount  int                 `json:"product_count"`
}
