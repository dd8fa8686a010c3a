package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PlaceholderProductName = "Deleted product"
	PlaceholderImageURL    = "https://images.pexels.com/photos/1961795/pexels-photo-1961795.jpeg?auto=compress&cs=tinysrgb&w=400"
	PlaceholderCategory    = "Uncategorized"
)

type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	ImageURL      string           `json:"image_url"`
	CategoryID    string           `json:"category_id,omitempty"`
	Category      string           `json:"category"`
	Rating        float64          `json:"rating"`
	ReviewCount   int              `json:"review_count"`
	InStock       bool             `json:"in_stock"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Snapshot captures the display fields a cart line keeps once the product is added.
func (p *Product) Snapshot() ProductSnapshot {
	s := ProductSnapshot{
		Name:     p.Name,
		ImageURL: p.ImageURL,
		Category: p.Category,
	}
	if p.OriginalPrice != nil {
		op := *p.OriginalPrice
		s.OriginalPrice = &op
	}
	return s
}

type ProductSnapshot struct {
	Name          string           `json:"name"`
	ImageURL      string           `json:"image_url"`
	Category      string           `json:"category"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductFilter narrows a catalog listing. Empty fields match everything.
type ProductFilter struct {
	Category string
	Search   string
}
