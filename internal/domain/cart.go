package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	UserID    string     `json:"user_id"`
	Lines     []CartLine `json:"lines"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Product   ProductSnapshot `json:"product"`
	AddedAt   time.Time       `json:"added_at"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func NewCart(userID string) *Cart {
	now := time.Now().UTC()
	return &Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}
}

// Add merges qty into the product's line, creating it with the product's
// current price when absent.
func (c *Cart) Add(product *Product, qty int) error {
	if product == nil {
		return InvalidOperation("no product given")
	}
	if !product.InStock {
		return InvalidOperation("product %s is out of stock", product.ID)
	}
	if qty <= 0 {
		return InvalidOperation("quantity must be positive, got %d", qty)
	}

	now := time.Now().UTC()
	c.UpdatedAt = now
	if i := c.indexOf(product.ID); i >= 0 {
		c.Lines[i].Quantity += qty
		return nil
	}
	c.Lines = append(c.Lines, CartLine{
		ProductID: product.ID,
		Quantity:  qty,
		UnitPrice: product.Price,
		Product:   product.Snapshot(),
		AddedAt:   now,
	})
	return nil
}

func (c *Cart) Remove(productID string) {
	i := c.indexOf(productID)
	if i < 0 {
		return
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	c.UpdatedAt = time.Now().UTC()
}

// SetQuantity replaces a line's quantity; qty <= 0 removes the line.
func (c *Cart) SetQuantity(productID string, qty int) {
	if qty <= 0 {
		c.Remove(productID)
		return
	}
	if i := c.indexOf(productID); i >= 0 {
		c.Lines[i].Quantity = qty
		c.UpdatedAt = time.Now().UTC()
	}
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) Clear() {
	c.Lines = nil
	c.UpdatedAt = time.Now().UTC()
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Line(productID string) (CartLine, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

// Snapshot copies the lines so later cart mutations never reach the copy.
func (c *Cart) Snapshot(at time.Time) CartSnapshot {
	return CartSnapshot{
		Lines:      copyLines(c.Lines),
		Total:      c.Total(),
		CapturedAt: at,
	}
}

// Copy returns a cart that shares no memory with c.
func (c *Cart) Copy() *Cart {
	cp := *c
	cp.Lines = copyLines(c.Lines)
	return &cp
}

func copyLines(src []CartLine) []CartLine {
	if src == nil {
		return nil
	}
	lines := make([]CartLine, len(src))
	for i, l := range src {
		lines[i] = l
		if l.Product.OriginalPrice != nil {
			op := *l.Product.OriginalPrice
			lines[i].Product.OriginalPrice = &op
		}
	}
	return lines
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// CartSnapshot represents the full cart state at checkout time
type CartSnapshot struct {
	Lines      []CartLine      `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	CapturedAt time.Time       `json:"captured_at"`
}
