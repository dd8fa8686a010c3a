// Package catalog is the authoritative store of products and categories.
// Carts read prices from it; administrators mutate it.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxRating = 5

	// prices are stored as NUMERIC(12, 2)
	priceScale = 2
)

var maxPrice = decimal.New(1, 10)

// ProductInput is the admin-editable part of a product.
type ProductInput struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	ImageURL      string           `json:"image_url"`
	Category      string           `json:"category"`
	Rating        float64          `json:"rating"`
	ReviewCount   int              `json:"review_count"`
	InStock       bool             `json:"in_stock"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
}

type Service struct {
	repo repository.ProductRepository
}

func NewService(repo repository.ProductRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list products", Err: err}
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NotFound("product %q", id)
	}
	p, err := s.repo.GetProduct(ctx, id)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, domain.NotFound("product %s", id)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get product", Err: err}
	}
	return p, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list categories", Err: err}
	}
	return categories, nil
}

func (s *Service) CountProducts(ctx context.Context) (int, error) {
	n, err := s.repo.CountProducts(ctx)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "count products", Err: err}
	}
	return n, nil
}

func (s *Service) CreateProduct(ctx context.Context, user *domain.User, in ProductInput) (*domain.Product, error) {
	if err := domain.RequireAdmin(user); err != nil {
		return nil, err
	}
	p := &domain.Product{}
	if err := s.apply(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, &domain.PersistenceError{Op: "create product", Err: err}
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, user *domain.User, id string, in ProductInput) (*domain.Product, error) {
	if err := domain.RequireAdmin(user); err != nil {
		return nil, err
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, p, in); err != nil {
		return nil, err
	}

	err = s.repo.UpdateProduct(ctx, p)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, domain.NotFound("product %s", id)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "update product", Err: err}
	}
	return p, nil
}

// DeleteProduct removes the product. Order lines keep their reference and
// fall back to placeholder display data on read.
func (s *Service) DeleteProduct(ctx context.Context, user *domain.User, id string) error {
	if err := domain.RequireAdmin(user); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.NotFound("product %q", id)
	}
	err := s.repo.DeleteProduct(ctx, id)
	if errors.Is(err, repository.ErrProductNotFound) {
		return domain.NotFound("product %s", id)
	}
	if err != nil {
		return &domain.PersistenceError{Op: "delete product", Err: err}
	}
	return nil
}

// apply validates in and copies it onto p, resolving the category label.
func (s *Service) apply(ctx context.Context, p *domain.Product, in ProductInput) error {
	verr := Validate(in)

	var categoryID, categoryName string
	if name := strings.TrimSpace(in.Category); name != "" {
		c, err := s.repo.GetCategoryByName(ctx, name)
		switch {
		case errors.Is(err, repository.ErrCategoryNotFound):
			verr.Add("category", "unknown category")
		case err != nil:
			return &domain.PersistenceError{Op: "resolve category", Err: err}
		default:
			categoryID, categoryName = c.ID, c.Name
		}
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.OriginalPrice = in.OriginalPrice
	p.ImageURL = in.ImageURL
	p.CategoryID = categoryID
	p.Category = categoryName
	if p.Category == "" {
		p.Category = domain.PlaceholderCategory
	}
	p.Rating = in.Rating
	p.ReviewCount = in.ReviewCount
	p.InStock = in.InStock
	p.StockQuantity = in.StockQuantity
	return nil
}

// Validate checks the fields that need no storage lookup.
func Validate(in ProductInput) *domain.ValidationError {
	verr := domain.NewValidationError()
	if strings.TrimSpace(in.Name) == "" {
		verr.Add("name", "name is required")
	}
	switch {
	case !in.Price.IsPositive():
		verr.Add("price", "price must be greater than zero")
	default:
		checkMoney(verr, "price", in.Price)
	}
	if in.OriginalPrice != nil {
		if in.OriginalPrice.IsNegative() {
			verr.Add("original_price", "original price cannot be negative")
		} else {
			checkMoney(verr, "original_price", *in.OriginalPrice)
		}
	}
	if in.Rating < 0 || in.Rating > maxRating {
		verr.Add("rating", "rating must be between 0 and 5")
	}
	if in.ReviewCount < 0 {
		verr.Add("review_count", "review count cannot be negative")
	}
	if in.StockQuantity != nil && *in.StockQuantity < 0 {
		verr.Add("stock_quantity", "stock quantity cannot be negative")
	}
	return verr
}

// checkMoney rejects amounts the store would round or overflow.
func checkMoney(verr *domain.ValidationError, field string, v decimal.Decimal) {
	if !v.Equal(v.Round(priceScale)) {
		verr.Add(field, "at most 2 decimal places")
		return
	}
	if v.GreaterThanOrEqual(maxPrice) {
		verr.Add(field, "amount is too large")
	}
}
