package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/google/uuid"
)

const productSelect = `SELECT p.id, p.name, p.description, p.price, p.original_price, p.image_url,
	p.category_id, c.name, p.rating, p.reviews_count, p.in_stock, p.stock_quantity, p.created_at, p.updated_at
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id`

func (r *Repository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("c.name = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where = append(where, fmt.Sprintf("LOWER(p.name) LIKE $%d", len(args)))
	}

	query := productSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.created_at DESC, p.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (r *Repository) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, name, description, price, original_price, image_url, category_id,
		 rating, reviews_count, in_stock, stock_quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.Name, p.Description, p.Price.String(), optionalMoney(p), p.ImageURL, nullString(p.CategoryID),
		p.Rating, p.ReviewCount, p.InStock, optionalInt(p.StockQuantity), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (r *Repository) UpdateProduct(ctx context.Context, p *domain.Product) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET name = $1, description = $2, price = $3, original_price = $4, image_url = $5,
		 category_id = $6, rating = $7, reviews_count = $8, in_stock = $9, stock_quantity = $10, updated_at = $11
		 WHERE id = $12`,
		p.Name, p.Description, p.Price.String(), optionalMoney(p), p.ImageURL, nullString(p.CategoryID),
		p.Rating, p.ReviewCount, p.InStock, optionalInt(p.StockQuantity), p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectOneRow(res, ErrProductNotFound)
}

func (r *Repository) DeleteProduct(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return expectOneRow(res, ErrProductNotFound)
}

func (r *Repository) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]*domain.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

func (r *Repository) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM categories WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return c, nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p             domain.Product
		price         string
		originalPrice sql.NullString
		categoryID    sql.NullString
		categoryName  sql.NullString
		stock         sql.NullInt64
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&price,
		&originalPrice,
		&p.ImageURL,
		&categoryID,
		&categoryName,
		&p.Rating,
		&p.ReviewCount,
		&p.InStock,
		&stock,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Price, err = parseMoney(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if originalPrice.Valid {
		op, err := parseMoney(originalPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parse original price: %w", err)
		}
		p.OriginalPrice = &op
	}
	p.CategoryID = categoryID.String
	p.Category = orDefault(categoryName, domain.PlaceholderCategory)
	if stock.Valid {
		q := int(stock.Int64)
		p.StockQuantity = &q
	}
	return &p, nil
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	var (
		c    domain.Category
		desc sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &desc, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Description = desc.String
	return &c, nil
}

func optionalMoney(p *domain.Product) sql.NullString {
	if p.OriginalPrice == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.OriginalPrice.String(), Valid: true}
}

func optionalInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
