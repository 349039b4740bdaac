package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, seller_id, title, slug, description, category_slug, brand, price, stock, status, thumbnail, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Title, &p.Slug, &p.Description, &p.CategorySlug, &p.Brand,
		&p.Price, &p.Stock, &p.Status, &p.Thumbnail, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const listCategories = `-- name: ListCategories :many
SELECT id, slug, name, created_at FROM categories ORDER BY name`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// ProductFilter mirrors the catalog listing parameters. Nil fields do not filter.
type ProductFilter struct {
	Query    *string
	Category *string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
	Limit    int32
	Offset   int32
}

const productFilterWhere = `
WHERE status = 'active'
  AND ($1::text IS NULL OR title ILIKE '%' || $1 || '%' OR brand ILIKE '%' || $1 || '%')
  AND ($2::text IS NULL OR category_slug = $2)
  AND ($3::bigint IS NULL OR price >= $3)
  AND ($4::bigint IS NULL OR price <= $4)`

const countProducts = `-- name: CountProducts :one
SELECT count(*) FROM products` + productFilterWhere

func (q *Queries) CountProducts(ctx context.Context, f ProductFilter) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countProducts, f.Query, f.Category, f.MinPrice, f.MaxPrice).Scan(&n)
	return n, err
}

const listProducts = `-- name: ListProducts :many
SELECT ` + productColumns + ` FROM products` + productFilterWhere + `
ORDER BY
  CASE WHEN $5 = 'price:asc' THEN price END ASC,
  CASE WHEN $5 = 'price:desc' THEN price END DESC,
  CASE WHEN $5 = 'title:asc' THEN title END ASC,
  CASE WHEN $5 = 'title:desc' THEN title END DESC,
  created_at DESC, id
LIMIT $6 OFFSET $7`

func (q *Queries) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProducts, f.Query, f.Category, f.MinPrice, f.MaxPrice, f.Sort, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const getProductBySlug = `-- name: GetProductBySlug :one
SELECT ` + productColumns + ` FROM products WHERE slug = $1`

func (q *Queries) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProductBySlug, slug))
}

const getProductByID = `-- name: GetProductByID :one
SELECT ` + productColumns + ` FROM products WHERE id = $1`

func (q *Queries) GetProductByID(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProductByID, id))
}

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (seller_id, title, slug, description, category_slug, brand, price, stock, status, thumbnail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + productColumns

type CreateProductParams struct {
	SellerID     uuid.UUID
	Title        string
	Slug         string
	Description  string
	CategorySlug string
	Brand        string
	Price        int64
	Stock        int32
	Status       string
	Thumbnail    *string
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, createProduct, arg.SellerID, arg.Title, arg.Slug, arg.Description,
		arg.CategorySlug, arg.Brand, arg.Price, arg.Stock, arg.Status, arg.Thumbnail))
}

const upsertCategory = `-- name: UpsertCategory :exec
INSERT INTO categories (slug, name) VALUES ($1, $2)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name`

func (q *Queries) UpsertCategory(ctx context.Context, slug, name string) error {
	_, err := q.db.Exec(ctx, upsertCategory, slug, name)
	return err
}

// ProductStock is the locked view of a product used while placing an order.
type ProductStock struct {
	ID     uuid.UUID
	Title  string
	Stock  int32
	Status string
}

const lockProductsForUpdate = `-- name: LockProductsForUpdate :many
SELECT id, title, stock, status FROM products
WHERE id = ANY($1::uuid[])
ORDER BY id
FOR UPDATE`

// LockProductsForUpdate row-locks the given products in id order so
// concurrent orders over overlapping carts cannot deadlock.
func (q *Queries) LockProductsForUpdate(ctx context.Context, ids []uuid.UUID) ([]ProductStock, error) {
	rows, err := q.db.Query(ctx, lockProductsForUpdate, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProductStock
	for rows.Next() {
		var p ProductStock
		if err := rows.Scan(&p.ID, &p.Title, &p.Stock, &p.Status); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const decrementStock = `-- name: DecrementStock :execrows
UPDATE products SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND stock >= $2`

// DecrementStock reports whether the conditional decrement matched a row.
func (q *Queries) DecrementStock(ctx context.Context, id uuid.UUID, qty int32) (bool, error) {
	tag, err := q.db.Exec(ctx, decrementStock, id, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
