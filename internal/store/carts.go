package store

import (
	"context"

	"github.com/google/uuid"
)

const cartColumns = `id, user_id, applied_coupon_code, created_at, updated_at`

const getOrCreateCart = `-- name: GetOrCreateCart :one
INSERT INTO carts (user_id) VALUES ($1)
ON CONFLICT (user_id) DO UPDATE SET updated_at = carts.updated_at
RETURNING ` + cartColumns

func (q *Queries) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (Cart, error) {
	var c Cart
	err := q.db.QueryRow(ctx, getOrCreateCart, userID).Scan(&c.ID, &c.UserID, &c.AppliedCouponCode, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

const listCartLines = `-- name: ListCartLines :many
SELECT ci.product_id, ci.qty, p.title, p.slug, p.category_slug, p.brand, p.price, p.stock, p.status
FROM cart_items ci
JOIN products p ON p.id = ci.product_id
WHERE ci.cart_id = $1
ORDER BY ci.created_at, ci.product_id`

func (q *Queries) ListCartLines(ctx context.Context, cartID uuid.UUID) ([]CartLine, error) {
	rows, err := q.db.Query(ctx, listCartLines, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CartLine
	for rows.Next() {
		var l CartLine
		if err := rows.Scan(&l.ProductID, &l.Qty, &l.Title, &l.Slug, &l.CategorySlug, &l.Brand, &l.Price, &l.Stock, &l.Status); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

const addCartItem = `-- name: AddCartItem :exec
INSERT INTO cart_items (cart_id, product_id, qty) VALUES ($1, $2, $3)
ON CONFLICT (cart_id, product_id)
DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty, updated_at = now()`

func (q *Queries) AddCartItem(ctx context.Context, cartID, productID uuid.UUID, qty int32) error {
	_, err := q.db.Exec(ctx, addCartItem, cartID, productID, qty)
	return err
}

const setCartItemQty = `-- name: SetCartItemQty :execrows
UPDATE cart_items SET qty = $3, updated_at = now()
WHERE cart_id = $1 AND product_id = $2`

func (q *Queries) SetCartItemQty(ctx context.Context, cartID, productID uuid.UUID, qty int32) (int64, error) {
	tag, err := q.db.Exec(ctx, setCartItemQty, cartID, productID, qty)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteCartItem = `-- name: DeleteCartItem :execrows
DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

func (q *Queries) DeleteCartItem(ctx context.Context, cartID, productID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteCartItem, cartID, productID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const setCartCoupon = `-- name: SetCartCoupon :exec
UPDATE carts SET applied_coupon_code = $2, updated_at = now() WHERE id = $1`

// SetCartCoupon stores the applied code; nil clears it.
func (q *Queries) SetCartCoupon(ctx context.Context, cartID uuid.UUID, code *string) error {
	_, err := q.db.Exec(ctx, setCartCoupon, cartID, code)
	return err
}

const clearCartItems = `-- name: ClearCartItems :exec
DELETE FROM cart_items WHERE cart_id = $1`

func (q *Queries) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, clearCartItems, cartID); err != nil {
		return err
	}
	return q.SetCartCoupon(ctx, cartID, nil)
}
