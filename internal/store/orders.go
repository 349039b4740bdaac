package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, user_id, status, currency, subtotal, discount, tax, shipping_method, shipping_cost, total,
address, applied_coupon, created_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Currency, &o.Subtotal, &o.Discount, &o.Tax, &o.ShippingMethod,
		&o.ShippingCost, &o.Total, &o.Address, &o.AppliedCoupon, &o.CreatedAt)
	return o, err
}

type CreateOrderParams struct {
	UserID         uuid.UUID
	Currency       string
	Subtotal       int64
	Discount       int64
	Tax            int64
	ShippingMethod string
	ShippingCost   int64
	Total          int64
	Address        json.RawMessage
	AppliedCoupon  json.RawMessage
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (user_id, currency, subtotal, discount, tax, shipping_method, shipping_cost, total, address, applied_coupon)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	var coupon interface{}
	if len(arg.AppliedCoupon) > 0 {
		coupon = []byte(arg.AppliedCoupon)
	}
	return scanOrder(q.db.QueryRow(ctx, createOrder, arg.UserID, arg.Currency, arg.Subtotal, arg.Discount, arg.Tax,
		arg.ShippingMethod, arg.ShippingCost, arg.Total, []byte(arg.Address), coupon))
}

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Title     string
	Category  string
	Brand     string
	UnitPrice int64
	Qty       int32
	LineTotal int64
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, product_id, title, category, brand, unit_price, qty, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, order_id, product_id, title, category, brand, unit_price, qty, line_total`

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx, createOrderItem, arg.OrderID, arg.ProductID, arg.Title, arg.Category, arg.Brand,
		arg.UnitPrice, arg.Qty, arg.LineTotal).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Category, &it.Brand, &it.UnitPrice, &it.Qty, &it.LineTotal)
	return it, err
}

const listOrdersByUser = `-- name: ListOrdersByUser :many
SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1
ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

func (q *Queries) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const countOrdersByUser = `-- name: CountOrdersByUser :one
SELECT count(*) FROM orders WHERE user_id = $1`

func (q *Queries) CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrdersByUser, userID).Scan(&n)
	return n, err
}

const getOrderForUser = `-- name: GetOrderForUser :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`

func (q *Queries) GetOrderForUser(ctx context.Context, id, userID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUser, id, userID))
}

const listOrderItems = `-- name: ListOrderItems :many
SELECT id, order_id, product_id, title, category, brand, unit_price, qty, line_total
FROM order_items WHERE order_id = $1 ORDER BY title, id`

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Category, &it.Brand, &it.UnitPrice, &it.Qty, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
