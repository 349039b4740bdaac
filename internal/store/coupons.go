package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const couponColumns = `id, code, kind, value::text, active, starts_at, expires_at, min_order_value, max_discount,
usage_limit, per_user_limit, used_count, allowed_categories, allowed_brands, created_at, updated_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var (
		c     Coupon
		value string
	)
	err := row.Scan(&c.ID, &c.Code, &c.Kind, &value, &c.Active, &c.StartsAt, &c.ExpiresAt, &c.MinOrderValue,
		&c.MaxDiscount, &c.UsageLimit, &c.PerUserLimit, &c.UsedCount, &c.AllowedCategories, &c.AllowedBrands,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Coupon{}, err
	}
	c.Value, err = decimal.NewFromString(value)
	if err != nil {
		return Coupon{}, fmt.Errorf("coupon %s value: %w", c.Code, err)
	}
	return c, nil
}

const getCouponByCode = `-- name: GetCouponByCode :one
SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

func (q *Queries) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, getCouponByCode, code))
}

const getCouponByCodeForUpdate = `-- name: GetCouponByCodeForUpdate :one
SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE`

func (q *Queries) GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, getCouponByCodeForUpdate, code))
}

const listCoupons = `-- name: ListCoupons :many
SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC LIMIT $1 OFFSET $2`

func (q *Queries) ListCoupons(ctx context.Context, limit, offset int32) ([]Coupon, error) {
	rows, err := q.db.Query(ctx, listCoupons, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const countCoupons = `-- name: CountCoupons :one
SELECT count(*) FROM coupons`

func (q *Queries) CountCoupons(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countCoupons).Scan(&n)
	return n, err
}

// UpsertCouponParams carries the admin-editable coupon fields.
type UpsertCouponParams struct {
	Code              string
	Kind              string
	Value             decimal.Decimal
	Active            bool
	StartsAt          *time.Time
	ExpiresAt         *time.Time
	MinOrderValue     *int64
	MaxDiscount       *int64
	UsageLimit        *int32
	PerUserLimit      *int32
	AllowedCategories []string
	AllowedBrands     []string
}

func (p UpsertCouponParams) args() []interface{} {
	cats := p.AllowedCategories
	if cats == nil {
		cats = []string{}
	}
	brands := p.AllowedBrands
	if brands == nil {
		brands = []string{}
	}
	return []interface{}{p.Code, p.Kind, p.Value.String(), p.Active, p.StartsAt, p.ExpiresAt,
		p.MinOrderValue, p.MaxDiscount, p.UsageLimit, p.PerUserLimit, cats, brands}
}

const createCoupon = `-- name: CreateCoupon :one
INSERT INTO coupons (code, kind, value, active, starts_at, expires_at, min_order_value, max_discount,
  usage_limit, per_user_limit, allowed_categories, allowed_brands)
VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + couponColumns

func (q *Queries) CreateCoupon(ctx context.Context, arg UpsertCouponParams) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, createCoupon, arg.args()...))
}

const updateCoupon = `-- name: UpdateCoupon :one
UPDATE coupons SET kind = $2, value = $3::numeric, active = $4, starts_at = $5, expires_at = $6,
  min_order_value = $7, max_discount = $8, usage_limit = $9, per_user_limit = $10,
  allowed_categories = $11, allowed_brands = $12, updated_at = now()
WHERE code = $1
RETURNING ` + couponColumns

func (q *Queries) UpdateCoupon(ctx context.Context, arg UpsertCouponParams) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, updateCoupon, arg.args()...))
}

const countCouponUsageByUser = `-- name: CountCouponUsageByUser :one
SELECT COALESCE((SELECT count FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2), 0)::int`

func (q *Queries) CountCouponUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, countCouponUsageByUser, couponID, userID).Scan(&n)
	return n, err
}

const redeemCoupon = `-- name: RedeemCoupon :execrows
WITH bumped AS (
  UPDATE coupons SET used_count = used_count + 1, updated_at = now()
  WHERE id = $1
    AND (usage_limit IS NULL OR used_count < usage_limit)
    AND (per_user_limit IS NULL OR COALESCE(
      (SELECT count FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2), 0) < per_user_limit)
  RETURNING id
)
INSERT INTO coupon_usages (coupon_id, user_id, count)
SELECT id, $2, 1 FROM bumped
ON CONFLICT (coupon_id, user_id) DO UPDATE SET count = coupon_usages.count + 1`

// RedeemCoupon increments the global and per-user counters in one statement.
// It reports false when either limit was already reached.
func (q *Queries) RedeemCoupon(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, redeemCoupon, couponID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
