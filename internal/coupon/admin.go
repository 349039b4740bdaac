package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

var (
	// ErrNotFound is returned when the coupon code does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrCodeTaken is returned when creating a coupon whose code already exists.
	ErrCodeTaken = errors.New("coupon code already exists")
)

// AdminQuerier captures the persistence needed to manage coupons.
type AdminQuerier interface {
	GetCouponByCode(ctx context.Context, code string) (store.Coupon, error)
	CreateCoupon(ctx context.Context, arg store.UpsertCouponParams) (store.Coupon, error)
	UpdateCoupon(ctx context.Context, arg store.UpsertCouponParams) (store.Coupon, error)
	ListCoupons(ctx context.Context, limit, offset int32) ([]store.Coupon, error)
	CountCoupons(ctx context.Context) (int64, error)
}

// Input is the admin payload for creating or replacing a coupon.
type Input struct {
	Code              string          `json:"code" validate:"required,max=64"`
	Kind              string          `json:"kind" validate:"required,oneof=percent fixed"`
	Value             decimal.Decimal `json:"value"`
	Active            *bool           `json:"active"`
	StartsAt          *time.Time      `json:"startsAt"`
	ExpiresAt         *time.Time      `json:"expiresAt"`
	MinOrderValue     *int64          `json:"minOrderValue" validate:"omitempty,gte=0"`
	MaxDiscount       *int64          `json:"maxDiscount" validate:"omitempty,gt=0"`
	UsageLimit        *int32          `json:"usageLimit" validate:"omitempty,gte=0"`
	PerUserLimit      *int32          `json:"perUserLimit" validate:"omitempty,gte=0"`
	AllowedCategories []string        `json:"allowedCategories" validate:"omitempty,dive,required"`
	AllowedBrands     []string        `json:"allowedBrands" validate:"omitempty,dive,required"`
}

func (in Input) validate() error {
	if err := common.ValidateStruct(in); err != nil {
		return err
	}
	if !in.Value.IsPositive() {
		return common.BadRequest("value must be greater than 0", "value")
	}
	if Kind(in.Kind) == KindPercent && in.Value.GreaterThan(decimal.NewFromInt(100)) {
		return common.BadRequest("percent value must be at most 100", "value")
	}
	if in.StartsAt != nil && in.ExpiresAt != nil && in.ExpiresAt.Before(*in.StartsAt) {
		return common.BadRequest("expiresAt must not precede startsAt", "expiresAt")
	}
	return nil
}

func (in Input) params(code string) store.UpsertCouponParams {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return store.UpsertCouponParams{
		Code:              code,
		Kind:              in.Kind,
		Value:             in.Value,
		Active:            active,
		StartsAt:          in.StartsAt,
		ExpiresAt:         in.ExpiresAt,
		MinOrderValue:     in.MinOrderValue,
		MaxDiscount:       in.MaxDiscount,
		UsageLimit:        in.UsageLimit,
		PerUserLimit:      in.PerUserLimit,
		AllowedCategories: in.AllowedCategories,
		AllowedBrands:     in.AllowedBrands,
	}
}

// Admin manages coupon definitions.
type Admin struct {
	Q AdminQuerier
}

// Create stores a new coupon. Codes are upper-cased before storage.
func (a *Admin) Create(ctx context.Context, in Input) (store.Coupon, error) {
	if err := in.validate(); err != nil {
		return store.Coupon{}, err
	}
	created, err := a.Q.CreateCoupon(ctx, in.params(NormalizeCode(in.Code)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return store.Coupon{}, ErrCodeTaken
		}
		return store.Coupon{}, fmt.Errorf("create coupon: %w", err)
	}
	return created, nil
}

// Update replaces the mutable fields of the coupon identified by code.
// Usage counters are never touched.
func (a *Admin) Update(ctx context.Context, code string, in Input) (store.Coupon, error) {
	in.Code = code
	if err := in.validate(); err != nil {
		return store.Coupon{}, err
	}
	updated, err := a.Q.UpdateCoupon(ctx, in.params(NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Coupon{}, ErrNotFound
		}
		return store.Coupon{}, fmt.Errorf("update coupon: %w", err)
	}
	return updated, nil
}

// Get loads a coupon by code.
func (a *Admin) Get(ctx context.Context, code string) (store.Coupon, error) {
	c, err := a.Q.GetCouponByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Coupon{}, ErrNotFound
		}
		return store.Coupon{}, err
	}
	return c, nil
}

// List pages through coupons, newest first.
func (a *Admin) List(ctx context.Context, page, limit int) ([]store.Coupon, int64, error) {
	items, err := a.Q.ListCoupons(ctx, int32(limit), int32(common.Offset(page, limit)))
	if err != nil {
		return nil, 0, err
	}
	total, err := a.Q.CountCoupons(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
