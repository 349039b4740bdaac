package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-marketplace/internal/obs"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

// Querier captures the database methods required by the coupon service.
type Querier interface {
	GetCouponByCode(ctx context.Context, code string) (store.Coupon, error)
	GetCouponByCodeForUpdate(ctx context.Context, code string) (store.Coupon, error)
	CountCouponUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (int32, error)
	RedeemCoupon(ctx context.Context, couponID, userID uuid.UUID) (bool, error)
}

// Service evaluates and redeems coupons. Cart preview and order placement
// share it so both paths apply identical rules.
type Service struct {
	Q      Querier
	Now    func() time.Time
	Logger zerolog.Logger
}

// WithQuerier returns a copy bound to q, typically a transaction.
func (s *Service) WithQuerier(q Querier) *Service {
	cp := *s
	cp.Q = q
	return &cp
}

// Preview validates code for the user's cart without mutating usage.
// Business-rule rejections come back in the Result; the error is reserved
// for infrastructure failures.
func (s *Service) Preview(ctx context.Context, code string, userID uuid.UUID, items []LineItem) (Result, error) {
	if s == nil || s.Q == nil {
		return Result{}, errors.New("coupon service not configured")
	}
	c, used, err := s.load(ctx, code, userID, s.Q.GetCouponByCode)
	if err != nil {
		return Result{}, err
	}
	res := Validate(c, items, used, s.now())
	obs.ObserveCouponValidation("preview", res.Reason)
	return res, nil
}

// Snapshot freezes the coupon terms applied to an order.
type Snapshot struct {
	Code             string          `json:"code"`
	Kind             Kind            `json:"kind"`
	Value            decimal.Decimal `json:"value"`
	Discount         int64           `json:"discount"`
	EligibleSubtotal int64           `json:"eligibleSubtotal"`
}

// JSON encodes the snapshot for storage.
func (s *Snapshot) JSON() json.RawMessage {
	if s == nil {
		return nil
	}
	raw, _ := json.Marshal(s)
	return raw
}

// Redemption reports whether a coupon was consumed during order placement.
type Redemption struct {
	Applied  bool
	Discount int64
	Snapshot *Snapshot
	Reason   string
}

// Redeem re-resolves code against current state and, when still valid,
// consumes one global and one per-user use. It must run on a transactional
// querier so the coupon row lock is held until commit.
func (s *Service) Redeem(ctx context.Context, code string, userID uuid.UUID, items []LineItem) (Redemption, error) {
	if s == nil || s.Q == nil {
		return Redemption{}, errors.New("coupon service not configured")
	}
	c, used, err := s.load(ctx, code, userID, s.Q.GetCouponByCodeForUpdate)
	if err != nil {
		return Redemption{}, err
	}
	res := Validate(c, items, used, s.now())
	obs.ObserveCouponValidation("redeem", res.Reason)
	if !res.OK {
		s.Logger.Debug().Str("code", NormalizeCode(code)).Str("reason", res.Reason).Msg("coupon_redeem_rejected")
		return Redemption{Reason: res.Reason}, nil
	}
	ok, err := s.Q.RedeemCoupon(ctx, c.ID, userID)
	if err != nil {
		return Redemption{}, fmt.Errorf("redeem coupon %s: %w", c.Code, err)
	}
	if !ok {
		reason, err := s.missedLimit(ctx, c, userID)
		if err != nil {
			return Redemption{}, err
		}
		return Redemption{Reason: reason}, nil
	}
	return Redemption{
		Applied:  true,
		Discount: res.Discount,
		Snapshot: &Snapshot{
			Code:             c.Code,
			Kind:             c.Kind,
			Value:            c.Value,
			Discount:         res.Discount,
			EligibleSubtotal: res.EligibleSubtotal,
		},
	}, nil
}

// missedLimit names the limit a concurrent redemption exhausted after
// validation passed.
func (s *Service) missedLimit(ctx context.Context, c *Coupon, userID uuid.UUID) (string, error) {
	if c.PerUserLimit == nil || userID == uuid.Nil {
		return ReasonUsageLimit, nil
	}
	used, err := s.Q.CountCouponUsageByUser(ctx, c.ID, userID)
	if err != nil {
		return "", fmt.Errorf("count coupon usage: %w", err)
	}
	if used >= *c.PerUserLimit {
		return ReasonPerUserLimit, nil
	}
	return ReasonUsageLimit, nil
}

func (s *Service) load(ctx context.Context, code string, userID uuid.UUID, get func(context.Context, string) (store.Coupon, error)) (*Coupon, int32, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, 0, nil
	}
	model, err := get(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("load coupon: %w", err)
	}
	c := FromModel(model)
	var used int32
	if c.PerUserLimit != nil && userID != uuid.Nil {
		used, err = s.Q.CountCouponUsageByUser(ctx, c.ID, userID)
		if err != nil {
			return nil, 0, fmt.Errorf("count coupon usage: %w", err)
		}
	}
	return &c, used, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// FromModel converts the store row into the engine representation.
func FromModel(m store.Coupon) Coupon {
	return Coupon{
		ID:                m.ID,
		Code:              m.Code,
		Kind:              Kind(m.Kind),
		Value:             m.Value,
		Active:            m.Active,
		StartsAt:          m.StartsAt,
		ExpiresAt:         m.ExpiresAt,
		MinOrderValue:     m.MinOrderValue,
		MaxDiscount:       m.MaxDiscount,
		UsageLimit:        m.UsageLimit,
		PerUserLimit:      m.PerUserLimit,
		UsedCount:         m.UsedCount,
		AllowedCategories: m.AllowedCategories,
		AllowedBrands:     m.AllowedBrands,
	}
}
