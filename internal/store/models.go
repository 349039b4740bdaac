package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Category struct {
	ID        uuid.UUID
	Slug      string
	Name      string
	CreatedAt time.Time
}

type Product struct {
	ID           uuid.UUID
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
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Cart struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	AppliedCouponCode *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CartLine is a cart item joined with the product fields needed for pricing.
type CartLine struct {
	ProductID    uuid.UUID
	Qty          int32
	Title        string
	Slug         string
	CategorySlug string
	Brand        string
	Price        int64
	Stock        int32
	Status       string
}

type Coupon struct {
	ID                uuid.UUID
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
	UsedCount         int32
	AllowedCategories []string
	AllowedBrands     []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Order struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Status         string
	Currency       string
	Subtotal       int64
	Discount       int64
	Tax            int64
	ShippingMethod string
	ShippingCost   int64
	Total          int64
	Address        json.RawMessage
	AppliedCoupon  json.RawMessage
	CreatedAt      time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Title     string
	Category  string
	Brand     string
	UnitPrice int64
	Qty       int32
	LineTotal int64
}

type Placement struct {
	ID                 uuid.UUID
	ProductID          uuid.UUID
	SellerID           uuid.UUID
	Status             string
	StartAt            *time.Time
	EndAt              *time.Time
	Priority           int32
	TargetCategorySlug *string
	Impressions        int64
	Clicks             int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PlacementCandidate is a placement joined with its product.
type PlacementCandidate struct {
	Placement Placement
	Product   Product
}

// PlacementStat is one row of the sponsored CTR report.
type PlacementStat struct {
	PlacementID  uuid.UUID
	ProductID    uuid.UUID
	ProductTitle string
	Status       string
	Impressions  int64
	Clicks       int64
}
