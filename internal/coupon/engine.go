package coupon

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the discount mode of a coupon.
type Kind string

const (
	KindPercent Kind = "percent"
	KindFixed   Kind = "fixed"
)

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool { return k == KindPercent || k == KindFixed }

// Rejection reasons are shown to shoppers verbatim.
const (
	ReasonInvalidCode     = "Invalid code"
	ReasonInactive        = "Coupon inactive"
	ReasonOutsideWindow   = "Coupon not in active window"
	ReasonUsageLimit      = "Coupon usage limit reached"
	ReasonPerUserLimit    = "Per-user limit reached"
	ReasonNoEligibleItems = "No eligible items"
)

// MinimumOrderReason formats the minimum-spend rejection.
func MinimumOrderReason(minOrder int64) string {
	return fmt.Sprintf("Minimum order ₹%d", minOrder)
}

// LineItem is a priced cart or order line. It is resolved once from store
// rows and passed as-is to every calculation.
type LineItem struct {
	ProductID uuid.UUID
	Title     string
	Category  string
	Brand     string
	UnitPrice int64
	Qty       int
}

// LineTotal returns unit price times quantity.
func (it LineItem) LineTotal() int64 {
	return it.UnitPrice * int64(it.Qty)
}

// Coupon captures the runtime constraints of a discount code.
type Coupon struct {
	ID                uuid.UUID
	Code              string
	Kind              Kind
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
}

// Scoped reports whether the coupon is restricted to categories or brands.
func (c *Coupon) Scoped() bool {
	return len(c.AllowedCategories) > 0 || len(c.AllowedBrands) > 0
}

// InWindow reports whether now falls inside [StartsAt, ExpiresAt]. A missing
// bound leaves that side open.
func (c *Coupon) InWindow(now time.Time) bool {
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return true
}

// Applies reports whether a line is covered by the coupon scope. Category and
// brand lists combine with OR.
func (c *Coupon) Applies(it LineItem) bool {
	if !c.Scoped() {
		return true
	}
	return contains(c.AllowedCategories, it.Category) || contains(c.AllowedBrands, it.Brand)
}

// Result is the outcome of validating a coupon against a cart.
type Result struct {
	OK               bool
	Discount         int64
	EligibleSubtotal int64
	Reason           string
}

func reject(reason string) Result { return Result{Reason: reason} }

// Subtotal sums line totals.
func Subtotal(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal()
	}
	return total
}

// EligibleSubtotal sums the lines the coupon applies to. A nil coupon makes
// every line eligible.
func EligibleSubtotal(c *Coupon, items []LineItem) int64 {
	if c == nil {
		return Subtotal(items)
	}
	var total int64
	for _, it := range items {
		if c.Applies(it) {
			total += it.LineTotal()
		}
	}
	return total
}

// ComputeDiscount returns the discount the coupon grants on items at now.
// It never exceeds the eligible subtotal and is never negative.
func ComputeDiscount(c *Coupon, items []LineItem, now time.Time) int64 {
	if c == nil || !c.Active || !c.InWindow(now) {
		return 0
	}
	eligible := EligibleSubtotal(c, items)
	if eligible <= 0 {
		return 0
	}
	var discount int64
	switch c.Kind {
	case KindPercent:
		discount = RoundMoney(decimal.NewFromInt(eligible).Mul(c.Value).Div(decimal.NewFromInt(100)))
		if c.MaxDiscount != nil && discount > *c.MaxDiscount {
			discount = *c.MaxDiscount
		}
	case KindFixed:
		discount = RoundMoney(c.Value)
	default:
		return 0
	}
	if discount > eligible {
		discount = eligible
	}
	if discount < 0 {
		return 0
	}
	return discount
}

// Validate runs the ordered eligibility checks and stops at the first
// failure. userUsed is how many times the caller already redeemed the code.
func Validate(c *Coupon, items []LineItem, userUsed int32, now time.Time) Result {
	if c == nil {
		return reject(ReasonInvalidCode)
	}
	if !c.Active {
		return reject(ReasonInactive)
	}
	if !c.InWindow(now) {
		return reject(ReasonOutsideWindow)
	}
	if c.MinOrderValue != nil && Subtotal(items) < *c.MinOrderValue {
		return reject(MinimumOrderReason(*c.MinOrderValue))
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return reject(ReasonUsageLimit)
	}
	if c.PerUserLimit != nil && userUsed >= *c.PerUserLimit {
		return reject(ReasonPerUserLimit)
	}
	discount := ComputeDiscount(c, items, now)
	if discount <= 0 {
		return reject(ReasonNoEligibleItems)
	}
	return Result{OK: true, Discount: discount, EligibleSubtotal: EligibleSubtotal(c, items)}
}

// RoundMoney rounds half away from zero to whole currency units.
func RoundMoney(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// NormalizeCode trims and upper-cases a shopper-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func contains(values []string, v string) bool {
	if v == "" {
		return false
	}
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
