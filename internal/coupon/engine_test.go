package coupon

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func percent(v int64) *Coupon {
	return &Coupon{Code: "SAVE", Kind: KindPercent, Value: decimal.NewFromInt(v), Active: true}
}

func fixed(v int64) *Coupon {
	return &Coupon{Code: "FLAT", Kind: KindFixed, Value: decimal.NewFromInt(v), Active: true}
}

func line(category, brand string, price int64, qty int) LineItem {
	return LineItem{ProductID: uuid.New(), Title: category + "-" + brand, Category: category, Brand: brand, UnitPrice: price, Qty: qty}
}

func int64p(v int64) *int64 { return &v }
func int32p(v int32) *int32 { return &v }

func TestComputeDiscountPercent(t *testing.T) {
	items := []LineItem{line("books", "acme", 500, 2)}
	if got := ComputeDiscount(percent(10), items, now); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestComputeDiscountPercentRoundsHalfUp(t *testing.T) {
	// 15% of 333 = 49.95
	items := []LineItem{line("books", "acme", 333, 1)}
	if got := ComputeDiscount(percent(15), items, now); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	// 12.5% of 100 = 12.5
	c := &Coupon{Kind: KindPercent, Value: decimal.RequireFromString("12.5"), Active: true}
	if got := ComputeDiscount(c, []LineItem{line("books", "acme", 100, 1)}, now); got != 13 {
		t.Fatalf("expected 13, got %d", got)
	}
}

func TestComputeDiscountPercentCappedByMaxDiscount(t *testing.T) {
	c := percent(50)
	c.MaxDiscount = int64p(150)
	if got := ComputeDiscount(c, []LineItem{line("books", "acme", 1000, 1)}, now); got != 150 {
		t.Fatalf("expected cap 150, got %d", got)
	}
}

func TestComputeDiscountFixedClampedToEligible(t *testing.T) {
	c := fixed(500)
	c.AllowedCategories = []string{"books"}
	items := []LineItem{line("books", "acme", 120, 1), line("toys", "acme", 900, 1)}
	if got := ComputeDiscount(c, items, now); got != 120 {
		t.Fatalf("expected clamp to eligible 120, got %d", got)
	}
}

func TestComputeDiscountZeroCases(t *testing.T) {
	items := []LineItem{line("books", "acme", 100, 1)}
	inactive := percent(10)
	inactive.Active = false
	future := percent(10)
	starts := now.Add(time.Hour)
	future.StartsAt = &starts
	expired := percent(10)
	ended := now.Add(-time.Minute)
	expired.ExpiresAt = &ended
	scopedAway := percent(10)
	scopedAway.AllowedBrands = []string{"globex"}

	cases := map[string]*Coupon{
		"nil":         nil,
		"inactive":    inactive,
		"not started": future,
		"expired":     expired,
		"no eligible": scopedAway,
	}
	for name, c := range cases {
		if got := ComputeDiscount(c, items, now); got != 0 {
			t.Fatalf("%s: expected 0, got %d", name, got)
		}
	}
}

func TestEligibleSubtotalCategoryOrBrand(t *testing.T) {
	c := percent(10)
	c.AllowedCategories = []string{"books"}
	c.AllowedBrands = []string{"globex"}
	items := []LineItem{
		line("books", "acme", 100, 1),  // category match
		line("toys", "globex", 200, 2), // brand match
		line("toys", "acme", 1000, 1),  // neither
	}
	if got := EligibleSubtotal(c, items); got != 500 {
		t.Fatalf("expected 500, got %d", got)
	}
}

func TestEligibleSubtotalCategoryOnlyIgnoresBrand(t *testing.T) {
	c := percent(10)
	c.AllowedCategories = []string{"books"}
	items := []LineItem{line("books", "", 100, 1), line("toys", "books", 300, 1)}
	if got := EligibleSubtotal(c, items); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestEligibleSubtotalUnscoped(t *testing.T) {
	items := []LineItem{line("books", "acme", 100, 3), line("toys", "globex", 50, 1)}
	if got := EligibleSubtotal(percent(10), items); got != 350 {
		t.Fatalf("expected 350, got %d", got)
	}
}

func TestWindowBoundsAreInclusive(t *testing.T) {
	c := percent(10)
	c.StartsAt = &now
	c.ExpiresAt = &now
	if !c.InWindow(now) {
		t.Fatal("expected window bounds to be inclusive")
	}
}

func TestValidateReasonsInOrder(t *testing.T) {
	items := []LineItem{line("books", "acme", 500, 2)}
	past := now.Add(-time.Hour)

	tests := []struct {
		name   string
		coupon func() *Coupon
		used   int32
		reason string
	}{
		{"missing", func() *Coupon { return nil }, 0, "Invalid code"},
		{"inactive before window", func() *Coupon {
			c := percent(10)
			c.Active = false
			c.ExpiresAt = &past
			return c
		}, 0, "Coupon inactive"},
		{"window before minimum", func() *Coupon {
			c := percent(10)
			c.ExpiresAt = &past
			c.MinOrderValue = int64p(5000)
			return c
		}, 0, "Coupon not in active window"},
		{"minimum before usage", func() *Coupon {
			c := percent(10)
			c.MinOrderValue = int64p(1500)
			c.UsageLimit = int32p(1)
			c.UsedCount = 1
			return c
		}, 0, "Minimum order ₹1500"},
		{"usage before per user", func() *Coupon {
			c := percent(10)
			c.UsageLimit = int32p(5)
			c.UsedCount = 5
			c.PerUserLimit = int32p(1)
			return c
		}, 1, "Coupon usage limit reached"},
		{"per user before eligibility", func() *Coupon {
			c := percent(10)
			c.PerUserLimit = int32p(2)
			c.AllowedCategories = []string{"toys"}
			return c
		}, 2, "Per-user limit reached"},
		{"no eligible items", func() *Coupon {
			c := percent(10)
			c.AllowedCategories = []string{"toys"}
			return c
		}, 0, "No eligible items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.coupon(), items, tt.used, now)
			if res.OK {
				t.Fatalf("expected rejection, got %+v", res)
			}
			if res.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, res.Reason)
			}
			if res.Discount != 0 {
				t.Fatalf("rejection must carry no discount, got %d", res.Discount)
			}
		})
	}
}

func TestValidateMinimumUsesWholeCartSubtotal(t *testing.T) {
	c := percent(10)
	c.AllowedCategories = []string{"books"}
	c.MinOrderValue = int64p(1000)
	// eligible part is 200 but the whole cart is 1000
	items := []LineItem{line("books", "acme", 200, 1), line("toys", "acme", 800, 1)}
	res := Validate(c, items, 0, now)
	if !res.OK || res.Discount != 20 || res.EligibleSubtotal != 200 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestValidateDoesNotMutateCoupon(t *testing.T) {
	c := percent(10)
	c.UsageLimit = int32p(3)
	c.UsedCount = 1
	Validate(c, []LineItem{line("books", "acme", 100, 1)}, 0, now)
	if c.UsedCount != 1 {
		t.Fatalf("validate mutated used count: %d", c.UsedCount)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  save10 "); got != "SAVE10" {
		t.Fatalf("expected SAVE10, got %q", got)
	}
}
