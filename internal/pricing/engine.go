package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-marketplace/internal/coupon"
)

// Money represents a monetary value in whole currency units.
type Money = int64

// DefaultExpressFee is charged for express shipping unless configured otherwise.
const DefaultExpressFee Money = 99

// ErrUnknownShippingMethod is returned for methods other than standard and express.
var ErrUnknownShippingMethod = errors.New("unknown shipping method")

// ShippingMethod selects the delivery speed.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

// ParseShippingMethod normalises a client value. Empty means standard.
func ParseShippingMethod(v string) (ShippingMethod, error) {
	switch ShippingMethod(strings.ToLower(strings.TrimSpace(v))) {
	case "", ShippingStandard:
		return ShippingStandard, nil
	case ShippingExpress:
		return ShippingExpress, nil
	default:
		return "", ErrUnknownShippingMethod
	}
}

// ShippingCost returns the fee for method.
func ShippingCost(method ShippingMethod, expressFee Money) Money {
	if method == ShippingExpress {
		return expressFee
	}
	return 0
}

// Totals aggregates the derived amounts of a cart or order.
type Totals struct {
	Subtotal           Money `json:"subtotal"`
	EligibleSubtotal   Money `json:"eligibleSubtotal"`
	Discount           Money `json:"discount"`
	DiscountedSubtotal Money `json:"discountedSubtotal"`
	Tax                Money `json:"tax"`
	ShippingCost       Money `json:"shippingCost"`
	Total              Money `json:"total"`
}

// Compute derives totals from priced lines. eligible is the coupon-eligible
// portion of the subtotal; zero means the whole subtotal.
func Compute(items []coupon.LineItem, discount, eligible Money, taxRate decimal.Decimal, shipping Money) Totals {
	subtotal := coupon.Subtotal(items)
	if eligible <= 0 || eligible > subtotal {
		eligible = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	discounted := subtotal - discount
	if discounted < 0 {
		discounted = 0
	}
	tax := coupon.RoundMoney(decimal.NewFromInt(discounted).Mul(taxRate))
	return Totals{
		Subtotal:           subtotal,
		EligibleSubtotal:   eligible,
		Discount:           discount,
		DiscountedSubtotal: discounted,
		Tax:                tax,
		ShippingCost:       shipping,
		Total:              discounted + tax + shipping,
	}
}

// Policy holds the configured tax rate and express fee.
type Policy struct {
	TaxRate    decimal.Decimal
	ExpressFee Money
}

// Totals prices items for the given shipping method.
func (p Policy) Totals(items []coupon.LineItem, discount, eligible Money, method ShippingMethod) Totals {
	fee := p.ExpressFee
	if fee <= 0 {
		fee = DefaultExpressFee
	}
	return Compute(items, discount, eligible, p.TaxRate, ShippingCost(method, fee))
}
