package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-marketplace/internal/coupon"
	"github.com/noah-isme/toko-marketplace/internal/pricing"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

var (
	// ErrNotFound indicates the product is not in the caller's cart.
	ErrNotFound = errors.New("cart item not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProductUnavailable is returned when adding an inactive or sold out product.
	ErrProductUnavailable = errors.New("product unavailable")
)

// CouponRejectedError carries the shopper-facing reason a code was refused.
type CouponRejectedError struct {
	Reason string
}

func (e *CouponRejectedError) Error() string { return e.Reason }

// Querier captures the database methods required by the cart service.
type Querier interface {
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (store.Cart, error)
	ListCartLines(ctx context.Context, cartID uuid.UUID) ([]store.CartLine, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (store.Product, error)
	AddCartItem(ctx context.Context, cartID, productID uuid.UUID, qty int32) error
	SetCartItemQty(ctx context.Context, cartID, productID uuid.UUID, qty int32) (int64, error)
	DeleteCartItem(ctx context.Context, cartID, productID uuid.UUID) (int64, error)
	SetCartCoupon(ctx context.Context, cartID uuid.UUID, code *string) error
}

// CouponPreviewer validates a code without consuming it.
type CouponPreviewer interface {
	Preview(ctx context.Context, code string, userID uuid.UUID, items []coupon.LineItem) (coupon.Result, error)
}

// Service encapsulates cart domain operations.
type Service struct {
	Q       Querier
	Coupons CouponPreviewer
	Pricing pricing.Policy
	MaxQty  int
}

// Line is a cart line as shown to the shopper.
type Line struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Category  string `json:"category"`
	Brand     string `json:"brand"`
	UnitPrice int64  `json:"unitPrice"`
	Qty       int    `json:"qty"`
	LineTotal int64  `json:"lineTotal"`
	InStock   bool   `json:"inStock"`
}

// AppliedCoupon describes the code stored on the cart and whether it still holds.
type AppliedCoupon struct {
	Code   string `json:"code"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// View is the cart with a totals preview at standard shipping.
type View struct {
	CartID string         `json:"cartId"`
	Items  []Line         `json:"items"`
	Coupon *AppliedCoupon `json:"coupon,omitempty"`
	Totals pricing.Totals `json:"totals"`
}

// ApplyResult is returned when a coupon is accepted.
type ApplyResult struct {
	Code               string `json:"code"`
	Discount           int64  `json:"discount"`
	EligibleSubtotal   int64  `json:"eligibleSubtotal"`
	DiscountedSubtotal int64  `json:"discountedSubtotal"`
}

// ToLineItems resolves store rows into the typed lines every calculation uses.
func ToLineItems(lines []store.CartLine) []coupon.LineItem {
	items := make([]coupon.LineItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, coupon.LineItem{
			ProductID: l.ProductID,
			Title:     l.Title,
			Category:  l.CategorySlug,
			Brand:     l.Brand,
			UnitPrice: l.Price,
			Qty:       int(l.Qty),
		})
	}
	return items
}

// Get returns the caller's cart with a priced preview.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (View, error) {
	if s == nil || s.Q == nil {
		return View{}, errors.New("cart service not configured")
	}
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	lines, err := s.Q.ListCartLines(ctx, cart.ID)
	if err != nil {
		return View{}, err
	}
	items := ToLineItems(lines)
	view := View{CartID: cart.ID.String(), Items: make([]Line, 0, len(lines))}
	for _, l := range lines {
		view.Items = append(view.Items, Line{
			ProductID: l.ProductID.String(),
			Title:     l.Title,
			Slug:      l.Slug,
			Category:  l.CategorySlug,
			Brand:     l.Brand,
			UnitPrice: l.Price,
			Qty:       int(l.Qty),
			LineTotal: l.Price * int64(l.Qty),
			InStock:   l.Status == "active" && l.Stock >= l.Qty,
		})
	}

	var discount, eligible int64
	if cart.AppliedCouponCode != nil && s.Coupons != nil {
		res, err := s.Coupons.Preview(ctx, *cart.AppliedCouponCode, userID, items)
		if err != nil {
			return View{}, err
		}
		view.Coupon = &AppliedCoupon{Code: *cart.AppliedCouponCode, Valid: res.OK, Reason: res.Reason}
		if res.OK {
			discount, eligible = res.Discount, res.EligibleSubtotal
		}
	}
	view.Totals = s.Pricing.Totals(items, discount, eligible, pricing.ShippingStandard)
	return view, nil
}

// AddItem inserts a product or increments its quantity.
func (s *Service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) error {
	if err := s.checkQty(qty); err != nil {
		return err
	}
	product, err := s.Q.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("product %s: %w", productID, ErrProductUnavailable)
		}
		return err
	}
	if product.Status != "active" || product.Stock <= 0 {
		return fmt.Errorf("%s: %w", product.Title, ErrProductUnavailable)
	}
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	return s.Q.AddCartItem(ctx, cart.ID, productID, int32(qty))
}

// UpdateItem sets the quantity of a line already in the cart.
func (s *Service) UpdateItem(ctx context.Context, userID, productID uuid.UUID, qty int) error {
	if err := s.checkQty(qty); err != nil {
		return err
	}
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	n, err := s.Q.SetCartItemQty(ctx, cart.ID, productID, int32(qty))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	n, err := s.Q.DeleteCartItem(ctx, cart.ID, productID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyCoupon validates code against the current cart and stores it when
// accepted. Validation only: usage counters are consumed at order placement.
func (s *Service) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (ApplyResult, error) {
	normalized := coupon.NormalizeCode(code)
	if normalized == "" {
		return ApplyResult{}, &CouponRejectedError{Reason: coupon.ReasonInvalidCode}
	}
	if s == nil || s.Q == nil || s.Coupons == nil {
		return ApplyResult{}, errors.New("cart service not configured")
	}
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return ApplyResult{}, err
	}
	lines, err := s.Q.ListCartLines(ctx, cart.ID)
	if err != nil {
		return ApplyResult{}, err
	}
	items := ToLineItems(lines)
	res, err := s.Coupons.Preview(ctx, normalized, userID, items)
	if err != nil {
		return ApplyResult{}, err
	}
	if !res.OK {
		return ApplyResult{}, &CouponRejectedError{Reason: res.Reason}
	}
	if err := s.Q.SetCartCoupon(ctx, cart.ID, &normalized); err != nil {
		return ApplyResult{}, err
	}
	discounted := coupon.Subtotal(items) - res.Discount
	if discounted < 0 {
		discounted = 0
	}
	return ApplyResult{
		Code:               normalized,
		Discount:           res.Discount,
		EligibleSubtotal:   res.EligibleSubtotal,
		DiscountedSubtotal: discounted,
	}, nil
}

// RemoveCoupon clears the applied code.
func (s *Service) RemoveCoupon(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	return s.Q.SetCartCoupon(ctx, cart.ID, nil)
}

func (s *Service) checkQty(qty int) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	max := s.MaxQty
	if max <= 0 {
		max = 99
	}
	if qty > max {
		return fmt.Errorf("qty must be at most %d: %w", max, ErrInvalidInput)
	}
	return nil
}

// ParseID parses a path or payload id, reporting ErrInvalidInput on failure.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", ErrInvalidInput)
	}
	return id, nil
}
