package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/cart"
	"github.com/noah-isme/toko-marketplace/internal/coupon"
	"github.com/noah-isme/toko-marketplace/internal/notify"
	"github.com/noah-isme/toko-marketplace/internal/obs"
	"github.com/noah-isme/toko-marketplace/internal/pricing"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

var (
	// ErrEmptyCart is returned when placing an order from an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidInput is returned for malformed order payloads.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when the order does not belong to the caller.
	ErrNotFound = errors.New("order not found")
)

// InsufficientStockError names the first line that cannot be fulfilled.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Title     string
}

func (e *InsufficientStockError) Error() string {
	return "Insufficient stock for " + e.Title
}

// Querier captures the read-side database methods.
type Querier interface {
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]store.Order, error)
	CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	GetOrderForUser(ctx context.Context, id, userID uuid.UUID) (store.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error)
}

// TxQuerier is the statement set used while placing an order.
type TxQuerier interface {
	coupon.Querier
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (store.Cart, error)
	ListCartLines(ctx context.Context, cartID uuid.UUID) ([]store.CartLine, error)
	LockProductsForUpdate(ctx context.Context, ids []uuid.UUID) ([]store.ProductStock, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int32) (bool, error)
	CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

// TxRunner opens a transaction and hands fn a querier bound to it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q TxQuerier) error) error
}

// StoreTx adapts store.Store to TxRunner.
type StoreTx struct {
	Store *store.Store
}

// InTx implements TxRunner.
func (t StoreTx) InTx(ctx context.Context, fn func(q TxQuerier) error) error {
	return t.Store.InTx(ctx, func(q *store.Queries) error { return fn(q) })
}

// Notifier schedules the post-commit confirmation.
type Notifier interface {
	EnqueueOrderConfirmation(ctx context.Context, p notify.OrderConfirmation) error
}

// Service places and reads orders.
type Service struct {
	Q             Querier
	Tx            TxRunner
	Coupons       *coupon.Service
	Pricing       pricing.Policy
	Notifier      Notifier
	Logger        zerolog.Logger
	Currency      string
	NotifyTimeout time.Duration
}

// Address is the shipping destination frozen on the order.
type Address struct {
	Name       string `json:"name" validate:"required,max=120"`
	Phone      string `json:"phone" validate:"required,max=32"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state,omitempty" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=16"`
	Country    string `json:"country" validate:"required,len=2"`
}

// Input is the order placement request.
type Input struct {
	Address        Address
	ShippingMethod string
	CouponCode     *string
	Email          string
}

// Item is an order line as returned to the shopper.
type Item struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Brand     string `json:"brand"`
	UnitPrice int64  `json:"unitPrice"`
	Qty       int    `json:"qty"`
	LineTotal int64  `json:"lineTotal"`
}

// View is the API representation of an order.
type View struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Currency       string          `json:"currency"`
	Items          []Item          `json:"items,omitempty"`
	Subtotal       int64           `json:"subtotal"`
	Discount       int64           `json:"discount"`
	Tax            int64           `json:"tax"`
	ShippingMethod string          `json:"shippingMethod"`
	ShippingCost   int64           `json:"shippingCost"`
	TotalAmount    int64           `json:"totalAmount"`
	Address        json.RawMessage `json:"address,omitempty"`
	AppliedCoupon  json.RawMessage `json:"appliedCoupon,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Place converts the user's cart into an order. Stock checks, stock
// decrements, coupon redemption and the order insert share one transaction.
func (s *Service) Place(ctx context.Context, userID uuid.UUID, in Input) (View, error) {
	if s == nil || s.Tx == nil {
		return View{}, errors.New("order service not configured")
	}
	method, err := pricing.ParseShippingMethod(in.ShippingMethod)
	if err != nil {
		return View{}, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	address, err := json.Marshal(in.Address)
	if err != nil {
		return View{}, fmt.Errorf("encode address: %w", err)
	}
	log := s.Logger.With().Str("user_id", userID.String()).Logger()

	var (
		created store.Order
		items   []store.OrderItem
		code    string
	)
	err = s.Tx.InTx(ctx, func(q TxQuerier) error {
		c, err := q.GetOrCreateCart(ctx, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		lines, err := q.ListCartLines(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("load cart lines: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}
		for _, l := range lines {
			if l.Qty <= 0 {
				return fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidInput, l.Title)
			}
		}

		if err := reserveStock(ctx, q, lines); err != nil {
			return err
		}

		lineItems := cart.ToLineItems(lines)
		code = couponCode(in.CouponCode, c.AppliedCouponCode)
		var (
			discount, eligible int64
			snapshot           json.RawMessage
		)
		if code != "" && s.Coupons != nil {
			red, err := s.Coupons.WithQuerier(q).Redeem(ctx, code, userID, lineItems)
			if err != nil {
				return err
			}
			if red.Applied {
				discount, eligible = red.Discount, red.Snapshot.EligibleSubtotal
				snapshot = red.Snapshot.JSON()
			} else {
				log.Info().Str("code", coupon.NormalizeCode(code)).Str("reason", red.Reason).Msg("order_coupon_dropped")
				code = ""
			}
		}

		totals := s.Pricing.Totals(lineItems, discount, eligible, method)
		created, err = q.CreateOrder(ctx, store.CreateOrderParams{
			UserID:         userID,
			Currency:       s.currency(),
			Subtotal:       totals.Subtotal,
			Discount:       totals.Discount,
			Tax:            totals.Tax,
			ShippingMethod: string(method),
			ShippingCost:   totals.ShippingCost,
			Total:          totals.Total,
			Address:        address,
			AppliedCoupon:  snapshot,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		items = make([]store.OrderItem, 0, len(lines))
		for _, l := range lines {
			it, err := q.CreateOrderItem(ctx, store.CreateOrderItemParams{
				OrderID:   created.ID,
				ProductID: l.ProductID,
				Title:     l.Title,
				Category:  l.CategorySlug,
				Brand:     l.Brand,
				UnitPrice: l.Price,
				Qty:       l.Qty,
				LineTotal: l.Price * int64(l.Qty),
			})
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			items = append(items, it)
		}
		if err := q.ClearCart(ctx, c.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		obs.ObserveOrder(resultLabel(err))
		var stock *InsufficientStockError
		if errors.As(err, &stock) || errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrInvalidInput) {
			log.Info().Err(err).Msg("order_rejected")
		}
		return View{}, err
	}
	obs.ObserveOrder("placed")
	log.Info().Str("order_id", created.ID.String()).Int64("total", created.Total).Msg("order_placed")

	s.notify(ctx, log, created, items, code, in.Email)
	return toView(created, items), nil
}

// reserveStock locks every product row in id order, verifies availability for
// all lines, then decrements with a compare-and-swap update.
func reserveStock(ctx context.Context, q TxQuerier, lines []store.CartLine) error {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	locked, err := q.LockProductsForUpdate(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	byID := make(map[uuid.UUID]store.ProductStock, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok || p.Status != "active" || p.Stock < l.Qty {
			return &InsufficientStockError{ProductID: l.ProductID, Title: l.Title}
		}
	}
	for _, l := range lines {
		ok, err := q.DecrementStock(ctx, l.ProductID, l.Qty)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if !ok {
			obs.ObserveStockConflict()
			return &InsufficientStockError{ProductID: l.ProductID, Title: l.Title}
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, log zerolog.Logger, o store.Order, items []store.OrderItem, code, email string) {
	if s.Notifier == nil {
		return
	}
	count := 0
	for _, it := range items {
		count += int(it.Qty)
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	err := s.Notifier.EnqueueOrderConfirmation(nctx, notify.OrderConfirmation{
		OrderID:        o.ID.String(),
		UserID:         o.UserID.String(),
		Email:          email,
		Currency:       o.Currency,
		ItemCount:      count,
		Subtotal:       o.Subtotal,
		Discount:       o.Discount,
		Tax:            o.Tax,
		ShippingMethod: o.ShippingMethod,
		ShippingCost:   o.ShippingCost,
		Total:          o.Total,
		CouponCode:     code,
		PlacedAt:       o.CreatedAt,
	})
	if err != nil {
		log.Warn().Err(err).Str("order_id", o.ID.String()).Msg("order_confirmation_enqueue_failed")
	}
}

// List returns a page of the caller's orders, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, limit int) ([]View, int64, error) {
	total, err := s.Q.CountOrdersByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.Q.ListOrdersByUser(ctx, userID, int32(limit), int32((page-1)*limit))
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	out := make([]View, 0, len(rows))
	for _, o := range rows {
		out = append(out, toView(o, nil))
	}
	return out, total, nil
}

// Get returns one of the caller's orders with its items.
func (s *Service) Get(ctx context.Context, userID, orderID uuid.UUID) (View, error) {
	o, err := s.Q.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, ErrNotFound
		}
		return View{}, fmt.Errorf("get order: %w", err)
	}
	items, err := s.Q.ListOrderItems(ctx, o.ID)
	if err != nil {
		return View{}, fmt.Errorf("list order items: %w", err)
	}
	return toView(o, items), nil
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return "INR"
	}
	return s.Currency
}

func couponCode(requested, applied *string) string {
	if requested != nil {
		return strings.TrimSpace(*requested)
	}
	if applied != nil {
		return *applied
	}
	return ""
}

func resultLabel(err error) string {
	var stock *InsufficientStockError
	switch {
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func toView(o store.Order, items []store.OrderItem) View {
	v := View{
		ID:             o.ID.String(),
		Status:         o.Status,
		Currency:       o.Currency,
		Subtotal:       o.Subtotal,
		Discount:       o.Discount,
		Tax:            o.Tax,
		ShippingMethod: o.ShippingMethod,
		ShippingCost:   o.ShippingCost,
		TotalAmount:    o.Total,
		Address:        o.Address,
		AppliedCoupon:  o.AppliedCoupon,
		CreatedAt:      o.CreatedAt,
	}
	for _, it := range items {
		v.Items = append(v.Items, Item{
			ProductID: it.ProductID.String(),
			Title:     it.Title,
			Category:  it.Category,
			Brand:     it.Brand,
			UnitPrice: it.UnitPrice,
			Qty:       int(it.Qty),
			LineTotal: it.LineTotal,
		})
	}
	return v
}
