package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/coupon"
	"github.com/noah-isme/toko-marketplace/internal/pricing"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

type fakeQueries struct {
	cart     store.Cart
	products map[uuid.UUID]store.Product
	qty      map[uuid.UUID]int32
	order    []uuid.UUID
	coupons  map[string]store.Coupon
}

func newFake(userID uuid.UUID, products ...store.Product) *fakeQueries {
	f := &fakeQueries{
		cart:     store.Cart{ID: uuid.New(), UserID: userID},
		products: map[uuid.UUID]store.Product{},
		qty:      map[uuid.UUID]int32{},
		coupons:  map[string]store.Coupon{},
	}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeQueries) GetOrCreateCart(context.Context, uuid.UUID) (store.Cart, error) { return f.cart, nil }

func (f *fakeQueries) ListCartLines(context.Context, uuid.UUID) ([]store.CartLine, error) {
	var lines []store.CartLine
	for _, id := range f.order {
		q, ok := f.qty[id]
		if !ok {
			continue
		}
		p := f.products[id]
		lines = append(lines, store.CartLine{ProductID: id, Qty: q, Title: p.Title, Slug: p.Slug,
			CategorySlug: p.CategorySlug, Brand: p.Brand, Price: p.Price, Stock: p.Stock, Status: p.Status})
	}
	return lines, nil
}

func (f *fakeQueries) GetProductByID(_ context.Context, id uuid.UUID) (store.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return store.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeQueries) AddCartItem(_ context.Context, _ uuid.UUID, productID uuid.UUID, qty int32) error {
	if _, ok := f.qty[productID]; !ok {
		f.order = append(f.order, productID)
	}
	f.qty[productID] += qty
	return nil
}

func (f *fakeQueries) SetCartItemQty(_ context.Context, _ uuid.UUID, productID uuid.UUID, qty int32) (int64, error) {
	if _, ok := f.qty[productID]; !ok {
		return 0, nil
	}
	f.qty[productID] = qty
	return 1, nil
}

func (f *fakeQueries) DeleteCartItem(_ context.Context, _ uuid.UUID, productID uuid.UUID) (int64, error) {
	if _, ok := f.qty[productID]; !ok {
		return 0, nil
	}
	delete(f.qty, productID)
	return 1, nil
}

func (f *fakeQueries) SetCartCoupon(_ context.Context, _ uuid.UUID, code *string) error {
	f.cart.AppliedCouponCode = code
	return nil
}

// coupon.Querier, so the real coupon service runs against the same fake.
func (f *fakeQueries) GetCouponByCode(_ context.Context, code string) (store.Coupon, error) {
	c, ok := f.coupons[code]
	if !ok {
		return store.Coupon{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeQueries) GetCouponByCodeForUpdate(ctx context.Context, code string) (store.Coupon, error) {
	return f.GetCouponByCode(ctx, code)
}

func (f *fakeQueries) CountCouponUsageByUser(context.Context, uuid.UUID, uuid.UUID) (int32, error) {
	return 0, nil
}

func (f *fakeQueries) RedeemCoupon(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	panic("cart must never redeem coupons")
}

func product(title, category string, price int64, stock int32) store.Product {
	return store.Product{ID: uuid.New(), Title: title, Slug: title, CategorySlug: category, Brand: "acme",
		Price: price, Stock: stock, Status: "active"}
}

func newService(f *fakeQueries) *Service {
	clock := func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	return &Service{
		Q:       f,
		Coupons: &coupon.Service{Q: f, Now: clock},
		Pricing: pricing.Policy{TaxRate: decimal.RequireFromString("0.05"), ExpressFee: 99},
	}
}

func TestAddItemRejectsBadQuantityAndUnavailableProducts(t *testing.T) {
	user := uuid.New()
	soldOut := product("Kettle", "home", 500, 0)
	f := newFake(user, soldOut)
	svc := newService(f)

	require.ErrorIs(t, svc.AddItem(context.Background(), user, soldOut.ID, 0), ErrInvalidInput)
	require.ErrorIs(t, svc.AddItem(context.Background(), user, soldOut.ID, 1), ErrProductUnavailable)
	require.ErrorIs(t, svc.AddItem(context.Background(), user, uuid.New(), 1), ErrProductUnavailable)
}

func TestCartViewTotals(t *testing.T) {
	user := uuid.New()
	lamp := product("Lamp", "home", 400, 10)
	mug := product("Mug", "home", 300, 10)
	f := newFake(user, lamp, mug)
	svc := newService(f)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, user, lamp.ID, 1))
	require.NoError(t, svc.AddItem(ctx, user, mug.ID, 1))
	require.NoError(t, svc.AddItem(ctx, user, mug.ID, 1))

	view, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	require.Equal(t, 2, view.Items[1].Qty)
	require.EqualValues(t, 1000, view.Totals.Subtotal)
	require.EqualValues(t, 50, view.Totals.Tax)
	require.EqualValues(t, 1050, view.Totals.Total)
}

func TestUpdateAndRemoveMissingItem(t *testing.T) {
	user := uuid.New()
	f := newFake(user)
	svc := newService(f)
	require.ErrorIs(t, svc.UpdateItem(context.Background(), user, uuid.New(), 2), ErrNotFound)
	require.ErrorIs(t, svc.RemoveItem(context.Background(), user, uuid.New()), ErrNotFound)
}

func TestApplyCouponStoresCodeWithoutConsumingIt(t *testing.T) {
	user := uuid.New()
	lamp := product("Lamp", "home", 1000, 10)
	f := newFake(user, lamp)
	f.coupons["TENOFF"] = store.Coupon{ID: uuid.New(), Code: "TENOFF", Kind: "percent", Value: decimal.NewFromInt(10), Active: true}
	svc := newService(f)
	ctx := context.Background()
	require.NoError(t, svc.AddItem(ctx, user, lamp.ID, 1))

	res, err := svc.ApplyCoupon(ctx, user, "tenoff")
	require.NoError(t, err)
	require.Equal(t, ApplyResult{Code: "TENOFF", Discount: 100, EligibleSubtotal: 1000, DiscountedSubtotal: 900}, res)
	require.NotNil(t, f.cart.AppliedCouponCode)
	require.Equal(t, "TENOFF", *f.cart.AppliedCouponCode)

	view, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, view.Coupon.Valid)
	require.EqualValues(t, 945, view.Totals.Total)
}

func TestApplyCouponRejectedKeepsCartUntouched(t *testing.T) {
	user := uuid.New()
	lamp := product("Lamp", "home", 1000, 10)
	f := newFake(user, lamp)
	minOrder := int64(2000)
	f.coupons["BIG"] = store.Coupon{ID: uuid.New(), Code: "BIG", Kind: "fixed", Value: decimal.NewFromInt(300), Active: true, MinOrderValue: &minOrder}
	svc := newService(f)
	require.NoError(t, svc.AddItem(context.Background(), user, lamp.ID, 1))

	_, err := svc.ApplyCoupon(context.Background(), user, "BIG")
	var rejected *CouponRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "Minimum order ₹2000", rejected.Reason)
	require.Nil(t, f.cart.AppliedCouponCode)
}

func TestApplyCouponHandlerContract(t *testing.T) {
	user := uuid.New()
	lamp := product("Lamp", "home", 1000, 10)
	f := newFake(user, lamp)
	f.coupons["TENOFF"] = store.Coupon{ID: uuid.New(), Code: "TENOFF", Kind: "percent", Value: decimal.NewFromInt(10), Active: true}
	h := &Handler{Svc: newService(f)}
	require.NoError(t, h.Svc.AddItem(context.Background(), user, lamp.ID, 1))

	router := chi.NewRouter()
	router.Post("/cart/apply-coupon", h.ApplyCoupon)

	call := func(code string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"code": code})
		req := httptest.NewRequest(http.MethodPost, "/cart/apply-coupon", bytes.NewReader(body))
		req = req.WithContext(common.WithUserID(req.Context(), user.String()))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := call("TENOFF")
	require.Equal(t, http.StatusOK, rr.Code)
	var ok map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ok))
	require.EqualValues(t, 100, ok["discount"])
	require.EqualValues(t, 900, ok["discountedSubtotal"])

	rr = call("NOPE")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var rejected map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rejected))
	require.Equal(t, "Invalid code", rejected["message"])

	for _, blank := range []string{"", "   "} {
		rr = call(blank)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		rejected = map[string]any{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rejected))
		require.Equal(t, "Invalid code", rejected["message"])
		require.Contains(t, rr.Body.String(), "COUPON_REJECTED")
	}
	require.Equal(t, "TENOFF", *f.cart.AppliedCouponCode)
}

func TestHandlersRequireAuthentication(t *testing.T) {
	h := &Handler{Svc: newService(newFake(uuid.New()))}
	rr := httptest.NewRecorder()
	h.Get(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
