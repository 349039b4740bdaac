package catalog_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-marketplace/internal/catalog"
	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/sponsored"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

type listResponse struct {
	Items []catalog.ProductListItem `json:"items"`
	Page  int                       `json:"page"`
	Limit int                       `json:"limit"`
	Total int64                     `json:"total"`
	Pages int                       `json:"pages"`
}

type fakeCatalogQueries struct {
	mu             sync.Mutex
	categories     []store.Category
	products       []store.Product
	placements     []store.PlacementCandidate
	listCalls      int
	categoryCalls  int
	candidateCalls int
}

func (f *fakeCatalogQueries) ListCategories(context.Context) ([]store.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categoryCalls++
	return f.categories, nil
}

func (f *fakeCatalogQueries) filter(flt store.ProductFilter) []store.Product {
	var out []store.Product
	for _, p := range f.products {
		if p.Status != "active" {
			continue
		}
		if flt.Category != nil && p.CategorySlug != *flt.Category {
			continue
		}
		if flt.Query != nil && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(*flt.Query)) {
			continue
		}
		if flt.MinPrice != nil && p.Price < *flt.MinPrice {
			continue
		}
		if flt.MaxPrice != nil && p.Price > *flt.MaxPrice {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (f *fakeCatalogQueries) CountProducts(_ context.Context, flt store.ProductFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.filter(flt))), nil
}

func (f *fakeCatalogQueries) ListProducts(_ context.Context, flt store.ProductFilter) ([]store.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	all := f.filter(flt)
	if int(flt.Offset) >= len(all) {
		return nil, nil
	}
	all = all[flt.Offset:]
	if len(all) > int(flt.Limit) {
		all = all[:flt.Limit]
	}
	return all, nil
}

func (f *fakeCatalogQueries) GetProductBySlug(_ context.Context, slug string) (store.Product, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return store.Product{}, pgx.ErrNoRows
}

func (f *fakeCatalogQueries) ListPlacementCandidates(_ context.Context, flt store.PlacementCandidateFilter) ([]store.PlacementCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidateCalls++
	var out []store.PlacementCandidate
	for _, c := range f.placements {
		sp, p := c.Placement, c.Product
		t := sp.TargetCategorySlug
		if (flt.Target == nil) != (t == nil) || (t != nil && *t != *flt.Target) {
			continue
		}
		if sp.Status != sponsored.StatusApproved || p.Status != "active" {
			continue
		}
		if (sp.StartAt != nil && flt.Now.Before(*sp.StartAt)) || (sp.EndAt != nil && flt.Now.After(*sp.EndAt)) {
			continue
		}
		if flt.Category != nil && p.CategorySlug != *flt.Category {
			continue
		}
		if (flt.MinPrice != nil && p.Price < *flt.MinPrice) || (flt.MaxPrice != nil && p.Price > *flt.MaxPrice) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Placement.Priority > out[j].Placement.Priority })
	if len(out) > int(flt.Limit) {
		out = out[:flt.Limit]
	}
	return out, nil
}

type recordingSink struct {
	mu       sync.Mutex
	sessions []string
	entries  [][]sponsored.Entry
}

func (r *recordingSink) Record(_ context.Context, sessionID string, entries []sponsored.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, sessionID)
	r.entries = append(r.entries, entries)
}

func newProduct(i int, category string) store.Product {
	return store.Product{
		ID: uuid.New(), SellerID: uuid.New(), Title: fmt.Sprintf("Phone %02d", i), Slug: fmt.Sprintf("phone-%02d", i),
		CategorySlug: category, Brand: "acme", Price: int64(1000 + i), Stock: 5, Status: "active",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
}

func placementFor(p store.Product, priority int32, category *string) store.PlacementCandidate {
	return store.PlacementCandidate{
		Placement: store.Placement{ID: uuid.New(), ProductID: p.ID, Status: sponsored.StatusApproved,
			Priority: priority, TargetCategorySlug: category, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Product: p,
	}
}

func fixture() *fakeCatalogQueries {
	f := &fakeCatalogQueries{
		categories: []store.Category{{ID: uuid.New(), Slug: "phones", Name: "Phones"}},
	}
	for i := 0; i < 20; i++ {
		f.products = append(f.products, newProduct(i, "phones"))
	}
	for i := 0; i < 4; i++ {
		ad := newProduct(100+i, "phones")
		ad.Title = fmt.Sprintf("Promoted %d", i)
		ad.Slug = fmt.Sprintf("promoted-%d", i)
		f.placements = append(f.placements, placementFor(ad, int32(10-i), nil))
	}
	return f
}

func newHandler(t *testing.T, q *fakeCatalogQueries, sink catalog.ImpressionSink, cache *catalog.Cache) *catalog.Handler {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Queries:        q,
		Cache:          cache,
		Impressions:    sink,
		SponsoredRatio: 0.25,
		DefaultLimit:   12,
		MaxLimit:       48,
	})
	require.NoError(t, err)
	return catalog.NewHandler(catalog.HandlerConfig{Service: svc})
}

func getProducts(t *testing.T, h *catalog.Handler, query string) (*httptest.ResponseRecorder, listResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products"+query, nil)
	req.Header.Set(common.SessionHeader, "sess-1")
	rec := httptest.NewRecorder()
	h.Products(rec, req)
	var resp listResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestProductsBlendSponsoredSlots(t *testing.T) {
	sink := &recordingSink{}
	h := newHandler(t, fixture(), sink, nil)

	rec, resp := getProducts(t, h, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "20", rec.Header().Get("X-Total-Count"))
	require.Len(t, resp.Items, 12)
	require.Equal(t, 1, resp.Page)
	require.Equal(t, 12, resp.Limit)
	require.EqualValues(t, 20, resp.Total)
	require.Equal(t, 3, resp.Pages)

	var positions []int
	for i, it := range resp.Items {
		if it.Sponsored {
			positions = append(positions, i+1)
			require.NotNil(t, it.PlacementID)
		} else {
			require.Nil(t, it.PlacementID)
		}
	}
	require.Equal(t, []int{4, 8, 12}, positions)
	require.Equal(t, "Promoted 0", resp.Items[3].Title)

	require.Len(t, sink.sessions, 1)
	require.Equal(t, "sess-1", sink.sessions[0])
}

func TestProductsPaginationShowsEveryOrganicRow(t *testing.T) {
	q := fixture()
	h := newHandler(t, q, nil, nil)

	seen := map[string]int{}
	for page := 1; page <= 3; page++ {
		rec, resp := getProducts(t, h, fmt.Sprintf("?page=%d", page))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 3, resp.Pages)
		for _, it := range resp.Items {
			if !it.Sponsored {
				seen[it.Slug]++
			}
		}
	}
	require.Len(t, seen, len(q.products))
	for slug, n := range seen {
		require.Equal(t, 1, n, slug)
	}
}

func TestProductsPageWithoutAdsUsesFullLimit(t *testing.T) {
	q := fixture()
	q.placements = nil
	h := newHandler(t, q, nil, nil)

	rec, resp := getProducts(t, h, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Items, 12)
	require.Equal(t, 2, resp.Pages)
}

func TestProductsExpiredPlacementsDoNotCrowdOutLiveOnes(t *testing.T) {
	q := fixture()
	q.placements = nil
	yesterday := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 60; i++ {
		c := placementFor(newProduct(400+i, "phones"), 10, nil)
		c.Placement.EndAt = &yesterday
		q.placements = append(q.placements, c)
	}
	live := newProduct(500, "phones")
	live.Title = "Live"
	q.placements = append(q.placements, placementFor(live, 1, nil))
	h := newHandler(t, q, nil, nil)

	rec, resp := getProducts(t, h, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sponsoredTitles []string
	for _, it := range resp.Items {
		if it.Sponsored {
			sponsoredTitles = append(sponsoredTitles, it.Title)
		}
	}
	require.Equal(t, []string{"Live"}, sponsoredTitles)
}

func TestProductsCategoryPageSkipsOffCategoryGeneralPlacements(t *testing.T) {
	q := fixture()
	q.placements = nil
	for i := 0; i < 60; i++ {
		q.placements = append(q.placements, placementFor(newProduct(600+i, "laptops"), 10, nil))
	}
	phone := newProduct(700, "phones")
	phone.Title = "Phone Ad"
	q.placements = append(q.placements, placementFor(phone, 1, nil))
	h := newHandler(t, q, nil, nil)

	rec, resp := getProducts(t, h, "?category=phones")
	require.Equal(t, http.StatusOK, rec.Code)
	var sponsoredTitles []string
	for _, it := range resp.Items {
		if it.Sponsored {
			sponsoredTitles = append(sponsoredTitles, it.Title)
		}
	}
	require.Equal(t, []string{"Phone Ad"}, sponsoredTitles)
}

func TestProductsSearchHasNoSponsored(t *testing.T) {
	sink := &recordingSink{}
	q := fixture()
	h := newHandler(t, q, sink, nil)

	rec, resp := getProducts(t, h, "?q=phone")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, it := range resp.Items {
		require.False(t, it.Sponsored)
	}
	require.Empty(t, sink.sessions)
	require.Zero(t, q.candidateCalls)
}

func TestProductsCategoryPageLeadsWithTargeted(t *testing.T) {
	q := fixture()
	phones := "phones"
	target := newProduct(200, "phones")
	target.Title = "Targeted"
	q.placements = append(q.placements, placementFor(target, 1, &phones))
	otherCategory := newProduct(300, "laptops")
	q.placements = append(q.placements, placementFor(otherCategory, 99, nil))
	h := newHandler(t, q, &recordingSink{}, nil)

	rec, resp := getProducts(t, h, "?category=phones")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Items[0].Sponsored)
	require.Equal(t, "Targeted", resp.Items[0].Title)
	for _, it := range resp.Items {
		require.NotEqual(t, "laptops", it.Category)
	}
}

func TestProductsRejectsBadParams(t *testing.T) {
	h := newHandler(t, fixture(), nil, nil)
	for _, query := range []string{"?page=0", "?limit=abc", "?minPrice=-1", "?minPrice=10&maxPrice=5"} {
		rec, _ := getProducts(t, h, query)
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestOrganicListAndCategoriesAreCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := fixture()
	h := newHandler(t, q, nil, catalog.NewCache(client, time.Minute))

	getProducts(t, h, "")
	getProducts(t, h, "")
	require.Equal(t, 1, q.listCalls)
	getProducts(t, h, "?sort=price:desc")
	require.Equal(t, 2, q.listCalls)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Categories(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"slug":"phones"`)
	}
	require.Equal(t, 1, q.categoryCalls)
}

func TestProductDetail(t *testing.T) {
	q := fixture()
	q.products[1].Status = "draft"
	h := newHandler(t, q, nil, nil)
	r := chi.NewRouter()
	r.Get("/api/v1/products/{slug}", h.ProductDetail)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/phone-00", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data catalog.ProductDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Phone 00", resp.Data.Title)
	require.True(t, resp.Data.InStock)

	for _, slug := range []string{"missing", "phone-01"} {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/"+slug, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, slug)
	}
}
