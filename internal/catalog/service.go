package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/obs"
	"github.com/noah-isme/toko-marketplace/internal/sponsored"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

type queryProvider interface {
	ListCategories(ctx context.Context) ([]store.Category, error)
	CountProducts(ctx context.Context, f store.ProductFilter) (int64, error)
	ListProducts(ctx context.Context, f store.ProductFilter) ([]store.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (store.Product, error)
	ListPlacementCandidates(ctx context.Context, f store.PlacementCandidateFilter) ([]store.PlacementCandidate, error)
}

// ImpressionSink books impressions for the sponsored entries of a served page.
type ImpressionSink interface {
	Record(ctx context.Context, sessionID string, entries []sponsored.Entry)
}

// Service orchestrates catalog queries, sponsored blending, and caching.
type Service struct {
	queries        queryProvider
	cache          *Cache
	impressions    ImpressionSink
	ratio          float64
	candidateLimit int32
	defaultLimit   int
	maxLimit       int
	now            func() time.Time
	logger         zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries        queryProvider
	Cache          *Cache
	Impressions    ImpressionSink
	SponsoredRatio float64
	CandidateLimit int
	DefaultLimit   int
	MaxLimit       int
	Now            func() time.Time
	Logger         zerolog.Logger
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query    string
	Category string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
	Page     int
	Limit    int
}

// ProductListItem represents an entry in the listing response.
type ProductListItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	Category    string  `json:"category"`
	Brand       string  `json:"brand"`
	Price       int64   `json:"price"`
	InStock     bool    `json:"inStock"`
	Thumbnail   *string `json:"thumbnail,omitempty"`
	Sponsored   bool    `json:"sponsored"`
	PlacementID *string `json:"placementId,omitempty"`
}

// ProductDetail is the product page payload.
type ProductDetail struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"sellerId"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	InStock     bool      `json:"inStock"`
	Thumbnail   *string   `json:"thumbnail,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Category represents the public category payload.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ListResult is the listing response body.
type ListResult struct {
	Items []ProductListItem `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int64             `json:"total"`
	Pages int               `json:"pages"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 12
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	candidates := cfg.CandidateLimit
	if candidates < 1 {
		candidates = 50
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		queries:        cfg.Queries,
		cache:          cfg.Cache,
		impressions:    cfg.Impressions,
		ratio:          cfg.SponsoredRatio,
		candidateLimit: int32(candidates),
		defaultLimit:   defaultLimit,
		maxLimit:       maxLimit,
		now:            now,
		logger:         cfg.Logger,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, common.BadRequest("page must be a positive integer", "page")
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, common.BadRequest("limit must be a positive integer", "limit")
		}
		params.Limit = l
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}

	for _, bound := range []struct {
		name string
		dst  **int64
	}{{"minPrice", &params.MinPrice}, {"maxPrice", &params.MaxPrice}} {
		v := strings.TrimSpace(values.Get(bound.name))
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			return params, common.BadRequest(bound.name+" must be a non-negative integer", bound.name)
		}
		*bound.dst = &parsed
	}
	if params.MinPrice != nil && params.MaxPrice != nil && *params.MinPrice > *params.MaxPrice {
		return params, common.BadRequest("minPrice cannot be greater than maxPrice", "price")
	}

	params.Sort = normalizeSort(values.Get("sort"))
	return params, nil
}

// ListCategories returns all categories sorted by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var cached []Category
	if ok, err := s.cache.GetJSON(ctx, categoriesCacheKey, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	result := make([]Category, 0, len(rows))
	for _, row := range rows {
		result = append(result, Category{ID: row.ID.String(), Name: row.Name, Slug: row.Slug})
	}
	_ = s.cache.SetJSON(ctx, categoriesCacheKey, result)
	return result, nil
}

// ListProducts returns one blended listing page and books impressions for
// the sponsored entries it contains. Sponsored slots shrink the organic share
// of every page by the same amount, so organic rows advance at a fixed stride
// and paging through the listing never skips one.
func (s *Service) ListProducts(ctx context.Context, params ListParams, sessionID string) (ListResult, error) {
	search := params.Query != ""
	var ads []sponsored.Entry
	if n := sponsored.TargetCount(params.Limit, s.ratio); !search && n > 0 {
		var err error
		ads, err = s.sponsoredEntries(ctx, params)
		if err != nil {
			// A page without ads is preferable to a failed listing.
			s.logger.Warn().Err(err).Msg("sponsored_candidates_failed")
			ads = nil
		}
		if len(ads) > n {
			ads = ads[:n]
		}
	}

	stride := params.Limit - len(ads)
	products, total, err := s.organic(ctx, params, stride)
	if err != nil {
		return ListResult{}, err
	}

	entries := sponsored.Blend(sponsored.Organic(products), ads, sponsored.Options{
		Ratio:          s.ratio,
		Limit:          params.Limit,
		CategoryScoped: params.Category != "",
		Search:         search,
	})

	items := make([]ProductListItem, 0, len(entries))
	served := 0
	for _, e := range entries {
		item := listItem(e.Product)
		if e.Sponsored() {
			id := e.PlacementID.String()
			item.Sponsored = true
			item.PlacementID = &id
			served++
		}
		items = append(items, item)
	}
	obs.ObserveSponsoredSlots(served)
	if served > 0 && s.impressions != nil {
		s.impressions.Record(ctx, sessionID, entries)
	}

	page := common.NewPage(params.Page, stride, total)
	return ListResult{Items: items, Page: page.Page, Limit: params.Limit, Total: page.Total, Pages: page.Pages}, nil
}

type cachedList struct {
	Products []store.Product `json:"products"`
	Total    int64           `json:"total"`
}

// organic fetches size organic rows for the requested page.
func (s *Service) organic(ctx context.Context, params ListParams, size int) ([]store.Product, int64, error) {
	key, cacheable := s.listCacheKey(params, size)
	if cacheable {
		var cached cachedList
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return cached.Products, cached.Total, nil
		}
	}

	filter := store.ProductFilter{
		Query:    optionalString(params.Query),
		Category: optionalString(params.Category),
		MinPrice: params.MinPrice,
		MaxPrice: params.MaxPrice,
		Sort:     params.Sort,
		Limit:    int32(size),
		Offset:   int32(common.Offset(params.Page, size)),
	}
	total, err := s.queries.CountProducts(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	products, err := s.queries.ListProducts(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	if cacheable {
		_ = s.cache.SetJSON(ctx, key, cachedList{Products: products, Total: total})
	}
	return products, total, nil
}

func (s *Service) sponsoredEntries(ctx context.Context, params ListParams) ([]sponsored.Entry, error) {
	now := s.now()
	filter := store.PlacementCandidateFilter{
		Category: optionalString(params.Category),
		MinPrice: params.MinPrice,
		MaxPrice: params.MaxPrice,
		Now:      now,
		Limit:    s.candidateLimit,
	}
	var targeted []sponsored.Candidate
	if filter.Category != nil {
		filter.Target = filter.Category
		rows, err := s.queries.ListPlacementCandidates(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list targeted placements: %w", err)
		}
		targeted = toCandidates(rows)
		filter.Target = nil
	}
	rows, err := s.queries.ListPlacementCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}
	selected := sponsored.SelectCandidates(targeted, toCandidates(rows), now, matcher(params))
	return sponsored.Entries(selected), nil
}

// matcher applies the organic listing filter to a promoted product.
func matcher(params ListParams) func(store.Product) bool {
	return func(p store.Product) bool {
		if params.Category != "" && p.CategorySlug != params.Category {
			return false
		}
		if params.MinPrice != nil && p.Price < *params.MinPrice {
			return false
		}
		if params.MaxPrice != nil && p.Price > *params.MaxPrice {
			return false
		}
		return true
	}
}

func toCandidates(rows []store.PlacementCandidate) []sponsored.Candidate {
	out := make([]sponsored.Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, sponsored.Candidate{Placement: r.Placement, Product: r.Product})
	}
	return out
}

// GetProduct returns the product page payload for an active product.
func (s *Service) GetProduct(ctx context.Context, slug string) (ProductDetail, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ProductDetail{}, common.BadRequest("slug is required", "slug")
	}
	cacheKey := detailCacheKey(slug)
	var cached ProductDetail
	if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
		return cached, nil
	}
	p, err := s.queries.GetProductBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductDetail{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return ProductDetail{}, fmt.Errorf("get product by slug: %w", err)
	}
	if p.Status != "active" {
		return ProductDetail{}, common.NotFound("product not found")
	}
	detail := ProductDetail{
		ID:          p.ID.String(),
		SellerID:    p.SellerID.String(),
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Category:    p.CategorySlug,
		Brand:       p.Brand,
		Price:       p.Price,
		Stock:       int(p.Stock),
		InStock:     p.Stock > 0,
		Thumbnail:   p.Thumbnail,
		UpdatedAt:   p.UpdatedAt,
	}
	_ = s.cache.SetJSON(ctx, cacheKey, detail)
	return detail, nil
}

func listItem(p store.Product) ProductListItem {
	return ProductListItem{
		ID:        p.ID.String(),
		Title:     p.Title,
		Slug:      p.Slug,
		Category:  p.CategorySlug,
		Brand:     p.Brand,
		Price:     p.Price,
		InStock:   p.Stock > 0,
		Thumbnail: p.Thumbnail,
	}
}

const categoriesCacheKey = "catalog:categories"

func (s *Service) listCacheKey(params ListParams, size int) (string, bool) {
	if s.cache == nil || params.Page != 1 || params.Limit != s.defaultLimit {
		return "", false
	}
	if params.Query != "" || params.Category != "" || params.MinPrice != nil || params.MaxPrice != nil || params.Sort != SortNewest {
		return "", false
	}
	return "catalog:products:list:newest:" + strconv.Itoa(size), true
}

func detailCacheKey(slug string) string {
	return "catalog:products:detail:" + slug
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// SortNewest is the default listing order.
const SortNewest = "newest"

func normalizeSort(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "price:asc", "price:desc", "title:asc", "title:desc":
		return s
	default:
		return SortNewest
	}
}
