package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-marketplace/internal/config"
	"github.com/noah-isme/toko-marketplace/internal/coupon"
	"github.com/noah-isme/toko-marketplace/internal/obs"
	"github.com/noah-isme/toko-marketplace/internal/sponsored"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

// demoSeller owns every seeded product and placement.
var demoSeller = uuid.MustParse("9a0e6a52-5c1e-4b8e-9a57-2f0f6c1d0b01")

type seedProduct struct {
	Title    string
	Slug     string
	Brand    string
	Category string
	Price    int64
	Stock    int32
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seeder").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	q := store.New(pool)
	seedCategories(ctx, q, logger)
	products := seedCatalog(ctx, q, logger)
	seedCoupons(ctx, q, logger)
	seedPlacements(ctx, q, products, logger)

	logger.Info().Msg("seeding completed")
}

func seedCategories(ctx context.Context, q *store.Queries, logger zerolog.Logger) {
	categories := []struct{ Slug, Name string }{
		{"electronics", "Electronics"},
		{"fashion", "Fashion"},
		{"home-living", "Home & Living"},
		{"toys", "Toys"},
		{"books", "Books"},
	}
	for _, c := range categories {
		if err := q.UpsertCategory(ctx, c.Slug, c.Name); err != nil {
			logger.Error().Err(err).Str("slug", c.Slug).Msg("seed category")
		}
	}
}

// seedCatalog returns the products created by this run, keyed by slug.
// Products that already exist are left untouched.
func seedCatalog(ctx context.Context, q *store.Queries, logger zerolog.Logger) map[string]store.Product {
	products := []seedProduct{
		{"Wireless Earbuds", "wireless-earbuds", "sonic", "electronics", 2499, 120},
		{"Mechanical Keyboard", "mechanical-keyboard", "keyforge", "electronics", 5499, 40},
		{"USB-C Charger 65W", "usb-c-charger-65w", "sonic", "electronics", 1899, 200},
		{"Noise Cancelling Headphones", "noise-cancelling-headphones", "sonic", "electronics", 12999, 25},
		{"Cotton T-Shirt", "cotton-t-shirt", "loom", "fashion", 499, 500},
		{"Denim Jacket", "denim-jacket", "loom", "fashion", 2999, 60},
		{"Running Shoes", "running-shoes", "stride", "fashion", 3999, 80},
		{"Ceramic Mug Set", "ceramic-mug-set", "hearth", "home-living", 899, 150},
		{"Linen Bedsheet", "linen-bedsheet", "hearth", "home-living", 2199, 70},
		{"Building Blocks 500pc", "building-blocks-500", "brickly", "toys", 1599, 90},
		{"Puzzle 1000pc", "puzzle-1000", "brickly", "toys", 699, 110},
		{"Go Programming Handbook", "go-programming-handbook", "paperleaf", "books", 799, 300},
		{"Last Unit Lamp", "last-unit-lamp", "hearth", "home-living", 1299, 1},
	}

	created := make(map[string]store.Product, len(products))
	for _, p := range products {
		_, err := q.GetProductBySlug(ctx, p.Slug)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			logger.Error().Err(err).Str("slug", p.Slug).Msg("lookup product")
			continue
		}
		row, err := q.CreateProduct(ctx, store.CreateProductParams{
			SellerID:     demoSeller,
			Title:        p.Title,
			Slug:         p.Slug,
			Description:  p.Title + " from the demo catalog.",
			CategorySlug: p.Category,
			Brand:        p.Brand,
			Price:        p.Price,
			Stock:        p.Stock,
			Status:       "active",
		})
		if err != nil {
			logger.Error().Err(err).Str("slug", p.Slug).Msg("seed product")
			continue
		}
		created[p.Slug] = row
	}
	logger.Info().Int("created", len(created)).Msg("products seeded")
	return created
}

func seedCoupons(ctx context.Context, q *store.Queries, logger zerolog.Logger) {
	maxDiscount := int64(500)
	minOrder := int64(1000)
	perUser := int32(1)
	usage := int32(1000)
	coupons := []store.UpsertCouponParams{
		{Code: "SAVE10", Kind: string(coupon.KindPercent), Value: decimal.NewFromInt(10), Active: true, MaxDiscount: &maxDiscount, UsageLimit: &usage},
		{Code: "FLAT200", Kind: string(coupon.KindFixed), Value: decimal.NewFromInt(200), Active: true, MinOrderValue: &minOrder},
		{Code: "WELCOME", Kind: string(coupon.KindPercent), Value: decimal.NewFromInt(15), Active: true, PerUserLimit: &perUser},
		{Code: "GADGET5", Kind: string(coupon.KindPercent), Value: decimal.NewFromInt(5), Active: true, AllowedCategories: []string{"electronics"}},
	}
	for _, c := range coupons {
		if _, err := q.GetCouponByCode(ctx, c.Code); err == nil {
			continue
		}
		if _, err := q.CreateCoupon(ctx, c); err != nil {
			logger.Error().Err(err).Str("code", c.Code).Msg("seed coupon")
		}
	}
}

func seedPlacements(ctx context.Context, q *store.Queries, products map[string]store.Product, logger zerolog.Logger) {
	electronics := "electronics"
	placements := []struct {
		Slug     string
		Priority int32
		Category *string
	}{
		{"noise-cancelling-headphones", 10, &electronics},
		{"denim-jacket", 5, nil},
		{"building-blocks-500", 3, nil},
	}
	for _, p := range placements {
		product, ok := products[p.Slug]
		if !ok {
			continue
		}
		row, err := q.CreatePlacement(ctx, store.CreatePlacementParams{
			ProductID:          product.ID,
			SellerID:           demoSeller,
			Priority:           p.Priority,
			TargetCategorySlug: p.Category,
		})
		if err != nil {
			logger.Error().Err(err).Str("slug", p.Slug).Msg("seed placement")
			continue
		}
		if _, err := q.UpdatePlacementStatus(ctx, row.ID, sponsored.StatusApproved); err != nil {
			logger.Error().Err(err).Str("slug", p.Slug).Msg("approve placement")
		}
	}
}
