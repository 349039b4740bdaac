package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/analytics"
	"github.com/noah-isme/toko-marketplace/internal/auth"
	"github.com/noah-isme/toko-marketplace/internal/cart"
	"github.com/noah-isme/toko-marketplace/internal/catalog"
	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/coupon"
	"github.com/noah-isme/toko-marketplace/internal/health"
	"github.com/noah-isme/toko-marketplace/internal/obs"
	"github.com/noah-isme/toko-marketplace/internal/order"
	"github.com/noah-isme/toko-marketplace/internal/ratelimit"
	"github.com/noah-isme/toko-marketplace/internal/security"
	"github.com/noah-isme/toko-marketplace/internal/sponsored"
)

type routerDeps struct {
	Logger  zerolog.Logger
	Metrics *obs.HTTPMetrics
	Tracing bool
	Service string
	Origins []string
	HSTS    bool
	BodyMax int64

	Auth          auth.Middleware
	Idem          common.Idem
	CouponLimiter ratelimit.Limiter

	Health    health.Handler
	Catalog   *catalog.Handler
	Cart      *cart.Handler
	Orders    *order.Handler
	Coupons   *coupon.Handler
	Sponsored *sponsored.Handler
	Analytics *analytics.Handler
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.HTTPObs{Metrics: d.Metrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{HSTS: d.HSTS}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(d.Origins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", common.SessionHeader},
		ExposedHeaders:   []string{"Location", "X-Total-Count", "X-RateLimit-Remaining"},
		AllowCredentials: len(d.Origins) > 0,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	couponRate := ratelimit.Handler{
		Limiter: d.CouponLimiter,
		Key:     ratelimit.UserOrIP("coupon"),
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("coupon_rate_limit_unavailable") },
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: d.BodyMax}.Middleware)
		v.Use(d.Auth.Authenticate)

		v.Get("/categories", d.Catalog.Categories)
		v.Get("/products", d.Catalog.Products)
		v.Get("/products/{slug}", d.Catalog.ProductDetail)
		v.Post("/sponsored/{id}/click", d.Sponsored.Click)

		v.Group(func(authR chi.Router) {
			authR.Use(d.Auth.RequireAuth)

			authR.Route("/cart", func(c chi.Router) {
				c.Get("/", d.Cart.Get)
				c.Post("/items", d.Cart.AddItem)
				c.Patch("/items/{productId}", d.Cart.UpdateItem)
				c.Delete("/items/{productId}", d.Cart.RemoveItem)
				c.With(couponRate.Middleware).Post("/apply-coupon", d.Cart.ApplyCoupon)
				c.Delete("/coupon", d.Cart.RemoveCoupon)
			})

			authR.With(d.Idem.Middleware).Post("/orders", d.Orders.Place)
			authR.Get("/orders", d.Orders.List)
			authR.Get("/orders/{id}", d.Orders.Get)

			authR.With(auth.RequireRole(auth.RoleSeller)).Post("/seller/placements", d.Sponsored.Create)

			authR.Route("/admin", func(admin chi.Router) {
				admin.Use(auth.RequireRole(auth.RoleAdmin))
				admin.Get("/coupons", d.Coupons.List)
				admin.Post("/coupons", d.Coupons.Create)
				admin.Get("/coupons/{code}", d.Coupons.Get)
				admin.Put("/coupons/{code}", d.Coupons.Update)
				admin.Get("/placements", d.Sponsored.List)
				admin.Patch("/placements/{id}/status", d.Sponsored.UpdateStatus)
				admin.Get("/analytics/sponsored", d.Analytics.Sponsored)
			})
		})
	})

	if !d.Tracing {
		return r
	}
	return obs.Tracing(d.Service, r)
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
