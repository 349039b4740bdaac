package obs

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CouponValidationsTotal counts coupon checks by path (preview, redeem) and outcome.
	CouponValidationsTotal *prometheus.CounterVec
	// OrdersTotal counts order placement attempts by outcome.
	OrdersTotal *prometheus.CounterVec
	// StockConflictsTotal counts conditional stock decrements that lost a race.
	StockConflictsTotal prometheus.Counter
	// SponsoredImpressionsTotal counts impression bookkeeping outcomes.
	SponsoredImpressionsTotal *prometheus.CounterVec
	// SponsoredSlotsServed counts sponsored entries placed into listing pages.
	SponsoredSlotsServed prometheus.Counter
	// NotificationsTotal counts order confirmation enqueue and delivery outcomes.
	NotificationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers marketplace collectors.
// Calling it more than once is a no-op.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CouponValidationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_validations_total",
			Help:      "Coupon validations by path and outcome.",
		}, []string{"path", "result"}))
		OrdersTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order placement attempts by outcome.",
		}, []string{"result"}))
		StockConflictsTotal = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_conflicts_total",
			Help:      "Conditional stock decrements that matched no row.",
		}))
		SponsoredImpressionsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sponsored_impressions_total",
			Help:      "Sponsored impression bookkeeping by outcome.",
		}, []string{"result"}))
		SponsoredSlotsServed = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sponsored_slots_served_total",
			Help:      "Sponsored entries placed into listing pages.",
		}))
		NotificationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_notifications_total",
			Help:      "Order confirmation notifications by stage and outcome.",
		}, []string{"stage", "result"}))
	})
}

// ObserveCouponValidation records a coupon check. An empty reason means success.
func ObserveCouponValidation(path, reason string) {
	if CouponValidationsTotal == nil {
		return
	}
	CouponValidationsTotal.WithLabelValues(path, reasonLabel(reason)).Inc()
}

// ObserveOrder records an order placement outcome.
func ObserveOrder(result string) {
	if OrdersTotal != nil {
		OrdersTotal.WithLabelValues(result).Inc()
	}
}

// ObserveStockConflict records a lost stock compare-and-swap.
func ObserveStockConflict() {
	if StockConflictsTotal != nil {
		StockConflictsTotal.Inc()
	}
}

// ObserveImpression records an impression bookkeeping outcome.
func ObserveImpression(result string) {
	if SponsoredImpressionsTotal != nil {
		SponsoredImpressionsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveSponsoredSlots records how many sponsored entries a page carried.
func ObserveSponsoredSlots(n int) {
	if SponsoredSlotsServed != nil && n > 0 {
		SponsoredSlotsServed.Add(float64(n))
	}
}

// ObserveNotification records a notification stage outcome.
func ObserveNotification(stage, result string) {
	if NotificationsTotal != nil {
		NotificationsTotal.WithLabelValues(stage, result).Inc()
	}
}

// reasonLabel keeps label cardinality bounded: the minimum order reason embeds
// an amount, so it is folded into one label value.
func reasonLabel(reason string) string {
	switch {
	case reason == "":
		return "ok"
	case strings.HasPrefix(reason, "Minimum order"):
		return "min_order"
	default:
		return strings.ReplaceAll(strings.ToLower(reason), " ", "_")
	}
}
