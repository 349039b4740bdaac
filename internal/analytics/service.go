package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-marketplace/internal/store"
)

// Querier defines the database access required for analytics operations.
type Querier interface {
	SponsoredStats(ctx context.Context, limit int32) ([]store.PlacementStat, error)
}

// Service provides cached access to sponsored placement performance.
type Service struct {
	Q   Querier
	R   redis.Cmdable
	TTL time.Duration
}

// SponsoredRow is one placement line of the CTR report.
type SponsoredRow struct {
	PlacementID  string          `json:"placementId"`
	ProductID    string          `json:"productId"`
	ProductTitle string          `json:"productTitle"`
	Status       string          `json:"status"`
	Impressions  int64           `json:"impressions"`
	Clicks       int64           `json:"clicks"`
	CTR          decimal.Decimal `json:"ctr"`
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// CTR is clicks over impressions rounded to four places; zero without impressions.
func CTR(clicks, impressions int64) decimal.Decimal {
	if impressions <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(clicks).DivRound(decimal.NewFromInt(impressions), 4)
}

// SponsoredReport returns placements ordered by impressions with their CTR.
func (s *Service) SponsoredReport(ctx context.Context, limit int32) ([]SponsoredRow, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	key := cacheKey("an", "sponsored", limit)
	if rows, ok := s.fromCache(ctx, key); ok {
		return rows, nil
	}
	stats, err := s.Q.SponsoredStats(ctx, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]SponsoredRow, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, SponsoredRow{
			PlacementID:  st.PlacementID.String(),
			ProductID:    st.ProductID.String(),
			ProductTitle: st.ProductTitle,
			Status:       st.Status,
			Impressions:  st.Impressions,
			Clicks:       st.Clicks,
			CTR:          CTR(st.Clicks, st.Impressions),
		})
	}
	s.store(ctx, key, rows)
	return rows, nil
}

func (s *Service) fromCache(ctx context.Context, key string) ([]SponsoredRow, bool) {
	if s.R == nil || s.TTL <= 0 {
		return nil, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var rows []SponsoredRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
