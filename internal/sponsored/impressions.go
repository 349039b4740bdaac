package sponsored

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/obs"
)

// ErrPlacementNotFound is returned when a click references an unknown placement.
var ErrPlacementNotFound = errors.New("placement not found")

// EventStore persists impression and click events.
type EventStore interface {
	RecordImpression(ctx context.Context, placementID, productID uuid.UUID, sessionID string, day time.Time) (bool, error)
	RecordClick(ctx context.Context, placementID uuid.UUID, sessionID string, day time.Time) (bool, error)
}

// ImpressionRecorder counts at most one impression per session, calendar day
// and placement. Redis absorbs repeats cheaply; the unique index on
// analytics_events is the source of truth.
type ImpressionRecorder struct {
	R        redis.Cmdable
	Q        EventStore
	Location *time.Location
	TTL      time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Day returns the calendar day of t in the configured time zone, as a UTC
// midnight suitable for a DATE column.
func (r *ImpressionRecorder) Day(t time.Time) time.Time {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ImpressionKey is the Redis de-duplication key for one impression.
func ImpressionKey(day time.Time, sessionID string, placementID uuid.UUID) string {
	return fmt.Sprintf("sponsored:imp:%s:%s:%s", day.Format("20060102"), sessionID, placementID)
}

// Record books impressions for the sponsored entries in a served page.
// Failures are logged and swallowed.
func (r *ImpressionRecorder) Record(ctx context.Context, sessionID string, entries []Entry) {
	if r == nil || r.Q == nil || sessionID == "" {
		return
	}
	day := r.Day(r.now())
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 25 * time.Hour
	}
	for _, e := range entries {
		if !e.Sponsored() {
			continue
		}
		log := r.Logger.With().Str("placement_id", e.PlacementID.String()).Logger()
		key := ImpressionKey(day, sessionID, e.PlacementID)
		if r.R != nil {
			fresh, err := r.R.SetNX(ctx, key, 1, ttl).Result()
			if err != nil {
				log.Warn().Err(err).Msg("impression_dedup_unavailable")
			} else if !fresh {
				obs.ObserveImpression("duplicate")
				continue
			}
		}
		counted, err := r.Q.RecordImpression(ctx, e.PlacementID, e.Product.ID, sessionID, day)
		if err != nil {
			log.Warn().Err(err).Msg("impression_record_failed")
			obs.ObserveImpression("error")
			if r.R != nil {
				_ = r.R.Del(ctx, key).Err()
			}
			continue
		}
		if counted {
			obs.ObserveImpression("counted")
		} else {
			obs.ObserveImpression("duplicate")
		}
	}
}

// RecordClick increments the click counter and logs a click event.
func (r *ImpressionRecorder) RecordClick(ctx context.Context, sessionID string, placementID uuid.UUID) error {
	if r == nil || r.Q == nil {
		return errors.New("impression recorder not configured")
	}
	ok, err := r.Q.RecordClick(ctx, placementID, sessionID, r.Day(r.now()))
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	if !ok {
		return ErrPlacementNotFound
	}
	return nil
}

func (r *ImpressionRecorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
