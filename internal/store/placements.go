package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const placementColumns = `id, product_id, seller_id, status, start_at, end_at, priority, target_category_slug,
impressions, clicks, created_at, updated_at`

func scanPlacement(row pgx.Row) (Placement, error) {
	var p Placement
	err := row.Scan(&p.ID, &p.ProductID, &p.SellerID, &p.Status, &p.StartAt, &p.EndAt, &p.Priority,
		&p.TargetCategorySlug, &p.Impressions, &p.Clicks, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

type CreatePlacementParams struct {
	ProductID          uuid.UUID
	SellerID           uuid.UUID
	StartAt            *time.Time
	EndAt              *time.Time
	Priority           int32
	TargetCategorySlug *string
}

const createPlacement = `-- name: CreatePlacement :one
INSERT INTO sponsored_placements (product_id, seller_id, start_at, end_at, priority, target_category_slug)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + placementColumns

func (q *Queries) CreatePlacement(ctx context.Context, arg CreatePlacementParams) (Placement, error) {
	return scanPlacement(q.db.QueryRow(ctx, createPlacement, arg.ProductID, arg.SellerID, arg.StartAt, arg.EndAt,
		arg.Priority, arg.TargetCategorySlug))
}

const getPlacement = `-- name: GetPlacement :one
SELECT ` + placementColumns + ` FROM sponsored_placements WHERE id = $1`

func (q *Queries) GetPlacement(ctx context.Context, id uuid.UUID) (Placement, error) {
	return scanPlacement(q.db.QueryRow(ctx, getPlacement, id))
}

const updatePlacementStatus = `-- name: UpdatePlacementStatus :one
UPDATE sponsored_placements SET status = $2, updated_at = now() WHERE id = $1
RETURNING ` + placementColumns

func (q *Queries) UpdatePlacementStatus(ctx context.Context, id uuid.UUID, status string) (Placement, error) {
	return scanPlacement(q.db.QueryRow(ctx, updatePlacementStatus, id, status))
}

const listPlacements = `-- name: ListPlacements :many
SELECT ` + placementColumns + ` FROM sponsored_placements
WHERE ($1::text IS NULL OR status = $1) AND ($2::uuid IS NULL OR seller_id = $2)
ORDER BY priority DESC, updated_at DESC LIMIT $3 OFFSET $4`

func (q *Queries) ListPlacements(ctx context.Context, status *string, sellerID *uuid.UUID, limit, offset int32) ([]Placement, error) {
	rows, err := q.db.Query(ctx, listPlacements, status, sellerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Placement
	for rows.Next() {
		p, err := scanPlacement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const countPlacementScopeConflicts = `-- name: CountPlacementScopeConflicts :one
SELECT count(*) FROM sponsored_placements
WHERE status IN ('approved', 'pending', 'paused')
  AND priority = $1
  AND target_category_slug IS NOT DISTINCT FROM $2
  AND ($3::uuid IS NULL OR id <> $3)`

// CountPlacementScopeConflicts counts live placements sharing the given
// (priority, target category) scope, optionally ignoring one placement.
func (q *Queries) CountPlacementScopeConflicts(ctx context.Context, priority int32, category *string, exclude *uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countPlacementScopeConflicts, priority, category, exclude).Scan(&n)
	return n, err
}

// PlacementCandidateFilter narrows serving candidates. Target selects
// placements bound to that category, or untargeted ones when nil. The
// product bounds mirror the organic listing filter.
type PlacementCandidateFilter struct {
	Target   *string
	Category *string
	MinPrice *int64
	MaxPrice *int64
	Now      time.Time
	Limit    int32
}

const listPlacementCandidates = `-- name: ListPlacementCandidates :many
SELECT sp.id, sp.product_id, sp.seller_id, sp.status, sp.start_at, sp.end_at, sp.priority, sp.target_category_slug,
  sp.impressions, sp.clicks, sp.created_at, sp.updated_at,
  p.id, p.seller_id, p.title, p.slug, p.description, p.category_slug, p.brand, p.price, p.stock, p.status,
  p.thumbnail, p.created_at, p.updated_at
FROM sponsored_placements sp
JOIN products p ON p.id = sp.product_id
WHERE sp.status = 'approved'
  AND (($1::text IS NULL AND sp.target_category_slug IS NULL) OR sp.target_category_slug = $1)
  AND (sp.start_at IS NULL OR sp.start_at <= $2::timestamptz)
  AND (sp.end_at IS NULL OR sp.end_at >= $2::timestamptz)
  AND p.status = 'active'
  AND ($3::text IS NULL OR p.category_slug = $3)
  AND ($4::bigint IS NULL OR p.price >= $4)
  AND ($5::bigint IS NULL OR p.price <= $5)
ORDER BY sp.priority DESC, sp.updated_at DESC, sp.created_at DESC
LIMIT $6`

// ListPlacementCandidates returns approved placements that are live at f.Now
// and whose product passes the listing filter.
func (q *Queries) ListPlacementCandidates(ctx context.Context, f PlacementCandidateFilter) ([]PlacementCandidate, error) {
	rows, err := q.db.Query(ctx, listPlacementCandidates, f.Target, f.Now, f.Category, f.MinPrice, f.MaxPrice, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlacementCandidate
	for rows.Next() {
		var c PlacementCandidate
		sp, p := &c.Placement, &c.Product
		if err := rows.Scan(&sp.ID, &sp.ProductID, &sp.SellerID, &sp.Status, &sp.StartAt, &sp.EndAt, &sp.Priority,
			&sp.TargetCategorySlug, &sp.Impressions, &sp.Clicks, &sp.CreatedAt, &sp.UpdatedAt,
			&p.ID, &p.SellerID, &p.Title, &p.Slug, &p.Description, &p.CategorySlug, &p.Brand, &p.Price, &p.Stock,
			&p.Status, &p.Thumbnail, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const recordImpression = `-- name: RecordImpression :execrows
WITH ins AS (
  INSERT INTO analytics_events (event_type, placement_id, product_id, session_id, day)
  VALUES ('sponsored_impression', $1, $2, $3, $4)
  ON CONFLICT (event_type, session_id, day, placement_id) WHERE event_type = 'sponsored_impression'
  DO NOTHING
  RETURNING placement_id
)
UPDATE sponsored_placements SET impressions = impressions + 1
WHERE id IN (SELECT placement_id FROM ins)`

// RecordImpression inserts the impression event and bumps the counter only
// when the event is new for (session, day, placement).
func (q *Queries) RecordImpression(ctx context.Context, placementID, productID uuid.UUID, sessionID string, day time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, recordImpression, placementID, productID, sessionID, day)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const recordClick = `-- name: RecordClick :execrows
WITH bumped AS (
  UPDATE sponsored_placements SET clicks = clicks + 1 WHERE id = $1
  RETURNING id, product_id
)
INSERT INTO analytics_events (event_type, placement_id, product_id, session_id, day)
SELECT 'sponsored_click', id, product_id, $2, $3 FROM bumped`

// RecordClick reports false when the placement does not exist.
func (q *Queries) RecordClick(ctx context.Context, placementID uuid.UUID, sessionID string, day time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, recordClick, placementID, sessionID, day)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const sponsoredStats = `-- name: SponsoredStats :many
SELECT sp.id, sp.product_id, p.title, sp.status, sp.impressions, sp.clicks
FROM sponsored_placements sp
JOIN products p ON p.id = sp.product_id
ORDER BY sp.impressions DESC, sp.id
LIMIT $1`

func (q *Queries) SponsoredStats(ctx context.Context, limit int32) ([]PlacementStat, error) {
	rows, err := q.db.Query(ctx, sponsoredStats, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlacementStat
	for rows.Next() {
		var s PlacementStat
		if err := rows.Scan(&s.PlacementID, &s.ProductID, &s.ProductTitle, &s.Status, &s.Impressions, &s.Clicks); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
