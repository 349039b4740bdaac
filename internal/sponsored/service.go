package sponsored

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-marketplace/internal/store"
)

// Placement statuses.
const (
	StatusPending  = "pending"
	StatusRejected = "rejected"
	StatusPaused   = "paused"
)

var (
	// ErrSlotTaken is returned when another live placement owns the scope.
	ErrSlotTaken = errors.New("placement slot already taken")
	// ErrNotFound is returned for unknown placements or products.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a seller promotes a product they do not own.
	ErrForbidden = errors.New("product belongs to another seller")
	// ErrInvalidInput is returned for malformed placement requests.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidStatus reports whether s is a placement status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPaused:
		return true
	}
	return false
}

// occupiesScope reports whether a placement in status s holds its
// (priority, category) scope.
func occupiesScope(s string) bool {
	return s == StatusApproved || s == StatusPending || s == StatusPaused
}

// Querier captures the database methods required for placement management.
type Querier interface {
	GetProductByID(ctx context.Context, id uuid.UUID) (store.Product, error)
	CreatePlacement(ctx context.Context, arg store.CreatePlacementParams) (store.Placement, error)
	GetPlacement(ctx context.Context, id uuid.UUID) (store.Placement, error)
	UpdatePlacementStatus(ctx context.Context, id uuid.UUID, status string) (store.Placement, error)
	ListPlacements(ctx context.Context, status *string, sellerID *uuid.UUID, limit, offset int32) ([]store.Placement, error)
	CountPlacementScopeConflicts(ctx context.Context, priority int32, category *string, exclude *uuid.UUID) (int64, error)
}

// Locker serialises scope checks across replicas.
type Locker interface {
	Key(parts ...string) string
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service manages sponsored placements.
type Service struct {
	Q    Querier
	Lock Locker
}

// CreateInput is a seller's placement request.
type CreateInput struct {
	ProductID          uuid.UUID
	StartAt            *time.Time
	EndAt              *time.Time
	Priority           int32
	TargetCategorySlug *string
}

// Filter narrows placement listings.
type Filter struct {
	Status   *string
	SellerID *uuid.UUID
	Page     int
	Limit    int
}

// Create registers a pending placement for one of the seller's products.
func (s *Service) Create(ctx context.Context, sellerID uuid.UUID, in CreateInput) (store.Placement, error) {
	if in.StartAt != nil && in.EndAt != nil && in.EndAt.Before(*in.StartAt) {
		return store.Placement{}, fmt.Errorf("%w: endAt must not be before startAt", ErrInvalidInput)
	}
	if in.TargetCategorySlug != nil && *in.TargetCategorySlug == "" {
		in.TargetCategorySlug = nil
	}
	product, err := s.Q.GetProductByID(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Placement{}, ErrNotFound
		}
		return store.Placement{}, fmt.Errorf("load product: %w", err)
	}
	if product.SellerID != sellerID {
		return store.Placement{}, ErrForbidden
	}

	var created store.Placement
	err = s.withScope(ctx, in.Priority, in.TargetCategorySlug, func(ctx context.Context) error {
		if err := s.checkScope(ctx, in.Priority, in.TargetCategorySlug, nil); err != nil {
			return err
		}
		created, err = s.Q.CreatePlacement(ctx, store.CreatePlacementParams{
			ProductID:          in.ProductID,
			SellerID:           sellerID,
			StartAt:            in.StartAt,
			EndAt:              in.EndAt,
			Priority:           in.Priority,
			TargetCategorySlug: in.TargetCategorySlug,
		})
		return err
	})
	return created, err
}

// UpdateStatus moves a placement through moderation. Reviving a rejected
// placement re-checks its scope.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (store.Placement, error) {
	if !ValidStatus(status) {
		return store.Placement{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	current, err := s.Q.GetPlacement(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Placement{}, ErrNotFound
		}
		return store.Placement{}, fmt.Errorf("load placement: %w", err)
	}
	if occupiesScope(current.Status) || !occupiesScope(status) {
		return s.Q.UpdatePlacementStatus(ctx, id, status)
	}
	var updated store.Placement
	err = s.withScope(ctx, current.Priority, current.TargetCategorySlug, func(ctx context.Context) error {
		if err := s.checkScope(ctx, current.Priority, current.TargetCategorySlug, &id); err != nil {
			return err
		}
		updated, err = s.Q.UpdatePlacementStatus(ctx, id, status)
		return err
	})
	return updated, err
}

// List returns placements matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]store.Placement, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return s.Q.ListPlacements(ctx, f.Status, f.SellerID, int32(f.Limit), int32((f.Page-1)*f.Limit))
}

func (s *Service) checkScope(ctx context.Context, priority int32, category *string, exclude *uuid.UUID) error {
	n, err := s.Q.CountPlacementScopeConflicts(ctx, priority, category, exclude)
	if err != nil {
		return fmt.Errorf("check placement scope: %w", err)
	}
	if n > 0 {
		return ErrSlotTaken
	}
	return nil
}

func (s *Service) withScope(ctx context.Context, priority int32, category *string, fn func(context.Context) error) error {
	if s.Lock == nil {
		return fn(ctx)
	}
	scope := "-"
	if category != nil {
		scope = *category
	}
	return s.Lock.WithLock(ctx, s.Lock.Key("placement", strconv.Itoa(int(priority)), scope), 5*time.Second, fn)
}
