package sponsored

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/lock"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

type stubPlacements struct {
	mu         sync.Mutex
	products   map[uuid.UUID]store.Product
	placements map[uuid.UUID]store.Placement
}

func newStubPlacements(products ...store.Product) *stubPlacements {
	s := &stubPlacements{products: map[uuid.UUID]store.Product{}, placements: map[uuid.UUID]store.Placement{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *stubPlacements) GetProductByID(_ context.Context, id uuid.UUID) (store.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return store.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *stubPlacements) CreatePlacement(_ context.Context, arg store.CreatePlacementParams) (store.Placement, error) {
	time.Sleep(2 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	p := store.Placement{ID: uuid.New(), ProductID: arg.ProductID, SellerID: arg.SellerID, Status: StatusPending,
		StartAt: arg.StartAt, EndAt: arg.EndAt, Priority: arg.Priority, TargetCategorySlug: arg.TargetCategorySlug,
		CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.placements[p.ID] = p
	return p, nil
}

func (s *stubPlacements) GetPlacement(_ context.Context, id uuid.UUID) (store.Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.placements[id]
	if !ok {
		return store.Placement{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *stubPlacements) UpdatePlacementStatus(_ context.Context, id uuid.UUID, status string) (store.Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.placements[id]
	if !ok {
		return store.Placement{}, pgx.ErrNoRows
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	s.placements[id] = p
	return p, nil
}

func (s *stubPlacements) ListPlacements(_ context.Context, status *string, sellerID *uuid.UUID, limit, offset int32) ([]store.Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Placement
	for _, p := range s.placements {
		if status != nil && p.Status != *status {
			continue
		}
		if sellerID != nil && p.SellerID != *sellerID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *stubPlacements) CountPlacementScopeConflicts(_ context.Context, priority int32, category *string, exclude *uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.placements {
		if exclude != nil && p.ID == *exclude {
			continue
		}
		if !occupiesScope(p.Status) || p.Priority != priority {
			continue
		}
		same := (p.TargetCategorySlug == nil && category == nil) ||
			(p.TargetCategorySlug != nil && category != nil && *p.TargetCategorySlug == *category)
		if same {
			n++
		}
	}
	return n, nil
}

func newPlacementService(t *testing.T, products ...store.Product) (*Service, *stubPlacements) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := newStubPlacements(products...)
	return &Service{Q: q, Lock: lock.Locker{R: client, RetryBackoff: time.Millisecond, MaxWait: 2 * time.Second}}, q
}

func ownedProduct(seller uuid.UUID) store.Product {
	p := product("phone")
	p.SellerID = seller
	return p
}

func TestCreatePlacementScopeConflict(t *testing.T) {
	seller := uuid.New()
	p := ownedProduct(seller)
	svc, _ := newPlacementService(t, p)
	ctx := context.Background()
	phones := "phones"

	first, err := svc.Create(ctx, seller, CreateInput{ProductID: p.ID, Priority: 5, TargetCategorySlug: &phones})
	require.NoError(t, err)
	require.Equal(t, StatusPending, first.Status)

	_, err = svc.Create(ctx, seller, CreateInput{ProductID: p.ID, Priority: 5, TargetCategorySlug: &phones})
	require.ErrorIs(t, err, ErrSlotTaken)

	_, err = svc.Create(ctx, seller, CreateInput{ProductID: p.ID, Priority: 5})
	require.NoError(t, err)
	_, err = svc.Create(ctx, seller, CreateInput{ProductID: p.ID, Priority: 4, TargetCategorySlug: &phones})
	require.NoError(t, err)
}

func TestCreatePlacementValidation(t *testing.T) {
	seller := uuid.New()
	p := ownedProduct(seller)
	svc, _ := newPlacementService(t, p)
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.New(), CreateInput{ProductID: p.ID})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(ctx, seller, CreateInput{ProductID: uuid.New()})
	require.ErrorIs(t, err, ErrNotFound)

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err = svc.Create(ctx, seller, CreateInput{ProductID: p.ID, StartAt: &start, EndAt: &end})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestConcurrentCreatesInSameScope(t *testing.T) {
	seller := uuid.New()
	p := ownedProduct(seller)
	svc, q := newPlacementService(t, p)

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), seller, CreateInput{ProductID: p.ID, Priority: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrSlotTaken)
	}
	require.Equal(t, 1, ok)
	require.Len(t, q.placements, 1)
}

func TestUpdateStatusRevivalRechecksScope(t *testing.T) {
	seller := uuid.New()
	p := ownedProduct(seller)
	svc, _ := newPlacementService(t, p)
	ctx := context.Background()

	first, err := svc.Create(ctx, seller, CreateInput{ProductID: p.ID, Priority: 2})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, first.ID, StatusRejected)
	require.NoError(t, err)

	second, err := svc.Create(ctx, seller, CreateInput{ProductID: p.ID, Priority: 2})
	require.NoError(t, err)
	approved, err := svc.UpdateStatus(ctx, second.ID, StatusApproved)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)

	_, err = svc.UpdateStatus(ctx, first.ID, StatusPending)
	require.ErrorIs(t, err, ErrSlotTaken)

	_, err = svc.UpdateStatus(ctx, second.ID, "archived")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpdateStatus(ctx, uuid.New(), StatusPaused)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateHandlerReturnsConflict(t *testing.T) {
	seller := uuid.New()
	p := ownedProduct(seller)
	svc, _ := newPlacementService(t, p)
	h := &Handler{Svc: svc}

	post := func() *httptest.ResponseRecorder {
		body := []byte(`{"productId":"` + p.ID.String() + `","priority":3}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/seller/placements", bytes.NewReader(body))
		req = req.WithContext(common.WithUserID(req.Context(), seller.String()))
		rr := httptest.NewRecorder()
		h.Create(rr, req)
		return rr
	}
	require.Equal(t, http.StatusCreated, post().Code)
	rr := post()
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "placement slot already taken")
}

func TestClickHandler(t *testing.T) {
	events := newStubEvents()
	id := uuid.New()
	events.known[id] = true
	h := &Handler{Recorder: &ImpressionRecorder{Q: events}}

	r := chi.NewRouter()
	r.Post("/api/v1/sponsored/{id}/click", h.Click)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sponsored/"+id.String()+"/click", nil)
	req.Header.Set(common.SessionHeader, "sess-9")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.EqualValues(t, 1, events.clicks[id])

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sponsored/"+uuid.NewString()+"/click", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
