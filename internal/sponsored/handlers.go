package sponsored

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/lock"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

// Handler exposes click tracking and placement management.
type Handler struct {
	Svc      *Service
	Recorder *ImpressionRecorder
}

// PlacementView is the API representation of a placement.
type PlacementView struct {
	ID                 string     `json:"id"`
	ProductID          string     `json:"productId"`
	SellerID           string     `json:"sellerId"`
	Status             string     `json:"status"`
	StartAt            *time.Time `json:"startAt,omitempty"`
	EndAt              *time.Time `json:"endAt,omitempty"`
	Priority           int32      `json:"priority"`
	TargetCategorySlug *string    `json:"targetCategorySlug,omitempty"`
	Impressions        int64      `json:"impressions"`
	Clicks             int64      `json:"clicks"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func toView(p store.Placement) PlacementView {
	return PlacementView{
		ID:                 p.ID.String(),
		ProductID:          p.ProductID.String(),
		SellerID:           p.SellerID.String(),
		Status:             p.Status,
		StartAt:            p.StartAt,
		EndAt:              p.EndAt,
		Priority:           p.Priority,
		TargetCategorySlug: p.TargetCategorySlug,
		Impressions:        p.Impressions,
		Clicks:             p.Clicks,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

type createRequest struct {
	ProductID          string     `json:"productId" validate:"required,uuid"`
	StartAt            *time.Time `json:"startAt"`
	EndAt              *time.Time `json:"endAt"`
	Priority           int32      `json:"priority" validate:"gte=0,lte=1000"`
	TargetCategorySlug *string    `json:"targetCategorySlug" validate:"omitempty,max=100"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected paused"`
}

// Click handles POST /api/v1/sponsored/{id}/click.
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", ErrPlacementNotFound.Error(), nil)
		return
	}
	if err := h.Recorder.RecordClick(r.Context(), common.SessionID(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Create handles POST /api/v1/seller/placements.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	productID, _ := uuid.Parse(req.ProductID)
	var category *string
	if req.TargetCategorySlug != nil {
		if slug := strings.TrimSpace(*req.TargetCategorySlug); slug != "" {
			category = &slug
		}
	}
	p, err := h.Svc.Create(r.Context(), sellerID, CreateInput{
		ProductID:          productID,
		StartAt:            req.StartAt,
		EndAt:              req.EndAt,
		Priority:           req.Priority,
		TargetCategorySlug: category,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toView(p)})
}

// List handles GET /api/v1/admin/placements.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := common.ParsePagination(q, 20, 100)
	f := Filter{Page: page, Limit: limit}
	if s := q.Get("status"); s != "" {
		if !ValidStatus(s) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status", map[string]string{"field": "status"})
			return
		}
		f.Status = &s
	}
	if raw := q.Get("sellerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid sellerId", map[string]string{"field": "sellerId"})
			return
		}
		f.SellerID = &id
	}
	items, err := h.Svc.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]PlacementView, 0, len(items))
	for _, p := range items {
		out = append(out, toView(p))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// UpdateStatus handles PATCH /api/v1/admin/placements/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "placement not found", nil)
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Svc.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(p)})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSlotTaken):
		common.JSONError(w, http.StatusConflict, "SLOT_TAKEN", err.Error(), nil)
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusConflict, "SLOT_BUSY", "placement scope is being modified, retry", nil)
	case errors.Is(err, ErrForbidden):
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPlacementNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("sponsored_request_failed")
		common.WriteError(w, err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if err := common.ValidateStruct(dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	return true
}
