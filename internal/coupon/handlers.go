package coupon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

// Handler exposes administrative coupon management endpoints.
type Handler struct {
	Admin *Admin
}

// View is the API representation of a coupon.
type View struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Kind              string          `json:"kind"`
	Value             decimal.Decimal `json:"value"`
	Active            bool            `json:"active"`
	StartsAt          *time.Time      `json:"startsAt,omitempty"`
	ExpiresAt         *time.Time      `json:"expiresAt,omitempty"`
	MinOrderValue     *int64          `json:"minOrderValue,omitempty"`
	MaxDiscount       *int64          `json:"maxDiscount,omitempty"`
	UsageLimit        *int32          `json:"usageLimit,omitempty"`
	PerUserLimit      *int32          `json:"perUserLimit,omitempty"`
	UsedCount         int32           `json:"usedCount"`
	AllowedCategories []string        `json:"allowedCategories"`
	AllowedBrands     []string        `json:"allowedBrands"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func toView(c store.Coupon) View {
	return View{
		ID:                c.ID.String(),
		Code:              c.Code,
		Kind:              c.Kind,
		Value:             c.Value,
		Active:            c.Active,
		StartsAt:          c.StartsAt,
		ExpiresAt:         c.ExpiresAt,
		MinOrderValue:     c.MinOrderValue,
		MaxDiscount:       c.MaxDiscount,
		UsageLimit:        c.UsageLimit,
		PerUserLimit:      c.PerUserLimit,
		UsedCount:         c.UsedCount,
		AllowedCategories: nonNil(c.AllowedCategories),
		AllowedBrands:     nonNil(c.AllowedBrands),
		UpdatedAt:         c.UpdatedAt,
	}
}

// Create handles POST /api/v1/admin/coupons.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	created, err := h.Admin.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toView(created)})
}

// Update handles PUT /api/v1/admin/coupons/{code}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	updated, err := h.Admin.Update(r.Context(), code, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(updated)})
}

// Get handles GET /api/v1/admin/coupons/{code}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Admin.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(c)})
}

// List handles GET /api/v1/admin/coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := common.ParsePagination(r.URL.Query(), 20, 100)
	items, total, err := h.Admin.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]View, 0, len(items))
	for _, c := range items {
		views = append(views, toView(c))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       views,
		"pagination": common.NewPage(page, limit, total),
	})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "coupon not found", nil)
	case errors.Is(err, ErrCodeTaken):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "coupon code already exists", nil)
	default:
		common.WriteError(w, err)
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
