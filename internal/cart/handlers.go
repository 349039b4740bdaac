package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/common"
)

// Handler wires cart services to HTTP. Every route requires an authenticated user.
type Handler struct {
	Svc *Service
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type updateItemRequest struct {
	Qty int `json:"qty" validate:"gt=0"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"max=64"`
}

// Get handles GET /api/v1/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Get(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// AddItem handles POST /api/v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !decode(w, r, &req) {
		return
	}
	productID, _ := uuid.Parse(req.ProductID)
	if err := h.Svc.AddItem(r.Context(), userID, productID, req.Qty); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Get(w, r)
}

// UpdateItem handles PATCH /api/v1/cart/items/{productId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	productID, err := ParseID(chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req updateItemRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Svc.UpdateItem(r.Context(), userID, productID, req.Qty); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Get(w, r)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	productID, err := ParseID(chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Svc.RemoveItem(r.Context(), userID, productID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyCoupon handles POST /api/v1/cart/apply-coupon. Rejections answer 400
// with the reason in a top-level message field.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	var req applyCouponRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.ApplyCoupon(r.Context(), userID, req.Code)
	if err != nil {
		var rejected *CouponRejectedError
		if errors.As(err, &rejected) {
			zerolog.Ctx(r.Context()).Info().Str("code", strings.ToUpper(req.Code)).Str("reason", rejected.Reason).Msg("coupon_rejected")
			common.JSONRejection(w, "COUPON_REJECTED", rejected.Reason, nil)
			return
		}
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// RemoveCoupon handles DELETE /api/v1/cart/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemoveCoupon(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrProductUnavailable):
		common.JSONError(w, http.StatusBadRequest, "PRODUCT_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		if _, ok := common.AsAppError(err); !ok {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("cart_request_failed")
		}
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
