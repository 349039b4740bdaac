package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/common"
)

// Handler exposes order endpoints to authenticated shoppers.
type Handler struct {
	Svc *Service
}

type placeRequest struct {
	Address        Address `json:"address"`
	ShippingMethod string  `json:"shippingMethod" validate:"omitempty,oneof=standard express"`
	CouponCode     *string `json:"couponCode,omitempty" validate:"omitempty,max=64"`
}

// Place handles POST /api/v1/orders.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.ValidateStruct(&req); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.Place(r.Context(), userID, Input{
		Address:        req.Address,
		ShippingMethod: req.ShippingMethod,
		CouponCode:     req.CouponCode,
		Email:          common.UserEmail(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+view.ID)
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	page, limit := common.ParsePagination(r.URL.Query(), 20, 100)
	orders, total, err := h.Svc.List(r.Context(), userID, page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": common.NewPage(page, limit, total),
	})
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.RequireUser(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", ErrNotFound.Error(), nil)
		return
	}
	view, err := h.Svc.Get(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var stock *InsufficientStockError
	switch {
	case errors.As(err, &stock):
		common.JSONRejection(w, "INSUFFICIENT_STOCK", stock.Error(), map[string]any{"productId": stock.ProductID.String()})
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusBadRequest, "EMPTY_CART", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("order_request_failed")
		common.WriteError(w, err)
	}
}
