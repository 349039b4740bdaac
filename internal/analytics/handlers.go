package analytics

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/common"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

// Sponsored handles GET /api/v1/admin/analytics/sponsored.
func (h *Handler) Sponsored(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be a positive integer", map[string]string{"field": "limit"})
			return
		}
		limit = min(parsed, 500)
	}
	rows, err := h.Svc.SponsoredReport(r.Context(), int32(limit))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("sponsored_report_failed")
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "failed to build report", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
