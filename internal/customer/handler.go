package customer

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/payform-api/internal/common"
)

// Handler exposes POST /customer.
type Handler struct {
	Resolver Resolver
}

// Routes mounts the endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/customer", h.Create)
}

// Create handles POST /customer.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "CUSTOMER_NOT_CONFIGURED", "customer handler unavailable", nil)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ref, err := h.Resolver.Resolve(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	common.JSON(w, http.StatusOK, ref)
}
