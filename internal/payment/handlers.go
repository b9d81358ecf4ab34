package payment

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/payform-api/internal/common"
	"github.com/noah-isme/payform-api/internal/forms"
	"github.com/noah-isme/payform-api/internal/nonce"
)

// FormNonceIssuer issues the nonce embedded in a rendered payment form.
type FormNonceIssuer interface {
	FormNonce(formID string) (nonce.Token, error)
}

// Handler exposes the payment form REST endpoints.
type Handler struct {
	Svc    *Service
	Issuer FormNonceIssuer
}

// Routes mounts the endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/paymentintent/create", h.CreateIntent)
	r.Post("/paymentintent/confirm", h.ConfirmIntent)
	r.Post("/subscription", h.CreateSubscription)
	r.Post("/setupintent/create", h.CreateSetupIntent)
	r.Get("/nonce", h.Nonce)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return false
	}
	return true
}

// CreateIntent handles POST /paymentintent/create.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req CreateIntentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.CreateIntent(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, res.HTTPStatus, res.Response)
}

// ConfirmIntent handles POST /paymentintent/confirm.
func (h *Handler) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req ConfirmIntentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.ConfirmIntent(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, res.HTTPStatus, res.Response)
}

// CreateSubscription handles POST /subscription and returns the full subscription.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req SubscriptionRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	sub, err := h.Svc.CreateSubscription(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sub)
}

// CreateSetupIntent handles POST /setupintent/create.
func (h *Handler) CreateSetupIntent(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req SetupIntentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.CreateSetupIntent(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// Nonce handles GET /nonce?form_id=, issuing the nonce a rendered form embeds.
func (h *Handler) Nonce(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if h.Issuer == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "nonce issuer unavailable", nil)
		return
	}
	formID := strings.TrimSpace(r.URL.Query().Get("form_id"))
	if formID == "" {
		common.WriteError(w, common.ValidationError("form_id is required.", nil))
		return
	}
	if _, err := h.Svc.Forms.Resolve(r.Context(), formID); err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			err = common.InvalidFormError(err)
		}
		common.WriteError(w, err)
		return
	}
	tok, err := h.Issuer.FormNonce(formID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	common.JSON(w, http.StatusOK, tok)
}
