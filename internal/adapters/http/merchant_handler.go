package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

// MerchantHandler serves self-service onboarding for authenticated users.
type MerchantHandler struct {
	service ports.MerchantService
	logger  *slog.Logger
}

func NewMerchantHandler(service ports.MerchantService, logger *slog.Logger) *MerchantHandler {
	return &MerchantHandler{service: service, logger: logger}
}

type registerMerchantRequest struct {
	BusinessName  string `json:"business_name"`
	BusinessEmail string `json:"business_email"`
	Website       string `json:"website"`
	WebhookURL    string `json:"webhook_url"`
}

func (h *MerchantHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	var req registerMerchantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest, h.logger)
		return
	}
	m, err := h.service.Register(r.Context(), caller, ports.RegisterMerchantRequest{
		BusinessName:  req.BusinessName,
		BusinessEmail: req.BusinessEmail,
		Website:       req.Website,
		WebhookURL:    req.WebhookURL,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toMerchantResponse(m), h.logger)
}

func (h *MerchantHandler) HandleGetMine(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	m, err := h.service.GetMine(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toMerchantResponse(m), h.logger)
}

type updateMerchantRequest struct {
	BusinessName  *string `json:"business_name"`
	Website       *string `json:"website"`
	WebhookURL    *string `json:"webhook_url"`
	WebhookSecret *string `json:"webhook_secret"`
}

func (h *MerchantHandler) HandleUpdateMine(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	var req updateMerchantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest, h.logger)
		return
	}
	m, err := h.service.UpdateMine(r.Context(), caller, domain.MerchantUpdate{
		BusinessName:  req.BusinessName,
		Website:       req.Website,
		WebhookURL:    req.WebhookURL,
		WebhookSecret: req.WebhookSecret,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toMerchantResponse(m), h.logger)
}

type createAPIKeyRequest struct {
	Label string `json:"label"`
}

// HandleCreateAPIKey returns the raw secret. It is never shown again.
func (h *MerchantHandler) HandleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	var req createAPIKeyRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest, h.logger)
			return
		}
	}
	key, secret, err := h.service.CreateAPIKey(r.Context(), caller, req.Label)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	resp := toAPIKeyResponse(key)
	resp.KeySecret = secret
	writeJSON(w, http.StatusCreated, resp, h.logger)
}

func (h *MerchantHandler) HandleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	keys, err := h.service.ListAPIKeys(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(keys, toAPIKeyResponse), h.logger)
}

func (h *MerchantHandler) HandleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if err := h.service.RevokeAPIKey(r.Context(), caller, chi.URLParam(r, "keyID")); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
