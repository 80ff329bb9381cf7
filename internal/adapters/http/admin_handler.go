package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
	"payflow/internal/reports"
)

// AdminHandler serves the admin-only merchant controls, fraud review and reports.
type AdminHandler struct {
	merchants ports.MerchantService
	gateway   ports.GatewayService
	reports   *reports.Service
	logger    *slog.Logger
}

func NewAdminHandler(merchants ports.MerchantService, gateway ports.GatewayService, reportsSvc *reports.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{merchants: merchants, gateway: gateway, reports: reportsSvc, logger: logger}
}

func (h *AdminHandler) HandleListMerchants(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	ms, err := h.merchants.ListMerchants(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(ms, toMerchantResponse), h.logger)
}

// merchantAction builds the verify/suspend/reactivate handlers.
func (h *AdminHandler) merchantAction(apply func(r *http.Request, caller domain.Caller, id uuid.UUID) (*domain.Merchant, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := CallerFromContext(r.Context())
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSONError(w, "invalid merchant id", http.StatusBadRequest, h.logger)
			return
		}
		m, err := apply(r, caller, id)
		if err != nil {
			writeServiceError(w, err, h.logger)
			return
		}
		writeJSON(w, http.StatusOK, toMerchantResponse(m), h.logger)
	}
}

func (h *AdminHandler) HandleVerifyMerchant() http.HandlerFunc {
	return h.merchantAction(func(r *http.Request, c domain.Caller, id uuid.UUID) (*domain.Merchant, error) {
		return h.merchants.SetVerified(r.Context(), c, id, true)
	})
}

func (h *AdminHandler) HandleSuspendMerchant() http.HandlerFunc {
	return h.merchantAction(func(r *http.Request, c domain.Caller, id uuid.UUID) (*domain.Merchant, error) {
		return h.merchants.SetActive(r.Context(), c, id, false)
	})
}

func (h *AdminHandler) HandleReactivateMerchant() http.HandlerFunc {
	return h.merchantAction(func(r *http.Request, c domain.Caller, id uuid.UUID) (*domain.Merchant, error) {
		return h.merchants.SetActive(r.Context(), c, id, true)
	})
}

func (h *AdminHandler) HandleListFlaggedPayments(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	payments, err := h.gateway.ListFlaggedPayments(r.Context(), caller, queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(payments, toPaymentResponse), h.logger)
}

func (h *AdminHandler) HandleRevenueReport(w http.ResponseWriter, r *http.Request) {
	days, err := lookbackDays(r)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	report, err := h.reports.Revenue(r.Context(), r.URL.Query().Get("period"), days, nil)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, report, h.logger)
}

func (h *AdminHandler) HandleGSTReport(w http.ResponseWriter, r *http.Request) {
	fy, err := financialYear(r)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	report, err := h.reports.GST(r.Context(), fy, nil)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, report, h.logger)
}
