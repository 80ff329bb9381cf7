package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
	"payflow/internal/reports"
)

// GatewayHandler serves the merchant API. Every route runs behind APIKeyMiddleware.
type GatewayHandler struct {
	service ports.GatewayService
	reports *reports.Service
	logger  *slog.Logger
}

func NewGatewayHandler(service ports.GatewayService, reportsSvc *reports.Service, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{service: service, reports: reportsSvc, logger: logger}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Notes    string `json:"notes"`
}

func (h *GatewayHandler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest, h.logger)
		return
	}
	o, err := h.service.CreateOrder(r.Context(), mustMerchant(r), ports.CreateOrderRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o), h.logger)
}

func (h *GatewayHandler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), mustMerchant(r), chi.URLParam(r, "orderRef"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o), h.logger)
}

func (h *GatewayHandler) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), mustMerchant(r), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(orders, toOrderResponse), h.logger)
}

func (h *GatewayHandler) HandleListOrderPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListOrderPayments(r.Context(), mustMerchant(r), chi.URLParam(r, "orderRef"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(payments, toPaymentResponse), h.logger)
}

func (h *GatewayHandler) HandleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPayment(r.Context(), mustMerchant(r), chi.URLParam(r, "paymentRef"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p), h.logger)
}

func (h *GatewayHandler) HandleCapturePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.CapturePayment(r.Context(), mustMerchant(r), chi.URLParam(r, "paymentRef"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p), h.logger)
}

type refundPaymentRequest struct {
	// Nil refunds the remaining balance.
	Amount *int64 `json:"amount"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

type refundPaymentResponse struct {
	Refund  refundResponse  `json:"refund"`
	Payment paymentResponse `json:"payment"`
}

func (h *GatewayHandler) HandleRefundPayment(w http.ResponseWriter, r *http.Request) {
	var req refundPaymentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest, h.logger)
			return
		}
	}
	var amount int64
	if req.Amount != nil {
		if *req.Amount <= 0 {
			writeServiceError(w, domain.ErrInvalidRefundAmount, h.logger)
			return
		}
		amount = *req.Amount
	}

	refund, p, err := h.service.RefundPayment(r.Context(), mustMerchant(r), chi.URLParam(r, "paymentRef"), ports.RefundRequest{
		Amount: amount,
		Reason: req.Reason,
		Notes:  req.Notes,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, refundPaymentResponse{
		Refund:  toRefundResponse(refund),
		Payment: toPaymentResponse(p),
	}, h.logger)
}

func (h *GatewayHandler) HandleListRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.service.ListRefunds(r.Context(), mustMerchant(r), chi.URLParam(r, "paymentRef"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(refunds, toRefundResponse), h.logger)
}

func (h *GatewayHandler) HandleListWebhookLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.ListWebhookLogs(r.Context(), mustMerchant(r), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(logs, toWebhookLogResponse), h.logger)
}

// HandleRevenueReport is the merchant-scoped revenue report.
func (h *GatewayHandler) HandleRevenueReport(w http.ResponseWriter, r *http.Request) {
	days, err := lookbackDays(r)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	m := mustMerchant(r)
	report, err := h.reports.Revenue(r.Context(), r.URL.Query().Get("period"), days, &m.ID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, report, h.logger)
}

// lookbackDays reads the optional days parameter. Absent means the default lookback.
func lookbackDays(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days == 0 {
		return 0, domain.ErrInvalidLookback
	}
	return days, nil
}

// financialYear reads the optional fy parameter. Absent means the current financial year.
func financialYear(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("fy")
	if raw == "" {
		return 0, nil
	}
	fy, err := strconv.Atoi(raw)
	if err != nil || fy == 0 {
		return 0, domain.ErrInvalidFinancialYear
	}
	return fy, nil
}
