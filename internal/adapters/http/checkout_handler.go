package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

// CheckoutHandler accepts payment submissions from the hosted checkout. It is public: the
// order reference is the capability.
type CheckoutHandler struct {
	service ports.GatewayService
	logger  *slog.Logger
}

func NewCheckoutHandler(service ports.GatewayService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: service, logger: logger}
}

type checkoutRequest struct {
	Method         string `json:"method"`
	VPA            string `json:"vpa"`
	CardNumber     string `json:"card_number"`
	CardExpiry     string `json:"card_expiry"`
	CardCVV        string `json:"card_cvv"`
	CardName       string `json:"card_name"`
	Email          string `json:"email"`
	Contact        string `json:"contact"`
	CaptureMode    string `json:"capture_mode"`
	IdempotencyKey string `json:"idempotency_key"`
}

type checkoutResponse struct {
	Payment  paymentResponse `json:"payment"`
	Order    orderResponse   `json:"order"`
	Replayed bool            `json:"replayed"`
}

func (h *CheckoutHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest, h.logger)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	res, err := h.service.SubmitCheckout(r.Context(), ports.CheckoutRequest{
		OrderRef:       chi.URLParam(r, "orderRef"),
		Method:         req.Method,
		VPA:            req.VPA,
		CardNumber:     req.CardNumber,
		CardExpiry:     req.CardExpiry,
		CardCVV:        req.CardCVV,
		CardName:       req.CardName,
		Email:          req.Email,
		Contact:        req.Contact,
		CaptureMode:    domain.CaptureMode(req.CaptureMode),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, checkoutResponse{
		Payment:  toPaymentResponse(res.Payment),
		Order:    toOrderResponse(res.Order),
		Replayed: res.Replayed,
	}, h.logger)
}
