package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

// TransactionHandler serves the legacy standalone transaction API.
type TransactionHandler struct {
	service ports.TransactionService
	logger  *slog.Logger
}

func NewTransactionHandler(service ports.TransactionService, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		service: service,
		logger:  logger,
	}
}

type createTransactionRequest struct {
	Amount         int64  `json:"amount"`
	PaymentMethod  string `json:"payment_method"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *TransactionHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest, h.logger)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	tx, err := h.service.CreateTransaction(r.Context(), caller, ports.CreateTransactionRequest{
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx), h.logger)
}

func (h *TransactionHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, "invalid transaction id", http.StatusBadRequest, h.logger)
		return
	}

	tx, err := h.service.GetTransaction(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx), h.logger)
}

func (h *TransactionHandler) HandleListMyTransactions(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	txs, err := h.service.ListMyTransactions(r.Context(), caller, queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(txs, toTransactionResponse), h.logger)
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	flagged, _ := strconv.ParseBool(r.URL.Query().Get("flagged"))
	txs, err := h.service.ListTransactions(r.Context(), caller, ports.TransactionFilter{
		FlaggedOnly: flagged,
		Limit:       queryInt(r, "limit"),
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(txs, toTransactionResponse), h.logger)
}

func (h *TransactionHandler) HandleRefundTransaction(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, "invalid transaction id", http.StatusBadRequest, h.logger)
		return
	}

	tx, err := h.service.RefundTransaction(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx), h.logger)
}

func (h *TransactionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	stats, err := h.service.Stats(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, stats, h.logger)
}

// queryInt returns the integer query parameter, or 0 when absent or malformed.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func mustMerchant(r *http.Request) *domain.Merchant {
	m, _ := MerchantFromContext(r.Context())
	return m
}
