package http

import (
	"time"

	"github.com/google/uuid"

	"payflow/internal/core/domain"
)

// Amounts are integer minor units throughout the API.

type transactionResponse struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Amount         int64     `json:"amount"`
	PaymentMethod  string    `json:"payment_method"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key"`
	IsFlagged      bool      `json:"is_flagged"`
	FlagReason     string    `json:"flag_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toTransactionResponse(tx *domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:             tx.ID,
		UserID:         tx.UserID,
		Amount:         tx.Amount,
		PaymentMethod:  string(tx.Method),
		Status:         string(tx.Status),
		IdempotencyKey: tx.IdempotencyKey,
		IsFlagged:      tx.IsFlagged,
		FlagReason:     tx.FlagReason,
		CreatedAt:      tx.CreatedAt,
		UpdatedAt:      tx.UpdatedAt,
	}
}

type orderResponse struct {
	OrderRef  string     `json:"order_ref"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	Receipt   string     `json:"receipt,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Attempts  int        `json:"attempts"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		OrderRef:  o.OrderRef,
		Amount:    o.Amount,
		Currency:  o.Currency,
		Status:    string(o.Status),
		Receipt:   o.Receipt,
		Notes:     o.Notes,
		Attempts:  o.Attempts,
		ExpiresAt: o.ExpiresAt,
		CreatedAt: o.CreatedAt,
	}
}

type paymentResponse struct {
	PaymentRef     string     `json:"payment_ref"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Method         string     `json:"method"`
	Status         string     `json:"status"`
	Email          string     `json:"email,omitempty"`
	Contact        string     `json:"contact,omitempty"`
	VPA            string     `json:"vpa,omitempty"`
	CardMasked     string     `json:"card_masked,omitempty"`
	CardNetwork    string     `json:"card_network,omitempty"`
	AmountRefunded int64      `json:"amount_refunded"`
	RefundStatus   string     `json:"refund_status"`
	IsFlagged      bool       `json:"is_flagged"`
	FlagReason     string     `json:"flag_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CapturedAt     *time.Time `json:"captured_at,omitempty"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		PaymentRef:     p.PaymentRef,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Method:         string(p.Method),
		Status:         string(p.Status),
		Email:          p.Email,
		Contact:        p.Contact,
		VPA:            p.VPA,
		CardMasked:     p.CardMasked,
		CardNetwork:    p.CardNetwork,
		AmountRefunded: p.AmountRefunded,
		RefundStatus:   string(p.RefundStatus),
		IsFlagged:      p.IsFlagged,
		FlagReason:     p.FlagReason,
		CreatedAt:      p.CreatedAt,
		CapturedAt:     p.CapturedAt,
	}
}

type refundResponse struct {
	RefundRef   string     `json:"refund_ref"`
	Amount      int64      `json:"amount"`
	Reason      string     `json:"reason,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func toRefundResponse(r *domain.Refund) refundResponse {
	return refundResponse{
		RefundRef:   r.RefundRef,
		Amount:      r.Amount,
		Reason:      r.Reason,
		Notes:       r.Notes,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}

type merchantResponse struct {
	ID            uuid.UUID `json:"id"`
	BusinessName  string    `json:"business_name"`
	BusinessEmail string    `json:"business_email"`
	Website       string    `json:"website,omitempty"`
	WebhookURL    string    `json:"webhook_url,omitempty"`
	HasSecret     bool      `json:"webhook_secret_set"`
	IsActive      bool      `json:"is_active"`
	IsVerified    bool      `json:"is_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func toMerchantResponse(m *domain.Merchant) merchantResponse {
	return merchantResponse{
		ID:            m.ID,
		BusinessName:  m.BusinessName,
		BusinessEmail: m.BusinessEmail,
		Website:       m.Website,
		WebhookURL:    m.WebhookURL,
		HasSecret:     m.WebhookSecret != "",
		IsActive:      m.IsActive,
		IsVerified:    m.IsVerified,
		CreatedAt:     m.CreatedAt,
	}
}

type apiKeyResponse struct {
	KeyID      string     `json:"key_id"`
	KeySecret  string     `json:"key_secret,omitempty"`
	Label      string     `json:"label"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func toAPIKeyResponse(k *domain.APIKey) apiKeyResponse {
	return apiKeyResponse{
		KeyID:      k.KeyID,
		Label:      k.Label,
		IsActive:   k.IsActive,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
	}
}

type webhookLogResponse struct {
	ID             uuid.UUID `json:"id"`
	EventType      string    `json:"event_type"`
	TargetURL      string    `json:"target_url"`
	ResponseStatus *int      `json:"response_status"`
	ResponseBody   string    `json:"response_body,omitempty"`
	Success        bool      `json:"success"`
	CreatedAt      time.Time `json:"created_at"`
}

func toWebhookLogResponse(l *domain.WebhookLog) webhookLogResponse {
	return webhookLogResponse{
		ID:             l.ID,
		EventType:      string(l.EventType),
		TargetURL:      l.TargetURL,
		ResponseStatus: l.ResponseStatus,
		ResponseBody:   l.ResponseBody,
		Success:        l.Success,
		CreatedAt:      l.CreatedAt,
	}
}

// mapSlice converts a slice of entities into response DTOs.
func mapSlice[T, R any](in []T, fn func(*T) R) []R {
	out := make([]R, 0, len(in))
	for i := range in {
		out = append(out, fn(&in[i]))
	}
	return out
}
