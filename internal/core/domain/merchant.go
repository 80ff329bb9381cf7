package domain

import (
	"time"

	"github.com/google/uuid"
)

// Merchant is a business that accepts payments through the gateway.
type Merchant struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	BusinessName  string
	BusinessEmail string
	Website       string
	WebhookURL    string
	WebhookSecret string
	IsActive      bool
	IsVerified    bool
	CreatedAt     time.Time
}

// APIKey is a key_id / key_secret pair. Only the bcrypt hash of the secret is kept.
type APIKey struct {
	ID            uuid.UUID
	MerchantID    uuid.UUID
	KeyID         string
	KeySecretHash string
	Label         string
	IsActive      bool
	CreatedAt     time.Time
	LastUsedAt    *time.Time
}

// MerchantUpdate carries the self-service profile changes. Nil fields are left untouched.
type MerchantUpdate struct {
	BusinessName  *string
	Website       *string
	WebhookURL    *string
	WebhookSecret *string
}

func (m *Merchant) Apply(u MerchantUpdate) {
	if u.BusinessName != nil && *u.BusinessName != "" {
		m.BusinessName = *u.BusinessName
	}
	if u.Website != nil {
		m.Website = *u.Website
	}
	if u.WebhookURL != nil {
		m.WebhookURL = *u.WebhookURL
	}
	if u.WebhookSecret != nil {
		m.WebhookSecret = *u.WebhookSecret
	}
}
