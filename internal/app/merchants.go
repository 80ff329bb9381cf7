package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

type merchantService struct {
	merchants ports.MerchantRepository
	keys      ports.APIKeyRepository
	logger    *slog.Logger
	hashCost  int
	now       func() time.Time
}

// NewMerchantService wires merchant onboarding and API-key management. hashCost is the bcrypt
// cost for key secrets; zero means bcrypt.DefaultCost.
func NewMerchantService(merchants ports.MerchantRepository, keys ports.APIKeyRepository, hashCost int, logger *slog.Logger) ports.MerchantService {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &merchantService{
		merchants: merchants,
		keys:      keys,
		logger:    logger,
		hashCost:  hashCost,
		now:       time.Now,
	}
}

func (s *merchantService) Register(ctx context.Context, caller domain.Caller, req ports.RegisterMerchantRequest) (*domain.Merchant, error) {
	name := strings.TrimSpace(req.BusinessName)
	email := strings.TrimSpace(req.BusinessEmail)
	if name == "" {
		return nil, fmt.Errorf("%w: business_name", domain.ErrMissingField)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: business_email", domain.ErrMissingField)
	}

	m := &domain.Merchant{
		ID:            uuid.New(),
		UserID:        caller.UserID,
		BusinessName:  name,
		BusinessEmail: strings.ToLower(email),
		Website:       req.Website,
		WebhookURL:    req.WebhookURL,
		IsActive:      true,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.merchants.CreateMerchant(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("merchant registered", "merchant_id", m.ID, "user_id", caller.UserID)
	return m, nil
}

func (s *merchantService) GetMine(ctx context.Context, caller domain.Caller) (*domain.Merchant, error) {
	return s.merchants.GetMerchantByUser(ctx, caller.UserID)
}

func (s *merchantService) UpdateMine(ctx context.Context, caller domain.Caller, u domain.MerchantUpdate) (*domain.Merchant, error) {
	m, err := s.merchants.GetMerchantByUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	m.Apply(u)
	if err := s.merchants.UpdateMerchant(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateAPIKey issues a key pair. The raw secret is returned once and only its hash is stored.
func (s *merchantService) CreateAPIKey(ctx context.Context, caller domain.Caller, label string) (*domain.APIKey, string, error) {
	m, err := s.merchants.GetMerchantByUser(ctx, caller.UserID)
	if err != nil {
		return nil, "", err
	}

	secret := token(keySecretPrefix, 16)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.hashCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash api key secret: %w", err)
	}
	if label == "" {
		label = "default"
	}
	k := &domain.APIKey{
		ID:            uuid.New(),
		MerchantID:    m.ID,
		KeyID:         token(keyIDPrefix, 8),
		KeySecretHash: string(hash),
		Label:         label,
		IsActive:      true,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.keys.CreateAPIKey(ctx, k); err != nil {
		return nil, "", err
	}
	s.logger.Info("api key created", "merchant_id", m.ID, "key_id", k.KeyID)
	return k, secret, nil
}

func (s *merchantService) ListAPIKeys(ctx context.Context, caller domain.Caller) ([]domain.APIKey, error) {
	m, err := s.merchants.GetMerchantByUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	return s.keys.ListAPIKeys(ctx, m.ID)
}

// RevokeAPIKey is a soft delete.
func (s *merchantService) RevokeAPIKey(ctx context.Context, caller domain.Caller, keyID string) error {
	m, err := s.merchants.GetMerchantByUser(ctx, caller.UserID)
	if err != nil {
		return err
	}
	k, err := s.keys.GetAPIKey(ctx, keyID)
	if err != nil {
		return err
	}
	if k.MerchantID != m.ID {
		return domain.ErrAPIKeyNotFound
	}
	k.IsActive = false
	if err := s.keys.UpdateAPIKey(ctx, k); err != nil {
		return err
	}
	s.logger.Info("api key revoked", "merchant_id", m.ID, "key_id", keyID)
	return nil
}

// Authenticate verifies a key_id / key_secret pair and returns the owning merchant.
func (s *merchantService) Authenticate(ctx context.Context, keyID, secret string) (*domain.Merchant, error) {
	k, err := s.keys.GetAPIKey(ctx, keyID)
	if errors.Is(err, domain.ErrAPIKeyNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !k.IsActive {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(k.KeySecretHash), []byte(secret)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	m, err := s.merchants.GetMerchant(ctx, k.MerchantID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, domain.ErrMerchantInactive
	}

	now := s.now().UTC()
	k.LastUsedAt = &now
	if err := s.keys.UpdateAPIKey(ctx, k); err != nil {
		s.logger.Warn("failed to touch api key", "key_id", keyID, "error", err)
	}
	return m, nil
}

func (s *merchantService) ListMerchants(ctx context.Context, caller domain.Caller) ([]domain.Merchant, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.merchants.ListMerchants(ctx)
}

func (s *merchantService) SetVerified(ctx context.Context, caller domain.Caller, id uuid.UUID, verified bool) (*domain.Merchant, error) {
	return s.adminUpdate(ctx, caller, id, func(m *domain.Merchant) { m.IsVerified = verified })
}

// SetActive suspends (false) or reactivates (true) a merchant.
func (s *merchantService) SetActive(ctx context.Context, caller domain.Caller, id uuid.UUID, active bool) (*domain.Merchant, error) {
	return s.adminUpdate(ctx, caller, id, func(m *domain.Merchant) { m.IsActive = active })
}

func (s *merchantService) adminUpdate(ctx context.Context, caller domain.Caller, id uuid.UUID, fn func(m *domain.Merchant)) (*domain.Merchant, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	m, err := s.merchants.GetMerchant(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(m)
	if err := s.merchants.UpdateMerchant(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("merchant updated by admin", "merchant_id", id, "is_active", m.IsActive, "is_verified", m.IsVerified, "admin_id", caller.UserID)
	return m, nil
}
