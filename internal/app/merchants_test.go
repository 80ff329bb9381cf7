package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"payflow/internal/adapters/storage/memory"
	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

func newMerchantService(store *memory.Store) *merchantService {
	svc := NewMerchantService(store, store, bcrypt.MinCost, testLogger()).(*merchantService)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }
	return svc
}

func register(t *testing.T, svc *merchantService, caller domain.Caller, email string) *domain.Merchant {
	t.Helper()
	m, err := svc.Register(context.Background(), caller, ports.RegisterMerchantRequest{
		BusinessName:  "Acme Stores",
		BusinessEmail: email,
		WebhookURL:    "https://acme.test/hooks",
	})
	require.NoError(t, err)
	return m
}

func TestMerchantService_Register(t *testing.T) {
	store := memory.New()
	svc := newMerchantService(store)
	ctx := context.Background()
	owner := domain.Caller{UserID: uuid.New(), Role: domain.RoleMerchant}

	m := register(t, svc, owner, "Billing@Acme.test")
	assert.True(t, m.IsActive)
	assert.False(t, m.IsVerified)
	assert.Equal(t, "billing@acme.test", m.BusinessEmail)

	_, err := svc.Register(ctx, owner, ports.RegisterMerchantRequest{BusinessName: "Again", BusinessEmail: "x@acme.test"})
	assert.ErrorIs(t, err, domain.ErrMerchantExists)

	someoneElse := domain.Caller{UserID: uuid.New(), Role: domain.RoleMerchant}
	_, err = svc.Register(ctx, someoneElse, ports.RegisterMerchantRequest{BusinessName: "Clone", BusinessEmail: "billing@acme.test"})
	assert.ErrorIs(t, err, domain.ErrMerchantExists)

	_, err = svc.Register(ctx, someoneElse, ports.RegisterMerchantRequest{BusinessName: "", BusinessEmail: "a@b.test"})
	assert.ErrorIs(t, err, domain.ErrMissingField)
	_, err = svc.Register(ctx, someoneElse, ports.RegisterMerchantRequest{BusinessName: "N", BusinessEmail: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrMissingField)
}

func TestMerchantService_UpdateMine(t *testing.T) {
	store := memory.New()
	svc := newMerchantService(store)
	ctx := context.Background()
	owner := domain.Caller{UserID: uuid.New(), Role: domain.RoleMerchant}
	register(t, svc, owner, "a@acme.test")

	secret := "whsec_123"
	empty := ""
	m, err := svc.UpdateMine(ctx, owner, domain.MerchantUpdate{WebhookSecret: &secret, BusinessName: &empty})
	require.NoError(t, err)
	assert.Equal(t, "whsec_123", m.WebhookSecret)
	assert.Equal(t, "Acme Stores", m.BusinessName)

	got, err := svc.GetMine(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "whsec_123", got.WebhookSecret)

	_, err = svc.GetMine(ctx, domain.Caller{UserID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrMerchantNotFound)
}

func TestMerchantService_APIKeyLifecycle(t *testing.T) {
	store := memory.New()
	svc := newMerchantService(store)
	ctx := context.Background()
	owner := domain.Caller{UserID: uuid.New(), Role: domain.RoleMerchant}
	m := register(t, svc, owner, "a@acme.test")

	key, secret, err := svc.CreateAPIKey(ctx, owner, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key.KeyID, "pf_key_"))
	assert.Len(t, key.KeyID, len("pf_key_")+16)
	assert.True(t, strings.HasPrefix(secret, "pf_sec_"))
	assert.Len(t, secret, len("pf_sec_")+32)
	assert.Equal(t, "default", key.Label)
	assert.NotContains(t, key.KeySecretHash, secret)

	authed, err := svc.Authenticate(ctx, key.KeyID, secret)
	require.NoError(t, err)
	assert.Equal(t, m.ID, authed.ID)

	stored, err := store.GetAPIKey(ctx, key.KeyID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)

	_, err = svc.Authenticate(ctx, key.KeyID, secret+"x")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "pf_key_unknown", secret)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	keys, err := svc.ListAPIKeys(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, svc.RevokeAPIKey(ctx, owner, key.KeyID))
	_, err = svc.Authenticate(ctx, key.KeyID, secret)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	keys, err = svc.ListAPIKeys(ctx, owner)
	require.NoError(t, err)
	require.Len(t, keys, 1, "revocation is soft")
	assert.False(t, keys[0].IsActive)
}

func TestMerchantService_RevokeForeignKey(t *testing.T) {
	store := memory.New()
	svc := newMerchantService(store)
	ctx := context.Background()
	alice := domain.Caller{UserID: uuid.New(), Role: domain.RoleMerchant}
	bob := domain.Caller{UserID: uuid.New(), Role: domain.RoleMerchant}
	register(t, svc, alice, "alice@shop.test")
	register(t, svc, bob, "bob@shop.test")

	key, _, err := svc.CreateAPIKey(ctx, alice, "live")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RevokeAPIKey(ctx, bob, key.KeyID), domain.ErrAPIKeyNotFound)
}

func TestMerchantService_AdminControls(t *testing.T) {
	store := memory.New()
	svc := newMerchantService(store)
	ctx := context.Background()
	owner := domain.Caller{UserID: uuid.New(), Role: domain.RoleMerchant}
	admin := domain.Caller{UserID: uuid.New(), Role: domain.RoleAdmin}
	m := register(t, svc, owner, "a@acme.test")
	key, secret, err := svc.CreateAPIKey(ctx, owner, "live")
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, owner, m.ID, false)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.ListMerchants(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	verified, err := svc.SetVerified(ctx, admin, m.ID, true)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)

	suspended, err := svc.SetActive(ctx, admin, m.ID, false)
	require.NoError(t, err)
	assert.False(t, suspended.IsActive)

	_, err = svc.Authenticate(ctx, key.KeyID, secret)
	assert.ErrorIs(t, err, domain.ErrMerchantInactive)

	_, err = svc.SetActive(ctx, admin, m.ID, true)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, key.KeyID, secret)
	assert.NoError(t, err)

	all, err := svc.ListMerchants(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.SetVerified(ctx, admin, uuid.New(), true)
	assert.ErrorIs(t, err, domain.ErrMerchantNotFound)
}
