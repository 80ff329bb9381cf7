package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"payflow/internal/adapters/storage/memory"
	"payflow/internal/antifraud"
	"payflow/internal/app"
	"payflow/internal/cache"
	"payflow/internal/config"
	"payflow/internal/core/domain"
	"payflow/internal/outcome"
	"payflow/internal/reports"
)

var testSecret = []byte("router-test-secret")

type testAPI struct {
	t       *testing.T
	handler http.Handler
	store   *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	store := memory.New()
	c := cache.NewFailover(nil, logger)
	fraud := antifraud.NewRuleEngine(cfg.AntiFraud)

	handler := NewRouter(RouterConfig{
		ServiceName:  "payflow-test",
		Transactions: app.NewTransactionService(store, fraud, outcome.Fixed(true), c, time.Minute, logger),
		Gateway: app.NewGatewayService(app.GatewayDeps{
			Store:    store,
			Fraud:    fraud,
			Outcome:  outcome.Fixed(true),
			Cache:    c,
			Logger:   logger,
			CacheTTL: time.Minute,
			OrderTTL: time.Hour,
		}),
		Merchants:    app.NewMerchantService(store, store, bcrypt.MinCost, logger),
		Reports:      reports.NewService(store, time.UTC),
		HealthCheck:  store.Ping,
		Authenticate: JWTMiddleware(testSecret, logger),
		Logger:       logger,
	})
	return &testAPI{t: t, handler: handler, store: store}
}

func signToken(t *testing.T, sub uuid.UUID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub.String(), "exp": time.Now().Add(time.Hour).Unix()}
	if role != "" {
		claims["role"] = role
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

type reqOpt func(r *http.Request)

func bearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func basic(keyID, secret string) reqOpt {
	return func(r *http.Request) { r.SetBasicAuth(keyID, secret) }
}

func header(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (a *testAPI) do(method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestRouter_Health(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")
}

func TestRouter_TransactionsRequireToken(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(http.MethodGet, "/api/v1/transactions", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(http.MethodGet, "/api/v1/transactions", nil, bearer("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_RejectsOtherSigningMethods(t *testing.T) {
	api := newTestAPI(t)
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{"sub": uuid.NewString()}).SignedString(testSecret)
	require.NoError(t, err)

	rr := api.do(http.MethodGet, "/api/v1/transactions", nil, bearer(s))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_TransactionLifecycle(t *testing.T) {
	api := newTestAPI(t)
	owner := signToken(t, uuid.New(), "")
	stranger := signToken(t, uuid.New(), "")
	admin := signToken(t, uuid.New(), "admin")

	rr := api.do(http.MethodPost, "/api/v1/transactions",
		map[string]any{"amount": 2500, "payment_method": "upi"},
		bearer(owner), header("Idempotency-Key", "txn-1"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[transactionResponse](t, rr)
	assert.Equal(t, "success", created.Status)
	assert.Equal(t, "txn-1", created.IdempotencyKey)

	// Same key replays the stored transaction.
	rr = api.do(http.MethodPost, "/api/v1/transactions",
		map[string]any{"amount": 2500, "payment_method": "upi"},
		bearer(owner), header("Idempotency-Key", "txn-1"))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, created.ID, decode[transactionResponse](t, rr).ID)

	path := "/api/v1/transactions/" + created.ID.String()
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, path, nil, bearer(owner)).Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, path, nil, bearer(stranger)).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/transactions/nope", nil, bearer(owner)).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/transactions/"+uuid.NewString(), nil, bearer(owner)).Code)

	mine := decode[[]transactionResponse](t, api.do(http.MethodGet, "/api/v1/transactions", nil, bearer(owner)))
	assert.Len(t, mine, 1)

	// Refunds are admin-only and happen once.
	refundPath := "/api/v1/admin/transactions/" + created.ID.String() + "/refund"
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPost, refundPath, nil, bearer(owner)).Code)
	rr = api.do(http.MethodPost, refundPath, nil, bearer(admin))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "refunded", decode[transactionResponse](t, rr).Status)
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, refundPath, nil, bearer(admin)).Code)

	rr = api.do(http.MethodGet, "/api/v1/admin/stats", nil, bearer(admin))
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[domain.TransactionStats](t, rr)
	assert.Equal(t, 1, stats.TotalTransactions)
}

func TestRouter_TransactionValidation(t *testing.T) {
	api := newTestAPI(t)
	token := signToken(t, uuid.New(), "")

	tests := []struct {
		name string
		body any
	}{
		{"non-positive amount", map[string]any{"amount": 0, "payment_method": "upi"}},
		{"unsupported method", map[string]any{"amount": 100, "payment_method": "wallet"}},
		{"unknown field", map[string]any{"amount": 100, "payment_method": "upi", "currency": "INR"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := api.do(http.MethodPost, "/api/v1/transactions", tc.body, bearer(token))
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestRouter_AdminRoutesRequireAdmin(t *testing.T) {
	api := newTestAPI(t)
	paths := []string{
		"/api/v1/admin/transactions",
		"/api/v1/admin/stats",
		"/api/v1/admin/merchants",
		"/api/v1/admin/payments/flagged",
		"/api/v1/admin/reports/revenue",
		"/api/v1/admin/reports/gst",
	}
	user := signToken(t, uuid.New(), "merchant")
	admin := signToken(t, uuid.New(), "admin")

	for _, p := range paths {
		assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, p, nil, bearer(user)).Code, p)
		assert.Equal(t, http.StatusOK, api.do(http.MethodGet, p, nil, bearer(admin)).Code, p)
	}
}

// onboard registers a merchant for a fresh user and returns its API credentials.
func onboard(t *testing.T, api *testAPI) (userToken, keyID, secret string) {
	t.Helper()
	userID := uuid.New()
	userToken = signToken(t, userID, "merchant")
	email := "Accounts+" + userID.String()[:8] + "@ChaiPoint.test"

	rr := api.do(http.MethodPost, "/api/v1/merchants", map[string]any{
		"business_name":  "Chai Point",
		"business_email": email,
	}, bearer(userToken))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, strings.ToLower(email), decode[merchantResponse](t, rr).BusinessEmail)

	rr = api.do(http.MethodPost, "/api/v1/merchants/me/keys", map[string]any{"label": "prod"}, bearer(userToken))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	key := decode[apiKeyResponse](t, rr)
	require.NotEmpty(t, key.KeySecret)
	return userToken, key.KeyID, key.KeySecret
}

func TestRouter_MerchantSelfService(t *testing.T) {
	api := newTestAPI(t)
	token, keyID, _ := onboard(t, api)

	rr := api.do(http.MethodPatch, "/api/v1/merchants/me", map[string]any{"webhook_url": "https://hooks.test/payflow"}, bearer(token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "https://hooks.test/payflow", decode[merchantResponse](t, rr).WebhookURL)

	keys := decode[[]apiKeyResponse](t, api.do(http.MethodGet, "/api/v1/merchants/me/keys", nil, bearer(token)))
	require.Len(t, keys, 1)
	assert.Empty(t, keys[0].KeySecret)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/api/v1/merchants/me/keys/"+keyID, nil, bearer(token)).Code)

	// A second registration for the same user conflicts.
	rr = api.do(http.MethodPost, "/api/v1/merchants", map[string]any{
		"business_name":  "Again",
		"business_email": "again@chaipoint.test",
	}, bearer(token))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRouter_GatewayRequiresAPIKey(t *testing.T) {
	api := newTestAPI(t)
	_, keyID, _ := onboard(t, api)

	rr := api.do(http.MethodGet, "/v1/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/v1/orders", nil, basic(keyID, "wrong")).Code)
}

func TestRouter_CheckoutCaptureAndRefund(t *testing.T) {
	api := newTestAPI(t)
	_, keyID, secret := onboard(t, api)
	auth := basic(keyID, secret)

	rr := api.do(http.MethodPost, "/v1/orders", map[string]any{"amount": 50000, "currency": "INR", "receipt": "rcpt-9"}, auth)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	order := decode[orderResponse](t, rr)
	assert.Equal(t, "created", order.Status)

	checkout := map[string]any{"method": "card", "card_number": "4111 1111 1111 1111", "card_cvv": "123", "email": "buyer@example.com"}
	rr = api.do(http.MethodPost, "/pay/"+order.OrderRef, checkout, header("Idempotency-Key", "chk-1"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	paid := decode[checkoutResponse](t, rr)
	assert.Equal(t, "captured", paid.Payment.Status)
	assert.Equal(t, "paid", paid.Order.Status)
	assert.False(t, paid.Replayed)

	rr = api.do(http.MethodPost, "/pay/"+order.OrderRef, checkout, header("Idempotency-Key", "chk-1"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	replay := decode[checkoutResponse](t, rr)
	assert.True(t, replay.Replayed)
	assert.Equal(t, paid.Payment.PaymentRef, replay.Payment.PaymentRef)

	ref := paid.Payment.PaymentRef
	rr = api.do(http.MethodPost, "/v1/payments/"+ref+"/refund", map[string]any{"amount": 20000, "reason": "damaged"}, auth)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	refund := decode[refundPaymentResponse](t, rr)
	assert.Equal(t, int64(20000), refund.Refund.Amount)
	assert.Equal(t, int64(20000), refund.Payment.AmountRefunded)
	assert.Equal(t, "partial", refund.Payment.RefundStatus)

	rr = api.do(http.MethodPost, "/v1/payments/"+ref+"/refund", map[string]any{"amount": 40000}, auth)
	assert.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
	rr = api.do(http.MethodPost, "/v1/payments/"+ref+"/refund", map[string]any{"amount": -1}, auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	refunds := decode[[]refundResponse](t, api.do(http.MethodGet, "/v1/payments/"+ref+"/refunds", nil, auth))
	assert.Len(t, refunds, 1)

	payments := decode[[]paymentResponse](t, api.do(http.MethodGet, "/v1/orders/"+order.OrderRef+"/payments", nil, auth))
	assert.Len(t, payments, 1)

	// Paying a paid order again is a conflict.
	rr = api.do(http.MethodPost, "/pay/"+order.OrderRef, checkout)
	assert.Equal(t, http.StatusConflict, rr.Code)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/v1/payments/pay_missing", nil, auth).Code)
}

func TestRouter_GatewayIsolatesMerchants(t *testing.T) {
	api := newTestAPI(t)
	_, keyA, secretA := onboard(t, api)
	_, keyB, secretB := onboard(t, api)

	rr := api.do(http.MethodPost, "/v1/orders", map[string]any{"amount": 1000}, basic(keyA, secretA))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	order := decode[orderResponse](t, rr)

	rr = api.do(http.MethodGet, "/v1/orders/"+order.OrderRef, nil, basic(keyB, secretB))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCallerFromClaims(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		claims map[string]any
		want   domain.Role
		err    bool
	}{
		{"no role", map[string]any{"sub": id.String()}, domain.RoleUser, false},
		{"role claim", map[string]any{"sub": id.String(), "role": "Merchant"}, domain.RoleMerchant, false},
		{"roles array", map[string]any{"sub": id.String(), "roles": []any{"merchant", "admin"}}, domain.RoleAdmin, false},
		{"admin wins", map[string]any{"sub": id.String(), "role": "admin", "roles": []string{"merchant"}}, domain.RoleAdmin, false},
		{"missing sub", map[string]any{"role": "admin"}, "", true},
		{"non-uuid sub", map[string]any{"sub": "alice"}, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := callerFromClaims(tc.claims)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, c.UserID)
			assert.Equal(t, tc.want, c.Role)
		})
	}
}

func TestRealmRoles(t *testing.T) {
	id := uuid.New()
	claims := map[string]any{
		"sub":          id.String(),
		"realm_access": map[string]any{"roles": []any{"offline_access", "admin"}},
	}
	realmRoles(claims)

	c, err := callerFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, c.Role)

	plain := map[string]any{"sub": id.String()}
	realmRoles(plain)
	assert.NotContains(t, plain, "roles")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrIdempotencyKeyReused, http.StatusBadRequest},
		{fmt.Errorf("create: %w", domain.ErrOrderNotFound), http.StatusNotFound},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrMerchantExists, http.StatusConflict},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrMerchantInactive, http.StatusForbidden},
		{fmt.Errorf("%w: dial", domain.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestWriteServiceError_HidesInternalErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(rr, errors.New("pq: password authentication failed"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")
}
