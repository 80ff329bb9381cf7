package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("PAYFLOW_TEST_JWT", "s3cret")
	raw := []byte(`
app:
  env: production
jwt:
  jwt_secret: ${PAYFLOW_TEST_JWT}
anti_fraud:
  amount_threshold: 1000
`)

	cfg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, int64(1000), cfg.AntiFraud.AmountThreshold)
	assert.Equal(t, 60*time.Second, cfg.AntiFraud.Window())
	assert.Equal(t, 5, cfg.AntiFraud.FrequencyThreshold)
	assert.Equal(t, 50, cfg.AntiFraud.MerchantVelocityThreshold)
	assert.Equal(t, 0.95, cfg.Gateway.TransactionRate())
	assert.Equal(t, 0.96, cfg.Gateway.PaymentRate())
	assert.Equal(t, 30*time.Minute, cfg.Gateway.OrderTTL())
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout())
	assert.Equal(t, 500, cfg.Webhook.MaxResponseLength)
	assert.Equal(t, "payflow_default_secret", cfg.Webhook.DefaultSecret)
	assert.Equal(t, "payflow.payments.events.dlq", cfg.Kafka.DLQTopic)
}

func TestParse_Validation(t *testing.T) {
	_, err := Parse([]byte("app:\n  env: dev\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")

	_, err = Parse([]byte("jwt:\n  jwt_secret: x\ngateway:\n  payment_success_rate: 1.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment_success_rate")
}

func TestParse_ZeroSuccessRateIsKept(t *testing.T) {
	cfg, err := Parse([]byte("jwt:\n  jwt_secret: x\ngateway:\n  payment_success_rate: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Gateway.PaymentRate())
	assert.Equal(t, 0.95, cfg.Gateway.TransactionRate())
}

func TestLoad_ShippedConfigReportsInUTC(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load("../../configs/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, time.UTC, cfg.Reports.Location())
	assert.Equal(t, 0.96, cfg.Gateway.PaymentRate())
}

func TestReportsConfig_Location(t *testing.T) {
	assert.Equal(t, time.UTC, ReportsConfig{}.Location())
	assert.Equal(t, time.UTC, ReportsConfig{Timezone: "UTC"}.Location())
	assert.Equal(t, time.UTC, ReportsConfig{Timezone: "Not/AZone"}.Location())
}
