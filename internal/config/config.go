package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AntiFraudConfig stores parameters for the rules engine.
type AntiFraudConfig struct {
	AmountThreshold           int64 `yaml:"amount_threshold"`
	FrequencyThreshold        int   `yaml:"frequency_threshold"`
	FrequencyWindowSeconds    int   `yaml:"frequency_window_seconds"`
	MerchantVelocityThreshold int   `yaml:"merchant_velocity_threshold"`
}

// Window is the trailing evaluation window.
func (c AntiFraudConfig) Window() time.Duration {
	return time.Duration(c.FrequencyWindowSeconds) * time.Second
}

// GatewayConfig tunes the simulated acquirer and order lifecycle.
type GatewayConfig struct {
	// Success rates are pointers so an explicit 0 (always decline) survives defaulting.
	TransactionSuccessRate *float64 `yaml:"transaction_success_rate"`
	PaymentSuccessRate     *float64 `yaml:"payment_success_rate"`
	OrderExpiryMinutes     int      `yaml:"order_expiry_minutes"`
}

// TransactionRate is the approval probability for the legacy transaction flow.
func (c GatewayConfig) TransactionRate() float64 {
	return deref(c.TransactionSuccessRate)
}

// PaymentRate is the approval probability for gateway checkouts.
func (c GatewayConfig) PaymentRate() float64 {
	return deref(c.PaymentSuccessRate)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func (c GatewayConfig) OrderTTL() time.Duration {
	return time.Duration(c.OrderExpiryMinutes) * time.Minute
}

type WebhookConfig struct {
	DefaultSecret     string `yaml:"default_secret"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MaxResponseLength int    `yaml:"max_response_length"`
}

func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type RateLimitConfig struct {
	Enabled       bool `yaml:"enabled"`
	Limit         int  `yaml:"limit"`
	WindowSeconds int  `yaml:"window_seconds"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type ReportsConfig struct {
	// Timezone is an IANA name used for bucket boundaries. Empty means UTC.
	Timezone string `yaml:"timezone"`
}

// Location resolves Timezone, falling back to UTC.
func (c ReportsConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Config struct {
	App struct {
		Env  string `yaml:"env"`
		Name string `yaml:"name"`
	} `yaml:"app"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Kafka struct {
		BootstrapServers string `yaml:"bootstrap_servers"`
		Topic            string `yaml:"topic"`
		DLQTopic         string `yaml:"dlq_topic"`
		ConsumerGroup    string `yaml:"consumer_group"`
	} `yaml:"kafka"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Jaeger     struct {
		Port     string `yaml:"port"`
		PortGrpc string `yaml:"port_grpc"`
	} `yaml:"jaeger"`
	OIDC struct {
		URL      string `yaml:"url"`
		ClientID string `yaml:"client_id"`
	} `yaml:"oidc"`
	OPA struct {
		URL string `yaml:"url"`
	} `yaml:"opa"`
	JWT struct {
		Secret string `yaml:"jwt_secret"`
	} `yaml:"jwt"`
	AntiFraud AntiFraudConfig `yaml:"anti_fraud"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Reports   ReportsConfig   `yaml:"reports"`
}

// Path returns the config file location, honouring PAYFLOW_CONFIG.
func Path() string {
	if p := os.Getenv("PAYFLOW_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func Load(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(file)
}

// Parse substitutes environment variables into the raw YAML, decodes it and fills defaults.
func Parse(raw []byte) (*Config, error) {
	config := &Config{}

	expandedFile := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expandedFile), config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns a configuration with every tunable at its default value.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.App.Name == "" {
		c.App.Name = "payflow"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "payflow.payments.events"
	}
	if c.Kafka.DLQTopic == "" {
		c.Kafka.DLQTopic = c.Kafka.Topic + ".dlq"
	}
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = "payflow-fraud-reporter"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "default"
	}

	if c.AntiFraud.AmountThreshold == 0 {
		c.AntiFraud.AmountThreshold = 5_000_000
	}
	if c.AntiFraud.FrequencyThreshold == 0 {
		c.AntiFraud.FrequencyThreshold = 5
	}
	if c.AntiFraud.FrequencyWindowSeconds == 0 {
		c.AntiFraud.FrequencyWindowSeconds = 60
	}
	if c.AntiFraud.MerchantVelocityThreshold == 0 {
		c.AntiFraud.MerchantVelocityThreshold = 50
	}

	if c.Gateway.TransactionSuccessRate == nil {
		c.Gateway.TransactionSuccessRate = ptr(0.95)
	}
	if c.Gateway.PaymentSuccessRate == nil {
		c.Gateway.PaymentSuccessRate = ptr(0.96)
	}
	if c.Gateway.OrderExpiryMinutes == 0 {
		c.Gateway.OrderExpiryMinutes = 30
	}

	if c.Webhook.DefaultSecret == "" {
		c.Webhook.DefaultSecret = "payflow_default_secret"
	}
	if c.Webhook.TimeoutSeconds == 0 {
		c.Webhook.TimeoutSeconds = 5
	}
	if c.Webhook.MaxResponseLength == 0 {
		c.Webhook.MaxResponseLength = 500
	}

	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 300
	}

	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
}

func ptr[T any](v T) *T {
	return &v
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.jwt_secret is required"))
	}
	for name, p := range map[string]float64{
		"gateway.transaction_success_rate": c.Gateway.TransactionRate(),
		"gateway.payment_success_rate":     c.Gateway.PaymentRate(),
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", name, p))
		}
	}
	if c.AntiFraud.AmountThreshold < 0 {
		errs = append(errs, errors.New("anti_fraud.amount_threshold must not be negative"))
	}
	return errors.Join(errs...)
}
