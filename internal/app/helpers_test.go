package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"payflow/internal/adapters/storage/memory"
	"payflow/internal/antifraud"
	"payflow/internal/cache"
	"payflow/internal/config"
	"payflow/internal/core/domain"
	"payflow/internal/core/ports"
)

// Mock - implementation of a broker
type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) PublishEvent(ctx context.Context, e domain.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	raw, _ := args.Get(0).([]byte)
	return raw, args.Bool(1), args.Error(2)
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *MockCache) Invalidate(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockCache) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// recordingNotifier captures events synchronously instead of delivering them.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) Types() []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clock is a settable time source shared by a service under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type gatewayFixture struct {
	store    *memory.Store
	cache    ports.Cache
	broker   *MockBroker
	notifier *recordingNotifier
	clock    *clock
	merchant *domain.Merchant
	svc      *gatewayService
}

func newGatewayFixture(outcome ports.OutcomeSource) *gatewayFixture {
	cfg := config.Default()
	store := memory.New()
	broker := new(MockBroker)
	broker.On("PublishEvent", mock.Anything, mock.Anything).Return(nil)
	notifier := &recordingNotifier{}
	clk := newClock()
	c := cache.NewFailover(nil, testLogger())

	merchant := &domain.Merchant{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		BusinessName:  "Acme",
		BusinessEmail: "billing@acme.test",
		IsActive:      true,
		CreatedAt:     clk.Now(),
	}
	_ = store.CreateMerchant(context.Background(), merchant)

	svc := NewGatewayService(GatewayDeps{
		Store:    store,
		Fraud:    antifraud.NewRuleEngine(cfg.AntiFraud),
		Outcome:  outcome,
		Cache:    c,
		Notifier: notifier,
		Broker:   broker,
		Logger:   testLogger(),
		CacheTTL: cfg.Cache.TTL(),
		OrderTTL: cfg.Gateway.OrderTTL(),
	}).(*gatewayService)
	svc.now = clk.Now

	return &gatewayFixture{
		store:    store,
		cache:    c,
		broker:   broker,
		notifier: notifier,
		clock:    clk,
		merchant: merchant,
		svc:      svc,
	}
}

func (f *gatewayFixture) order(amount int64) *domain.Order {
	o, err := f.svc.CreateOrder(context.Background(), f.merchant, ports.CreateOrderRequest{Amount: amount, Currency: "INR"})
	if err != nil {
		panic(err)
	}
	return o
}
