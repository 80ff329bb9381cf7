// Command checkout-generator drives synthetic traffic through the gateway: it creates orders
// with a merchant API key and pays them through the hosted checkout endpoint.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"

	"payflow/internal/observability"
)

var methods = []string{"upi", "card", "netbanking", "wallet"}

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	OrderRef string `json:"order_ref"`
}

type checkoutRequest struct {
	Method     string `json:"method"`
	VPA        string `json:"vpa,omitempty"`
	CardNumber string `json:"card_number,omitempty"`
	CardExpiry string `json:"card_expiry,omitempty"`
	CardCVV    string `json:"card_cvv,omitempty"`
	CardName   string `json:"card_name,omitempty"`
	Email      string `json:"email"`
	Contact    string `json:"contact"`
}

type generator struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
	logger    *slog.Logger
}

func main() {
	baseURL := flag.String("target", "http://localhost:8080", "gateway base URL")
	keyID := flag.String("key-id", os.Getenv("PAYFLOW_KEY_ID"), "merchant API key id")
	keySecret := flag.String("key-secret", os.Getenv("PAYFLOW_KEY_SECRET"), "merchant API key secret")
	rps := flag.Int("rps", 5, "checkouts per second")
	flag.Parse()

	logger := observability.SetupLogger("development")
	if *keyID == "" || *keySecret == "" || *rps <= 0 {
		logger.Error("key-id, key-secret and a positive rps are required")
		os.Exit(2)
	}

	g := &generator{
		baseURL:   strings.TrimSuffix(*baseURL, "/"),
		keyID:     *keyID,
		keySecret: *keySecret,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
	logger.Info("Starting generator", "target", g.baseURL, "rps", *rps)

	ticker := time.NewTicker(time.Second / time.Duration(*rps))
	defer ticker.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ticker.C:
			go g.run(ctx)
		case <-ctx.Done():
			logger.Info("Shutting down generator...")
			return
		}
	}
}

func (g *generator) run(ctx context.Context) {
	var order orderResponse
	status, err := g.post(ctx, "/v1/orders", orderRequest{
		Amount:   rand.Int64N(500_000) + 100,
		Currency: "INR",
		Receipt:  "gen-" + uuid.NewString()[:8],
	}, true, &order)
	if err != nil {
		g.logger.Error("failed to create order", "error", err)
		return
	}
	if status != http.StatusCreated {
		g.logger.Warn("order rejected", "status", status)
		return
	}

	var result struct {
		Payment struct {
			PaymentRef string `json:"payment_ref"`
			Status     string `json:"status"`
			IsFlagged  bool   `json:"is_flagged"`
		} `json:"payment"`
	}
	status, err = g.post(ctx, "/pay/"+order.OrderRef, fakeCheckout(), false, &result)
	if err != nil {
		g.logger.Error("failed to submit checkout", "order_ref", order.OrderRef, "error", err)
		return
	}
	g.logger.Info("checkout submitted",
		"order_ref", order.OrderRef,
		"http_status", status,
		"payment_ref", result.Payment.PaymentRef,
		"status", result.Payment.Status,
		"is_flagged", result.Payment.IsFlagged,
	)
}

func fakeCheckout() checkoutRequest {
	req := checkoutRequest{
		Method:  methods[rand.IntN(len(methods))],
		Email:   faker.Email(),
		Contact: faker.Phonenumber(),
	}
	switch req.Method {
	case "upi":
		req.VPA = strings.ToLower(faker.Username()) + "@okbank"
	case "card":
		req.CardNumber = faker.CCNumber()
		req.CardExpiry = fmt.Sprintf("%02d/%02d", rand.IntN(12)+1, time.Now().Year()%100+rand.IntN(5)+1)
		req.CardCVV = fmt.Sprintf("%03d", rand.IntN(1000))
		req.CardName = faker.Name()
	}
	return req
}

func (g *generator) post(ctx context.Context, path string, body any, authenticated bool, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if authenticated {
		req.SetBasicAuth(g.keyID, g.keySecret)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
