package opa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"payflow/internal/observability"
)

// ClaimsFunc extracts the verified token claims placed in the request by the authentication
// middleware.
type ClaimsFunc func(r *http.Request) (map[string]any, bool)

// Middleware for authorization via OPA.
type Middleware struct {
	opaURL string
	claims ClaimsFunc
	logger *slog.Logger
	client *http.Client
}

// NewMiddleware creates a new OPA middleware. opaURL is the decision endpoint, typically
// http://opa:8181/v1/data/payflow/authz.
func NewMiddleware(opaURL string, claims ClaimsFunc, logger *slog.Logger) *Middleware {
	return &Middleware{
		opaURL: opaURL,
		claims: claims,
		logger: logger,
		client: &http.Client{
			Timeout:   500 * time.Millisecond,
			Transport: observability.NewTracingTransport(http.DefaultTransport),
		},
	}
}

// Input is the document the policy is evaluated against.
type Input struct {
	Method string         `json:"method"`
	Path   []string       `json:"path"`
	User   map[string]any `json:"user"`
}

type decision struct {
	Result struct {
		Allow bool `json:"allow"`
	} `json:"result"`
}

// Authorize is an HTTP middleware that performs permissions checking.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.claims(r)
		if !ok {
			writeError(w, "authentication required", http.StatusUnauthorized)
			return
		}

		allow, err := m.allowed(r, Input{
			Method: r.Method,
			Path:   strings.Split(strings.Trim(r.URL.Path, "/"), "/"),
			User:   claims,
		})
		if err != nil {
			m.logger.Error("error accessing OPA", "error", err)
			writeError(w, "authorization service unavailable", http.StatusServiceUnavailable)
			return
		}
		if !allow {
			m.logger.Warn("request denied by policy", "method", r.Method, "path", r.URL.Path, "sub", claims["sub"])
			writeError(w, "forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) allowed(r *http.Request, input Input) (bool, error) {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return false, fmt.Errorf("marshal opa input: %w", err)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, m.opaURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build opa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("opa returned status %d", resp.StatusCode)
	}

	// An undefined decision has no result and denies.
	var d decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return false, fmt.Errorf("decode opa decision: %w", err)
	}
	return d.Result.Allow, nil
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
