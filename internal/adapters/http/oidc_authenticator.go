package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCAuthenticator is the alternative to JWTMiddleware when callers log in through an
// external identity provider. It yields the same domain.Caller.
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
	logger   *slog.Logger
}

// NewOIDCAuthenticator discovers the provider at issuerURL and verifies ID tokens issued to
// clientID.
func NewOIDCAuthenticator(ctx context.Context, issuerURL, clientID string, logger *slog.Logger) (*OIDCAuthenticator, error) {
	if issuerURL == "" || clientID == "" {
		return nil, errors.New("oidc: issuer url and client id are required")
	}

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc: discover %s: %w", issuerURL, err)
	}
	return &OIDCAuthenticator{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		logger:   logger,
	}, nil
}

// realmRoles lifts Keycloak's realm_access.roles into "roles" so callerFromClaims sees them.
func realmRoles(claims map[string]any) {
	access, ok := claims["realm_access"].(map[string]any)
	if !ok {
		return
	}
	roles, ok := access["roles"].([]any)
	if !ok {
		return
	}
	if existing, ok := claims["roles"].([]any); ok {
		roles = append(existing, roles...)
	}
	claims["roles"] = roles
}

func (a *OIDCAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, "Authorization header required", http.StatusUnauthorized, a.logger)
			return
		}

		idToken, err := a.verifier.Verify(r.Context(), rawToken)
		if err != nil {
			a.logger.Warn("oidc token rejected", "error", err)
			writeJSONError(w, "Invalid token", http.StatusUnauthorized, a.logger)
			return
		}

		var claims map[string]any
		if err := idToken.Claims(&claims); err != nil {
			writeJSONError(w, "Invalid token claims", http.StatusUnauthorized, a.logger)
			return
		}
		realmRoles(claims)

		caller, err := callerFromClaims(claims)
		if err != nil {
			a.logger.Warn("oidc subject is not a user id", "sub", idToken.Subject)
			writeJSONError(w, "Invalid token claims", http.StatusUnauthorized, a.logger)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims, caller)))
	})
}
