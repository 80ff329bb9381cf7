package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"payflow/internal/core/domain"
)

var errInvalidSubject = errors.New("token subject is not a user id")

// JWTMiddleware verifies an HS256 bearer token and stores the caller and its claims in the
// request context.
func JWTMiddleware(jwtSecret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, "Authorization header required", http.StatusUnauthorized, logger)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				// Only HS256 is accepted.
				if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, errors.New("unexpected signing method")
				}
				return jwtSecret, nil
			})
			if err != nil || !token.Valid {
				logger.Warn("JWT validation failed", "error", err)
				writeJSONError(w, "Invalid token", http.StatusUnauthorized, logger)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				logger.Warn("Failed to cast token claims")
				writeJSONError(w, "Invalid token claims", http.StatusUnauthorized, logger)
				return
			}

			caller, err := callerFromClaims(claims)
			if err != nil {
				logger.Warn("JWT subject rejected", "error", err)
				writeJSONError(w, "Invalid token claims", http.StatusUnauthorized, logger)
				return
			}

			ctx := withIdentity(r.Context(), map[string]any(claims), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// callerFromClaims reads "sub" as the user id and the strongest role found in "role" or
// "roles". Tokens without a role act as plain users.
func callerFromClaims(claims map[string]any) (domain.Caller, error) {
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return domain.Caller{}, errInvalidSubject
	}

	var roles []string
	if r, ok := claims["role"].(string); ok {
		roles = append(roles, r)
	}
	switch rs := claims["roles"].(type) {
	case []any:
		for _, r := range rs {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	case []string:
		roles = append(roles, rs...)
	}

	caller := domain.Caller{UserID: id, Role: domain.RoleUser}
	for _, r := range roles {
		switch domain.Role(strings.ToLower(r)) {
		case domain.RoleAdmin:
			caller.Role = domain.RoleAdmin
		case domain.RoleMerchant:
			if caller.Role != domain.RoleAdmin {
				caller.Role = domain.RoleMerchant
			}
		}
	}
	return caller, nil
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(logger *slog.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				writeJSONError(w, "authentication required", http.StatusUnauthorized, logger)
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, domain.ErrForbidden.Error(), http.StatusForbidden, logger)
		})
	}
}
