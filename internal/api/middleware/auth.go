package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sortepremiada/fleet/internal/api/models"
	"github.com/sortepremiada/fleet/internal/auth"
	"github.com/sortepremiada/fleet/internal/terminal"
)

// deviceKey is the context key for the authenticated terminal.
type deviceKey struct{}

// operatorKey is the context key for the authenticated operator claims.
type operatorKey struct{}

// DeviceAuth creates middleware that authenticates POS terminals by their
// device token. The verified terminal is stored in the request context.
func DeviceAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(w, r)
			if !ok {
				return
			}

			t, err := tokens.VerifyDeviceToken(r.Context(), tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrDeviceRevoked):
					writeUnauthorized(w, r, "device token has been revoked")
				case errors.Is(err, auth.ErrDeviceDisabled):
					writeUnauthorized(w, r, "device is disabled")
				case errors.Is(err, auth.ErrDeviceTokenExpired):
					writeUnauthorized(w, r, "device token has expired")
				case errors.Is(err, auth.ErrInvalidDeviceToken):
					writeUnauthorized(w, r, "invalid device token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), deviceKey{}, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorAuth creates middleware that authenticates back-office operators.
func OperatorAuth(verifier *auth.OperatorVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(w, r)
			if !ok {
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrOperatorTokenExpired):
					writeUnauthorized(w, r, "operator token has expired")
				default:
					writeUnauthorized(w, r, "invalid operator token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePlatformRole rejects operators without platform-wide access. Must be
// mounted after OperatorAuth.
func RequirePlatformRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := GetOperator(r.Context())
		if op == nil || !op.Platform() {
			traceID := GetRequestID(r.Context())
			problem := models.NewForbidden(traceID, "platform role required")
			problem.Instance = r.URL.Path
			problem.Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the bearer token, writing a 401 when it is missing or
// malformed.
func bearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		writeUnauthorized(w, r, "missing authorization header")
		return "", false
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		writeUnauthorized(w, r, "invalid authorization header format")
		return "", false
	}

	tokenString := authHeader[len(bearerPrefix):]
	if tokenString == "" {
		writeUnauthorized(w, r, "missing bearer token")
		return "", false
	}
	return tokenString, true
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetDevice retrieves the authenticated terminal from the context. Returns
// nil outside DeviceAuth-protected routes.
func GetDevice(ctx context.Context) *terminal.Terminal {
	if t, ok := ctx.Value(deviceKey{}).(*terminal.Terminal); ok {
		return t
	}
	return nil
}

// GetOperator retrieves the authenticated operator claims from the context.
// Returns nil outside OperatorAuth-protected routes.
func GetOperator(ctx context.Context) *auth.OperatorClaims {
	if c, ok := ctx.Value(operatorKey{}).(*auth.OperatorClaims); ok {
		return c
	}
	return nil
}
