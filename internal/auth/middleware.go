package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"schooltrans-service/internal/backend"
	"schooltrans-service/internal/httputil"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// UserIDKey is the context key for the authenticated user ID
const UserIDKey contextKey = "user_id"

var ErrNoToken = errors.New("no auth token")

// Claims follow the access tokens issued by the console's auth service.
type Claims struct {
	UserID    int    `json:"user_id"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// ValidateAccessToken checks the signature and expiry of an HS256 token.
func ValidateAccessToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != "" && claims.TokenType != "access" {
		return nil, fmt.Errorf("%w: token_type %q", jwt.ErrTokenInvalidClaims, claims.TokenType)
	}
	return claims, nil
}

// TokenFromRequest reads the bearer token, falling back to the "token" cookie.
func TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return "", ErrNoToken
		}
		return strings.TrimSpace(token), nil
	}
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", ErrNoToken
}

// Middleware validates the caller's JWT, stores the user ID in the context
// and forwards the raw token to backend calls.
func Middleware(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := TokenFromRequest(r)
			if err != nil {
				logger.WarnContext(r.Context(), "no auth token found", "path", r.URL.Path)
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := ValidateAccessToken(raw, secret)
			if err != nil {
				logger.WarnContext(r.Context(), "invalid token", "error", err)
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = backend.WithToken(ctx, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Passthrough forwards any caller token without validating it. Used when
// auth is disabled so backends still see the console's credentials.
func Passthrough(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, err := TokenFromRequest(r); err == nil {
			r = r.WithContext(backend.WithToken(r.Context(), raw))
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID extracts the user ID from context
func GetUserID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(UserIDKey).(int)
	return id, ok
}
