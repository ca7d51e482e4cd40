package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/response"
)

type operatorKey struct{}

// OperatorClaims are the claims carried by operator tokens.
type OperatorClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// OperatorFromContext returns the subject of the authenticated operator.
func OperatorFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(operatorKey{}).(string)
	return s, ok
}

// OperatorAuth validates an HS256 bearer token signed with secret. Missing
// or invalid tokens get 401, tokens without requiredRole get 403.
func OperatorAuth(secret []byte, requiredRole string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				response.Error(w, r, errors.New(errors.ErrUnauthorized, "missing bearer token"))
				return
			}

			claims := &OperatorClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
				response.Error(w, r, errors.New(errors.ErrUnauthorized, "invalid bearer token"))
				return
			}

			if requiredRole != "" && !slices.Contains(claims.Roles, requiredRole) {
				log.Printf("[Auth] Operator %q lacks role %q", claims.Subject, requiredRole)
				response.Error(w, r, errors.New(errors.ErrForbidden, "operator role required"))
				return
			}

			log.Printf("[Auth] Operator %q: %s %s", claims.Subject, r.Method, r.URL.Path)
			ctx := context.WithValue(r.Context(), operatorKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// SharedSecret validates header against the configured secrets using
// constant-time comparison. Empty secrets never match.
func SharedSecret(header string, secrets ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(header)
			if key == "" {
				response.Error(w, r, errors.New(errors.ErrUnauthorized, "missing shared secret"))
				return
			}

			valid := false
			for _, secret := range secrets {
				if secret == "" {
					continue
				}
				if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) == 1 {
					valid = true
					break
				}
			}

			if !valid {
				response.Error(w, r, errors.New(errors.ErrUnauthorized, "invalid shared secret"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
