package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// UploadScope must be granted to a token before it may reach the upload
// endpoints.
const UploadScope = "package:upload"

func startJWKCache(wellknown string) (*jwk.Cache, error) {
	ctx := context.Background()

	c := jwk.NewCache(ctx)
	c.Register(wellknown, jwk.WithMinRefreshInterval(15*time.Minute))
	_, err := c.Refresh(ctx, wellknown)
	if err != nil {
		return nil, err
	}
	slog.Info("jwk cache started")
	return c, nil
}

// OidcAuth guards the upload endpoints with bearer-token validation against
// the issuer's JWKS endpoint.
func OidcAuth(wellknown string) func(next http.Handler) http.Handler {
	c, err := startJWKCache(wellknown)
	if err != nil {
		panic(err)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyset, err := c.Get(r.Context(), wellknown)
			if err != nil {
				slog.Error("could not retrieve keyset", err)
				http.Error(w, "internal server error validating authorization header", http.StatusInternalServerError)
				return
			}
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				http.Error(w, "authorization header is not a bearer token", http.StatusUnauthorized)
				return
			}
			tok, err := jwt.ParseString(token, jwt.WithKeySet(keyset))
			if err == nil {
				if !hasUploadScope(tok) {
					http.Error(w, "token is missing the upload scope", http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if jwt.IsValidationError(err) {
				slog.Error("jwt could not be validated", err)
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			slog.Error("jwt could not be parsed", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
		})
	}
}

// hasUploadScope accepts either the space-separated "scope" claim or the
// "scp" list claim some issuers emit instead.
func hasUploadScope(tok jwt.Token) bool {
	if v, ok := tok.Get("scope"); ok {
		if s, ok := v.(string); ok {
			for _, scope := range strings.Fields(s) {
				if scope == UploadScope {
					return true
				}
			}
		}
	}
	if v, ok := tok.Get("scp"); ok {
		if scopes, ok := v.([]interface{}); ok {
			for _, scope := range scopes {
				if s, ok := scope.(string); ok && s == UploadScope {
					return true
				}
			}
		}
	}
	return false
}
