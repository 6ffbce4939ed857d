package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// Authenticator resolves API keys to principals via their HMAC-SHA256 hash.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate returns the principal bound to key.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (auth.Principal, error) {
	if key == "" {
		return auth.Principal{}, errMissingAPIKey
	}

	hexHash := auth.HashKey(key, a.pepper)
	info, err := a.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			return auth.Principal{}, errInvalidAPIKey
		}
		return auth.Principal{}, errors.Wrap(err, "find api key")
	}

	// The row was found by hash already; compare the raw bytes in constant
	// time so a mismatching row cannot authenticate.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return auth.Principal{}, errInvalidAPIKey
	}
	computed, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return auth.Principal{}, errInvalidAPIKey
	}

	p := info.Principal()
	if p.UserID == "" || !p.Role.Valid() {
		zctx.From(ctx).Warn("API key has no usable identity",
			zap.String("key_id", info.ID),
			zap.String("role", string(p.Role)),
		)
		return auth.Principal{}, errInvalidAPIKey
	}
	return p, nil
}

// Middleware rejects requests without a valid api_key header and stores the
// principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated callers that are not admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := principal(r)
		if err == nil {
			err = p.RequireAdmin()
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Principal{}, auth.ErrUnauthenticated
	}
	return p, nil
}
