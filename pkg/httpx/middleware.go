package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/lpr/pkg/cryptox"
	"github.com/aussiebroadwan/lpr/pkg/slogx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first listed is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// APIToken describes one collaborator allowed to call the API. Only the
// token fingerprint is held in memory.
type APIToken struct {
	Caller      string
	Fingerprint string
}

// NewAPIToken fingerprints a raw token for caller.
func NewAPIToken(caller, raw string) APIToken {
	return APIToken{Caller: caller, Fingerprint: cryptox.FingerprintToken(raw)}
}

// RequireAPIToken authenticates collaborators with a static bearer token.
// With no tokens configured every request is rejected.
func RequireAPIToken(tokens ...APIToken) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw = strings.TrimSpace(raw)

			for _, t := range tokens {
				if cryptox.TokenMatchesFingerprint(raw, t.Fingerprint) {
					ctx := contextWithCaller(r.Context(), t.Caller)
					ctx = slogx.WithAttrs(ctx, "caller", t.Caller)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			slogx.FromContext(r.Context()).Warn("api token rejected")
			writeBearerError(w, "unknown api token")
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}

// Recover turns handler panics into 500 responses.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slogx.FromContext(r.Context()).Error("panic in handler", "panic", rec)
					WriteError(w, http.StatusInternalServerError, "internal_error", "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
