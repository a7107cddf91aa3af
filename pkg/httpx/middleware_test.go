package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/lpr/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestRequireAPIToken(t *testing.T) {
	var gotCaller string
	h := httpx.RequireAPIToken(httpx.NewAPIToken("router", "s3cret"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCaller = httpx.CallerFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusUnauthorized {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
			}
		})
	}
	require.Equal(t, "router", gotCaller)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler, mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestRecover(t *testing.T) {
	h := httpx.Recover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	decode := func(raw string, max int64) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		var b body
		return httpx.DecodeJSON(httptest.NewRecorder(), req, &b, max)
	}

	require.NoError(t, decode(`{"name":"x"}`, 0))
	require.Error(t, decode(`{"name":"x","extra":1}`, 0), "unknown fields")
	require.Error(t, decode(`{"name":"x"}{"name":"y"}`, 0), "trailing data")
	require.Error(t, decode(`{"name":"`+strings.Repeat("a", 100)+`"}`, 16), "too large")
}
