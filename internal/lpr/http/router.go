package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/httpx"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/aussiebroadwan/lpr/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	apiTokens    []httpx.APIToken
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	state              store.State
	auditStore         store.AuditStore
	LPRService         *service.LPRService
	AuditService       *service.AuditService
	KeyRotationService *service.KeyRotationService // Optional: key endpoints answer 501 without it
}

func NewRouter(
	keys *jwtx.KeyManager,
	apiTokens []httpx.APIToken,
	buildVersion string,
	state store.State,
	auditStore store.AuditStore,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		apiTokens:    apiTokens,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		state:        state,
		auditStore:   auditStore,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerReceipts()
	r.registerAudit()
	r.registerKeyRotation()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// secured authenticates the collaborator and rate limits per caller.
func (r *Router) secured(h http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		httpx.RequireAPIToken(r.apiTokens...),
		httpx.RateLimitByCaller(limit),
	)
}

func (r *Router) registerReceipts() {
	h := &ReceiptsHandler{LPRService: r.LPRService}

	r.Mux.Handle("POST /v1/receipts", r.secured(h.HandleIssue, httpx.ModerateLimit))

	// Verification sits on the hot path of every delegated request.
	r.Mux.Handle("POST /v1/receipts/verify", r.secured(h.HandleVerify, httpx.LenientLimit))

	r.Mux.Handle("POST /v1/receipts/{jti}/revoke", r.secured(h.HandleRevoke, httpx.ModerateLimit))
	r.Mux.Handle("GET /v1/receipts/{jti}", r.secured(h.HandleStatus, httpx.ModerateLimit))
}

func (r *Router) registerAudit() {
	h := &AuditHandler{LPRService: r.LPRService, AuditService: r.AuditService}

	r.Mux.Handle("GET /v1/audit", r.secured(h.HandleTrail, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/audit/verify", r.secured(h.HandleVerifyChain, httpx.ModerateLimit))
}

func (r *Router) registerKeyRotation() {
	h := &KeyRotationHandler{KeyRotationService: r.KeyRotationService}

	r.Mux.Handle("POST /v1/keys/rotate", r.secured(h.HandleRotate, httpx.ModerateLimit))
	r.Mux.Handle("GET /v1/keys", r.secured(h.HandleListKeys, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/keys/{kid}/retire", r.secured(h.HandleRetireKey, httpx.ModerateLimit))
}

func (r *Router) registerSystem() {
	// GET /jwks.json - public endpoint with high limit
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys.KeySet()),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.state, r.auditStore, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
