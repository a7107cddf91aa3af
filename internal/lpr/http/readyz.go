package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/httpx"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/aussiebroadwan/lpr/pkg/lprsdk"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe covering the shared store, the audit ledger and the signing keys
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	lprsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	lprsdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	state store.State,
	audit store.AuditStore,
	keys *jwtx.KeyManager,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &lprsdk.HealthChecks{
			Store:  "ok",
			Audit:  "ok",
			Signer: "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := state.Ping(r.Context()); err != nil {
			checks.Store = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if err := audit.Ping(r.Context()); err != nil {
			checks.Audit = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		// A node with verification keys but no signer can still verify.
		switch {
		case !keys.IsReady():
			checks.Signer = "error: no keys loaded"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		case keys.NumSigners() == 0:
			checks.Signer = "verify-only"
		}

		response := lprsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
