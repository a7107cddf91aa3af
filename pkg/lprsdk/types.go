package lprsdk

import (
	"time"

	"github.com/aussiebroadwan/lpr/pkg/jwtx"
)

// ============================================================================
// Receipt Types
// ============================================================================

// DeviceFingerprint is the client attribute set bound into a receipt.
// Only UserAgent, AcceptLanguage, Platform and ScreenResolution are hashed.
type DeviceFingerprint struct {
	UserAgent        string `json:"user_agent"`
	AcceptLanguage   string `json:"accept_language,omitempty"`
	Platform         string `json:"platform,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	Canvas           string `json:"canvas,omitempty"`
	WebGL            string `json:"webgl,omitempty"`
	Audio            string `json:"audio,omitempty"`
}

// Scope grants one HTTP method on a URL pattern. '*' matches any run of
// characters; patterns starting with "/" match path and query only.
type Scope struct {
	Method      string `json:"method"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Policy is the behavioural policy signed into a receipt.
type Policy struct {
	RatePerSecond      float64 `json:"rate_per_second"`
	Burst              int     `json:"burst"`
	RequireDeviceMatch bool    `json:"require_device_match"`
	AllowConcurrent    bool    `json:"allow_concurrent"`
	MaxPayloadBytes    int64   `json:"max_payload_bytes"`
	HumanSpeedJitter   bool    `json:"human_speed_jitter"`
}

// IssueRequest asks for a new receipt.
type IssueRequest struct {
	SubjectID       string            `json:"subject_id"`
	Device          DeviceFingerprint `json:"device"`
	Scopes          []Scope           `json:"scopes"`
	Origins         []string          `json:"origins"`
	Policy          *Policy           `json:"policy,omitempty"`
	TTLSeconds      int               `json:"ttl_seconds,omitempty"`
	ParentSessionID string            `json:"parent_session_id,omitempty"`
	CorrelationID   string            `json:"correlation_id,omitempty"`
}

// IssueResponse carries the signed receipt.
type IssueResponse struct {
	Token         string    `json:"token"`
	JTI           string    `json:"jti"`
	KeyID         string    `json:"kid"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	CorrelationID string    `json:"correlation_id"`
	Scopes        []Scope   `json:"scopes"`
	Origins       []string  `json:"origins"`
	Policy        Policy    `json:"policy"`
}

// VerifyRequest presents a receipt with the request it should authorise.
type VerifyRequest struct {
	Token  string             `json:"token"`
	Method string             `json:"method"`
	URL    string             `json:"url"`
	Origin string             `json:"origin"`
	Device *DeviceFingerprint `json:"device,omitempty"`
}

// VerifyResponse is returned when a receipt authorises the request.
type VerifyResponse struct {
	Valid            bool      `json:"valid"`
	JTI              string    `json:"jti"`
	SubjectPseudonym string    `json:"subject"`
	CorrelationID    string    `json:"correlation_id"`
	ExpiresAt        time.Time `json:"expires_at"`
	Scopes           []Scope   `json:"scopes"`
	Policy           Policy    `json:"policy"`
}

// RevokeRequest carries the reason for a revocation.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

// Revocation is a stored revocation record.
type Revocation struct {
	JTI               string    `json:"jti"`
	RevokedAt         time.Time `json:"revoked_at"`
	Reason            string    `json:"reason"`
	RevokedBy         string    `json:"revoked_by"`
	OriginalExpiresAt time.Time `json:"original_expires_at"`
}

// RevokeResponse reports the stored revocation. Duplicate is true when the
// receipt had already been revoked; Revocation is then the first record.
type RevokeResponse struct {
	Revocation Revocation `json:"revocation"`
	Duplicate  bool       `json:"duplicate"`
}

// Usage are the statistics of successful verifications.
type Usage struct {
	Count             int64      `json:"count"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	LastRequestMethod string     `json:"last_request_method,omitempty"`
	LastRequestURL    string     `json:"last_request_url,omitempty"`
}

// Receipt states reported by Status.
const (
	StateActive   = "active"
	StateRevoked  = "revoked"
	StateExpired  = "expired"
	StateNotFound = "notFound"
)

// StatusResponse describes a receipt's lifecycle state.
type StatusResponse struct {
	JTI           string      `json:"jti"`
	State         string      `json:"state"`
	IssuedAt      *time.Time  `json:"issued_at,omitempty"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	ScopeCount    int         `json:"scope_count,omitempty"`
	Revocation    *Revocation `json:"revocation,omitempty"`
	Usage         Usage       `json:"usage"`
}

// ============================================================================
// Audit Types
// ============================================================================

// AuditEntry is one hash-chained audit log entry.
type AuditEntry struct {
	Sequence      uint64            `json:"sequence_number"`
	When          time.Time         `json:"when"`
	Who           string            `json:"who"`
	What          string            `json:"what"`
	Where         string            `json:"where"`
	Why           string            `json:"why"`
	How           string            `json:"how"`
	EventType     string            `json:"event_type"`
	Severity      string            `json:"severity"`
	Result        string            `json:"result"`
	CorrelationID string            `json:"correlation_id"`
	JTI           string            `json:"lpr_jti,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	PreviousHash  string            `json:"previous_hash"`
	EntryHash     string            `json:"entry_hash"`
	Signature     string            `json:"signature,omitempty"`
}

// AuditQuery selects an audit trail. Exactly one of JTI and CorrelationID
// should be set. After is the NextCursor of a previous page.
type AuditQuery struct {
	JTI           string
	CorrelationID string
	After         uint64
	Limit         int
}

// AuditTrailResponse is one page of an audit trail. NextCursor is zero on
// the last page.
type AuditTrailResponse struct {
	Entries    []AuditEntry `json:"entries"`
	NextCursor uint64       `json:"next_cursor,omitempty"`
}

// VerifyChainRequest selects the sequence range to verify. Zero values
// mean the first entry and the current head.
type VerifyChainRequest struct {
	From uint64 `json:"from,omitempty"`
	To   uint64 `json:"to,omitempty"`
}

// ChainReport is the outcome of an audit chain verification.
type ChainReport struct {
	Valid    bool   `json:"valid"`
	From     uint64 `json:"from"`
	To       uint64 `json:"to"`
	Checked  int    `json:"checked"`
	BrokenAt uint64 `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Store is the shared token, revocation and bucket substrate.
	Store string `json:"store"`

	// Audit is the audit ledger.
	Audit string `json:"audit"`

	// Signer reports whether signing and verification keys are loaded.
	Signer string `json:"signer"`
}

// ============================================================================
// JWKS Types
// ============================================================================

// JWKSResponse contains the public keys receipts are verified with.
type JWKSResponse jwtx.JWKS

// ============================================================================
// Key Rotation Types
// ============================================================================

// RotateKeyRequest represents a request to rotate signing keys.
type RotateKeyRequest struct {
	// RetireExisting will mark current active keys as retired if true.
	// If false, new key is added alongside existing keys.
	RetireExisting bool `json:"retire_existing"`
}

// SigningKeyInfo represents a receipt signing key with its metadata.
type SigningKeyInfo struct {
	ID        string  `json:"id,omitempty"`         // ULID, stored keys only
	Kid       string  `json:"kid"`                  // Key identifier in JWKS
	Algorithm string  `json:"algorithm"`            // ES256 or EdDSA
	CreatedAt string  `json:"created_at"`           // RFC3339 timestamp
	RetiredAt *string `json:"retired_at,omitempty"` // RFC3339 timestamp (null if active)
	ExpiresAt *string `json:"expires_at,omitempty"` // end of the verification grace window
}

// RotateKeyResponse represents the result of a key rotation operation.
type RotateKeyResponse struct {
	NewKey      SigningKeyInfo   `json:"new_key"`
	RetiredKeys []SigningKeyInfo `json:"retired_keys,omitempty"`
	ActiveKeys  int              `json:"active_keys"`
}
