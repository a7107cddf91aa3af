package domain

import "time"

// EventType names what an audit entry records.
type EventType string

const (
	EventIssued            EventType = "LPR_ISSUED"
	EventVerified          EventType = "LPR_VERIFIED"
	EventMalformed         EventType = "LPR_MALFORMED"
	EventSignatureInvalid  EventType = "LPR_SIGNATURE_INVALID"
	EventExpired           EventType = "LPR_EXPIRED"
	EventRevokedUse        EventType = "LPR_REVOKED_USE"
	EventOriginMismatch    EventType = "LPR_ORIGIN_MISMATCH"
	EventScopeViolation    EventType = "LPR_SCOPE_VIOLATION"
	EventDeviceMismatch    EventType = "LPR_DEVICE_MISMATCH"
	EventRateLimited       EventType = "LPR_RATE_LIMITED"
	EventVerifyUnavailable EventType = "LPR_VERIFY_UNAVAILABLE"
	EventVerifyAborted     EventType = "LPR_VERIFY_ABORTED"
	EventRevoked           EventType = "LPR_REVOKED"
	EventRevokeDuplicate   EventType = "LPR_REVOKE_DUPLICATE"
	EventKeyRotated        EventType = "LPR_KEY_ROTATED"
)

// securityEvents are those where a failure suggests an attack or a leaked
// receipt rather than ordinary expiry or load.
var securityEvents = map[EventType]struct{}{
	EventSignatureInvalid: {},
	EventRevokedUse:       {},
	EventOriginMismatch:   {},
	EventScopeViolation:   {},
	EventDeviceMismatch:   {},
}

// Result is the outcome recorded by an audit entry.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Severity ranks audit entries for alerting.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityFor derives the severity of an event from its type and result.
func SeverityFor(event EventType, result Result) Severity {
	if result == ResultFailure {
		if _, ok := securityEvents[event]; ok {
			return SeverityCritical
		}
		if event == EventVerifyUnavailable {
			return SeverityError
		}
		return SeverityWarning
	}

	switch event {
	case EventRevoked, EventKeyRotated:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// AuditRecord is the content of an audit entry as supplied by callers,
// before the log assigns ordering and hashes.
type AuditRecord struct {
	EventType     EventType
	Result        Result
	Who           string
	What          string
	Where         string
	Why           string
	How           string
	CorrelationID string
	JTI           string
	Details       map[string]string
}

// AuditEntry is an immutable, hash-chained log entry.
type AuditEntry struct {
	Sequence      uint64            `json:"sequence_number"`
	When          time.Time         `json:"when"`
	Who           string            `json:"who"`
	What          string            `json:"what"`
	Where         string            `json:"where"`
	Why           string            `json:"why"`
	How           string            `json:"how"`
	EventType     EventType         `json:"event_type"`
	Severity      Severity          `json:"severity"`
	Result        Result            `json:"result"`
	CorrelationID string            `json:"correlation_id"`
	JTI           string            `json:"lpr_jti,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	PreviousHash  string            `json:"previous_hash"`
	EntryHash     string            `json:"entry_hash"`
	Signature     string            `json:"signature,omitempty"`
}

// AuditBody is the hashed portion of an entry: everything except the
// hash and signature fields. CBOR tags fix the canonical field names.
type AuditBody struct {
	Sequence      uint64            `cbor:"seq"`
	When          time.Time         `cbor:"when"`
	Who           string            `cbor:"who"`
	What          string            `cbor:"what"`
	Where         string            `cbor:"where"`
	Why           string            `cbor:"why"`
	How           string            `cbor:"how"`
	EventType     string            `cbor:"event_type"`
	Severity      string            `cbor:"severity"`
	Result        string            `cbor:"result"`
	CorrelationID string            `cbor:"cid"`
	JTI           string            `cbor:"jti"`
	Details       map[string]string `cbor:"details"`
}

// Body extracts the hashed portion of e. Empty details hash as absent so
// storage round trips cannot change the bytes.
func (e AuditEntry) Body() AuditBody {
	details := e.Details
	if len(details) == 0 {
		details = nil
	}
	return AuditBody{
		Sequence:      e.Sequence,
		When:          e.When.UTC(),
		Who:           e.Who,
		What:          e.What,
		Where:         e.Where,
		Why:           e.Why,
		How:           e.How,
		EventType:     string(e.EventType),
		Severity:      string(e.Severity),
		Result:        string(e.Result),
		CorrelationID: e.CorrelationID,
		JTI:           e.JTI,
		Details:       details,
	}
}
