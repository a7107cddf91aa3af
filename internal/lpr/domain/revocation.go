package domain

import "time"

// RevocationEntry is written once per revoked jti and never changed.
type RevocationEntry struct {
	JTI               string    `json:"jti"`
	RevokedAt         time.Time `json:"revoked_at"`
	Reason            string    `json:"reason"`
	RevokedBy         string    `json:"revoked_by"`
	OriginalExpiresAt time.Time `json:"original_expires_at"`
	SubjectPseudonym  string    `json:"sub"`
}
