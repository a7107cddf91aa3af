package http

import (
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/pkg/lprsdk"
)

func scopesFromSDK(in []lprsdk.Scope) []domain.Scope {
	out := make([]domain.Scope, len(in))
	for i, s := range in {
		out[i] = domain.Scope{Method: s.Method, URLPattern: s.URL, Description: s.Description}
	}
	return out
}

func scopesToSDK(in []domain.Scope) []lprsdk.Scope {
	out := make([]lprsdk.Scope, len(in))
	for i, s := range in {
		out[i] = lprsdk.Scope{Method: s.Method, URL: s.URLPattern, Description: s.Description}
	}
	return out
}

func policyFromSDK(p *lprsdk.Policy) *domain.Policy {
	if p == nil {
		return nil
	}
	return &domain.Policy{
		RatePerSecond:      p.RatePerSecond,
		Burst:              p.Burst,
		RequireDeviceMatch: p.RequireDeviceMatch,
		AllowConcurrent:    p.AllowConcurrent,
		MaxPayloadBytes:    p.MaxPayloadBytes,
		HumanSpeedJitter:   p.HumanSpeedJitter,
	}
}

func policyToSDK(p domain.Policy) lprsdk.Policy {
	return lprsdk.Policy{
		RatePerSecond:      p.RatePerSecond,
		Burst:              p.Burst,
		RequireDeviceMatch: p.RequireDeviceMatch,
		AllowConcurrent:    p.AllowConcurrent,
		MaxPayloadBytes:    p.MaxPayloadBytes,
		HumanSpeedJitter:   p.HumanSpeedJitter,
	}
}

func deviceFromSDK(d lprsdk.DeviceFingerprint) domain.DeviceFingerprint {
	return domain.DeviceFingerprint{
		UserAgent:        d.UserAgent,
		AcceptLanguage:   d.AcceptLanguage,
		Platform:         d.Platform,
		ScreenResolution: d.ScreenResolution,
		Timezone:         d.Timezone,
		Canvas:           d.Canvas,
		WebGL:            d.WebGL,
		Audio:            d.Audio,
	}
}

func revocationToSDK(e domain.RevocationEntry) lprsdk.Revocation {
	return lprsdk.Revocation{
		JTI:               e.JTI,
		RevokedAt:         e.RevokedAt,
		Reason:            e.Reason,
		RevokedBy:         e.RevokedBy,
		OriginalExpiresAt: e.OriginalExpiresAt,
	}
}

func statusToSDK(jti string, s *service.StatusResult) lprsdk.StatusResponse {
	out := lprsdk.StatusResponse{
		JTI:   jti,
		State: string(s.State),
		Usage: lprsdk.Usage{
			Count:             s.Usage.Count,
			LastRequestMethod: s.Usage.LastRequestMethod,
			LastRequestURL:    s.Usage.LastRequestURL,
		},
	}
	if !s.Usage.LastUsedAt.IsZero() {
		at := s.Usage.LastUsedAt
		out.Usage.LastUsedAt = &at
	}
	if md := s.Metadata; md != nil {
		out.IssuedAt = &md.IssuedAt
		out.ExpiresAt = &md.ExpiresAt
		out.CorrelationID = md.CorrelationID
		out.ScopeCount = md.ScopeCount
	}
	if s.Revocation != nil {
		rev := revocationToSDK(*s.Revocation)
		out.Revocation = &rev
	}
	return out
}

func auditEntriesToSDK(in []domain.AuditEntry) []lprsdk.AuditEntry {
	out := make([]lprsdk.AuditEntry, len(in))
	for i, e := range in {
		out[i] = lprsdk.AuditEntry{
			Sequence:      e.Sequence,
			When:          e.When,
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
			Details:       e.Details,
			PreviousHash:  e.PreviousHash,
			EntryHash:     e.EntryHash,
			Signature:     e.Signature,
		}
	}
	return out
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// signingKeyToSDK converts a domain.SigningKey to lprsdk.SigningKeyInfo
func signingKeyToSDK(key domain.SigningKey) lprsdk.SigningKeyInfo {
	return lprsdk.SigningKeyInfo{
		ID:        key.ID,
		Kid:       key.Kid,
		Algorithm: key.Algorithm,
		CreatedAt: key.CreatedAt.Format(time.RFC3339),
		RetiredAt: formatTime(key.RetiredAt),
		ExpiresAt: formatTime(key.ExpiresAt),
	}
}

// signingKeysToSDK converts a slice of domain.SigningKey to lprsdk.SigningKeyInfo
func signingKeysToSDK(keys []domain.SigningKey) []lprsdk.SigningKeyInfo {
	out := make([]lprsdk.SigningKeyInfo, len(keys))
	for i, key := range keys {
		out[i] = signingKeyToSDK(key)
	}
	return out
}
