package domain

import (
	"fmt"
	"time"
)

// Policy is the behavioural policy signed into a receipt.
type Policy struct {
	// RatePerSecond is the token bucket refill rate.
	RatePerSecond float64
	// Burst is the bucket capacity.
	Burst int
	// RequireDeviceMatch enables device binding on verification.
	RequireDeviceMatch bool
	// AllowConcurrent and MaxPayloadBytes are carried for the connector
	// executing the request. The engine does not enforce them.
	AllowConcurrent bool
	MaxPayloadBytes int64
	// HumanSpeedJitter adds a short random delay after a successful
	// rate limit check.
	HumanSpeedJitter bool
}

const (
	maxRatePerSecond = 1000
	maxBurst         = 10000
)

// DefaultPolicy is applied when an issuance request carries none.
func DefaultPolicy() Policy {
	return Policy{
		RatePerSecond:      1,
		Burst:              5,
		RequireDeviceMatch: true,
		MaxPayloadBytes:    1 << 20,
	}
}

// Validate rejects policies that cannot be enforced.
func (p Policy) Validate() error {
	switch {
	case p.RatePerSecond <= 0 || p.RatePerSecond > maxRatePerSecond:
		return fmt.Errorf("%w: rate %v outside (0, %d]", ErrInvalidPolicy, p.RatePerSecond, maxRatePerSecond)
	case p.Burst < 1 || p.Burst > maxBurst:
		return fmt.Errorf("%w: burst %d outside [1, %d]", ErrInvalidPolicy, p.Burst, maxBurst)
	case p.MaxPayloadBytes < 0:
		return fmt.Errorf("%w: negative max payload", ErrInvalidPolicy)
	}
	return nil
}

// TTLBounds are the issuance lifetime limits.
type TTLBounds struct {
	Min     time.Duration
	Max     time.Duration
	Default time.Duration
}

// DefaultTTLBounds allow receipts between five minutes and a day.
var DefaultTTLBounds = TTLBounds{
	Min:     5 * time.Minute,
	Max:     24 * time.Hour,
	Default: time.Hour,
}

// Validate checks 0 < Min <= Default <= Max.
func (b TTLBounds) Validate() error {
	if b.Min <= 0 || b.Min > b.Default || b.Default > b.Max {
		return fmt.Errorf("%w: ttl bounds min=%s default=%s max=%s", ErrInvalidPolicy, b.Min, b.Default, b.Max)
	}
	return nil
}

// Clamp maps a requested lifetime into [Min, Max]. Zero or negative
// requests get Default.
func (b TTLBounds) Clamp(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return b.Default
	case ttl < b.Min:
		return b.Min
	case ttl > b.Max:
		return b.Max
	default:
		return ttl
	}
}

// RetentionTTL is how long revocation and metadata records must outlive
// issuance: twice the maximum lifetime.
func (b TTLBounds) RetentionTTL() time.Duration {
	return 2 * b.Max
}
