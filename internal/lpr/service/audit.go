package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
	"github.com/aussiebroadwan/lpr/pkg/codec"
	"github.com/aussiebroadwan/lpr/pkg/cryptox"
)

// GenesisHash is the previous_hash of the first ledger entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditSignatureInfo is the HKDF info used to derive the entry signing key
// from the master secret.
const AuditSignatureInfo = "lpr/audit-entry-signature/v1"

const (
	defaultAppendAttempts = 64
	defaultTrailLimit     = 50
	maxTrailLimit         = 500
	verifyBatchSize       = 500
)

// AuditService appends hash-chained entries to the ledger and verifies the
// chain. Sequence numbers are assigned by advancing the ledger head with a
// compare-and-swap, so concurrent writers never share or skip a number.
type AuditService struct {
	Log   store.AuditLog
	Clock clock.Clock

	// SignatureKey, when set, attaches HMAC-SHA256(entry_hash) to each entry.
	SignatureKey []byte

	// MaxAttempts bounds retries after losing the head to another writer.
	MaxAttempts int
}

// Append assigns the next sequence number to rec, chains it to the current
// head and stores it.
func (s *AuditService) Append(ctx context.Context, rec domain.AuditRecord) (domain.AuditEntry, error) {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAppendAttempts
	}

	for range attempts {
		head, err := s.Log.Head(ctx)
		if err != nil {
			return domain.AuditEntry{}, fmt.Errorf("audit: read head: %w", err)
		}

		prev := head.Hash
		if head.Sequence == 0 {
			prev = GenesisHash
		}

		entry := domain.AuditEntry{
			Sequence:      head.Sequence + 1,
			When:          s.now(),
			Who:           rec.Who,
			What:          rec.What,
			Where:         rec.Where,
			Why:           rec.Why,
			How:           rec.How,
			EventType:     rec.EventType,
			Severity:      domain.SeverityFor(rec.EventType, rec.Result),
			Result:        rec.Result,
			CorrelationID: rec.CorrelationID,
			JTI:           rec.JTI,
			Details:       rec.Details,
			PreviousHash:  prev,
		}
		if entry.EntryHash, err = EntryHash(prev, entry); err != nil {
			return domain.AuditEntry{}, err
		}
		if len(s.SignatureKey) > 0 {
			entry.Signature = signEntry(s.SignatureKey, entry.EntryHash)
		}

		err = s.Log.AppendIfHead(ctx, head, entry)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return domain.AuditEntry{}, fmt.Errorf("audit: append: %w", err)
		}
		return entry, nil
	}
	return domain.AuditEntry{}, ErrAuditContention
}

func (s *AuditService) now() time.Time {
	if s.Clock == nil {
		return clock.Real().Now()
	}
	return s.Clock.Now()
}

// EntryHash computes hex(SHA-256(previous_hash || CBOR(body))), where body
// is the entry without its hash and signature fields.
func EntryHash(previousHash string, e domain.AuditEntry) (string, error) {
	body, err := codec.Marshal(e.Body())
	if err != nil {
		return "", fmt.Errorf("audit: encode entry %d: %w", e.Sequence, err)
	}

	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func signEntry(key []byte, entryHash string) string {
	return base64.RawURLEncoding.EncodeToString(cryptox.Sum(key, []byte(entryHash)))
}

// ChainReport is the outcome of a chain verification.
type ChainReport struct {
	Valid   bool   `json:"valid"`
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
	Checked int    `json:"checked"`
	// BrokenAt is the first sequence number that failed, when Valid is false.
	BrokenAt uint64 `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// VerifyChainIntegrity recomputes every entry hash in [from, to] and checks
// that each entry links to its predecessor. A to of zero means the current
// head. Signatures are checked when SignatureKey is set.
func (s *AuditService) VerifyChainIntegrity(ctx context.Context, from, to uint64) (ChainReport, error) {
	if from == 0 {
		from = 1
	}
	head, err := s.Log.Head(ctx)
	if err != nil {
		return ChainReport{}, fmt.Errorf("audit: read head: %w", err)
	}
	if to == 0 || to > head.Sequence {
		to = head.Sequence
	}

	report := ChainReport{Valid: true, From: from, To: to}
	if from > to {
		return report, nil
	}

	prev := GenesisHash
	if from > 1 {
		before, err := s.Log.Range(ctx, from-1, from-1)
		if err != nil {
			return ChainReport{}, fmt.Errorf("audit: read entry %d: %w", from-1, err)
		}
		if len(before) != 1 {
			return report.broken(from-1, "entry missing"), nil
		}
		prev = before[0].EntryHash
	}

	next := from
	for next <= to {
		end := min(to, next+verifyBatchSize-1)
		batch, err := s.Log.Range(ctx, next, end)
		if err != nil {
			return ChainReport{}, fmt.Errorf("audit: read entries %d-%d: %w", next, end, err)
		}

		seq, reason := VerifyEntries(prev, next, batch, s.SignatureKey)
		report.Checked += len(batch)
		if reason != "" {
			return report.broken(seq, reason), nil
		}
		if uint64(len(batch)) != end-next+1 {
			return report.broken(next+uint64(len(batch)), "entry missing"), nil
		}

		prev = batch[len(batch)-1].EntryHash
		next = end + 1
	}
	return report, nil
}

func (r ChainReport) broken(seq uint64, reason string) ChainReport {
	r.Valid = false
	r.BrokenAt = seq
	r.Reason = reason
	return r
}

// VerifyEntries checks a contiguous run of entries starting at sequence
// first whose predecessor hash is prev. It returns the first failing
// sequence and a reason, or an empty reason when the run is intact.
func VerifyEntries(prev string, first uint64, entries []domain.AuditEntry, signatureKey []byte) (uint64, string) {
	for i, e := range entries {
		want := first + uint64(i)
		switch {
		case e.Sequence != want:
			return want, fmt.Sprintf("sequence gap: expected %d, found %d", want, e.Sequence)
		case e.PreviousHash != prev:
			return e.Sequence, "previous_hash does not match predecessor"
		}

		got, err := EntryHash(prev, e)
		if err != nil {
			return e.Sequence, err.Error()
		}
		if got != e.EntryHash {
			return e.Sequence, "entry_hash mismatch"
		}

		if len(signatureKey) > 0 {
			sig, err := base64.RawURLEncoding.DecodeString(e.Signature)
			if err != nil || !cryptox.Equal(sig, cryptox.Sum(signatureKey, []byte(e.EntryHash))) {
				return e.Sequence, "signature mismatch"
			}
		}
		prev = e.EntryHash
	}
	return 0, ""
}

// AuditQuery selects an audit trail by receipt or correlation id.
type AuditQuery struct {
	JTI           string
	CorrelationID string
	// After is the cursor returned by a previous page; zero starts at the beginning.
	After uint64
	Limit int
}

// AuditPage is one page of an audit trail.
type AuditPage struct {
	Entries    []domain.AuditEntry
	NextCursor uint64
}

// Trail returns entries for the query in sequence order.
func (s *AuditService) Trail(ctx context.Context, q AuditQuery) (AuditPage, error) {
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultTrailLimit
	case limit > maxTrailLimit:
		limit = maxTrailLimit
	}

	var (
		entries []domain.AuditEntry
		err     error
	)
	switch {
	case q.JTI != "":
		entries, err = s.Log.ListByJTI(ctx, q.JTI, q.After, limit)
	case q.CorrelationID != "":
		entries, err = s.Log.ListByCorrelation(ctx, q.CorrelationID, q.After, limit)
	default:
		return AuditPage{}, fmt.Errorf("%w: jti or correlation id is required", ErrInvalidRequest)
	}
	if err != nil {
		return AuditPage{}, err
	}

	page := AuditPage{Entries: entries}
	if len(entries) == limit {
		page.NextCursor = entries[len(entries)-1].Sequence
	}
	return page, nil
}
