package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
)

const auditColumns = `sequence_number, occurred_at, who, what, location, why, how,
	event_type, severity, result, correlation_id, lpr_jti, details,
	previous_hash, entry_hash, signature`

type auditRepo struct {
	db *sql.DB
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *auditRepo) Head(ctx context.Context) (store.AuditHead, error) {
	return readHead(ctx, r.db)
}

func readHead(ctx context.Context, q querier) (store.AuditHead, error) {
	var head store.AuditHead
	err := q.QueryRowContext(ctx,
		`SELECT sequence_number, entry_hash FROM audit_entries ORDER BY sequence_number DESC LIMIT 1`,
	).Scan(&head.Sequence, &head.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return store.AuditHead{}, nil
	}
	return head, err
}

func (r *auditRepo) AppendIfHead(ctx context.Context, prev store.AuditHead, e domain.AuditEntry) error {
	if e.Sequence != prev.Sequence+1 {
		return store.ErrConflict
	}

	var details sql.NullString
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("sqlite: encode audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		head, err := readHead(ctx, tx)
		if err != nil {
			return err
		}
		if head != prev {
			return store.ErrConflict
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO audit_entries (`+auditColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Sequence, toUnix(e.When), e.Who, e.What, e.Where, e.Why, e.How,
			string(e.EventType), string(e.Severity), string(e.Result), e.CorrelationID, e.JTI, details,
			e.PreviousHash, e.EntryHash, e.Signature,
		)
		return err
	})
	if isConstraint(err) {
		return store.ErrConflict
	}
	return err
}

func (r *auditRepo) Range(ctx context.Context, from, to uint64) ([]domain.AuditEntry, error) {
	return r.query(ctx, `SELECT `+auditColumns+` FROM audit_entries
		WHERE sequence_number >= ? AND sequence_number <= ?
		ORDER BY sequence_number`, from, to)
}

func (r *auditRepo) ListByJTI(ctx context.Context, jti string, after uint64, limit int) ([]domain.AuditEntry, error) {
	return r.query(ctx, `SELECT `+auditColumns+` FROM audit_entries
		WHERE lpr_jti = ? AND sequence_number > ?
		ORDER BY sequence_number LIMIT ?`, jti, after, sqlLimit(limit))
}

func (r *auditRepo) ListByCorrelation(ctx context.Context, cid string, after uint64, limit int) ([]domain.AuditEntry, error) {
	return r.query(ctx, `SELECT `+auditColumns+` FROM audit_entries
		WHERE correlation_id = ? AND sequence_number > ?
		ORDER BY sequence_number LIMIT ?`, cid, after, sqlLimit(limit))
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (r *auditRepo) query(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e                      domain.AuditEntry
			when                   int64
			eventType, sev, result string
			details                sql.NullString
		)
		if err := rows.Scan(&e.Sequence, &when, &e.Who, &e.What, &e.Where, &e.Why, &e.How,
			&eventType, &sev, &result, &e.CorrelationID, &e.JTI, &details,
			&e.PreviousHash, &e.EntryHash, &e.Signature); err != nil {
			return nil, err
		}
		e.When = fromUnix(when)
		e.EventType = domain.EventType(eventType)
		e.Severity = domain.Severity(sev)
		e.Result = domain.Result(result)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("sqlite: decode audit details %d: %w", e.Sequence, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
