package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
)

// appendScript advances the ledger head only if it still matches the head
// the caller hashed against.
//
//	KEYS: head, entries, jti index, correlation index
//	ARGV: prev seq, prev hash, seq, hash, entry json, jti, cid
var appendScript = redis.NewScript(`
local seq = tonumber(redis.call('HGET', KEYS[1], 'seq') or '0')
local hash = redis.call('HGET', KEYS[1], 'hash') or ''
if seq ~= tonumber(ARGV[1]) or hash ~= ARGV[2] then
  return 0
end

redis.call('HSET', KEYS[2], ARGV[3], ARGV[5])
redis.call('HSET', KEYS[1], 'seq', ARGV[3], 'hash', ARGV[4])
if ARGV[6] ~= '' then
  redis.call('ZADD', KEYS[3], ARGV[3], ARGV[3])
end
if ARGV[7] ~= '' then
  redis.call('ZADD', KEYS[4], ARGV[3], ARGV[3])
end
return 1
`)

type auditRepo struct {
	rdb  redis.UniversalClient
	keys keyspace
}

func (r *auditRepo) Head(ctx context.Context) (store.AuditHead, error) {
	fields, err := r.rdb.HGetAll(ctx, r.keys.auditHead()).Result()
	if err != nil {
		return store.AuditHead{}, err
	}
	if len(fields) == 0 {
		return store.AuditHead{}, nil
	}

	seq, err := strconv.ParseUint(fields["seq"], 10, 64)
	if err != nil {
		return store.AuditHead{}, err
	}
	return store.AuditHead{Sequence: seq, Hash: fields["hash"]}, nil
}

func (r *auditRepo) AppendIfHead(ctx context.Context, prev store.AuditHead, e domain.AuditEntry) error {
	if e.Sequence != prev.Sequence+1 {
		return store.ErrConflict
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ok, err := appendScript.Run(ctx, r.rdb,
		[]string{
			r.keys.auditHead(),
			r.keys.auditEntries(),
			r.keys.auditByJTI(e.JTI),
			r.keys.auditByCorrelation(e.CorrelationID),
		},
		prev.Sequence, prev.Hash, e.Sequence, e.EntryHash, b, e.JTI, e.CorrelationID,
	).Int()
	if err != nil {
		return err
	}
	if ok != 1 {
		return store.ErrConflict
	}
	return nil
}

func (r *auditRepo) Range(ctx context.Context, from, to uint64) ([]domain.AuditEntry, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return nil, err
	}
	if from == 0 {
		from = 1
	}
	to = min(to, head.Sequence)
	if from > to {
		return nil, nil
	}

	fields := make([]string, 0, to-from+1)
	for seq := from; seq <= to; seq++ {
		fields = append(fields, strconv.FormatUint(seq, 10))
	}
	return r.load(ctx, fields)
}

func (r *auditRepo) ListByJTI(ctx context.Context, jti string, after uint64, limit int) ([]domain.AuditEntry, error) {
	return r.listIndex(ctx, r.keys.auditByJTI(jti), after, limit)
}

func (r *auditRepo) ListByCorrelation(ctx context.Context, cid string, after uint64, limit int) ([]domain.AuditEntry, error) {
	return r.listIndex(ctx, r.keys.auditByCorrelation(cid), after, limit)
}

func (r *auditRepo) listIndex(ctx context.Context, key string, after uint64, limit int) ([]domain.AuditEntry, error) {
	args := redis.ZRangeArgs{
		Key:     key,
		Start:   "(" + strconv.FormatUint(after, 10),
		Stop:    "+inf",
		ByScore: true,
	}
	if limit > 0 {
		args.Count = int64(limit)
	}

	seqs, err := r.rdb.ZRangeArgs(ctx, args).Result()
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return nil, nil
	}
	return r.load(ctx, seqs)
}

var errMissingEntry = errors.New("redis: audit entry missing from ledger")

func (r *auditRepo) load(ctx context.Context, fields []string) ([]domain.AuditEntry, error) {
	vals, err := r.rdb.HMGet(ctx, r.keys.auditEntries(), fields...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.AuditEntry, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: sequence %s", errMissingEntry, fields[i])
		}
		var e domain.AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
