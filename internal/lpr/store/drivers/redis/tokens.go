package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
)

type tokensRepo struct {
	rdb  redis.UniversalClient
	keys keyspace
}

func (r *tokensRepo) PutMetadata(ctx context.Context, md domain.TokenMetadata, ttl time.Duration) error {
	b, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.keys.metadata(md.JTI), b, ttl).Err()
}

func (r *tokensRepo) GetMetadata(ctx context.Context, jti string) (domain.TokenMetadata, error) {
	b, err := r.rdb.Get(ctx, r.keys.metadata(jti)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.TokenMetadata{}, store.ErrNotFound
	}
	if err != nil {
		return domain.TokenMetadata{}, err
	}

	var md domain.TokenMetadata
	if err := json.Unmarshal(b, &md); err != nil {
		return domain.TokenMetadata{}, err
	}
	return md, nil
}

const (
	fieldCount      = "count"
	fieldLastUsedAt = "last_used_at"
	fieldLastMethod = "last_method"
	fieldLastURL    = "last_url"
)

func (r *tokensRepo) RecordUsage(ctx context.Context, jti string, at time.Time, method, url string, ttl time.Duration) error {
	key := r.keys.usage(jti)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldCount, 1)
		pipe.HSet(ctx, key,
			fieldLastUsedAt, at.UnixNano(),
			fieldLastMethod, method,
			fieldLastURL, url,
		)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (r *tokensRepo) GetUsage(ctx context.Context, jti string) (domain.Usage, error) {
	fields, err := r.rdb.HGetAll(ctx, r.keys.usage(jti)).Result()
	if err != nil {
		return domain.Usage{}, err
	}
	if len(fields) == 0 {
		return domain.Usage{}, nil
	}

	count, err := strconv.ParseInt(fields[fieldCount], 10, 64)
	if err != nil {
		return domain.Usage{}, err
	}
	at, err := strconv.ParseInt(fields[fieldLastUsedAt], 10, 64)
	if err != nil {
		return domain.Usage{}, err
	}
	return domain.Usage{
		Count:             count,
		LastUsedAt:        time.Unix(0, at).UTC(),
		LastRequestMethod: fields[fieldLastMethod],
		LastRequestURL:    fields[fieldLastURL],
	}, nil
}
