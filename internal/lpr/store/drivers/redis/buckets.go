package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes in one atomic step on the server.
// Refill is computed from the caller-supplied time in milliseconds.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

local elapsed = (now - ts) / 1000
if elapsed > 0 then
  tokens = math.min(capacity, tokens + elapsed * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return allowed
`)

type bucketsRepo struct {
	rdb  redis.UniversalClient
	keys keyspace
}

func (r *bucketsRepo) TryConsume(ctx context.Context, key string, capacity int, ratePerSecond float64, now time.Time, ttl time.Duration) (bool, error) {
	allowed, err := tokenBucketScript.Run(ctx, r.rdb,
		[]string{r.keys.bucket(key)},
		capacity, ratePerSecond, now.UnixMilli(), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}
