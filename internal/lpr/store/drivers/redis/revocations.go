package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
)

type revocationsRepo struct {
	rdb  redis.UniversalClient
	keys keyspace
}

func (r *revocationsRepo) RevokeIfAbsent(ctx context.Context, entry domain.RevocationEntry, ttl time.Duration) (domain.RevocationEntry, bool, error) {
	b, err := json.Marshal(entry)
	if err != nil {
		return domain.RevocationEntry{}, false, err
	}

	created, err := r.rdb.SetNX(ctx, r.keys.revoked(entry.JTI), b, ttl).Result()
	if err != nil {
		return domain.RevocationEntry{}, false, err
	}
	if created {
		return entry, true, nil
	}

	existing, err := r.GetRevocation(ctx, entry.JTI)
	if err != nil {
		return domain.RevocationEntry{}, false, err
	}
	return existing, false, nil
}

func (r *revocationsRepo) GetRevocation(ctx context.Context, jti string) (domain.RevocationEntry, error) {
	b, err := r.rdb.Get(ctx, r.keys.revoked(jti)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RevocationEntry{}, store.ErrNotFound
	}
	if err != nil {
		return domain.RevocationEntry{}, err
	}

	var entry domain.RevocationEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return domain.RevocationEntry{}, err
	}
	return entry, nil
}

func (r *revocationsRepo) Publish(ctx context.Context, entry domain.RevocationEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.keys.revocationChannel(), b).Err()
}

// Subscribe waits for the subscription to be confirmed before returning so
// no revocation published afterwards is missed.
func (r *revocationsRepo) Subscribe(ctx context.Context) (<-chan domain.RevocationEntry, error) {
	pubsub := r.rdb.Subscribe(ctx, r.keys.revocationChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan domain.RevocationEntry)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var entry domain.RevocationEntry
				if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
					continue
				}
				select {
				case out <- entry:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
