// Package dedup tracks which candidate videos have already been
// republished, backed by Redis so the memory survives restarts.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/shortsync/internal/logger"
)

const scanBatchSize = 100

// Tracker remembers published candidate IDs with a TTL.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewTracker creates a dedup tracker. A zero ttl keeps keys forever.
func NewTracker(client *redis.Client, ttl time.Duration, log logger.Logger) *Tracker {
	return &Tracker{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (t *Tracker) key(candidateID string) string {
	return fmt.Sprintf("published:video:%s", candidateID)
}

// HasPublished reports whether a candidate was already republished. Redis
// errors are logged and treated as not published so a cache outage never
// blocks a run; the publish step itself stays idempotent.
func (t *Tracker) HasPublished(ctx context.Context, candidateID string) bool {
	key := t.key(candidateID)

	exists, err := t.client.Exists(ctx, key).Result()
	if err != nil {
		t.logger.Error("Redis error checking candidate",
			logger.String("candidate_id", candidateID),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return false
	}

	if exists == 1 {
		t.logger.Debug("Candidate already published",
			logger.String("candidate_id", candidateID))
		return true
	}
	return false
}

// MarkPublished records that a candidate has been republished.
func (t *Tracker) MarkPublished(ctx context.Context, candidateID string) error {
	key := t.key(candidateID)

	if err := t.client.Set(ctx, key, "1", t.ttl).Err(); err != nil {
		t.logger.Error("Redis error marking candidate as published",
			logger.String("candidate_id", candidateID),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return err
	}

	t.logger.Debug("Candidate marked as published",
		logger.String("candidate_id", candidateID),
		logger.String("redis_key", key),
	)
	return nil
}

// Clear forgets a single candidate, allowing it to be republished.
func (t *Tracker) Clear(ctx context.Context, candidateID string) error {
	key := t.key(candidateID)

	if err := t.client.Del(ctx, key).Err(); err != nil {
		t.logger.Error("Redis error clearing candidate",
			logger.String("candidate_id", candidateID),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// FlushAll removes every published-candidate key. SCAN keeps this bounded
// instead of FLUSHDB, which would clear unrelated keys in the database.
func (t *Tracker) FlushAll(ctx context.Context) error {
	pattern := "published:video:*"
	var cursor uint64
	var deletedCount int

	for {
		keys, next, err := t.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			t.logger.Error("Redis error scanning for keys",
				logger.String("pattern", pattern),
				logger.Error(err),
			)
			return fmt.Errorf("scan keys: %w", err)
		}
		cursor = next

		if len(keys) > 0 {
			deleted, delErr := t.client.Del(ctx, keys...).Result()
			if delErr != nil {
				t.logger.Error("Redis error deleting keys",
					logger.Int("key_count", len(keys)),
					logger.Error(delErr),
				)
				return fmt.Errorf("delete keys: %w", delErr)
			}
			deletedCount += int(deleted)
		}

		if cursor == 0 {
			break
		}
	}

	t.logger.Info("Flushed published-candidate cache",
		logger.Int("keys_deleted", deletedCount),
		logger.String("pattern", pattern),
	)
	return nil
}
