package history

import (
    "context"
    "encoding/json"
    "time"

    "github.com/redis/go-redis/v9"
)

const historyKeyPrefix = "dialogue:"

const defaultTTL = 24 * time.Hour

// RedisStore persists dialogue records as TTL'd JSON blobs.
type RedisStore struct {
    client *redis.Client
    ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
    if ttl <= 0 {
        ttl = defaultTTL
    }
    return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
    rec.SavedAt = time.Now().UTC()
    val, err := json.Marshal(rec)
    if err != nil {
        return err
    }
    return s.client.Set(ctx, historyKeyPrefix+rec.SessionID, val, s.ttl).Err()
}

// Load returns nil when the session has no saved history (not an error).
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Record, error) {
    val, err := s.client.Get(ctx, historyKeyPrefix+sessionID).Result()
    if err == redis.Nil {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    var rec Record
    if err := json.Unmarshal([]byte(val), &rec); err != nil {
        return nil, err
    }
    return &rec, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
