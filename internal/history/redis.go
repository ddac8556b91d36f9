package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

const keyPrefix = "history:"

// RedisStore keeps each conversation as a JSON list under history:<id>.
type RedisStore struct {
	rdb redis.UniversalClient
	max int
	ttl time.Duration
}

// NewRedisStore wraps rdb. Zero maxEntries or ttl take the defaults.
func NewRedisStore(rdb redis.UniversalClient, maxEntries int, ttl time.Duration) *RedisStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, max: maxEntries, ttl: ttl}
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("history: parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("history: ping redis: %w", err)
	}
	return rdb, nil
}

func key(id string) string { return keyPrefix + id }

func (s *RedisStore) Load(ctx context.Context, id string, limit int) ([]protocol.CompletionMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.rdb.LRange(ctx, key(id), start, -1).Result()
	if errors.Is(err, redis.Nil) {
		return []protocol.CompletionMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}

	out := make([]protocol.CompletionMessage, 0, len(raw))
	for _, r := range raw {
		var m protocol.CompletionMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("history: decode entry: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisStore) Append(ctx context.Context, id string, msgs ...protocol.CompletionMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	vals := make([]any, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("history: encode entry: %w", err)
		}
		vals[i] = b
	}

	k := key(id)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, k, vals...)
		p.LTrim(ctx, k, -int64(s.max), -1)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}
