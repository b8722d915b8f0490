package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per artifact plus a sorted-set index scored by creation time.
type RedisStore struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
	max    int64
}

// NewRedisStore connects to redisURL. Entries expire after ttl (0 keeps them)
// and the index is trimmed to the newest maxEntries (0 means unbounded).
func NewRedisStore(redisURL string, ttl time.Duration, maxEntries int) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		c.Close()
		return nil, err
	}
	return &RedisStore{client: c, keyNS: "pdftoolkit", ttl: ttl, max: int64(maxEntries)}, nil
}

func (s *RedisStore) indexKey() string { return s.keyNS + ":artifacts" }

func (s *RedisStore) key(name string) string { return fmt.Sprintf("%s:artifact:%s", s.keyNS, name) }

func (s *RedisStore) Add(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m := map[string]interface{}{
		"name":      e.Name,
		"url":       e.URL,
		"operation": e.Operation,
		"size":      e.Size,
		"pages":     e.Pages,
		"created":   e.CreatedAt.Format(time.RFC3339Nano),
	}

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key(e.Name), m)
		if s.ttl > 0 {
			p.Expire(ctx, s.key(e.Name), s.ttl)
		}
		p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(e.CreatedAt.UnixMilli()), Member: e.Name})
		if s.max > 0 {
			p.ZRemRangeByRank(ctx, s.indexKey(), 0, -s.max-1)
		}
		return nil
	})
	return err
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	names, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, n := range names {
			cmds[i] = p.HGetAll(ctx, s.key(n))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(names))
	var expired []interface{}
	for i, cmd := range cmds {
		res := cmd.Val()
		if len(res) == 0 {
			expired = append(expired, names[i])
			continue
		}
		out = append(out, parseEntry(res))
	}
	if len(expired) > 0 {
		// hashes expired by TTL; drop their index members
		_ = s.client.ZRem(ctx, s.indexKey(), expired...).Err()
	}
	return out, nil
}

func parseEntry(res map[string]string) Entry {
	e := Entry{Name: res["name"], URL: res["url"], Operation: res["operation"]}
	e.Size, _ = strconv.Atoi(res["size"])
	e.Pages, _ = strconv.Atoi(res["pages"])
	if v := res["created"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.CreatedAt = t
		}
	}
	return e
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.client.Close() }

