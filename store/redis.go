package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisRoot = "mini-redirect:"

// Redis implements Store with one hash per entry. Redis expires keys with
// millisecond precision, so the native PEXPIRE is the TTL mechanism.
type Redis struct {
	client redis.UniversalClient
	root   string
	owned  bool
}

const (
	fieldTag     = "tag"
	fieldValue   = "value"
	fieldCreated = "created"
	fieldTTL     = "ttl"
)

// NewRedis connects to a single redis server at addr.
func NewRedis(addr string) *Redis {
	s := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: addr}), DefaultRedisRoot)
	s.owned = true
	return s
}

func NewRedisFromClient(c redis.UniversalClient, root string) *Redis {
	return &Redis{client: c, root: root}
}

// Ping checks connectivity.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Put(ctx context.Context, key, typeTag string, value []byte, ttl time.Duration) (bool, error) {
	if err := CheckPut(key, typeTag, ttl); err != nil {
		return false, err
	}
	k := s.root + key

	// MULTI/EXEC so a reader never sees the new value with the old TTL
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, map[string]any{
			fieldTag:     typeTag,
			fieldValue:   value,
			fieldCreated: time.Now().UnixNano(),
			fieldTTL:     int64(ttl),
		})
		if ttl > 0 {
			pipe.PExpire(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: redis put %s: %w", key, err)
	}
	return true, nil
}

func (s *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := CheckKey(key); err != nil {
		return Entry{}, false, err
	}

	fields, err := s.client.HGetAll(ctx, s.root+key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("store: redis get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}

	created, _ := strconv.ParseInt(fields[fieldCreated], 10, 64)
	ttl, _ := strconv.ParseInt(fields[fieldTTL], 10, 64)
	return Entry{
		Key:     key,
		TypeTag: fields[fieldTag],
		Value:   []byte(fields[fieldValue]),
		TTL:     time.Duration(ttl),
		Created: time.Unix(0, created),
	}, true, nil
}

func (s *Redis) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var candidates []string
	iter := s.client.Scan(ctx, 0, escapeGlob(s.root+prefix)+"*", 256).Iterator()
	for iter.Next(ctx) {
		candidates = append(candidates, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: redis scan %s: %w", prefix, err)
	}
	if len(candidates) == 0 {
		return []string{}, nil
	}

	// SCAN may report keys that expire while the cursor is open; EXISTS settles it
	cmds, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range candidates {
			pipe.Exists(ctx, k)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("store: redis list %s: %w", prefix, err)
	}

	seen := make(map[string]struct{}, len(candidates))
	keys := make([]string, 0, len(candidates))
	for i, cmd := range cmds {
		if n, _ := cmd.(*redis.IntCmd).Result(); n == 0 {
			continue
		}
		k := strings.TrimPrefix(candidates[i], s.root)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Redis) Remove(ctx context.Context, key string) (bool, error) {
	if err := CheckKey(key); err != nil {
		return false, err
	}
	n, err := s.client.Del(ctx, s.root+key).Result()
	if err != nil {
		return false, fmt.Errorf("store: redis delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Redis) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
