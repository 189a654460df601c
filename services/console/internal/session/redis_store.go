package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"pumpconsole/pkg/domain"
)

const defaultKeyPrefix = "console"

// RedisStore keeps the user and session as two JSON values, written and
// removed in one MULTI/EXEC.
type RedisStore struct {
	client     redis.UniversalClient
	userKey    string
	sessionKey string
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(addr, password, prefix string) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}), prefix)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:     client,
		userKey:    prefix + ":user",
		sessionKey: prefix + ":session",
	}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Save(ctx context.Context, user domain.User, sess domain.Session) error {
	if err := validate(user, sess); err != nil {
		return err
	}
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	sessJSON, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.userKey, userJSON, 0)
		pipe.Set(ctx, s.sessionKey, sessJSON, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (Snapshot, bool, error) {
	vals, err := s.client.MGet(ctx, s.userKey, s.sessionKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, false, fmt.Errorf("load session: %w", err)
	}
	if len(vals) != 2 {
		return Snapshot{}, false, nil
	}
	userRaw, userOK := vals[0].(string)
	sessRaw, sessOK := vals[1].(string)
	if !userOK || !sessOK {
		if userOK != sessOK {
			slog.Warn("partial session state in redis, treating as absent", "user_present", userOK, "session_present", sessOK)
		}
		return Snapshot{}, false, nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(userRaw), &snap.User); err != nil {
		slog.Warn("corrupt stored user, treating session as absent", "err", err)
		return Snapshot{}, false, nil
	}
	if err := json.Unmarshal([]byte(sessRaw), &snap.Session); err != nil {
		slog.Warn("corrupt stored session, treating as absent", "err", err)
		return Snapshot{}, false, nil
	}
	if validate(snap.User, snap.Session) != nil {
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.userKey, s.sessionKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
