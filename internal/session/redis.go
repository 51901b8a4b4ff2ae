package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gometeo/weathermail/internal/form"
)

// maxUpdateRetries bounds optimistic-lock retries when concurrent requests of
// the same session race on Update.
const maxUpdateRetries = 10

// ErrConflict is returned when Update keeps losing the race for a key.
var ErrConflict = errors.New("session update conflict")

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info("Connected to Redis", "addr", addr)

	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Update reads, modifies and writes the state inside a WATCH transaction so
// concurrent requests of one session never overwrite each other's fields.
// Every write refreshes the key's TTL.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*form.State)) error {
	key := Key(id)
	txf := func(tx *redis.Tx) error {
		st, _, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		fn(&st)

		bytes, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, bytes, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			s.logger.Debug("Session saved", "key", key, "ttl", s.ttl)
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("write session to redis: %w", err)
	}
	return ErrConflict
}

func (s *RedisStore) Load(ctx context.Context, id string) (form.State, bool, error) {
	return s.get(ctx, s.client, Key(id))
}

func (s *RedisStore) get(ctx context.Context, c getter, key string) (form.State, bool, error) {
	val, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return form.State{}, false, nil
	}
	if err != nil {
		return form.State{}, false, fmt.Errorf("read session from redis: %w", err)
	}

	var st form.State
	if err := json.Unmarshal(val, &st); err != nil {
		return form.State{}, false, fmt.Errorf("decode session: %w", err)
	}
	return st, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, Key(id)).Err(); err != nil {
		return fmt.Errorf("delete session from redis: %w", err)
	}
	return nil
}

// Ping is used by the health check.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func Key(id string) string {
	return "weathermail:session:" + id
}
