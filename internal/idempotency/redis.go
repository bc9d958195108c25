package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "wastefee:idempotency:"

// RedisStore shares keys across instances through Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisStore connects to url and verifies the connection.
func NewRedisStore(url string, ttl time.Duration, log *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	log.Info("idempotency store connected to redis", zap.String("addr", opts.Addr))
	return &RedisStore{client: client, ttl: ttl, log: log}, nil
}

// Reserve implements Store.
func (s *RedisStore) Reserve(ctx context.Context, key, requestHash string) (*Record, error) {
	payload, err := json.Marshal(Record{Key: key, RequestHash: requestHash, Status: StatusInProgress})
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+key, payload, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency reserve: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Reserve(ctx, key, requestHash)
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	var existing Record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}
	return resolve(&existing, requestHash)
}

// Complete implements Store.
func (s *RedisStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.log.Warn("idempotency key expired before completion", zap.String("key", key))
		return nil
	}
	if err != nil {
		return fmt.Errorf("idempotency lookup: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("idempotency decode: %w", err)
	}
	record.Status = StatusCompleted
	record.ResponseStatus = status
	record.ResponseBody = json.RawMessage(body)
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, payload, s.ttl).Err()
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
