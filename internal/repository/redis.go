package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"berserk/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	dedupPrefix = "berserk:dedup:"
	draftPrefix = "berserk:draft:"
)

var errNilClient = errors.New("redis client is nil")

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisDedupStore claims keys with SET NX EX.
type RedisDedupStore struct {
	client *redis.Client
}

func NewRedisDedupStore(client *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{client: client}
}

func (r *RedisDedupStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	ok, err := r.client.SetNX(ctx, dedupPrefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s in redis: %w", key, err)
	}
	return ok, nil
}

func (r *RedisDedupStore) Release(ctx context.Context, key string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, dedupPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release %s in redis: %w", key, err)
	}
	return nil
}

// RedisDraftStore keeps wizard drafts with a sliding TTL.
type RedisDraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDraftStore(client *redis.Client, ttl time.Duration) *RedisDraftStore {
	return &RedisDraftStore{client: client, ttl: ttl}
}

func (r *RedisDraftStore) SaveDraft(ctx context.Context, sessionID string, data []byte) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Set(ctx, draftPrefix+sessionID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft in redis: %w", err)
	}
	return nil
}

func (r *RedisDraftStore) LoadDraft(ctx context.Context, sessionID string) ([]byte, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, draftPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft from redis: %w", err)
	}
	return val, nil
}

func (r *RedisDraftStore) ClearDraft(ctx context.Context, sessionID string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, draftPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete draft from redis: %w", err)
	}
	return nil
}

// Ping checks the connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
