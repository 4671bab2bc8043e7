package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleksandrVishniakov/versta-2024/internal/config"
	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the credential in a Redis key so several client
// processes of one user share a session, the way tabs of one origin do.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(cfg config.RedisConfig, slot string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.Prefix, slot), nil
}

func NewRedisStoreWithClient(client *redis.Client, prefix, slot string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    buildKey(prefix, slot),
	}
}

func buildKey(prefix, slot string) string {
	if prefix == "" {
		return slot
	}
	return fmt.Sprintf("%s:%s", prefix, slot)
}

func (s *RedisStore) Get(ctx context.Context) (domain.Credential, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credential from redis: %w", err)
	}
	return domain.Credential(val), nil
}

func (s *RedisStore) Set(ctx context.Context, cred domain.Credential) error {
	if err := s.client.Set(ctx, s.key, string(cred), 0).Err(); err != nil {
		return fmt.Errorf("failed to set credential in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear credential in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
