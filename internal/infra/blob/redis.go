package blob

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces all snapshot blobs in the shared Redis instance.
const keyPrefix = "resono:blob:"

// RedisStore stores blobs as Redis string values.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig represents the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	return &RedisStore{client: client}, nil
}

// Read implements Store.Read.
func (s *RedisStore) Read(name string) ([]byte, error) {
	ctx, cancel := opContext()
	defer cancel()

	data, err := s.client.Get(ctx, keyPrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to read blob from redis")
	}
	return data, nil
}

// Write implements Store.Write.
func (s *RedisStore) Write(name string, data []byte) error {
	ctx, cancel := opContext()
	defer cancel()

	if err := s.client.Set(ctx, keyPrefix+name, data, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to write blob to redis")
	}
	return nil
}

// Delete implements Store.Delete.
func (s *RedisStore) Delete(name string) error {
	ctx, cancel := opContext()
	defer cancel()

	if err := s.client.Del(ctx, keyPrefix+name).Err(); err != nil {
		return errors.Wrap(err, "failed to delete blob from redis")
	}
	return nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}
