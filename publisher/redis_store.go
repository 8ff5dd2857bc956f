package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"classifieds_ad_publisher/adform"
)

const listingKeyPrefix = "listing:"

// RedisOptions configures the redis connection.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore keeps listings as JSON under listing:<id>.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Address, err)
	}
	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

func (s *RedisStore) Save(ctx context.Context, listing *adform.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, listingKeyPrefix+listing.ID, data, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*adform.Listing, error) {
	data, err := s.client.Get(ctx, listingKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	var listing adform.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", id, err)
	}
	return &listing, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, listingKeyPrefix+id).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
