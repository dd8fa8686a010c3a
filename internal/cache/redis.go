package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "storefront"
	DefaultCartTTL   = 15 * time.Minute

	// bump when domain.Cart's JSON shape changes; older entries read as misses
	cartPayloadVersion = 1

	ttlJitter = 5 * time.Minute
)

// Options namespaces the keys of one deployment and sets the entry lifetime.
type Options struct {
	KeyPrefix string
	TTL       time.Duration
}

// cartEntry is the stored value: the cart wrapped with its payload version.
type cartEntry struct {
	Version int          `json:"v"`
	Cart    *domain.Cart `json:"cart"`
}

type RedisCache struct {
	client  redis.Cmdable
	prefix  string
	baseTTL time.Duration
}

func NewRedisCache(client redis.Cmdable, opts Options) *RedisCache {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCartTTL
	}
	return &RedisCache{
		client:  client,
		prefix:  opts.KeyPrefix,
		baseTTL: opts.TTL,
	}
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry cartEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if entry.Version != cartPayloadVersion || entry.Cart == nil {
		log.Printf("cart cache: dropping entry of %s with payload version %d", userID, entry.Version)
		return nil, ErrCacheMiss
	}

	return entry.Cart, nil
}

// Set stores the cart with a jittered TTL so entries written together do not expire together.
func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	payload, err := json.Marshal(cartEntry{Version: cartPayloadVersion, Cart: cart})
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(ttlJitter)))
	if err := r.client.Set(ctx, r.key(userID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) key(userID string) string {
	return fmt.Sprintf("%s:cart:%s", r.prefix, userID)
}
