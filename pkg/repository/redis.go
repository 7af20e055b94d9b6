package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/models"
	"github.com/go-redis/redis/v8"
)

const (
	idempotencyKeyPrefix = "checkout:idem:"
	orderKeyPrefix       = "order:"
	pendingMarker        = "PENDING"
)

var (
	defaultIdempotencyTTL = 24 * time.Hour
	defaultOrderCacheTTL  = 5 * time.Minute
)

// ErrCheckoutInFlight is returned when an idempotency key is claimed by a
// checkout that has not finished yet.
var ErrCheckoutInFlight = errors.New("checkout with this idempotency key is in progress")

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return NewRedisRepositoryWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}), cfg)
}

func NewRedisRepositoryWithClient(client *redis.Client, cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{client: client, config: cfg}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) idempotencyTTL() time.Duration {
	if r.config != nil && r.config.IdempotencyTTL > 0 {
		return r.config.IdempotencyTTL
	}
	return defaultIdempotencyTTL
}

func (r *RedisRepository) orderCacheTTL() time.Duration {
	if r.config != nil && r.config.OrderCacheTTL > 0 {
		return r.config.OrderCacheTTL
	}
	return defaultOrderCacheTTL
}

// ClaimIdempotencyKey reserves key for a new checkout. If the key already
// completed it returns the order id it produced and claimed=false. If the
// key is held by a running checkout it returns ErrCheckoutInFlight.
func (r *RedisRepository) ClaimIdempotencyKey(ctx context.Context, key string) (orderID string, claimed bool, err error) {
	k := idempotencyKeyPrefix + key
	ok, err := r.client.SetNX(ctx, k, pendingMarker, r.idempotencyTTL()).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	val, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Released between SETNX and GET; let the caller try again.
		return "", false, ErrCheckoutInFlight
	}
	if err != nil {
		return "", false, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == pendingMarker {
		return "", false, ErrCheckoutInFlight
	}
	return val, false, nil
}

// CompleteIdempotencyKey records the order produced for key.
func (r *RedisRepository) CompleteIdempotencyKey(ctx context.Context, key, orderID string) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, orderID, r.idempotencyTTL()).Err()
}

// ReleaseIdempotencyKey drops a claim after a failed checkout so the
// customer can retry with the same key.
func (r *RedisRepository) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisRepository) CacheOrder(ctx context.Context, order *models.Order) error {
	return r.SetJSON(ctx, orderKeyPrefix+order.ID, order, r.orderCacheTTL())
}

// GetCachedOrder returns nil, nil on a cache miss.
func (r *RedisRepository) GetCachedOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.GetJSON(ctx, orderKeyPrefix+id, &order)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
