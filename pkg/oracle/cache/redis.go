// Package cache provides the §4.6 Feature Store cache backend: a
// go-redis client satisfying oracle.CacheBackend, grounded on the
// redis/go-redis/v9 usage in the pack's sawpanic-cryptorun manifest
// (other_examples/manifests/sawpanic-cryptorun/go.mod).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhw/fixtures-oracle/pkg/oracle"
)

// Redis implements oracle.CacheBackend. A connection failure on any call
// is returned to the caller (FeatureStore) rather than swallowed here;
// FeatureStore is the layer responsible for the §4.6 degrade-gracefully
// contract.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) (oracle.TeamFeatures, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return oracle.TeamFeatures{}, false, nil
	}
	if err != nil {
		return oracle.TeamFeatures{}, false, err
	}
	var v oracle.TeamFeatures
	if err := json.Unmarshal(raw, &v); err != nil {
		return oracle.TeamFeatures{}, false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value oracle.TeamFeatures, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}
