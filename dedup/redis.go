// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xcherryio/creditbridge/config"
)

const DefaultRedisKeyPrefix = "creditbridge:dedup:"

type redisDeduplicator struct {
	client    redis.UniversalClient
	keyPrefix string
	window    time.Duration
}

// NewRedisDeduplicator shares the claims across all the consumers of the group
func NewRedisDeduplicator(cfg config.RedisConfig, window time.Duration) Deduplicator {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisDeduplicatorWithClient(client, cfg.KeyPrefix, window)
}

func NewRedisDeduplicatorWithClient(client redis.UniversalClient, keyPrefix string, window time.Duration) Deduplicator {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &redisDeduplicator{
		client:    client,
		keyPrefix: keyPrefix,
		window:    window,
	}
}

func (r *redisDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, r.keyPrefix+key, time.Now().UTC().Format(time.RFC3339), r.window).Result()
}

func (r *redisDeduplicator) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyPrefix+key).Err()
}

func (r *redisDeduplicator) Close() error {
	return r.client.Close()
}
