// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package dedup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xcherryio/creditbridge/config"
)

func TestMemoryDeduplicatorWindow(t *testing.T) {
	now := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	d := NewMemoryDeduplicatorWithClock(5*time.Minute, func() time.Time { return now })
	ctx := context.Background()

	claimed, err := d.Claim(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = d.Claim(ctx, "T1")
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = d.Claim(ctx, "T2")
	require.NoError(t, err)
	assert.True(t, claimed)

	now = now.Add(5 * time.Minute)
	claimed, err = d.Claim(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, claimed, "claim expires with the window")

	require.NoError(t, d.Release(ctx, "T1"))
	claimed, err = d.Claim(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestNewDeduplicator(t *testing.T) {
	d, err := NewDeduplicator(config.DedupConfig{Mode: config.DedupModeNone})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		claimed, err := d.Claim(context.Background(), "T1")
		require.NoError(t, err)
		assert.True(t, claimed)
	}

	_, err = NewDeduplicator(config.DedupConfig{Mode: config.DedupModeRedis})
	assert.Error(t, err)
	_, err = NewDeduplicator(config.DedupConfig{Mode: "etcd"})
	assert.Error(t, err)
}

// requires a redis server, e.g. REDIS_ADDR=localhost:6379
func TestRedisDeduplicator(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	d := NewRedisDeduplicatorWithClient(client, "creditbridge:test:", time.Minute)
	defer d.Close()

	ctx := context.Background()
	key := uuid.NewString()

	claimed, err := d.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = d.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, d.Release(ctx, key))
	claimed, err = d.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, d.Release(ctx, key))
}
