// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package dedup

import (
	"context"
	"fmt"

	"github.com/xcherryio/creditbridge/config"
)

// Deduplicator remembers the taskIds being or having been processed for a window.
// A redelivered or re-dispatched handoff message of a claimed task is skipped.
type Deduplicator interface {
	// Claim returns false if the key has been claimed within the window
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets the key so that a redelivery is processed again
	Release(ctx context.Context, key string) error
	Close() error
}

func NewDeduplicator(cfg config.DedupConfig) (Deduplicator, error) {
	switch cfg.Mode {
	case config.DedupModeNone:
		return NewNoopDeduplicator(), nil
	case config.DedupModeMemory:
		return NewMemoryDeduplicator(cfg.Window), nil
	case config.DedupModeRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required for dedup mode %v", cfg.Mode)
		}
		return NewRedisDeduplicator(*cfg.Redis, cfg.Window), nil
	}
	return nil, fmt.Errorf("unsupported dedup mode %v", cfg.Mode)
}

type noopDeduplicator struct{}

func NewNoopDeduplicator() Deduplicator {
	return noopDeduplicator{}
}

func (noopDeduplicator) Claim(context.Context, string) (bool, error) {
	return true, nil
}

func (noopDeduplicator) Release(context.Context, string) error {
	return nil
}

func (noopDeduplicator) Close() error {
	return nil
}
