// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package dedup

import (
	"context"
	"sync"
	"time"
)

type memoryDeduplicator struct {
	window time.Duration
	now    func() time.Time

	lock   sync.Mutex
	claims map[string]time.Time
}

// NewMemoryDeduplicator only dedups within one consumer process
func NewMemoryDeduplicator(window time.Duration) Deduplicator {
	return NewMemoryDeduplicatorWithClock(window, time.Now)
}

func NewMemoryDeduplicatorWithClock(window time.Duration, now func() time.Time) Deduplicator {
	return &memoryDeduplicator{
		window: window,
		now:    now,
		claims: map[string]time.Time{},
	}
}

func (m *memoryDeduplicator) Claim(_ context.Context, key string) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	m.evictExpired(now)
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = now.Add(m.window)
	return true, nil
}

func (m *memoryDeduplicator) Release(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.claims, key)
	return nil
}

func (m *memoryDeduplicator) Close() error {
	return nil
}

func (m *memoryDeduplicator) evictExpired(now time.Time) {
	for key, expiry := range m.claims {
		if !now.Before(expiry) {
			delete(m.claims, key)
		}
	}
}
