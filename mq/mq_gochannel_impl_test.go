// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xcherryio/creditbridge/common/log"
)

type keyTracker struct {
	sync.Mutex
	inFlight    map[string]int
	maxInFlight map[string]int
	handled     map[string]int
	total       int
}

func newKeyTracker() *keyTracker {
	return &keyTracker{
		inFlight:    map[string]int{},
		maxInFlight: map[string]int{},
		handled:     map[string]int{},
	}
}

func (k *keyTracker) handler(ctx context.Context, msg Message) error {
	k.Lock()
	k.inFlight[msg.Key]++
	if k.inFlight[msg.Key] > k.maxInFlight[msg.Key] {
		k.maxInFlight[msg.Key] = k.inFlight[msg.Key]
	}
	k.Unlock()

	time.Sleep(time.Millisecond)

	k.Lock()
	defer k.Unlock()
	k.inFlight[msg.Key]--
	k.handled[string(msg.Payload)]++
	k.total++
	if k.total%7 == 0 {
		return errors.New("scoring failed")
	}
	return nil
}

func (k *keyTracker) count() int {
	k.Lock()
	defer k.Unlock()
	return k.total
}

func TestGoChannelOneInFlightPerKey(t *testing.T) {
	ch := NewGoChannel(4, log.NewNopLogger())
	defer func() {
		assert.NoError(t, ch.Close())
	}()

	tracker := newKeyTracker()
	require.NoError(t, ch.Subscribe(context.Background(), "credit-score-requests", "credit-score-group", tracker.handler))

	const keys, perKey = 5, 6
	for i := 0; i < perKey; i++ {
		for k := 0; k < keys; k++ {
			require.NoError(t, ch.Publish(context.Background(), "credit-score-requests", Message{
				Key:        fmt.Sprintf("T%v", k),
				Payload:    []byte(fmt.Sprintf("T%v-%v", k, i)),
				Properties: map[string]string{"content-type": "application/json"},
			}))
		}
	}

	assert.Eventually(t, func() bool {
		return tracker.count() == keys*perKey
	}, 5*time.Second, 10*time.Millisecond)

	tracker.Lock()
	defer tracker.Unlock()
	for key, max := range tracker.maxInFlight {
		assert.Equal(t, 1, max, "key %v", key)
	}
	for payload, n := range tracker.handled {
		assert.Equal(t, 1, n, "payload %v", payload)
	}
}

func TestGoChannelDeliversToEveryGroup(t *testing.T) {
	ch := NewGoChannel(2, log.NewNopLogger())
	defer func() {
		assert.NoError(t, ch.Close())
	}()

	var lock sync.Mutex
	received := map[string][]Message{}
	for _, group := range []string{"g1", "g2"} {
		group := group
		require.NoError(t, ch.Subscribe(context.Background(), "topic", group, func(ctx context.Context, msg Message) error {
			lock.Lock()
			defer lock.Unlock()
			received[group] = append(received[group], msg)
			return nil
		}))
	}

	require.NoError(t, ch.Publish(context.Background(), "topic", Message{
		Key:        "T1",
		Payload:    []byte("payload"),
		Properties: map[string]string{"content-type": "application/cbor"},
	}))

	assert.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(received["g1"]) == 1 && len(received["g2"]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	lock.Lock()
	defer lock.Unlock()
	msg := received["g1"][0]
	assert.Equal(t, "T1", msg.Key)
	assert.Equal(t, []byte("payload"), msg.Payload)
	assert.Equal(t, map[string]string{"content-type": "application/cbor"}, msg.Properties)
	assert.NotEmpty(t, msg.ID)
}

func TestGoChannelSurvivesPanickingHandler(t *testing.T) {
	ch := NewGoChannel(1, log.NewNopLogger())
	defer func() {
		assert.NoError(t, ch.Close())
	}()

	var lock sync.Mutex
	var handled []string
	require.NoError(t, ch.Subscribe(context.Background(), "topic", "group", func(ctx context.Context, msg Message) error {
		if msg.Key == "bad" {
			panic("boom")
		}
		lock.Lock()
		defer lock.Unlock()
		handled = append(handled, msg.Key)
		return nil
	}))

	require.NoError(t, ch.Publish(context.Background(), "topic", Message{Key: "bad"}))
	require.NoError(t, ch.Publish(context.Background(), "topic", Message{Key: "good"}))

	assert.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(handled) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGoChannelPublishHonorsContext(t *testing.T) {
	ch := NewGoChannel(1, log.NewNopLogger())
	defer func() {
		assert.NoError(t, ch.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ch.Publish(ctx, "topic", Message{Key: "T1"}), context.Canceled)
}

func TestPartitionOf(t *testing.T) {
	assert.Equal(t, 0, PartitionOf("T1", 1))
	assert.Equal(t, PartitionOf("T1", 4), PartitionOf("T1", 4))
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		p := PartitionOf(fmt.Sprintf("task-%v", i), 4)
		assert.True(t, p >= 0 && p < 4)
		seen[p] = true
	}
	assert.Len(t, seen, 4)
}

func TestGoChannelDeliversOncePerGroup(t *testing.T) {
	ch := NewGoChannel(4, log.NewNopLogger())
	defer func() {
		assert.NoError(t, ch.Close())
	}()

	tracker := newKeyTracker()
	var lock sync.Mutex
	perMember := map[string]int{}
	member := func(name string) Handler {
		return func(ctx context.Context, msg Message) error {
			lock.Lock()
			perMember[name]++
			lock.Unlock()
			return tracker.handler(ctx, msg)
		}
	}
	firstCtx, leaveFirst := context.WithCancel(context.Background())
	defer leaveFirst()
	require.NoError(t, ch.Subscribe(firstCtx, "topic", "credit-score-group", member("first")))
	require.NoError(t, ch.Subscribe(context.Background(), "topic", "credit-score-group", member("second")))

	const messages = 40
	for i := 0; i < messages; i++ {
		require.NoError(t, ch.Publish(context.Background(), "topic", Message{
			Key:     fmt.Sprintf("T%v", i%10),
			Payload: []byte(fmt.Sprintf("p%v", i)),
		}))
	}
	require.Eventually(t, func() bool {
		return tracker.count() == messages
	}, 5*time.Second, 10*time.Millisecond)
	// nothing more arrives
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, messages, tracker.count())

	tracker.Lock()
	for payload, n := range tracker.handled {
		assert.Equal(t, 1, n, "payload %v", payload)
	}
	for key, n := range tracker.maxInFlight {
		assert.Equal(t, 1, n, "key %v", key)
	}
	tracker.Unlock()

	// the remaining member takes over all the partitions
	leaveFirst()
	require.Eventually(t, func() bool {
		ch.lock.Lock()
		defer ch.lock.Unlock()
		cg, ok := ch.groups[groupKey{topic: "topic", group: "credit-score-group"}]
		return ok && cg.size() == 1
	}, 2*time.Second, 10*time.Millisecond)

	lock.Lock()
	secondBefore := perMember["second"]
	firstBefore := perMember["first"]
	lock.Unlock()
	for i := 0; i < 10; i++ {
		require.NoError(t, ch.Publish(context.Background(), "topic", Message{
			Key:     fmt.Sprintf("T%v", i),
			Payload: []byte(fmt.Sprintf("q%v", i)),
		}))
	}
	require.Eventually(t, func() bool {
		return tracker.count() == messages+10
	}, 5*time.Second, 10*time.Millisecond)

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, firstBefore, perMember["first"])
	assert.Equal(t, secondBefore+10, perMember["second"])
}

func TestGoChannelClosesGroupWithLastMember(t *testing.T) {
	ch := NewGoChannel(2, log.NewNopLogger())
	defer func() {
		assert.NoError(t, ch.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ch.Subscribe(ctx, "topic", "g1", func(context.Context, Message) error { return nil }))
	cancel()

	require.Eventually(t, func() bool {
		ch.lock.Lock()
		defer ch.lock.Unlock()
		return len(ch.groups) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGoChannelRejectsSubscribeAfterClose(t *testing.T) {
	ch := NewGoChannel(1, log.NewNopLogger())
	require.NoError(t, ch.Close())

	err := ch.Subscribe(context.Background(), "topic", "g1", func(context.Context, Message) error { return nil })
	assert.Error(t, err)
}
