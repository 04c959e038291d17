// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/mq"
)

type fakeQueue struct {
	sync.Mutex
	subscribeErr error
	closed       int
}

func (f *fakeQueue) Publish(context.Context, string, mq.Message) error {
	return nil
}

func (f *fakeQueue) Subscribe(context.Context, string, string, mq.Handler) error {
	return f.subscribeErr
}

func (f *fakeQueue) Close() error {
	f.Lock()
	defer f.Unlock()
	f.closed++
	return nil
}

func (f *fakeQueue) closeCount() int {
	f.Lock()
	defer f.Unlock()
	return f.closed
}

func withMessageQueue(t *testing.T, publisher mq.Publisher, subscriber mq.Subscriber) {
	original := newMessageQueueFunc
	newMessageQueueFunc = func(
		config.MessageQueueConfig, bool, bool, log.Logger,
	) (mq.Publisher, mq.Subscriber, error) {
		return publisher, subscriber, nil
	}
	t.Cleanup(func() {
		newMessageQueueFunc = original
	})
}

func TestFailedConsumerStartClosesSubscriber(t *testing.T) {
	publisher := &fakeQueue{}
	subscriber := &fakeQueue{subscribeErr: errors.New("broker is unreachable")}
	withMessageQueue(t, publisher, subscriber)

	shutdown, err := StartCreditBridgeServer(context.Background(), &config.Config{
		Log: config.Logger{Level: "error"},
	}, map[string]bool{ExternalTaskServiceName: true, ConsumerServiceName: true})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker is unreachable")
	assert.Nil(t, shutdown)
	assert.GreaterOrEqual(t, subscriber.closeCount(), 1)
	assert.Equal(t, 1, publisher.closeCount())
}

func TestShutdownClosesSeparateSubscriber(t *testing.T) {
	publisher := &fakeQueue{}
	subscriber := &fakeQueue{}
	withMessageQueue(t, publisher, subscriber)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdown, err := StartCreditBridgeServer(rootCtx, &config.Config{
		Log: config.Logger{Level: "error"},
	}, map[string]bool{ConsumerServiceName: true})
	require.NoError(t, err)
	assert.Equal(t, 0, subscriber.closeCount())

	require.NoError(t, shutdown(context.Background()))
	assert.GreaterOrEqual(t, subscriber.closeCount(), 1)
}
