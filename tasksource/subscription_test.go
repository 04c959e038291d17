// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tasksource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/config"
)

type fakeClient struct {
	sync.Mutex
	pending   []LockedTask
	fetchErrs int
	requests  []FetchAndLockRequest
	extended  map[string]time.Duration
	completed []CompleteRequest
}

func (f *fakeClient) FetchAndLock(_ context.Context, request FetchAndLockRequest) ([]LockedTask, error) {
	f.Lock()
	defer f.Unlock()
	f.requests = append(f.requests, request)
	if f.fetchErrs > 0 {
		f.fetchErrs--
		return nil, &TransportError{Cause: errors.New("connection refused")}
	}
	n := request.MaxTasks
	if n > len(f.pending) {
		n = len(f.pending)
	}
	tasks := f.pending[:n]
	f.pending = f.pending[n:]
	for i := range tasks {
		tasks[i].WorkerId = request.WorkerId
	}
	return tasks, nil
}

func (f *fakeClient) ExtendLock(_ context.Context, taskId, _ string, newDuration time.Duration) error {
	f.Lock()
	defer f.Unlock()
	if f.extended == nil {
		f.extended = map[string]time.Duration{}
	}
	f.extended[taskId] = newDuration
	return nil
}

func (f *fakeClient) Complete(_ context.Context, request CompleteRequest) error {
	f.Lock()
	defer f.Unlock()
	f.completed = append(f.completed, request)
	return nil
}

func (f *fakeClient) StartProcess(context.Context, string, Variables) (*ProcessInstance, error) {
	return &ProcessInstance{Id: "P1"}, nil
}

func (f *fakeClient) completedIds() []string {
	f.Lock()
	defer f.Unlock()
	var ids []string
	for _, c := range f.completed {
		ids = append(ids, c.TaskId)
	}
	return ids
}

func testSubscriptionConfig() config.SubscriptionConfig {
	return config.SubscriptionConfig{
		MaxTasks:             2,
		LockDuration:         20 * time.Second,
		PollInterval:         10 * time.Millisecond,
		MaxPollInterval:      50 * time.Millisecond,
		ProcessorConcurrency: 2,
		ProcessorBufferSize:  4,
	}
}

func TestSubscriptionHandlesEveryTask(t *testing.T) {
	client := &fakeClient{
		pending:   []LockedTask{{Id: "T1"}, {Id: "T2"}, {Id: "T3"}, {Id: "T4"}, {Id: "T5"}},
		fetchErrs: 2,
	}
	handler := TaskHandlerFunc(func(ctx context.Context, task LockedTask, svc TaskService) error {
		return svc.Complete(ctx, task, Variables{"score": IntegerVariable(5)})
	})

	sub := NewSubscription(context.Background(), "loanGranter", handler, client, "w1",
		testSubscriptionConfig(), log.NewNopLogger())
	require.NoError(t, sub.Start())
	defer func() {
		assert.NoError(t, sub.Stop(context.Background()))
	}()

	assert.Eventually(t, func() bool {
		return len(client.completedIds()) == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"T1", "T2", "T3", "T4", "T5"}, client.completedIds())

	client.Lock()
	defer client.Unlock()
	for _, c := range client.completed {
		assert.Equal(t, "w1", c.WorkerId)
	}
	for _, r := range client.requests {
		assert.LessOrEqual(t, r.MaxTasks, 2)
		assert.Equal(t, "loanGranter", r.Topics[0].TopicName)
		assert.Equal(t, int64(20000), r.Topics[0].LockDuration)
	}
}

func TestSubscriptionIsolatesFailingTasks(t *testing.T) {
	client := &fakeClient{
		pending: []LockedTask{{Id: "panic"}, {Id: "error"}, {Id: "ok"}},
	}
	handler := TaskHandlerFunc(func(ctx context.Context, task LockedTask, svc TaskService) error {
		switch task.Id {
		case "panic":
			panic("boom")
		case "error":
			return errors.New("score variable is missing")
		}
		return svc.Complete(ctx, task, nil)
	})

	cfg := testSubscriptionConfig()
	cfg.ProcessorConcurrency = 1
	sub := NewSubscription(context.Background(), "requestRejecter", handler, client, "w1",
		cfg, log.NewNopLogger())
	require.NoError(t, sub.Start())
	defer func() {
		assert.NoError(t, sub.Stop(context.Background()))
	}()

	assert.Eventually(t, func() bool {
		return len(client.completedIds()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ok"}, client.completedIds())
}

func TestSubscriptionStopWaitsForInflightHandler(t *testing.T) {
	client := &fakeClient{pending: []LockedTask{{Id: "T1"}}}
	started := make(chan struct{})
	handler := TaskHandlerFunc(func(ctx context.Context, task LockedTask, svc TaskService) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		return svc.Complete(ctx, task, nil)
	})

	sub := NewSubscription(context.Background(), "creditScoreChecker", handler, client, "w1",
		testSubscriptionConfig(), log.NewNopLogger())
	require.NoError(t, sub.Start())
	<-started

	require.NoError(t, sub.Stop(context.Background()))
	assert.Equal(t, []string{"T1"}, client.completedIds())
}

func TestSubscriptionRejectsInvalidConfig(t *testing.T) {
	cfg := testSubscriptionConfig()
	cfg.ProcessorConcurrency = 0
	sub := NewSubscription(context.Background(), "loanGranter", TaskHandlerFunc(nil), &fakeClient{}, "w1",
		cfg, log.NewNopLogger())
	assert.Error(t, sub.Start())
}
