// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tasksource

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/xcherryio/creditbridge/common/backoff"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/common/ptr"
	"github.com/xcherryio/creditbridge/config"
)

// Subscription is the fetch-and-lock loop of one topic.
// A poller locks tasks and hands them to a fixed number of processors through a buffered channel.
// The poller stops fetching while the buffer is full, so tasks don't sit locked in memory.
type Subscription struct {
	topic    string
	workerId string
	handler  TaskHandler
	client   Client
	svc      TaskService
	cfg      config.SubscriptionConfig
	logger   log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	taskToProcessChan chan LockedTask
}

func NewSubscription(
	rootCtx context.Context, topic string, handler TaskHandler, client Client, workerId string,
	cfg config.SubscriptionConfig, logger log.Logger,
) *Subscription {
	ctx, cancel := context.WithCancel(rootCtx)
	return &Subscription{
		topic:    topic,
		workerId: workerId,
		handler:  handler,
		client:   client,
		svc:      NewTaskService(client, workerId),
		cfg:      cfg,
		logger:   logger.WithTags(tag.Topic(topic), tag.WorkerId(workerId)),

		ctx:    ctx,
		cancel: cancel,

		taskToProcessChan: make(chan LockedTask, cfg.ProcessorBufferSize),
	}
}

func (s *Subscription) Topic() string {
	return s.topic
}

func (s *Subscription) Start() error {
	if s.cfg.ProcessorConcurrency <= 0 || s.cfg.MaxTasks <= 0 {
		return fmt.Errorf("invalid subscription config for topic %v", s.topic)
	}
	for i := 0; i < s.cfg.ProcessorConcurrency; i++ {
		s.wg.Add(1)
		go s.processLoop()
	}
	s.wg.Add(1)
	go s.pollLoop()
	s.logger.Info("subscription is opened")
	return nil
}

// Stop waits for the in-flight handlers, up to the ctx deadline.
// Tasks still in the buffer are dropped and their locks left to expire.
func (s *Subscription) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("subscription is closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out stopping subscription of topic %v: %w", s.topic, ctx.Err())
	}
}

func (s *Subscription) pollLoop() {
	defer s.wg.Done()

	var failures int32
	for {
		wait := s.pollOnce(&failures)
		if wait <= 0 {
			continue
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// pollOnce returns how long to wait before the next fetch
func (s *Subscription) pollOnce(failures *int32) time.Duration {
	if s.ctx.Err() != nil {
		return s.cfg.PollInterval
	}
	free := cap(s.taskToProcessChan) - len(s.taskToProcessChan)
	if free <= 0 {
		return s.cfg.PollInterval
	}
	maxTasks := s.cfg.MaxTasks
	if free < maxTasks {
		maxTasks = free
	}

	request := FetchAndLockRequest{
		WorkerId: s.workerId,
		MaxTasks: maxTasks,
		Topics: []FetchTopic{
			{TopicName: s.topic, LockDuration: toMillis(s.cfg.LockDuration)},
		},
	}
	if s.cfg.AsyncResponseTimeout > 0 {
		request.AsyncResponseTimeout = ptr.Any(toMillis(s.cfg.AsyncResponseTimeout))
	}

	tasks, err := s.client.FetchAndLock(s.ctx, request)
	if err != nil {
		if s.ctx.Err() != nil {
			return s.cfg.PollInterval
		}
		*failures++
		wait, _ := backoff.GetNextBackoff(*failures, backoff.RetryPolicy{
			InitialInterval:    s.cfg.PollInterval,
			BackoffCoefficient: 2,
			MaximumInterval:    s.cfg.MaxPollInterval,
			MaximumAttempts:    *failures + 1,
		})
		s.logger.Warn("failed to fetch and lock tasks", tag.Error(err), tag.Duration(wait))
		return wait
	}
	*failures = 0

	if len(tasks) == 0 {
		return s.cfg.PollInterval
	}
	s.logger.Debug("fetched and locked tasks", tag.Count(len(tasks)))
	for _, task := range tasks {
		select {
		case s.taskToProcessChan <- task:
		case <-s.ctx.Done():
			return s.cfg.PollInterval
		}
	}
	return 0
}

func (s *Subscription) processLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case task := <-s.taskToProcessChan:
			s.processTask(task)
		}
	}
}

// processTask isolates one task: errors and panics are logged, never propagated
func (s *Subscription) processTask(task LockedTask) {
	logger := s.logger.WithTags(tag.TaskId(task.Id), tag.ProcessInstanceId(task.ProcessInstanceId))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling task",
				tag.Value(r), tag.Message(string(debug.Stack())))
		}
	}()

	// in-flight handlers finish their bounded calls even when the subscription is stopping
	ctx := context.WithoutCancel(s.ctx)
	if err := s.handler.Handle(ctx, task, s.svc); err != nil {
		logger.Error("failed to handle task, its lock is left to expire", tag.Error(err))
	}
}
