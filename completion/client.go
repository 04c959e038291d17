// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package completion

import (
	"context"
	"time"

	"github.com/xcherryio/creditbridge/common/backoff"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/tasksource"
)

type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeRejected       Outcome = "rejected"
	OutcomeTransportError Outcome = "transportError"
)

type Result struct {
	Outcome Outcome
	// Reason is empty when completed
	Reason   string
	Attempts int32
	Err      error
}

func (r Result) IsCompleted() bool {
	return r.Outcome == OutcomeCompleted
}

// Client completes a task on behalf of the lock holder workerId.
// A rejection is final. Transport errors are retried within the retry policy only,
// by default there is a single attempt and the task is left to the lock expiry.
type Client interface {
	Complete(ctx context.Context, taskId, workerId string, variables tasksource.Variables) Result
}

type clientImpl struct {
	source tasksource.Client
	cfg    config.CompletionConfig
	logger log.Logger
}

func NewClient(source tasksource.Client, cfg config.CompletionConfig, logger log.Logger) Client {
	cfg.RetryPolicy = cfg.RetryPolicy.WithDefaults()
	return &clientImpl{
		source: source,
		cfg:    cfg,
		logger: logger,
	}
}

func (c *clientImpl) Complete(
	ctx context.Context, taskId, workerId string, variables tasksource.Variables,
) Result {
	logger := c.logger.WithTags(tag.TaskId(taskId), tag.WorkerId(workerId))

	var attempt int32
	for {
		attempt++
		err := c.completeOnce(ctx, tasksource.CompleteRequest{
			TaskId:    taskId,
			WorkerId:  workerId,
			Variables: variables,
		})
		if err == nil {
			return Result{Outcome: OutcomeCompleted, Attempts: attempt}
		}
		if tasksource.IsRejected(err) {
			logger.Warn("completion is rejected", tag.Error(err), tag.Attempt(attempt))
			return Result{Outcome: OutcomeRejected, Reason: err.Error(), Attempts: attempt, Err: err}
		}

		wait, shouldRetry := backoff.GetNextBackoff(attempt, c.cfg.RetryPolicy)
		if !shouldRetry {
			logger.Warn("completion failed, task is left to the lock expiry",
				tag.Error(err), tag.Attempt(attempt))
			return Result{Outcome: OutcomeTransportError, Reason: err.Error(), Attempts: attempt, Err: err}
		}
		logger.Info("completion failed, retrying", tag.Error(err), tag.Attempt(attempt), tag.Duration(wait))

		select {
		case <-ctx.Done():
			return Result{Outcome: OutcomeTransportError, Reason: ctx.Err().Error(), Attempts: attempt, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

func (c *clientImpl) completeOnce(ctx context.Context, request tasksource.CompleteRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.source.Complete(ctx, request)
}
