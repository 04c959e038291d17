// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/xcherryio/creditbridge/audit"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/completion"
	"github.com/xcherryio/creditbridge/dedup"
	"github.com/xcherryio/creditbridge/handoff"
	"github.com/xcherryio/creditbridge/mq"
	"github.com/xcherryio/creditbridge/tasksource"
)

// CreditScoreConsumer scores the handed off tasks and completes them as workerId,
// which must be the identity the dispatcher locked the task with.
type CreditScoreConsumer struct {
	workerId   string
	codecs     *handoff.Codecs
	scorer     Scorer
	completion completion.Client
	dedup      dedup.Deduplicator
	recorder   audit.Recorder
	logger     log.Logger
	now        func() time.Time
}

func NewCreditScoreConsumer(
	workerId string,
	codecs *handoff.Codecs,
	scorer Scorer,
	completionClient completion.Client,
	deduplicator dedup.Deduplicator,
	recorder audit.Recorder,
	logger log.Logger,
) *CreditScoreConsumer {
	return &CreditScoreConsumer{
		workerId:   workerId,
		codecs:     codecs,
		scorer:     scorer,
		completion: completionClient,
		dedup:      deduplicator,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle is the mq.Handler of the handoff topic
func (c *CreditScoreConsumer) Handle(ctx context.Context, msg mq.Message) error {
	start := c.now()
	handoffMsg, err := c.codecs.Decode(msg.Properties[handoff.ContentTypeProperty], msg.Payload)
	if err != nil {
		return err
	}
	logger := c.logger.WithTags(tag.TaskId(handoffMsg.TaskId), tag.ProcessInstanceId(handoffMsg.ProcessInstanceId))

	claimed, err := c.dedup.Claim(ctx, handoffMsg.TaskId)
	if err != nil {
		// the lock table still rejects a second completion
		logger.Warn("failed to claim task in dedup store, processing anyway", tag.Error(err))
		claimed = true
	}
	if !claimed {
		logger.Info("task is already claimed, skipping duplicate handoff", tag.ID(msg.ID))
		return nil
	}

	scored, err := c.scorer.Compute(ctx, ScoreInput{
		TaskId:       handoffMsg.TaskId,
		DefaultScore: handoffMsg.DefaultScore,
	})
	if err != nil {
		c.release(ctx, handoffMsg.TaskId, logger)
		return fmt.Errorf("failed to compute credit score: %w", err)
	}

	vars, err := CompletionVariables(scored)
	if err != nil {
		c.release(ctx, handoffMsg.TaskId, logger)
		return err
	}

	result := c.completion.Complete(ctx, handoffMsg.TaskId, c.workerId, vars)
	switch {
	case result.Outcome == completion.OutcomeTransportError:
		c.release(ctx, handoffMsg.TaskId, logger)
	case result.Outcome == completion.OutcomeRejected && !tasksource.IsTaskGone(result.Err):
		// the lock is lost, the redelivered handoff after the next fetch must be scored again
		c.release(ctx, handoffMsg.TaskId, logger)
	}

	elapsed := c.now().Sub(start)
	logger.Info("credit score is computed",
		tag.Score(scored.Score), tag.Draws(scored.Draws), tag.Outcome(string(result.Outcome)),
		tag.Duration(elapsed))

	err = c.recorder.Record(ctx, audit.Record{
		TaskId:            handoffMsg.TaskId,
		ProcessInstanceId: handoffMsg.ProcessInstanceId,
		WorkerId:          c.workerId,
		DefaultScore:      handoffMsg.DefaultScore,
		Score:             scored.Score,
		Draws:             scored.Draws,
		Outcome:           string(result.Outcome),
		Reason:            result.Reason,
		Attempts:          result.Attempts,
		Elapsed:           elapsed,
		RecordedAt:        c.now().UTC(),
	})
	if err != nil {
		logger.Warn("failed to record scoring", tag.Error(err))
	}
	return nil
}

func (c *CreditScoreConsumer) release(ctx context.Context, taskId string, logger log.Logger) {
	if err := c.dedup.Release(ctx, taskId); err != nil {
		logger.Warn("failed to release task in dedup store", tag.Error(err))
	}
}

// CompletionVariables are score as an Integer and the raw draws as a JSON list object
func CompletionVariables(scored ScoreResult) (tasksource.Variables, error) {
	creditScores, err := tasksource.JsonObjectVariable(scored.Draws, handoff.CreditScoresObjectType)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credit scores: %w", err)
	}
	return tasksource.Variables{
		handoff.VarScore:        tasksource.IntegerVariable(scored.Score),
		handoff.VarCreditScores: creditScores,
	}, nil
}
