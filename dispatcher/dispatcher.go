// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"fmt"

	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/handoff"
	"github.com/xcherryio/creditbridge/mq"
	"github.com/xcherryio/creditbridge/tasksource"
)

// CreditScoreDispatcher hands a locked credit check task over to the consumer:
// it publishes the handoff message keyed by the taskId, then extends the lock so that it
// outlives the async round trip. The task is left locked, the consumer completes it.
type CreditScoreDispatcher struct {
	publisher    mq.Publisher
	codec        handoff.Codec
	handoffTopic string
	cfg          config.DispatcherConfig
	logger       log.Logger
}

var _ tasksource.TaskHandler = (*CreditScoreDispatcher)(nil)

func NewCreditScoreDispatcher(
	publisher mq.Publisher, codec handoff.Codec, handoffTopic string,
	cfg config.DispatcherConfig, logger log.Logger,
) *CreditScoreDispatcher {
	return &CreditScoreDispatcher{
		publisher:    publisher,
		codec:        codec,
		handoffTopic: handoffTopic,
		cfg:          cfg,
		logger:       logger,
	}
}

func (d *CreditScoreDispatcher) Handle(
	ctx context.Context, task tasksource.LockedTask, svc tasksource.TaskService,
) error {
	logger := d.logger.WithTags(tag.TaskId(task.Id), tag.ProcessInstanceId(task.ProcessInstanceId))

	defaultScore, err := task.Variables.GetInt(handoff.VarDefaultScore)
	if err != nil {
		return fmt.Errorf("invalid credit check task: %w", err)
	}

	msg := handoff.NewMessage(task.Id, task.ProcessInstanceId, defaultScore)
	payload, err := d.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode handoff message: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()
	err = d.publisher.Publish(publishCtx, d.handoffTopic, mq.Message{
		Key:     msg.Key(),
		Payload: payload,
		Properties: map[string]string{
			handoff.ContentTypeProperty: d.codec.ContentType(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish handoff message, lock is not extended: %w", err)
	}
	logger.Info("handoff message is published", tag.Topic(d.handoffTopic), tag.DefaultScore(defaultScore))

	err = svc.ExtendLock(ctx, task, d.cfg.LockExtension)
	if err != nil {
		// the message is out already, the consumer may still complete within the original lock
		logger.Warn("failed to extend lock after handoff", tag.Error(err),
			tag.Duration(d.cfg.LockExtension))
		return nil
	}
	logger.Debug("lock is extended", tag.Duration(d.cfg.LockExtension))
	return nil
}
