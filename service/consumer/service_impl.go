// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"

	"github.com/xcherryio/creditbridge/audit"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/completion"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/dedup"
	"github.com/xcherryio/creditbridge/handoff"
	"github.com/xcherryio/creditbridge/mq"
	"github.com/xcherryio/creditbridge/tasksource"
	"github.com/xcherryio/creditbridge/worker"
	"go.uber.org/multierr"
)

// consumerService consumes the handoff topic as a member of the subscription group
type consumerService struct {
	rootCtx    context.Context
	cfg        config.Config
	subscriber mq.Subscriber
	consumer   *worker.CreditScoreConsumer
	dedup      dedup.Deduplicator
	recorder   audit.Recorder
	logger     log.Logger
}

func NewConsumerServiceImpl(
	rootCtx context.Context, cfg config.Config, client tasksource.Client, subscriber mq.Subscriber,
	codecs *handoff.Codecs, logger log.Logger,
) (Service, error) {
	deduplicator, err := dedup.NewDeduplicator(cfg.Worker.Dedup)
	if err != nil {
		return nil, err
	}
	recorder, err := audit.NewRecorder(rootCtx, cfg.Worker.Audit)
	if err != nil {
		return nil, multierr.Append(err, deduplicator.Close())
	}

	consumer := worker.NewCreditScoreConsumer(
		cfg.WorkerId,
		codecs,
		worker.NewRandomAverageScorer(cfg.Worker.Scorer),
		completion.NewClient(client, cfg.Completion, logger),
		deduplicator,
		recorder,
		logger,
	)
	return &consumerService{
		rootCtx:    rootCtx,
		cfg:        cfg,
		subscriber: subscriber,
		consumer:   consumer,
		dedup:      deduplicator,
		recorder:   recorder,
		logger:     logger,
	}, nil
}

func (s *consumerService) Start() error {
	mqCfg := s.cfg.MessageQueue
	err := s.subscriber.Subscribe(s.rootCtx, mqCfg.Topic, mqCfg.SubscriptionGroup, s.consumer.Handle)
	if err != nil {
		s.logger.Error("fail to subscribe to handoff topic", tag.Topic(mqCfg.Topic), tag.Error(err))
		return err
	}
	return nil
}

func (s *consumerService) Stop(ctx context.Context) error {
	return multierr.Combine(
		s.subscriber.Close(),
		s.dedup.Close(),
		s.recorder.Close(ctx),
	)
}
