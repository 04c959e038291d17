// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package externaltask

import (
	"context"

	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/dispatcher"
	"github.com/xcherryio/creditbridge/handoff"
	"github.com/xcherryio/creditbridge/loan"
	"github.com/xcherryio/creditbridge/mq"
	"github.com/xcherryio/creditbridge/tasksource"
	"go.uber.org/multierr"
)

// externalTaskService runs one fetch-and-lock subscription per topic:
// the credit check handoff and the two loan decisions.
type externalTaskService struct {
	subscriptions []*tasksource.Subscription
	logger        log.Logger
}

func NewExternalTaskServiceImpl(
	rootCtx context.Context, cfg config.Config, client tasksource.Client, publisher mq.Publisher,
	codec handoff.Codec, logger log.Logger,
) Service {
	handlers := []struct {
		topic   string
		handler tasksource.TaskHandler
	}{
		{
			topic: cfg.Dispatcher.Topic,
			handler: dispatcher.NewCreditScoreDispatcher(
				publisher, codec, cfg.MessageQueue.Topic, cfg.Dispatcher, logger),
		},
		{
			topic:   cfg.Dispatcher.GrantTopic,
			handler: loan.NewGrantHandler(logger),
		},
		{
			topic:   cfg.Dispatcher.RejectTopic,
			handler: loan.NewRejectHandler(logger),
		},
	}

	var subscriptions []*tasksource.Subscription
	for _, h := range handlers {
		subscriptions = append(subscriptions, tasksource.NewSubscription(
			rootCtx, h.topic, h.handler, client, cfg.WorkerId, cfg.Subscription, logger))
	}
	return &externalTaskService{
		subscriptions: subscriptions,
		logger:        logger,
	}
}

func (s *externalTaskService) Start() error {
	for _, sub := range s.subscriptions {
		if err := sub.Start(); err != nil {
			s.logger.Error("fail to start subscription", tag.Topic(sub.Topic()), tag.Error(err))
			return err
		}
	}
	return nil
}

func (s *externalTaskService) Stop(ctx context.Context) error {
	var errs error
	for _, sub := range s.subscriptions {
		errs = multierr.Append(errs, sub.Stop(ctx))
	}
	return errs
}
