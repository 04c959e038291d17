// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"

	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/tasksource"
)

type serviceImpl struct {
	cfg    config.Config
	client tasksource.Client
	logger log.Logger
}

func NewServiceImpl(cfg config.Config, client tasksource.Client, logger log.Logger) Service {
	return &serviceImpl{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

func (s serviceImpl) StartLoan(
	ctx context.Context, variables map[string]any,
) (*StartLoanResponse, *ErrorWithStatus) {
	var vars tasksource.Variables
	if len(variables) > 0 {
		vars = tasksource.UntypedVariables(variables)
	}

	key := s.cfg.TaskSource.ProcessDefinitionKey
	instance, err := s.client.StartProcess(ctx, key, vars)
	if err != nil {
		s.logger.Error("failed to start loan process", tag.Error(err), tag.Key(key))
		if tasksource.IsRejected(err) {
			return nil, NewErrorWithStatus(http.StatusBadGateway, "task source rejected the process start: "+err.Error())
		}
		return nil, NewErrorWithStatus(http.StatusBadGateway, "task source is unavailable: "+err.Error())
	}

	s.logger.Info("loan process is started", tag.ProcessInstanceId(instance.Id), tag.Key(key))
	return &StartLoanResponse{ProcessInstanceId: instance.Id}, nil
}
