// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package loan

import (
	"context"
	"fmt"

	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/handoff"
	"github.com/xcherryio/creditbridge/tasksource"
)

type Decision string

const (
	DecisionGranted  Decision = "granted"
	DecisionRejected Decision = "rejected"
)

// DecisionHandler completes a loan decision task right away, without variables.
// The score is only read to be logged, a task without a valid score is left locked to expire.
type DecisionHandler struct {
	decision Decision
	logger   log.Logger
}

var _ tasksource.TaskHandler = (*DecisionHandler)(nil)

func NewGrantHandler(logger log.Logger) *DecisionHandler {
	return &DecisionHandler{decision: DecisionGranted, logger: logger}
}

func NewRejectHandler(logger log.Logger) *DecisionHandler {
	return &DecisionHandler{decision: DecisionRejected, logger: logger}
}

func (h *DecisionHandler) Handle(ctx context.Context, task tasksource.LockedTask, svc tasksource.TaskService) error {
	score, err := task.Variables.GetInt(handoff.VarScore)
	if err != nil {
		return fmt.Errorf("invalid loan decision task: %w", err)
	}
	if err := svc.Complete(ctx, task, nil); err != nil {
		return fmt.Errorf("failed to complete loan decision task: %w", err)
	}
	h.logger.Info("loan decision is made",
		tag.TaskId(task.Id), tag.ProcessInstanceId(task.ProcessInstanceId),
		tag.Outcome(string(h.decision)), tag.Score(score))
	return nil
}
