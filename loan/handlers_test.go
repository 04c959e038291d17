// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package loan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/tasksource"
)

type recordingTaskService struct {
	completeErr error
	completed   map[string]tasksource.Variables
}

func (s *recordingTaskService) ExtendLock(context.Context, tasksource.LockedTask, time.Duration) error {
	return nil
}

func (s *recordingTaskService) Complete(_ context.Context, task tasksource.LockedTask, vars tasksource.Variables) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	if s.completed == nil {
		s.completed = map[string]tasksource.Variables{}
	}
	s.completed[task.Id] = vars
	return nil
}

func TestDecisionHandlersComplete(t *testing.T) {
	for _, handler := range []*DecisionHandler{
		NewGrantHandler(log.NewNopLogger()),
		NewRejectHandler(log.NewNopLogger()),
	} {
		svc := &recordingTaskService{}
		err := handler.Handle(context.Background(), tasksource.LockedTask{
			Id:        "T1",
			Variables: tasksource.Variables{"score": tasksource.IntegerVariable(7)},
		}, svc)
		require.NoError(t, err)

		vars, ok := svc.completed["T1"]
		assert.True(t, ok)
		assert.Empty(t, vars)
	}
}

func TestDecisionHandlerRequiresScore(t *testing.T) {
	svc := &recordingTaskService{}
	err := NewGrantHandler(log.NewNopLogger()).Handle(context.Background(), tasksource.LockedTask{
		Id:        "T1",
		Variables: tasksource.Variables{"score": {Value: "high", Type: tasksource.TypeString}},
	}, svc)
	assert.ErrorIs(t, err, tasksource.ErrVariableType)
	assert.Empty(t, svc.completed)

	err = NewRejectHandler(log.NewNopLogger()).Handle(context.Background(), tasksource.LockedTask{Id: "T2"}, svc)
	assert.ErrorIs(t, err, tasksource.ErrVariableMissing)
	assert.Empty(t, svc.completed)
}

func TestDecisionHandlerCompletionFailure(t *testing.T) {
	svc := &recordingTaskService{completeErr: &tasksource.RejectedError{StatusCode: 404}}
	err := NewGrantHandler(log.NewNopLogger()).Handle(context.Background(), tasksource.LockedTask{
		Id:        "T1",
		Variables: tasksource.Variables{"score": tasksource.IntegerVariable(7)},
	}, svc)
	assert.True(t, tasksource.IsRejected(err))
}
