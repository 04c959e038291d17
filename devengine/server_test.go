// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package devengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/tasksource"
)

// the rest client of the bridge is the client of the dev engine
func newRestFixture(t *testing.T) (tasksource.Client, *fakeClock, func()) {
	gin.SetMode(gin.TestMode)
	clock := newFakeClock()
	engine := newTestEngine(clock)
	server := httptest.NewServer(NewGinEngine("/engine-rest", engine, log.NewNopLogger()))
	client := tasksource.NewRestClient(server.URL+"/engine-rest", time.Second, log.NewNopLogger())
	return client, clock, server.Close
}

func TestRestLockTable(t *testing.T) {
	client, clock, closeF := newRestFixture(t)
	defer closeF()
	ctx := context.Background()

	instance, err := client.StartProcess(ctx, "loan_process", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, instance.Id)

	tasks, err := client.FetchAndLock(ctx, fetchRequest("w1", "creditScoreChecker"))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	taskId := tasks[0].Id
	assert.Equal(t, "w1", tasks[0].WorkerId)

	err = client.Complete(ctx, tasksource.CompleteRequest{TaskId: taskId, WorkerId: "w2", Variables: scoreVariables(5)})
	require.True(t, tasksource.IsRejected(err))
	var rejected *tasksource.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.StatusCode)
	assert.Equal(t, "BadUserRequestException", rejected.Type)
	assert.Contains(t, rejected.Message, "locked by worker w1")

	require.NoError(t, client.ExtendLock(ctx, taskId, "w1", 5*time.Minute))
	clock.Advance(4 * time.Minute)

	creditScores, err := tasksource.JsonObjectVariable([]int{3, 7, 2, 8}, "java.util.ArrayList")
	require.NoError(t, err)
	err = client.Complete(ctx, tasksource.CompleteRequest{
		TaskId:   taskId,
		WorkerId: "w1",
		Variables: tasksource.Variables{
			"score":        tasksource.IntegerVariable(5),
			"creditScores": creditScores,
		},
	})
	require.NoError(t, err)

	err = client.Complete(ctx, tasksource.CompleteRequest{TaskId: taskId, WorkerId: "w1", Variables: scoreVariables(5)})
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusNotFound, rejected.StatusCode)

	tasks, err = client.FetchAndLock(ctx, fetchRequest("w1", "loanGranter"))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	score, err := tasks[0].Variables.GetInt("score")
	require.NoError(t, err)
	assert.Equal(t, 5, score)
	assert.Equal(t, "[3,7,2,8]", tasks[0].Variables["creditScores"].Value)
}

func TestRestErrors(t *testing.T) {
	client, _, closeF := newRestFixture(t)
	defer closeF()
	ctx := context.Background()

	err := client.ExtendLock(ctx, "unknown", "w1", time.Minute)
	var rejected *tasksource.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusNotFound, rejected.StatusCode)

	_, err = client.StartProcess(ctx, "invoice", nil)
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusNotFound, rejected.StatusCode)

	_, err = client.FetchAndLock(ctx, tasksource.FetchAndLockRequest{})
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.StatusCode)
}
