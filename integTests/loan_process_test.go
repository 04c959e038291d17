// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package integTests

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/handoff"
	"github.com/xcherryio/creditbridge/tasksource"
)

func devEngineBaseURL() string {
	return "http://" + *devEngineAddress + "/engine-rest"
}

func getJSON(t *testing.T, url string, out any) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func getProcess(t *testing.T, processId string) tasksource.ProcessInstance {
	var instance tasksource.ProcessInstance
	getJSON(t, fmt.Sprintf("%v/process-instance/%v", devEngineBaseURL(), processId), &instance)
	return instance
}

func getProcessVariables(t *testing.T, processId string) tasksource.Variables {
	var vars tasksource.Variables
	getJSON(t, fmt.Sprintf("%v/process-instance/%v/variables", devEngineBaseURL(), processId), &vars)
	return vars
}

func TestStartLoanEndpoint(t *testing.T) {
	resp, err := http.Post("http://"+*apiAddress+"/start-loan", "application/json",
		strings.NewReader(`{"defaultScore": 5}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "credit checker started", string(body))
}

func TestStartLoanEndpointRejectsNonObjectBody(t *testing.T) {
	resp, err := http.Post("http://"+*apiAddress+"/start-loan", "application/json",
		strings.NewReader(`[1, 2]`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoanProcessIsDecidedByTheCreditScore(t *testing.T) {
	client := tasksource.NewRestClient(devEngineBaseURL(), 5*time.Second, log.NewNopLogger())
	instance, err := client.StartProcess(context.Background(), "loan_process", tasksource.Variables{
		handoff.VarDefaultScore: tasksource.IntegerVariable(5),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return getProcess(t, instance.Id).Ended
	}, 10*time.Second, 100*time.Millisecond)

	vars := getProcessVariables(t, instance.Id)
	score, err := vars.GetInt(handoff.VarScore)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 1)
	assert.LessOrEqual(t, score, 10)

	raw, ok := vars[handoff.VarCreditScores].Value.(string)
	require.True(t, ok)
	var draws []int
	require.NoError(t, json.Unmarshal([]byte(raw), &draws))
	require.Len(t, draws, 4)
	sum := 0
	for _, d := range draws {
		assert.GreaterOrEqual(t, d, 1)
		assert.LessOrEqual(t, d, 10)
		sum += d
	}
	assert.Equal(t, sum/4, score)
}
