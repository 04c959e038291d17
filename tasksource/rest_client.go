// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tasksource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/xcherryio/creditbridge/common/httperror"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/common/urlautofix"
)

const maxErrorBodySize = 4096

type restClient struct {
	baseURL        string
	requestTimeout time.Duration
	httpClient     *http.Client
	logger         log.Logger
}

// NewRestClient talks to the engine REST API rooted at baseURL.
// Every call is bounded by requestTimeout, the fetch additionally by its long polling timeout.
func NewRestClient(baseURL string, requestTimeout time.Duration, logger log.Logger) Client {
	return NewRestClientWithHttpClient(baseURL, requestTimeout, &http.Client{}, logger)
}

func NewRestClientWithHttpClient(
	baseURL string, requestTimeout time.Duration, httpClient *http.Client, logger log.Logger,
) Client {
	return &restClient{
		baseURL:        urlautofix.FixTaskSourceUrl(baseURL),
		requestTimeout: requestTimeout,
		httpClient:     httpClient,
		logger:         logger,
	}
}

func (c *restClient) FetchAndLock(ctx context.Context, request FetchAndLockRequest) ([]LockedTask, error) {
	timeout := c.requestTimeout
	if request.AsyncResponseTimeout != nil {
		timeout += time.Duration(*request.AsyncResponseTimeout) * time.Millisecond
	}
	var tasks []LockedTask
	err := c.post(ctx, timeout, "/external-task/fetchAndLock", request, &tasks)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *restClient) ExtendLock(ctx context.Context, taskId, workerId string, newDuration time.Duration) error {
	return c.post(ctx, c.requestTimeout,
		"/external-task/"+url.PathEscape(taskId)+"/extendLock",
		ExtendLockRequest{
			WorkerId:    workerId,
			NewDuration: toMillis(newDuration),
		}, nil)
}

func (c *restClient) Complete(ctx context.Context, request CompleteRequest) error {
	return c.post(ctx, c.requestTimeout,
		"/external-task/"+url.PathEscape(request.TaskId)+"/complete",
		request, nil)
}

func (c *restClient) StartProcess(
	ctx context.Context, processDefinitionKey string, variables Variables,
) (*ProcessInstance, error) {
	var instance ProcessInstance
	err := c.post(ctx, c.requestTimeout,
		"/process-definition/key/"+url.PathEscape(processDefinitionKey)+"/start",
		StartProcessRequest{Variables: variables}, &instance)
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (c *restClient) post(ctx context.Context, timeout time.Duration, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request for %v: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if httpResp != nil {
		defer httpResp.Body.Close()
	}
	if httperror.CheckHttpResponseAndError(err, httpResp, c.logger) {
		return c.composeError(err, httpResp)
	}

	if out == nil || httpResp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil && err != io.EOF {
		return &TransportError{StatusCode: httpResp.StatusCode, Cause: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}

func (c *restClient) composeError(err error, httpResp *http.Response) error {
	if err != nil {
		return &TransportError{Cause: err}
	}

	body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodySize))
	if !httperror.IsClientError(httpResp.StatusCode) {
		c.logger.Warn("task source responded with server error",
			tag.StatusCode(httpResp.StatusCode), tag.Value(string(body)))
		return &TransportError{StatusCode: httpResp.StatusCode, Cause: fmt.Errorf("%s", body)}
	}

	rejected := &RejectedError{StatusCode: httpResp.StatusCode}
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil {
		rejected.Type = errResp.Type
		rejected.Message = errResp.Message
	} else {
		rejected.Message = string(body)
	}
	return rejected
}
