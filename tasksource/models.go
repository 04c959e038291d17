// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tasksource

import (
	"time"
)

// LockTimeLayout is how the engine formats lock expiration timestamps
const LockTimeLayout = "2006-01-02T15:04:05.000-0700"

type LockedTask struct {
	Id                   string    `json:"id"`
	TopicName            string    `json:"topicName"`
	WorkerId             string    `json:"workerId"`
	ProcessInstanceId    string    `json:"processInstanceId"`
	ProcessDefinitionKey string    `json:"processDefinitionKey,omitempty"`
	LockExpirationTime   string    `json:"lockExpirationTime,omitempty"`
	Retries              *int32    `json:"retries,omitempty"`
	Variables            Variables `json:"variables,omitempty"`
}

// LockExpiration parses LockExpirationTime, returning false when absent or malformed
func (t LockedTask) LockExpiration() (time.Time, bool) {
	if t.LockExpirationTime == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{LockTimeLayout, time.RFC3339Nano} {
		if ts, err := time.Parse(layout, t.LockExpirationTime); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

type FetchTopic struct {
	TopicName string `json:"topicName"`
	// LockDuration in milliseconds
	LockDuration int64 `json:"lockDuration"`
}

type FetchAndLockRequest struct {
	WorkerId    string `json:"workerId"`
	MaxTasks    int    `json:"maxTasks"`
	UsePriority bool   `json:"usePriority"`
	// AsyncResponseTimeout in milliseconds, enables long polling
	AsyncResponseTimeout *int64       `json:"asyncResponseTimeout,omitempty"`
	Topics               []FetchTopic `json:"topics"`
}

type ExtendLockRequest struct {
	WorkerId string `json:"workerId"`
	// NewDuration in milliseconds, counted from now
	NewDuration int64 `json:"newDuration"`
}

type CompleteRequest struct {
	TaskId    string    `json:"-"`
	WorkerId  string    `json:"workerId"`
	Variables Variables `json:"variables,omitempty"`
}

type StartProcessRequest struct {
	Variables Variables `json:"variables,omitempty"`
}

type ProcessInstance struct {
	Id           string `json:"id"`
	DefinitionId string `json:"definitionId,omitempty"`
	Ended        bool   `json:"ended"`
}

// ErrorResponse is the error body of the engine REST API
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func toMillis(d time.Duration) int64 {
	return d.Milliseconds()
}
