// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"fmt"
)

// Message transfers one locked task from the dispatcher to the consumer.
// It's keyed by TaskId on the channel so that all the messages of a task land on the same consumer.
type Message struct {
	TaskId            string `json:"taskId" cbor:"taskId"`
	ProcessInstanceId string `json:"processInstanceId" cbor:"processInstanceId"`
	DefaultScore      int    `json:"defaultScore" cbor:"defaultScore"`
	// CreditScores is only set on the response direction
	CreditScores []int `json:"creditScores,omitempty" cbor:"creditScores,omitempty"`
}

func NewMessage(taskId, processInstanceId string, defaultScore int) Message {
	return Message{
		TaskId:            taskId,
		ProcessInstanceId: processInstanceId,
		DefaultScore:      defaultScore,
	}
}

// Key is the partition key on the channel
func (m Message) Key() string {
	return m.TaskId
}

// WithCreditScores returns a copy carrying the scores, m is left untouched
func (m Message) WithCreditScores(scores []int) Message {
	cp := m
	cp.CreditScores = append([]int(nil), scores...)
	return cp
}

func (m Message) Validate() error {
	if m.TaskId == "" {
		return fmt.Errorf("handoff message has no taskId")
	}
	return nil
}
