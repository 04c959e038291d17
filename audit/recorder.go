// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"time"

	"github.com/xcherryio/creditbridge/config"
)

// Record is one scoring done by the consumer and how its completion went
type Record struct {
	TaskId            string        `bson:"taskId"`
	ProcessInstanceId string        `bson:"processInstanceId"`
	WorkerId          string        `bson:"workerId"`
	DefaultScore      int           `bson:"defaultScore"`
	Score             int           `bson:"score"`
	Draws             []int         `bson:"draws"`
	Outcome           string        `bson:"outcome"`
	Reason            string        `bson:"reason,omitempty"`
	Attempts          int32         `bson:"attempts"`
	Elapsed           time.Duration `bson:"elapsedNanos"`
	RecordedAt        time.Time     `bson:"recordedAt"`
}

type Recorder interface {
	Record(ctx context.Context, record Record) error
	Close(ctx context.Context) error
}

// NewRecorder returns a recorder dropping everything unless mongo is configured
func NewRecorder(ctx context.Context, cfg config.AuditConfig) (Recorder, error) {
	if cfg.Mongo == nil {
		return NewNoopRecorder(), nil
	}
	return NewMongoRecorder(ctx, *cfg.Mongo)
}

type noopRecorder struct{}

func NewNoopRecorder() Recorder {
	return noopRecorder{}
}

func (noopRecorder) Record(context.Context, Record) error {
	return nil
}

func (noopRecorder) Close(context.Context) error {
	return nil
}
