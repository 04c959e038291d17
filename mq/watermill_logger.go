// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"sort"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
)

type watermillLogger struct {
	logger log.Logger
}

// NewWatermillLogger routes watermill logs into the service logger, trace goes to debug
func NewWatermillLogger(logger log.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(msg, append(toTags(fields), tag.Error(err))...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info(msg, toTags(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, toTags(fields)...)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, toTags(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: l.logger.WithTags(toTags(fields)...)}
}

func toTags(fields watermill.LogFields) []tag.Tag {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]tag.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, tag.Detail(k, fields[k]))
	}
	return tags
}
