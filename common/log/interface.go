// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"github.com/xcherryio/creditbridge/common/log/tag"
)

// Logger is the logging abstraction shared by the dispatcher, the worker and the servers.
// Usage examples:
//
//	 1) logger = logger.WithTags(
//	         tag.TaskId("t-1"),
//	         tag.WorkerId("credit-bridge"))
//	    logger.Info("lock extended")
//	 2) logger.Info("handoff published",
//	         tag.TaskId("t-1"),
//	         tag.Topic("credit-score-requests"))
//
//	 Note: msg should be static, it is not recommended to use fmt.Sprintf() for msg.
//	       Anything dynamic should be tagged.
type Logger interface {
	Debug(msg string, tags ...tag.Tag)
	Info(msg string, tags ...tag.Tag)
	Warn(msg string, tags ...tag.Tag)
	Error(msg string, tags ...tag.Tag)
	Fatal(msg string, tags ...tag.Tag)
	WithTags(tags ...tag.Tag) Logger
}
