// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package tag

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const LoggingCallAtKey = "logging-call-at"

// Tag is the interface for logging system
type Tag struct {
	// keep this field private
	field zap.Field
}

// Field returns a zap field
func (t *Tag) Field() zap.Field {
	return t.field
}

func newStringTag(key string, value string) Tag {
	return Tag{
		field: zap.String(key, value),
	}
}

func newInt64(key string, value int64) Tag {
	return Tag{
		field: zap.Int64(key, value),
	}
}

func newInt(key string, value int) Tag {
	return Tag{
		field: zap.Int(key, value),
	}
}

func newDurationTag(key string, value time.Duration) Tag {
	return Tag{
		field: zap.Duration(key, value),
	}
}

func newTimeTag(key string, value time.Time) Tag {
	return Tag{
		field: zap.Time(key, value),
	}
}

func newObjectTag(key string, value interface{}) Tag {
	return Tag{
		field: zap.String(key, fmt.Sprintf("%v", value)),
	}
}

func newErrorTag(value error) Tag {
	//NOTE zap already chosen "error" as key
	return Tag{
		field: zap.Error(value),
	}
}

// TAGS

func Error(err error) Tag {
	return newErrorTag(err)
}

func Service(sv string) Tag {
	return newStringTag("service", sv)
}

func Message(msg string) Tag {
	return newStringTag("message", msg)
}

func TaskId(id string) Tag {
	return newStringTag("taskId", id)
}

func ProcessInstanceId(id string) Tag {
	return newStringTag("processInstanceId", id)
}

func WorkerId(id string) Tag {
	return newStringTag("workerId", id)
}

func Topic(topic string) Tag {
	return newStringTag("topic", topic)
}

func Group(group string) Tag {
	return newStringTag("group", group)
}

func Partition(p int) Tag {
	return newInt("partition", p)
}

func Score(score int) Tag {
	return newInt("score", score)
}

func DefaultScore(score int) Tag {
	return newInt("defaultScore", score)
}

func Draws(draws []int) Tag {
	return newObjectTag("draws", draws)
}

func Outcome(outcome string) Tag {
	return newStringTag("outcome", outcome)
}

func Attempt(attempt int32) Tag {
	return newInt64("attempt", int64(attempt))
}

func Count(c int) Tag {
	return newInt("count", c)
}

func Duration(d time.Duration) Tag {
	return newDurationTag("duration", d)
}

func LockExpiration(t time.Time) Tag {
	return newTimeTag("lockExpiration", t)
}

func StatusCode(status int) Tag {
	return newInt("status", status)
}

func AnyToStr(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

func Value(v interface{}) Tag {
	return newObjectTag("value", v)
}

func ID(v string) Tag {
	return newStringTag("ID", v)
}

func Key(v string) Tag {
	return newStringTag("Key", v)
}

func URL(v string) Tag {
	return newStringTag("url", v)
}

func DefaultValue(v interface{}) Tag {
	return newObjectTag("default-value", v)
}

// Detail carries a field of a third-party logger under its own key
func Detail(key string, v interface{}) Tag {
	return newObjectTag(key, v)
}
