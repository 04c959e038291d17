// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package backoff

import (
	"math"
	"time"
)

// RetryPolicy is an exponential backoff policy.
// MaximumAttempts counts the first attempt, so 1 means no retry. It is always bounded:
// whatever retries happen must fit into the lock window of the task.
type RetryPolicy struct {
	InitialInterval    time.Duration `yaml:"initialInterval"`
	BackoffCoefficient float64       `yaml:"backoffCoefficient"`
	MaximumInterval    time.Duration `yaml:"maximumInterval"`
	MaximumAttempts    int32         `yaml:"maximumAttempts"`
}

// Default: single attempt, 1 second initial interval, 30 seconds max interval, and 2 backoff factor
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval:    time.Second,
	BackoffCoefficient: 2,
	MaximumInterval:    30 * time.Second,
	MaximumAttempts:    1,
}

// WithDefaults fills the zero fields from DefaultRetryPolicy
func (p RetryPolicy) WithDefaults() RetryPolicy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if p.BackoffCoefficient < 1 {
		p.BackoffCoefficient = DefaultRetryPolicy.BackoffCoefficient
	}
	if p.MaximumInterval <= 0 {
		p.MaximumInterval = DefaultRetryPolicy.MaximumInterval
	}
	if p.MaximumAttempts <= 0 {
		p.MaximumAttempts = DefaultRetryPolicy.MaximumAttempts
	}
	return p
}

// GetNextBackoff returns how long to wait before the next attempt,
// given how many attempts have already completed.
func GetNextBackoff(completedAttempts int32, policy RetryPolicy) (next time.Duration, shouldRetry bool) {
	policy = policy.WithDefaults()
	if completedAttempts >= policy.MaximumAttempts {
		return 0, false
	}
	if completedAttempts < 1 {
		completedAttempts = 1
	}
	next = time.Duration(float64(policy.InitialInterval) * math.Pow(policy.BackoffCoefficient, float64(completedAttempts-1)))
	if next > policy.MaximumInterval || next <= 0 {
		next = policy.MaximumInterval
	}
	return next, true
}

// MaxTotalBackoff is the sum of all the waits of the policy
func MaxTotalBackoff(policy RetryPolicy) time.Duration {
	policy = policy.WithDefaults()
	var total time.Duration
	for attempts := int32(1); attempts < policy.MaximumAttempts; attempts++ {
		next, _ := GetNextBackoff(attempts, policy)
		total += next
	}
	return total
}
