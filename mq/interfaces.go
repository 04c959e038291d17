// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"context"
)

// Message is what travels on the async channel
type Message struct {
	// ID is assigned by the broker on the consumer side
	ID string
	// Key routes the message: all the messages of a key are consumed by one loop at a time
	Key        string
	Payload    []byte
	Properties map[string]string
}

// Handler processes one delivered message. The message is acknowledged after the handler
// returns whatever the error, the error is only logged.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	// Publish returns once the broker has accepted the message or ctx is done
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}

type Subscriber interface {
	// Subscribe starts the consumption loops of the group on the topic and returns.
	// Delivery is at least once, with at most one message in flight per loop.
	// Every group gets each message, and within a group it's handled by one subscriber only.
	// The subscriber leaves its group when ctx is done.
	Subscribe(ctx context.Context, topic, group string, handler Handler) error
	// Close stops the consumption loops and waits for the in-flight handlers
	Close() error
}
