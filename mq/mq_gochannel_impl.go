// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
)

const metadataKey = "key"

// GoChannel is the in-process channel for running the dispatcher and the consumer
// in one binary. Messages published while no group is subscribed are dropped.
//
// Every watermill subscription receives every message, so a group opens one watermill
// subscription per partition and each of them only handles the keys hashed to it.
// Watermill delivers the next message to a subscription only after the previous one is acked,
// which gives one message in flight per partition.
// Subscribing again into a group adds a member: the partitions of the group are spread over
// its members, and a member leaves when its subscribe ctx is done.
type GoChannel struct {
	pubSub     *gochannel.GoChannel
	partitions int
	logger     log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	lock   sync.Mutex
	groups map[groupKey]*consumerGroup
}

type groupKey struct {
	topic string
	group string
}

type consumerGroup struct {
	cancel  context.CancelFunc
	lock    sync.RWMutex
	members []*groupMember
}

type groupMember struct {
	handler Handler
}

// handlerOf returns the handler of the member owning the partition
func (cg *consumerGroup) handlerOf(partition int) (Handler, bool) {
	cg.lock.RLock()
	defer cg.lock.RUnlock()
	if len(cg.members) == 0 {
		return nil, false
	}
	return cg.members[partition%len(cg.members)].handler, true
}

func (cg *consumerGroup) size() int {
	cg.lock.RLock()
	defer cg.lock.RUnlock()
	return len(cg.members)
}

func (cg *consumerGroup) join(member *groupMember) {
	cg.lock.Lock()
	defer cg.lock.Unlock()
	cg.members = append(cg.members, member)
}

// leave returns the number of members left
func (cg *consumerGroup) leave(member *groupMember) int {
	cg.lock.Lock()
	defer cg.lock.Unlock()
	for i, m := range cg.members {
		if m == member {
			cg.members = append(cg.members[:i], cg.members[i+1:]...)
			break
		}
	}
	return len(cg.members)
}

var _ Publisher = (*GoChannel)(nil)
var _ Subscriber = (*GoChannel)(nil)

func NewGoChannel(partitions int, logger log.Logger) *GoChannel {
	if partitions <= 0 {
		partitions = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GoChannel{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            int64(partitions),
				BlockPublishUntilSubscriberAck: false,
			},
			NewWatermillLogger(logger),
		),
		partitions: partitions,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		groups:     map[groupKey]*consumerGroup{},
	}
}

func (g *GoChannel) Publish(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Properties {
		wmMsg.Metadata.Set(k, v)
	}
	wmMsg.Metadata.Set(metadataKey, msg.Key)
	return g.pubSub.Publish(topic, wmMsg)
}

func (g *GoChannel) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if err := g.ctx.Err(); err != nil {
		return fmt.Errorf("in-memory channel is closed: %w", err)
	}

	key := groupKey{topic: topic, group: group}
	cg, ok := g.groups[key]
	if !ok {
		var err error
		cg, err = g.openGroup(topic, group)
		if err != nil {
			return err
		}
		g.groups[key] = cg
	}

	member := &groupMember{handler: handler}
	cg.join(member)
	context.AfterFunc(ctx, func() {
		g.leaveGroup(key, cg, member)
	})
	g.logger.Info("subscribed to in-memory topic",
		tag.Topic(topic), tag.Group(group), tag.Count(cg.size()))
	return nil
}

// openGroup starts the partition loops of a group, with no member yet
func (g *GoChannel) openGroup(topic, group string) (*consumerGroup, error) {
	groupCtx, cancel := context.WithCancel(g.ctx)
	cg := &consumerGroup{cancel: cancel}
	for partition := 0; partition < g.partitions; partition++ {
		msgs, err := g.pubSub.Subscribe(groupCtx, topic)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to subscribe partition %v of topic %v: %w", partition, topic, err)
		}
		logger := g.logger.WithTags(tag.Topic(topic), tag.Group(group), tag.Partition(partition))
		g.wg.Add(1)
		go g.consume(groupCtx, partition, msgs, cg, logger)
	}
	return cg, nil
}

// leaveGroup removes the member, the group is closed with its last member
func (g *GoChannel) leaveGroup(key groupKey, cg *consumerGroup, member *groupMember) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if cg.leave(member) > 0 {
		return
	}
	cg.cancel()
	if g.groups[key] == cg {
		delete(g.groups, key)
	}
	g.logger.Info("in-memory consumer group is closed", tag.Topic(key.topic), tag.Group(key.group))
}

func (g *GoChannel) consume(
	ctx context.Context, partition int, msgs <-chan *message.Message, cg *consumerGroup, logger log.Logger,
) {
	defer g.wg.Done()
	handlerCtx := context.WithoutCancel(ctx)
	for wmMsg := range msgs {
		msg := fromWatermill(wmMsg)
		if PartitionOf(msg.Key, g.partitions) == partition {
			if handler, ok := cg.handlerOf(partition); ok {
				handle(handlerCtx, handler, msg, logger)
			} else {
				logger.Warn("no member to handle message, dropping it", tag.ID(msg.ID), tag.Key(msg.Key))
			}
		}
		wmMsg.Ack()
	}
	logger.Info("message channel is closed")
}

func (g *GoChannel) Close() error {
	g.closeOnce.Do(func() {
		g.lock.Lock()
		g.cancel()
		g.lock.Unlock()
		g.closeErr = g.pubSub.Close()
		g.wg.Wait()
	})
	return g.closeErr
}

func fromWatermill(wmMsg *message.Message) Message {
	props := make(map[string]string, len(wmMsg.Metadata))
	for k, v := range wmMsg.Metadata {
		if k != metadataKey {
			props[k] = v
		}
	}
	return Message{
		ID:         wmMsg.UUID,
		Key:        wmMsg.Metadata.Get(metadataKey),
		Payload:    wmMsg.Payload,
		Properties: props,
	}
}

// handle runs the handler of one message, errors and panics are logged
func handle(ctx context.Context, handler Handler, msg Message, logger log.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling message",
				tag.ID(msg.ID), tag.Key(msg.Key), tag.Value(r), tag.Message(string(debug.Stack())))
		}
	}()
	if err := handler(ctx, msg); err != nil {
		logger.Error("failed to handle message, it is acked anyway",
			tag.Error(err), tag.ID(msg.ID), tag.Key(msg.Key))
	}
}
