// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package mq

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/config"
)

func newPulsarClient(cfg config.PulsarConfig) (pulsar.Client, error) {
	return pulsar.NewClient(pulsar.ClientOptions{
		URL:               cfg.URL,
		OperationTimeout:  cfg.OperationTimeout,
		ConnectionTimeout: cfg.ConnectionTimeout,
	})
}

type pulsarPublisher struct {
	cfg       config.PulsarConfig
	client    pulsar.Client
	producers map[string]pulsar.Producer
	lock      sync.Mutex
	logger    log.Logger
}

// NewPulsarPublisher creates the producers lazily, one per topic
func NewPulsarPublisher(cfg config.PulsarConfig, logger log.Logger) (Publisher, error) {
	client, err := newPulsarClient(cfg)
	if err != nil {
		return nil, err
	}
	return &pulsarPublisher{
		cfg:       cfg,
		client:    client,
		producers: map[string]pulsar.Producer{},
		logger:    logger,
	}, nil
}

func (p *pulsarPublisher) Publish(ctx context.Context, topic string, msg Message) error {
	producer, err := p.getProducer(topic)
	if err != nil {
		return err
	}
	msgId, err := producer.Send(ctx, &pulsar.ProducerMessage{
		Key:        msg.Key,
		Payload:    msg.Payload,
		Properties: msg.Properties,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to topic %v: %w", topic, err)
	}
	p.logger.Debug("message is sent", tag.Topic(topic), tag.Key(msg.Key), tag.ID(msgId.String()))
	return nil
}

func (p *pulsarPublisher) getProducer(topic string) (pulsar.Producer, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if producer, ok := p.producers[topic]; ok {
		return producer, nil
	}
	producer, err := p.client.CreateProducer(pulsar.ProducerOptions{
		Topic:       topic,
		SendTimeout: p.cfg.SendTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer of topic %v: %w", topic, err)
	}
	p.producers[topic] = producer
	return producer, nil
}

func (p *pulsarPublisher) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, producer := range p.producers {
		producer.Close()
	}
	p.producers = map[string]pulsar.Producer{}
	p.client.Close()
	return nil
}

type pulsarSubscriber struct {
	cfg        config.PulsarConfig
	partitions int
	client     pulsar.Client
	consumers  []pulsar.Consumer
	lock       sync.Mutex
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
	logger     log.Logger
}

// NewPulsarSubscriber opens partitions consumers per subscription on a Key_Shared subscription,
// so a key is delivered to one consumer of the group at a time
func NewPulsarSubscriber(cfg config.PulsarConfig, partitions int, logger log.Logger) (Subscriber, error) {
	client, err := newPulsarClient(cfg)
	if err != nil {
		return nil, err
	}
	if partitions <= 0 {
		partitions = 1
	}
	return &pulsarSubscriber{
		cfg:        cfg,
		partitions: partitions,
		client:     client,
		stopCh:     make(chan struct{}),
		logger:     logger,
	}, nil
}

func (p *pulsarSubscriber) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	for partition := 0; partition < p.partitions; partition++ {
		consumer, err := p.client.Subscribe(pulsar.ConsumerOptions{
			Topic:                       topic,
			SubscriptionName:            group,
			Type:                        pulsar.KeyShared,
			SubscriptionInitialPosition: pulsar.SubscriptionPositionEarliest,
			ReceiverQueueSize:           p.cfg.ReceiverQueueSize,
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe %v to topic %v: %w", group, topic, err)
		}
		p.consumers = append(p.consumers, consumer)

		logger := p.logger.WithTags(tag.Topic(topic), tag.Group(group), tag.Partition(partition))
		p.wg.Add(1)
		go p.processMessages(ctx, consumer, handler, logger)
	}
	p.logger.Info("subscribed to pulsar topic",
		tag.Topic(topic), tag.Group(group), tag.Count(p.partitions))
	return nil
}

func (p *pulsarSubscriber) processMessages(
	ctx context.Context, consumer pulsar.Consumer, handler Handler, logger log.Logger,
) {
	defer p.wg.Done()
	handlerCtx := context.WithoutCancel(ctx)
	msgCh := consumer.Chan()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				logger.Info("message channel is closed")
				return
			}
			handle(handlerCtx, handler, Message{
				ID:         msg.ID().String(),
				Key:        msg.Key(),
				Payload:    msg.Payload(),
				Properties: msg.Properties(),
			}, logger)
			err := consumer.Ack(msg)
			if err != nil {
				logger.Error("failed to ack the message after processing",
					tag.Error(err),
					tag.ID(msg.ID().String()),
					tag.Key(msg.Key()))
			}
		case <-ctx.Done():
			// leave the group so the keys move to the other consumers
			consumer.Close()
			logger.Info("message processor is cancelled")
			return
		case <-p.stopCh:
			logger.Info("message processor is closed")
			return
		}
	}
}

func (p *pulsarSubscriber) Close() error {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()

		p.lock.Lock()
		defer p.lock.Unlock()
		for _, consumer := range p.consumers {
			consumer.Close()
		}
		p.client.Close()
	})
	return nil
}
