// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"fmt"
	rawLog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/devengine"
	"github.com/xcherryio/creditbridge/handoff"
	"github.com/xcherryio/creditbridge/mq"
	"github.com/xcherryio/creditbridge/service/api"
	"github.com/xcherryio/creditbridge/service/consumer"
	"github.com/xcherryio/creditbridge/service/externaltask"
	"github.com/xcherryio/creditbridge/tasksource"
	"go.uber.org/multierr"
)

const ApiServiceName = "api"
const ExternalTaskServiceName = "external-task"
const ConsumerServiceName = "consumer"
const DevEngineServiceName = "devengine"

const FlagConfig = "config"
const FlagService = "service"

func StartCreditBridgeServerCli(c *cli.Context) {
	// register interrupt signal for graceful shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := c.String(FlagConfig)
	services := getServices(c)

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		rawLog.Fatalf("Unable to load config for path %v because of error %v", configPath, err)
	}
	shutdownFunc, err := StartCreditBridgeServer(rootCtx, cfg, services)
	if err != nil {
		rawLog.Fatalf("Unable to start the server because of error %v", err)
	}
	// wait for os signals
	<-rootCtx.Done()

	ctx, cancF := context.WithTimeout(context.Background(), time.Second*10)
	defer cancF()
	err = shutdownFunc(ctx)
	if err != nil {
		fmt.Println("shutdown error:", err)
	}
}

type GracefulShutdown func(ctx context.Context) error

type stoppable interface {
	Stop(ctx context.Context) error
}

// StartCreditBridgeServer starts the selected services in dependency order:
// the dev engine first, then the consumer so that it's subscribed before anything is dispatched,
// then the external task subscriptions, and the api last.
// On any startup failure the services already started are stopped and the error is returned.
func StartCreditBridgeServer(
	rootCtx context.Context, cfg *config.Config, services map[string]bool,
) (GracefulShutdown, error) {
	if len(services) == 0 {
		services = map[string]bool{ApiServiceName: true, ExternalTaskServiceName: true, ConsumerServiceName: true}
	}

	zapLogger, err := cfg.Log.NewZapLogger()
	if err != nil {
		return nil, fmt.Errorf("unable to create a new zap logger: %w", err)
	}
	logger := log.NewLogger(zapLogger)
	err = cfg.ValidateAndSetDefaults()
	if err != nil {
		return nil, fmt.Errorf("config is invalid: %w", err)
	}
	logger.Info("config is loaded", tag.Value(cfg.String()))

	var started []stoppable
	var closers []func() error
	shutdown := func(ctx context.Context) error {
		var errs error
		// stop in the reverse order of starting
		for i := len(started) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, started[i].Stop(ctx))
		}
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i]())
		}
		return errs
	}
	fail := func(err error) (GracefulShutdown, error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		return nil, multierr.Append(err, shutdown(ctx))
	}

	if services[DevEngineServiceName] {
		if cfg.DevEngine == nil {
			return fail(fmt.Errorf("devEngine config is required to start the %v service", DevEngineServiceName))
		}
		devLogger := logger.WithTags(tag.Service(DevEngineServiceName))
		store, err := newDevEngineStore(*cfg.DevEngine, devLogger)
		if err != nil {
			return fail(fmt.Errorf("error on dev engine store setup: %w", err))
		}
		closers = append(closers, store.Close)
		engine := devengine.NewEngine(store, cfg.DevEngine.ApprovalThreshold, devLogger)
		devServer := devengine.NewServer(rootCtx, *cfg.DevEngine, engine, devLogger)
		if err := devServer.Start(); err != nil {
			return fail(fmt.Errorf("failed to start dev engine server: %w", err))
		}
		started = append(started, devServer)
	}

	client := tasksource.NewRestClient(cfg.TaskSource.BaseURL, cfg.TaskSource.RequestTimeout, logger)
	codecs, err := handoff.NewCodecs()
	if err != nil {
		return fail(err)
	}

	needPublisher := services[ExternalTaskServiceName]
	needSubscriber := services[ConsumerServiceName]
	var publisher mq.Publisher
	var subscriber mq.Subscriber
	if needPublisher || needSubscriber {
		publisher, subscriber, err = newMessageQueueFunc(cfg.MessageQueue, needPublisher, needSubscriber, logger)
		if err != nil {
			return fail(fmt.Errorf("error on message queue setup: %w", err))
		}
		if publisher != nil {
			closers = append(closers, publisher.Close)
		}
		// closed by the consumer service too, closing twice is a noop
		if subscriber != nil && any(subscriber) != any(publisher) {
			closers = append(closers, subscriber.Close)
		}
	}

	if needSubscriber {
		consumerLogger := logger.WithTags(tag.Service(ConsumerServiceName))
		consumerService, err := consumer.NewConsumerServiceImpl(rootCtx, *cfg, client, subscriber, codecs, consumerLogger)
		if err != nil {
			return fail(fmt.Errorf("error on consumer setup: %w", err))
		}
		// registered before starting so that a failed start still closes its dedup and recorder
		started = append(started, consumerService)
		if err := consumerService.Start(); err != nil {
			return fail(fmt.Errorf("failed to start consumer service: %w", err))
		}
	}

	if needPublisher {
		codec, err := codecs.ForEncoding(cfg.MessageQueue.Encoding)
		if err != nil {
			return fail(err)
		}
		externalTaskService := externaltask.NewExternalTaskServiceImpl(
			rootCtx, *cfg, client, publisher, codec, logger.WithTags(tag.Service(ExternalTaskServiceName)))
		if err := externalTaskService.Start(); err != nil {
			return fail(fmt.Errorf("failed to start external task service: %w", err))
		}
		started = append(started, externalTaskService)
	}

	if services[ApiServiceName] {
		apiServer := api.NewDefaultAPIServerWithGin(
			rootCtx, *cfg, client, logger.WithTags(tag.Service(ApiServiceName)))
		if err := apiServer.Start(); err != nil {
			return fail(fmt.Errorf("failed to start api server: %w", err))
		}
		started = append(started, apiServer)
	}

	return shutdown, nil
}

func newDevEngineStore(cfg config.DevEngineConfig, logger log.Logger) (devengine.Store, error) {
	if cfg.SQL == nil {
		return devengine.NewMemoryStore(), nil
	}
	return devengine.NewSQLStore(*cfg.SQL, logger)
}

var newMessageQueueFunc = newMessageQueue

// newMessageQueue returns the publisher and the subscriber asked for.
// In inmemory mode both are the same channel.
func newMessageQueue(
	cfg config.MessageQueueConfig, needPublisher, needSubscriber bool, logger log.Logger,
) (mq.Publisher, mq.Subscriber, error) {
	switch cfg.Mode {
	case config.MessageQueueModeInMemory:
		if needPublisher != needSubscriber {
			return nil, nil, fmt.Errorf("inmemory message queue requires both %v and %v services in one process",
				ExternalTaskServiceName, ConsumerServiceName)
		}
		channel := mq.NewGoChannel(cfg.Partitions, logger)
		return channel, channel, nil
	case config.MessageQueueModePulsar:
		var publisher mq.Publisher
		var subscriber mq.Subscriber
		var err error
		if needPublisher {
			publisher, err = mq.NewPulsarPublisher(*cfg.Pulsar, logger)
			if err != nil {
				return nil, nil, err
			}
		}
		if needSubscriber {
			subscriber, err = mq.NewPulsarSubscriber(*cfg.Pulsar, cfg.Partitions, logger)
			if err != nil {
				if publisher != nil {
					err = multierr.Append(err, publisher.Close())
				}
				return nil, nil, err
			}
		}
		return publisher, subscriber, nil
	default:
		return nil, nil, fmt.Errorf("unknown message queue mode %v", cfg.Mode)
	}
}

func getServices(c *cli.Context) map[string]bool {
	val := strings.TrimSpace(c.String(FlagService))
	tokens := strings.Split(val, ",")

	if len(tokens) == 0 {
		rawLog.Fatal("No services specified for starting")
	}

	services := map[string]bool{}
	for _, token := range tokens {
		t := strings.TrimSpace(token)
		if t == "" {
			continue
		}
		services[t] = true
	}

	return services
}
