// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/xcherryio/creditbridge/common/backoff"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		// Log is the logging config
		Log Logger `yaml:"log"`

		// WorkerId is the lock owner identity. The dispatcher fetches and extends locks with it,
		// and the consumer must complete with the very same value, otherwise the
		// Task Source rejects the completion.
		WorkerId string `yaml:"workerId"`

		// TaskSource is how to reach the REST API of the workflow engine
		TaskSource TaskSourceConfig `yaml:"taskSource"`

		// MessageQueue is the async channel between dispatcher and consumer
		MessageQueue MessageQueueConfig `yaml:"messageQueue"`

		// Subscription is the fetch-and-lock loop config, shared by all the topics
		Subscription SubscriptionConfig `yaml:"subscription"`

		// Dispatcher is the config of the creditScoreChecker handoff
		Dispatcher DispatcherConfig `yaml:"dispatcher"`

		// Completion is the config of the completion client used by the consumer
		Completion CompletionConfig `yaml:"completion"`

		// Worker is the config of the credit score consumer
		Worker WorkerConfig `yaml:"worker"`

		// ApiService is the config of the server exposing the start-loan endpoint
		ApiService ApiServiceConfig `yaml:"apiService"`

		// DevEngine is an optional reference Task Source for local runs
		DevEngine *DevEngineConfig `yaml:"devEngine"`
	}

	TaskSourceConfig struct {
		// BaseURL is the REST root of the engine, e.g. http://localhost:8080/engine-rest
		BaseURL string `yaml:"baseUrl"`
		// RequestTimeout bounds every call made to the engine except the long polling fetch.
		// Default is 5 seconds.
		RequestTimeout time.Duration `yaml:"requestTimeout"`
		// ProcessDefinitionKey is the process started by the start-loan endpoint.
		// Default is loan_process.
		ProcessDefinitionKey string `yaml:"processDefinitionKey"`
	}

	MessageQueueConfig struct {
		// Mode is either pulsar or inmemory. Default is inmemory, which only works when
		// the dispatcher and the consumer run in the same process.
		Mode MessageQueueMode `yaml:"mode"`
		// Topic carries the handoff messages. Default is credit-score-requests.
		Topic string `yaml:"topic"`
		// SubscriptionGroup is the consumer group. Default is credit-score-group.
		SubscriptionGroup string `yaml:"subscriptionGroup"`
		// Partitions is the number of consumption loops per consumer process.
		// Each loop has at most one message in flight. Default is 4.
		Partitions int `yaml:"partitions"`
		// Encoding of the handoff message, json or cbor. Default is json.
		Encoding string `yaml:"encoding"`
		// Pulsar is required when Mode is pulsar
		Pulsar *PulsarConfig `yaml:"pulsar"`
	}

	PulsarConfig struct {
		// URL of the pulsar service, e.g. pulsar://localhost:6650
		URL string `yaml:"url"`
		// OperationTimeout is the producer-create/subscribe timeout. Default is 30 seconds.
		OperationTimeout time.Duration `yaml:"operationTimeout"`
		// ConnectionTimeout is the TCP connection timeout. Default is 5 seconds.
		ConnectionTimeout time.Duration `yaml:"connectionTimeout"`
		// SendTimeout is the producer's own retry budget for one message.
		// Default is the dispatcher publish timeout.
		SendTimeout time.Duration `yaml:"sendTimeout"`
		// ReceiverQueueSize is the prefetch size per consumer. Default is 1.
		ReceiverQueueSize int `yaml:"receiverQueueSize"`
	}

	SubscriptionConfig struct {
		// MaxTasks is the max number of tasks locked by one fetch. Default is 10.
		MaxTasks int `yaml:"maxTasks"`
		// LockDuration is the lock granted at fetch time. The dispatcher must publish and
		// extend within it. Default is 20 seconds.
		LockDuration time.Duration `yaml:"lockDuration"`
		// AsyncResponseTimeout enables long polling on the engine when it's positive
		AsyncResponseTimeout time.Duration `yaml:"asyncResponseTimeout"`
		// PollInterval is the wait after an empty fetch. Default is 500 milliseconds.
		PollInterval time.Duration `yaml:"pollInterval"`
		// MaxPollInterval caps the backoff after failed fetches. Default is 10 seconds.
		MaxPollInterval time.Duration `yaml:"maxPollInterval"`
		// ProcessorConcurrency is the number of goroutines handling fetched tasks per topic.
		// Default is 4.
		ProcessorConcurrency int `yaml:"processorConcurrency"`
		// ProcessorBufferSize is the buffer between the poller and the processors.
		// Default is 100.
		ProcessorBufferSize int `yaml:"processorBufferSize"`
	}

	DispatcherConfig struct {
		// Topic is the external task topic handed off to the consumer.
		// Default is creditScoreChecker.
		Topic string `yaml:"topic"`
		// LockExtension is the new lock duration requested right after publishing.
		// It must outlive the whole async round trip. Default is 5 minutes.
		LockExtension time.Duration `yaml:"lockExtension"`
		// PublishTimeout bounds one publish call. Default is 5 seconds.
		PublishTimeout time.Duration `yaml:"publishTimeout"`
		// GrantTopic and RejectTopic are the direct-completion topics.
		// Defaults are loanGranter and requestRejecter.
		GrantTopic  string `yaml:"grantTopic"`
		RejectTopic string `yaml:"rejectTopic"`
	}

	CompletionConfig struct {
		// Timeout bounds one completion attempt. Default is 5 seconds.
		Timeout time.Duration `yaml:"timeout"`
		// RetryPolicy applies to transport errors only; rejections are never retried.
		// Default is a single attempt.
		RetryPolicy backoff.RetryPolicy `yaml:"retryPolicy"`
	}

	WorkerConfig struct {
		Scorer ScorerConfig `yaml:"scorer"`
		// ScoringBudget is the expected upper bound of the scoring itself.
		// Default is 1 second.
		ScoringBudget time.Duration `yaml:"scoringBudget"`
		Dedup         DedupConfig   `yaml:"dedup"`
		Audit         AuditConfig   `yaml:"audit"`
	}

	ScorerConfig struct {
		// Draws is the number of random integers averaged. Default is 4.
		Draws int `yaml:"draws"`
		// Low and High are the closed range of a draw. Defaults are 1 and 10.
		Low  int `yaml:"low"`
		High int `yaml:"high"`
	}

	DedupConfig struct {
		// Mode is none, memory or redis. Default is memory.
		Mode DedupMode `yaml:"mode"`
		// Window is how long a claimed taskId is remembered. Default is the lock extension.
		Window time.Duration `yaml:"window"`
		Redis  *RedisConfig  `yaml:"redis"`
	}

	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password" json:"-"`
		DB       int    `yaml:"db"`
		// KeyPrefix default is creditbridge:dedup:
		KeyPrefix string `yaml:"keyPrefix"`
	}

	AuditConfig struct {
		// Mongo enables recording every scoring into a collection
		Mongo *MongoConfig `yaml:"mongo"`
	}

	MongoConfig struct {
		URI        string `yaml:"uri"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
	}

	ApiServiceConfig struct {
		// HttpServer is the config for starting http.Server
		HttpServer HttpServerConfig `yaml:"httpServer"`
	}

	DevEngineConfig struct {
		HttpServer HttpServerConfig `yaml:"httpServer"`
		// BasePath is the REST root. Default is /engine-rest.
		BasePath string `yaml:"basePath"`
		// ApprovalThreshold routes a completed credit check to loanGranter when
		// score >= threshold, otherwise to requestRejecter. Default is 5.
		ApprovalThreshold int `yaml:"approvalThreshold"`
		// SQL stores the lock table in postgres. In memory when nil.
		SQL *SQL `yaml:"sql"`
	}

	// HttpServerConfig is the config that will be mapped into http.Server
	HttpServerConfig struct {
		// Address optionally specifies the TCP address for the server to listen on,
		// in the form "host:port". If empty, ":http" (port 80) is used.
		Address string `yaml:"address"`
		// ReadTimeout is the maximum duration for reading the entire
		// request, including the body.
		ReadTimeout time.Duration `yaml:"readTimeout"`
		// WriteTimeout is the maximum duration before timing out
		// writes of the response.
		// For more details, see https://blog.cloudflare.com/the-complete-guide-to-golang-net-http-timeouts/
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		// TLSConfig optionally provides a TLS configuration for use
		// by ServeTLS and ListenAndServeTLS
		TLSConfig *tls.Config `yaml:"tlsConfig"`
		// the rest are less frequently used
		ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
		IdleTimeout       time.Duration `yaml:"idleTimeout"`
		MaxHeaderBytes    int           `yaml:"maxHeaderBytes"`
	}

	MessageQueueMode string
	DedupMode        string
)

const (
	MessageQueueModePulsar   MessageQueueMode = "pulsar"
	MessageQueueModeInMemory MessageQueueMode = "inmemory"

	DedupModeNone   DedupMode = "none"
	DedupModeMemory DedupMode = "memory"
	DedupModeRedis  DedupMode = "redis"

	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

const (
	DefaultWorkerId          = "credit-bridge"
	DefaultTaskSourceBaseURL = "http://localhost:8080/engine-rest"
	DefaultProcessKey        = "loan_process"
	DefaultHandoffTopic      = "credit-score-requests"
	DefaultSubscriptionGroup = "credit-score-group"
	DefaultDispatchTopic     = "creditScoreChecker"
	DefaultGrantTopic        = "loanGranter"
	DefaultRejectTopic       = "requestRejecter"
	DefaultLockExtension     = 5 * time.Minute
)

// NewConfig returns a new decoded Config struct
func NewConfig(configPath string) (*Config, error) {
	log.Printf("Loading configFile=%v\n", configPath)

	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)

	if err := d.Decode(&config); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) ValidateAndSetDefaults() error {
	if c.WorkerId == "" {
		c.WorkerId = DefaultWorkerId
	}

	ts := &c.TaskSource
	if ts.BaseURL == "" {
		ts.BaseURL = DefaultTaskSourceBaseURL
	}
	if ts.RequestTimeout == 0 {
		ts.RequestTimeout = 5 * time.Second
	}
	if ts.ProcessDefinitionKey == "" {
		ts.ProcessDefinitionKey = DefaultProcessKey
	}

	mq := &c.MessageQueue
	if mq.Mode == "" {
		mq.Mode = MessageQueueModeInMemory
	}
	if mq.Topic == "" {
		mq.Topic = DefaultHandoffTopic
	}
	if mq.SubscriptionGroup == "" {
		mq.SubscriptionGroup = DefaultSubscriptionGroup
	}
	if mq.Partitions == 0 {
		mq.Partitions = 4
	}
	if mq.Encoding == "" {
		mq.Encoding = EncodingJSON
	}
	if mq.Encoding != EncodingJSON && mq.Encoding != EncodingCBOR {
		return fmt.Errorf("unsupported message encoding %v, only json or cbor", mq.Encoding)
	}

	dispatcher := &c.Dispatcher
	if dispatcher.Topic == "" {
		dispatcher.Topic = DefaultDispatchTopic
	}
	if dispatcher.GrantTopic == "" {
		dispatcher.GrantTopic = DefaultGrantTopic
	}
	if dispatcher.RejectTopic == "" {
		dispatcher.RejectTopic = DefaultRejectTopic
	}
	if dispatcher.LockExtension == 0 {
		dispatcher.LockExtension = DefaultLockExtension
	}
	if dispatcher.PublishTimeout == 0 {
		dispatcher.PublishTimeout = 5 * time.Second
	}

	switch mq.Mode {
	case MessageQueueModeInMemory:
	case MessageQueueModePulsar:
		if mq.Pulsar == nil || mq.Pulsar.URL == "" {
			return fmt.Errorf("messageQueue.pulsar.url is required for pulsar mode")
		}
		if mq.Pulsar.OperationTimeout == 0 {
			mq.Pulsar.OperationTimeout = 30 * time.Second
		}
		if mq.Pulsar.ConnectionTimeout == 0 {
			mq.Pulsar.ConnectionTimeout = 5 * time.Second
		}
		if mq.Pulsar.SendTimeout == 0 {
			mq.Pulsar.SendTimeout = dispatcher.PublishTimeout
		}
		if mq.Pulsar.ReceiverQueueSize == 0 {
			mq.Pulsar.ReceiverQueueSize = 1
		}
	default:
		return fmt.Errorf("unknown message queue mode %v", mq.Mode)
	}

	sub := &c.Subscription
	if sub.MaxTasks == 0 {
		sub.MaxTasks = 10
	}
	if sub.LockDuration == 0 {
		sub.LockDuration = 20 * time.Second
	}
	if sub.PollInterval == 0 {
		sub.PollInterval = 500 * time.Millisecond
	}
	if sub.MaxPollInterval == 0 {
		sub.MaxPollInterval = 10 * time.Second
	}
	if sub.ProcessorConcurrency == 0 {
		sub.ProcessorConcurrency = 4
	}
	if sub.ProcessorBufferSize == 0 {
		sub.ProcessorBufferSize = 100
	}
	if sub.LockDuration <= dispatcher.PublishTimeout+ts.RequestTimeout {
		return fmt.Errorf("subscription.lockDuration %v must exceed dispatcher.publishTimeout + taskSource.requestTimeout",
			sub.LockDuration)
	}

	if c.Completion.Timeout == 0 {
		c.Completion.Timeout = 5 * time.Second
	}
	c.Completion.RetryPolicy = c.Completion.RetryPolicy.WithDefaults()

	w := &c.Worker
	if w.Scorer.Draws == 0 {
		w.Scorer.Draws = 4
	}
	if w.Scorer.Low == 0 && w.Scorer.High == 0 {
		w.Scorer.Low = 1
		w.Scorer.High = 10
	}
	if w.Scorer.Draws < 0 || w.Scorer.Low > w.Scorer.High {
		return fmt.Errorf("invalid scorer config: draws=%v low=%v high=%v", w.Scorer.Draws, w.Scorer.Low, w.Scorer.High)
	}
	if w.ScoringBudget == 0 {
		w.ScoringBudget = time.Second
	}
	if w.Dedup.Mode == "" {
		w.Dedup.Mode = DedupModeMemory
	}
	if w.Dedup.Window == 0 {
		w.Dedup.Window = dispatcher.LockExtension
	}
	switch w.Dedup.Mode {
	case DedupModeNone, DedupModeMemory:
	case DedupModeRedis:
		if w.Dedup.Redis == nil || w.Dedup.Redis.Addr == "" {
			return fmt.Errorf("worker.dedup.redis.addr is required for redis dedup")
		}
		if w.Dedup.Redis.KeyPrefix == "" {
			w.Dedup.Redis.KeyPrefix = "creditbridge:dedup:"
		}
	default:
		return fmt.Errorf("unknown dedup mode %v", w.Dedup.Mode)
	}
	if m := w.Audit.Mongo; m != nil {
		if m.URI == "" {
			return fmt.Errorf("worker.audit.mongo.uri is required")
		}
		if m.Database == "" {
			m.Database = "creditbridge"
		}
		if m.Collection == "" {
			m.Collection = "credit_scores"
		}
	}

	if dispatcher.LockExtension <= c.MaxProcessingTime() {
		return fmt.Errorf("dispatcher.lockExtension %v must exceed the max worker processing time %v",
			dispatcher.LockExtension, c.MaxProcessingTime())
	}

	if dev := c.DevEngine; dev != nil {
		if dev.BasePath == "" {
			dev.BasePath = "/engine-rest"
		}
		if dev.ApprovalThreshold == 0 {
			dev.ApprovalThreshold = 5
		}
		if dev.SQL != nil && anyAbsent(dev.SQL.DatabaseName, dev.SQL.ConnectAddr, dev.SQL.User) {
			return fmt.Errorf("some required configs are missing: sql.DatabaseName, sql.ConnectAddr, sql.User")
		}
	}
	return nil
}

// MaxProcessingTime is the worst case time the consumer spends on one message:
// the scoring budget plus every completion attempt timing out, plus the waits in between.
func (c *Config) MaxProcessingTime() time.Duration {
	policy := c.Completion.RetryPolicy.WithDefaults()
	return c.Worker.ScoringBudget +
		time.Duration(policy.MaximumAttempts)*c.Completion.Timeout +
		backoff.MaxTotalBackoff(policy)
}

func anyAbsent(strs ...string) bool {
	for _, s := range strs {
		if s == "" {
			return true
		}
	}
	return false
}

// String converts the config object into a string
func (c *Config) String() string {
	out, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		panic(err)
	}
	return string(out)
}
