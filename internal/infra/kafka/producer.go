package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/infra/config"
)

// Producer wraps a Sarama AsyncProducer, applies the topic prefix and counts failed deliveries.
type Producer struct {
	async    sarama.AsyncProducer
	logger   *zap.Logger
	prefix   string
	failures atomic.Uint64
	drained  sync.WaitGroup
	closed   atomic.Bool
}

func saramaConfig(cfg config.KafkaSettings, clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_5_0_0
	sc.ClientID = clientID

	// Payment events feed downstream ledgers; wait for all in-sync replicas.
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Idempotent = cfg.Idempotent
	if cfg.Idempotent {
		sc.Net.MaxOpenRequests = 1
	}
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Flush.Frequency = 100 * time.Millisecond
	sc.Producer.Flush.Messages = 100
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond
	return sc
}

// NewProducer connects an async producer to cfg.Brokers.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	async, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig(cfg, "nexa-backoffice"))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := newProducer(async, cfg.TopicPrefix, logger)
	p.logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("idempotent", cfg.Idempotent),
	)
	return p, nil
}

func newProducer(async sarama.AsyncProducer, prefix string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{async: async, logger: logger, prefix: prefix}
	p.drained.Add(1)
	go p.drainErrors()
	return p
}

// drainErrors runs until the async producer closes its error channel.
func (p *Producer) drainErrors() {
	defer p.drained.Done()
	for perr := range p.async.Errors() {
		if perr == nil {
			continue
		}
		p.failures.Add(1)
		p.logger.Error("kafka delivery failed",
			zap.Error(perr.Err),
			zap.String("topic", perr.Msg.Topic),
			zap.Int32("partition", perr.Msg.Partition),
		)
	}
}

// Send enqueues msg, giving up when ctx ends first. Delivery itself is asynchronous.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	if p.closed.Load() {
		return fmt.Errorf("kafka producer closed")
	}
	select {
	case p.async.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", msg.Topic, ctx.Err())
	}
}

// DeliveryFailures reports how many messages the broker ultimately rejected.
func (p *Producer) DeliveryFailures() uint64 {
	return p.failures.Load()
}

// Close flushes pending messages and waits for the error drain to finish.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.logger.Info("closing kafka producer")
	err := p.async.Close()
	p.drained.Wait()
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName prefixes eventType with the configured topic prefix, at most once.
func (p *Producer) TopicName(eventType string) string {
	if p.prefix == "" || strings.HasPrefix(eventType, p.prefix+".") {
		return eventType
	}
	return p.prefix + "." + eventType
}
