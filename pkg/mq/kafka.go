// Package mq wraps segmentio/kafka-go with a JSON producer and a
// consumer-group reader.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hodlfi/btclending/pkg/config"
	"github.com/hodlfi/btclending/pkg/logger"
)

// Producer publishes JSON messages to Kafka.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer that waits for all replicas to ack.
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "kafka producer created", "brokers", cfg.Brokers)
	return &Producer{writer: writer}
}

// Send marshals value to JSON and writes it to topic under key.
func (p *Producer) Send(ctx context.Context, topic, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "failed to send kafka message", "topic", topic, "key", key, "error", err)
		return err
	}

	logger.Debug(ctx, "kafka message sent", "topic", topic, "key", key)
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads messages from a topic within a consumer group.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a group consumer starting at the last offset.
func NewConsumer(cfg config.KafkaConfig, topic string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.GroupID,
		SessionTimeout: time.Duration(cfg.SessionTimeout) * time.Second,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
		MaxBytes:       10e6,
	})

	logger.Info(context.Background(), "kafka consumer created",
		"brokers", cfg.Brokers,
		"topic", topic,
		"group_id", cfg.GroupID,
	)
	return &Consumer{reader: reader}
}

// ReadMessage blocks until the next message or ctx cancellation.
func (c *Consumer) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return c.reader.ReadMessage(ctx)
}

// Close closes the reader and leaves the group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Handler processes a single consumed message.
type Handler func(ctx context.Context, msg kafka.Message) error

// Run consumes messages until ctx is cancelled, logging handler failures
// without stopping the loop.
func Run(ctx context.Context, c *Consumer, handle Handler) error {
	for {
		msg, err := c.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := handle(ctx, msg); err != nil {
			logger.Error(ctx, "message handler failed",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}
