package pipeline

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-chat-realtime/internal/config"
	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

// Handler applies one consumed record.
type Handler interface {
	Handle(ctx context.Context, rec Record) error
}

// Consumer reads the message and room-update topics with a group scoped to
// this instance, so every instance sees every record.
type Consumer struct {
	consumer *kafka.Consumer
	topics   []string
	groupID  string
	handler  Handler
}

// GroupID returns the consumer group of instanceID.
func GroupID(prefix, instanceID string) string {
	return prefix + "-" + instanceID
}

func NewConsumer(cfg config.KafkaConfig, instanceID string, h Handler) (*Consumer, error) {
	groupID := GroupID(cfg.GroupPrefix, instanceID)
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       cfg.Brokers,
		"group.id":                groupID,
		"auto.offset.reset":       cfg.AutoOffsetReset,
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		consumer: c,
		topics:   []string{cfg.Topics.Messages, cfg.Topics.RoomUpdates},
		groupID:  groupID,
		handler:  h,
	}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	if err := c.consumer.SubscribeTopics(c.topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topics %v: %w", c.topics, err)
	}

	l := log.Ctx(ctx)
	l.Info().Strs("topics", c.topics).Str("group", c.groupID).Msg("kafka consumer started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("kafka consumer stopping")
			return nil
		default:
		}

		ev := c.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			rec := recordFromMessage(e)
			if err := c.handler.Handle(ctx, rec); err != nil {
				metrics.PipelineConsumed.WithLabelValues(rec.Topic, metrics.ResultError).Inc()
				l.Error().Err(err).
					Str(log.FieldTopic, rec.Topic).
					Int32("partition", rec.Partition).
					Int64("offset", rec.Offset).
					Msg("pipeline record failed")
				continue
			}
			metrics.PipelineConsumed.WithLabelValues(rec.Topic, metrics.ResultOK).Inc()
		case kafka.Error:
			l.Warn().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka error")
			if e.IsFatal() {
				return fmt.Errorf("fatal kafka error: %w", e)
			}
		case kafka.OffsetsCommitted:
			// Normal auto-commit acknowledgement
		default:
			// Ignore other events (rebalance, etc.)
		}
	}
}

func (c *Consumer) Close() error {
	l := log.L()
	l.Info().Msg("closing kafka consumer")
	return c.consumer.Close()
}
