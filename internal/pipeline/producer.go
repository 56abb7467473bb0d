package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-chat-realtime/internal/config"
	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

// Producer appends records without waiting for the broker; outcomes arrive
// on the delivery report loop.
type Producer struct {
	producer   *kafka.Producer
	topics     config.KafkaTopics
	instanceID string
	doneCh     chan struct{}
}

func NewProducer(cfg config.KafkaConfig, instanceID string) (*Producer, error) {
	l := log.L()

	// Ensure topics exist with desired partition count
	for _, topic := range []string{cfg.Topics.Messages, cfg.Topics.RoomUpdates, cfg.Topics.ReadReceipts} {
		if err := ensureTopic(cfg.Brokers, topic, cfg.Partitions); err != nil {
			l.Warn().Err(err).Str(log.FieldTopic, topic).Msg("failed to ensure topic (may already exist)")
		}
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cp := &Producer{
		producer:   p,
		topics:     cfg.Topics,
		instanceID: instanceID,
		doneCh:     make(chan struct{}),
	}

	go cp.deliveryReportHandler()

	return cp, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}

	return nil
}

func (cp *Producer) deliveryReportHandler() {
	l := log.L()
	for e := range cp.producer.Events() {
		ev, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		topic := ""
		if ev.TopicPartition.Topic != nil {
			topic = *ev.TopicPartition.Topic
		}
		if ev.TopicPartition.Error != nil {
			metrics.PipelineAppends.WithLabelValues(topic, metrics.ResultError).Inc()
			l.Error().Err(ev.TopicPartition.Error).
				Str(log.FieldTopic, topic).
				Str(log.FieldRoomID, string(ev.Key)).
				Msg("kafka delivery failed")
			continue
		}
		metrics.PipelineAppends.WithLabelValues(topic, metrics.ResultOK).Inc()
	}
	close(cp.doneCh)
}

// AppendMessage appends an accepted chat message.
func (cp *Producer) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	return cp.produce(ctx, cp.topics.Messages, TypeMessage, msg.RoomID, msg)
}

// AppendRoomUpdate appends a room last-message change.
func (cp *Producer) AppendRoomUpdate(ctx context.Context, u *domain.RoomUpdate) error {
	return cp.produce(ctx, cp.topics.RoomUpdates, TypeRoomUpdate, u.RoomID, u)
}

// AppendReadReceipt appends a receipt for downstream consumers.
func (cp *Producer) AppendReadReceipt(ctx context.Context, r *domain.ReadReceipt) error {
	return cp.produce(ctx, cp.topics.ReadReceipts, TypeReadReceipt, r.RoomID, r)
}

func (cp *Producer) produce(_ context.Context, topic, typ, roomID string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", typ, err)
	}

	// Use room_id as key for consistent partition assignment
	err = cp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:     []byte(roomID),
		Value:   value,
		Headers: headers(cp.instanceID, typ),
	}, nil)
	if err != nil {
		metrics.PipelineAppends.WithLabelValues(topic, metrics.ResultError).Inc()
		return fmt.Errorf("failed to produce %s: %w", typ, err)
	}

	return nil
}

// Close flushes outstanding records and waits for the delivery loop.
func (cp *Producer) Close() error {
	if left := cp.producer.Flush(5000); left > 0 {
		l := log.L()
		l.Warn().Int("unflushed", left).Msg("kafka producer closed with undelivered records")
	}
	cp.producer.Close()
	<-cp.doneCh
	return nil
}
