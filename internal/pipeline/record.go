// Package pipeline appends chat traffic to Kafka, keyed by room so one room's
// records keep their order, and replays other instances' records locally.
package pipeline

import "github.com/confluentinc/confluent-kafka-go/v2/kafka"

// Record headers.
const (
	HeaderOrigin = "origin"
	HeaderType   = "type"
)

// Record types carried in HeaderType.
const (
	TypeMessage     = "chat.message"
	TypeRoomUpdate  = "chat.room_update"
	TypeReadReceipt = "chat.read_receipt"
)

// Record is a consumed pipeline entry.
type Record struct {
	Topic     string
	Key       string
	Value     []byte
	Origin    string
	Type      string
	Partition int32
	Offset    int64
}

func recordFromMessage(m *kafka.Message) Record {
	r := Record{
		Key:       string(m.Key),
		Value:     m.Value,
		Partition: m.TopicPartition.Partition,
		Offset:    int64(m.TopicPartition.Offset),
	}
	if m.TopicPartition.Topic != nil {
		r.Topic = *m.TopicPartition.Topic
	}
	for _, h := range m.Headers {
		switch h.Key {
		case HeaderOrigin:
			r.Origin = string(h.Value)
		case HeaderType:
			r.Type = string(h.Value)
		}
	}
	return r
}

func headers(origin, typ string) []kafka.Header {
	return []kafka.Header{
		{Key: HeaderOrigin, Value: []byte(origin)},
		{Key: HeaderType, Value: []byte(typ)},
	}
}
