package messaging

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Sender 消息发送方，pkg/mq.KafkaProducer 实现该接口
type Sender interface {
	SendMessage(ctx context.Context, topic string, key string, value any, headers ...kafka.Header) error
}

type kafkaSink struct {
	sender Sender
	topic  string
}

func (s kafkaSink) write(ctx context.Context, env Envelope) error {
	return s.sender.SendMessage(ctx, s.topic, env.Key, env,
		kafka.Header{Key: "event_type", Value: []byte(env.EventType)},
		kafka.Header{Key: "event_id", Value: []byte(env.EventID)},
	)
}

// NewKafkaEventPublisher 直接发送到 Kafka 主题
func NewKafkaEventPublisher(sender Sender, topic string) *EventPublisher {
	return &EventPublisher{sink: kafkaSink{sender: sender, topic: topic}}
}
