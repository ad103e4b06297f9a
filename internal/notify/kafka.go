package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...Message) error {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		km, err := encode(m)
		if err != nil {
			return err
		}
		out = append(out, km)
	}
	return p.writer.WriteMessages(ctx, out...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encode(m Message) (kafka.Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode notification %s: %w", m.ID, err)
	}
	return kafka.Message{
		Key:   []byte(m.Key()),
		Value: data,
		Time:  m.CreatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(m.Kind)},
		},
	}, nil
}

func decode(km kafka.Message) (Message, error) {
	var m Message
	if err := json.Unmarshal(km.Value, &m); err != nil {
		return m, fmt.Errorf("decode notification at offset %d: %w", km.Offset, err)
	}
	return m, nil
}
