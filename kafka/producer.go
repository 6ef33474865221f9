package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/gozmanthefirst/ahianeo/models"
)

// ProducerAPI is the publishing surface services depend on, so tests can
// substitute a mock.
type ProducerAPI interface {
	PublishOrderEvent(ctx context.Context, evt models.OrderEvent) error
	Close() error
}

type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return &Producer{writer: w, topic: topic}
}

// PublishOrderEvent writes one order lifecycle event, keyed by order id so
// all events for an order stay on one partition.
func (p *Producer) PublishOrderEvent(ctx context.Context, evt models.OrderEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.OrderID),
		Value: data,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
