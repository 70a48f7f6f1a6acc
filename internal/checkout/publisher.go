package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, order OrderRequest) error
}

// KafkaPublisher writes orders keyed by checkout id so every event of one
// checkout lands on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, order OrderRequest) error {
	msg, err := orderMessage(order)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish checkout %s: %w", order.CheckoutID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func orderMessage(order OrderRequest) (kafka.Message, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal checkout %s: %w", order.CheckoutID, err)
	}
	return kafka.Message{
		Key:   []byte(order.CheckoutID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeCheckout)},
		},
	}, nil
}
