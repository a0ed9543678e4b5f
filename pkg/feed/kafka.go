package feed

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes trade events to a Kafka topic, keyed by trade id so
// every transition of one trade lands on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher builds a publisher against the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		log: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event TradeEvent) error {
	payload, err := Stamp(event).Marshal()
	if err != nil {
		return fmt.Errorf("marshal trade event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.PendingTradeID),
		Value: payload,
	})
	if err != nil {
		p.log.Warn("trade event publish failed",
			zap.String("trade_id", event.PendingTradeID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
		return fmt.Errorf("write trade event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
