package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
)

// KafkaPublisher writes events to a single topic keyed by loan ID, so all
// events of one loan land on the same partition in commit order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...*domain.SettlementEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, toMessages(events)...); err != nil {
		return fmt.Errorf("KafkaPublisher.Publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("KafkaPublisher.Close: %w", err)
	}
	return nil
}

func toMessages(events []*domain.SettlementEvent) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		headers := []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID.String())},
			{Key: "event_type", Value: []byte(e.EventType)},
		}
		if e.PaymentID != nil {
			headers = append(headers, kafka.Header{Key: "payment_id", Value: []byte(e.PaymentID.String())})
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.LoanID.String()),
			Value:   e.Payload,
			Headers: headers,
			Time:    e.CreatedAt,
		})
	}
	return msgs
}
