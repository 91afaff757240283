package events

import (
	"context"
	"log/slog"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
)

// Publisher delivers committed settlement events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, events ...*domain.SettlementEvent) error
	Close() error
}

// LogPublisher writes each event as a structured log line. It is the
// delivery backend when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, events ...*domain.SettlementEvent) error {
	for _, e := range events {
		attrs := []any{
			"event_id", e.ID,
			"event_type", e.EventType,
			"loan_id", e.LoanID,
			"payload", string(e.Payload),
		}
		if e.PaymentID != nil {
			attrs = append(attrs, "payment_id", *e.PaymentID)
		}
		p.logger.InfoContext(ctx, "settlement event", attrs...)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
