package events

import (
	"context"
	"log/slog"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/logging"
)

// Buffer holds events produced inside one transaction attempt. Flush after
// commit, Discard after rollback. Not safe for concurrent use.
type Buffer struct {
	pub     Publisher
	pending []*domain.SettlementEvent
}

func NewBuffer(pub Publisher) *Buffer {
	return &Buffer{pub: pub}
}

func (b *Buffer) Add(e *domain.SettlementEvent) {
	b.pending = append(b.pending, e)
}

func (b *Buffer) Pending() []*domain.SettlementEvent {
	return b.pending
}

// Flush publishes the pending events. The database already holds them, so a
// publish failure is logged and not returned.
func (b *Buffer) Flush(ctx context.Context) {
	if len(b.pending) == 0 {
		return
	}
	pending := b.pending
	b.pending = nil

	if err := b.pub.Publish(ctx, pending...); err != nil {
		logging.FromContext(ctx).Error("failed to publish settlement events",
			slog.Int("count", len(pending)),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Buffer) Discard() {
	b.pending = nil
}
