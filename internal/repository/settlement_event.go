package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
)

type SettlementEventRepository struct {
	db *sql.DB
}

func NewSettlementEventRepository(db *sql.DB) *SettlementEventRepository {
	return &SettlementEventRepository{db: db}
}

func (r *SettlementEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.SettlementEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO settlement_events (id, loan_id, payment_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.LoanID, event.PaymentID, event.EventType, []byte(event.Payload), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *SettlementEventRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.SettlementEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, loan_id, payment_id, event_type, payload, created_at
		FROM settlement_events WHERE loan_id = $1 ORDER BY created_at, id`, loanID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByLoan: %w", err)
	}
	defer rows.Close()

	var events []*domain.SettlementEvent
	for rows.Next() {
		var e domain.SettlementEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.LoanID, &e.PaymentID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByLoan: scan: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByLoan: rows: %w", err)
	}
	return events, nil
}
