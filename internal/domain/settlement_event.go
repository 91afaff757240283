package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SettlementEventType string

const (
	SettlementEventPaymentApplied   SettlementEventType = "payment.applied"
	SettlementEventLoanLiquidated   SettlementEventType = "loan.liquidated"
	SettlementEventLoanStatusChange SettlementEventType = "loan.status_changed"
)

// SettlementEvent is written in the same transaction as the change it
// describes and published to downstream consumers after commit.
type SettlementEvent struct {
	ID        uuid.UUID
	LoanID    uuid.UUID
	PaymentID *uuid.UUID
	EventType SettlementEventType
	Payload   json.RawMessage
	CreatedAt time.Time
}
