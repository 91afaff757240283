// Package schedule is the installment ledger of one loan: an in-memory view
// of its repayment schedule loaded inside a store transaction. ApplyToItem is
// the only way paid amounts change; the settlement service persists the items
// reported by Dirty.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

type Ledger struct {
	loanID uuid.UUID
	items  []*domain.ScheduleItem
	byID   map[uuid.UUID]*domain.ScheduleItem
	dirty  map[uuid.UUID]struct{}
}

// NewLedger takes ownership of items. They are kept sorted oldest due date
// first, ties broken by Seq.
func NewLedger(loanID uuid.UUID, items []*domain.ScheduleItem) (*Ledger, error) {
	l := &Ledger{
		loanID: loanID,
		items:  make([]*domain.ScheduleItem, 0, len(items)),
		byID:   make(map[uuid.UUID]*domain.ScheduleItem, len(items)),
		dirty:  make(map[uuid.UUID]struct{}),
	}
	for _, it := range items {
		if it.LoanID != loanID {
			return nil, fmt.Errorf("NewLedger: item %s belongs to loan %s", it.ID, it.LoanID)
		}
		if it.Scheduled.HasNegative() || it.Paid.HasNegative() || it.Paid.Exceeds(it.Scheduled) {
			return nil, fmt.Errorf("NewLedger: item %s: %w", it.ID, domain.ErrOverAllocation)
		}
		l.items = append(l.items, it)
		l.byID[it.ID] = it
	}
	sort.SliceStable(l.items, func(i, j int) bool {
		a, b := l.items[i], l.items[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.Seq < b.Seq
	})
	return l, nil
}

func (l *Ledger) LoanID() uuid.UUID { return l.loanID }

// Items returns every item in allocation order.
func (l *Ledger) Items() []*domain.ScheduleItem {
	out := make([]*domain.ScheduleItem, len(l.items))
	copy(out, l.items)
	return out
}

// OutstandingItems returns the items not yet PAID, oldest due first.
func (l *Ledger) OutstandingItems() []*domain.ScheduleItem {
	var out []*domain.ScheduleItem
	for _, it := range l.items {
		if !it.IsSettled() {
			out = append(out, it)
		}
	}
	return out
}

func (l *Ledger) TotalOutstanding() money.Amount {
	var total money.Amount
	for _, it := range l.items {
		total += it.Unpaid().Total()
	}
	return total
}

func (l *Ledger) TotalPaid() domain.Components {
	var c domain.Components
	for _, it := range l.items {
		c = c.Add(it.Paid)
	}
	return c
}

// ApplyToItem adds delta to the item's paid breakdown and recomputes its
// status as of at. The item is untouched when the call fails.
func (l *Ledger) ApplyToItem(itemID uuid.UUID, delta domain.Components, at time.Time) error {
	it, ok := l.byID[itemID]
	if !ok {
		return fmt.Errorf("ApplyToItem: item %s: %w", itemID, domain.ErrNotFound)
	}
	if delta.HasNegative() {
		return fmt.Errorf("ApplyToItem: item %s: negative delta: %w", itemID, domain.ErrInvalidAmount)
	}

	paid := it.Paid.Add(delta)
	if paid.Exceeds(it.Scheduled) {
		return fmt.Errorf("ApplyToItem: item %s: %w", itemID, domain.ErrOverAllocation)
	}

	it.Paid = paid
	if it.IsSettled() && it.PaidAt == nil {
		paidAt := at.UTC()
		it.PaidAt = &paidAt
	}
	it.Status = it.DeriveStatus(at)
	l.dirty[itemID] = struct{}{}
	return nil
}

// RefreshStatuses re-derives every item status as of asOf and returns the
// number of items whose status changed.
func (l *Ledger) RefreshStatuses(asOf time.Time) int {
	changed := 0
	for _, it := range l.items {
		s := it.DeriveStatus(asOf)
		if s != it.Status {
			it.Status = s
			l.dirty[it.ID] = struct{}{}
			changed++
		}
	}
	return changed
}

// Dirty returns the items mutated since the ledger was loaded, in
// allocation order.
func (l *Ledger) Dirty() []*domain.ScheduleItem {
	var out []*domain.ScheduleItem
	for _, it := range l.items {
		if _, ok := l.dirty[it.ID]; ok {
			out = append(out, it)
		}
	}
	return out
}
