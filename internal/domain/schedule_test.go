package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleItemDeriveStatus(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	scheduled := Components{Principal: 100, Interest: 20, Fee: 10}

	tests := []struct {
		name string
		paid Components
		asOf time.Time
		want ItemStatus
	}{
		{name: "untouched before due", asOf: due.Add(-time.Hour), want: ItemStatusPending},
		{name: "untouched on due day", asOf: due.Add(23 * time.Hour), want: ItemStatusPending},
		{name: "untouched day after due", asOf: due.Add(24 * time.Hour), want: ItemStatusOverdue},
		{name: "partial before due", paid: Components{Fee: 10}, asOf: due, want: ItemStatusPartiallyPaid},
		{name: "partial after due", paid: Components{Fee: 10}, asOf: due.AddDate(0, 1, 0), want: ItemStatusOverdue},
		{name: "fully paid after due", paid: scheduled, asOf: due.AddDate(1, 0, 0), want: ItemStatusPaid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			item := &ScheduleItem{DueDate: due, Scheduled: scheduled, Paid: tc.paid}
			assert.Equal(t, tc.want, item.DeriveStatus(tc.asOf))
		})
	}
}

func TestComponentsArithmetic(t *testing.T) {
	a := Components{Principal: 100, Interest: 20, Fee: 10}
	b := Components{Principal: 40, Interest: 20, Fee: 5}

	assert.Equal(t, Components{Principal: 140, Interest: 40, Fee: 15}, a.Add(b))
	assert.Equal(t, Components{Principal: 60, Interest: 0, Fee: 5}, a.Sub(b))
	assert.EqualValues(t, 130, a.Total())
	assert.True(t, a.Exceeds(b))
	assert.False(t, b.Exceeds(a))
	assert.True(t, b.Sub(a).HasNegative())
	assert.True(t, Components{}.IsZero())
}
