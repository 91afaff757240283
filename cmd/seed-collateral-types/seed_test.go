package main

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
)

type memUpserter struct {
	byName map[string]*domain.CollateralType
}

func (m *memUpserter) UpsertByName(_ context.Context, ct *domain.CollateralType) error {
	if existing, ok := m.byName[ct.Name]; ok {
		existing.CustodyFeeRateMonthly = ct.CustodyFeeRateMonthly
		*ct = *existing
		return nil
	}
	ct.ID = uuid.New()
	stored := *ct
	m.byName[ct.Name] = &stored
	return nil
}

func TestParseTypes(t *testing.T) {
	specs, err := parseTypes([]byte(`[
		{"name": " gold ", "custody_fee_rate_monthly": "0.01"},
		{"name": "watches", "custody_fee_rate_monthly": 0.02}
	]`))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "gold", specs[0].Name)
	assert.Equal(t, "0.02", specs[1].CustodyFeeRateMonthly.String())

	tests := map[string]string{
		"missing name":  `[{"custody_fee_rate_monthly": "0.01"}]`,
		"negative rate": `[{"name": "gold", "custody_fee_rate_monthly": "-0.01"}]`,
		"duplicate":     `[{"name": "gold", "custody_fee_rate_monthly": "0.01"}, {"name": "gold", "custody_fee_rate_monthly": "0.02"}]`,
		"not json":      `gold=0.01`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseTypes([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestSeed_IsIdempotent(t *testing.T) {
	repo := &memUpserter{byName: map[string]*domain.CollateralType{}}
	ctx := context.Background()

	first, err := seed(ctx, repo, defaultTypes, 1_000_000)
	require.NoError(t, err)
	second, err := seed(ctx, repo, defaultTypes, 1_000_000)
	require.NoError(t, err)

	assert.Len(t, repo.byName, len(defaultTypes))
	for i := range first {
		assert.Equal(t, first[i].Type.ID, second[i].Type.ID)
	}
	assert.EqualValues(t, 10_000, first[0].PreviewFee)
	assert.EqualValues(t, 25_000, first[2].PreviewFee)
}
