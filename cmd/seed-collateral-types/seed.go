package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/engine"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

type typeSpec struct {
	Name                  string          `json:"name"`
	CustodyFeeRateMonthly decimal.Decimal `json:"custody_fee_rate_monthly"`
}

var defaultTypes = []typeSpec{
	{Name: "gold", CustodyFeeRateMonthly: decimal.RequireFromString("0.0100")},
	{Name: "jewelry", CustodyFeeRateMonthly: decimal.RequireFromString("0.0125")},
	{Name: "electronics", CustodyFeeRateMonthly: decimal.RequireFromString("0.0250")},
	{Name: "vehicle", CustodyFeeRateMonthly: decimal.RequireFromString("0.0150")},
}

type upserter interface {
	UpsertByName(ctx context.Context, ct *domain.CollateralType) error
}

type seedResult struct {
	Type       *domain.CollateralType
	PreviewFee money.Amount
}

func loadTypes(path string) ([]typeSpec, error) {
	if path == "" {
		return defaultTypes, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loadTypes: %w", err)
	}
	return parseTypes(raw)
}

func parseTypes(raw []byte) ([]typeSpec, error) {
	var specs []typeSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parseTypes: %w", err)
	}
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("parseTypes: entry %d: name is required", i)
		}
		if s.CustodyFeeRateMonthly.IsNegative() {
			return nil, fmt.Errorf("parseTypes: %s: custody fee rate must not be negative", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("parseTypes: %s listed twice", name)
		}
		seen[name] = true
		specs[i].Name = name
	}
	return specs, nil
}

// seed upserts every spec by name, so running it again only refreshes rates.
func seed(ctx context.Context, repo upserter, specs []typeSpec, previewBase money.Amount) ([]seedResult, error) {
	out := make([]seedResult, 0, len(specs))
	for _, s := range specs {
		ct := &domain.CollateralType{Name: s.Name, CustodyFeeRateMonthly: s.CustodyFeeRateMonthly}
		if err := repo.UpsertByName(ctx, ct); err != nil {
			return nil, fmt.Errorf("seed %s: %w", s.Name, err)
		}
		out = append(out, seedResult{Type: ct, PreviewFee: engine.CustodyFee(previewBase, ct, 1)})
	}
	return out, nil
}
