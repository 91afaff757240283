package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/josh-kwaku/pawn-settlement/internal/config"
	"github.com/josh-kwaku/pawn-settlement/internal/logging"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
	"github.com/josh-kwaku/pawn-settlement/internal/repository"
)

func main() {
	file := flag.String("file", "", "JSON file of collateral types; built-in defaults when empty")
	previewBase := flag.Int64("preview-base", 1_000_000, "amount used to print the one-month custody fee per type")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Init("seed-collateral-types", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	types, err := loadTypes(*file)
	if err != nil {
		slog.Error("failed to read collateral types", "file", *file, "error", err)
		os.Exit(1)
	}

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}, 30*time.Second)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	results, err := seed(ctx, repository.NewCollateralTypeRepository(db), types, money.Amount(*previewBase))
	if err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
	for _, r := range results {
		slog.Info("collateral type upserted",
			"name", r.Type.Name,
			"id", r.Type.ID,
			"custody_fee_rate_monthly", r.Type.CustodyFeeRateMonthly.String(),
			"custody_fee_preview", r.PreviewFee,
		)
	}
	slog.Info("seed complete", "count", len(results))
}
