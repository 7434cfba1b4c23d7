package main

import (
	"context"
	"flag"
	"time"

	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/reconcile"
	"github.com/dvloznov/ledger-sync/internal/registry"
)

func main() {
	log := logger.New()

	configDir := flag.String("config", ".", "Configuration directory (.env, institutions.yaml, categories.yaml, rules.yaml)")
	inputDir := flag.String("input", "", "Override for the exporter output directory")
	institution := flag.String("institution", "", "Reconcile a single institution directory only")
	dryRun := flag.Bool("dry-run", false, "Preview remote mutations without issuing them")
	forceFresh := flag.Bool("force-fresh", false, "Clear all local rule ids and recreate rules remotely")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *inputDir != "" {
		cfg.InputDir = *inputDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client := ledger.NewClient(cfg.LedgerURL, cfg.LedgerAPIKey, cfg.BudgetID)
	if err := client.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("url", cfg.LedgerURL).Msg("Cannot reach ledger service")
	}

	var svc ledger.Service = client
	if *dryRun {
		svc = ledger.NewDryRun(client)
	}

	if *institution != "" {
		// The reader applies the filter; everything else is unaffected.
		log.Info().Str("institution", *institution).Msg("Limiting run to a single institution")
	}

	reg := registry.Load(ctx, cfg.RegistryPath)

	log.Info().
		Str("input_dir", cfg.InputDir).
		Bool("dry_run", *dryRun).
		Bool("force_fresh", *forceFresh).
		Int("known_mappings", reg.Len()).
		Msg("Starting reconciliation")

	runner := reconcile.NewRunner(cfg, svc, reg, *forceFresh)
	runner.SetInstitutionFilter(*institution)
	runner.SetDryRun(*dryRun)

	if _, err := runner.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}
}
