package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/registry"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		runList(log)
	case "verify":
		runVerify(log)
	case "drop":
		runDrop(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Identity Registry CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  registryctl <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  list      List recorded external-key to account-id mappings")
	fmt.Println("  verify    Check every mapped account id against the ledger service")
	fmt.Println("  drop      Remove a single mapping by external key")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'registryctl <command> -h' for more information on a command.")
}

func loadConfig(log zerolog.Logger, configDir string) *config.Config {
	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	return cfg
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configDir := fs.String("config", ".", "Configuration directory")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log, *configDir)

	ctx := logger.WithContext(context.Background(), log)
	reg := registry.Load(ctx, cfg.RegistryPath)

	mappings := reg.All()
	keys := make([]string, 0, len(mappings))
	for k := range mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("%d mapping(s) in %s\n\n", len(keys), cfg.RegistryPath)
	for _, k := range keys {
		fmt.Printf("  %-40s -> %s\n", k, mappings[k])
	}
}

func runVerify(log zerolog.Logger) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configDir := fs.String("config", ".", "Configuration directory")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log, *configDir)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client := ledger.NewClient(cfg.LedgerURL, cfg.LedgerAPIKey, cfg.BudgetID)
	accounts, err := client.Accounts(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list remote accounts")
	}
	remote := make(map[string]string, len(accounts))
	for _, a := range accounts {
		remote[a.ID] = a.Name
	}

	reg := registry.Load(ctx, cfg.RegistryPath)
	mappings := reg.All()
	keys := make([]string, 0, len(mappings))
	for k := range mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stale := 0
	for _, k := range keys {
		id := mappings[k]
		if name, ok := remote[id]; ok {
			fmt.Printf("  ok     %-40s -> %s (%s)\n", k, id, name)
		} else {
			fmt.Printf("  STALE  %-40s -> %s (no such remote account)\n", k, id)
			stale++
		}
	}

	if stale > 0 {
		fmt.Printf("\n%d stale mapping(s); drop them with 'registryctl drop -key KEY'\n", stale)
		os.Exit(1)
	}
	fmt.Printf("\nAll %d mapping(s) resolve to live accounts.\n", len(keys))
}

func runDrop(log zerolog.Logger) {
	fs := flag.NewFlagSet("drop", flag.ExitOnError)
	configDir := fs.String("config", ".", "Configuration directory")
	key := fs.String("key", "", "External account key to drop")
	fs.Parse(os.Args[2:])

	if *key == "" {
		log.Fatal().Msg("Error: -key is required")
	}

	cfg := loadConfig(log, *configDir)

	ctx := logger.WithContext(context.Background(), log)
	reg := registry.Load(ctx, cfg.RegistryPath)

	if err := reg.Drop(ctx, *key); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop mapping")
	}
	fmt.Printf("Dropped mapping for %s\n", *key)
}
