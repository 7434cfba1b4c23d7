// Package config loads the reconciliation engine configuration from a
// configuration directory: a .env file (plus process environment) for
// connection settings and file locations, and an optional institutions.yaml
// for per-institution import policy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for a reconciliation run.
type Config struct {
	// Remote ledger service
	LedgerURL    string
	LedgerAPIKey string
	BudgetID     string

	// File locations, absolute or relative to the config directory
	InputDir     string
	RegistryPath string
	CategoryPath string
	RulesPath    string

	// Default currency code for formatting balance reports
	Currency string

	// Per-institution import policy, keyed by institution directory name
	Institutions map[string]InstitutionConfig
}

// InstitutionConfig is per-institution import policy.
type InstitutionConfig struct {
	// InvertSign flips transaction amounts before minor-unit conversion.
	// Used for liability exports that report purchases as positive.
	InvertSign bool `yaml:"invert_sign"`
}

// Load reads configuration from the given directory. A missing .env file is
// fine (process environment still applies); a missing institutions.yaml means
// no per-institution overrides.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config.Load: reading .env: %w", err)
	}

	cfg := &Config{
		LedgerURL:    getEnv("LEDGER_URL", ""),
		LedgerAPIKey: getEnv("LEDGER_API_KEY", ""),
		BudgetID:     getEnv("LEDGER_BUDGET_ID", ""),
		InputDir:     getEnv("INPUT_DIR", "transactions"),
		RegistryPath: getEnv("REGISTRY_PATH", "account_map.json"),
		CategoryPath: getEnv("CATEGORY_PATH", "categories.yaml"),
		RulesPath:    getEnv("RULES_PATH", "rules.yaml"),
		Currency:     getEnv("CURRENCY", "CAD"),
		Institutions: map[string]InstitutionConfig{},
	}

	cfg.InputDir = resolvePath(dir, cfg.InputDir)
	cfg.RegistryPath = resolvePath(dir, cfg.RegistryPath)
	cfg.CategoryPath = resolvePath(dir, cfg.CategoryPath)
	cfg.RulesPath = resolvePath(dir, cfg.RulesPath)

	if err := cfg.loadInstitutions(filepath.Join(dir, "institutions.yaml")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings required before any remote call are present.
func (c *Config) Validate() error {
	var missing []string
	if c.LedgerURL == "" {
		missing = append(missing, "LEDGER_URL")
	}
	if c.LedgerAPIKey == "" {
		missing = append(missing, "LEDGER_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if _, err := os.Stat(c.InputDir); err != nil {
		return fmt.Errorf("config: input directory %s: %w", c.InputDir, err)
	}
	return nil
}

// Institution returns the policy for an institution directory name,
// defaulting to the zero policy when none is configured.
func (c *Config) Institution(name string) InstitutionConfig {
	return c.Institutions[strings.ToLower(strings.TrimSpace(name))]
}

func (c *Config) loadInstitutions(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc struct {
		Institutions map[string]InstitutionConfig `yaml:"institutions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	for name, ic := range doc.Institutions {
		c.Institutions[strings.ToLower(strings.TrimSpace(name))] = ic
	}
	return nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
