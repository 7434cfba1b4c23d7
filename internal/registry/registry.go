// Package registry persists the mapping from exporter-assigned account keys to
// ledger-assigned account identifiers. The file is rewritten synchronously on
// every new mapping so that a crash after a remote create never loses the id.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/ledger-sync/internal/logger"
)

const currentVersion = 1

type state struct {
	Version  int               `json:"version"`
	Accounts map[string]string `json:"accounts"`
}

// Registry is the persisted external-key → remote-id table.
type Registry struct {
	path  string
	state state
}

// Load reads the registry file. A missing file yields an empty registry; a
// corrupt file is logged and treated as empty rather than failing the run,
// since re-resolution by name will rebuild the mappings.
func Load(ctx context.Context, path string) *Registry {
	log := logger.FromContext(ctx)

	r := &Registry{
		path:  path,
		state: state{Version: currentVersion, Accounts: map[string]string{}},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to read identity registry, starting empty")
		return r
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to parse identity registry, starting empty")
		return r
	}
	if s.Accounts == nil {
		s.Accounts = map[string]string{}
	}
	s.Version = currentVersion
	r.state = s

	log.Debug().Int("mappings", len(s.Accounts)).Str("path", path).Msg("Loaded identity registry")
	return r
}

// Resolve returns the remote account id mapped to an external key.
func (r *Registry) Resolve(externalKey string) (string, bool) {
	id, ok := r.state.Accounts[externalKey]
	return id, ok
}

// Record maps an external key to a remote id and persists immediately.
// An existing mapping is never repointed: the first recorded id is permanent
// for the lifetime of the registry file.
func (r *Registry) Record(ctx context.Context, externalKey, remoteID string) error {
	log := logger.FromContext(ctx)

	if existing, ok := r.state.Accounts[externalKey]; ok {
		if existing != remoteID {
			log.Warn().
				Str("external_key", externalKey).
				Str("existing_id", existing).
				Str("ignored_id", remoteID).
				Msg("Refusing to repoint identity mapping")
		}
		return nil
	}

	r.state.Accounts[externalKey] = remoteID
	if err := r.persist(); err != nil {
		return fmt.Errorf("registry.Record: %w", err)
	}

	log.Debug().Str("external_key", externalKey).Str("remote_id", remoteID).Msg("Recorded identity mapping")
	return nil
}

// Drop removes a mapping and persists. Dropping is the manual escape hatch
// for a mapping recorded against the wrong remote account; the next run will
// re-resolve the key by name or create a fresh account.
func (r *Registry) Drop(ctx context.Context, externalKey string) error {
	log := logger.FromContext(ctx)

	if _, ok := r.state.Accounts[externalKey]; !ok {
		return fmt.Errorf("registry.Drop: no mapping for %q", externalKey)
	}

	delete(r.state.Accounts, externalKey)
	if err := r.persist(); err != nil {
		return fmt.Errorf("registry.Drop: %w", err)
	}

	log.Info().Str("external_key", externalKey).Msg("Dropped identity mapping")
	return nil
}

// All returns a copy of the mapping table.
func (r *Registry) All() map[string]string {
	out := make(map[string]string, len(r.state.Accounts))
	for k, v := range r.state.Accounts {
		out[k] = v
	}
	return out
}

// Len reports the number of mappings.
func (r *Registry) Len() int {
	return len(r.state.Accounts)
}

// persist writes the full table via a temp file and rename.
func (r *Registry) persist() error {
	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
