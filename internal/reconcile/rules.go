package reconcile

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

// RuleFile is the local declarative rule document. Local content is the
// source of truth; remote ids are assigned by the service and written back
// here once known.
type RuleFile struct {
	Rules []RuleDef `yaml:"rules"`
}

// RuleDef is one rule definition. A definition without a RemoteID is a
// pending creation.
type RuleDef struct {
	RemoteID     string         `yaml:"remote_id,omitempty"`
	Stage        string         `yaml:"stage,omitempty"`
	ConditionsOp string         `yaml:"conditions_op,omitempty"`
	Conditions   []ConditionDef `yaml:"conditions"`
	Actions      []ActionDef    `yaml:"actions"`
}

// ConditionDef matches a transaction field. Entity fields (payee, category,
// account) carry human-readable names; they are resolved to ids on push.
type ConditionDef struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value string `yaml:"value"`
}

// ActionDef sets a transaction field. For entity fields ID stores the
// resolved identifier alongside the human-readable Value.
type ActionDef struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op,omitempty"`
	Value string `yaml:"value"`
	ID    string `yaml:"id,omitempty"`
}

// LoadRuleFile reads the local rule document; a missing file is an empty one.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &RuleFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LoadRuleFile: %w", err)
	}

	var f RuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("LoadRuleFile: parsing %s: %w", path, err)
	}
	return &f, nil
}

// SaveRuleFile rewrites the local rule document.
func SaveRuleFile(path string, f *RuleFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("SaveRuleFile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("SaveRuleFile: %w", err)
	}
	return nil
}

// SyncRules synchronizes rule definitions bidirectionally. Remote rules
// unknown locally are pulled into the document first; then each local rule is
// created, updated or skipped depending on its remote id state and structural
// equality with its remote counterpart. Stale entity references inside
// conditions and actions are repaired by name where possible. The document is
// rewritten only when an id was assigned or repaired or a rule was pulled.
func (r *Runner) SyncRules(ctx context.Context, rules *RuleFile) error {
	log := logger.FromContext(ctx)
	dirty := false

	if r.forceFresh {
		for i := range rules.Rules {
			rules.Rules[i].RemoteID = ""
		}
		dirty = len(rules.Rules) > 0
		log.Info().Int("rules", len(rules.Rules)).Msg("Cleared local rule ids (force-fresh)")
	}

	remoteRules, err := r.svc.Rules(ctx)
	if err != nil {
		return fmt.Errorf("SyncRules: %w", err)
	}
	remoteByID := map[string]ledger.Rule{}
	for _, rr := range remoteRules {
		remoteByID[rr.ID] = rr
	}

	// Exactly one local definition per remote id: a hand-edited document can
	// duplicate a remote_id, and two definitions updating the same remote
	// rule would fight each other. The later duplicate is detached and
	// recreated as its own remote rule.
	knownIDs := map[string]bool{}
	for i := range rules.Rules {
		id := rules.Rules[i].RemoteID
		if id == "" {
			continue
		}
		if knownIDs[id] {
			r.warn(ctx, fmt.Errorf("remote id %q already claimed by an earlier definition", id),
				"Duplicate remote id in rule document, detaching later definition",
				map[string]string{"rule": describeRule(&rules.Rules[i])})
			rules.Rules[i].RemoteID = ""
			dirty = true
			continue
		}
		knownIDs[id] = true
	}

	for _, rr := range remoteRules {
		if knownIDs[rr.ID] {
			continue
		}
		rules.Rules = append(rules.Rules, r.pullRule(rr))
		dirty = true
		r.summary.RulesPulled++
		log.Info().Str("remote_id", rr.ID).Msg("Pulled remote rule into local document")
	}

	for i := range rules.Rules {
		def := &rules.Rules[i]

		remote, repaired := r.buildRemoteRule(ctx, def)
		if repaired {
			dirty = true
		}

		if def.RemoteID != "" {
			if _, ok := remoteByID[def.RemoteID]; !ok {
				// Deleted remotely behind our back; recreate from local.
				log.Info().Str("stale_id", def.RemoteID).Msg("Local rule id is stale, recreating rule")
				def.RemoteID = ""
				dirty = true
			}
		}

		if def.RemoteID == "" {
			id, err := r.svc.CreateRule(ctx, remote)
			if err != nil {
				r.warn(ctx, err, "Failed to create rule", map[string]string{"rule": describeRule(def)})
				continue
			}
			def.RemoteID = id
			dirty = true
			r.summary.RulesCreated++
			log.Info().Str("remote_id", id).Str("rule", describeRule(def)).Msg("Created remote rule")
			continue
		}

		if rulesEqual(remote, remoteByID[def.RemoteID]) {
			continue
		}

		remote.ID = def.RemoteID
		if err := r.svc.UpdateRule(ctx, remote); err != nil {
			r.warn(ctx, err, "Failed to update rule", map[string]string{"remote_id": def.RemoteID})
			continue
		}
		r.summary.RulesUpdated++
		log.Info().Str("remote_id", def.RemoteID).Str("rule", describeRule(def)).Msg("Updated remote rule")
	}

	if dirty {
		if r.dryRun {
			// Placeholder ids must never be persisted.
			log.Info().Str("path", r.cfg.RulesPath).Msg("[DRY RUN] Would rewrite local rule document")
			return nil
		}
		if err := SaveRuleFile(r.cfg.RulesPath, rules); err != nil {
			return fmt.Errorf("SyncRules: %w", err)
		}
		log.Info().Str("path", r.cfg.RulesPath).Msg("Rewrote local rule document")
	}

	return nil
}

// buildRemoteRule converts a local definition to its remote representation,
// resolving entity references. Repaired stale action ids are written back
// into the definition; unresolvable references are logged and sent as-is so
// one bad reference never fails the run.
func (r *Runner) buildRemoteRule(ctx context.Context, def *RuleDef) (ledger.Rule, bool) {
	log := logger.FromContext(ctx)
	repaired := false

	rule := ledger.Rule{
		Stage:        def.Stage,
		ConditionsOp: def.ConditionsOp,
	}
	if rule.ConditionsOp == "" {
		rule.ConditionsOp = "and"
	}

	for _, c := range def.Conditions {
		value := c.Value
		if kind, ok := refKindForField(c.Field); ok {
			res, err := ResolveRef(Ref{Name: c.Value}, kind, r.lookups)
			if err != nil {
				r.warn(ctx, err, "Unresolved reference in rule condition", map[string]string{
					"field": c.Field,
					"value": c.Value,
				})
			} else {
				value = res.ID
			}
		}
		rule.Conditions = append(rule.Conditions, ledger.Condition{Field: c.Field, Op: c.Op, Value: value})
	}

	for i := range def.Actions {
		a := &def.Actions[i]
		action := ledger.Action{Field: a.Field, Op: a.Op, Value: a.Value, ID: a.ID}
		if action.Op == "" {
			action.Op = "set"
		}

		if kind, ok := refKindForField(a.Field); ok {
			res, err := ResolveRef(Ref{Name: a.Value, ID: a.ID}, kind, r.lookups)
			if err != nil {
				r.warn(ctx, err, "Unresolved reference in rule action", map[string]string{
					"field": a.Field,
					"value": a.Value,
					"id":    a.ID,
				})
			} else {
				action.ID = res.ID
				if res.Repaired {
					log.Info().
						Str("field", a.Field).
						Str("value", a.Value).
						Str("old_id", a.ID).
						Str("new_id", res.ID).
						Msg("Repaired stale reference in rule action")
					a.ID = res.ID
					repaired = true
				} else if a.ID == "" {
					a.ID = res.ID
					repaired = true
				}
			}
		}

		rule.Actions = append(rule.Actions, action)
	}

	return rule, repaired
}

// pullRule translates a remote rule into a local definition, mapping resolved
// identifiers back to names where a reverse map exists and leaving raw
// identifiers otherwise.
func (r *Runner) pullRule(remote ledger.Rule) RuleDef {
	def := RuleDef{
		RemoteID:     remote.ID,
		Stage:        remote.Stage,
		ConditionsOp: remote.ConditionsOp,
	}

	for _, c := range remote.Conditions {
		value := c.Value
		if kind, ok := refKindForField(c.Field); ok {
			if name, found := refNameByID(c.Value, kind, r.lookups); found {
				value = name
			}
		}
		def.Conditions = append(def.Conditions, ConditionDef{Field: c.Field, Op: c.Op, Value: value})
	}

	for _, a := range remote.Actions {
		value := a.Value
		if kind, ok := refKindForField(a.Field); ok && a.ID != "" {
			if name, found := refNameByID(a.ID, kind, r.lookups); found {
				value = name
			}
		}
		def.Actions = append(def.Actions, ActionDef{Field: a.Field, Op: a.Op, Value: value, ID: a.ID})
	}

	return def
}

// rulesEqual is structural equality: stage, condition operator, and the
// ordered condition and action lists compared field by field.
func rulesEqual(a, b ledger.Rule) bool {
	if a.Stage != b.Stage || normConditionsOp(a.ConditionsOp) != normConditionsOp(b.ConditionsOp) {
		return false
	}
	if len(a.Conditions) != len(b.Conditions) || len(a.Actions) != len(b.Actions) {
		return false
	}
	for i := range a.Conditions {
		if a.Conditions[i] != b.Conditions[i] {
			return false
		}
	}
	for i := range a.Actions {
		if normAction(a.Actions[i]) != normAction(b.Actions[i]) {
			return false
		}
	}
	return true
}

func normConditionsOp(op string) string {
	if op == "" {
		return "and"
	}
	return op
}

func normAction(a ledger.Action) ledger.Action {
	if a.Op == "" {
		a.Op = "set"
	}
	return a
}

// describeRule produces a short human label for log lines.
func describeRule(def *RuleDef) string {
	if len(def.Conditions) > 0 {
		c := def.Conditions[0]
		return fmt.Sprintf("%s %s %s", c.Field, c.Op, c.Value)
	}
	return "(no conditions)"
}
