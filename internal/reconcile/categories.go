package reconcile

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

// CategoryFile is the local declarative taxonomy document.
type CategoryFile struct {
	Groups []GroupDef `yaml:"groups"`
}

// GroupDef is a category group in the local document.
type GroupDef struct {
	Name       string        `yaml:"name"`
	IsIncome   bool          `yaml:"is_income,omitempty"`
	Hidden     bool          `yaml:"hidden,omitempty"`
	Categories []CategoryDef `yaml:"categories"`
}

// CategoryDef is a category in the local document.
type CategoryDef struct {
	Name   string `yaml:"name"`
	Hidden bool   `yaml:"hidden,omitempty"`
}

// LoadCategoryFile reads the local taxonomy; a missing file is an empty one.
func LoadCategoryFile(path string) (*CategoryFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &CategoryFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LoadCategoryFile: %w", err)
	}

	var f CategoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("LoadCategoryFile: parsing %s: %w", path, err)
	}
	return &f, nil
}

// SaveCategoryFile rewrites the local taxonomy document.
func SaveCategoryFile(path string, f *CategoryFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("SaveCategoryFile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("SaveCategoryFile: %w", err)
	}
	return nil
}

// SyncCategories synchronizes the taxonomy bidirectionally: a pull pass folds
// remote-only groups, categories and hidden-flag changes into the local
// document (remote wins on flag conflicts), then a push pass creates whatever
// exists only locally. Matching is case-insensitive and trimmed throughout.
func (r *Runner) SyncCategories(ctx context.Context) error {
	log := logger.FromContext(ctx)

	local, err := LoadCategoryFile(r.cfg.CategoryPath)
	if err != nil {
		return err
	}

	changed := r.pullCategories(ctx, local)
	if changed {
		if r.dryRun {
			log.Info().Str("path", r.cfg.CategoryPath).Msg("[DRY RUN] Would update local category document from remote")
		} else {
			if err := SaveCategoryFile(r.cfg.CategoryPath, local); err != nil {
				return err
			}
			log.Info().Str("path", r.cfg.CategoryPath).Msg("Updated local category document from remote")
		}
	}

	r.pushCategories(ctx, local)
	return nil
}

// pullCategories folds the remote taxonomy into the local document and
// reports whether anything changed.
func (r *Runner) pullCategories(ctx context.Context, local *CategoryFile) bool {
	log := logger.FromContext(ctx)
	changed := false

	groupIdx := map[string]int{}
	for i := range local.Groups {
		groupIdx[normName(local.Groups[i].Name)] = i
	}

	remoteGroups := make([]ledger.CategoryGroup, 0, len(r.lookups.groupByID))
	for _, g := range r.lookups.groupByID {
		remoteGroups = append(remoteGroups, g)
	}
	sort.Slice(remoteGroups, func(i, j int) bool { return remoteGroups[i].Name < remoteGroups[j].Name })

	for _, remote := range remoteGroups {
		idx, ok := groupIdx[normName(remote.Name)]
		if !ok {
			g := GroupDef{Name: remote.Name, IsIncome: remote.IsIncome, Hidden: remote.Hidden}
			for _, c := range remote.Categories {
				g.Categories = append(g.Categories, CategoryDef{Name: c.Name, Hidden: c.Hidden})
			}
			local.Groups = append(local.Groups, g)
			groupIdx[normName(remote.Name)] = len(local.Groups) - 1
			changed = true
			log.Debug().Str("group", remote.Name).Msg("Pulled remote category group")
			continue
		}

		lg := &local.Groups[idx]
		if lg.Hidden != remote.Hidden {
			lg.Hidden = remote.Hidden
			changed = true
		}

		catIdx := map[string]int{}
		for i := range lg.Categories {
			catIdx[normName(lg.Categories[i].Name)] = i
		}
		for _, c := range remote.Categories {
			i, ok := catIdx[normName(c.Name)]
			if !ok {
				lg.Categories = append(lg.Categories, CategoryDef{Name: c.Name, Hidden: c.Hidden})
				changed = true
				log.Debug().Str("group", remote.Name).Str("category", c.Name).Msg("Pulled remote category")
				continue
			}
			if lg.Categories[i].Hidden != c.Hidden {
				lg.Categories[i].Hidden = c.Hidden
				changed = true
			}
		}
	}

	return changed
}

// pushCategories creates remotely whatever the local document has that the
// remote taxonomy lacks, and pushes hidden-flag updates for matched entries.
// A failure on one group or category skips that entry only.
func (r *Runner) pushCategories(ctx context.Context, local *CategoryFile) {
	log := logger.FromContext(ctx)

	for _, g := range local.Groups {
		groupID, ok := r.lookups.GroupIDByName(g.Name)
		if !ok {
			id, err := r.svc.CreateCategoryGroup(ctx, ledger.CategoryGroup{
				Name:     g.Name,
				IsIncome: g.IsIncome,
				Hidden:   g.Hidden,
			})
			if err != nil {
				r.warn(ctx, err, "Failed to create category group", map[string]string{"group": g.Name})
				continue
			}
			groupID = id
			r.lookups.AddGroup(ledger.CategoryGroup{ID: id, Name: g.Name, IsIncome: g.IsIncome, Hidden: g.Hidden})
			r.summary.GroupsCreated++
			log.Info().Str("group", g.Name).Str("remote_id", id).Msg("Created remote category group")
		} else if remote := r.lookups.groupByID[groupID]; remote.Hidden != g.Hidden {
			remote.Hidden = g.Hidden
			if err := r.svc.UpdateCategoryGroup(ctx, remote); err != nil {
				r.warn(ctx, err, "Failed to update category group", map[string]string{"group": g.Name})
			} else {
				r.lookups.AddGroup(remote)
				r.summary.CategoriesUpdated++
			}
		}

		for _, c := range g.Categories {
			catID, ok := r.lookups.CategoryIDByScopedName(g.Name, c.Name)
			if !ok {
				id, err := r.svc.CreateCategory(ctx, ledger.Category{
					Name:    c.Name,
					GroupID: groupID,
					Hidden:  c.Hidden,
				})
				if err != nil {
					r.warn(ctx, err, "Failed to create category", map[string]string{
						"group":    g.Name,
						"category": c.Name,
					})
					continue
				}
				r.lookups.AddCategory(g.Name, ledger.Category{ID: id, Name: c.Name, GroupID: groupID, Hidden: c.Hidden})
				r.summary.CategoriesCreated++
				log.Info().Str("group", g.Name).Str("category", c.Name).Str("remote_id", id).Msg("Created remote category")
				continue
			}

			if remote := r.lookups.categoryByID[catID]; remote.Hidden != c.Hidden {
				remote.Hidden = c.Hidden
				if err := r.svc.UpdateCategory(ctx, remote); err != nil {
					r.warn(ctx, err, "Failed to update category", map[string]string{
						"group":    g.Name,
						"category": c.Name,
					})
					continue
				}
				r.lookups.AddCategory(g.Name, remote)
				r.summary.CategoriesUpdated++
			}
		}
	}
}
