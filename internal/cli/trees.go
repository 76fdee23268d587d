package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"canopy/internal/model"
	"canopy/internal/store"
	"canopy/internal/tree"
)

func newTreesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trees",
		Short: "Inspect tree definitions",
	}
	cmd.AddCommand(newTreesListCmd(app))
	cmd.AddCommand(newTreesShowCmd(app))
	cmd.AddCommand(newTreesValidateCmd(app))
	return cmd
}

type treeSummary struct {
	ID         string `json:"id" yaml:"id"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	Type       string `json:"type" yaml:"type"`
	SelectMode string `json:"selectMode" yaml:"selectMode"`
	ExpandMode string `json:"expandMode" yaml:"expandMode"`
	Shuffle    bool   `json:"shuffle" yaml:"shuffle"`
	Rows       int    `json:"rows" yaml:"rows"`
	Source     string `json:"source,omitempty" yaml:"source,omitempty"`
}

type treeRow struct {
	ID         string `json:"id" yaml:"id"`
	Label      string `json:"label" yaml:"label"`
	Depth      int    `json:"depth" yaml:"depth"`
	Expandable bool   `json:"expandable,omitempty" yaml:"expandable,omitempty"`
	Image      string `json:"image,omitempty" yaml:"image,omitempty"`
}

func summarize(t *tree.Tree, def model.Definition) treeSummary {
	n := 0
	if l, ok := t.Model().(interface{ Len() int }); ok {
		n = l.Len()
	}
	return treeSummary{
		ID:         def.ID,
		Title:      def.Title,
		Type:       t.Type().String(),
		SelectMode: t.SelectMode().String(),
		ExpandMode: t.ExpandMode().String(),
		Shuffle:    t.Shuffle(),
		Rows:       n,
		Source:     def.Source,
	}
}

// outline lists every row of the model with all branches expanded.
func outline(t *tree.Tree) []treeRow {
	st := t.NewState()
	st.SetCustomTree(nil)
	all := tree.Set{}
	m := t.Model()
	var walk func(pos tree.Position)
	walk = func(pos tree.Position) {
		for i, n := 0, m.ChildCount(pos); i < n; i++ {
			c := pos.Child(i)
			if m.IsExpandable(c) {
				all[m.ItemID(c)] = struct{}{}
				walk(c)
			}
		}
	}
	walk(nil)
	st.SetExpanded(all)

	rows := t.VisibleRows(st)
	out := make([]treeRow, 0, len(rows))
	for _, r := range rows {
		row := treeRow{ID: r.ID, Label: r.Label, Depth: r.Depth, Expandable: r.Expandable}
		if r.Image != nil {
			row.Image = r.Image.MimeType
			if r.Image.URL != "" {
				row.Image = r.Image.URL
			}
		}
		out = append(out, row)
	}
	return out
}

func newTreesListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded tree definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			out := []treeSummary{}
			for _, id := range catalog.IDs() {
				t, _, _ := catalog.Tree(id)
				def, _ := catalog.Definition(id)
				out = append(out, summarize(t, def))
			}
			return writeOut(cmd, app, map[string]any{
				"data": out,
				"meta": map[string]any{"defs": catalog.Dir(), "count": len(out)},
			})
		},
	}
}

func newTreesShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tree-id|file.yaml>",
		Short: "Show a tree definition and its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := lookupDefinition(app, strings.TrimSpace(args[0]))
			if err != nil {
				return writeErr(cmd, err)
			}
			t, err := store.BuildTree(def)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"tree":       summarize(t, def),
					"definition": def,
					"rows":       outline(t),
				},
			})
		},
	}
}

func isDefinitionFile(arg string) bool {
	ext := strings.ToLower(filepath.Ext(arg))
	return ext == ".yaml" || ext == ".yml"
}

func lookupDefinition(app *App, arg string) (model.Definition, error) {
	if isDefinitionFile(arg) {
		return store.LoadDefinitionFile(arg)
	}
	catalog, err := loadCatalog(app)
	if err != nil {
		return model.Definition{}, err
	}
	def, ok := catalog.Definition(arg)
	if !ok {
		return model.Definition{}, store.NotFoundError{Kind: "tree", ID: arg}
	}
	return def, nil
}

type validationResult struct {
	File     string   `json:"file" yaml:"file"`
	ID       string   `json:"id,omitempty" yaml:"id,omitempty"`
	OK       bool     `json:"ok" yaml:"ok"`
	Problems []string `json:"problems,omitempty" yaml:"problems,omitempty"`
}

func newTreesValidateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file.yaml...]",
		Short: "Validate definition files (default: every file in --defs)",
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args
			if len(files) == 0 {
				defs, err := resolveDefs(app)
				if err != nil {
					return writeErr(cmd, err)
				}
				files, err = definitionFiles(defs)
				if err != nil {
					return writeErr(cmd, err)
				}
			}

			results := make([]validationResult, 0, len(files))
			seen := map[string]string{}
			invalid := 0
			for _, f := range files {
				res := validationResult{File: f, OK: true}
				def, err := store.LoadDefinitionFile(f)
				switch {
				case err != nil:
					res.OK = false
					var verr *store.ValidationError
					if errors.As(err, &verr) {
						res.Problems = verr.Problems
					} else {
						res.Problems = []string{err.Error()}
					}
				case seen[def.ID] != "":
					res.OK = false
					res.Problems = []string{fmt.Sprintf("duplicate tree id %q (also in %s)", def.ID, seen[def.ID])}
				default:
					seen[def.ID] = f
				}
				res.ID = def.ID
				if !res.OK {
					invalid++
				}
				results = append(results, res)
			}

			if err := writeOut(cmd, app, map[string]any{
				"data": results,
				"meta": map[string]any{"files": len(results), "invalid": invalid},
			}); err != nil {
				return err
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d definition file(s) invalid", invalid, len(results))
			}
			return nil
		},
	}
}

func definitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isDefinitionFile(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
