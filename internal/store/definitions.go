package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"canopy/internal/model"
	"canopy/internal/tree"
)

// Tree ids double as HTML form parameter prefixes and URL path segments.
var treeIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// LoadDefinitionFile reads and validates one YAML tree definition.
func LoadDefinitionFile(path string) (model.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Definition{}, err
	}
	var def model.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.Definition{}, fmt.Errorf("parsing tree definition %s: %w", path, err)
	}
	def.ID = strings.TrimSpace(def.ID)
	def.Source = path
	if err := ValidateDefinition(def); err != nil {
		return model.Definition{}, err
	}
	return def, nil
}

// LoadDefinitions reads every *.yaml and *.yml file in dir, sorted by tree id.
// Tree ids must be unique across files.
func LoadDefinitions(dir string) ([]model.Definition, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("definitions dir is empty")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []model.Definition
	seen := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		def, err := LoadDefinitionFile(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[def.ID]; ok {
			return nil, fmt.Errorf("duplicate tree id %q in %s and %s", def.ID, prev, path)
		}
		seen[def.ID] = path
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ValidateDefinition reports every problem in def as a *ValidationError.
func ValidateDefinition(def model.Definition) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !treeIDPattern.MatchString(strings.TrimSpace(def.ID)) {
		add("id %q must start with a letter and contain only letters, digits and _", def.ID)
	}
	if _, ok := tree.ParseType(def.Type); !ok {
		add("unknown type %q (want vertical|horizontal)", def.Type)
	}
	if _, ok := tree.ParseSelectMode(def.SelectMode); !ok {
		add("unknown selectMode %q (want single|multiple)", def.SelectMode)
	}
	if _, ok := tree.ParseExpandMode(def.ExpandMode); !ok {
		add("unknown expandMode %q (want client|lazy|dynamic)", def.ExpandMode)
	}

	rows := map[string]bool{}
	var walk func(items []model.NodeDef, path string)
	walk = func(items []model.NodeDef, path string) {
		for i, n := range items {
			where := fmt.Sprintf("%s[%d]", path, i)
			id := strings.TrimSpace(n.ID)
			switch {
			case id == "":
				add("%s: id is required", where)
			case id != n.ID:
				add("%s: id %q has surrounding whitespace", where, n.ID)
			case rows[id]:
				add("%s: duplicate id %q", where, id)
			default:
				rows[id] = true
			}
			if n.Expandable != nil && *n.Expandable && len(n.Items) == 0 {
				add("%s: expandable row %q has no items", where, id)
			}
			if img := n.Image; img != nil {
				hasURL := strings.TrimSpace(img.URL) != ""
				hasFile := strings.TrimSpace(img.File) != ""
				if hasURL == hasFile {
					add("%s: image needs exactly one of url or file", where)
				}
			}
			walk(n.Items, where+".items")
		}
	}
	walk(def.Items, "items")

	custom := map[string]bool{}
	var walkCustom func(items []model.CustomDef, path string)
	walkCustom = func(items []model.CustomDef, path string) {
		for i, c := range items {
			where := fmt.Sprintf("%s[%d]", path, i)
			id := strings.TrimSpace(c.ID)
			switch {
			case id == "":
				add("%s: id is required", where)
			case custom[id]:
				add("%s: duplicate id %q", where, id)
			case !rows[id]:
				add("%s: id %q does not name a row", where, id)
			default:
				custom[id] = true
			}
			walkCustom(c.Items, where+".items")
		}
	}
	walkCustom(def.Custom, "custom")

	if len(problems) > 0 {
		return &ValidationError{Source: def.Source, Problems: problems}
	}
	return nil
}
