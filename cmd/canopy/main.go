package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"canopy/internal/cli"
)

func isDefinitionPath(s string) bool {
	s = strings.TrimSpace(s)
	ext := strings.ToLower(filepath.Ext(s))
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	return len(s) > len(ext)
}

func rewriteDefinitionShowArgs(argv []string) []string {
	// Convenience: `canopy <file>.yaml` works like `canopy trees show <file>.yaml`.
	//
	// Cobra treats the first non-flag token as a subcommand, so argv is
	// rewritten before parsing. Persistent flags may come first
	// (e.g. `canopy --defs ./trees library.yaml`), so look for the first
	// positional token rather than argv[1].
	if len(argv) < 2 {
		return argv
	}

	valueFlags := map[string]bool{
		"--dir":    true,
		"--defs":   true,
		"--format": true,
		"-v":       true,
		"--v":      true,
	}
	boolFlags := map[string]bool{
		"--pretty": true,
	}

	rewrite := func(i int) []string {
		out := make([]string, 0, len(argv)+2)
		out = append(out, argv[:i]...)
		out = append(out, "trees", "show")
		out = append(out, argv[i:]...)
		return out
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) && isDefinitionPath(argv[i+1]) {
				return rewrite(i + 1)
			}
			return argv
		}

		if strings.HasPrefix(a, "-") {
			if strings.Contains(a, "=") || boolFlags[a] {
				continue
			}
			if valueFlags[a] {
				i++
			}
			continue
		}

		if isDefinitionPath(a) {
			return rewrite(i)
		}
		return argv
	}

	return argv
}

func main() {
	os.Args = rewriteDefinitionShowArgs(os.Args)

	cmd := cli.NewRootCmd()
	err := cmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
