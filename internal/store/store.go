package store

import (
	"os"
	"path/filepath"
	"strings"
)

const stateDirName = ".canopy"

// Store owns the state directory holding the SQLite database.
type Store struct {
	Dir string
}

// DiscoverDir walks up from start looking for a .canopy directory.
func DiscoverDir(start string) (string, bool) {
	dir := start
	for {
		candidate := filepath.Join(dir, stateDirName)
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// DefaultDir returns the nearest existing .canopy directory, or ./.canopy.
func DefaultDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if found, ok := DiscoverDir(cwd); ok {
		return found, nil
	}
	return filepath.Join(cwd, stateDirName), nil
}

// DefaultDefinitionsDir is the "trees" directory next to the state directory.
func DefaultDefinitionsDir(stateDir string) string {
	stateDir = strings.TrimSpace(stateDir)
	if stateDir == "" {
		return "trees"
	}
	return filepath.Join(filepath.Dir(filepath.Clean(stateDir)), "trees")
}

func (s Store) Ensure() error {
	return os.MkdirAll(s.Dir, 0o755)
}
