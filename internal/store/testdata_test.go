package store

import (
	"os"
	"path/filepath"
	"testing"
)

const libraryYAML = `id: library
title: Library
description: |
  Books by **shelf**.
type: vertical
selectMode: multiple
expandMode: lazy
shuffle: true
items:
  - id: fiction
    label: Fiction
    items:
      - id: novels
        items:
          - id: dune
            label: Dune
            image:
              file: img/dune.png
              cacheKey: v1
      - id: poetry
  - id: science
    image:
      url: https://example.com/science.png
custom:
  - id: science
  - id: fiction
    expandable: true
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeLibrary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "library.yaml"), libraryYAML)
	writeFile(t, filepath.Join(dir, "img", "dune.png"), "PNGDATA")
	return dir
}
