// Package datasets manages the datasets/ directory under the shared data
// root. A dataset is a named directory holding a schema.json plus the
// uploaded data files, exported for simulation containers to read.
package datasets

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var (
	// ErrInvalidName rejects dataset or file names that could escape the
	// dataset directory.
	ErrInvalidName = errors.New("datasets: invalid name")
	// ErrBadEncoding reports a data file that is not valid base64.
	ErrBadEncoding = errors.New("datasets: bad file encoding")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Store is the dataset directory.
type Store struct {
	dir string
}

func New(root string) *Store {
	return &Store{dir: filepath.Join(root, "datasets")}
}

// Create materializes a dataset directory with its schema and decoded
// data files. Files map names to base64-encoded content. Returns the
// dataset's path relative to the shared data root.
func (s *Store) Create(name string, schema map[string]any, files map[string]string) (string, error) {
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for fname := range files {
		if !namePattern.MatchString(fname) {
			return "", fmt.Errorf("%w: file %q", ErrInvalidName, fname)
		}
	}

	dir := filepath.Join(s.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dataset dir: %w", err)
	}

	schemaData, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "schema.json"), schemaData, 0o644); err != nil {
		return "", fmt.Errorf("write schema: %w", err)
	}

	for fname, b64 := range files {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrBadEncoding, fname, err)
		}
		if err := os.WriteFile(filepath.Join(dir, fname), data, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", fname, err)
		}
	}
	return filepath.Join("datasets", name), nil
}

// List returns the names of all datasets, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
