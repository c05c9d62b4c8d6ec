// Package configstore keeps experiment configs as YAML files in the
// configs/ directory under the shared data root. Job payloads reference
// them by their shared-dir-relative path (configs/<name>), which is what
// workers see under the container mount.
package configstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidName rejects names that could escape the config directory.
	ErrInvalidName = errors.New("configstore: invalid config name")
	// ErrNotFound reports a config that does not exist.
	ErrNotFound = errors.New("configstore: config not found")
)

const relPrefix = "configs/"

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Store is the YAML config directory.
type Store struct {
	dir string
}

func New(root string) *Store {
	return &Store{dir: filepath.Join(root, "configs")}
}

// cleanName strips the configs/ prefix, validates the remainder and
// defaults the extension to .yaml.
func cleanName(name string) (string, error) {
	name = strings.TrimPrefix(name, relPrefix)
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
		name += ".yaml"
	}
	return name, nil
}

// Save writes doc under name and returns its shared-dir-relative path.
func (s *Store) Save(name string, doc map[string]any) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, clean), data, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return relPrefix + clean, nil
}

// Resolve validates name and returns the shared-dir-relative path of an
// existing config.
func (s *Store) Resolve(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(s.dir, clean)); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return "", fmt.Errorf("stat config: %w", err)
	}
	return relPrefix + clean, nil
}

// Load parses the config at a path previously returned by Save or
// Resolve.
func (s *Store) Load(relPath string) (map[string]any, error) {
	clean, err := cleanName(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, clean))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", clean, err)
	}
	return doc, nil
}

// List returns the stored config file names, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a stored config.
func (s *Store) Delete(name string) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.dir, clean))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	if err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	return nil
}
