package configstore

import (
	"errors"
	"reflect"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	doc := map[string]any{
		"experiment_name": "lstm",
		"run_name":        "baseline",
		"episodes":        50,
	}
	rel, err := s.Save("exp1.yaml", doc)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rel != "configs/exp1.yaml" {
		t.Errorf("rel path = %q", rel)
	}

	loaded, err := s.Load(rel)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded["experiment_name"] != "lstm" || loaded["episodes"] != 50 {
		t.Errorf("loaded = %v", loaded)
	}
}

func TestSaveDefaultsExtension(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	rel, err := s.Save("noext", map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rel != "configs/noext.yaml" {
		t.Errorf("rel path = %q", rel)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	if _, err := s.Save("exp2.yml", map[string]any{"a": true}); err != nil {
		t.Fatalf("save: %v", err)
	}

	rel, err := s.Resolve("exp2.yml")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rel != "configs/exp2.yml" {
		t.Errorf("rel path = %q", rel)
	}

	// The configs/ prefix in the input is accepted and not doubled.
	rel, err = s.Resolve("configs/exp2.yml")
	if err != nil || rel != "configs/exp2.yml" {
		t.Errorf("prefixed resolve = (%q, %v)", rel, err)
	}

	if _, err := s.Resolve("missing.yaml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

func TestListFiltersYAML(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	for _, name := range []string{"b.yaml", "a.yml", "c.yaml"} {
		if _, err := s.Save(name, map[string]any{}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a.yml", "b.yaml", "c.yaml"}) {
		t.Errorf("names = %v", names)
	}
}

func TestListEmptyStore(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	names, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v", names)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	if _, err := s.Save("gone.yaml", map[string]any{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete("gone.yaml"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete("gone.yaml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestTraversalRejected(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	for _, name := range []string{"../outside.yaml", "a/b.yaml", "..", ".hidden.yaml", ""} {
		if _, err := s.Save(name, map[string]any{}); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidName", name, err)
		}
		if _, err := s.Resolve(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Resolve(%q) err = %v, want ErrInvalidName", name, err)
		}
		if err := s.Delete(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Delete(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
}
