package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeArtifact(t *testing.T, root string, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{root}, parts[:len(parts)-1]...)...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(parts[len(parts)-1]), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestResultPlaceholderAndReal(t *testing.T) {
	t.Parallel()
	area := New(t.TempDir())

	got, err := area.Result("job-1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	want := map[string]any{"status": "pending", "message": "Result not ready yet."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("placeholder = %v, want %v", got, want)
	}

	writeArtifact(t, area.Root(), "jobs", "job-1", "results", "result.json", `{"reward": -12.5}`)
	got, err = area.Result("job-1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"reward": -12.5}) {
		t.Errorf("result = %v", got)
	}
}

func TestProgressPlaceholder(t *testing.T) {
	t.Parallel()
	area := New(t.TempDir())

	got, err := area.Progress("job-2")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	want := map[string]any{"progress": "No updates yet."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("placeholder = %v, want %v", got, want)
	}

	writeArtifact(t, area.Root(), "jobs", "job-2", "progress", "progress.json", `{"epoch": 3}`)
	got, err = area.Progress("job-2")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"epoch": float64(3)}) {
		t.Errorf("progress = %v", got)
	}
}

func TestTailLog(t *testing.T) {
	t.Parallel()
	area := New(t.TempDir())

	if _, err := area.TailLog("job-3", 10); !errors.Is(err, ErrNoLog) {
		t.Fatalf("err = %v, want ErrNoLog", err)
	}

	writeArtifact(t, area.Root(), "jobs", "job-3", "logs", "job-3.log", "one\ntwo\nthree\nfour\n")

	lines, err := area.TailLog("job-3", 2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"three", "four"}) {
		t.Errorf("tail = %v", lines)
	}

	all, err := area.TailLog("job-3", 0)
	if err != nil {
		t.Fatalf("tail all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all lines = %v", all)
	}
}

func TestCreateAndOpenLog(t *testing.T) {
	t.Parallel()
	area := New(t.TempDir())

	if _, err := area.OpenLog("job-4"); !errors.Is(err, ErrNoLog) {
		t.Fatalf("err = %v, want ErrNoLog", err)
	}

	f, err := area.CreateLog("job-4")
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	if _, err := f.WriteString("starting\n"); err != nil {
		t.Fatalf("write log: %v", err)
	}
	f.Close()

	r, err := area.OpenLog("job-4")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer r.Close()

	lines, err := area.TailLog("job-4", 1)
	if err != nil || len(lines) != 1 || lines[0] != "starting" {
		t.Errorf("tail = %v, %v", lines, err)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	area := New(t.TempDir())

	writeArtifact(t, area.Root(), "jobs", "job-5", "results", "result.json", `{}`)
	if err := area.Remove("job-5"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(area.Root(), "jobs", "job-5")); !os.IsNotExist(err) {
		t.Error("artifact tree survived removal")
	}

	// Absent trees are not an error.
	if err := area.Remove("job-5"); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestInvalidJobIDRejected(t *testing.T) {
	t.Parallel()
	area := New(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", "a\\b", ".."} {
		if _, err := area.Result(id); !errors.Is(err, ErrInvalidJobID) {
			t.Errorf("Result(%q) err = %v, want ErrInvalidJobID", id, err)
		}
		if err := area.Remove(id); !errors.Is(err, ErrInvalidJobID) {
			t.Errorf("Remove(%q) err = %v, want ErrInvalidJobID", id, err)
		}
	}
}
