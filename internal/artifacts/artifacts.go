// Package artifacts manages the per-job artifact area under the shared
// data directory. Workers write logs and results into it; the API reads
// them back and removes the whole tree when a job is deleted.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrInvalidJobID rejects ids that could escape the artifact area.
	ErrInvalidJobID = errors.New("artifacts: invalid job id")
	// ErrNoLog reports a job without a log file yet.
	ErrNoLog = errors.New("artifacts: no log file")
)

var jobIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Area is rooted at the shared data directory. Every job owns
// jobs/<job_id>/ beneath it: logs/<job_id>.log, results/result.json,
// progress/progress.json.
type Area struct {
	root string
}

func New(root string) *Area {
	return &Area{root: root}
}

// Root returns the shared data directory the area is rooted at.
func (a *Area) Root() string { return a.root }

func (a *Area) jobDir(jobID string) (string, error) {
	if !jobIDPattern.MatchString(jobID) {
		return "", ErrInvalidJobID
	}
	return filepath.Join(a.root, "jobs", jobID), nil
}

// LogPath returns where the job's log lives, whether or not it exists.
func (a *Area) LogPath(jobID string) (string, error) {
	dir, err := a.jobDir(jobID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs", jobID+".log"), nil
}

// CreateLog opens the job's log file for appending, creating the
// directory chain on first use. The worker agent streams container
// output into it.
func (a *Area) CreateLog(jobID string) (*os.File, error) {
	path, err := a.LogPath(jobID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return f, nil
}

// OpenLog opens the job's log for reading.
func (a *Area) OpenLog(jobID string) (*os.File, error) {
	path, err := a.LogPath(jobID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNoLog
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return f, nil
}

// TailLog returns the last n lines of the job's log.
func (a *Area) TailLog(jobID string, n int) ([]string, error) {
	path, err := a.LogPath(jobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoLog
	}
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Result returns the parsed result.json, or a pending placeholder while
// the worker has not produced one.
func (a *Area) Result(jobID string) (any, error) {
	dir, err := a.jobDir(jobID)
	if err != nil {
		return nil, err
	}
	return readJSON(filepath.Join(dir, "results", "result.json"), map[string]any{
		"status":  "pending",
		"message": "Result not ready yet.",
	})
}

// Progress returns the parsed progress.json, or a placeholder while the
// worker has not written any updates.
func (a *Area) Progress(jobID string) (any, error) {
	dir, err := a.jobDir(jobID)
	if err != nil {
		return nil, err
	}
	return readJSON(filepath.Join(dir, "progress", "progress.json"), map[string]any{
		"progress": "No updates yet.",
	})
}

// Remove deletes the job's entire artifact tree. Removing an absent tree
// is not an error.
func (a *Area) Remove(jobID string) error {
	dir, err := a.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove artifacts: %w", err)
	}
	return nil
}

func readJSON(path string, placeholder any) (any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return placeholder, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}
