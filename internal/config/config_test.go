package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("server.port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Orchestrator.SharedDataDir != "/opt/opeva_shared_data" {
		t.Errorf("shared_data_dir = %q", cfg.Orchestrator.SharedDataDir)
	}
	if cfg.Orchestrator.DefaultImage != "calof/opeva_simulator:latest" {
		t.Errorf("default_image = %q", cfg.Orchestrator.DefaultImage)
	}
	if cfg.Agent.PollInterval != "5s" {
		t.Errorf("agent.poll_interval = %q", cfg.Agent.PollInterval)
	}
	if cfg.Agent.WorkerID == "" {
		t.Error("agent.worker_id should fall back to the hostname")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging.level = %q", cfg.Logging.Level)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opeva.toml")
	doc := `
[server]
port = 9100

[orchestrator]
job_status_ttl = "2m"

[agent]
worker_id = "gpu-server-1"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("server.port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Orchestrator.JobStatusTTL != "2m" {
		t.Errorf("job_status_ttl = %q, want 2m", cfg.Orchestrator.JobStatusTTL)
	}
	if cfg.Agent.WorkerID != "gpu-server-1" {
		t.Errorf("agent.worker_id = %q, want gpu-server-1", cfg.Agent.WorkerID)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server.host lost its default: %q", cfg.Server.Host)
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("OPEVA_SERVER_PORT", "9200")
	t.Setenv("OPEVA_ORCHESTRATOR_JOB_STATUS_TTL", "45s")
	t.Setenv("OPEVA_DATABASE_URL", "postgres://opeva:secret@db:5432/opeva")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("server.port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Orchestrator.JobStatusTTL != "45s" {
		t.Errorf("job_status_ttl = %q, want 45s", cfg.Orchestrator.JobStatusTTL)
	}
	if !cfg.Database.PostgresURL() {
		t.Errorf("PostgresURL() = false for %q", cfg.Database.URL)
	}
}

func TestLoadAgentEnvNames(t *testing.T) {
	t.Setenv("OPEVA_SERVER", "http://controller:8000")
	t.Setenv("WORKER_ID", "tiago-laptop")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.ServerURL != "http://controller:8000" {
		t.Errorf("agent.server_url = %q", cfg.Agent.ServerURL)
	}
	if cfg.Agent.WorkerID != "tiago-laptop" {
		t.Errorf("agent.worker_id = %q", cfg.Agent.WorkerID)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in       string
		fallback time.Duration
		want     time.Duration
	}{
		{"90s", time.Minute, 90 * time.Second},
		{"2m", time.Minute, 2 * time.Minute},
		{"", time.Minute, time.Minute},
		{"bogus", 15 * time.Second, 15 * time.Second},
		{"-5s", time.Minute, time.Minute},
	}
	for _, tt := range tests {
		if got := Duration(tt.in, tt.fallback); got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPostgresURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"postgres://u:p@h:5432/db", true},
		{"postgresql://u:p@h/db", true},
		{"/opt/opeva_shared_data/opeva.db", false},
		{"opeva.db", false},
	}
	for _, tt := range tests {
		d := DatabaseConfig{URL: tt.url}
		if got := d.PostgresURL(); got != tt.want {
			t.Errorf("PostgresURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
