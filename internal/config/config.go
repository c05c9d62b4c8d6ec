package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Agent        AgentConfig        `koanf:"agent"`
	Logging      LoggingConfig      `koanf:"logging"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// DatabaseConfig selects the backend by URL scheme: postgres:// and
// postgresql:// go to the pgx store, anything else is treated as a
// SQLite file path.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConnections int    `koanf:"max_connections"`
}

type OrchestratorConfig struct {
	SharedDataDir    string `koanf:"shared_data_dir"`
	DataMountPath    string `koanf:"data_mount_path"`
	DefaultImage     string `koanf:"default_image"`
	TrackingURI      string `koanf:"tracking_uri"`
	JobStatusTTL     string `koanf:"job_status_ttl"`
	HostHeartbeatTTL string `koanf:"host_heartbeat_ttl"`
	WorkerStaleGrace string `koanf:"worker_stale_grace"`
	QueueClaimTTL    string `koanf:"queue_claim_ttl"`
	MonitorInterval  string `koanf:"monitor_interval"`
}

type AgentConfig struct {
	ServerURL         string `koanf:"server_url"`
	WorkerID          string `koanf:"worker_id"`
	SharedDataDir     string `koanf:"shared_data_dir"`
	DockerBinary      string `koanf:"docker_binary"`
	DockerNetwork     string `koanf:"docker_network"`
	PollInterval      string `koanf:"poll_interval"`
	HeartbeatInterval string `koanf:"heartbeat_interval"`
	ReportInterval    string `koanf:"report_interval"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads config from TOML file (if provided) then overlays env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	// 2. Load TOML config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// 3. Load env vars: OPEVA_SERVER_PORT -> server.port. The first
	// underscore separates section from key, the rest stay literal
	// (OPEVA_ORCHESTRATOR_JOB_STATUS_TTL -> orchestrator.job_status_ttl).
	// Empty values are skipped so they never override TOML config.
	if err := k.Load(env.ProviderWithValue("OPEVA_", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		parts := strings.SplitN(
			strings.ToLower(strings.TrimPrefix(key, "OPEVA_")),
			"_", 2,
		)
		if len(parts) != 2 {
			return "", nil
		}
		return parts[0] + "." + parts[1], value
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Env names existing agent deployments already export.
	if v := os.Getenv("OPEVA_SERVER"); v != "" {
		cfg.Agent.ServerURL = v
	}
	if v := os.Getenv("WORKER_ID"); v != "" {
		cfg.Agent.WorkerID = v
	}

	// Worker id falls back to the hostname, same as the agents do.
	if cfg.Agent.WorkerID == "" {
		hostname, _ := os.Hostname()
		cfg.Agent.WorkerID = hostname
	}

	return &cfg, nil
}

// Duration parses s, falling back when it is empty or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// PostgresURL reports whether the database URL points at a pgx backend
// rather than a SQLite file.
func (d DatabaseConfig) PostgresURL() bool {
	return strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://")
}
