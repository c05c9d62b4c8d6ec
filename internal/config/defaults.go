package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.host": "0.0.0.0",
		"server.port": 8000,

		"database.url":             "/opt/opeva_shared_data/opeva.db",
		"database.max_connections": 25,

		"orchestrator.shared_data_dir":    "/opt/opeva_shared_data",
		"orchestrator.data_mount_path":    "/data",
		"orchestrator.default_image":      "calof/opeva_simulator:latest",
		"orchestrator.tracking_uri":       "http://MAIN-SERVER:5000",
		"orchestrator.job_status_ttl":     "90s",
		"orchestrator.host_heartbeat_ttl": "30s",
		"orchestrator.worker_stale_grace": "60s",
		"orchestrator.queue_claim_ttl":    "60s",
		"orchestrator.monitor_interval":   "15s",

		"agent.server_url":         "http://localhost:8000",
		"agent.shared_data_dir":    "/opt/opeva_shared_data",
		"agent.docker_binary":      "docker",
		"agent.docker_network":     "opeva_network",
		"agent.poll_interval":      "5s",
		"agent.heartbeat_interval": "10s",
		"agent.report_interval":    "30s",

		"logging.level":  "info",
		"logging.format": "pretty",
	}

	for key, val := range defaults {
		k.Set(key, val)
	}
	return nil
}
