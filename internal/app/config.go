package app

import (
	"os"

	"github.com/shandysiswandi/gostage/internal/pkg/pkgconfig"
)

// ConfigPath is where the config file lives: ./config/config.yaml when
// LOCAL=true, /config/config.yaml otherwise.
func ConfigPath() string {
	if os.Getenv("LOCAL") == "true" {
		return "./config/config.yaml"
	}
	return "/config/config.yaml"
}

// Defaults are used for every key the file and GOSTAGE_* environment leave
// unset.
func Defaults() map[string]any {
	return map[string]any{
		"tz":        "UTC",
		"log.level": "info",

		"server.address.http":         ":8080",
		"server.cors.allowed_origins": "*",

		"modules.ingest.enabled": true,

		"ingest.max_files":          10,
		"ingest.max_file_bytes":     300 << 20,
		"ingest.upload_concurrency": 0,
		"ingest.spool_dir":          "",

		"collaborator.base_url":       "http://localhost:8000/api",
		"collaborator.timeout":        "30s",
		"collaborator.upload_timeout": "0s",

		"catalog.ttl": "5m",

		"backend.kind":                 "http",
		"backend.s3.region":            "",
		"backend.s3.bucket":            "",
		"backend.s3.prefix":            "",
		"backend.s3.endpoint":          "",
		"backend.s3.use_path_style":    false,
		"backend.s3.access_key_id":     "",
		"backend.s3.secret_access_key": "",
		"backend.s3.session_token":     "",

		"events.buffer":       512,
		"events.workers":      1,
		"events.max_retries":  3,
		"events.base_backoff": "200ms",
		"notices.limit":       200,

		"dropzone.enabled": false,
		"dropzone.dir":     "",
		"dropzone.settle":  "500ms",

		"telemetry.enabled":        false,
		"telemetry.endpoint":       "localhost:4317",
		"telemetry.insecure":       true,
		"telemetry.sampling_ratio": 1.0,
	}
}

// LoadConfig reads path with defaults and GOSTAGE_* overrides. A missing file
// is tolerated.
func LoadConfig(path string) (*pkgconfig.Viper, error) {
	return pkgconfig.NewViper(path,
		pkgconfig.WithDefaults(Defaults()),
		pkgconfig.WithEnvPrefix("GOSTAGE"),
		pkgconfig.WithOptionalFile(),
	)
}
