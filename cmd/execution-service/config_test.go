package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"coderank/internal/admission"

	"github.com/segmentio/kafka-go"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	path := writeConfig(t, "auth:\n  mode: header\n")

	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "memory" {
		t.Fatalf("expected memory driver, got %q", cfg.Database.Driver)
	}
	if cfg.Admission.Policy.Limit(admission.RolePremium) != 100 {
		t.Fatalf("expected default premium limit, got %d", cfg.Admission.Policy.Limit(admission.RolePremium))
	}
	if cfg.Validator.MaxLength != defaultMaxSourceLength {
		t.Fatalf("expected default max length, got %d", cfg.Validator.MaxLength)
	}
	if cfg.Kafka.StatusTopic != defaultStatusTopic {
		t.Fatalf("expected default topic, got %q", cfg.Kafka.StatusTopic)
	}
}

func TestLoadAppConfigSections(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
database:
  driver: Postgres
  postgres:
    dsn: "postgres://localhost/coderank"
redis:
  enabled: true
  addr: "127.0.0.1:6379"
archive:
  enabled: true
  endpoint: "minio:9000"
  bucket: "runs"
auth:
  mode: jwt
  jwtSecret: secret
admission:
  enabled: true
  backend: redis
  policy:
    window: 30s
    limits:
      USER: 3
languages:
  - id: PYTHON
    extension: py
    steps: ["python3 {file}"]
`)

	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("expected addr override, got %q", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected normalized driver, got %q", cfg.Database.Driver)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("expected inline redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Archive.Endpoint != "minio:9000" || cfg.Archive.Bucket != "runs" {
		t.Fatalf("unexpected archive config: %+v", cfg.Archive)
	}
	if cfg.Admission.Policy.Window != 30*time.Second || cfg.Admission.Policy.Limit(admission.RoleUser) != 3 {
		t.Fatalf("unexpected policy: %+v", cfg.Admission.Policy)
	}
	if len(cfg.Languages) != 1 || cfg.Languages[0].ID != "PYTHON" {
		t.Fatalf("unexpected languages: %+v", cfg.Languages)
	}
}

func TestValidateConfigRejectsMissingDependencies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "unknown driver", body: "auth:\n  mode: header\ndatabase:\n  driver: sqlite\n"},
		{name: "cache without redis", body: "auth:\n  mode: header\ncache:\n  enabled: true\n"},
		{name: "redis gate without redis", body: "auth:\n  mode: header\nadmission:\n  enabled: true\n  backend: redis\n"},
		{name: "jwt without secret", body: "auth:\n  mode: jwt\n"},
		{name: "unknown auth mode", body: "auth:\n  mode: basic\n"},
		{name: "blacklist without redis", body: "auth:\n  mode: jwt\n  jwtSecret: s\n  blacklist: true\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := loadAppConfig(writeConfig(t, tt.body)); err == nil {
				t.Fatalf("expected config error")
			}
		})
	}
}

func TestKafkaSettingsConversion(t *testing.T) {
	settings := KafkaSettings{
		Brokers:      []string{"k1:9092"},
		RequiredAcks: -1,
		Compression:  "ZSTD",
	}
	cfg := settings.toKafkaConfig()
	if cfg.Compression != kafka.Zstd {
		t.Fatalf("expected zstd compression, got %v", cfg.Compression)
	}
	if cfg.RequiredAcks != kafka.RequireAll {
		t.Fatalf("expected require all, got %v", cfg.RequiredAcks)
	}
	if parseCompression("none") != kafka.Compression(0) {
		t.Fatalf("expected no compression for unknown value")
	}
}
