package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "judge-server.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
mysql:
  dsn: "user:pass@tcp(localhost:3306)/judge?parseTime=true"
redis:
  addr: "localhost:6379"
judge:
  workers: 4
sandbox:
  languages:
    PYTHON:
      timeMultiplier: 2
`)
	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr {
		t.Fatalf("expected default addr, got %s", cfg.Server.Addr)
	}
	if cfg.MQ.Driver != driverMemory {
		t.Fatalf("expected memory driver, got %s", cfg.MQ.Driver)
	}
	if cfg.MQ.Topics.Judge != "judge.tasks" || cfg.MQ.Topics.StatusFinal != "judge.status.final" {
		t.Fatalf("unexpected topics: %+v", cfg.MQ.Topics)
	}
	if cfg.Judge.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Judge.Workers)
	}
	if cfg.Leaderboard.CacheTTL != 30*time.Second {
		t.Fatalf("expected 30s leaderboard ttl, got %s", cfg.Leaderboard.CacheTTL)
	}
	if cfg.Submit.MaxCodeBytes != 64*1024 {
		t.Fatalf("expected 64KiB code limit, got %d", cfg.Submit.MaxCodeBytes)
	}
	if cfg.Sandbox.CompileLimits.CPUTimeMs != 10000 || cfg.Sandbox.RunLimits.PIDs != 32 {
		t.Fatalf("expected sandbox limit defaults, got %+v %+v", cfg.Sandbox.CompileLimits, cfg.Sandbox.RunLimits)
	}
	if cfg.Sandbox.Languages["PYTHON"].TimeMultiplier != 2 {
		t.Fatalf("expected python override, got %+v", cfg.Sandbox.Languages)
	}
	if !cfg.CORS.Enabled || len(cfg.CORS.AllowedOrigins) == 0 {
		t.Fatalf("expected default cors config, got %+v", cfg.CORS)
	}
	if cfg.Redis.PoolSize == 0 {
		t.Fatalf("expected redis defaults applied")
	}
}

func TestLoadAppConfigSandboxRetries(t *testing.T) {
	base := "mysql:\n  dsn: x\nredis:\n  addr: localhost:6379\n"
	cases := []struct {
		name string
		body string
		want int
	}{
		{"unset", base, defaultSandboxRetries},
		{"disabled", base + "judge:\n  sandboxRetries: 0\n", 0},
		{"explicit", base + "judge:\n  sandboxRetries: 5\n", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadAppConfig(writeConfig(t, tc.body))
			if err != nil {
				t.Fatalf("load config: %v", err)
			}
			if cfg.Judge.SandboxRetries == nil || *cfg.Judge.SandboxRetries != tc.want {
				t.Fatalf("expected %d sandbox retries, got %v", tc.want, cfg.Judge.SandboxRetries)
			}
		})
	}
}

func TestLoadAppConfigRequiresStores(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	if _, err := loadAppConfig(writeConfig(t, "redis:\n  addr: localhost:6379\n")); err == nil {
		t.Fatalf("expected error without mysql dsn")
	}
	if _, err := loadAppConfig(writeConfig(t, "mysql:\n  dsn: x\n")); err == nil {
		t.Fatalf("expected error without redis addr")
	}
}

func TestLoadAppConfigKafkaValidation(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	base := "mysql:\n  dsn: x\nredis:\n  addr: y\n"
	if _, err := loadAppConfig(writeConfig(t, base+"mq:\n  driver: kafka\n")); err == nil {
		t.Fatalf("expected error without kafka brokers")
	}
	if _, err := loadAppConfig(writeConfig(t, base+"mq:\n  driver: rabbit\n")); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	cfg, err := loadAppConfig(writeConfig(t, base+"mq:\n  driver: KAFKA\n  kafka:\n    brokers: [\"b1:9092\"]\n    compression: zstd\n"))
	if err != nil {
		t.Fatalf("load kafka config: %v", err)
	}
	mqCfg, err := cfg.MQ.Kafka.toMQConfig()
	if err != nil {
		t.Fatalf("to mq config: %v", err)
	}
	if len(mqCfg.Brokers) != 1 || mqCfg.Compression != kafka.Zstd {
		t.Fatalf("unexpected kafka config: %+v", mqCfg)
	}
	if _, err := loadAppConfig(writeConfig(t, base+"mq:\n  driver: kafka\n  kafka:\n    brokers: [\"b1:9092\"]\n    compression: brotli\n")); err == nil {
		t.Fatalf("expected error for unsupported compression")
	}
}

func TestEnvOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "MYSQL_DSN=env-dsn\nREDIS_ADDR=env-redis:6379\nKAFKA_BROKERS=k1:9092, k2:9092\nMINIO_ACCESS_KEY=ak\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	for _, key := range []string{"MYSQL_DSN", "REDIS_ADDR", "KAFKA_BROKERS", "MINIO_ACCESS_KEY"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	if err := loadEnvFile(envFile); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	cfg, err := loadAppConfig(writeConfig(t, "mysql:\n  dsn: yaml-dsn\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MySQL.DSN != "env-dsn" || cfg.Redis.Addr != "env-redis:6379" {
		t.Fatalf("expected env overrides, got dsn=%s redis=%s", cfg.MySQL.DSN, cfg.Redis.Addr)
	}
	if len(cfg.MQ.Kafka.Brokers) != 2 || cfg.MQ.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.MQ.Kafka.Brokers)
	}
	if cfg.MinIO.AccessKey != "ak" {
		t.Fatalf("expected minio access key override, got %q", cfg.MinIO.AccessKey)
	}
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}
