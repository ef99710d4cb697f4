package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
log:
  level: warn
redis:
  stats_ttl: 2m
moderation:
  spam_threshold: 0.65
  ban_level: 7
  mute_duration_minutes: 120
  alert_auto_delete: 45s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Fatalf("unexpected log level: %s", cfg.Log.Level)
	}
	if cfg.Redis.StatsTTL != 2*time.Minute {
		t.Fatalf("unexpected stats ttl: %s", cfg.Redis.StatsTTL)
	}
	if cfg.Moderation.SpamThreshold != 0.65 {
		t.Fatalf("unexpected spam threshold: %v", cfg.Moderation.SpamThreshold)
	}
	if cfg.Moderation.BanLevel != 7 {
		t.Fatalf("unexpected ban level: %d", cfg.Moderation.BanLevel)
	}
	if cfg.Moderation.MuteDurationMinutes != 120 {
		t.Fatalf("unexpected mute duration: %d", cfg.Moderation.MuteDurationMinutes)
	}
	if cfg.Moderation.AlertAutoDelete != 45*time.Second {
		t.Fatalf("unexpected alert auto delete: %s", cfg.Moderation.AlertAutoDelete)
	}

	// Untouched keys keep their defaults.
	if cfg.Moderation.KickLevel != 3 {
		t.Fatalf("unexpected kick level default: %d", cfg.Moderation.KickLevel)
	}
	if cfg.Postgres.DSN == "" {
		t.Fatalf("expected default postgres dsn")
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config without file: %v", err)
	}

	if cfg.Moderation.SpamThreshold != 0.8 {
		t.Fatalf("unexpected default spam threshold: %v", cfg.Moderation.SpamThreshold)
	}
	if cfg.Bot.PollTimeout != 30 {
		t.Fatalf("unexpected default poll timeout: %d", cfg.Bot.PollTimeout)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("POSTGRES_DSN", "postgres://env:env@db:5432/mod")
	t.Setenv("MOD_BAN_LEVEL", "9")
	t.Setenv("MOD_SPAM_THRESHOLD", "0.55")
	t.Setenv("CLASSIFIER_URL", "http://classifier:9000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Log.Level != "error" {
		t.Fatalf("env log level not applied: %s", cfg.Log.Level)
	}
	if cfg.Postgres.DSN != "postgres://env:env@db:5432/mod" {
		t.Fatalf("env postgres dsn not applied: %s", cfg.Postgres.DSN)
	}
	if cfg.Moderation.BanLevel != 9 {
		t.Fatalf("env ban level not applied: %d", cfg.Moderation.BanLevel)
	}
	if cfg.Moderation.SpamThreshold != 0.55 {
		t.Fatalf("env spam threshold not applied: %v", cfg.Moderation.SpamThreshold)
	}
	if cfg.Classifier.URL != "http://classifier:9000" {
		t.Fatalf("env classifier url not applied: %s", cfg.Classifier.URL)
	}
}

func TestLoadRejectsMalformedEnvInt(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MOD_KICK_LEVEL", "not-a-number")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for malformed MOD_KICK_LEVEL")
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV",
		"LOG_LEVEL",
		"POSTGRES_DSN",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_STATS_TTL",
		"S3_ENDPOINT",
		"S3_ACCESS_KEY",
		"S3_SECRET_KEY",
		"S3_BUCKET",
		"S3_USE_SSL",
		"BOT_TOKEN",
		"BOT_POLL_TIMEOUT",
		"CLASSIFIER_URL",
		"CLASSIFIER_TIMEOUT",
		"MOD_SPAM_THRESHOLD",
		"MOD_PROFANITY_THRESHOLD",
		"MOD_ALERT_LEVEL",
		"MOD_MUTE_LEVEL",
		"MOD_KICK_LEVEL",
		"MOD_BAN_LEVEL",
		"MOD_MUTE_DURATION_MINUTES",
		"MOD_STRIKE_EXPIRATION_DAYS",
		"MOD_ALERT_TEMPLATE",
		"MOD_ALERT_AUTO_DELETE",
	} {
		t.Setenv(key, "")
	}
}
