package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectTokenSecret(t *testing.T) {
	t.Setenv("SYNC_TOKEN_SECRET", "")

	cfg := Load()
	if cfg.SyncTokenSecret != "" {
		t.Fatalf("expected empty SYNC_TOKEN_SECRET when unset, got %q", cfg.SyncTokenSecret)
	}
}

func TestLoadParsesDurationsAndLists(t *testing.T) {
	t.Setenv("SYNC_INTERVAL_SECONDS", "15")
	t.Setenv("REMOTE_TIMEOUT_SECONDS", "nope")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("REMOTE_URL", "http://sync.local/")
	t.Setenv("DEVICE_ID", "till-1")
	t.Setenv("KAFKA_CONSUMER_GROUP", "")

	cfg := Load()
	if cfg.SyncInterval != 15*time.Second {
		t.Fatalf("expected 15s interval, got %s", cfg.SyncInterval)
	}
	if cfg.RemoteTimeout != 10*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.RemoteTimeout)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.RemoteURL != "http://sync.local" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.RemoteURL)
	}
	if cfg.KafkaConsumerGroup != "tokostok-agent-till-1" {
		t.Fatalf("expected per-device consumer group, got %q", cfg.KafkaConsumerGroup)
	}
}

func TestValidate(t *testing.T) {
	base := Config{SyncInterval: time.Minute, RemoteTimeout: time.Second}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}

	weak := base
	weak.SyncTokenSecret = "short"
	if err := weak.Validate(); err == nil {
		t.Fatalf("expected short token secret to be rejected")
	}

	badURL := base
	badURL.RemoteURL = "ftp://x"
	if err := badURL.Validate(); err == nil {
		t.Fatalf("expected non-http remote url to be rejected")
	}
}
