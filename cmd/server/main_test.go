package main

import (
	"testing"
	"time"

	"tokostok/backend/internal/config"
)

func baseConfig() config.Config {
	return config.Config{
		Env:           "production",
		AllowedOrigin: "https://toko.example",
		DatabaseURL:   "postgres://tokostok@db/tokostok",
		RemoteTimeout: 10 * time.Second,
		SyncInterval:  time.Minute,
	}
}

func TestValidateServerConfigRejectsWeakProductionValues(t *testing.T) {
	cfg := baseConfig()
	if err := validateServerConfig(cfg); err == nil {
		t.Fatalf("expected missing token secret to be rejected")
	}

	cfg.SyncTokenSecret = "short"
	if err := validateServerConfig(cfg); err == nil {
		t.Fatalf("expected short token secret to be rejected")
	}

	cfg.SyncTokenSecret = "0123456789abcdef0123456789abcdef"
	cfg.AllowedOrigin = "*"
	if err := validateServerConfig(cfg); err == nil {
		t.Fatalf("expected wildcard origin to be rejected")
	}
}

func TestValidateServerConfigAcceptsStrongValues(t *testing.T) {
	cfg := baseConfig()
	cfg.SyncTokenSecret = "0123456789abcdef0123456789abcdef"
	if err := validateServerConfig(cfg); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateServerConfigIsLenientOutsideProduction(t *testing.T) {
	cfg := baseConfig()
	cfg.Env = "development"
	cfg.DatabaseURL = ""
	cfg.AllowedOrigin = "*"
	if err := validateServerConfig(cfg); err != nil {
		t.Fatalf("expected development config to pass, got %v", err)
	}
}
