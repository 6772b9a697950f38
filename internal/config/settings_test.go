package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *cfg != *Default() {
		t.Fatalf("expected defaults %+v, got %+v", *Default(), *cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FORKDEMO_LOG_LEVEL", "debug")
	t.Setenv("FORKDEMO_LOG_DEV", "true")
	t.Setenv("FORKDEMO_BOMB_PAUSE", "250ms")
	t.Setenv("FORKDEMO_HANDSHAKE", "true")
	t.Setenv("FORKDEMO_METRICS_FILE", "/tmp/metrics.prom")
	t.Setenv("FORKDEMO_REPORT", "/tmp/report.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || !cfg.LogDev {
		t.Fatalf("unexpected log settings: %+v", cfg)
	}
	if cfg.BombPause != 250*time.Millisecond {
		t.Fatalf("expected bomb pause 250ms, got %s", cfg.BombPause)
	}
	if !cfg.Handshake {
		t.Fatalf("expected handshake to be enabled")
	}
	if cfg.MetricsFile != "/tmp/metrics.prom" || cfg.Report != "/tmp/report.yaml" {
		t.Fatalf("unexpected output paths: %+v", cfg)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("FORKDEMO_BOMB_PAUSE", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.LogLevel = "loud"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "log level") {
		t.Fatalf("expected log level error, got %v", err)
	}

	cfg = Default()
	cfg.BombPause = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for negative pause")
	}
}

func TestEnvironRoundTripsThroughLoad(t *testing.T) {
	want := &Config{
		LogLevel:    "info",
		LogDev:      true,
		BombPause:   75 * time.Millisecond,
		Handshake:   true,
		MetricsFile: "/should/not/propagate",
		Report:      "/should/not/propagate",
	}
	for _, kv := range want.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		t.Setenv(key, value)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.LogLevel != want.LogLevel || got.LogDev != want.LogDev || got.BombPause != want.BombPause || got.Handshake != want.Handshake {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if got.MetricsFile != "" || got.Report != "" {
		t.Fatalf("expected output paths to be cleared for children, got %+v", got)
	}
}
