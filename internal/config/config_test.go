package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PARLEY_HOME", "/tmp/parley-test")
	for _, k := range []string{"PARLEY_RELAY_URL", "PARLEY_HTTP3", "PARLEY_LOG_LEVEL", "PARLEY_BACKEND", "PARLEY_MESSAGE_TTL"} {
		t.Setenv(k, "")
	}
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Home != "/tmp/parley-test" || c.RelayURL != "http://127.0.0.1:8080" || c.HTTP3 || c.Backend != "memory" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.LogLevel != zerolog.InfoLevel || c.MessageTTL != 0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PARLEY_HOME", "/tmp/x")
	t.Setenv("PARLEY_HTTP3", "true")
	t.Setenv("PARLEY_LOG_LEVEL", "debug")
	t.Setenv("PARLEY_BACKEND", "redis")
	t.Setenv("PARLEY_MESSAGE_TTL", "72h")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.HTTP3 || c.LogLevel != zerolog.DebugLevel || c.Backend != "redis" || c.MessageTTL != 72*time.Hour {
		t.Fatalf("overrides not applied: %+v", c)
	}
}

func TestLoadRejectsBadLevel(t *testing.T) {
	t.Setenv("PARLEY_HOME", "/tmp/x")
	t.Setenv("PARLEY_LOG_LEVEL", "loud")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Config{LogLevel: zerolog.WarnLevel}.Logger(&buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	if bytes.Contains(buf.Bytes(), []byte("hidden")) || !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("level not applied: %s", buf.String())
	}
}
