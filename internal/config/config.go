// Package config reads the environment (and an optional .env file) shared by
// the parley binaries.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	// Home holds the keyring and session state of the CLI.
	Home     string
	RelayURL string
	// HTTP3 makes the CLI reach the relay, and the relay listen, over QUIC.
	HTTP3 bool
	// Insecure skips relay certificate verification over HTTP/3.
	Insecure bool
	LogLevel zerolog.Level
	// Relay settings.
	Listen      string
	Backend     string
	RedisAddr   string
	RedisPrefix string
	MessageTTL  time.Duration
}

// Load reads PARLEY_* variables. A .env file in the working directory is loaded
// first when present; variables already set win.
func Load() (Config, error) {
	_ = godotenv.Load()

	level, err := zerolog.ParseLevel(envOrDefault("PARLEY_LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("config: PARLEY_LOG_LEVEL: %w", err)
	}
	ttl, err := time.ParseDuration(envOrDefault("PARLEY_MESSAGE_TTL", "0s"))
	if err != nil {
		return Config{}, fmt.Errorf("config: PARLEY_MESSAGE_TTL: %w", err)
	}
	home := os.Getenv("PARLEY_HOME")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, err
		}
		home = filepath.Join(dir, ".parley")
	}
	return Config{
		Home:        home,
		RelayURL:    envOrDefault("PARLEY_RELAY_URL", "http://127.0.0.1:8080"),
		HTTP3:       envBool("PARLEY_HTTP3", false),
		Insecure:    envBool("PARLEY_INSECURE", false),
		LogLevel:    level,
		Listen:      envOrDefault("PARLEY_LISTEN", ":8080"),
		Backend:     envOrDefault("PARLEY_BACKEND", "memory"),
		RedisAddr:   envOrDefault("PARLEY_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPrefix: envOrDefault("PARLEY_REDIS_PREFIX", "parley:"),
		MessageTTL:  ttl,
	}, nil
}

// Logger returns a logger at the configured level. Terminals get the console
// writer, anything else JSON lines.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	if f, ok := w.(*os.File); ok {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
		}
	}
	return zerolog.New(w).Level(c.LogLevel).With().Timestamp().Logger()
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
