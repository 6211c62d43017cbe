package cmd

import (
	"log/slog"
	"testing"

	"github.com/Annihilater/net-relay/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLogLevel(input); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewLogger_JSONAndText(t *testing.T) {
	t.Parallel()

	jsonLogger := newLogger(config.LoggingConfig{Level: "info", Format: "json"})
	if jsonLogger == nil {
		t.Fatal("newLogger returned nil for json format")
	}
	textLogger := newLogger(config.LoggingConfig{Level: "info", Format: "text"})
	if textLogger == nil {
		t.Fatal("newLogger returned nil for text format")
	}
}

func TestStoreFromConfig_WithoutFileUsesPlainStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults(func(string) bool { return false })

	store := storeFromConfig(cfg)
	if store == nil {
		t.Fatal("storeFromConfig returned nil")
	}
	got := store.Get()
	if got.Server.Host != cfg.Server.Host {
		t.Errorf("store config host = %q, want %q", got.Server.Host, cfg.Server.Host)
	}
}
