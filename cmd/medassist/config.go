// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/medassist/internal/secrets"
	"github.com/pdiddy/medassist/pkg/types"
)

// loadConfig overlays v onto the defaults, fills API keys from secrets
// and validates the result.
func loadConfig(v *viper.Viper, creds *secrets.Store) (types.Config, error) {
	cfg := types.DefaultConfig()
	if v.IsSet("providers") {
		// A configured provider list replaces the default one entirely.
		cfg.Providers = nil
	}
	// Viper lowercases map keys; match that so overrides replace defaults.
	prompts := make(map[types.Specialty]string, len(cfg.Chat.SpecialtyPrompts))
	for k, p := range cfg.Chat.SpecialtyPrompts {
		prompts[types.Specialty(strings.ToLower(string(k)))] = p
	}
	cfg.Chat.SpecialtyPrompts = prompts
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	creds.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger selected by cfg.
func newLogger(cfg types.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
