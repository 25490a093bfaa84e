// Package logging configures the process-wide slog JSON logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var levelVar = new(slog.LevelVar)

// Setup installs a JSON logger writing to stdout at the given level.
func Setup(level string) (*slog.Logger, error) {
	return SetupWriter(level, os.Stdout)
}

// SetupWriter is Setup with an explicit destination. The level can be
// changed later with SetLevel.
func SetupWriter(level string, w io.Writer) (*slog.Logger, error) {
	if err := SetLevel(level); err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: levelVar,
	}))
	slog.SetDefault(logger)
	return logger, nil
}

func SetLevel(level string) error {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}
	if err := levelVar.UnmarshalText([]byte(normalized)); err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	return nil
}
