// Package logging builds the zap logger shared by the CLI and the REPL.
// Library packages take *zap.Logger in their constructors and default to
// zap.NewNop; only the binary decides where logs go.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build constructs a production logger at the configured level. verbose
// forces debug regardless of level.
func Build(verbose bool, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
