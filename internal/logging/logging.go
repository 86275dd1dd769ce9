package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds a development-style zap logger behind logr. With an empty file
// the logs go to stderr. The returned func flushes the logger.
func New(level, file string) (logr.Logger, func(), error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true

	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return logr.Discard(), func() {}, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	if file != "" {
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}

	zapLog, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapr.NewLogger(zapLog), func() { _ = zapLog.Sync() }, nil
}
