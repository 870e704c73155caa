// Package logging builds the process-wide zap logger.
//
// Verbosity is selected by the RUNPAR_LOG environment variable
// (debug, info, warn, error). The default is warn so that child output
// on stdout/stderr stays clean unless the user asks for diagnostics.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVar names the environment variable that selects the log level.
const EnvVar = "RUNPAR_LOG"

// New constructs the root logger. Output goes to stderr; timestamps,
// callers and stacktraces are suppressed so diagnostics read like a
// CLI, not a server log.
func New() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(levelFromEnv())
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	return zap.Must(cfg.Build())
}

// levelFromEnv maps $RUNPAR_LOG to a zap level, defaulting to warn.
func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv(EnvVar)) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning", "":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}
