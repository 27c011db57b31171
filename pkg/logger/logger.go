// Package logger provides the process-wide structured logger used by
// the server outside the core (pkg/server, cmd/server). The
// core packages (internal/piecetable, internal/history, internal/editor)
// never log — per spec §7 the core never logs or retries, it only returns
// errors to its caller.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

var log *zap.SugaredLogger

func init() {
	// A usable default before Init is called, e.g. in package tests that
	// exercise pkg/server without going through cmd/server/main.go.
	l, _ := zap.NewDevelopment()
	log = l.Sugar()
}

// Init (re)configures the global logger from level (debug|info|warn|error,
// default info) and format (console|json, default console).
func Init(level, format string) error {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	var zl zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		zl = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zl = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zl = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = zl

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	log = built.Sugar()
	return nil
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	_ = log.Sync()
}

func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
