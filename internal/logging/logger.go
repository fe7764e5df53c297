// Package logging provides categorized structured logging for keepbot.
// Every subsystem logs through a category logger so operators can grep a
// single concern (store, client, reconcile) out of the combined stream.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config, wiring
	CategorySession   Category = "session"   // Login sequencing, session persistence
	CategoryStore     Category = "store"     // SQLite reads/writes
	CategoryClient    Category = "client"    // Platform bridge client
	CategoryReconcile Category = "reconcile" // Event policy decisions
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the process-wide logger. format is "json" or "text";
// an empty file logs to stderr. Safe to call more than once (tests).
func Initialize(level, format, file string) error {
	var cfg zap.Config
	if format == "text" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	if file != "" {
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
	return nil
}

// Get returns the sugared logger for a category.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := root.Sugar().With("cat", string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Boot logs an info message in the boot category.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Infof(format, args...)
}

// Store logs an info message in the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Infof(format, args...)
}

// StoreDebug logs a debug message in the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debugf(format, args...)
}

// Session logs an info message in the session category.
func Session(format string, args ...interface{}) {
	Get(CategorySession).Infof(format, args...)
}

// Reconcile logs an info message in the reconcile category.
func Reconcile(format string, args ...interface{}) {
	Get(CategoryReconcile).Infof(format, args...)
}
