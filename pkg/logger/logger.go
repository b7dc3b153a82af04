package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how the global logger is constructed.
type Config struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string
	// ServiceName is stamped on every log line as "service".
	ServiceName string
	// Development enables human-readable console output and caller info
	// instead of JSON, mirroring zap's development preset.
	Development bool
}

var (
	mu      sync.RWMutex
	global  *zap.SugaredLogger
	rawOnce *zap.Logger
)

// Init builds the global logger from cfg. Safe to call once at process
// startup; subsequent calls replace the global logger.
func Init(cfg Config) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return err
		}
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	l, err := zcfg.Build(zap.Fields(zap.String("service", cfg.ServiceName)))
	if err != nil {
		return err
	}

	mu.Lock()
	rawOnce = l
	global = l.Sugar()
	mu.Unlock()
	return nil
}

// Get returns the global logger, falling back to a bare production
// logger if Init was never called (e.g. in a unit test).
func Get() *zap.SugaredLogger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	fallback, _ := zap.NewProduction()
	return fallback.Sugar()
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	mu.RLock()
	l := rawOnce
	mu.RUnlock()
	if l == nil {
		return nil
	}
	return l.Sync()
}
