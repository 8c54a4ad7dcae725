package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nexepic/metrix-studio/pkg/audit"
	"github.com/nexepic/metrix-studio/pkg/commands"
	"github.com/nexepic/metrix-studio/pkg/config"
	"github.com/nexepic/metrix-studio/pkg/history"
	"github.com/nexepic/metrix-studio/pkg/logging"
	"github.com/nexepic/metrix-studio/pkg/native"
	"github.com/nexepic/metrix-studio/pkg/native/bolt"
	"github.com/nexepic/metrix-studio/pkg/native/kuzudb"

	// Registers the "metrix" engine (the C binding or its stub).
	_ "github.com/nexepic/metrix-studio/pkg/native/cmetrix"
)

// app bundles everything a command needs. Close releases it all in reverse
// order of construction.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	history *history.Store
	audit   *audit.Logger
	service *commands.Service

	closers []io.Closer
}

// buildEngine returns the engine named by cfg. Kùzu and Bolt are built with
// the configured options; anything else comes from the registry.
func buildEngine(cfg config.EngineConfig) (native.Engine, error) {
	switch cfg.Name {
	case config.EngineKuzu:
		return kuzudb.New(kuzudb.Options{
			BufferPoolSize: cfg.BufferPoolBytes(),
			MaxNumThreads:  uint64(max(cfg.MaxThreads, 0)),
			ReadOnly:       cfg.ReadOnly,
		}), nil
	case config.EngineBolt:
		return bolt.New(bolt.Options{
			Username:              cfg.Bolt.Username,
			Password:              cfg.Bolt.Password,
			Database:              cfg.Bolt.Database,
			ConnectTimeout:        cfg.Bolt.ConnectTimeout,
			MaxConnectionPoolSize: cfg.Bolt.MaxPoolSize,
		}), nil
	}
	return native.Lookup(cfg.Name)
}

func historyOptions(cfg config.HistoryConfig) history.Options {
	opts := history.DefaultOptions(cfg.DataDir)
	opts.InMemory = cfg.InMemory
	opts.MaxEntries = cfg.MaxEntries
	opts.MaxRecent = cfg.MaxRecent
	return opts
}

// newApp wires logging, history, audit and the service around engine.
func newApp(cfg *config.Config, engine native.Engine) (*app, error) {
	a := &app{cfg: cfg}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	a.logger = logger
	a.closers = append(a.closers, logCloser)

	opts := []commands.Option{commands.WithLogger(logger, cfg.Logging)}

	if cfg.History.Enabled {
		store, err := history.Open(historyOptions(cfg.History))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("history: %w", err)
		}
		a.history = store
		a.closers = append(a.closers, store)
		opts = append(opts, commands.WithHistory(store))
	}

	auditLogger, err := audit.NewLogger(audit.Config{
		Enabled:        cfg.Audit.Enabled,
		LogPath:        cfg.Audit.LogPath,
		IncludeQueries: cfg.Audit.IncludeQueries,
		AlertOnEvents:  audit.DefaultConfig().AlertOnEvents,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("audit: %w", err)
	}
	auditLogger.SetErrorHandler(func(err error) {
		logger.Error("writing audit event", "error", err)
	})
	auditLogger.SetAlertCallback(func(e audit.Event) {
		logger.Error("engine failure recorded", "event", string(e.Type), "path", e.Path, "error", e.Message)
	})
	a.audit = auditLogger
	a.closers = append(a.closers, auditLogger)
	if auditLogger.Enabled() {
		opts = append(opts, commands.WithObserver(auditLogger))
	}

	a.service = commands.New(engine, opts...)
	return a, nil
}

// Close shuts the open database and releases every resource.
func (a *app) Close() error {
	var errs []error
	if a.service != nil {
		if err := a.service.CloseDatabase(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
