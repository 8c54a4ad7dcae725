package commands

import (
	"log/slog"

	"github.com/nexepic/metrix-studio/pkg/config"
	"github.com/nexepic/metrix-studio/pkg/driver"
)

type logObserver struct {
	logger *slog.Logger
	cfg    config.LoggingConfig
}

// NewLogObserver returns a driver.Observer that writes events to logger.
// Query text appears only when cfg.QueryLogEnabled is set. Completed queries
// at or above cfg.SlowQueryThreshold log at warn level.
func NewLogObserver(logger *slog.Logger, cfg config.LoggingConfig) driver.Observer {
	return logObserver{logger: logger, cfg: cfg}
}

func (o logObserver) Observe(e driver.Event) {
	attrs := []any{"path", e.Path}
	if o.cfg.QueryLogEnabled && e.Query != "" {
		attrs = append(attrs, "query", e.Query)
	}

	switch e.Type {
	case driver.EventOpened:
		o.logger.Info("database opened", attrs...)
	case driver.EventOpenFailed:
		o.logger.Warn("database open failed", append(attrs, "error", e.Message)...)
	case driver.EventClosed:
		o.logger.Info("database closed", attrs...)
	case driver.EventQueryDone:
		attrs = append(attrs,
			"rows", e.Rows,
			"nodes", e.Nodes,
			"edges", e.Edges,
			"duration_ms", e.Duration.Milliseconds(),
		)
		if o.cfg.SlowQueryThreshold > 0 && e.Duration >= o.cfg.SlowQueryThreshold {
			o.logger.Warn("slow query", attrs...)
			return
		}
		if o.cfg.QueryLogEnabled {
			o.logger.Info("query completed", attrs...)
			return
		}
		o.logger.Debug("query completed", attrs...)
	case driver.EventQueryFailed:
		o.logger.Info("query failed", append(attrs, "error", e.Message)...)
	case driver.EventSystemFailed:
		o.logger.Error("query system failure", append(attrs, "error", e.Message)...)
	case driver.EventNodeExtractFailed, driver.EventEdgeExtractFailed:
		o.logger.Warn("graph element extraction failed", append(attrs,
			"event", string(e.Type),
			"row", e.Row,
			"column", e.Column,
			"error", e.Message,
		)...)
	default:
		o.logger.Debug("driver event", append(attrs, "event", string(e.Type))...)
	}
}
