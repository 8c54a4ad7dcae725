// Package commands exposes the database operations the UI, HTTP server and
// CLI call: open, connect, query, close, plus query history and recent
// connections.
//
// A Service owns the single shared connection slot (session.Guard). Each
// operation runs inside an OpenTelemetry span. Query runs are recorded in the
// history store when one is configured; history failures are logged and never
// change an operation's outcome.
//
// Example:
//
//	engine, _ := native.Lookup("metrix")
//	svc := commands.New(engine,
//		commands.WithHistory(store),
//		commands.WithLogger(logger, cfg.Logging),
//	)
//	defer svc.Shutdown(ctx)
//
//	msg, err := svc.OpenDatabase(ctx, "/data/movies.mx")
//	fmt.Println(msg) // Database created/opened at /data/movies.mx
//
//	res, err := svc.RunQuery(ctx, "MATCH (n:Movie) RETURN n LIMIT 10")
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexepic/metrix-studio/pkg/config"
	"github.com/nexepic/metrix-studio/pkg/driver"
	"github.com/nexepic/metrix-studio/pkg/history"
	"github.com/nexepic/metrix-studio/pkg/logging"
	"github.com/nexepic/metrix-studio/pkg/native"
	"github.com/nexepic/metrix-studio/pkg/session"
)

// TracerName is the instrumentation scope of the service's spans.
const TracerName = "github.com/nexepic/metrix-studio/pkg/commands"

// ErrHistoryDisabled is returned by history operations when no store is
// configured.
var ErrHistoryDisabled = errors.New("query history is disabled")

// Status reports the connection slot.
type Status struct {
	State     string `json:"state"`
	Path      string `json:"path,omitempty"`
	Connected bool   `json:"connected"`
}

// Option configures a Service.
type Option func(*Service)

// WithHistory records query runs and recent connections in store.
func WithHistory(store *history.Store) Option {
	return func(s *Service) { s.history = store }
}

// WithLogger logs service activity and driver events to logger.
func WithLogger(logger *slog.Logger, cfg config.LoggingConfig) Option {
	return func(s *Service) {
		s.logger = logger
		s.logCfg = cfg
	}
}

// WithTracer overrides the global otel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithObserver adds a driver event observer, such as the audit journal.
func WithObserver(o driver.Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// Service implements the database operations. Safe for concurrent use.
type Service struct {
	guard     *session.Guard
	history   *history.Store
	logger    *slog.Logger
	logCfg    config.LoggingConfig
	tracer    trace.Tracer
	observers []driver.Observer
}

// New returns a service with a closed connection slot over engine.
func New(engine native.Engine, opts ...Option) *Service {
	s := &Service{
		logger: logging.Discard(),
		tracer: otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	observers := append([]driver.Observer{NewLogObserver(s.logger, s.logCfg)}, s.observers...)
	s.guard = session.New(engine, driver.WithObserver(driver.MultiObserver(observers...)))
	return s
}

// OpenDatabase creates or opens the database at path, replacing any open
// connection.
func (s *Service) OpenDatabase(ctx context.Context, path string) (string, error) {
	_, span := s.tracer.Start(ctx, "db.open", trace.WithAttributes(attribute.String("db.path", path)))
	defer span.End()

	if err := s.guard.Open(path); err != nil {
		return "", fail(span, err)
	}
	s.touch(path, history.ModeOpen)
	span.SetStatus(codes.Ok, "")
	return fmt.Sprintf("Database created/opened at %s", path), nil
}

// ConnectExisting opens the existing database at path, replacing any open
// connection. It never creates a database. A failed connect drops path from
// the recent connections.
func (s *Service) ConnectExisting(ctx context.Context, path string) (string, error) {
	_, span := s.tracer.Start(ctx, "db.connect", trace.WithAttributes(attribute.String("db.path", path)))
	defer span.End()

	if err := s.guard.OpenIfExists(path); err != nil {
		s.forget(path)
		return "", fail(span, err)
	}
	s.touch(path, history.ModeConnect)
	span.SetStatus(codes.Ok, "")
	return fmt.Sprintf("Connected to existing database at %s", path), nil
}

// RunQuery executes query on the open connection and records the run.
// Runs rejected because nothing is open are not recorded.
func (s *Service) RunQuery(ctx context.Context, query string) (*driver.QueryResult, error) {
	_, span := s.tracer.Start(ctx, "db.query", trace.WithAttributes(attribute.Int("db.query.length", len(query))))
	defer span.End()

	start := time.Now()
	res, path, err := s.guard.QueryAt(query)
	elapsed := time.Since(start)

	entry := history.Entry{Query: query, Path: path}
	if err != nil {
		if !errors.Is(err, driver.ErrNoConnection) {
			entry.Status = history.StatusError
			entry.DurationMS = elapsed.Milliseconds()
			entry.Error = err.Error()
			s.record(entry)
		}
		return nil, fail(span, err)
	}

	entry.Status = history.StatusSuccess
	entry.DurationMS = res.DurationMillis()
	entry.ResultCount = len(res.Nodes)
	entry.RowCount = len(res.Rows)
	s.record(entry)

	span.SetAttributes(
		attribute.String("db.path", path),
		attribute.Int("db.rows", len(res.Rows)),
		attribute.Int("db.nodes", len(res.Nodes)),
		attribute.Int("db.edges", len(res.Edges)),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// CloseDatabase releases the open connection. Closing when nothing is open
// is a no-op.
func (s *Service) CloseDatabase(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "db.close")
	defer span.End()

	if err := s.guard.Close(); err != nil {
		return fail(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Status reports the connection slot state.
func (s *Service) Status() Status {
	state, path := s.guard.Snapshot()
	return Status{
		State:     state.String(),
		Path:      path,
		Connected: state == session.StateOpen,
	}
}

// History returns up to limit recorded runs, newest first. A limit of zero
// or less returns everything kept.
func (s *Service) History(limit int) ([]history.Entry, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(limit)
}

// ClearHistory deletes every recorded run. Recent connections are kept.
func (s *Service) ClearHistory() error {
	if s.history == nil {
		return ErrHistoryDisabled
	}
	return s.history.Clear()
}

// RecentConnections returns recently used databases, most recent first.
func (s *Service) RecentConnections() ([]history.Connection, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Recent()
}

// ForgetConnection removes path from the recent connections.
func (s *Service) ForgetConnection(path string) error {
	if s.history == nil {
		return ErrHistoryDisabled
	}
	return s.history.Forget(path)
}

// Shutdown closes the open connection, if any. The history store belongs to
// the caller and is left open.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.CloseDatabase(ctx)
}

func (s *Service) record(e history.Entry) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Record(e); err != nil {
		s.logger.Error("recording query history", "error", err)
	}
}

func (s *Service) touch(path string, mode history.Mode) {
	if s.history == nil {
		return
	}
	if err := s.history.Touch(path, mode); err != nil {
		s.logger.Error("recording recent connection", "path", path, "error", err)
	}
}

func (s *Service) forget(path string) {
	if s.history == nil {
		return
	}
	if err := s.history.Forget(path); err != nil {
		s.logger.Error("removing recent connection", "path", path, "error", err)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetAttributes(attribute.String("error.kind", driver.KindName(err)))
	span.SetStatus(codes.Error, err.Error())
	return err
}
