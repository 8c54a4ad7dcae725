package driver

import (
	"time"
)

// Execute runs one query and returns its fully decoded result.
//
// Failure modes:
//   - query contains a NUL byte: ErrInvalidInput, engine not called
//   - connection closed: ErrNoConnection
//   - engine returned no cursor: ErrSystemFailure with the translated last error
//   - cursor reports failure: ErrExecutionFailure with the cursor's message
//     (MsgUnknownExecution when it has none)
//
// Duration covers execution plus decoding, and is reported on failure events
// too. Every cursor the engine hands out
// is closed before Execute returns, on every path.
func (c *Conn) Execute(query string) (*QueryResult, error) {
	if hasNUL(query) {
		return nil, newError(ErrInvalidInput, MsgInvalidQuery)
	}
	if c.db == nil {
		return nil, NoConnection()
	}

	start := time.Now()
	cursor := c.db.Execute(query)
	if cursor == nil {
		msg := LastNativeError(c.engine)
		emit(c.observer, Event{
			Type:     EventSystemFailed,
			Path:     c.path,
			Query:    query,
			Message:  msg,
			Duration: time.Since(start),
		})
		return nil, newError(ErrSystemFailure, msg)
	}

	if !cursor.IsSuccess() {
		msg, ok := cursor.Error()
		if !ok {
			msg = MsgUnknownExecution
		}
		cursor.Close()
		emit(c.observer, Event{
			Type:     EventQueryFailed,
			Path:     c.path,
			Query:    query,
			Message:  msg,
			Duration: time.Since(start),
		})
		return nil, newError(ErrExecutionFailure, msg)
	}

	d := &decoder{cursor: cursor, observer: c.observer, path: c.path, query: query}
	result, err := d.decode()
	if err != nil {
		emit(c.observer, Event{
			Type:     EventSystemFailed,
			Path:     c.path,
			Query:    query,
			Message:  err.Error(),
			Duration: time.Since(start),
		})
		return nil, err
	}
	result.Duration = time.Since(start)

	emit(c.observer, Event{
		Type:     EventQueryDone,
		Path:     c.path,
		Query:    query,
		Rows:     len(result.Rows),
		Nodes:    len(result.Nodes),
		Edges:    len(result.Edges),
		Duration: result.Duration,
	})
	return result, nil
}
