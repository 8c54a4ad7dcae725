package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexepic/metrix-studio/pkg/commands"
	"github.com/nexepic/metrix-studio/pkg/history"
	"github.com/nexepic/metrix-studio/pkg/logging"
)

func newShellService(t *testing.T) *commands.Service {
	t.Helper()
	store, err := history.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := commands.New(testEngine(), commands.WithHistory(store))
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc
}

func runScript(t *testing.T, svc *commands.Service, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, runShell(context.Background(), svc, in, &out))
	return out.String()
}

func TestShell_QueryBeforeOpen(t *testing.T) {
	svc := newShellService(t)
	out := runScript(t, svc, "RETURN 1")
	assert.Contains(t, out, "error [no_connection]: No database is currently open.")
}

func TestShell_OpenQueryClose(t *testing.T) {
	svc := newShellService(t)

	out := runScript(t, svc,
		":open /data/movies.mx",
		"MATCH (n) RETURN n",
		":status",
		":close",
		":status",
	)

	assert.Contains(t, out, "Database created/opened at /data/movies.mx")
	assert.Contains(t, out, "metrix(/data/movies.mx)> ")
	assert.Contains(t, out, `{"_type":"node","id":7}`)
	assert.Contains(t, out, "(1 rows, 1 nodes, 0 edges, ")
	assert.Contains(t, out, "Database closed")
	assert.False(t, svc.Status().Connected)
}

func TestShell_ConnectMissing(t *testing.T) {
	svc := newShellService(t)
	out := runScript(t, svc, ":connect /data/nope.mx")
	assert.Contains(t, out, "error [open_failure]:")
	assert.False(t, svc.Status().Connected)
}

func TestShell_ErrorsDoNotStopTheLoop(t *testing.T) {
	svc := newShellService(t)

	out := runScript(t, svc,
		":connect /data/movies.mx",
		"MATC",
		"RETURN 1",
	)

	assert.Contains(t, out, "Connected to existing database at /data/movies.mx")
	assert.Contains(t, out, "error [execution_failure]: Parser exception: unexpected end of input")
	assert.Contains(t, out, "(1 rows, 0 nodes, 0 edges, ")
}

func TestShell_HistoryAndRecent(t *testing.T) {
	svc := newShellService(t)

	out := runScript(t, svc,
		":open /data/movies.mx",
		"RETURN 1",
		"MATC",
		":history 1",
		":recent",
	)

	// Newest first; a limit of one shows only the failed query.
	assert.Contains(t, out, "error")
	assert.Contains(t, out, "MATC")
	assert.Contains(t, out, "open     /data/movies.mx")

	out = runScript(t, svc, ":history x")
	assert.Contains(t, out, "usage: :history [N]")
}

func TestShell_Commands(t *testing.T) {
	svc := newShellService(t)

	t.Run("help", func(t *testing.T) {
		out := runScript(t, svc, ":help")
		assert.Contains(t, out, ":connect PATH")
	})

	t.Run("unknown", func(t *testing.T) {
		out := runScript(t, svc, ":drop")
		assert.Contains(t, out, "unknown command :drop")
	})

	t.Run("missing path", func(t *testing.T) {
		out := runScript(t, svc, ":open")
		assert.Contains(t, out, "usage: :open PATH")
	})

	t.Run("quit stops reading", func(t *testing.T) {
		out := runScript(t, svc, ":quit", ":help")
		assert.NotContains(t, out, "Commands:")
	})

	t.Run("blank lines", func(t *testing.T) {
		out := runScript(t, svc, "", "   ", "")
		assert.Equal(t, 4, strings.Count(out, "metrix> "))
	})
}

func TestShell_WithLogging(t *testing.T) {
	var logs bytes.Buffer
	logger, err := logging.NewWithWriter(&logs, "text", slog.LevelDebug)
	require.NoError(t, err)

	svc := commands.New(testEngine(), commands.WithLogger(logger, testConfig(t).Logging))
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	runScript(t, svc, ":open /data/movies.mx", "RETURN 1")
	assert.Contains(t, logs.String(), "query completed")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "RETURN 1", firstLine("RETURN 1"))
	assert.Equal(t, "MATCH (n) ...", firstLine("MATCH (n)\nRETURN n"))
}
