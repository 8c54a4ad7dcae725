package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexepic/metrix-studio/pkg/driver"
	"github.com/nexepic/metrix-studio/pkg/native"
	"github.com/nexepic/metrix-studio/pkg/native/nativetest"
)

func newEngine() *nativetest.Engine {
	engine := nativetest.NewEngine()
	engine.On("RETURN 1", nativetest.Rows([]string{"1"}, []native.Cell{native.IntCell(1)}))
	return engine
}

func TestGuardLifecycle(t *testing.T) {
	engine := newEngine()
	g := New(engine)
	assert.Equal(t, StateClosed, g.State())
	assert.Empty(t, g.Path())

	require.NoError(t, g.Open("/data/a.mx"))
	assert.Equal(t, StateOpen, g.State())
	assert.Equal(t, "/data/a.mx", g.Path())

	res, err := g.Query("RETURN 1")
	require.NoError(t, err)
	assert.Equal(t, []driver.Value{driver.Int(1)}, res.Rows[0])
	assert.Equal(t, StateOpen, g.State())

	require.NoError(t, g.Close())
	assert.Equal(t, StateClosed, g.State())

	stats := engine.Stats()
	assert.Equal(t, 1, stats.DBsOpened)
	assert.Equal(t, 1, stats.DBsClosed)
}

func TestGuardClosedState(t *testing.T) {
	g := New(newEngine())

	_, err := g.Query("RETURN 1")
	assert.ErrorIs(t, err, driver.ErrNoConnection)
	assert.Equal(t, "No database is currently open.", err.Error())

	assert.NoError(t, g.Close())
	assert.NoError(t, g.Close())

	require.NoError(t, g.Open("/data/a.mx"))
	require.NoError(t, g.Close())
	_, err = g.Query("RETURN 1")
	assert.ErrorIs(t, err, driver.ErrNoConnection)
}

func TestGuardOpenIfExistsMissing(t *testing.T) {
	engine := newEngine()
	g := New(engine)

	err := g.OpenIfExists("/data/missing.mx")
	assert.ErrorIs(t, err, driver.ErrOpenFailure)
	assert.Equal(t, StateClosed, g.State())
	assert.False(t, engine.Exists("/data/missing.mx"))
}

func TestGuardReplace(t *testing.T) {
	t.Run("releases old handle after swap", func(t *testing.T) {
		engine := newEngine()
		g := New(engine)
		require.NoError(t, g.Open("/data/a.mx"))
		require.NoError(t, g.Open("/data/b.mx"))

		assert.Equal(t, "/data/b.mx", g.Path())
		stats := engine.Stats()
		assert.Equal(t, 2, stats.DBsOpened)
		assert.Equal(t, 1, stats.DBsClosed)
		g.Close()
	})

	t.Run("failed replacement keeps current connection", func(t *testing.T) {
		engine := newEngine()
		engine.FailOpen("/data/bad.mx", native.Str("cannot open"))
		g := New(engine)
		require.NoError(t, g.Open("/data/a.mx"))

		err := g.Open("/data/bad.mx")
		assert.ErrorIs(t, err, driver.ErrOpenFailure)
		assert.Equal(t, "cannot open", err.Error())
		assert.Equal(t, StateOpen, g.State())
		assert.Equal(t, "/data/a.mx", g.Path())
		assert.Zero(t, engine.Stats().DBsClosed)

		_, err = g.Query("RETURN 1")
		assert.NoError(t, err)
		g.Close()
	})

	t.Run("failed connect to missing path keeps current connection", func(t *testing.T) {
		engine := newEngine()
		g := New(engine)
		require.NoError(t, g.Open("/data/a.mx"))

		err := g.OpenIfExists("/data/typo.mx")
		assert.ErrorIs(t, err, driver.ErrOpenFailure)
		assert.Equal(t, StateOpen, g.State())

		_, path, err := g.QueryAt("RETURN 1")
		require.NoError(t, err)
		assert.Equal(t, "/data/a.mx", path)

		state, path := g.Snapshot()
		assert.Equal(t, StateOpen, state)
		assert.Equal(t, "/data/a.mx", path)
		g.Close()
	})

	t.Run("reopening same path releases first", func(t *testing.T) {
		engine := newEngine()
		g := New(engine)
		require.NoError(t, g.Open("/data/a.mx"))
		engine.FailOpen("/data/a.mx", native.Str("locked"))

		err := g.Open("/data/a.mx")
		assert.ErrorIs(t, err, driver.ErrOpenFailure)
		assert.Equal(t, StateClosed, g.State())
		assert.Equal(t, 1, engine.Stats().DBsClosed)
	})

	t.Run("invalid path keeps current connection", func(t *testing.T) {
		engine := newEngine()
		g := New(engine)
		require.NoError(t, g.Open("/data/a.mx"))

		err := g.OpenIfExists("/data/\x00.mx")
		assert.ErrorIs(t, err, driver.ErrInvalidInput)
		assert.Equal(t, StateOpen, g.State())
		assert.Equal(t, "/data/a.mx", g.Path())
		assert.Zero(t, engine.Stats().DBsClosed)
		g.Close()
	})
}

func TestGuardCyclesBalanced(t *testing.T) {
	engine := newEngine()
	g := New(engine)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, g.Open("/data/a.mx"))
		_, err := g.Query("RETURN 1")
		require.NoError(t, err)
		require.NoError(t, g.Close())
	}

	stats := engine.Stats()
	assert.Equal(t, n, stats.DBsOpened)
	assert.Equal(t, n, stats.DBsClosed)
	assert.Equal(t, stats.CursorsOpened, stats.CursorsClosed)
	assert.Zero(t, stats.DoubleCloses)
}

func TestGuardPoisoning(t *testing.T) {
	engine := newEngine()
	engine.BeforeExecute = func(query string) {
		if query == "PANIC" {
			panic("engine blew up")
		}
	}
	g := New(engine)
	require.NoError(t, g.Open("/data/a.mx"))

	assert.PanicsWithValue(t, "engine blew up", func() {
		_, _ = g.Query("PANIC")
	})
	assert.Equal(t, StatePoisoned, g.State())
	assert.Empty(t, g.Path())

	_, err := g.Query("RETURN 1")
	assert.ErrorIs(t, err, driver.ErrLockFailure)
	assert.Equal(t, "Failed to acquire db lock", err.Error())

	assert.ErrorIs(t, g.Open("/data/b.mx"), driver.ErrLockFailure)
	assert.ErrorIs(t, g.OpenIfExists("/data/a.mx"), driver.ErrLockFailure)
	assert.ErrorIs(t, g.Close(), driver.ErrLockFailure)
}

func TestGuardSerializesQueries(t *testing.T) {
	engine := newEngine()
	var inFlight, maxInFlight int32
	engine.BeforeExecute = func(string) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
	}
	g := New(engine)
	require.NoError(t, g.Open("/data/a.mx"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := g.Query("RETURN 1")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.Equal(t, 320, engine.Stats().Executions)
	require.NoError(t, g.Close())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "poisoned", StatePoisoned.String())
	assert.Equal(t, "unknown", State(9).String())
}
