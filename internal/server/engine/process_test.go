package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"shogi/internal/server/core"
	"shogi/internal/server/engine"
	"shogi/internal/server/engine/enginetest"
	"shogi/internal/server/usi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countExact(lines []string, want string) int {
	n := 0
	for _, l := range lines {
		if l == want {
			n++
		}
	}
	return n
}

func TestProcessHandshake(t *testing.T) {
	log := enginetest.NewCommandLog(t)
	opts := enginetest.Options(t, log.Env())
	opts.Threads = 2
	opts.HashMB = 128
	opts.EvalDir = filepath.Join(t.TempDir(), "missing")
	p := engine.NewProcess(opts)
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, core.StateNotStarted, p.State())
	require.NoError(t, p.EnsureAlive(context.Background()))
	assert.Equal(t, core.StateReady, p.State())
	assert.True(t, p.Alive())
	assert.NotZero(t, p.Pid())

	assert.Equal(t, []string{
		"usi",
		"setoption name Threads value 2",
		"setoption name USI_Hash value 128",
		"setoption name OwnBook value false",
		"setoption name MultiPV value 3",
		"isready",
		"usinewgame",
		"isready",
	}, log.Lines(t))

	// already running: nothing is re-sent
	require.NoError(t, p.EnsureAlive(context.Background()))
	assert.Equal(t, 1, countExact(log.Lines(t), "usi"))
}

func TestProcessSendsExistingEvalDir(t *testing.T) {
	log := enginetest.NewCommandLog(t)
	dir := t.TempDir()
	opts := enginetest.Options(t, log.Env())
	opts.EvalDir = dir
	p := engine.NewProcess(opts)
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.EnsureAlive(context.Background()))
	assert.Contains(t, log.Lines(t), "setoption name EvalDir value "+dir)
}

func TestProcessStartupFailure(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		p := engine.NewProcess(engine.Options{Path: filepath.Join(t.TempDir(), "nope")})
		err := p.EnsureAlive(context.Background())
		require.ErrorIs(t, err, engine.ErrUnavailable)
		assert.False(t, p.Alive())
		assert.Equal(t, core.StateCrashed, p.State())
	})

	t.Run("exits during boot", func(t *testing.T) {
		p := engine.NewProcess(enginetest.Options(t, "MOCK_USI_MODE=exit-on-boot"))
		require.ErrorIs(t, p.EnsureAlive(context.Background()), engine.ErrUnavailable)
		assert.False(t, p.Alive())
	})

	t.Run("never sends usiok", func(t *testing.T) {
		opts := enginetest.Options(t, "MOCK_USI_MODE=no-usiok")
		opts.BootTimeout = 300 * time.Millisecond
		p := engine.NewProcess(opts)

		start := time.Now()
		require.ErrorIs(t, p.EnsureAlive(context.Background()), engine.ErrUnavailable)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.False(t, p.Alive())
		assert.Zero(t, p.Pid())
	})
}

func TestStopAndFlushIdleIsNoop(t *testing.T) {
	log := enginetest.NewCommandLog(t)
	p := engine.NewProcess(enginetest.Options(t, log.Env()))
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.EnsureAlive(context.Background()))

	p.StopAndFlush()
	assert.Zero(t, countExact(log.Lines(t), "stop"))
}

func TestStopAndFlushInterruptsSearch(t *testing.T) {
	log := enginetest.NewCommandLog(t)
	p := engine.NewProcess(enginetest.Options(t, log.Env(), "MOCK_USI_MODE=infinite"))
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.EnsureAlive(context.Background()))

	require.NoError(t, p.Send(usi.StartPos().Command()))
	require.NoError(t, p.Go(usi.GoParams{Depth: 30}))
	assert.Equal(t, core.StateBusy, p.State())

	p.StopAndFlush()
	assert.Equal(t, core.StateReady, p.State())
	assert.Equal(t, 1, countExact(log.Lines(t), "stop"))

	// the engine is usable again
	require.NoError(t, p.Ready(context.Background(), time.Second))
}

func TestStopAndFlushIsBounded(t *testing.T) {
	opts := enginetest.Options(t, "MOCK_USI_MODE=silent")
	opts.FlushTimeout = 300 * time.Millisecond
	p := engine.NewProcess(opts)
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.EnsureAlive(context.Background()))

	require.NoError(t, p.Send(usi.StartPos().Command()))
	require.NoError(t, p.Go(usi.GoParams{Depth: 30}))

	start := time.Now()
	p.StopAndFlush()
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestProcessClose(t *testing.T) {
	p := engine.NewProcess(enginetest.Options(t))
	require.NoError(t, p.EnsureAlive(context.Background()))

	require.NoError(t, p.Close())
	assert.False(t, p.Alive())
	assert.Equal(t, core.StateStopped, p.State())
}

func TestProcessCloseKillsStubbornEngine(t *testing.T) {
	p := engine.NewProcess(enginetest.Options(t, "MOCK_USI_IGNORE_QUIT=1"))
	require.NoError(t, p.EnsureAlive(context.Background()))

	start := time.Now()
	err := p.Close()
	// closing stdin ends the mock's input loop, so it may also exit on its own
	if err != nil {
		assert.Contains(t, err.Error(), "killed")
	}
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, p.Alive())
}

func TestOversizedLineKillsEngine(t *testing.T) {
	p := engine.NewProcess(enginetest.Options(t, "MOCK_USI_MODE=long-line"))
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.EnsureAlive(context.Background()))
	pid := p.Pid()
	require.NoError(t, p.Go(usi.GoParams{Nodes: 1}))

	// the reader gives up on the line while the child keeps running
	start := time.Now()
	p.StopAndFlush()
	assert.Less(t, time.Since(start), 800*time.Millisecond, "child is killed, not waited for")
	assert.False(t, p.Alive())
	assert.Equal(t, core.StateCrashed, p.State())

	proc, err := os.FindProcess(pid)
	if err == nil {
		assert.Error(t, proc.Signal(syscall.Signal(0)), "engine %d still running", pid)
	}
}

func TestProcessKillThenRestart(t *testing.T) {
	log := enginetest.NewCommandLog(t)
	p := engine.NewProcess(enginetest.Options(t, log.Env()))
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.EnsureAlive(context.Background()))
	first := p.Pid()
	p.Kill()
	assert.False(t, p.Alive())
	assert.Equal(t, core.StateStopped, p.State())

	require.NoError(t, p.EnsureAlive(context.Background()))
	assert.NotEqual(t, first, p.Pid())
	assert.Equal(t, 2, countExact(log.Lines(t), "usinewgame"))
}

func TestSendWithoutProcess(t *testing.T) {
	p := engine.NewProcess(enginetest.Options(t))
	assert.ErrorIs(t, p.Send("isready"), engine.ErrUnavailable)
}
