// Package enginetest runs engine sessions against a scripted USI engine.
//
// The engine lives in testdata/mock-usi and is compiled once per test binary
// with the go tool; its behaviour is selected through environment variables
// documented in that file.
package enginetest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"shogi/internal/server/engine"

	"github.com/rs/zerolog"
)

var (
	buildOnce  sync.Once
	binaryPath string
	errBuild   error
)

func build() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		errBuild = fmt.Errorf("cannot locate enginetest sources")
		return
	}
	dir, err := os.MkdirTemp("", "mock-usi-*")
	if err != nil {
		errBuild = fmt.Errorf("tmpdir: %w", err)
		return
	}
	binaryPath = filepath.Join(dir, "mock-usi")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./testdata/mock-usi/main.go")
	cmd.Dir = filepath.Dir(file)
	if out, err := cmd.CombinedOutput(); err != nil {
		errBuild = fmt.Errorf("build mock: %w: %s", err, out)
		os.RemoveAll(dir)
	}
}

// MockBinary returns the path of the compiled mock engine
func MockBinary(tb testing.TB) string {
	tb.Helper()
	buildOnce.Do(build)
	if errBuild != nil {
		tb.Fatalf("mock engine build failed: %v", errBuild)
	}
	return binaryPath
}

// Options returns process options running the mock with extra environment
// settings such as "MOCK_USI_MODE=infinite"
func Options(tb testing.TB, env ...string) engine.Options {
	tb.Helper()
	return engine.Options{
		Name:        "mock",
		Path:        MockBinary(tb),
		Env:         env,
		BootTimeout: 3 * time.Second,
		Logger:      zerolog.Nop(),
	}
}

// FastConfig shortens every session bound so failure paths finish quickly
func FastConfig() engine.SessionConfig {
	return engine.SessionConfig{
		SearchTimeout:     2 * time.Second,
		AnalyzeTimeout:    2 * time.Second,
		ReadTimeout:       100 * time.Millisecond,
		StreamReadTimeout: 200 * time.Millisecond,
		ReadyTimeout:      time.Second,
		TsumeTimeout:      time.Second,
		TsumeReadTimeout:  200 * time.Millisecond,
	}
}

// NewSession returns a session over the mock, closed when the test ends
func NewSession(tb testing.TB, cfg engine.SessionConfig, env ...string) *engine.Session {
	tb.Helper()
	s := engine.NewSession(Options(tb, env...), cfg)
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

// CommandLog is the list of commands a mock engine received
type CommandLog struct {
	path string
}

// NewCommandLog creates an empty log in a temp dir
func NewCommandLog(tb testing.TB) *CommandLog {
	tb.Helper()
	return &CommandLog{path: filepath.Join(tb.TempDir(), "usi.log")}
}

// Env returns the setting that makes the mock write to this log
func (l *CommandLog) Env() string {
	return "MOCK_USI_LOG=" + l.path
}

// Lines returns the commands recorded so far
func (l *CommandLog) Lines(tb testing.TB) []string {
	tb.Helper()
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		tb.Fatalf("read command log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// Count returns how many recorded commands start with prefix
func (l *CommandLog) Count(tb testing.TB, prefix string) int {
	tb.Helper()
	n := 0
	for _, line := range l.Lines(tb) {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}
