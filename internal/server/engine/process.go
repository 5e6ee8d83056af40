// Package engine owns USI engine subprocesses and serializes conversations with them.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"shogi/internal/server/core"
	"shogi/internal/server/usi"

	"github.com/rs/zerolog"
)

const (
	DefaultBootTimeout  = 10 * time.Second
	DefaultReadTimeout  = 500 * time.Millisecond
	DefaultFlushTimeout = 500 * time.Millisecond
	DefaultThreads      = 1
	DefaultHashMB       = 64
	DefaultMultiPV      = 3

	lineBuffer   = 1024
	maxLineBytes = 1 << 20
	flushPoll    = 100 * time.Millisecond
	exitGrace    = time.Second
)

// Options configures one engine subprocess
type Options struct {
	Name string
	Path string
	Args []string
	Dir  string
	Env  []string // appended to the parent environment

	// Passed to the engine with setoption during the handshake.
	// EvalDir is only sent when it exists on disk.
	EvalDir string
	Threads int
	HashMB  int
	MultiPV int

	BootTimeout  time.Duration
	ReadTimeout  time.Duration
	FlushTimeout time.Duration

	Logger zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "engine"
	}
	if o.Threads <= 0 {
		o.Threads = DefaultThreads
	}
	if o.HashMB <= 0 {
		o.HashMB = DefaultHashMB
	}
	if o.MultiPV <= 0 {
		o.MultiPV = DefaultMultiPV
	}
	if o.BootTimeout <= 0 {
		o.BootTimeout = DefaultBootTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = DefaultFlushTimeout
	}
	return o
}

// handle is one running child. Lines are pumped from stdout by a goroutine;
// lines is closed on end of stream and exited once the child has been reaped.
type handle struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan string
	quit    chan struct{}
	exited  chan struct{}
	exitErr error
}

func (h *handle) alive() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

func (h *handle) pump(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		select {
		case h.lines <- strings.TrimSpace(sc.Text()):
		case <-h.quit:
		}
	}
	close(h.lines)
	h.exitErr = h.cmd.Wait()
	close(h.exited)
}

// Process owns at most one engine subprocess at a time and drives its
// boot and shutdown protocol. It is not safe for concurrent use; Session
// serializes access. State may be read from any goroutine.
type Process struct {
	opts  Options
	log   zerolog.Logger
	h     *handle
	state atomic.Int32
}

// NewProcess creates a process manager; the child is spawned lazily by EnsureAlive
func NewProcess(opts Options) *Process {
	opts = opts.withDefaults()
	return &Process{
		opts: opts,
		log:  opts.Logger.With().Str("engine", opts.Name).Logger(),
	}
}

// State returns the lifecycle state
func (p *Process) State() core.ProcessState {
	return core.ProcessState(p.state.Load())
}

func (p *Process) setState(s core.ProcessState) {
	p.state.Store(int32(s))
}

// Alive reports whether a child exists and has not exited
func (p *Process) Alive() bool {
	return p.h != nil && p.h.alive()
}

// Pid returns the child's process id, or 0 when none is running
func (p *Process) Pid() int {
	if p.h == nil || p.h.cmd.Process == nil {
		return 0
	}
	return p.h.cmd.Process.Pid
}

// EnsureAlive spawns and handshakes a child unless one is already running.
// On any failure the child is killed and the handle cleared, so the next
// call starts from scratch.
func (p *Process) EnsureAlive(ctx context.Context) error {
	if p.Alive() {
		return nil
	}
	if p.h != nil {
		// exited without anyone reading the end of stream
		p.release(false, core.StateCrashed)
	}

	p.setState(core.StateStarting)
	p.log.Info().Str("path", p.opts.Path).Msg("starting engine")

	if err := p.spawn(); err != nil {
		p.log.Error().Err(err).Msg("engine start failed")
		p.setState(core.StateCrashed)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := p.handshake(ctx); err != nil {
		p.log.Error().Err(err).Msg("engine handshake failed")
		p.release(true, core.StateCrashed)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	p.setState(core.StateReady)
	p.log.Info().Int("pid", p.Pid()).Msg("engine ready")
	return nil
}

func (p *Process) spawn() error {
	cmd := exec.Command(p.opts.Path, p.opts.Args...)
	cmd.Dir = p.opts.Dir
	if len(p.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), p.opts.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = stderrLogger{log: p.log}

	if err = cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	h := &handle{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, lineBuffer),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go h.pump(stdout)
	p.h = h
	return nil
}

func (p *Process) handshake(ctx context.Context) error {
	if err := p.Send("usi"); err != nil {
		return err
	}
	if err := p.waitFor(ctx, usi.ReplyUSIOK, p.opts.BootTimeout); err != nil {
		return fmt.Errorf("waiting for usiok: %w", err)
	}
	for _, opt := range p.setOptions() {
		if err := p.Send(opt); err != nil {
			return err
		}
	}
	if err := p.Ready(ctx, p.opts.BootTimeout); err != nil {
		return err
	}
	if err := p.Send("usinewgame"); err != nil {
		return err
	}
	return p.Ready(ctx, p.opts.BootTimeout)
}

func (p *Process) setOptions() []string {
	opts := []string{
		usi.EncodeSetOption("Threads", p.opts.Threads),
		usi.EncodeSetOption("USI_Hash", p.opts.HashMB),
	}
	if p.opts.EvalDir != "" {
		if _, err := os.Stat(p.opts.EvalDir); err == nil {
			opts = append(opts, usi.EncodeSetOption("EvalDir", p.opts.EvalDir))
		} else {
			p.log.Debug().Str("eval_dir", p.opts.EvalDir).Msg("eval dir missing, using engine default")
		}
	}
	return append(opts,
		usi.EncodeSetOption("OwnBook", false),
		usi.EncodeSetOption("MultiPV", p.opts.MultiPV),
	)
}

// Ready sends isready and waits for readyok
func (p *Process) Ready(ctx context.Context, timeout time.Duration) error {
	if err := p.Send("isready"); err != nil {
		return err
	}
	if err := p.waitFor(ctx, usi.ReplyReadyOK, timeout); err != nil {
		return fmt.Errorf("waiting for readyok: %w", err)
	}
	return nil
}

// waitFor reads until a reply of the given kind, discarding everything else
func (p *Process) waitFor(ctx context.Context, kind usi.ReplyKind, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w after %s", ErrSearchTimeout, timeout)
		}
		line, err := p.readLine(min(remaining, p.opts.ReadTimeout))
		if errors.Is(err, errNoOutput) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			return err
		}
		if usi.Decode(line).Kind == kind {
			return nil
		}
	}
}

// Send writes one command line to the engine
func (p *Process) Send(line string) error {
	if p.h == nil {
		return ErrUnavailable
	}
	p.log.Debug().Str("cmd", line).Msg(">>")
	if _, err := fmt.Fprintln(p.h.stdin, line); err != nil {
		p.log.Warn().Err(err).Str("cmd", line).Msg("engine write failed")
		p.release(true, core.StateCrashed)
		return fmt.Errorf("%w: write %q: %v", ErrCrashed, line, err)
	}
	return nil
}

// Go starts a search; the process is busy until a bestmove is read
func (p *Process) Go(params usi.GoParams) error {
	if err := p.Send(usi.EncodeGo(params)); err != nil {
		return err
	}
	p.setState(core.StateBusy)
	return nil
}

// readLine returns the next output line. errNoOutput means the window elapsed
// with the child still running; ErrCrashed means it closed its output.
func (p *Process) readLine(timeout time.Duration) (string, error) {
	h := p.h
	if h == nil {
		return "", ErrCrashed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line, ok := <-h.lines:
		if !ok {
			return "", p.crashed()
		}
		if strings.HasPrefix(line, "bestmove") && p.State() == core.StateBusy {
			p.setState(core.StateReady)
		}
		p.log.Trace().Str("line", line).Msg("<<")
		return line, nil
	case <-timer.C:
		if !h.alive() {
			return "", p.crashed()
		}
		return "", errNoOutput
	}
}

// crashed records an unexpected end of stream and clears the handle
func (p *Process) crashed() error {
	h := p.h
	// stdout can end while the child lives on, e.g. after an oversized line
	p.release(h.alive(), core.StateCrashed)
	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	p.log.Error().Int("exit_code", code).AnErr("wait", h.exitErr).Msg("engine exited unexpectedly")
	return fmt.Errorf("%w: exit code %d", ErrCrashed, code)
}

// StopAndFlush interrupts an outstanding search and discards its output until
// bestmove or FlushTimeout, whichever comes first. No-op when idle.
func (p *Process) StopAndFlush() {
	if p.h == nil || p.State() != core.StateBusy {
		return
	}
	if err := p.Send("stop"); err != nil {
		return
	}

	deadline := time.Now().Add(p.opts.FlushTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.log.Warn().Dur("timeout", p.opts.FlushTimeout).Msg("no bestmove after stop")
			return
		}
		line, err := p.readLine(min(remaining, flushPoll))
		if errors.Is(err, errNoOutput) {
			continue
		}
		if err != nil {
			return
		}
		if _, ok := usi.DecodeBestmove(line); ok {
			return
		}
	}
}

// Kill terminates the child immediately and clears the handle
func (p *Process) Kill() {
	if p.h == nil {
		return
	}
	p.log.Info().Int("pid", p.Pid()).Msg("killing engine")
	p.release(true, core.StateStopped)
}

// Close asks the engine to quit, killing it if it does not exit within a grace period
func (p *Process) Close() error {
	h := p.h
	if h == nil {
		p.setState(core.StateStopped)
		return nil
	}
	_, _ = fmt.Fprintln(h.stdin, "quit")
	_ = h.stdin.Close()

	select {
	case <-h.exited:
		p.release(false, core.StateStopped)
		return nil
	case <-time.After(exitGrace):
		p.release(true, core.StateStopped)
		return fmt.Errorf("engine %s did not quit, killed", p.opts.Name)
	}
}

// release detaches the current handle, optionally killing the child, and
// waits briefly for it to be reaped
func (p *Process) release(kill bool, state core.ProcessState) {
	h := p.h
	if h == nil {
		return
	}
	p.h = nil
	close(h.quit)
	if kill && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	select {
	case <-h.exited:
	case <-time.After(exitGrace):
		p.log.Warn().Msg("engine not reaped within grace period")
	}
	p.setState(state)
}

// stderrLogger forwards engine diagnostics to the log
type stderrLogger struct {
	log zerolog.Logger
}

func (w stderrLogger) Write(b []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line != "" {
			w.log.Debug().Str("stderr", line).Msg("engine stderr")
		}
	}
	return len(b), nil
}
