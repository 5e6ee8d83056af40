// FILE: shogi/internal/server/engine/session.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"shogi/internal/server/core"
	"shogi/internal/server/usi"

	"github.com/rs/zerolog"
)

// SessionConfig bounds the searches a session runs
type SessionConfig struct {
	BatchNodes     int
	BatchMultiPV   int
	SearchTimeout  time.Duration // AnalyzeOnce overall cap
	AnalyzeTimeout time.Duration // depth-limited Analyze overall cap

	ReadTimeout       time.Duration
	StreamReadTimeout time.Duration // also the keepalive interval
	ReadyTimeout      time.Duration

	TsumeNodes       int
	TsumeTimeout     time.Duration
	TsumeReadTimeout time.Duration
}

// DefaultSessionConfig returns the production search bounds
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		BatchNodes:        150000,
		BatchMultiPV:      1,
		SearchTimeout:     10 * time.Second,
		AnalyzeTimeout:    60 * time.Second,
		ReadTimeout:       DefaultReadTimeout,
		StreamReadTimeout: 2 * time.Second,
		ReadyTimeout:      2 * time.Second,
		TsumeNodes:        2000,
		TsumeTimeout:      5 * time.Second,
		TsumeReadTimeout:  time.Second,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.BatchNodes <= 0 {
		c.BatchNodes = d.BatchNodes
	}
	if c.BatchMultiPV <= 0 {
		c.BatchMultiPV = d.BatchMultiPV
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = d.SearchTimeout
	}
	if c.AnalyzeTimeout <= 0 {
		c.AnalyzeTimeout = d.AnalyzeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.StreamReadTimeout <= 0 {
		c.StreamReadTimeout = d.StreamReadTimeout
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = d.ReadyTimeout
	}
	if c.TsumeNodes <= 0 {
		c.TsumeNodes = d.TsumeNodes
	}
	if c.TsumeTimeout <= 0 {
		c.TsumeTimeout = d.TsumeTimeout
	}
	if c.TsumeReadTimeout <= 0 {
		c.TsumeReadTimeout = d.TsumeReadTimeout
	}
	return c
}

// EventKind tags a streamed analysis event
type EventKind uint8

const (
	EventInfo EventKind = iota
	EventBestmove
	EventKeepalive
	EventError
)

// Event is one streamed analysis update. Info scores are from sente's point of view.
type Event struct {
	Kind     EventKind
	Info     usi.InfoLine
	Bestmove string
	Err      string
}

// Session serializes every conversation with one engine process. Each public
// operation holds the session for its whole duration; callers waiting for it
// give up when their context ends.
type Session struct {
	name   string
	cfg    SessionConfig
	proc   *Process
	log    zerolog.Logger
	sem    chan struct{}
	cancel atomic.Bool
	closed atomic.Bool
}

// NewSession creates a session; the engine is started on first use
func NewSession(opts Options, cfg SessionConfig) *Session {
	p := NewProcess(opts)
	return &Session{
		name: p.opts.Name,
		cfg:  cfg.withDefaults(),
		proc: p,
		log:  p.log,
		sem:  make(chan struct{}, 1),
	}
}

// Name returns the session's engine name
func (s *Session) Name() string { return s.name }

// State returns the engine lifecycle state without waiting for the session
func (s *Session) State() core.ProcessState { return s.proc.State() }

// Status reports name and state for health checks
func (s *Session) Status() core.EngineStatus {
	return core.EngineStatus{Name: s.name, State: s.State()}
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.closed.Load() {
		s.unlock()
		return ErrClosed
	}
	return nil
}

func (s *Session) unlock() { <-s.sem }

// Cancel asks the running stream or batch to stop. The flag is observed at the
// next read iteration, which interrupts the engine once and returns.
func (s *Session) Cancel() {
	s.cancel.Store(true)
}

// StopAndFlush interrupts any outstanding search
func (s *Session) StopAndFlush(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	s.proc.StopAndFlush()
	return nil
}

// AnalyzeOnce runs a node-limited search of pos with the batch bounds.
// Scores are from the side to move.
func (s *Session) AnalyzeOnce(ctx context.Context, pos usi.Position) (usi.AnalysisResult, error) {
	if err := s.lock(ctx); err != nil {
		return usi.AnalysisResult{}, err
	}
	defer s.unlock()
	s.cancel.Store(false)
	if err := s.proc.EnsureAlive(ctx); err != nil {
		return usi.AnalysisResult{}, err
	}
	return s.search(ctx, pos, usi.GoParams{Nodes: s.cfg.BatchNodes, MultiPV: s.cfg.BatchMultiPV}, s.cfg.SearchTimeout)
}

// Analyze runs a depth-limited search and returns every ranked line.
// Scores are from the side to move.
func (s *Session) Analyze(ctx context.Context, pos usi.Position, depth, multipv int) (usi.AnalysisResult, error) {
	if err := s.lock(ctx); err != nil {
		return usi.AnalysisResult{}, err
	}
	defer s.unlock()
	s.cancel.Store(false)
	if err := s.proc.EnsureAlive(ctx); err != nil {
		return usi.AnalysisResult{}, err
	}
	return s.search(ctx, pos, usi.GoParams{Depth: depth, MultiPV: multipv}, s.cfg.AnalyzeTimeout)
}

// prepare leaves the engine idle, synchronized and set up on pos
func (s *Session) prepare(ctx context.Context, pos usi.Position) error {
	s.proc.StopAndFlush()
	if err := s.proc.Ready(ctx, s.cfg.ReadyTimeout); err != nil {
		return err
	}
	return s.proc.Send(usi.EncodePosition(pos))
}

// search collects the latest line per multipv slot until bestmove
func (s *Session) search(ctx context.Context, pos usi.Position, params usi.GoParams, timeout time.Duration) (usi.AnalysisResult, error) {
	if err := s.prepare(ctx, pos); err != nil {
		return usi.AnalysisResult{}, err
	}
	if err := s.proc.Go(params); err != nil {
		return usi.AnalysisResult{}, err
	}

	slots := make(map[int]usi.InfoLine)
	deadline := time.Now().Add(timeout)
	for {
		if s.cancel.Load() {
			s.proc.StopAndFlush()
			return usi.AnalysisResult{}, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			s.proc.StopAndFlush()
			return usi.AnalysisResult{}, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.log.Warn().Str("position", pos.String()).Dur("timeout", timeout).Msg("search timed out")
			s.proc.StopAndFlush()
			return usi.AnalysisResult{}, fmt.Errorf("%w after %s", ErrSearchTimeout, timeout)
		}

		line, err := s.proc.readLine(min(remaining, s.cfg.ReadTimeout))
		if errors.Is(err, errNoOutput) {
			continue
		}
		if err != nil {
			return usi.AnalysisResult{}, err
		}

		r := usi.Decode(line)
		switch r.Kind {
		case usi.ReplyInfo:
			slots[r.Info.MultiPV] = r.Info
		case usi.ReplyBestmove:
			return usi.AnalysisResult{OK: true, Bestmove: r.Move, Ranked: usi.RankLines(slots)}, nil
		}
	}
}

// StreamAnalyze searches pos to depth and reports progress through emit:
// an EventInfo per actionable line, EventKeepalive while the engine is
// thinking silently, a terminal EventBestmove, or EventError when the engine
// is unavailable or dies. A failing emit is treated as a cancellation.
// Cancellation ends the stream without a terminal event and returns nil.
func (s *Session) StreamAnalyze(ctx context.Context, pos usi.Position, depth, multipv int, emit func(Event) error) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	s.cancel.Store(false)

	if err := s.proc.EnsureAlive(ctx); err != nil {
		_ = emit(Event{Kind: EventError, Err: "engine not available"})
		return err
	}
	if err := s.prepare(ctx, pos); err != nil {
		_ = emit(Event{Kind: EventError, Err: ErrorText(err)})
		return err
	}
	if err := s.proc.Go(usi.GoParams{Depth: depth, MultiPV: multipv}); err != nil {
		_ = emit(Event{Kind: EventError, Err: ErrorText(err)})
		return err
	}

	gote := pos.GoteToMove()
	send := func(ev Event) {
		if err := emit(ev); err != nil {
			s.log.Debug().Err(err).Msg("stream consumer gone")
			s.cancel.Store(true)
		}
	}

	for {
		if s.cancel.CompareAndSwap(true, false) || ctx.Err() != nil {
			s.proc.StopAndFlush()
			return nil
		}

		line, err := s.proc.readLine(s.cfg.StreamReadTimeout)
		if errors.Is(err, errNoOutput) {
			send(Event{Kind: EventKeepalive})
			continue
		}
		if err != nil {
			_ = emit(Event{Kind: EventError, Err: ErrorText(err)})
			return err
		}

		r := usi.Decode(line)
		switch r.Kind {
		case usi.ReplyInfo:
			if gote {
				r.Info.Score = r.Info.Score.Negate()
			}
			send(Event{Kind: EventInfo, Info: r.Info})
		case usi.ReplyBestmove:
			send(Event{Kind: EventBestmove, Bestmove: r.Move})
			return nil
		}
	}
}

// Reload kills the engine; the next operation starts a fresh one
func (s *Session) Reload(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	s.proc.Kill()
	s.log.Info().Msg("engine reloaded")
	return nil
}

// Close shuts the engine down; later operations fail with ErrClosed
func (s *Session) Close(ctx context.Context) error {
	s.Cancel()
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	s.closed.Store(true)
	return s.proc.Close()
}

// Acquire takes exclusive use of the session for a sequence of searches,
// clearing any stale cancellation and leaving the engine idle and running.
// The lease must be released.
func (s *Session) Acquire(ctx context.Context) (*Lease, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	s.cancel.Store(false)
	if err := s.proc.EnsureAlive(ctx); err != nil {
		s.unlock()
		return nil, err
	}
	s.proc.StopAndFlush()
	return &Lease{s: s}, nil
}

// Lease is exclusive use of a session obtained with Acquire
type Lease struct {
	s    *Session
	once sync.Once
}

// AnalyzeOnce runs a node-limited search with the batch bounds
func (l *Lease) AnalyzeOnce(ctx context.Context, pos usi.Position) (usi.AnalysisResult, error) {
	s := l.s
	if err := s.proc.EnsureAlive(ctx); err != nil {
		return usi.AnalysisResult{}, err
	}
	return s.search(ctx, pos, usi.GoParams{Nodes: s.cfg.BatchNodes, MultiPV: s.cfg.BatchMultiPV}, s.cfg.SearchTimeout)
}

// CancelRequested reports and clears a pending cancellation
func (l *Lease) CancelRequested() bool {
	return l.s.cancel.CompareAndSwap(true, false)
}

// Cancel requests cancellation of the leased sequence
func (l *Lease) Cancel() { l.s.Cancel() }

// StopAndFlush interrupts any outstanding search
func (l *Lease) StopAndFlush() { l.s.proc.StopAndFlush() }

// Release returns the session; further calls are no-ops
func (l *Lease) Release() {
	l.once.Do(l.s.unlock)
}

// ErrorText is the client-facing message for an engine failure
func ErrorText(err error) string {
	switch {
	case errors.Is(err, ErrUnavailable):
		return "engine not available"
	case errors.Is(err, ErrCrashed):
		return "engine crashed"
	case errors.Is(err, ErrSearchTimeout):
		return "engine timed out"
	default:
		return err.Error()
	}
}
