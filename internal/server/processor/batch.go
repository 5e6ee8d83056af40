// FILE: shogi/internal/server/processor/batch.go
package processor

import (
	"context"
	"errors"
	"time"

	"shogi/internal/server/engine"
	"shogi/internal/server/usi"

	"github.com/rs/zerolog"
)

// Analyzer is exclusive use of one engine for the length of a batch;
// engine.Lease implements it
type Analyzer interface {
	AnalyzeOnce(ctx context.Context, pos usi.Position) (usi.AnalysisResult, error)
	CancelRequested() bool
	Cancel()
	StopAndFlush()
}

// Ply is the analysis of the position reached after Index moves.
// Scores are from sente's point of view.
type Ply struct {
	Index    int                `json:"ply"`
	Position usi.Position       `json:"-"`
	Result   usi.AnalysisResult `json:"result"`
}

// BatchOutcome summarises how a batch ended
type BatchOutcome struct {
	Analyzed  int  `json:"analyzed"`
	Skipped   int  `json:"skipped"`
	Truncated bool `json:"truncated,omitempty"` // time budget exhausted
	Cancelled bool `json:"cancelled,omitempty"`
}

// Batch analyses every prefix of a game, from the base position to the final move
type Batch struct {
	Game   usi.Position
	Budget time.Duration // zero means unlimited
	MaxPly int           // last ply to analyse; zero means the whole game
	Log    zerolog.Logger
}

// Run analyses ply 0..n in order and hands each result to emit as soon as it
// is known. A failing emit means the consumer is gone: the engine is stopped
// and no further work is done. Search timeouts skip the ply; any other engine
// failure aborts the batch with that error.
func (b Batch) Run(ctx context.Context, a Analyzer, emit func(Ply) error) (BatchOutcome, error) {
	var out BatchOutcome
	last := len(b.Game.Moves)
	if b.MaxPly > 0 && b.MaxPly < last {
		last = b.MaxPly
	}
	start := time.Now()

	for i := 0; i <= last; i++ {
		if ctx.Err() != nil || a.CancelRequested() {
			a.StopAndFlush()
			out.Cancelled = true
			b.Log.Info().Int("ply", i).Msg("batch cancelled")
			return out, nil
		}
		if b.Budget > 0 && time.Since(start) > b.Budget {
			out.Truncated = true
			b.Log.Info().Int("ply", i).Dur("budget", b.Budget).Msg("batch time budget exceeded")
			return out, nil
		}

		pos := b.Game.Prefix(i)
		res, err := a.AnalyzeOnce(ctx, pos)
		switch {
		case errors.Is(err, engine.ErrSearchTimeout):
			b.Log.Warn().Int("ply", i).Msg("ply search timed out, skipping")
			out.Skipped++
			continue
		case errors.Is(err, engine.ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// the interrupted search has already been flushed
			a.CancelRequested()
			out.Cancelled = true
			b.Log.Info().Int("ply", i).Msg("batch cancelled mid-search")
			return out, nil
		case err != nil:
			b.Log.Error().Err(err).Int("ply", i).Msg("batch aborted")
			return out, err
		}

		if pos.GoteToMove() {
			res.Negate()
		}
		if err := emit(Ply{Index: i, Position: pos, Result: res}); err != nil {
			b.Log.Info().Err(err).Int("ply", i).Msg("batch consumer gone")
			a.Cancel()
			a.StopAndFlush()
			out.Cancelled = true
			return out, nil
		}
		out.Analyzed++
	}
	return out, nil
}
