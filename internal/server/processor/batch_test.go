package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"shogi/internal/server/engine"
	"shogi/internal/server/usi"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnalyzer scores every position +100 for the side to move
type fakeAnalyzer struct {
	errs      map[int]error // by ply
	delay     time.Duration
	searched  []int
	cancel    bool
	cancelAt  int // sets the cancel flag when this ply is searched, -1 disables
	flushes   int
	cancelled int
}

func newFake() *fakeAnalyzer {
	return &fakeAnalyzer{errs: map[int]error{}, cancelAt: -1}
}

func (f *fakeAnalyzer) AnalyzeOnce(_ context.Context, pos usi.Position) (usi.AnalysisResult, error) {
	ply := len(pos.Moves)
	f.searched = append(f.searched, ply)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if ply == f.cancelAt {
		f.cancel = true
	}
	if err := f.errs[ply]; err != nil {
		return usi.AnalysisResult{}, err
	}
	return usi.AnalysisResult{
		OK:       true,
		Bestmove: "7g7f",
		Ranked:   []usi.InfoLine{{MultiPV: 1, Score: usi.Centipawn(100), PV: []string{"7g7f"}}},
	}, nil
}

func (f *fakeAnalyzer) CancelRequested() bool {
	c := f.cancel
	f.cancel = false
	return c
}

func (f *fakeAnalyzer) Cancel() {
	f.cancel = true
	f.cancelled++
}

func (f *fakeAnalyzer) StopAndFlush() { f.flushes++ }

func game(n int) usi.Position {
	moves := []string{"7g7f", "3c3d", "2g2f", "8c8d", "2f2e", "8d8e"}
	return usi.StartPos(moves[:n]...)
}

func collect(plies *[]Ply) func(Ply) error {
	return func(p Ply) error {
		*plies = append(*plies, p)
		return nil
	}
}

func TestBatchScoresFromSente(t *testing.T) {
	f := newFake()
	var plies []Ply

	out, err := Batch{Game: game(3), Log: zerolog.Nop()}.Run(context.Background(), f, collect(&plies))
	require.NoError(t, err)
	assert.Equal(t, BatchOutcome{Analyzed: 4}, out)

	require.Len(t, plies, 4)
	for i, p := range plies {
		assert.Equal(t, i, p.Index)
		assert.Len(t, p.Position.Moves, i)
		want := 100
		if i%2 == 1 {
			want = -100
		}
		assert.Equal(t, usi.Centipawn(want), p.Result.Ranked[0].Score, "ply %d", i)
	}
}

func TestBatchGoteBase(t *testing.T) {
	f := newFake()
	var plies []Ply
	pos, err := usi.ParsePosition("sfen lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1 moves 3c3d")
	require.NoError(t, err)

	_, err = Batch{Game: pos, Log: zerolog.Nop()}.Run(context.Background(), f, collect(&plies))
	require.NoError(t, err)
	require.Len(t, plies, 2)
	assert.Equal(t, usi.Centipawn(-100), plies[0].Result.Ranked[0].Score)
	assert.Equal(t, usi.Centipawn(100), plies[1].Result.Ranked[0].Score)
}

func TestBatchMaxPly(t *testing.T) {
	f := newFake()
	var plies []Ply

	out, err := Batch{Game: game(6), MaxPly: 2, Log: zerolog.Nop()}.Run(context.Background(), f, collect(&plies))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Analyzed)
	assert.Equal(t, []int{0, 1, 2}, f.searched)
}

func TestBatchSkipsTimedOutPly(t *testing.T) {
	f := newFake()
	f.errs[1] = engine.ErrSearchTimeout
	var plies []Ply

	out, err := Batch{Game: game(3), Log: zerolog.Nop()}.Run(context.Background(), f, collect(&plies))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Analyzed)
	assert.Equal(t, 1, out.Skipped)
	for _, p := range plies {
		assert.NotEqual(t, 1, p.Index)
	}
}

func TestBatchAbortsOnCrash(t *testing.T) {
	f := newFake()
	f.errs[2] = engine.ErrCrashed
	var plies []Ply

	out, err := Batch{Game: game(4), Log: zerolog.Nop()}.Run(context.Background(), f, collect(&plies))
	require.ErrorIs(t, err, engine.ErrCrashed)
	assert.Equal(t, 2, out.Analyzed)
	assert.Equal(t, []int{0, 1, 2}, f.searched)
}

func TestBatchTimeBudget(t *testing.T) {
	f := newFake()
	f.delay = 30 * time.Millisecond
	var plies []Ply

	out, err := Batch{Game: game(6), Budget: 50 * time.Millisecond, Log: zerolog.Nop()}.Run(context.Background(), f, collect(&plies))
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.False(t, out.Cancelled)
	assert.Less(t, out.Analyzed, 7)
	assert.Len(t, plies, out.Analyzed)
}

func TestBatchCancelBetweenPlies(t *testing.T) {
	f := newFake()
	f.cancelAt = 1
	var plies []Ply

	out, err := Batch{Game: game(4), Log: zerolog.Nop()}.Run(context.Background(), f, collect(&plies))
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.Equal(t, 2, out.Analyzed)
	assert.Equal(t, 1, f.flushes)
	assert.False(t, f.cancel, "flag consumed")
}

func TestBatchCancelledSearch(t *testing.T) {
	f := newFake()
	f.errs[1] = engine.ErrCancelled
	f.cancelAt = 1

	out, err := Batch{Game: game(4), Log: zerolog.Nop()}.Run(context.Background(), f, func(Ply) error { return nil })
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.Equal(t, 1, out.Analyzed)
	assert.False(t, f.cancel, "flag consumed")
}

func TestBatchConsumerGone(t *testing.T) {
	f := newFake()
	sent := 0

	out, err := Batch{Game: game(4), Log: zerolog.Nop()}.Run(context.Background(), f, func(Ply) error {
		sent++
		if sent == 2 {
			return errors.New("broken pipe")
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.Equal(t, 1, out.Analyzed)
	assert.Equal(t, 1, f.cancelled)
	assert.Equal(t, 1, f.flushes)
	assert.Equal(t, []int{0, 1}, f.searched, "no work after the consumer left")
}

func TestBatchContextDone(t *testing.T) {
	f := newFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := Batch{Game: game(2), Log: zerolog.Nop()}.Run(ctx, f, func(Ply) error { return nil })
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.Empty(t, f.searched)
}
