package usi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hirateSFEN = "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1"

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in   string
		want Position
	}{
		{"startpos", Position{}},
		{"position startpos", Position{}},
		{"startpos moves 7g7f 3c3d", Position{Moves: []string{"7g7f", "3c3d"}}},
		{"sfen " + hirateSFEN, Position{SFEN: hirateSFEN}},
		{"position sfen " + hirateSFEN + " moves 2g2f", Position{SFEN: hirateSFEN, Moves: []string{"2g2f"}}},
		{"sfen 4k4/9/4P4/9/9/9/9/9/9 b G2r2b3g4s4n4l17p 1", Position{SFEN: "4k4/9/4P4/9/9/9/9/9/9 b G2r2b3g4s4n4l17p 1"}},
		{"startpos moves 7g7f 3c3d 8h2b+ 3a2b B*4e", Position{Moves: []string{"7g7f", "3c3d", "8h2b+", "3a2b", "B*4e"}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePosition(tt.in)
			require.NoError(t, err)
			if len(tt.want.Moves) == 0 {
				assert.Empty(t, got.Moves)
				got.Moves = nil
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePositionRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"position",
		"startpos\nquit",
		"startpos moves 7g7f\rgo infinite",
		"startpos 7g7f",
		"startpos moves e2e4",
		"startpos moves 7g7f go",
		"sfen " + hirateSFEN[:20],
		"sfen lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL x - 1",
		"sfen lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b Q 1",
		"fen rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
	} {
		_, err := ParsePosition(in)
		assert.ErrorIs(t, err, ErrInvalidPosition, "%q", in)
	}
}

func TestPositionCommand(t *testing.T) {
	assert.Equal(t, "position startpos", StartPos().Command())
	assert.Equal(t, "position startpos moves 7g7f 3c3d", StartPos("7g7f", "3c3d").Command())
	p := Position{SFEN: hirateSFEN, Moves: []string{"2g2f"}}
	assert.Equal(t, "position sfen "+hirateSFEN+" moves 2g2f", EncodePosition(p))
}

func TestPositionPrefix(t *testing.T) {
	p := StartPos("7g7f", "3c3d", "2g2f")
	assert.Equal(t, "startpos", p.Prefix(0).String())
	assert.Equal(t, "startpos moves 7g7f 3c3d", p.Prefix(2).String())
	assert.Equal(t, p.String(), p.Prefix(10).String())
	assert.Equal(t, "startpos", p.Prefix(-1).String())

	// appending to a prefix must not clobber the original
	q := p.Prefix(1)
	q.Moves = append(q.Moves, "8c8d")
	assert.Equal(t, "3c3d", p.Moves[1])
}

func TestGoteToMove(t *testing.T) {
	assert.False(t, StartPos().GoteToMove())
	assert.True(t, StartPos("7g7f").GoteToMove())
	assert.False(t, StartPos("7g7f", "3c3d").GoteToMove())

	goteSFEN := "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1"
	assert.True(t, Position{SFEN: goteSFEN}.GoteToMove())
	assert.False(t, Position{SFEN: goteSFEN, Moves: []string{"3c3d"}}.GoteToMove())
	assert.False(t, Position{SFEN: hirateSFEN}.GoteToMove())
}
