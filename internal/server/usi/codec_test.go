package usi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleCentipawn(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0},
		{100, 70},
		{-100, -70},
		{1, 0},
		{-1, 0},
		{3, 2},
		{-3, -2},
		{15, 10},
		{31999, 22399},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScaleCentipawn(tt.in), "scale(%d)", tt.in)
		assert.Equal(t, int(float64(tt.in)*0.7), ScaleCentipawn(tt.in))
	}
}

func TestDecodeInfoLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want InfoLine
	}{
		{
			name: "single pv defaults multipv to 1",
			line: "info depth 12 seldepth 18 score cp 100 nodes 12345 pv 7g7f 3c3d",
			want: InfoLine{MultiPV: 1, Depth: 12, Score: Centipawn(70), PV: []string{"7g7f", "3c3d"}},
		},
		{
			name: "multipv slot",
			line: "info depth 10 multipv 3 score cp -250 pv 2g2f 8c8d 2f2e",
			want: InfoLine{MultiPV: 3, Depth: 10, Score: Centipawn(-175), PV: []string{"2g2f", "8c8d", "2f2e"}},
		},
		{
			name: "mate is not scaled",
			line: "info depth 5 multipv 1 score mate -3 pv G*5b 5a5b",
			want: InfoLine{MultiPV: 1, Depth: 5, Score: Mate(-3), PV: []string{"G*5b", "5a5b"}},
		},
		{
			name: "bound before value",
			line: "info depth 8 score cp lowerbound 40 pv 7g7f",
			want: InfoLine{MultiPV: 1, Depth: 8, Score: Centipawn(28), PV: []string{"7g7f"}},
		},
		{
			name: "bound after value",
			line: "info depth 8 score cp 40 upperbound pv 7g7f",
			want: InfoLine{MultiPV: 1, Depth: 8, Score: Centipawn(28), PV: []string{"7g7f"}},
		},
		{
			name: "explicit plus sign",
			line: "info score mate +5 pv 5b4c+",
			want: InfoLine{MultiPV: 1, Score: Mate(5), PV: []string{"5b4c+"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeInfoLine(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInfoLineRejectsPartialLines(t *testing.T) {
	for _, line := range []string{
		"info depth 12 score cp 100 nodes 5000",
		"info depth 12 score cp 100 pv",
		"info depth 3 pv 7g7f 3c3d",
		"info string score cp 100 but no line",
		"info nodes 100 nps 2000",
		"bestmove 7g7f",
		"",
		"id name mock",
	} {
		_, ok := DecodeInfoLine(line)
		assert.False(t, ok, "%q", line)
	}
}

func TestDecodeBestmove(t *testing.T) {
	move, ok := DecodeBestmove("bestmove 7g7f ponder 3c3d")
	require.True(t, ok)
	assert.Equal(t, "7g7f", move)
	assert.False(t, IsSentinel(move))

	move, ok = DecodeBestmove("bestmove resign")
	require.True(t, ok)
	assert.True(t, IsSentinel(move))

	move, ok = DecodeBestmove("bestmove win")
	require.True(t, ok)
	assert.True(t, IsSentinel(move))

	_, ok = DecodeBestmove("bestmove")
	assert.False(t, ok)
	_, ok = DecodeBestmove("info string bestmove 7g7f")
	assert.False(t, ok)
}

func TestDecodeMateSign(t *testing.T) {
	tests := []struct {
		line string
		sign int
		ok   bool
	}{
		{"info depth 3 score mate - pv 5a4b 4c4b", -1, true},
		{"info depth 3 score mate + pv 4c4b", 1, true},
		{"info depth 3 score mate -", -1, true},
		{"info depth 3 score mate -3 pv 5a4b", 0, false},
		{"info depth 3 score cp 100 pv 7g7f", 0, false},
		{"info string score mate - unknown", -1, true},
	}
	for _, tt := range tests {
		sign, ok := DecodeMateSign(tt.line)
		assert.Equal(t, tt.ok, ok, "%q", tt.line)
		assert.Equal(t, tt.sign, sign, "%q", tt.line)
	}

	_, ok := DecodeScore("info depth 3 score mate - pv 5a4b")
	assert.False(t, ok, "distance-less mate has no value")
}

func TestDecode(t *testing.T) {
	assert.Equal(t, ReplyUSIOK, Decode("usiok").Kind)
	assert.Equal(t, ReplyReadyOK, Decode("readyok\r").Kind)
	assert.Equal(t, ReplyIgnored, Decode("id author someone").Kind)
	assert.Equal(t, ReplyIgnored, Decode("info depth 1 nodes 10").Kind)

	r := Decode("bestmove 2g2f")
	assert.Equal(t, ReplyBestmove, r.Kind)
	assert.Equal(t, "2g2f", r.Move)

	r = Decode("info multipv 2 score cp 10 pv 2g2f")
	assert.Equal(t, ReplyInfo, r.Kind)
	assert.Equal(t, 2, r.Info.MultiPV)
	assert.Equal(t, Centipawn(7), r.Info.Score)
}

func TestEncodeGo(t *testing.T) {
	assert.Equal(t, "go depth 15 multipv 3", EncodeGo(GoParams{Depth: 15, MultiPV: 3}))
	assert.Equal(t, "go nodes 150000 multipv 1", EncodeGo(GoParams{Nodes: 150000, MultiPV: 1}))
	assert.Equal(t, "go nodes 2000", EncodeGo(GoParams{Nodes: 2000}))
	assert.Equal(t, "go nodes 10 multipv 2", EncodeGo(GoParams{Depth: 5, Nodes: 10, MultiPV: 2}))
	assert.Equal(t, "go depth 1", EncodeGo(GoParams{}))
}

func TestEncodeSetOption(t *testing.T) {
	assert.Equal(t, "setoption name USI_Hash value 64", EncodeSetOption("USI_Hash", 64))
	assert.Equal(t, "setoption name OwnBook value false", EncodeSetOption("OwnBook", false))
}

func TestScoreNegateIsInvolution(t *testing.T) {
	for _, s := range []Score{Centipawn(70), Centipawn(-3), Centipawn(0), Mate(5), Mate(-1)} {
		assert.Equal(t, s, s.Negate().Negate())
		assert.Equal(t, s.Kind, s.Negate().Kind)
		assert.Equal(t, -s.Value, s.Negate().Value)
	}
}

func TestScoreJSON(t *testing.T) {
	data, err := json.Marshal(Centipawn(70))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"cp","cp":70}`, string(data))

	data, err = json.Marshal(Mate(-3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"mate","mate":-3}`, string(data))

	data, err = json.Marshal(Centipawn(0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"cp","cp":0}`, string(data))

	var s Score
	require.NoError(t, json.Unmarshal([]byte(`{"type":"mate","mate":7}`), &s))
	assert.Equal(t, Mate(7), s)
	assert.Error(t, json.Unmarshal([]byte(`{"type":"cp"}`), &s))
}

func TestAnalysisResultNegateAndRank(t *testing.T) {
	ranked := RankLines(map[int]InfoLine{
		2: {MultiPV: 2, Score: Centipawn(-20), PV: []string{"2g2f"}},
		1: {MultiPV: 1, Score: Centipawn(70), PV: []string{"7g7f"}},
		3: {MultiPV: 3, Score: Mate(9), PV: []string{"5i5h"}},
	})
	require.Len(t, ranked, 3)
	for i, info := range ranked {
		assert.Equal(t, i+1, info.MultiPV)
	}

	r := AnalysisResult{OK: true, Bestmove: "7g7f", Ranked: ranked}
	r.Negate()
	assert.Equal(t, Centipawn(-70), r.Ranked[0].Score)
	assert.Equal(t, Centipawn(20), r.Ranked[1].Score)
	assert.Equal(t, Mate(-9), r.Ranked[2].Score)

	best, ok := r.Best()
	require.True(t, ok)
	assert.Equal(t, "7g7f", best.PV[0])
}
