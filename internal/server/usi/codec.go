// Package usi encodes commands for and decodes replies from engines speaking
// the Universal Shogi Interface.
package usi

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CentipawnScale damps raw engine evaluations before they are exposed
const CentipawnScale = 0.7

// Bestmove sentinels that are outcomes rather than moves
const (
	MoveResign = "resign"
	MoveWin    = "win"
)

var (
	scorePattern    = regexp.MustCompile(`\bscore\s+(cp|mate)\s+(?:(?:lowerbound|upperbound)\s+)?([+-]?\d+)`)
	mateSignPattern = regexp.MustCompile(`\bscore\s+mate\s+([+-])(?:\s|$)`)
	multipvPattern  = regexp.MustCompile(`\bmultipv\s+(\d+)`)
	depthPattern    = regexp.MustCompile(`\bdepth\s+(\d+)`)
	pvPattern       = regexp.MustCompile(`\spv\s+(.*)$`)
)

// ScaleCentipawn applies CentipawnScale, truncating toward zero
func ScaleCentipawn(cp int) int {
	return int(float64(cp) * CentipawnScale)
}

// ScoreKind distinguishes centipawn from mate evaluations
type ScoreKind uint8

const (
	ScoreCentipawn ScoreKind = iota
	ScoreMate
)

func (k ScoreKind) String() string {
	if k == ScoreMate {
		return "mate"
	}
	return "cp"
}

// Score is either a centipawn value or a mate distance in plies, from the
// point of view of the side the score was reported for
type Score struct {
	Kind  ScoreKind
	Value int
}

// Centipawn builds an already-scaled centipawn score
func Centipawn(v int) Score { return Score{Kind: ScoreCentipawn, Value: v} }

// Mate builds a mate-in-n score; negative n means the side is being mated
func Mate(n int) Score { return Score{Kind: ScoreMate, Value: n} }

// Negate switches the score to the other side's perspective
func (s Score) Negate() Score {
	s.Value = -s.Value
	return s
}

func (s Score) String() string {
	return fmt.Sprintf("%s %d", s.Kind, s.Value)
}

type scoreJSON struct {
	Type string `json:"type"`
	CP   *int   `json:"cp,omitempty"`
	Mate *int   `json:"mate,omitempty"`
}

func (s Score) MarshalJSON() ([]byte, error) {
	v := s.Value
	out := scoreJSON{Type: s.Kind.String()}
	if s.Kind == ScoreMate {
		out.Mate = &v
	} else {
		out.CP = &v
	}
	return json.Marshal(out)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var in scoreJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.Type == "mate" && in.Mate != nil:
		*s = Mate(*in.Mate)
	case in.Type == "cp" && in.CP != nil:
		*s = Centipawn(*in.CP)
	default:
		return fmt.Errorf("invalid score %s", data)
	}
	return nil
}

// InfoLine is one actionable search report: a score with its principal variation
type InfoLine struct {
	MultiPV int      `json:"multipv"`
	Depth   int      `json:"depth,omitempty"`
	Score   Score    `json:"score"`
	PV      []string `json:"pv"`
}

// AnalysisResult is the outcome of one bounded search
type AnalysisResult struct {
	OK       bool       `json:"ok"`
	Bestmove string     `json:"bestmove,omitempty"`
	Ranked   []InfoLine `json:"multipv"`
}

// Negate flips every ranked score to the other side's perspective
func (r *AnalysisResult) Negate() {
	for i := range r.Ranked {
		r.Ranked[i].Score = r.Ranked[i].Score.Negate()
	}
}

// Best returns the first ranked line, if any
func (r *AnalysisResult) Best() (InfoLine, bool) {
	if len(r.Ranked) == 0 {
		return InfoLine{}, false
	}
	return r.Ranked[0], true
}

// RankLines orders the latest line per multipv slot by slot number
func RankLines(slots map[int]InfoLine) []InfoLine {
	ranked := make([]InfoLine, 0, len(slots))
	for _, info := range slots {
		ranked = append(ranked, info)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].MultiPV < ranked[j].MultiPV })
	return ranked
}

// GoParams bounds a search by depth or by node count
type GoParams struct {
	Depth   int
	Nodes   int
	MultiPV int
}

// EncodeGo renders a go command; a node limit wins over a depth limit
func EncodeGo(p GoParams) string {
	var b strings.Builder
	b.WriteString("go")
	if p.Nodes > 0 {
		b.WriteString(" nodes ")
		b.WriteString(strconv.Itoa(p.Nodes))
	} else {
		b.WriteString(" depth ")
		b.WriteString(strconv.Itoa(max(p.Depth, 1)))
	}
	if p.MultiPV > 0 {
		b.WriteString(" multipv ")
		b.WriteString(strconv.Itoa(p.MultiPV))
	}
	return b.String()
}

// EncodeSetOption renders a setoption command
func EncodeSetOption(name string, value any) string {
	return fmt.Sprintf("setoption name %s value %v", name, value)
}

// EncodePosition renders a position command
func EncodePosition(p Position) string {
	return p.Command()
}

// ReplyKind tags a decoded engine line
type ReplyKind uint8

const (
	ReplyIgnored ReplyKind = iota
	ReplyInfo
	ReplyBestmove
	ReplyUSIOK
	ReplyReadyOK
)

// Reply is a decoded engine line. Only the field matching Kind is set.
type Reply struct {
	Kind ReplyKind
	Info InfoLine
	Move string
}

// Decode classifies one engine output line
func Decode(line string) Reply {
	line = strings.TrimSpace(line)
	switch {
	case line == "usiok":
		return Reply{Kind: ReplyUSIOK}
	case line == "readyok":
		return Reply{Kind: ReplyReadyOK}
	}
	if move, ok := DecodeBestmove(line); ok {
		return Reply{Kind: ReplyBestmove, Move: move}
	}
	if info, ok := DecodeInfoLine(line); ok {
		return Reply{Kind: ReplyInfo, Info: info}
	}
	return Reply{Kind: ReplyIgnored}
}

// DecodeBestmove extracts the token of a bestmove line
func DecodeBestmove(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bestmove" {
		return "", false
	}
	return fields[1], true
}

// IsSentinel reports whether a bestmove token is an outcome, not a move
func IsSentinel(move string) bool {
	return move == MoveResign || move == MoveWin
}

// DecodeScore extracts the score of an info line, scaling centipawns.
// Bound qualifiers are accepted and dropped.
func DecodeScore(line string) (Score, bool) {
	m := scorePattern.FindStringSubmatch(line)
	if m == nil {
		return Score{}, false
	}
	v, err := strconv.Atoi(m[2])
	if err != nil {
		return Score{}, false
	}
	if m[1] == "mate" {
		return Mate(v), true
	}
	return Centipawn(ScaleCentipawn(v)), true
}

// DecodeMateSign reads a mate score given without a distance ("score mate +"
// or "score mate -"): +1 when the side to move mates, -1 when it is mated
func DecodeMateSign(line string) (int, bool) {
	m := mateSignPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	if m[1] == "-" {
		return -1, true
	}
	return 1, true
}

// DecodeInfoLine parses an info line carrying both a score and a pv.
// Lines missing either are not actionable and yield false.
func DecodeInfoLine(line string) (InfoLine, bool) {
	if !strings.HasPrefix(line, "info ") {
		return InfoLine{}, false
	}
	// pv runs to the end of the line, so score and multipv are read before it
	head := line
	var pv []string
	if m := pvPattern.FindStringSubmatchIndex(line); m != nil {
		head = line[:m[0]]
		pv = strings.Fields(line[m[2]:m[3]])
	}
	if len(pv) == 0 {
		return InfoLine{}, false
	}
	score, ok := DecodeScore(head)
	if !ok {
		return InfoLine{}, false
	}
	info := InfoLine{MultiPV: 1, Score: score, PV: pv}
	if m := multipvPattern.FindStringSubmatch(head); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
			info.MultiPV = n
		}
	}
	if m := depthPattern.FindStringSubmatch(head); m != nil {
		info.Depth, _ = strconv.Atoi(m[1])
	}
	return info, true
}
