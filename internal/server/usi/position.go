// FILE: shogi/internal/server/usi/position.go
package usi

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrInvalidPosition is returned for position strings that cannot be sent to an engine
var ErrInvalidPosition = errors.New("invalid position")

var (
	// board/side/hand/ply, e.g. "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1"
	sfenBoardPattern = regexp.MustCompile(`^[plnsgbrkPLNSGBRK1-9+/]+$`)
	sfenHandPattern  = regexp.MustCompile(`^(-|([0-9]*[plnsgbrPLNSGBR])+)$`)
	plyPattern       = regexp.MustCompile(`^\d+$`)
	// board moves (7g7f, 8h2b+) and drops (P*5e)
	movePattern = regexp.MustCompile(`^([1-9][a-i][1-9][a-i]\+?|[PLNSGBR]\*[1-9][a-i])$`)
)

// Position is a base position plus the moves played from it.
// An empty SFEN means the standard starting position.
type Position struct {
	SFEN  string
	Moves []string
}

// StartPos returns the initial position followed by moves
func StartPos(moves ...string) Position {
	return Position{Moves: moves}
}

// ParsePosition reads "startpos [moves ...]" or "sfen <board> <side> <hand> <ply> [moves ...]",
// optionally prefixed by "position". Control characters and malformed tokens are rejected
// so that the result is always safe to write to an engine.
func ParsePosition(s string) (Position, error) {
	for _, r := range s {
		if unicode.IsControl(r) {
			return Position{}, fmt.Errorf("%w: control character", ErrInvalidPosition)
		}
	}
	fields := strings.Fields(s)
	if len(fields) > 0 && fields[0] == "position" {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return Position{}, fmt.Errorf("%w: empty", ErrInvalidPosition)
	}

	var p Position
	switch fields[0] {
	case "startpos":
		fields = fields[1:]
	case "sfen":
		if len(fields) < 5 {
			return Position{}, fmt.Errorf("%w: sfen needs board, side, hand and ply", ErrInvalidPosition)
		}
		board, side, hand, ply := fields[1], fields[2], fields[3], fields[4]
		if !sfenBoardPattern.MatchString(board) || strings.Count(board, "/") != 8 {
			return Position{}, fmt.Errorf("%w: bad board %q", ErrInvalidPosition, board)
		}
		if side != "b" && side != "w" {
			return Position{}, fmt.Errorf("%w: bad side %q", ErrInvalidPosition, side)
		}
		if !sfenHandPattern.MatchString(hand) {
			return Position{}, fmt.Errorf("%w: bad hand %q", ErrInvalidPosition, hand)
		}
		if !plyPattern.MatchString(ply) {
			return Position{}, fmt.Errorf("%w: bad ply %q", ErrInvalidPosition, ply)
		}
		p.SFEN = strings.Join(fields[1:5], " ")
		fields = fields[5:]
	default:
		return Position{}, fmt.Errorf("%w: must start with startpos or sfen", ErrInvalidPosition)
	}

	if len(fields) == 0 {
		return p, nil
	}
	if fields[0] != "moves" {
		return Position{}, fmt.Errorf("%w: unexpected %q", ErrInvalidPosition, fields[0])
	}
	moves, err := ParseMoves(fields[1:])
	if err != nil {
		return Position{}, err
	}
	p.Moves = moves
	return p, nil
}

// ParseMoves validates a list of move tokens
func ParseMoves(tokens []string) ([]string, error) {
	moves := make([]string, 0, len(tokens))
	for _, m := range tokens {
		if !movePattern.MatchString(m) {
			return nil, fmt.Errorf("%w: bad move %q", ErrInvalidPosition, m)
		}
		moves = append(moves, m)
	}
	return moves, nil
}

// String renders the position without the leading "position" verb
func (p Position) String() string {
	var b strings.Builder
	if p.SFEN == "" {
		b.WriteString("startpos")
	} else {
		b.WriteString("sfen ")
		b.WriteString(p.SFEN)
	}
	if len(p.Moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(p.Moves, " "))
	}
	return b.String()
}

// Command renders the full position command
func (p Position) Command() string {
	return "position " + p.String()
}

// Prefix returns the position after the first n moves
func (p Position) Prefix(n int) Position {
	n = min(max(n, 0), len(p.Moves))
	return Position{SFEN: p.SFEN, Moves: p.Moves[:n:n]}
}

// GoteToMove reports whether the second player (gote, "w") is on move
func (p Position) GoteToMove() bool {
	gote := false
	if p.SFEN != "" {
		if fields := strings.Fields(p.SFEN); len(fields) > 1 {
			gote = fields[1] == "w"
		}
	}
	if len(p.Moves)%2 == 1 {
		gote = !gote
	}
	return gote
}
