// FILE: shogi/internal/server/engine/tsume.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shogi/internal/server/usi"
)

// TsumeStatus grades a move played in a mating puzzle
type TsumeStatus string

const (
	TsumeWin       TsumeStatus = "win"       // defender resigned, mate delivered
	TsumeLose      TsumeStatus = "lose"      // defender declared an entering-king win
	TsumeContinue  TsumeStatus = "continue"  // still on a mating line
	TsumeIncorrect TsumeStatus = "incorrect" // the move does not mate
	TsumeError     TsumeStatus = "error"
)

// TsumeResult is the defender's reply to the attacker's move
type TsumeResult struct {
	Status   TsumeStatus `json:"status"`
	Bestmove string      `json:"bestmove,omitempty"`
	Message  string      `json:"message"`
}

// SolveTsume lets the engine defend pos, the position right after the
// attacker's move, and grades that move from the defender's reply.
// On failure the result carries TsumeError alongside the returned error.
func (s *Session) SolveTsume(ctx context.Context, pos usi.Position) (TsumeResult, error) {
	if err := s.lock(ctx); err != nil {
		return tsumeFailure(err), err
	}
	defer s.unlock()

	if err := s.proc.EnsureAlive(ctx); err != nil {
		return tsumeFailure(err), err
	}
	if err := s.prepare(ctx, pos); err != nil {
		return tsumeFailure(err), err
	}
	if err := s.proc.Go(usi.GoParams{Nodes: s.cfg.TsumeNodes}); err != nil {
		return tsumeFailure(err), err
	}

	// tracks the last mate score seen; the defender being mated means the attacker is on track
	mating := false
	deadline := time.Now().Add(s.cfg.TsumeTimeout)
	for {
		if err := ctx.Err(); err != nil {
			s.proc.StopAndFlush()
			return tsumeFailure(err), err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.proc.StopAndFlush()
			err := fmt.Errorf("%w after %s", ErrSearchTimeout, s.cfg.TsumeTimeout)
			return tsumeFailure(err), err
		}

		line, err := s.proc.readLine(min(remaining, s.cfg.TsumeReadTimeout))
		if errors.Is(err, errNoOutput) {
			continue
		}
		if err != nil {
			return tsumeFailure(err), err
		}

		if strings.HasPrefix(line, "info ") {
			if score, ok := usi.DecodeScore(line); ok && score.Kind == usi.ScoreMate && score.Value != 0 {
				mating = score.Value < 0
			} else if sign, ok := usi.DecodeMateSign(line); ok {
				mating = sign < 0
			}
			continue
		}
		if move, ok := usi.DecodeBestmove(line); ok {
			s.log.Debug().Str("bestmove", move).Bool("mating", mating).Msg("tsume reply")
			return gradeTsume(move, mating), nil
		}
	}
}

func gradeTsume(move string, mating bool) TsumeResult {
	if usi.IsSentinel(move) {
		if move == usi.MoveResign {
			return TsumeResult{Status: TsumeWin, Bestmove: move, Message: "Correct! Checkmate."}
		}
		return TsumeResult{Status: TsumeLose, Bestmove: move, Message: "Incorrect: the king escaped by entering."}
	}
	if mating {
		return TsumeResult{Status: TsumeContinue, Bestmove: move, Message: "Correct!"}
	}
	return TsumeResult{Status: TsumeIncorrect, Bestmove: move, Message: "That move does not mate."}
}

func tsumeFailure(err error) TsumeResult {
	return TsumeResult{Status: TsumeError, Message: ErrorText(err)}
}
