// FILE: shogi/internal/console/commands/position.go
package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"shogi/internal/server/usi"
)

func (r *Registry) registerPositionCommands() {
	r.Register(&Command{
		Name:        "position",
		ShortName:   "p",
		Description: "Show or set the position",
		Usage:       "position [startpos|sfen <board> <side> <hand> <ply>] [moves ...]",
		Handler:     r.positionHandler,
	})
	r.Register(&Command{
		Name:        "moves",
		ShortName:   "m",
		Description: "Play moves from the current position",
		Usage:       "moves <move> [move ...]",
		Handler:     r.movesHandler,
	})
	r.Register(&Command{
		Name:        "back",
		ShortName:   "b",
		Description: "Take back moves",
		Usage:       "back [count]",
		Handler:     r.backHandler,
	})
	r.Register(&Command{
		Name:        "depth",
		ShortName:   "d",
		Description: "Show or set the search depth",
		Usage:       "depth [1-40]",
		Handler:     r.intSetting("depth", &r.depth, 1, 40),
	})
	r.Register(&Command{
		Name:        "multipv",
		ShortName:   "v",
		Description: "Show or set the number of lines",
		Usage:       "multipv [1-10]",
		Handler:     r.intSetting("multipv", &r.multipv, 1, 10),
	})
	r.groups = append(r.groups, group{"Position", []string{"position", "moves", "back", "depth", "multipv"}})
}

func (r *Registry) positionHandler(_ context.Context, args []string) error {
	if len(args) > 0 {
		pos, err := usi.ParsePosition(strings.Join(args, " "))
		if err != nil {
			return err
		}
		r.pos = pos
	}
	fmt.Fprintf(r.out, "%s\n%s to move, %d move(s) played\n", r.pos.Command(), r.colors.Side(r.pos.GoteToMove()), len(r.pos.Moves))
	return nil
}

func (r *Registry) movesHandler(_ context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: moves <move> [move ...]")
	}
	moves, err := usi.ParseMoves(args)
	if err != nil {
		return err
	}
	r.pos.Moves = append(r.pos.Moves[:len(r.pos.Moves):len(r.pos.Moves)], moves...)
	fmt.Fprintf(r.out, "%s\n", r.pos.Command())
	return nil
}

func (r *Registry) backHandler(_ context.Context, args []string) error {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		n = v
	}
	r.pos = r.pos.Prefix(len(r.pos.Moves) - n)
	fmt.Fprintf(r.out, "%s\n", r.pos.Command())
	return nil
}

func (r *Registry) intSetting(name string, target *int, lo, hi int) func(context.Context, []string) error {
	return func(_ context.Context, args []string) error {
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < lo || v > hi {
				return fmt.Errorf("%s must be between %d and %d", name, lo, hi)
			}
			*target = v
		}
		fmt.Fprintf(r.out, "%s: %d\n", name, *target)
		return nil
	}
}
