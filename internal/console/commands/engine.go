// FILE: shogi/internal/console/commands/engine.go
package commands

import (
	"context"
	"fmt"
	"time"

	"shogi/internal/server/engine"
	"shogi/internal/server/usi"
)

func (r *Registry) registerEngineCommands() {
	r.Register(&Command{
		Name:        "analyze",
		ShortName:   "a",
		Description: "Search to depth and print every line",
		Usage:       "analyze",
		Handler:     r.analyzeHandler,
	})
	r.Register(&Command{
		Name:        "once",
		ShortName:   "o",
		Description: "Node-limited search with the batch bounds",
		Usage:       "once",
		Handler:     r.onceHandler,
	})
	r.Register(&Command{
		Name:        "stream",
		ShortName:   "s",
		Description: "Stream search progress (Ctrl-C stops)",
		Usage:       "stream",
		Handler:     r.streamHandler,
	})
	r.Register(&Command{
		Name:        "tsume",
		ShortName:   "t",
		Description: "Let the engine defend the current position and grade the last move",
		Usage:       "tsume",
		Handler:     r.tsumeHandler,
	})
	r.Register(&Command{
		Name:        "status",
		ShortName:   ".",
		Description: "Show engine state",
		Usage:       "status",
		Handler:     r.statusHandler,
	})
	r.Register(&Command{
		Name:        "reload",
		ShortName:   "r",
		Description: "Kill the engine; the next search starts a fresh one",
		Usage:       "reload",
		Handler:     r.reloadHandler,
	})
	r.Register(&Command{
		Name:        "stop",
		Description: "Interrupt any outstanding search",
		Usage:       "stop",
		Handler:     r.stopHandler,
	})
	r.groups = append(r.groups, group{"Engine", []string{"analyze", "once", "stream", "tsume", "status", "reload", "stop"}})
}

func (r *Registry) printResult(res usi.AnalysisResult, took time.Duration) {
	if r.Verbose {
		r.colors.PrettyPrintJSON(r.out, res)
	}
	for _, info := range res.Ranked {
		r.colors.Line(r.out, info)
	}
	best := res.Bestmove
	if best == "" {
		best = "(none)"
	}
	fmt.Fprintf(r.out, "%sbestmove%s %s  (%s, side to move)\n", r.colors.Cyan, r.colors.Reset, best, took.Round(time.Millisecond))
}

func (r *Registry) analyzeHandler(ctx context.Context, _ []string) error {
	start := time.Now()
	res, err := r.session.Analyze(ctx, r.pos, r.depth, r.multipv)
	if err != nil {
		return fmt.Errorf("%s", engine.ErrorText(err))
	}
	r.printResult(res, time.Since(start))
	return nil
}

func (r *Registry) onceHandler(ctx context.Context, _ []string) error {
	start := time.Now()
	res, err := r.session.AnalyzeOnce(ctx, r.pos)
	if err != nil {
		return fmt.Errorf("%s", engine.ErrorText(err))
	}
	r.printResult(res, time.Since(start))
	return nil
}

func (r *Registry) streamHandler(ctx context.Context, _ []string) error {
	c := r.colors
	var failure string
	err := r.session.StreamAnalyze(ctx, r.pos, r.depth, r.multipv, func(ev engine.Event) error {
		switch ev.Kind {
		case engine.EventInfo:
			r.colors.Line(r.out, ev.Info)
		case engine.EventKeepalive:
			if r.Verbose {
				fmt.Fprintf(r.out, "%s: keepalive%s\n", c.Blue, c.Reset)
			}
		case engine.EventBestmove:
			fmt.Fprintf(r.out, "%sbestmove%s %s  (sente's view)\n", c.Cyan, c.Reset, ev.Bestmove)
		case engine.EventError:
			failure = ev.Err
		}
		return nil
	})
	if failure != "" {
		return fmt.Errorf("%s", failure)
	}
	if err != nil {
		return fmt.Errorf("%s", engine.ErrorText(err))
	}
	if ctx.Err() != nil {
		fmt.Fprintf(r.out, "%sstopped%s\n", c.Yellow, c.Reset)
	}
	return nil
}

func (r *Registry) tsumeHandler(ctx context.Context, _ []string) error {
	res, err := r.session.SolveTsume(ctx, r.pos)
	color := r.colors.Green
	switch res.Status {
	case engine.TsumeIncorrect, engine.TsumeLose, engine.TsumeError:
		color = r.colors.Red
	}
	fmt.Fprintf(r.out, "%s%s%s: %s", color, res.Status, r.colors.Reset, res.Message)
	if res.Bestmove != "" {
		fmt.Fprintf(r.out, " (reply %s)", res.Bestmove)
	}
	fmt.Fprintln(r.out)
	if err != nil && r.Verbose {
		fmt.Fprintf(r.out, "%s%v%s\n", r.colors.Red, err, r.colors.Reset)
	}
	return nil
}

func (r *Registry) statusHandler(_ context.Context, _ []string) error {
	st := r.session.Status()
	fmt.Fprintf(r.out, "%s: %s%s%s\n", st.Name, r.colors.Magenta, st.State, r.colors.Reset)
	fmt.Fprintf(r.out, "depth %d, multipv %d\n", r.depth, r.multipv)
	return nil
}

func (r *Registry) reloadHandler(ctx context.Context, _ []string) error {
	if err := r.session.Reload(ctx); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "engine reloaded\n")
	return nil
}

func (r *Registry) stopHandler(ctx context.Context, _ []string) error {
	return r.session.StopAndFlush(ctx)
}
