// Package main implements an interactive console that drives a USI engine
// through the same session layer the gateway uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"shogi/internal/console/commands"
	"shogi/internal/console/display"
	"shogi/internal/server/config"
	"shogi/internal/server/engine"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func main() {
	var (
		configPath = flag.String("config", "", "Optional YAML configuration file")
		envPath    = flag.String("env", ".env", "Optional dotenv file loaded before configuration")
		engineCmd  = flag.String("engine", "", "Engine command (overrides USI_CMD)")
		verbose    = flag.Bool("v", false, "Print raw results and engine debug logs")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envPath, err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *engineCmd != "" {
		cfg.Engine.Command = *engineCmd
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).With().Timestamp().Logger()

	session := engine.NewSession(cfg.Engine.ProcessOptions("console", logger), cfg.Engine.SessionConfig())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = session.Close(ctx)
	}()

	colors := display.NewPalette(term.IsTerminal(int(os.Stdout.Fd())))
	registry := commands.NewRegistry(session, os.Stdout, colors)
	registry.Verbose = *verbose

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          registry.Prompt(),
		HistoryFile:     ".usi_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", colors.Red, err.Error(), colors.Reset)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("%sUSI Console%s\n", colors.Cyan, colors.Reset)
	fmt.Printf("%sEngine: %s%s\n", colors.Cyan, cfg.Engine.Command, colors.Reset)
	fmt.Printf("Type 'help' for commands\n\n")

	for {
		rl.SetPrompt(registry.Prompt())

		line, err := rl.Readline()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" {
			break
		}

		// Ctrl-C interrupts the running command, not the console
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err = registry.Execute(ctx, line)
		stop()
		if errors.Is(err, commands.ErrExit) {
			break
		}
	}
}
