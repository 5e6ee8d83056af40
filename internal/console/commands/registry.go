// FILE: shogi/internal/console/commands/registry.go
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"shogi/internal/console/display"
	"shogi/internal/server/engine"
	"shogi/internal/server/usi"
)

// ErrExit is returned by Execute when the user asked to leave
var ErrExit = errors.New("exit")

const (
	defaultDepth   = 15
	defaultMultiPV = 3
)

// Command defines a console command with its handler
type Command struct {
	Name        string
	ShortName   string
	Description string
	Usage       string
	Handler     func(context.Context, []string) error
}

// Registry holds the console state: the engine session, the current position
// and the search settings applied to it
type Registry struct {
	session  *engine.Session
	out      io.Writer
	colors   display.Palette
	commands map[string]*Command
	groups   []group

	pos     usi.Position
	depth   int
	multipv int
	Verbose bool
}

type group struct {
	title string
	names []string
}

// NewRegistry creates a console bound to session, writing to out
func NewRegistry(session *engine.Session, out io.Writer, colors display.Palette) *Registry {
	r := &Registry{
		session:  session,
		out:      out,
		colors:   colors,
		commands: make(map[string]*Command),
		depth:    defaultDepth,
		multipv:  defaultMultiPV,
	}

	r.registerPositionCommands()
	r.registerEngineCommands()

	r.Register(&Command{
		Name:        "help",
		ShortName:   "?",
		Description: "Show available commands",
		Usage:       "help [command]",
		Handler:     r.helpHandler,
	})
	r.Register(&Command{
		Name:        "exit",
		ShortName:   "x",
		Description: "Exit the console",
		Usage:       "exit",
		Handler:     func(context.Context, []string) error { return ErrExit },
	})
	r.groups = append(r.groups, group{"Utility", []string{"help", "exit"}})

	return r
}

func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	if cmd.ShortName != "" {
		r.commands[cmd.ShortName] = cmd
	}
}

// Execute runs one input line. Command failures are printed; only ErrExit is returned.
func (r *Registry) Execute(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd, exists := r.commands[parts[0]]
	if !exists {
		fmt.Fprintf(r.out, "%sUnknown command: %s%s\n", r.colors.Red, parts[0], r.colors.Reset)
		fmt.Fprintf(r.out, "Type 'help' for available commands\n")
		return nil
	}

	err := cmd.Handler(ctx, parts[1:])
	if errors.Is(err, ErrExit) {
		return err
	}
	if err != nil {
		fmt.Fprintf(r.out, "%sError: %s%s\n", r.colors.Red, err.Error(), r.colors.Reset)
	}
	return nil
}

// Prompt shows the engine state, the side to move and the move count
func (r *Registry) Prompt() string {
	c := r.colors
	base := fmt.Sprintf("usi %s[%s%s%s]%s %s %d",
		c.Yellow, c.Magenta, r.session.State(), c.Yellow, c.Reset,
		c.Side(r.pos.GoteToMove()), len(r.pos.Moves))
	return c.Prompt(base)
}

// Position returns the position searches run on
func (r *Registry) Position() usi.Position {
	return r.pos
}

func (r *Registry) helpHandler(_ context.Context, args []string) error {
	c := r.colors
	if len(args) > 0 {
		cmd, exists := r.commands[args[0]]
		if !exists {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Fprintf(r.out, "\n%s%s%s - %s\n", c.Cyan, cmd.Name, c.Reset, cmd.Description)
		if cmd.ShortName != "" {
			fmt.Fprintf(r.out, "Short form: %s%s%s\n", c.Cyan, cmd.ShortName, c.Reset)
		}
		fmt.Fprintf(r.out, "Usage: %s\n", cmd.Usage)
		return nil
	}

	fmt.Fprintf(r.out, "\n%sAvailable Commands:%s\n", c.Cyan, c.Reset)
	for _, g := range r.groups {
		fmt.Fprintf(r.out, "\n%s%s:%s\n", c.Yellow, g.title, c.Reset)
		for _, name := range g.names {
			cmd := r.commands[name]
			short := "   "
			if cmd.ShortName != "" {
				short = fmt.Sprintf("[%s%s%s]", c.Cyan, cmd.ShortName, c.Reset)
			}
			fmt.Fprintf(r.out, "  %s %-10s %s\n", short, cmd.Name, cmd.Description)
		}
	}

	fmt.Fprintf(r.out, "\nType 'help <command>' for detailed usage\n")
	return nil
}
