// FILE: shogi/cmd/shogi-server/cli/cli.go
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"shogi/internal/server/service"
	"shogi/internal/server/storage"

	"github.com/google/uuid"
	"github.com/lixenwraith/auth"
	"golang.org/x/term"
)

// Run is the entry point for the CLI mini-app
func Run(args []string) error {
	return run(os.Stdout, args)
}

func run(out io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("subcommand required: init, delete, query, user, token")
	}

	switch args[0] {
	case "init":
		return runInit(out, args[1:])
	case "delete":
		return runDelete(out, args[1:])
	case "query":
		return runQuery(out, args[1:])
	case "user":
		if len(args) < 2 {
			return fmt.Errorf("user subcommand required: add, delete, set-password, set-hash, list")
		}
		return runUser(out, args[1], args[2:])
	case "token":
		return runToken(out, args[1:])
	default:
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

// openStore parses the shared -path flag result and opens the database
func openStore(path string) (*storage.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path required")
	}
	store, err := storage.NewStore(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func runInit(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	fmt.Fprintf(out, "Database initialized at: %s\n", *path)
	return nil
}

func runDelete(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}

	if err := store.DeleteDB(); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}

	fmt.Fprintf(out, "Database deleted: %s\n", *path)
	return nil
}

func runQuery(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")
	analysisID := fs.String("analysisId", "", "Analysis ID to filter (optional, * for all)")
	userID := fs.String("userId", "", "User ID to filter (optional, * for all)")
	plies := fs.Bool("plies", false, "Print the recorded plies of each analysis")

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}
	defer store.Close()

	analyses, err := store.QueryAnalyses(*analysisID, *userID)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if len(analyses) == 0 {
		fmt.Fprintln(out, "No analyses found")
		return nil
	}

	// Print results in tabular format
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Analysis ID\tUser\tBase\tMoves\tStatus\tStarted")
	fmt.Fprintln(w, strings.Repeat("-", 90))

	for _, a := range analyses {
		user := "(anonymous)"
		if a.UserID != "" {
			user = short(a.UserID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			short(a.AnalysisID),
			user,
			short(a.BasePosition),
			a.MoveCount,
			a.Status,
			a.StartedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	if *plies {
		for _, a := range analyses {
			records, err := store.GetPlies(a.AnalysisID)
			if err != nil {
				return fmt.Errorf("query plies failed: %w", err)
			}
			fmt.Fprintf(out, "\n%s\n", a.AnalysisID)
			for _, p := range records {
				fmt.Fprintf(out, "  %3d  %-8s %s %d\n", p.Ply, p.Bestmove, p.ScoreType, p.ScoreValue)
			}
		}
	}

	fmt.Fprintf(out, "\nFound %d analysis run(s)\n", len(analyses))
	return nil
}

func short(s string) string {
	if len(s) <= 11 {
		return s
	}
	return s[:8] + "..."
}

func runUser(out io.Writer, subcommand string, args []string) error {
	switch subcommand {
	case "add":
		return runUserAdd(out, args)
	case "delete":
		return runUserDelete(out, args)
	case "set-password":
		return runUserSetPassword(out, args)
	case "set-hash":
		return runUserSetHash(out, args)
	case "list":
		return runUserList(out, args)
	default:
		return fmt.Errorf("unknown user subcommand: %s", subcommand)
	}
}

// readSecret prompts for a value without echo
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(b), nil
}

func runUserAdd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("user add", flag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")
	username := fs.String("username", "", "Username (required)")
	password := fs.String("password", "", "Password (optional, will prompt if not provided)")
	hash := fs.String("hash", "", "Pre-computed password hash (optional)")
	interactive := fs.Bool("interactive", false, "Interactive password prompt")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		return fmt.Errorf("username required")
	}

	// Validate password/hash options
	if *password != "" && *hash != "" {
		return fmt.Errorf("cannot specify both -password and -hash")
	}

	var passwordHash string
	switch {
	case *interactive:
		if *password != "" || *hash != "" {
			return fmt.Errorf("cannot use -interactive with -password or -hash")
		}
		pw, err := readSecret("Enter password: ")
		if err != nil {
			return err
		}
		if passwordHash, err = hashPassword(pw); err != nil {
			return err
		}
	case *hash != "":
		if err := auth.ValidatePHCHashFormat(*hash); err != nil {
			return fmt.Errorf("invalid hash format: %w", err)
		}
		passwordHash = *hash
	case *password != "":
		var err error
		if passwordHash, err = hashPassword(*password); err != nil {
			return err
		}
	default:
		return fmt.Errorf("password required: use -password, -hash, or -interactive")
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}
	defer store.Close()

	record := storage.UserRecord{
		UserID:       uuid.New().String(),
		Username:     strings.ToLower(*username),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := store.CreateUser(record); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(out, "User created successfully:\n")
	fmt.Fprintf(out, "  ID: %s\n", record.UserID)
	fmt.Fprintf(out, "  Username: %s\n", record.Username)
	return nil
}

func hashPassword(pw string) (string, error) {
	if err := service.CheckPassword(pw); err != nil {
		return "", err
	}
	// Argon2
	h, err := auth.HashPassword(pw)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return h, nil
}

func runUserDelete(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("user delete", flag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")
	username := fs.String("username", "", "Username to delete")
	userID := fs.String("id", "", "User ID to delete")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" && *userID == "" {
		return fmt.Errorf("either -username or -id required")
	}
	if *username != "" && *userID != "" {
		return fmt.Errorf("specify either -username or -id, not both")
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}
	defer store.Close()

	targetID := *userID
	if targetID == "" {
		user, err := store.UserByName(*username)
		if err != nil {
			return fmt.Errorf("user not found: %s", *username)
		}
		targetID = user.UserID
	}

	if err := store.DeleteUser(targetID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("user not found: %s", targetID)
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	fmt.Fprintf(out, "User deleted with their analyses: %s\n", targetID)
	return nil
}

func runUserSetPassword(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("user set-password", flag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")
	username := fs.String("username", "", "Username (required)")
	password := fs.String("password", "", "New password")
	interactive := fs.Bool("interactive", false, "Interactive password prompt")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		return fmt.Errorf("username required")
	}

	var newPassword string
	switch {
	case *interactive:
		if *password != "" {
			return fmt.Errorf("cannot use -interactive with -password")
		}
		pw, err := readSecret("Enter new password: ")
		if err != nil {
			return err
		}
		newPassword = pw
	case *password != "":
		newPassword = *password
	default:
		return fmt.Errorf("password required: use -password or -interactive")
	}

	passwordHash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := store.UserByName(*username)
	if err != nil {
		return fmt.Errorf("user not found: %s", *username)
	}

	if err := store.SetPasswordHash(user.UserID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Fprintf(out, "Password updated for user: %s\n", *username)
	return nil
}

func runUserSetHash(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("user set-hash", flag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")
	username := fs.String("username", "", "Username (required)")
	hash := fs.String("hash", "", "Password hash (required)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		return fmt.Errorf("username required")
	}
	if *hash == "" {
		return fmt.Errorf("password hash required")
	}

	if err := auth.ValidatePHCHashFormat(*hash); err != nil {
		return fmt.Errorf("invalid hash format: %w", err)
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := store.UserByName(*username)
	if err != nil {
		return fmt.Errorf("user not found: %s", *username)
	}

	if err := store.SetPasswordHash(user.UserID, *hash); err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	fmt.Fprintf(out, "Password hash updated for user: %s\n", *username)
	return nil
}

func runUserList(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("user list", flag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.ListUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Fprintln(out, "No users found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "User ID\tUsername\tAnalyses\tCreated\tLast Login")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, u := range users {
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			short(u.UserID),
			u.Username,
			u.Analyses,
			u.CreatedAt.Format("2006-01-02 15:04"),
			lastLogin,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal users: %d\n", len(users))
	return nil
}

// runToken issues a bearer token for a service account, e.g. a frontend backend
func runToken(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", "", "JWT secret (defaults to AUTH_JWT_SECRET, prompts if both are empty)")
	subject := fs.String("subject", "", "Token subject (required)")
	ttl := fs.Duration("ttl", service.TokenTTL, "Token lifetime")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *subject == "" {
		return fmt.Errorf("subject required")
	}

	key := *secret
	if key == "" {
		key = os.Getenv("AUTH_JWT_SECRET")
	}
	if key == "" {
		s, err := readSecret("Enter JWT secret: ")
		if err != nil {
			return err
		}
		key = s
	}
	if len(key) < 32 {
		return fmt.Errorf("secret must be at least 32 characters")
	}

	svc := service.New(nil, []byte(key))
	token, err := svc.GenerateToken(*subject, map[string]any{"kind": "service"}, *ttl)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Fprintln(out, token)
	return nil
}
