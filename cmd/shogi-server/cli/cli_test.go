package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shogi/internal/server/service"
	"shogi/internal/server/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runOK(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(&out, args), "args: %v", args)
	return out.String()
}

func TestUserLifecycle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "gateway.db")

	assert.Contains(t, runOK(t, "init", "-path", db), "Database initialized")
	assert.Contains(t, runOK(t, "user", "list", "-path", db), "No users found")

	out := runOK(t, "user", "add", "-path", db, "-username", "Habu", "-password", "yoshiharu9")
	assert.Contains(t, out, "Username: habu")

	out = runOK(t, "user", "list", "-path", db)
	assert.Contains(t, out, "habu")
	assert.Contains(t, out, "Total users: 1")

	var buf bytes.Buffer
	err := run(&buf, []string{"user", "add", "-path", db, "-username", "habu", "-password", "yoshiharu9"})
	assert.ErrorIs(t, err, storage.ErrUserExists)

	runOK(t, "user", "set-password", "-path", db, "-username", "habu", "-password", "another-pass2")

	store, err := storage.NewStore(db, false)
	require.NoError(t, err)
	svc := service.New(store, nil)
	_, err = svc.Authenticate("habu", "another-pass2")
	assert.NoError(t, err)
	require.NoError(t, store.Close())

	err = run(&buf, []string{"user", "set-password", "-path", db, "-username", "habu", "-password", "lettersonly"})
	assert.ErrorIs(t, err, service.ErrWeakPassword)

	assert.Contains(t, runOK(t, "user", "delete", "-path", db, "-username", "habu"), "User deleted")
	assert.Contains(t, runOK(t, "user", "list", "-path", db), "No users found")
}

func TestQueryAnalyses(t *testing.T) {
	db := filepath.Join(t.TempDir(), "gateway.db")
	runOK(t, "init", "-path", db)

	store, err := storage.NewStore(db, false)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, store.RecordAnalysis(storage.AnalysisRecord{
		AnalysisID:   "run-1",
		BasePosition: "startpos",
		Moves:        "7g7f 3c3d",
		MoveCount:    2,
		Status:       storage.StatusRunning,
		StartedAt:    now,
	}))
	require.NoError(t, store.RecordPly(storage.PlyRecord{
		AnalysisID: "run-1",
		Ply:        0,
		Bestmove:   "2g2f",
		ScoreType:  "cp",
		ScoreValue: 35,
		Result:     `{}`,
		CreatedAt:  now,
	}))
	require.NoError(t, store.FinishAnalysis("run-1", storage.StatusDone, "", now))
	require.NoError(t, store.Sync(time.Second))
	require.NoError(t, store.Close())

	out := runOK(t, "query", "-path", db, "-plies")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "2g2f")
	assert.Contains(t, out, "Found 1 analysis run(s)")

	assert.Contains(t, runOK(t, "query", "-path", db, "-userId", "nobody"), "No analyses found")
}

func TestToken(t *testing.T) {
	secret := strings.Repeat("s", 32)

	token := strings.TrimSpace(runOK(t, "token", "-secret", secret, "-subject", "frontend"))
	require.NotEmpty(t, token)

	subject, claims, err := service.New(nil, []byte(secret)).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "frontend", subject)
	assert.Equal(t, "service", claims["kind"])

	var out bytes.Buffer
	assert.Error(t, run(&out, []string{"token", "-secret", "short", "-subject", "x"}))
	assert.Error(t, run(&out, []string{"token", "-secret", secret}))
}

func TestUsageErrors(t *testing.T) {
	cases := [][]string{
		nil,
		{"bogus"},
		{"user"},
		{"user", "bogus"},
		{"init"},
		{"user", "add", "-path", "x.db"},
		{"user", "add", "-path", "x.db", "-username", "a", "-password", "p", "-hash", "h"},
		{"user", "delete", "-path", "x.db"},
	}
	for _, args := range cases {
		var out bytes.Buffer
		assert.Error(t, run(&out, args), "args: %v", args)
	}
}
