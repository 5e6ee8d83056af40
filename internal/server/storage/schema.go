// FILE: shogi/internal/server/storage/schema.go
package storage

import "time"

// Analysis run states
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusTruncated = "truncated" // time budget ran out
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// UserRecord represents a user account in the database
type UserRecord struct {
	UserID       string     `db:"user_id"`
	Username     string     `db:"username"`
	PasswordHash string     `db:"password_hash"`
	CreatedAt    time.Time  `db:"created_at"`
	LastLoginAt  *time.Time `db:"last_login_at"`
}

// AnalysisRecord represents one batch run in the analyses table
type AnalysisRecord struct {
	AnalysisID   string     `db:"analysis_id"`
	UserID       string     `db:"user_id"`
	BasePosition string     `db:"base_position"` // "startpos" or "sfen ..."
	Moves        string     `db:"moves"`         // space separated
	MoveCount    int        `db:"move_count"`
	Status       string     `db:"status"`
	Error        string     `db:"error"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

// PlyRecord represents one analysed position in the plies table
type PlyRecord struct {
	AnalysisID string    `db:"analysis_id"`
	Ply        int       `db:"ply"`
	Bestmove   string    `db:"bestmove"`
	ScoreType  string    `db:"score_type"` // "cp", "mate" or empty when no line was reported
	ScoreValue int       `db:"score_value"`
	Result     string    `db:"result_json"`
	CreatedAt  time.Time `db:"created_at"`
}

// Schema defines the SQLite database structure
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_login_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

CREATE TABLE IF NOT EXISTS analyses (
	analysis_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	base_position TEXT NOT NULL,
	moves TEXT NOT NULL DEFAULT '',
	move_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK(status IN ('queued', 'running', 'done', 'truncated', 'cancelled', 'failed')),
	error TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS plies (
	analysis_id TEXT NOT NULL,
	ply INTEGER NOT NULL,
	bestmove TEXT NOT NULL,
	score_type TEXT NOT NULL DEFAULT '' CHECK(score_type IN ('', 'cp', 'mate')),
	score_value INTEGER NOT NULL DEFAULT 0,
	result_json TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (analysis_id) REFERENCES analyses(analysis_id) ON DELETE CASCADE,
	PRIMARY KEY (analysis_id, ply)
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_id ON analyses(user_id);
CREATE INDEX IF NOT EXISTS idx_analyses_started_at ON analyses(started_at);
`
