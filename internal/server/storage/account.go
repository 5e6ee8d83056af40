// FILE: shogi/internal/server/storage/account.go
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrUserExists is returned when a username is already taken
var ErrUserExists = errors.New("username already exists")

const userColumns = `user_id, username, password_hash, created_at, last_login_at`

// UserSummary is a user row with the number of analyses it owns
type UserSummary struct {
	UserRecord
	Analyses int `db:"analyses"`
}

// CreateUser inserts a user; the username index rejects case-insensitive duplicates
func (s *Store) CreateUser(record UserRecord) error {
	_, err := s.db.Exec(`INSERT INTO users (user_id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		record.UserID, record.Username, record.PasswordHash, record.CreatedAt)

	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrUserExists
	}
	return err
}

// DeleteUser removes a user together with the analyses it owns.
// Queued writes are flushed first when the writer is healthy.
func (s *Store) DeleteUser(userID string) error {
	_ = s.Sync(5 * time.Second)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM analyses WHERE user_id = ?`, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetPasswordHash replaces the stored hash of a user
func (s *Store) SetPasswordHash(userID, passwordHash string) error {
	result, err := s.db.Exec(`UPDATE users SET password_hash = ? WHERE user_id = ?`, passwordHash, userID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLogin records a successful login
func (s *Store) TouchLogin(userID string, at time.Time) error {
	if _, err := s.db.Exec(`UPDATE users SET last_login_at = ? WHERE user_id = ?`, at, userID); err != nil {
		return fmt.Errorf("failed to update last login for user %s: %w", userID, err)
	}
	return nil
}

// ListUsers returns every user with its analysis count, newest first
func (s *Store) ListUsers() ([]UserSummary, error) {
	rows, err := s.db.Query(`SELECT u.user_id, u.username, u.password_hash, u.created_at, u.last_login_at,
			COUNT(a.analysis_id)
		FROM users u LEFT JOIN analyses a ON a.user_id = u.user_id
		GROUP BY u.user_id ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []UserSummary
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(
			&u.UserID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.LastLoginAt, &u.Analyses,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserByName looks a user up case-insensitively
func (s *Store) UserByName(username string) (*UserRecord, error) {
	return s.user(`SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE`, username)
}

// UserByID looks a user up by id
func (s *Store) UserByID(userID string) (*UserRecord, error) {
	return s.user(`SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
}

func (s *Store) user(query, arg string) (*UserRecord, error) {
	var u UserRecord
	err := s.db.QueryRow(query, arg).Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AnalysisTally counts the analyses owned by a user per status
func (s *Store) AnalysisTally(userID string) (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM analyses WHERE user_id = ? GROUP BY status`, userID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	tally := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		tally[status] = n
	}
	return tally, rows.Err()
}
