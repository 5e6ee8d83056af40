// FILE: shogi/internal/server/storage/analysis.go
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("record not found")

// RecordAnalysis asynchronously records the start of a batch run
func (s *Store) RecordAnalysis(record AnalysisRecord) error {
	return s.enqueue("analysis", func(tx *sql.Tx) error {
		query := `INSERT INTO analyses (
			analysis_id, user_id, base_position, moves, move_count, status, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

		_, err := tx.Exec(query,
			record.AnalysisID, record.UserID, record.BasePosition,
			record.Moves, record.MoveCount, record.Status, record.StartedAt,
		)
		return err
	})
}

// RecordPly asynchronously records one analysed position
func (s *Store) RecordPly(record PlyRecord) error {
	return s.enqueue("ply", func(tx *sql.Tx) error {
		query := `INSERT OR REPLACE INTO plies (
			analysis_id, ply, bestmove, score_type, score_value, result_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

		_, err := tx.Exec(query,
			record.AnalysisID, record.Ply, record.Bestmove,
			record.ScoreType, record.ScoreValue, record.Result, record.CreatedAt,
		)
		return err
	})
}

// FinishAnalysis asynchronously closes a batch run
func (s *Store) FinishAnalysis(analysisID, status, errMsg string, finishedAt time.Time) error {
	return s.enqueue("analysis finish", func(tx *sql.Tx) error {
		query := `UPDATE analyses SET status = ?, error = ?, finished_at = ? WHERE analysis_id = ?`
		_, err := tx.Exec(query, status, errMsg, finishedAt, analysisID)
		return err
	})
}

// SetAnalysisStatus asynchronously moves a run to another state without finishing it
func (s *Store) SetAnalysisStatus(analysisID, status string) error {
	return s.enqueue("analysis status", func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE analyses SET status = ? WHERE analysis_id = ?`, status, analysisID)
		return err
	})
}

// DeleteAnalysis asynchronously removes a run and its plies
func (s *Store) DeleteAnalysis(analysisID string) error {
	return s.enqueue("analysis delete", func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM analyses WHERE analysis_id = ?`, analysisID)
		return err
	})
}

// GetAnalysis retrieves one batch run
func (s *Store) GetAnalysis(analysisID string) (*AnalysisRecord, error) {
	var a AnalysisRecord
	query := `SELECT analysis_id, user_id, base_position, moves, move_count, status, error, started_at, finished_at
		FROM analyses WHERE analysis_id = ?`

	err := s.db.QueryRow(query, analysisID).Scan(
		&a.AnalysisID, &a.UserID, &a.BasePosition, &a.Moves, &a.MoveCount,
		&a.Status, &a.Error, &a.StartedAt, &a.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &a, nil
}

// GetPlies retrieves the recorded plies of a run in order
func (s *Store) GetPlies(analysisID string) ([]PlyRecord, error) {
	query := `SELECT analysis_id, ply, bestmove, score_type, score_value, result_json, created_at
		FROM plies WHERE analysis_id = ? ORDER BY ply ASC`

	rows, err := s.db.Query(query, analysisID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var plies []PlyRecord
	for rows.Next() {
		var p PlyRecord
		if err := rows.Scan(
			&p.AnalysisID, &p.Ply, &p.Bestmove, &p.ScoreType, &p.ScoreValue, &p.Result, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		plies = append(plies, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return plies, nil
}

// QueryAnalyses retrieves runs with optional filtering, newest first
func (s *Store) QueryAnalyses(analysisID, userID string) ([]AnalysisRecord, error) {
	query := `SELECT analysis_id, user_id, base_position, moves, move_count, status, error, started_at, finished_at
		FROM analyses WHERE 1=1`

	var args []any

	if analysisID != "" && analysisID != "*" {
		query += " AND analysis_id = ?"
		args = append(args, analysisID)
	}

	if userID != "" && userID != "*" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	query += " ORDER BY started_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var analyses []AnalysisRecord
	for rows.Next() {
		var a AnalysisRecord
		if err := rows.Scan(
			&a.AnalysisID, &a.UserID, &a.BasePosition, &a.Moves, &a.MoveCount,
			&a.Status, &a.Error, &a.StartedAt, &a.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		analyses = append(analyses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return analyses, nil
}

// ListAnalyses returns the newest runs owned by exactly userID; an empty
// userID selects anonymous runs
func (s *Store) ListAnalyses(userID string, limit int) ([]AnalysisRecord, error) {
	query := `SELECT analysis_id, user_id, base_position, moves, move_count, status, error, started_at, finished_at
		FROM analyses WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var analyses []AnalysisRecord
	for rows.Next() {
		var a AnalysisRecord
		if err := rows.Scan(
			&a.AnalysisID, &a.UserID, &a.BasePosition, &a.Moves, &a.MoveCount,
			&a.Status, &a.Error, &a.StartedAt, &a.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}
