// FILE: shogi/internal/server/core/api.go
package core

import (
	"encoding/json"
	"time"
)

// AnalyzeRequest asks for a single depth-limited search
type AnalyzeRequest struct {
	Position string `json:"position" validate:"required,max=4096"`
	Depth    int    `json:"depth" validate:"omitempty,min=1,max=40"`
	MultiPV  int    `json:"multipv" validate:"omitempty,min=1,max=10"`
}

// StreamRequest is the query of the streaming analysis endpoint
type StreamRequest struct {
	Position string `query:"position" validate:"required,max=4096"`
	Depth    int    `query:"depth" validate:"omitempty,min=1,max=40"`
	MultiPV  int    `query:"multipv" validate:"omitempty,min=1,max=10"`
}

// BatchRequest asks for a ply-by-ply analysis of a whole game.
// Moves may be given directly or as the moves section of a USI position string.
type BatchRequest struct {
	Position     string   `json:"position" validate:"omitempty,max=4096"`
	USI          string   `json:"usi" validate:"omitempty,max=8192"`
	Moves        []string `json:"moves" validate:"omitempty,max=1024,dive,min=4,max=5"`
	TimeBudgetMs int      `json:"time_budget_ms" validate:"omitempty,min=1,max=3600000"`
	MaxPly       int      `json:"max_ply" validate:"omitempty,min=1,max=1024"`
}

// TsumeRequest submits a checkmate-puzzle position for validation
type TsumeRequest struct {
	SFEN string `json:"sfen" validate:"required,max=512"`
}

// ReloadRequest selects which engine to restart
type ReloadRequest struct {
	Engine string `json:"engine" validate:"omitempty,oneof=interactive batch"`
}

// CancelRequest selects which engine's running stream or batch to stop
type CancelRequest struct {
	Engine string `json:"engine" validate:"omitempty,oneof=interactive batch"`
}

// EngineStatus reports one engine session
type EngineStatus struct {
	Name  string       `json:"name"`
	State ProcessState `json:"state"`
}

// AnalysisSummary describes a persisted batch run
type AnalysisSummary struct {
	AnalysisID   string     `json:"analysisId"`
	BasePosition string     `json:"basePosition"`
	MoveCount    int        `json:"moveCount"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// AnalysisDetail is a persisted batch run with the plies recorded so far
type AnalysisDetail struct {
	AnalysisSummary
	Plies []json.RawMessage `json:"plies"`
}

// SubmitResponse acknowledges a queued batch run
type SubmitResponse struct {
	AnalysisID string `json:"analysisId"`
	Status     string `json:"status"`
}
