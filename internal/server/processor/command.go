// FILE: shogi/internal/server/processor/command.go
package processor

import (
	"shogi/internal/server/core"
)

// CommandType defines the type of command being executed
type CommandType int

const (
	CmdAnalyze CommandType = iota
	CmdSolveTsume
	CmdReloadEngine
	CmdCancel
	CmdEngineStatus
	CmdSubmitAnalysis
	CmdGetAnalysis
	CmdListAnalyses
)

// Engine selectors
const (
	EngineInteractive = "interactive"
	EngineBatch       = "batch"
)

// Command is a unified structure for all processor operations
type Command struct {
	Type       CommandType
	UserID     string
	AnalysisID string // For analysis-specific commands
	Args       any    // Command-specific arguments
}

// ProcessorResponse wraps the response with metadata
type ProcessorResponse struct {
	Success bool                `json:"success"`
	Pending bool                `json:"pending,omitempty"` // For async operations
	Data    any                 `json:"data,omitempty"`
	Error   *core.ErrorResponse `json:"error,omitempty"`
}

func NewAnalyzeCommand(userID string, req core.AnalyzeRequest) Command {
	return Command{
		Type:   CmdAnalyze,
		UserID: userID,
		Args:   req,
	}
}

func NewSolveTsumeCommand(userID string, req core.TsumeRequest) Command {
	return Command{
		Type:   CmdSolveTsume,
		UserID: userID,
		Args:   req,
	}
}

func NewReloadEngineCommand(req core.ReloadRequest) Command {
	return Command{
		Type: CmdReloadEngine,
		Args: req,
	}
}

func NewCancelCommand(req core.CancelRequest) Command {
	return Command{
		Type: CmdCancel,
		Args: req,
	}
}

func NewEngineStatusCommand() Command {
	return Command{
		Type: CmdEngineStatus,
	}
}

func NewSubmitAnalysisCommand(userID string, req core.BatchRequest) Command {
	return Command{
		Type:   CmdSubmitAnalysis,
		UserID: userID,
		Args:   req,
	}
}

// NewGetAnalysisCommand reads a run; runs owned by another user are not found
func NewGetAnalysisCommand(userID, analysisID string) Command {
	return Command{
		Type:       CmdGetAnalysis,
		UserID:     userID,
		AnalysisID: analysisID,
	}
}

func NewListAnalysesCommand(userID string) Command {
	return Command{
		Type:   CmdListAnalyses,
		UserID: userID,
	}
}
