// FILE: shogi/internal/server/core/error.go
package core

// Error codes
const (
	ErrEngineUnavailable = "ENGINE_UNAVAILABLE"
	ErrEngineTimeout     = "ENGINE_TIMEOUT"
	ErrEngineCrashed     = "ENGINE_CRASHED"
	ErrInvalidPosition   = "INVALID_POSITION"
	ErrAnalysisNotFound  = "ANALYSIS_NOT_FOUND"
	ErrStorageDisabled   = "STORAGE_DISABLED"
	ErrQueueFull         = "QUEUE_FULL"
	ErrAnalysisCancelled = "ANALYSIS_CANCELLED"
	ErrUserExists        = "USER_EXISTS"
	ErrRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrInvalidContent    = "INVALID_CONTENT_TYPE"
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrInternalError     = "INTERNAL_ERROR"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrNotFound          = "NOT_FOUND"
)

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
