// FILE: shogi/internal/server/processor/processor.go
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"shogi/internal/server/core"
	"shogi/internal/server/engine"
	"shogi/internal/server/storage"
	"shogi/internal/server/usi"

	"github.com/rs/zerolog"
)

const (
	DefaultDepth   = 15
	DefaultMultiPV = 3

	shutdownGrace = 5 * time.Second
	listLimit     = 50
)

// Config wires the processor to its engines and optional storage
type Config struct {
	Interactive    *engine.Session // /analyze, streams and tsume
	Batch          *engine.Session // whole-game analysis
	Store          *storage.Store  // nil disables persistence
	Logger         zerolog.Logger
	DefaultDepth   int
	DefaultMultiPV int
	QueueWorkers   int
	QueueSize      int
}

// Processor handles command execution and coordinates between the HTTP layer, engines and storage
type Processor struct {
	interactive *engine.Session
	batch       *engine.Session
	store       *storage.Store
	queue       *AnalysisQueue
	log         zerolog.Logger
	depth       int
	multipv     int
}

// New creates a processor over already constructed engine sessions
func New(cfg Config) *Processor {
	if cfg.DefaultDepth <= 0 {
		cfg.DefaultDepth = DefaultDepth
	}
	if cfg.DefaultMultiPV <= 0 {
		cfg.DefaultMultiPV = DefaultMultiPV
	}

	p := &Processor{
		interactive: cfg.Interactive,
		batch:       cfg.Batch,
		store:       cfg.Store,
		log:         cfg.Logger.With().Str("component", "processor").Logger(),
		depth:       cfg.DefaultDepth,
		multipv:     cfg.DefaultMultiPV,
	}
	p.queue = NewAnalysisQueue(cfg.QueueWorkers, cfg.QueueSize, p.runQueued)
	return p
}

func (p *Processor) Execute(ctx context.Context, cmd Command) ProcessorResponse {
	switch cmd.Type {
	case CmdAnalyze:
		return p.handleAnalyze(ctx, cmd)
	case CmdSolveTsume:
		return p.handleSolveTsume(ctx, cmd)
	case CmdReloadEngine:
		return p.handleReloadEngine(ctx, cmd)
	case CmdCancel:
		return p.handleCancel(cmd)
	case CmdEngineStatus:
		return ProcessorResponse{Success: true, Data: p.Engines()}
	case CmdSubmitAnalysis:
		return p.handleSubmitAnalysis(cmd)
	case CmdGetAnalysis:
		return p.handleGetAnalysis(cmd)
	case CmdListAnalyses:
		return p.handleListAnalyses(cmd)
	default:
		return p.errorResponse("unknown command", core.ErrInvalidRequest)
	}
}

// handleAnalyze runs one depth-limited search; scores stay from the side to move
func (p *Processor) handleAnalyze(ctx context.Context, cmd Command) ProcessorResponse {
	args, ok := cmd.Args.(core.AnalyzeRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}

	pos, err := usi.ParsePosition(args.Position)
	if err != nil {
		return p.errorResponse(err.Error(), core.ErrInvalidPosition)
	}

	res, err := p.interactive.Analyze(ctx, pos, p.orDepth(args.Depth), p.orMultiPV(args.MultiPV))
	if err != nil {
		return p.engineError(err)
	}
	return ProcessorResponse{Success: true, Data: res}
}

func (p *Processor) handleSolveTsume(ctx context.Context, cmd Command) ProcessorResponse {
	args, ok := cmd.Args.(core.TsumeRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}

	pos, err := usi.ParsePosition(TsumePosition(args.SFEN))
	if err != nil {
		return p.errorResponse(err.Error(), core.ErrInvalidPosition)
	}

	// Engine failures are part of the verdict, not a transport error
	res, err := p.interactive.SolveTsume(ctx, pos)
	if err != nil {
		p.log.Warn().Err(err).Msg("tsume search failed")
	}
	return ProcessorResponse{Success: true, Data: res}
}

// TsumePosition turns a bare sfen into a position string
func TsumePosition(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"position ", "sfen ", "startpos"} {
		if strings.HasPrefix(s, prefix) {
			return s
		}
	}
	return "sfen " + s
}

func (p *Processor) handleReloadEngine(ctx context.Context, cmd Command) ProcessorResponse {
	args, _ := cmd.Args.(core.ReloadRequest)

	var sessions []*engine.Session
	switch args.Engine {
	case EngineInteractive:
		sessions = []*engine.Session{p.interactive}
	case EngineBatch:
		sessions = []*engine.Session{p.batch}
	default:
		sessions = []*engine.Session{p.interactive, p.batch}
	}

	for _, s := range sessions {
		if err := s.Reload(ctx); err != nil {
			return p.engineError(err)
		}
		p.log.Info().Str("engine", s.Name()).Msg("engine reloaded")
	}
	return ProcessorResponse{Success: true, Data: p.Engines()}
}

func (p *Processor) handleCancel(cmd Command) ProcessorResponse {
	args, _ := cmd.Args.(core.CancelRequest)
	p.Cancel(args.Engine)
	return ProcessorResponse{Success: true}
}

// Cancel flags the running stream or batch of an engine; empty selects both
func (p *Processor) Cancel(which string) {
	switch which {
	case EngineInteractive:
		p.interactive.Cancel()
	case EngineBatch:
		p.batch.Cancel()
	default:
		p.interactive.Cancel()
		p.batch.Cancel()
	}
}

// Engines reports the state of both engine sessions
func (p *Processor) Engines() []core.EngineStatus {
	return []core.EngineStatus{p.interactive.Status(), p.batch.Status()}
}

// Stream runs a live analysis on the interactive engine, see engine.Session.StreamAnalyze
func (p *Processor) Stream(ctx context.Context, pos usi.Position, depth, multipv int, emit func(engine.Event) error) error {
	return p.interactive.StreamAnalyze(ctx, pos, p.orDepth(depth), p.orMultiPV(multipv), emit)
}

// RunBatch analyses a game on the batch engine while the caller waits.
// onStart runs once the engine is held and the run is recorded; emit receives every ply.
func (p *Processor) RunBatch(ctx context.Context, job AnalysisJob, onStart func(analysisID string) error, emit func(Ply) error) (BatchOutcome, error) {
	lease, err := p.batch.Acquire(ctx)
	if err != nil {
		return BatchOutcome{}, err
	}
	defer lease.Release()

	p.recordStart(job, storage.StatusRunning)
	if onStart != nil {
		if err := onStart(job.AnalysisID); err != nil {
			p.recordFinish(job.AnalysisID, storage.StatusCancelled, "")
			return BatchOutcome{Cancelled: true}, nil
		}
	}

	return p.runLeased(ctx, lease, job, emit)
}

// runQueued is the queue worker body for submitted analyses
func (p *Processor) runQueued(ctx context.Context, job AnalysisJob) {
	lease, err := p.batch.Acquire(ctx)
	if err != nil {
		status := storage.StatusFailed
		if ctx.Err() != nil {
			status = storage.StatusCancelled
		}
		p.recordFinish(job.AnalysisID, status, err.Error())
		return
	}
	defer lease.Release()

	p.setStatus(job.AnalysisID, storage.StatusRunning)
	if _, err := p.runLeased(ctx, lease, job, nil); err != nil {
		p.log.Warn().Err(err).Str("analysis_id", job.AnalysisID).Msg("queued analysis failed")
	}
}

func (p *Processor) runLeased(ctx context.Context, lease *engine.Lease, job AnalysisJob, emit func(Ply) error) (BatchOutcome, error) {
	log := p.log.With().Str("analysis_id", job.AnalysisID).Logger()
	b := Batch{Game: job.Game, Budget: job.Budget, MaxPly: job.MaxPly, Log: log}

	out, err := b.Run(ctx, lease, func(ply Ply) error {
		p.recordPly(job.AnalysisID, ply)
		if emit == nil {
			return nil
		}
		return emit(ply)
	})

	status := storage.StatusDone
	errMsg := ""
	switch {
	case err != nil:
		status, errMsg = storage.StatusFailed, err.Error()
	case out.Cancelled:
		status = storage.StatusCancelled
	case out.Truncated:
		status = storage.StatusTruncated
	}
	p.recordFinish(job.AnalysisID, status, errMsg)

	log.Info().
		Str("status", status).
		Int("analyzed", out.Analyzed).
		Int("skipped", out.Skipped).
		Msg("batch finished")
	return out, err
}

func (p *Processor) handleSubmitAnalysis(cmd Command) ProcessorResponse {
	if p.store == nil {
		return p.errorResponse("analysis persistence is disabled", core.ErrStorageDisabled)
	}

	args, ok := cmd.Args.(core.BatchRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}

	job, err := NewAnalysisJob(cmd.UserID, args)
	if err != nil {
		return p.errorResponse(err.Error(), core.ErrInvalidPosition)
	}

	p.recordStart(job, storage.StatusQueued)
	if err := p.queue.Submit(job); err != nil {
		p.recordFinish(job.AnalysisID, storage.StatusFailed, err.Error())
		return p.errorResponse(err.Error(), core.ErrQueueFull)
	}

	return ProcessorResponse{
		Success: true,
		Pending: true,
		Data: core.SubmitResponse{
			AnalysisID: job.AnalysisID,
			Status:     storage.StatusQueued,
		},
	}
}

func (p *Processor) handleGetAnalysis(cmd Command) ProcessorResponse {
	if p.store == nil {
		return p.errorResponse("analysis persistence is disabled", core.ErrStorageDisabled)
	}

	rec, err := p.store.GetAnalysis(cmd.AnalysisID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && rec.UserID != "" && rec.UserID != cmd.UserID) {
		return p.errorResponse("analysis not found", core.ErrAnalysisNotFound)
	}
	if err != nil {
		return p.errorResponse(err.Error(), core.ErrInternalError)
	}

	plies, err := p.store.GetPlies(cmd.AnalysisID)
	if err != nil {
		return p.errorResponse(err.Error(), core.ErrInternalError)
	}

	detail := core.AnalysisDetail{
		AnalysisSummary: summaryOf(rec),
		Plies:           make([]json.RawMessage, 0, len(plies)),
	}
	for _, ply := range plies {
		detail.Plies = append(detail.Plies, json.RawMessage(ply.Result))
	}
	return ProcessorResponse{Success: true, Data: detail}
}

// handleListAnalyses returns the newest runs of the caller
func (p *Processor) handleListAnalyses(cmd Command) ProcessorResponse {
	if p.store == nil {
		return p.errorResponse("analysis persistence is disabled", core.ErrStorageDisabled)
	}

	recs, err := p.store.ListAnalyses(cmd.UserID, listLimit)
	if err != nil {
		return p.errorResponse(err.Error(), core.ErrInternalError)
	}
	out := make([]core.AnalysisSummary, 0, len(recs))
	for i := range recs {
		out = append(out, summaryOf(&recs[i]))
	}
	return ProcessorResponse{Success: true, Data: out}
}

func summaryOf(rec *storage.AnalysisRecord) core.AnalysisSummary {
	return core.AnalysisSummary{
		AnalysisID:   rec.AnalysisID,
		BasePosition: rec.BasePosition,
		MoveCount:    rec.MoveCount,
		Status:       rec.Status,
		Error:        rec.Error,
		StartedAt:    rec.StartedAt,
		FinishedAt:   rec.FinishedAt,
	}
}

// Storage writes are best effort; a degraded store only costs persistence

func (p *Processor) recordStart(job AnalysisJob, status string) {
	if p.store == nil {
		return
	}
	base := job.Game.Prefix(0).String()
	err := p.store.RecordAnalysis(storage.AnalysisRecord{
		AnalysisID:   job.AnalysisID,
		UserID:       job.UserID,
		BasePosition: base,
		Moves:        strings.Join(job.Game.Moves, " "),
		MoveCount:    len(job.Game.Moves),
		Status:       status,
		StartedAt:    time.Now().UTC(),
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to record analysis")
	}
}

func (p *Processor) setStatus(analysisID, status string) {
	if p.store == nil {
		return
	}
	if err := p.store.SetAnalysisStatus(analysisID, status); err != nil {
		p.log.Warn().Err(err).Msg("failed to update analysis status")
	}
}

func (p *Processor) recordPly(analysisID string, ply Ply) {
	if p.store == nil {
		return
	}
	data, err := json.Marshal(ply)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to encode ply")
		return
	}

	rec := storage.PlyRecord{
		AnalysisID: analysisID,
		Ply:        ply.Index,
		Bestmove:   ply.Result.Bestmove,
		Result:     string(data),
		CreatedAt:  time.Now().UTC(),
	}
	if best, ok := ply.Result.Best(); ok {
		rec.ScoreType = best.Score.Kind.String()
		rec.ScoreValue = best.Score.Value
	}
	if err := p.store.RecordPly(rec); err != nil {
		p.log.Warn().Err(err).Int("ply", ply.Index).Msg("failed to record ply")
	}
}

func (p *Processor) recordFinish(analysisID, status, errMsg string) {
	if p.store == nil {
		return
	}
	if err := p.store.FinishAnalysis(analysisID, status, errMsg, time.Now().UTC()); err != nil {
		p.log.Warn().Err(err).Msg("failed to finish analysis")
	}
}

func (p *Processor) orDepth(d int) int {
	if d <= 0 {
		return p.depth
	}
	return d
}

func (p *Processor) orMultiPV(n int) int {
	if n <= 0 {
		return p.multipv
	}
	return n
}

// IsInputSafe rejects control characters that could inject engine commands
func IsInputSafe(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ErrorCode maps an engine or processor error to its API code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrUnavailable), errors.Is(err, engine.ErrClosed):
		return core.ErrEngineUnavailable
	case errors.Is(err, engine.ErrCrashed):
		return core.ErrEngineCrashed
	case errors.Is(err, engine.ErrSearchTimeout), errors.Is(err, context.DeadlineExceeded):
		return core.ErrEngineTimeout
	case errors.Is(err, engine.ErrCancelled):
		return core.ErrAnalysisCancelled
	case errors.Is(err, ErrQueueFull):
		return core.ErrQueueFull
	default:
		return core.ErrInternalError
	}
}

// StatusCode maps an API error code to its HTTP status
func StatusCode(code string) int {
	switch code {
	case core.ErrInvalidPosition, core.ErrInvalidRequest, core.ErrInvalidContent:
		return http.StatusBadRequest
	case core.ErrUnauthorized:
		return http.StatusUnauthorized
	case core.ErrAnalysisNotFound, core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrUserExists, core.ErrAnalysisCancelled:
		return http.StatusConflict
	case core.ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case core.ErrEngineUnavailable, core.ErrStorageDisabled, core.ErrQueueFull:
		return http.StatusServiceUnavailable
	case core.ErrEngineTimeout:
		return http.StatusGatewayTimeout
	case core.ErrEngineCrashed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// engineError converts an engine failure into a response
func (p *Processor) engineError(err error) ProcessorResponse {
	code := ErrorCode(err)
	p.log.Warn().Err(err).Str("code", code).Msg("engine request failed")
	return p.errorResponse(err.Error(), code)
}

// errorResponse creates error response
func (p *Processor) errorResponse(message, code string) ProcessorResponse {
	return ProcessorResponse{
		Success: false,
		Error: &core.ErrorResponse{
			Error: message,
			Code:  code,
		},
	}
}

// Close stops queued work and shuts both engines down
func (p *Processor) Close(ctx context.Context) error {
	dropped, err := p.queue.Shutdown(shutdownGrace)
	if err != nil {
		p.log.Warn().Err(err).Msg("analysis queue did not drain")
	}
	for _, job := range dropped {
		p.recordFinish(job.AnalysisID, storage.StatusCancelled, "server shutting down")
	}
	if len(dropped) > 0 {
		p.log.Info().Int("count", len(dropped)).Msg("queued analyses cancelled")
	}
	return errors.Join(p.interactive.Close(ctx), p.batch.Close(ctx))
}
