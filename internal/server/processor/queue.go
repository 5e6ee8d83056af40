// FILE: shogi/internal/server/processor/queue.go
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"shogi/internal/server/core"
	"shogi/internal/server/usi"

	"github.com/google/uuid"
)

var ErrQueueFull = errors.New("analysis queue is full")

// AnalysisJob is one batch run over a game
type AnalysisJob struct {
	AnalysisID string
	UserID     string
	Game       usi.Position
	Budget     time.Duration
	MaxPly     int
}

// NewAnalysisJob resolves the game of a batch request and assigns a fresh id.
// The game is the usi field when present, else position (default startpos)
// followed by moves.
func NewAnalysisJob(userID string, req core.BatchRequest) (AnalysisJob, error) {
	var game usi.Position
	switch {
	case strings.TrimSpace(req.USI) != "":
		g, err := parseGame(req.USI)
		if err != nil {
			return AnalysisJob{}, err
		}
		game = g
	case strings.TrimSpace(req.Position) != "":
		g, err := usi.ParsePosition(req.Position)
		if err != nil {
			return AnalysisJob{}, err
		}
		game = g
	}

	if len(req.Moves) > 0 {
		moves, err := usi.ParseMoves(req.Moves)
		if err != nil {
			return AnalysisJob{}, err
		}
		game.Moves = append(game.Moves[:len(game.Moves):len(game.Moves)], moves...)
	}

	return AnalysisJob{
		AnalysisID: uuid.New().String(),
		UserID:     userID,
		Game:       game,
		Budget:     time.Duration(req.TimeBudgetMs) * time.Millisecond,
		MaxPly:     req.MaxPly,
	}, nil
}

// parseGame accepts a full position command or a bare move list
func parseGame(s string) (usi.Position, error) {
	fields := strings.Fields(s)
	if len(fields) > 0 {
		switch fields[0] {
		case "position", "startpos", "sfen":
			return usi.ParsePosition(s)
		case "moves":
			fields = fields[1:]
		}
	}
	moves, err := usi.ParseMoves(fields)
	if err != nil {
		return usi.Position{}, err
	}
	return usi.StartPos(moves...), nil
}

// AnalysisQueue runs submitted batch jobs in the background
type AnalysisQueue struct {
	jobs    chan AnalysisJob
	workers int
	run     func(context.Context, AnalysisJob)
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	dropped []AnalysisJob
}

// NewAnalysisQueue creates a queue with specified worker count and capacity
func NewAnalysisQueue(workerCount, capacity int, run func(context.Context, AnalysisJob)) *AnalysisQueue {
	if workerCount < 1 {
		workerCount = 1
	}
	if capacity < 1 {
		capacity = 16
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &AnalysisQueue{
		jobs:    make(chan AnalysisJob, capacity),
		workers: workerCount,
		run:     run,
		ctx:     ctx,
		cancel:  cancel,
	}

	q.start()
	return q
}

// start initializes the worker pool
func (q *AnalysisQueue) start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// worker processes jobs until shutdown
func (q *AnalysisQueue) worker() {
	defer q.wg.Done()

	for {
		select {
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			if q.ctx.Err() != nil {
				q.drop(job)
				return
			}
			q.run(q.ctx, job)

		case <-q.ctx.Done():
			return
		}
	}
}

// Submit adds a job to the queue without blocking
func (q *AnalysisQueue) Submit(job AnalysisJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	select {
	case <-q.ctx.Done():
		return fmt.Errorf("queue is shutting down")
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown cancels running jobs and waits for workers to exit.
// Jobs still waiting for a worker are returned unrun.
func (q *AnalysisQueue) Shutdown(timeout time.Duration) ([]AnalysisJob, error) {
	q.mu.Lock()
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("shutdown timeout exceeded")
	}
	return q.drain(), err
}

func (q *AnalysisQueue) drop(job AnalysisJob) {
	q.mu.Lock()
	q.dropped = append(q.dropped, job)
	q.mu.Unlock()
}

func (q *AnalysisQueue) drain() []AnalysisJob {
	for {
		select {
		case job := <-q.jobs:
			q.drop(job)
		default:
			q.mu.Lock()
			defer q.mu.Unlock()
			dropped := q.dropped
			q.dropped = nil
			return dropped
		}
	}
}
