package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/types"
)

// laneBuffer is how many commands a session may have waiting.
const laneBuffer = 100

// Job is one command waiting in a session lane.
type Job struct {
	SessionID types.SessionID
	Event     bus.Name
	Run       func(ctx context.Context)
}

// Queue manages per-session lanes with a global concurrency semaphore.
// Each session gets its own FIFO channel (lane) so that commands within a
// session are processed sequentially, while the semaphore limits the
// total number of commands running across all sessions.
type Queue struct {
	lanes     map[types.SessionID]chan *Job
	semaphore *semaphore.Weighted
	pending   atomic.Int64
	logger    *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewQueue creates a Queue that runs up to maxConcurrent commands at once
// across all session lanes.
func NewQueue(maxConcurrent int64, logger *slog.Logger) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.SessionID]chan *Job),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		logger:    logger.With("component", "bridge.queue"),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for running
// commands to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds job to its session's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full or
// the queue is stopped.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || q.ctx == nil {
		return fmt.Errorf("queue not running")
	}
	lane, exists := q.lanes[job.SessionID]
	if !exists {
		lane = make(chan *Job, laneBuffer)
		q.lanes[job.SessionID] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	q.pending.Add(1)
	select {
	case lane <- job:
		return nil
	default:
		q.pending.Add(-1)
		return fmt.Errorf("queue full for session %s", job.SessionID)
	}
}

// processLane drains a single session lane, acquiring a semaphore slot
// before running each job.
func (q *Queue) processLane(lane chan *Job) {
	defer q.wg.Done()
	for {
		select {
		case job, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			q.run(job)
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) run(job *Job) {
	defer q.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("command panicked", "event", job.Event, "session_id", string(job.SessionID), "panic", r)
		}
	}()
	job.Run(q.ctx)
}

// WaitIdle blocks until every enqueued command has run, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
