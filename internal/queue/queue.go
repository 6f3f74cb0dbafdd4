// Package queue implements C2: a fixed-concurrency scheduler that executes
// download Tasks, reporting progress and honoring pause/continue/abort
// control signals. Grounded on the teacher's internal/engine/executor.go
// (probe -> allocate -> dispatch -> tick -> complete shape) and
// internal/queue/queue.go's mutex+cond bookkeeping, generalized to the
// single-coordinator-goroutine design spec.md §4.2 and §5 call for: workers
// communicate results back to the coordinator over a channel rather than
// mutating shared counters directly.
package queue

import (
	"context"
	"net/url"
	"sync"
	"time"

	"mc-launcher-engine/internal/task"
)

// ControlSignal is sent on the Queue's control channel (spec.md §4.2).
type ControlSignal int

const (
	SignalPause ControlSignal = iota
	SignalContinue
	SignalAbort
)

// State is the queue's coordinator state machine position (spec.md §4.2).
type State string

const (
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateDraining State = "draining"
	StateDone     State = "done"
	StateAborted  State = "aborted"
)

// ProgressMessage is emitted after each chunk completes, success or
// failure (spec.md §3).
type ProgressMessage struct {
	Path         string
	Host         string
	Success      bool
	FailReason   string
	BytesWritten int64
}

// QueueStats is the coordinator's bookkeeping snapshot (spec.md §3).
type QueueStats struct {
	Completed      uint64
	Failed         uint64
	InFlight       uint64
	EverDispatched uint64
	SpeedBps       float64
}

// chunkJob is one dispatchable unit: a whole Task (size == 0, or already
// chunk-sized) or one ChunkRange slice of a larger Task. whole is true when
// the job must be fetched with download_whole (no Range header).
type chunkJob struct {
	t         task.Task
	chunkSize int64
	whole     bool
}

// workerResult is what a worker sends back to the coordinator; no shared
// counters are touched by workers directly (spec.md §5's shared-state
// guidance).
type workerResult struct {
	job     chunkJob
	written int64
	err     error
}

// Queue is C2. Construct with New, configure via the exported fields before
// Run, then drive it with Run plus the Control channel.
type Queue struct {
	ChunkSize    int64
	Parallelism  int
	PollInterval time.Duration
	UserAgent    string

	// Progress, if non-nil, receives a ProgressMessage per completed chunk.
	// The coordinator never blocks indefinitely on a full channel: sends
	// are attempted non-blocking so a slow consumer cannot stall dispatch.
	Progress chan<- ProgressMessage

	mu    sync.Mutex
	stats QueueStats
	state State

	client task.Client
}

// New constructs a Queue with the given chunk size, parallelism bound and
// dispatch/sampling tick period.
func New(client task.Client, chunkSize int64, parallelism int, pollInterval time.Duration) *Queue {
	return &Queue{
		ChunkSize:    chunkSize,
		Parallelism:  parallelism,
		PollInterval: pollInterval,
		client:       client,
		state:        StateRunning,
	}
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// State returns the coordinator's current state machine position.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Run expands tasks into chunk jobs (spec.md §4.2 step 1) and drives the
// single-coordinator dispatch loop (steps 2-5) until all jobs complete or
// fail, or an Abort signal is received. It returns once the queue reaches
// Done or Aborted.
func (q *Queue) Run(ctx context.Context, tasks []task.Task, control <-chan ControlSignal) {
	jobs := expandJobs(tasks, q.ChunkSize)

	q.mu.Lock()
	q.stats = QueueStats{}
	q.state = StateRunning
	q.mu.Unlock()

	if len(jobs) == 0 {
		q.mu.Lock()
		q.state = StateDone
		q.mu.Unlock()
		return
	}

	resultCh := make(chan workerResult, max(1, q.Parallelism))
	ticker := time.NewTicker(q.PollInterval)
	defer ticker.Stop()

	var inFlightWG sync.WaitGroup
	nextJob := 0
	var bytesThisWindow int64
	paused := false

	setState := func(s State) {
		q.mu.Lock()
		q.state = s
		q.mu.Unlock()
	}

	dispatchUpTo := func(n int) {
		for i := 0; i < n && nextJob < len(jobs); i++ {
			job := jobs[nextJob]
			nextJob++
			q.mu.Lock()
			q.stats.InFlight++
			q.stats.EverDispatched++
			q.mu.Unlock()

			inFlightWG.Add(1)
			go q.runWorker(ctx, job, resultCh, &inFlightWG)
		}
	}

	allDispatchedAndDrained := func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return nextJob >= len(jobs) && q.stats.InFlight == 0
	}

	for {
		q.mu.Lock()
		inFlight := q.stats.InFlight
		q.mu.Unlock()

		if !paused && nextJob < len(jobs) && int(inFlight) < q.Parallelism {
			// Non-blocking fast path: top up immediately rather than waiting
			// for the next tick when there's obvious headroom.
			dispatchUpTo(q.Parallelism - int(inFlight))
		}

		select {
		case res := <-resultCh:
			q.recordResult(res)
			bytesThisWindow += res.written
			if q.allFinished(len(jobs)) {
				setState(StateDone)
				inFlightWG.Wait()
				return
			}
			if nextJob >= len(jobs) {
				setState(StateDraining)
			}

		case sig, ok := <-control:
			if !ok {
				continue
			}
			switch sig {
			case SignalPause:
				paused = true
				setState(StatePaused)
			case SignalContinue:
				paused = false
				setState(StateRunning)
			case SignalAbort:
				// Abort stops dispatch without waiting on in-flight workers:
				// they run to completion in the background and their results
				// are discarded, since nothing drains resultCh after return
				// (its buffer holds one slot per possible in-flight worker).
				setState(StateAborted)
				return
			}

		case <-ticker.C:
			q.mu.Lock()
			q.stats.SpeedBps = float64(bytesThisWindow) / q.PollInterval.Seconds()
			q.mu.Unlock()
			bytesThisWindow = 0
			if !paused {
				q.mu.Lock()
				inFlight := int(q.stats.InFlight)
				q.mu.Unlock()
				dispatchUpTo(q.Parallelism - inFlight)
			}
			if allDispatchedAndDrained() {
				setState(StateDone)
				return
			}

		case <-ctx.Done():
			setState(StateAborted)
			return
		}
	}
}

func (q *Queue) recordResult(res workerResult) {
	q.mu.Lock()
	q.stats.InFlight--
	if res.err == nil {
		q.stats.Completed++
	} else {
		q.stats.Failed++
	}
	q.mu.Unlock()

	if q.Progress == nil {
		return
	}
	msg := ProgressMessage{Path: res.job.t.Path, Host: hostOf(res.job.t.URL), Success: res.err == nil, BytesWritten: res.written}
	if res.err != nil {
		msg.FailReason = res.err.Error()
	}
	select {
	case q.Progress <- msg:
	default:
	}
}

func (q *Queue) allFinished(total int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.stats.Completed+q.stats.Failed) >= total
}

// runWorker executes one chunk job and reports the outcome; it never
// mutates Queue's counters directly (spec.md §5).
func (q *Queue) runWorker(ctx context.Context, job chunkJob, resultCh chan<- workerResult, wg *sync.WaitGroup) {
	defer wg.Done()

	var written int64
	var err error
	if job.whole {
		written, err = job.t.DownloadWhole(ctx, q.client, q.UserAgent)
	} else {
		written, err = job.t.DownloadChunk(ctx, q.client, job.chunkSize, q.UserAgent)
	}

	select {
	case resultCh <- workerResult{job: job, written: written, err: err}:
	case <-ctx.Done():
	}
}

// hostOf extracts the request host from a Task URL for per-host congestion
// bookkeeping; an unparsable URL yields an empty host rather than an error,
// since this is best-effort telemetry, not a correctness dependency.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// expandJobs implements spec.md §3's ChunkPlan / §4.2 step 1: a Task with
// size == 0 is dispatched once as a whole-file download; otherwise it is
// split via task.ExpandChunks.
func expandJobs(tasks []task.Task, chunkSize int64) []chunkJob {
	var jobs []chunkJob
	for _, t := range tasks {
		if t.Size <= 0 {
			jobs = append(jobs, chunkJob{t: t, whole: true})
			continue
		}
		for _, r := range task.ExpandChunks(t.Size, chunkSize) {
			sub := t
			sub.Start = r.Start
			jobs = append(jobs, chunkJob{t: sub, chunkSize: r.End - r.Start + 1})
		}
	}
	return jobs
}
