package jobqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobCancelled supplements spec §3's {queued, running, done, failed}
// lifecycle: a job cancelled while still queued never runs at all, and
// reporting it as "failed" would conflate a deliberate caller action with
// a pipeline error the caller needs to distinguish from (see DESIGN.md).
const JobCancelled JobState = "cancelled"

// ErrAlreadyRunning is returned by Cancel when the job is past the queued
// state: spec §5 "a running job runs to completion."
var ErrAlreadyRunning = errors.New("job is already running and cannot be cancelled")

// ErrJobNotFound is returned by Cancel for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned by Submit once Stop has been called.
var ErrQueueClosed = errors.New("job queue is shutting down, not accepting new work")

// Runner executes the §4.2-§4.4 pipeline for one job. internal/pipeline
// satisfies this; it is declared here, not imported, so jobqueue tests can
// supply a fake runner without wiring a real reference store and parser.
type Runner interface {
	Run(ctx context.Context, req Request) (*domain.AllocationReport, error)
}

// Queue is the Job Cache & Queue of spec §4.5: it fingerprints
// submissions, serves cached results, and dispatches new work to a fixed
// pool of workers pulling FIFO, per spec §5's concurrency model.
type Queue struct {
	cache       *Cache
	runner      Runner
	workerCount int
	jobTimeout  time.Duration
	log         zerolog.Logger

	mu                    sync.Mutex
	cond                  *sync.Cond
	pending               []string // FIFO of queued job ids
	jobs                  map[string]*JobRecord
	inflightByFingerprint map[string]string
	closed                bool

	wg sync.WaitGroup
}

// NewQueue constructs a Queue. Call Start to spin up its worker pool.
func NewQueue(cache *Cache, runner Runner, workerCount int, jobTimeout time.Duration, log zerolog.Logger) *Queue {
	if workerCount < 1 {
		workerCount = 1
	}
	q := &Queue{
		cache:                 cache,
		runner:                runner,
		workerCount:           workerCount,
		jobTimeout:            jobTimeout,
		log:                   log.With().Str("component", "job_queue").Logger(),
		jobs:                  make(map[string]*JobRecord),
		inflightByFingerprint: make(map[string]string),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.workerLoop()
	}
}

// Stop implements spec §6's exit behaviour: new submissions are refused
// immediately; workers keep taking jobs from the pending queue until it is
// empty, running each to completion, and the call returns once every
// worker has exited. Every job already queued when Stop is called still
// runs before Stop returns.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}

// Submit fingerprints req, serves a cached result synchronously if one
// exists, attaches to an in-flight job sharing the same fingerprint, or
// enqueues a new job. The bool return reports whether the result was a
// synchronous cache hit.
func (q *Queue) Submit(req Request) (jobID string, cacheHit bool, err error) {
	fingerprint, err := Fingerprint(req)
	if err != nil {
		return "", false, domain.WrapError(domain.ErrInputInvalid, "could not fingerprint request", err)
	}

	if cached, ok := q.cache.Get(fingerprint); ok {
		id := uuid.NewString()
		q.mu.Lock()
		q.jobs[id] = &JobRecord{
			JobID:       id,
			Fingerprint: fingerprint,
			State:       JobDone,
			Request:     req,
			Result:      cached,
			EnqueuedAt:  time.Now(),
			CompletedAt: time.Now(),
		}
		q.mu.Unlock()
		return id, true, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", false, ErrQueueClosed
	}
	if existingID, ok := q.inflightByFingerprint[fingerprint]; ok {
		return existingID, false, nil
	}

	id := uuid.NewString()
	record := &JobRecord{
		JobID:       id,
		Fingerprint: fingerprint,
		State:       JobQueued,
		Request:     req,
		EnqueuedAt:  time.Now(),
	}
	q.jobs[id] = record
	q.inflightByFingerprint[fingerprint] = id
	q.pending = append(q.pending, id)
	q.cond.Signal()
	return id, false, nil
}

// Status returns the current record for jobID.
func (q *Queue) Status(jobID string) (*JobRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	record, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	copied := *record
	return &copied, true
}

// Cancel removes a still-queued job from the pending list. A running job
// cannot be cancelled (spec §5).
func (q *Queue) Cancel(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	record, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	switch record.State {
	case JobQueued:
		for i, id := range q.pending {
			if id == jobID {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
		delete(q.inflightByFingerprint, record.Fingerprint)
		record.State = JobCancelled
		record.CompletedAt = time.Now()
		return nil
	case JobRunning:
		return ErrAlreadyRunning
	default:
		return nil // already terminal; cancelling a finished job is a no-op
	}
}

func (q *Queue) workerLoop() {
	defer q.wg.Done()
	for {
		jobID, ok := q.nextJob()
		if !ok {
			return
		}
		q.runJob(jobID)
	}
}

// nextJob blocks until a job is pending or the queue is closed.
func (q *Queue) nextJob() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return "", false
	}
	jobID := q.pending[0]
	q.pending = q.pending[1:]
	return jobID, true
}

func (q *Queue) runJob(jobID string) {
	q.mu.Lock()
	record, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return
	}
	record.State = JobRunning
	req := record.Request
	fingerprint := record.Fingerprint
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	defer cancel()

	type outcome struct {
		result *domain.AllocationReport
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := q.runner.Run(ctx, req)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: domain.NewError(domain.ErrTimeout, "job exceeded wall-clock timeout")}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflightByFingerprint, fingerprint)
	record.CompletedAt = time.Now()

	if out.err != nil {
		record.State = JobFailed
		record.Err = asDomainError(out.err)
		q.log.Error().Err(out.err).Str("job_id", jobID).Msg("job failed")
		return
	}

	record.State = JobDone
	record.Result = out.result
	if err := q.cache.Put(fingerprint, out.result); err != nil {
		q.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to cache job result")
	}
}

func asDomainError(err error) *domain.Error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.WrapError(domain.ErrInternal, "job failed", err)
}
