package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/openmusicplayer/bilimusic/internal/extract"
	"github.com/openmusicplayer/bilimusic/internal/logger"
	"github.com/openmusicplayer/bilimusic/internal/validators"
)

const (
	// Default configuration values
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 2 * time.Second
	DefaultEventBuffer  = 64
	DefaultAudioFormat  = "mp3"
)

var (
	ErrClosed      = errors.New("scheduler is closed")
	ErrJobNotFound = errors.New("job not found")
)

// Option configures a Scheduler
type Option func(*options)

type options struct {
	maxParallel  int
	maxAttempts  int
	retryBackoff time.Duration
	eventBuffer  int
	validate     func(url string) bool
	log          *logger.Logger
}

// WithMaxParallel caps how many jobs talk to the extractor at once.
// Zero means no cap.
func WithMaxParallel(n int) Option {
	return func(o *options) { o.maxParallel = n }
}

// WithMaxAttempts sets the attempt bound for the metadata and audio phases
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithRetryBackoff sets the fixed pause between attempts
func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) { o.retryBackoff = d }
}

// WithEventBuffer sets the capacity of the Events channel
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

// WithValidator replaces the URL check run in the Validating state
func WithValidator(fn func(url string) bool) Option {
	return func(o *options) { o.validate = fn }
}

// WithLogger sets the logger used for job lifecycle entries
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

type entry struct {
	job  *job
	snap Snapshot
}

// Scheduler owns every submitted job, runs each one on its own goroutine and
// merges their events into one stream.
//
// Job records are written only by their goroutine. The scheduler learns
// about them exclusively through the events those goroutines emit.
type Scheduler struct {
	extractor extract.Extractor
	opts      options
	log       *logger.Logger

	mu     sync.RWMutex
	jobs   map[JobID]*entry
	order  []JobID
	closed bool

	events *eventQueue
	paths  *pathBroker
	slots  chan struct{}
	wg     sync.WaitGroup

	ctx  context.Context
	stop context.CancelFunc
}

// New creates a scheduler backed by extractor
func New(extractor extract.Extractor, opts ...Option) *Scheduler {
	o := options{
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
		eventBuffer:  DefaultEventBuffer,
		validate:     validators.IsSupported,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = DefaultMaxAttempts
	}
	if o.retryBackoff < 0 {
		o.retryBackoff = 0
	}
	if o.eventBuffer < 0 {
		o.eventBuffer = 0
	}
	if o.log == nil {
		o.log = logger.Default()
	}

	ctx, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		extractor: extractor,
		opts:      o,
		log:       o.log.WithComponent("scheduler"),
		jobs:      make(map[JobID]*entry),
		events:    newEventQueue(o.eventBuffer),
		paths:     newPathBroker(),
		ctx:       ctx,
		stop:      stop,
	}
	if o.maxParallel > 0 {
		s.slots = make(chan struct{}, o.maxParallel)
	}
	return s
}

// mkdirAll is swapped in tests to hold directory creation open.
var mkdirAll = os.MkdirAll

// Submit registers a job for req and starts it. It returns immediately.
// A destination directory that cannot be created fails the job, not the
// call; the only error is ErrClosed. The directory is created before the
// registry lock is taken.
func (s *Scheduler) Submit(req Request) (JobID, error) {
	var dirErr error
	if req.Directory == "" {
		dirErr = &os.PathError{Op: "mkdir", Path: req.Directory, Err: os.ErrInvalid}
	} else if err := mkdirAll(req.Directory, 0755); err != nil {
		dirErr = fmt.Errorf("create destination directory: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}

	j := newJob(s.ctx, req)
	j.dirErr = dirErr

	now := j.createdAt
	s.jobs[j.id] = &entry{
		job: j,
		snap: Snapshot{
			ID:        j.id,
			Request:   req,
			State:     StatePending,
			Message:   "queued",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	s.order = append(s.order, j.id)
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info(logger.WithJobID(context.Background(), string(j.id)), "job submitted", map[string]interface{}{
		"url":       req.URL,
		"directory": req.Directory,
	})

	go s.run(j)
	return j.id, nil
}

// SubmitBatch submits every request independently
func (s *Scheduler) SubmitBatch(reqs []Request) ([]JobID, error) {
	ids := make([]JobID, 0, len(reqs))
	for _, req := range reqs {
		id, err := s.Submit(req)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Cancel asks a job to stop. Unknown and finished jobs are ignored.
func (s *Scheduler) Cancel(id JobID) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	active := ok && e.snap.State.IsActive()
	s.mu.RUnlock()

	if active {
		e.job.requestCancel()
	}
}

// CancelAll cancels every active job
func (s *Scheduler) CancelAll() {
	for _, j := range s.activeJobs() {
		j.requestCancel()
	}
}

// PauseAll holds every active job at its next checkpoint
func (s *Scheduler) PauseAll() {
	for _, j := range s.activeJobs() {
		j.setPaused(true)
	}
}

// ResumeAll releases jobs held by PauseAll
func (s *Scheduler) ResumeAll() {
	for _, j := range s.activeJobs() {
		j.setPaused(false)
	}
}

func (s *Scheduler) activeJobs() []*job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*job, 0, len(s.jobs))
	for _, id := range s.order {
		e := s.jobs[id]
		if e.snap.State.IsActive() {
			jobs = append(jobs, e.job)
		}
	}
	return jobs
}

// ClearFinished drops every job in a terminal state and returns their IDs
func (s *Scheduler) ClearFinished() []JobID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []JobID
	kept := s.order[:0]
	for _, id := range s.order {
		if s.jobs[id].snap.State.IsTerminal() {
			delete(s.jobs, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// Get returns the latest snapshot of a job
func (s *Scheduler) Get(id JobID) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snap, true
}

// List returns snapshots of all registered jobs in submission order
func (s *Scheduler) List() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].snap)
	}
	return out
}

// Events returns the merged event stream of all jobs. It is closed once
// every job has stopped after Close, even when Close itself gave up
// waiting; callers should keep draining it.
func (s *Scheduler) Events() <-chan Event {
	return s.events.out
}

// Close cancels all jobs, waits for them to stop and closes the event
// stream. No new jobs are accepted afterwards. If ctx ends first Close
// returns its error and the stream is closed later, when the last job exits.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.CancelAll()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.events.close()
		s.log.Info(context.Background(), "scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn(context.Background(), "scheduler shutdown timed out")
		go func() {
			<-done
			s.events.close()
		}()
		return ctx.Err()
	}
}

// emit records ev in the registry and appends it to the outward stream.
// Both happen under the registry lock so snapshots and stream order agree.
func (s *Scheduler) emit(ev Event) {
	ev.Time = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[ev.JobID]; ok {
		applyEvent(&e.snap, ev)
	}
	s.events.push(ev)
}

func applyEvent(snap *Snapshot, ev Event) {
	snap.UpdatedAt = ev.Time
	snap.State = ev.State
	snap.Percent = ev.Percent
	snap.Paused = ev.Paused
	if ev.Attempt > 0 {
		snap.Attempt = ev.Attempt
	}
	if ev.Metadata != nil {
		snap.Metadata = ev.Metadata
	}

	switch ev.Kind {
	case EventStatus:
		snap.Message = ev.Message
		if ev.State.IsTerminal() {
			t := ev.Time
			snap.FinishedAt = &t
		}
		switch ev.State {
		case StateCompleted:
			snap.ResultPath = ev.Path
		case StateFailed:
			snap.Error = ev.Message
			snap.ErrorCode = ev.Code
		}
	case EventFinished:
		snap.ResultPath = ev.Path
	case EventError:
		snap.Error = ev.Message
		snap.ErrorCode = ev.Code
	}
}

// acquire waits for a parallelism slot
func (s *Scheduler) acquire(j *job) bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	case <-j.ctx.Done():
		return false
	}
}

func (s *Scheduler) releaseSlot() {
	if s.slots != nil {
		<-s.slots
	}
}
