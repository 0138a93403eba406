package download

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openmusicplayer/bilimusic/internal/extract"
)

// State is a download job's position in its lifecycle
type State string

// Job states. Completed, Failed and Cancelled are terminal.
const (
	StatePending          State = "pending"
	StateValidating       State = "validating"
	StateFetchingMetadata State = "fetching_metadata"
	StateDownloading      State = "downloading"
	StateFinalizing       State = "finalizing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

// IsTerminal returns true if no further transitions can happen
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// IsActive returns true if the job is still being worked on
func (s State) IsActive() bool {
	return !s.IsTerminal()
}

// Progress floors for each phase
const (
	PercentValidating       = 5
	PercentFetchingMetadata = 15
	PercentDownloadFloor    = 30
	PercentDownloadCeil     = 95
	PercentFinalizing       = 95
	PercentCompleted        = 100
)

// JobID identifies a job for its whole lifetime. IDs are never reused.
type JobID string

// NewJobID allocates a fresh job ID
func NewJobID() JobID {
	return JobID(uuid.New().String())
}

// Request is what a caller submits. It is never mutated.
type Request struct {
	URL       string `json:"url"`
	Directory string `json:"directory"`
}

// Snapshot is a read-only copy of a job as last reported through events
type Snapshot struct {
	ID         JobID             `json:"id"`
	Request    Request           `json:"request"`
	State      State             `json:"state"`
	Percent    int               `json:"percent"`
	Message    string            `json:"message"`
	Attempt    int               `json:"attempt"`
	Paused     bool              `json:"paused"`
	Metadata   *extract.Metadata `json:"metadata,omitempty"`
	ResultPath string            `json:"result_path,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// job is the mutable record of one download. Everything below the control
// flags is written only by the job's own goroutine.
type job struct {
	id        JobID
	req       Request
	createdAt time.Time
	dirErr    error

	ctx    context.Context
	cancel context.CancelFunc

	cancelled atomic.Bool
	paused    atomic.Bool
	wake      chan struct{}

	state      State
	percent    int
	message    string
	attempt    int
	meta       *extract.Metadata
	reserved   string
	resultPath string
	errDetail  string
	errCode    string
}

func newJob(parent context.Context, req Request) *job {
	ctx, cancel := context.WithCancel(parent)
	return &job{
		id:        NewJobID(),
		req:       req,
		createdAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		state:     StatePending,
	}
}

// requestCancel is safe to call from any goroutine
func (j *job) requestCancel() {
	j.cancelled.Store(true)
	j.cancel()
	j.signal()
}

func (j *job) setPaused(paused bool) {
	j.paused.Store(paused)
	if !paused {
		j.signal()
	}
}

func (j *job) signal() {
	select {
	case j.wake <- struct{}{}:
	default:
	}
}

func (j *job) isCancelled() bool {
	return j.cancelled.Load()
}
