// Package relay drains the scheduler's event stream and forwards every event
// to a set of sinks: live clients, the Redis mirror, job history, metrics and
// post-download processing.
package relay

import (
	"context"

	"github.com/openmusicplayer/bilimusic/internal/download"
	"github.com/openmusicplayer/bilimusic/internal/logger"
)

// Sink consumes events in stream order. Handle runs on the relay goroutine
// and should return quickly.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev download.Event) error
}

// Waiter is implemented by sinks that finish work in the background
type Waiter interface {
	Wait()
}

// SnapshotFunc looks up the current snapshot of a job
type SnapshotFunc func(id download.JobID) (download.Snapshot, bool)

// IsFinal reports whether ev is the last event a job will ever emit
func IsFinal(ev download.Event) bool {
	switch ev.Kind {
	case download.EventFinished, download.EventError:
		return true
	case download.EventStatus:
		return ev.State == download.StateCancelled
	}
	return false
}

type Relay struct {
	sinks []Sink
	log   *logger.Logger
}

func New(sinks ...Sink) *Relay {
	return &Relay{
		sinks: sinks,
		log:   logger.Default().WithComponent("relay"),
	}
}

// Add appends a sink. It must be called before Run.
func (r *Relay) Add(s Sink) {
	r.sinks = append(r.sinks, s)
}

// Run forwards events until the channel is closed, then waits for
// background sink work to finish. A failing sink is logged and does not
// stop delivery to the others.
func (r *Relay) Run(ctx context.Context, events <-chan download.Event) {
	for ev := range events {
		for _, s := range r.sinks {
			if err := s.Handle(ctx, ev); err != nil {
				r.log.Error(ctx, "sink failed", err, map[string]interface{}{
					"sink":   s.Name(),
					"job_id": string(ev.JobID),
					"kind":   string(ev.Kind),
				})
			}
		}
	}

	for _, s := range r.sinks {
		if w, ok := s.(Waiter); ok {
			w.Wait()
		}
	}
}
