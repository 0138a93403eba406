package relay

import (
	"context"
	"sync"
	"time"

	"github.com/openmusicplayer/bilimusic/internal/db"
	"github.com/openmusicplayer/bilimusic/internal/download"
	"github.com/openmusicplayer/bilimusic/internal/logger"
	"github.com/openmusicplayer/bilimusic/internal/metrics"
	"github.com/openmusicplayer/bilimusic/internal/storage"
	"github.com/openmusicplayer/bilimusic/internal/tags"
)

// Broadcaster is satisfied by websocket.Hub
type Broadcaster interface {
	BroadcastEvent(ev download.Event)
}

// HubSink pushes every event to connected WebSocket clients
type HubSink struct {
	hub Broadcaster
}

func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "websocket" }

func (s *HubSink) Handle(ctx context.Context, ev download.Event) error {
	s.hub.BroadcastEvent(ev)
	return nil
}

// LogSink writes status changes and failures to the structured log
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.Default().WithComponent("jobs")
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Handle(ctx context.Context, ev download.Event) error {
	ctx = logger.WithJobID(ctx, string(ev.JobID))
	fields := map[string]interface{}{"state": string(ev.State), "percent": ev.Percent}
	if ev.Attempt > 0 {
		fields["attempt"] = ev.Attempt
	}

	switch ev.Kind {
	case download.EventStatus:
		if ev.State.IsTerminal() {
			s.log.Info(ctx, "job "+string(ev.State), fields)
		} else {
			fields["message"] = ev.Message
			s.log.Debug(ctx, "job status", fields)
		}
	case download.EventFinished:
		fields["path"] = ev.Path
		s.log.Info(ctx, "audio saved", fields)
	case download.EventError:
		fields["code"] = ev.Code
		s.log.Warn(ctx, ev.Message, fields)
	}
	return nil
}

// MetricsSink maintains the job counters and the active-jobs gauge
type MetricsSink struct {
	metrics  *metrics.Metrics
	started  map[download.JobID]time.Time
	attempts map[download.JobID]int
}

func NewMetricsSink(m *metrics.Metrics) *MetricsSink {
	return &MetricsSink{
		metrics:  m,
		started:  make(map[download.JobID]time.Time),
		attempts: make(map[download.JobID]int),
	}
}

func (s *MetricsSink) Name() string { return "metrics" }

func (s *MetricsSink) Handle(ctx context.Context, ev download.Event) error {
	if _, seen := s.started[ev.JobID]; !seen && !ev.Terminal() && !IsFinal(ev) {
		s.started[ev.JobID] = ev.Time
		s.metrics.RecordJobStarted()
	}

	if ev.Attempt > s.attempts[ev.JobID] {
		if s.attempts[ev.JobID] > 0 {
			s.metrics.RecordRetry()
		}
		s.attempts[ev.JobID] = ev.Attempt
	}

	if ev.Terminal() {
		var elapsed time.Duration
		if start, ok := s.started[ev.JobID]; ok {
			elapsed = ev.Time.Sub(start)
		}
		s.metrics.RecordJobFinished(string(ev.State), elapsed)
	}
	if IsFinal(ev) {
		delete(s.started, ev.JobID)
		delete(s.attempts, ev.JobID)
	}

	s.metrics.SetActiveJobs(int64(len(s.started)))
	return nil
}

// HistoryStore is satisfied by db.HistoryRepository
type HistoryStore interface {
	Save(ctx context.Context, rec *db.HistoryRecord) error
}

// HistorySink stores the outcome of every job once its final event arrives
type HistorySink struct {
	store  HistoryStore
	lookup SnapshotFunc
}

func NewHistorySink(store HistoryStore, lookup SnapshotFunc) *HistorySink {
	return &HistorySink{store: store, lookup: lookup}
}

func (s *HistorySink) Name() string { return "history" }

func (s *HistorySink) Handle(ctx context.Context, ev download.Event) error {
	if !IsFinal(ev) {
		return nil
	}

	snap, ok := s.lookup(ev.JobID)
	if !ok {
		// Cleared before the relay caught up; keep what the event carries
		snap = download.Snapshot{ID: ev.JobID, State: ev.State, CreatedAt: ev.Time, Metadata: ev.Metadata}
		if ev.Kind == download.EventError {
			snap.Error, snap.ErrorCode = ev.Message, ev.Code
		}
		snap.ResultPath = ev.Path
		snap.Attempt = ev.Attempt
	}

	return s.store.Save(ctx, RecordFromSnapshot(snap, ev.Time))
}

// RecordFromSnapshot converts a finished job into a history row
func RecordFromSnapshot(snap download.Snapshot, finishedAt time.Time) *db.HistoryRecord {
	rec := &db.HistoryRecord{
		ID:           string(snap.ID),
		URL:          snap.Request.URL,
		Directory:    snap.Request.Directory,
		State:        string(snap.State),
		Path:         snap.ResultPath,
		ErrorCode:    snap.ErrorCode,
		ErrorMessage: snap.Error,
		Attempts:     snap.Attempt,
		CreatedAt:    snap.CreatedAt,
	}
	if snap.Metadata != nil {
		rec.Title = snap.Metadata.Title
		rec.Uploader = snap.Metadata.Uploader
	}
	if snap.FinishedAt != nil {
		finishedAt = *snap.FinishedAt
	}
	rec.FinishedAt = &finishedAt
	return rec
}

// PostProcessSink stamps tags into finished files and optionally archives
// them. The work runs in the background, one goroutine per file.
type PostProcessSink struct {
	tags     tags.Port
	archiver storage.Archiver
	lookup   SnapshotFunc
	log      *logger.Logger
	wg       sync.WaitGroup
}

func NewPostProcessSink(port tags.Port, archiver storage.Archiver, lookup SnapshotFunc) *PostProcessSink {
	return &PostProcessSink{
		tags:     port,
		archiver: archiver,
		lookup:   lookup,
		log:      logger.Default().WithComponent("postprocess"),
	}
}

func (s *PostProcessSink) Name() string { return "postprocess" }

func (s *PostProcessSink) Handle(ctx context.Context, ev download.Event) error {
	if ev.Kind != download.EventFinished || ev.Path == "" {
		return nil
	}

	var sourceURL string
	if s.lookup != nil {
		if snap, ok := s.lookup(ev.JobID); ok {
			sourceURL = snap.Request.URL
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(logger.WithJobID(context.WithoutCancel(ctx), string(ev.JobID)), ev, sourceURL)
	}()
	return nil
}

func (s *PostProcessSink) process(ctx context.Context, ev download.Event, sourceURL string) {
	meta := ev.Metadata

	if s.tags != nil && meta != nil {
		t := tags.Tags{Title: meta.Track, Artist: meta.Artist}
		if t.Title == "" {
			t.Title = meta.Title
		}
		if t.Artist == "" {
			t.Artist = meta.Uploader
		}
		err := s.tags.Write(ev.Path, t)
		if err != nil {
			s.log.Debug(ctx, "tags not written", map[string]interface{}{"path": ev.Path, "error": err.Error()})
		}
	}

	if s.archiver == nil {
		return
	}

	tm := storage.TrackMetadata{SourceURL: sourceURL}
	if meta != nil {
		tm.SourceID = meta.ID
		tm.Title = meta.Title
		tm.Artist = meta.Artist
		tm.DurationSeconds = meta.DurationSeconds
	}
	if _, err := s.archiver.Archive(ctx, ev.Path, tm); err != nil {
		s.log.Error(ctx, "archive upload failed", err, map[string]interface{}{"path": ev.Path})
	}
}

// Wait blocks until every background job has finished
func (s *PostProcessSink) Wait() {
	s.wg.Wait()
}
