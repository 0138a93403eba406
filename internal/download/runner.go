package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
	"github.com/openmusicplayer/bilimusic/internal/extract"
	"github.com/openmusicplayer/bilimusic/internal/logger"
)

// ErrCancelled is returned from progress callbacks and checkpoints once a
// job has been asked to stop.
var ErrCancelled = errors.New("job cancelled")

// run drives one job from Pending to a terminal state. It is the only
// writer of the job's record.
func (s *Scheduler) run(j *job) {
	defer s.wg.Done()
	defer j.cancel()

	ctx := logger.WithJobID(j.ctx, string(j.id))
	start := time.Now()

	err := s.execute(ctx, j)

	if err != nil && (j.isCancelled() || errors.Is(err, ErrCancelled)) {
		removeLeftovers(j.reserved)
	}
	s.paths.release(j.reserved)

	switch {
	case err == nil:
		j.state = StateCompleted
		j.percent = PercentCompleted
		j.message = "completed"
		s.emitStatus(j)
		s.emitProgress(j)
		s.emit(Event{JobID: j.id, Kind: EventFinished, State: j.state, Percent: j.percent, Path: j.resultPath, Metadata: j.meta})
		s.log.Info(ctx, "job completed", map[string]interface{}{
			"path":        j.resultPath,
			"duration_ms": time.Since(start).Milliseconds(),
		})

	case j.isCancelled() || errors.Is(err, ErrCancelled):
		j.state = StateCancelled
		j.message = "cancelled"
		j.resultPath = ""
		s.emitStatus(j)
		s.log.Info(ctx, "job cancelled", map[string]interface{}{"from_percent": j.percent})

	default:
		appErr := apperrors.Classify(err)
		j.state = StateFailed
		j.errDetail = appErr.Message
		j.errCode = appErr.Code
		j.message = appErr.Message
		s.emitStatus(j)
		s.emit(Event{JobID: j.id, Kind: EventError, State: j.state, Percent: j.percent, Message: j.errDetail, Code: j.errCode})
		s.log.Error(ctx, "job failed", appErr, map[string]interface{}{"attempt": j.attempt})
	}
}

// execute runs the non-terminal part of the state machine. A nil return
// means the file is in place at j.resultPath.
func (s *Scheduler) execute(ctx context.Context, j *job) error {
	if j.dirErr != nil {
		return j.dirErr
	}

	if !s.acquire(j) {
		return ErrCancelled
	}
	defer s.releaseSlot()

	// Validating
	if err := s.checkpoint(j); err != nil {
		return err
	}
	s.transition(j, StateValidating, PercentValidating, "validating link")
	if !s.opts.validate(j.req.URL) {
		return apperrors.ErrInvalidURL
	}

	// FetchingMetadata
	if err := s.checkpoint(j); err != nil {
		return err
	}
	s.transition(j, StateFetchingMetadata, PercentFetchingMetadata, "fetching video info")
	meta, err := s.fetchMetadata(ctx, j)
	if err != nil {
		return err
	}
	j.meta = meta

	// Downloading
	if err := s.checkpoint(j); err != nil {
		return err
	}
	j.reserved = s.paths.reserve(j.id, j.req.Directory, meta.Title, DefaultAudioFormat)
	j.attempt = 0
	s.transition(j, StateDownloading, PercentDownloadFloor, "downloading audio")
	path, err := s.fetchAudio(ctx, j)
	if err != nil {
		return err
	}

	// Finalizing
	if err := s.checkpoint(j); err != nil {
		os.Remove(path)
		return err
	}
	s.transition(j, StateFinalizing, PercentFinalizing, "finalizing")
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return extract.ErrEmptyResult
	}
	if err := s.checkpoint(j); err != nil {
		os.Remove(path)
		return err
	}

	j.resultPath = path
	return nil
}

// retryConfig is the fixed download policy with the scheduler's attempt
// count and backoff applied
func (s *Scheduler) retryConfig(j *job, phase string, onRetry func()) *apperrors.RetryConfig {
	cfg := apperrors.DownloadRetryConfig()
	cfg.MaxAttempts = s.opts.maxAttempts
	cfg.InitialBackoff = s.opts.retryBackoff
	cfg.MaxBackoff = s.opts.retryBackoff
	cfg.Retryable = func(err error) bool {
		if j.isCancelled() || errors.Is(err, ErrCancelled) {
			return false
		}
		return apperrors.IsRetryable(apperrors.Classify(err))
	}
	cfg.OnRetry = func(next int, err error, backoff time.Duration) {
		s.log.Warn(logger.WithJobID(j.ctx, string(j.id)), phase+" attempt failed, retrying", map[string]interface{}{
			"next_attempt": next,
			"max_attempts": s.opts.maxAttempts,
			"backoff_ms":   backoff.Milliseconds(),
			"error":        err.Error(),
		})
		if onRetry != nil {
			onRetry()
		}
		j.attempt = next
		j.message = fmt.Sprintf("%s failed, retrying (attempt %d/%d)", phase, next, s.opts.maxAttempts)
		s.emitStatus(j)
		s.emitProgress(j)
	}
	return cfg
}

func (s *Scheduler) fetchMetadata(ctx context.Context, j *job) (*extract.Metadata, error) {
	cfg := s.retryConfig(j, "fetching video info", nil)

	return apperrors.RetryWithResult(ctx, cfg, func(ctx context.Context) (*extract.Metadata, error) {
		if err := s.checkpoint(j); err != nil {
			return nil, err
		}
		j.attempt = apperrors.AttemptFromContext(ctx)

		meta, err := s.extractor.FetchMetadata(ctx, j.req.URL)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			meta = &extract.Metadata{}
		}
		copied := *meta
		return copied.Normalize(), nil
	})
}

func (s *Scheduler) fetchAudio(ctx context.Context, j *job) (string, error) {
	band := newProgressBand(PercentDownloadFloor, PercentDownloadCeil)
	cfg := s.retryConfig(j, "download", func() {
		band.reset()
		j.percent = band.current
	})

	return apperrors.RetryWithResult(ctx, cfg, func(ctx context.Context) (string, error) {
		if err := s.checkpoint(j); err != nil {
			return "", err
		}
		j.attempt = apperrors.AttemptFromContext(ctx)
		phase := extract.PhaseDownloading

		onProgress := func(p extract.Progress) error {
			if j.isCancelled() {
				return ErrCancelled
			}
			if j.paused.Load() {
				return nil
			}
			if p.Phase == extract.PhasePostprocessing && phase != extract.PhasePostprocessing {
				phase = extract.PhasePostprocessing
				j.message = "converting to " + DefaultAudioFormat
				s.emitStatus(j)
			}
			if pct, moved := band.update(p); moved {
				j.percent = pct
				s.emitProgress(j)
			}
			return nil
		}

		produced, err := s.extractor.FetchAudio(ctx, extract.AudioRequest{
			URL:        j.req.URL,
			Directory:  j.req.Directory,
			OutputPath: j.reserved,
		}, onProgress)
		if err != nil {
			return "", err
		}

		path, ok := locateOutput(produced, j.reserved)
		if !ok {
			return "", extract.ErrEmptyResult
		}
		return path, nil
	})
}

// checkpoint is where cancellation and pause take effect
func (s *Scheduler) checkpoint(j *job) error {
	if j.isCancelled() {
		return ErrCancelled
	}
	if !j.paused.Load() {
		return nil
	}

	prev := j.message
	j.message = "paused"
	s.emitStatus(j)

	for j.paused.Load() && !j.isCancelled() {
		select {
		case <-j.ctx.Done():
		case <-j.wake:
		}
		if j.ctx.Err() != nil {
			break
		}
	}
	if j.isCancelled() || j.ctx.Err() != nil {
		return ErrCancelled
	}

	j.message = prev
	s.emitStatus(j)
	return nil
}

func (s *Scheduler) transition(j *job, state State, percent int, message string) {
	j.state = state
	if percent > j.percent {
		j.percent = percent
	}
	j.message = message
	s.emitStatus(j)
	s.emitProgress(j)
}

func (s *Scheduler) emitStatus(j *job) {
	ev := Event{
		JobID:   j.id,
		Kind:    EventStatus,
		State:   j.state,
		Percent: j.percent,
		Message: j.message,
		Attempt: j.attempt,
		Paused:  j.paused.Load() && j.state.IsActive(),
	}
	// Terminal status carries the outcome so no snapshot shows a finished
	// state without its path or error.
	switch j.state {
	case StateCompleted:
		ev.Path = j.resultPath
	case StateFailed:
		ev.Message = j.errDetail
		ev.Code = j.errCode
	}
	if j.state == StateDownloading && j.meta != nil {
		meta := *j.meta
		ev.Metadata = &meta
	}
	s.emit(ev)
}

func (s *Scheduler) emitProgress(j *job) {
	s.emit(Event{
		JobID:   j.id,
		Kind:    EventProgress,
		State:   j.state,
		Percent: j.percent,
		Attempt: j.attempt,
		Paused:  j.paused.Load() && j.state.IsActive(),
	})
}
