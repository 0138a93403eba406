// Package extract defines the contract between the download core and the
// external capability that turns a video link into metadata and an audio
// file.
package extract

import (
	"context"
	"strings"
)

// Placeholders used when the extractor leaves a field empty
const (
	UnknownTitle    = "untitled"
	UnknownUploader = "unknown uploader"
)

// Metadata describes a video as reported by the extractor
type Metadata struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Uploader        string `json:"uploader"`
	DurationSeconds int    `json:"duration_seconds"`

	// Parsed from the title when it looks like "Artist - Track"
	Artist string `json:"artist,omitempty"`
	Track  string `json:"track,omitempty"`
}

// Normalize replaces missing fields with placeholders so consumers never
// see empty values.
func (m *Metadata) Normalize() *Metadata {
	m.Title = strings.TrimSpace(m.Title)
	m.Uploader = strings.TrimSpace(m.Uploader)
	if m.Title == "" {
		m.Title = UnknownTitle
	}
	if m.Uploader == "" {
		m.Uploader = UnknownUploader
	}
	if m.DurationSeconds < 0 {
		m.DurationSeconds = 0
	}
	if m.Artist == "" || m.Track == "" {
		m.Artist, m.Track = ParseArtistTrack(m.Title, m.Uploader)
	}
	return m
}

// Phase tags a progress event with what the extractor is doing
type Phase string

const (
	PhaseDownloading    Phase = "downloading"
	PhasePostprocessing Phase = "postprocessing"
)

// Progress is one progress report from an audio fetch.
// BytesTotal is zero when the size is unknown.
type Progress struct {
	BytesDone  int64 `json:"bytes_done"`
	BytesTotal int64 `json:"bytes_total,omitempty"`
	Phase      Phase `json:"phase"`
}

// ProgressFunc receives progress synchronously from inside FetchAudio.
// Returning a non-nil error aborts the fetch, and FetchAudio returns that
// error. Implementations must not block.
type ProgressFunc func(Progress) error

// AudioRequest describes one audio fetch
type AudioRequest struct {
	URL string
	// Directory is the destination directory
	Directory string
	// OutputPath is the reserved destination including the .mp3 extension.
	// Extractors may produce a different extension when transcoding is not
	// possible; callers look for alternates next to OutputPath.
	OutputPath string
}

// Extractor fetches metadata and audio for a video link.
//
// Errors are classified with TransientError, PermanentError and
// ErrEmptyResult. Both calls must honour ctx cancellation and enforce a
// socket timeout of their own.
type Extractor interface {
	FetchMetadata(ctx context.Context, url string) (*Metadata, error)
	FetchAudio(ctx context.Context, req AudioRequest, onProgress ProgressFunc) (string, error)
}
