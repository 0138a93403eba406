package ytdlp

import (
	"math"

	"github.com/openmusicplayer/bilimusic/internal/extract"
)

// YtdlpOutput represents the JSON output from yt-dlp --dump-json
type YtdlpOutput struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Uploader     string  `json:"uploader"`
	UploaderID   string  `json:"uploader_id"`
	Channel      string  `json:"channel"`
	Duration     float64 `json:"duration"`
	Thumbnail    string  `json:"thumbnail"`
	WebpageURL   string  `json:"webpage_url"`
	Extractor    string  `json:"extractor"`
	ExtractorKey string  `json:"extractor_key"`
	Description  string  `json:"description"`
	Artist       string  `json:"artist"`
	Track        string  `json:"track"`
	Filesize     int64   `json:"filesize"`
	FilesizeApx  int64   `json:"filesize_approx"`
}

// ToMetadata converts YtdlpOutput to extract.Metadata with parsed artist/track
func (o *YtdlpOutput) ToMetadata() *extract.Metadata {
	uploader := o.Uploader
	if uploader == "" {
		uploader = o.Channel
	}

	m := &extract.Metadata{
		ID:              o.ID,
		Title:           o.Title,
		Uploader:        uploader,
		DurationSeconds: int(math.Round(o.Duration)),
	}

	// Prefer artist/track tags reported by the site over title parsing
	if o.Artist != "" {
		m.Artist = o.Artist
		m.Track = o.Track
		if m.Track == "" {
			m.Track = extract.CleanTrackName(o.Title)
		}
	}

	return m.Normalize()
}
