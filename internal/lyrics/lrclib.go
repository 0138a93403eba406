package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
)

const (
	DefaultLRCLibEndpoint = "https://lrclib.net"
	userAgent             = "bilimusic (https://github.com/openmusicplayer/bilimusic)"
)

// LRCLibSource searches the lrclib.net public API
type LRCLibSource struct {
	endpoint string
	client   *http.Client
}

func NewLRCLibSource(endpoint string, client *http.Client) *LRCLibSource {
	if endpoint == "" {
		endpoint = DefaultLRCLibEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &LRCLibSource{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

func (s *LRCLibSource) Name() string { return "lrclib" }

type lrclibRecord struct {
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

func (s *LRCLibSource) Search(ctx context.Context, title, artist string) ([]Candidate, error) {
	q := url.Values{}
	q.Set("track_name", title)
	if artist != "" {
		q.Set("artist_name", artist)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/api/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.LyricsError("lrclib request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("lrclib returned %d", resp.StatusCode)
		if apperrors.HTTPRetryableStatus(resp.StatusCode) {
			return nil, apperrors.LyricsError(msg)
		}
		// Client category so the retry loop gives up immediately
		return nil, apperrors.New(apperrors.CodeLyricsError, msg, apperrors.CategoryClient, http.StatusBadGateway)
	}

	var records []lrclibRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, apperrors.LyricsError("invalid lrclib response").WithCause(err)
	}

	candidates := make([]Candidate, 0, len(records))
	for _, r := range records {
		if r.Instrumental {
			continue
		}
		c := Candidate{
			Title:    r.TrackName,
			Artist:   r.ArtistName,
			Album:    r.AlbumName,
			Duration: int(r.Duration),
			Source:   s.Name(),
		}
		switch {
		case r.SyncedLyrics != "":
			c.Lyrics, c.Synced = r.SyncedLyrics, true
		case r.PlainLyrics != "":
			c.Lyrics = r.PlainLyrics
		default:
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}
