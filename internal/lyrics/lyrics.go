// Package lyrics looks up lyrics for a track from pluggable sources and
// stores them as .lrc sidecars.
package lyrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"

	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
	"github.com/openmusicplayer/bilimusic/internal/library"
	"github.com/openmusicplayer/bilimusic/internal/logger"
)

// Candidate is one set of lyrics offered by a source
type Candidate struct {
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Lyrics   string `json:"lyrics"`
	Synced   bool   `json:"synced"`
	Source   string `json:"source"`
}

// Source searches one lyrics provider
type Source interface {
	Name() string
	Search(ctx context.Context, title, artist string) ([]Candidate, error)
}

// Matcher queries every source in order. A failing source is logged and
// skipped.
type Matcher struct {
	sources []Source
	log     *logger.Logger
}

func NewMatcher(sources ...Source) *Matcher {
	return &Matcher{
		sources: sources,
		log:     logger.Default().WithComponent("lyrics"),
	}
}

// Match returns all candidates, best first. It fails only when every source
// failed or nothing was found.
func (m *Matcher) Match(ctx context.Context, title, artist string) ([]Candidate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperrors.ValidationError("title is required")
	}

	var (
		all      []Candidate
		failures int
	)
	for _, src := range m.sources {
		found, err := apperrors.RetryWithResult(ctx, apperrors.LyricsRetryConfig(), func(ctx context.Context) ([]Candidate, error) {
			return src.Search(ctx, title, artist)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			m.log.Warn(ctx, "lyrics source failed", map[string]interface{}{"source": src.Name(), "error": err.Error()})
			continue
		}
		all = append(all, found...)
	}

	if len(all) == 0 {
		if failures > 0 && failures == len(m.sources) {
			return nil, apperrors.LyricsError("all lyrics sources failed")
		}
		return nil, apperrors.LyricNotFound()
	}

	rank(all, title, artist)
	return all, nil
}

// rank orders candidates by Score, best first
func rank(candidates []Candidate, title, artist string) {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = Score(c, title, artist)
	}
	sort.Stable(byScore{candidates, scores})
}

type byScore struct {
	c []Candidate
	s []float64
}

func (b byScore) Len() int           { return len(b.c) }
func (b byScore) Less(i, j int) bool { return b.s[i] > b.s[j] }
func (b byScore) Swap(i, j int) {
	b.c[i], b.c[j] = b.c[j], b.c[i]
	b.s[i], b.s[j] = b.s[j], b.s[i]
}

var timestampPattern = regexp.MustCompile(`(?m)^\[\d{1,3}:\d{2}(?:[.:]\d{1,3})?\]`)

// IsSynced reports whether content carries LRC line timestamps
func IsSynced(content string) bool {
	return timestampPattern.MatchString(content)
}

// Fold normalises text for comparison: full-width forms become half-width
// and case is folded.
func Fold(s string) string {
	return strings.TrimSpace(cases.Fold().String(width.Fold.String(s)))
}

// SaveLRC writes lyrics next to audioPath, replacing any existing sidecar
// atomically.
func SaveLRC(audioPath, content string) (string, error) {
	dst := library.LyricsPath(audioPath)

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".lyrics-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create lyrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write lyrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write lyrics: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to save lyrics: %w", err)
	}
	return dst, nil
}
