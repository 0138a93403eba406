package api

import (
	"net/http"
	"strings"

	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
	"github.com/openmusicplayer/bilimusic/internal/library"
	"github.com/openmusicplayer/bilimusic/internal/lyrics"
)

// lyricsSearchLimit caps the candidates returned by a search
const lyricsSearchLimit = 10

type LyricsHandlers struct {
	matcher *lyrics.Matcher
	library *library.Library
}

func NewLyricsHandlers(matcher *lyrics.Matcher, lib *library.Library) *LyricsHandlers {
	return &LyricsHandlers{matcher: matcher, library: lib}
}

type LyricsSearchResponse struct {
	Candidates []lyrics.Candidate `json:"candidates"`
}

// SaveLyricsRequest attaches lyrics to a library track. Without Lyrics the
// best match for Title/Artist (default: the track's tags) is saved.
type SaveLyricsRequest struct {
	Path   string `json:"path"`
	Lyrics string `json:"lyrics,omitempty"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
}

type SaveLyricsResponse struct {
	Path   string `json:"path"`
	Source string `json:"source,omitempty"`
	Synced bool   `json:"synced"`
}

// Search handles GET /api/v1/lyrics?title=&artist=
func (h *LyricsHandlers) Search(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	candidates, err := h.matcher.Match(r.Context(), q.Get("title"), q.Get("artist"))
	if err != nil {
		return err
	}
	if len(candidates) > lyricsSearchLimit {
		candidates = candidates[:lyricsSearchLimit]
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, LyricsSearchResponse{Candidates: candidates})
	return nil
}

// Save handles POST /api/v1/lyrics
func (h *LyricsHandlers) Save(w http.ResponseWriter, r *http.Request) error {
	var req SaveLyricsRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.Path == "" {
		return apperrors.ValidationError("path is required")
	}

	track, err := h.library.Get(req.Path)
	if err != nil {
		return libraryError(err)
	}

	resp := SaveLyricsResponse{Synced: lyrics.IsSynced(req.Lyrics)}
	content := req.Lyrics
	if strings.TrimSpace(content) == "" {
		title, artist := req.Title, req.Artist
		if title == "" {
			title = track.Title
		}
		if artist == "" && track.Artist != library.UnknownArtist {
			artist = track.Artist
		}

		candidates, err := h.matcher.Match(r.Context(), title, artist)
		if err != nil {
			return err
		}
		best := candidates[0]
		content, resp.Source, resp.Synced = best.Lyrics, best.Source, best.Synced
	}

	resp.Path, err = lyrics.SaveLRC(track.Path, content)
	if err != nil {
		return apperrors.FilesystemError("failed to save lyrics").WithCause(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusCreated, resp)
	return nil
}
