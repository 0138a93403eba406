package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
	"github.com/openmusicplayer/bilimusic/internal/library"
	"github.com/openmusicplayer/bilimusic/internal/tags"
)

type LibraryHandlers struct {
	library *library.Library
}

func NewLibraryHandlers(lib *library.Library) *LibraryHandlers {
	return &LibraryHandlers{library: lib}
}

type LibraryTrackResponse struct {
	library.Track
	SizeLabel string `json:"size_label"`
}

type LibraryListResponse struct {
	Root   string                 `json:"root"`
	Tracks []LibraryTrackResponse `json:"tracks"`
	Total  int                    `json:"total"`
}

type RenameRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

type MoveRequest struct {
	Path      string `json:"path"`
	Directory string `json:"directory"`
}

type DeleteRequest struct {
	Path string `json:"path"`
}

type UpdateTagsRequest struct {
	Path   string `json:"path"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Genre  string `json:"genre,omitempty"`
	Year   string `json:"year,omitempty"`
}

type PathResponse struct {
	Path string `json:"path"`
}

// GetLibrary handles GET /api/v1/library. ?q= filters by a case-insensitive
// substring of name, title or artist.
func (h *LibraryHandlers) GetLibrary(w http.ResponseWriter, r *http.Request) error {
	tracks, err := h.library.Scan(r.Context())
	if err != nil {
		return apperrors.FilesystemError("failed to scan library").WithCause(err)
	}

	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	resp := LibraryListResponse{Root: h.library.Root, Tracks: make([]LibraryTrackResponse, 0, len(tracks))}
	for _, t := range tracks {
		if q != "" && !matchesQuery(t, q) {
			continue
		}
		resp.Tracks = append(resp.Tracks, LibraryTrackResponse{Track: t, SizeLabel: library.FormatFileSize(t.Size)})
	}
	resp.Total = len(resp.Tracks)

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, resp)
	return nil
}

func matchesQuery(t library.Track, q string) bool {
	return strings.Contains(strings.ToLower(t.Name), q) ||
		strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Artist), q)
}

// Rename handles POST /api/v1/library/rename
func (h *LibraryHandlers) Rename(w http.ResponseWriter, r *http.Request) error {
	var req RenameRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.Path == "" || strings.TrimSpace(req.Name) == "" {
		return apperrors.ValidationError("path and name are required")
	}

	path, err := h.library.Rename(req.Path, req.Name)
	if err != nil {
		return libraryError(err)
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, PathResponse{Path: path})
	return nil
}

// Move handles POST /api/v1/library/move
func (h *LibraryHandlers) Move(w http.ResponseWriter, r *http.Request) error {
	var req MoveRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.Path == "" || req.Directory == "" {
		return apperrors.ValidationError("path and directory are required")
	}

	path, err := h.library.Move(req.Path, req.Directory)
	if err != nil {
		return libraryError(err)
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, PathResponse{Path: path})
	return nil
}

// Delete handles POST /api/v1/library/delete
func (h *LibraryHandlers) Delete(w http.ResponseWriter, r *http.Request) error {
	var req DeleteRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.Path == "" {
		return apperrors.ValidationError("path is required")
	}

	if err := h.library.Delete(req.Path); err != nil {
		return libraryError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// UpdateTags handles PUT /api/v1/library/tags. Empty fields are left alone.
func (h *LibraryHandlers) UpdateTags(w http.ResponseWriter, r *http.Request) error {
	var req UpdateTagsRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.Path == "" {
		return apperrors.ValidationError("path is required")
	}

	update := tags.Tags{Title: req.Title, Artist: req.Artist, Album: req.Album, Genre: req.Genre, Year: req.Year}
	if update.IsZero() {
		return apperrors.ValidationError("at least one tag is required")
	}

	track, err := h.library.UpdateTags(req.Path, update)
	if err != nil {
		return libraryError(err)
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, track)
	return nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	return nil
}

// libraryError maps library and tag failures onto API errors
func libraryError(err error) error {
	switch {
	case errors.Is(err, library.ErrNotFound):
		return apperrors.FileNotFound()
	case errors.Is(err, library.ErrOutsideLibrary):
		return apperrors.Forbidden("path is outside the library")
	case errors.Is(err, library.ErrNotAudio):
		return apperrors.ValidationError("not an audio file")
	case errors.Is(err, library.ErrExists):
		return apperrors.Conflict("a file with that name already exists")
	case errors.Is(err, tags.ErrUnsupportedFormat):
		return apperrors.ValidationError("tag editing is not supported for this format")
	}
	return apperrors.FilesystemError(err.Error()).WithCause(err)
}
