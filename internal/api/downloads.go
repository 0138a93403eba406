package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/openmusicplayer/bilimusic/internal/download"
	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
)

// Jobs is the part of download.Scheduler the API drives
type Jobs interface {
	Submit(req download.Request) (download.JobID, error)
	Get(id download.JobID) (download.Snapshot, bool)
	List() []download.Snapshot
	Cancel(id download.JobID)
	CancelAll()
	PauseAll()
	ResumeAll()
	ClearFinished() []download.JobID
}

type DownloadHandlers struct {
	jobs       Jobs
	defaultDir string
}

func NewDownloadHandlers(jobs Jobs, defaultDir string) *DownloadHandlers {
	return &DownloadHandlers{jobs: jobs, defaultDir: defaultDir}
}

// CreateDownloadRequest accepts a single url, a list, or both
type CreateDownloadRequest struct {
	URL       string   `json:"url,omitempty"`
	URLs      []string `json:"urls,omitempty"`
	Directory string   `json:"directory,omitempty"`
}

type CreateDownloadResponse struct {
	JobIDs []download.JobID `json:"job_ids"`
}

type JobListResponse struct {
	Jobs  []download.Snapshot `json:"jobs"`
	Total int                 `json:"total"`
}

// CreateDownload handles POST /api/v1/downloads. URLs are not checked here;
// a job with a bad URL fails in its validating phase like any other job.
func (h *DownloadHandlers) CreateDownload(w http.ResponseWriter, r *http.Request) error {
	var req CreateDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}

	urls := make([]string, 0, len(req.URLs)+1)
	for _, u := range append([]string{req.URL}, req.URLs...) {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return apperrors.ValidationError("url is required")
	}

	dir, err := h.resolveDirectory(req.Directory)
	if err != nil {
		return err
	}

	ids := make([]download.JobID, 0, len(urls))
	for _, u := range urls {
		id, err := h.jobs.Submit(download.Request{URL: u, Directory: dir})
		if err != nil {
			if errors.Is(err, download.ErrClosed) {
				return apperrors.ShuttingDown()
			}
			return err
		}
		ids = append(ids, id)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusAccepted, CreateDownloadResponse{JobIDs: ids})
	return nil
}

// resolveDirectory maps a requested destination under the default download
// directory. Relative paths are taken from there; anything that escapes it
// is refused.
func (h *DownloadHandlers) resolveDirectory(requested string) (string, error) {
	root := filepath.Clean(h.defaultDir)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if requested == "" {
		return root, nil
	}

	dir := requested
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.Forbidden("directory is outside the download directory")
	}
	return dir, nil
}

// ListDownloads handles GET /api/v1/downloads. ?state= filters by state,
// ?active=true keeps only unfinished jobs.
func (h *DownloadHandlers) ListDownloads(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	state := download.State(q.Get("state"))
	activeOnly := q.Get("active") == "true"

	jobs := make([]download.Snapshot, 0)
	for _, snap := range h.jobs.List() {
		if state != "" && snap.State != state {
			continue
		}
		if activeOnly && !snap.State.IsActive() {
			continue
		}
		jobs = append(jobs, snap)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, JobListResponse{Jobs: jobs, Total: len(jobs)})
	return nil
}

// GetDownload handles GET /api/v1/downloads/{id}
func (h *DownloadHandlers) GetDownload(w http.ResponseWriter, r *http.Request) error {
	snap, ok := h.jobs.Get(download.JobID(r.PathValue("id")))
	if !ok {
		return apperrors.JobNotFound()
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, snap)
	return nil
}

// CancelDownload handles DELETE /api/v1/downloads/{id}. Cancelling a
// finished job is a no-op and still returns its snapshot.
func (h *DownloadHandlers) CancelDownload(w http.ResponseWriter, r *http.Request) error {
	id := download.JobID(r.PathValue("id"))
	if _, ok := h.jobs.Get(id); !ok {
		return apperrors.JobNotFound()
	}

	h.jobs.Cancel(id)

	snap, _ := h.jobs.Get(id)
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusAccepted, snap)
	return nil
}

// PauseAll handles POST /api/v1/downloads/pause
func (h *DownloadHandlers) PauseAll(w http.ResponseWriter, r *http.Request) error {
	h.jobs.PauseAll()
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// ResumeAll handles POST /api/v1/downloads/resume
func (h *DownloadHandlers) ResumeAll(w http.ResponseWriter, r *http.Request) error {
	h.jobs.ResumeAll()
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// CancelAll handles POST /api/v1/downloads/cancel
func (h *DownloadHandlers) CancelAll(w http.ResponseWriter, r *http.Request) error {
	h.jobs.CancelAll()
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// ClearFinished handles POST /api/v1/downloads/clear
func (h *DownloadHandlers) ClearFinished(w http.ResponseWriter, r *http.Request) error {
	removed := h.jobs.ClearFinished()
	if removed == nil {
		removed = []download.JobID{}
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
	return nil
}
