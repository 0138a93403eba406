package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openmusicplayer/bilimusic/internal/db"
	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryStore is the read side of db.HistoryRepository
type HistoryStore interface {
	Get(ctx context.Context, id string) (*db.HistoryRecord, error)
	List(ctx context.Context, opts db.HistoryQueryOptions) ([]db.HistoryRecord, error)
	CountByState(ctx context.Context) (map[string]int, error)
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}

type HistoryHandlers struct {
	store HistoryStore
}

func NewHistoryHandlers(store HistoryStore) *HistoryHandlers {
	return &HistoryHandlers{store: store}
}

type HistoryListResponse struct {
	Records []db.HistoryRecord `json:"records"`
	Counts  map[string]int     `json:"counts"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// ListHistory handles GET /api/v1/history?state=&limit=&offset=
func (h *HistoryHandlers) ListHistory(w http.ResponseWriter, r *http.Request) error {
	opts := db.HistoryQueryOptions{
		State:  r.URL.Query().Get("state"),
		Limit:  parseIntParam(r, "limit", defaultHistoryLimit),
		Offset: parseIntParam(r, "offset", 0),
	}
	if opts.Limit <= 0 || opts.Limit > maxHistoryLimit {
		opts.Limit = defaultHistoryLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	records, err := h.store.List(r.Context(), opts)
	if err != nil {
		return apperrors.DatabaseError("failed to read history").WithCause(err)
	}
	counts, err := h.store.CountByState(r.Context())
	if err != nil {
		return apperrors.DatabaseError("failed to read history").WithCause(err)
	}
	if records == nil {
		records = []db.HistoryRecord{}
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, HistoryListResponse{
		Records: records,
		Counts:  counts,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	return nil
}

// GetHistory handles GET /api/v1/history/{id}
func (h *HistoryHandlers) GetHistory(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, db.ErrHistoryNotFound) {
			return apperrors.NotFound("history record")
		}
		return apperrors.DatabaseError("failed to read history").WithCause(err)
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, rec)
	return nil
}

// PruneHistory handles DELETE /api/v1/history?before=<RFC3339>
func (h *HistoryHandlers) PruneHistory(w http.ResponseWriter, r *http.Request) error {
	before, err := time.Parse(time.RFC3339, r.URL.Query().Get("before"))
	if err != nil {
		return apperrors.ValidationError("before must be an RFC3339 timestamp")
	}

	n, err := h.store.DeleteBefore(r.Context(), before)
	if err != nil {
		return apperrors.DatabaseError("failed to prune history").WithCause(err)
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]int64{"deleted": n})
	return nil
}

func parseIntParam(r *http.Request, name string, defaultValue int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return defaultValue
	}
	return v
}
