package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrHistoryNotFound = errors.New("history record not found")

// HistoryRecord is the final outcome of one download job
type HistoryRecord struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Directory    string     `json:"directory"`
	State        string     `json:"state"`
	Title        string     `json:"title,omitempty"`
	Uploader     string     `json:"uploader,omitempty"`
	Path         string     `json:"path,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type HistoryQueryOptions struct {
	State  string
	Limit  int
	Offset int
}

type HistoryRepository struct {
	db *DB
}

func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Save inserts or replaces the record with the same ID
func (r *HistoryRepository) Save(ctx context.Context, rec *HistoryRecord) error {
	query := r.db.Rebind(`
		INSERT INTO download_history (id, url, directory, state, title, uploader, path, error_code, error_message, attempts, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			title = excluded.title,
			uploader = excluded.uploader,
			path = excluded.path,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			attempts = excluded.attempts,
			finished_at = excluded.finished_at
	`)

	var finishedAt sql.NullTime
	if rec.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: rec.FinishedAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.URL, rec.Directory, rec.State, rec.Title, rec.Uploader, rec.Path,
		rec.ErrorCode, rec.ErrorMessage, rec.Attempts, rec.CreatedAt.UTC(), finishedAt,
	)
	return err
}

const historyColumns = `id, url, directory, state, title, uploader, path, error_code, error_message, attempts, created_at, finished_at`

func scanHistory(row interface{ Scan(...any) error }) (*HistoryRecord, error) {
	rec := &HistoryRecord{}
	var finishedAt sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.URL, &rec.Directory, &rec.State, &rec.Title, &rec.Uploader, &rec.Path,
		&rec.ErrorCode, &rec.ErrorMessage, &rec.Attempts, &rec.CreatedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	return rec, nil
}

func (r *HistoryRepository) Get(ctx context.Context, id string) (*HistoryRecord, error) {
	query := r.db.Rebind(`SELECT ` + historyColumns + ` FROM download_history WHERE id = $1`)

	rec, err := scanHistory(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHistoryNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns records newest first
func (r *HistoryRepository) List(ctx context.Context, opts HistoryQueryOptions) ([]HistoryRecord, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 500 {
		opts.Limit = 500
	}

	query := `SELECT ` + historyColumns + ` FROM download_history`
	args := []interface{}{}
	if opts.State != "" {
		query += ` WHERE state = $1`
		args = append(args, opts.State)
	}
	query += ` ORDER BY created_at DESC, id LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// CountByState returns how many records ended in each state
func (r *HistoryRepository) CountByState(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM download_history GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// DeleteBefore prunes records created before t
func (r *HistoryRepository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM download_history WHERE created_at < $1`), t.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return itoa(n/10) + string(rune('0'+n%10))
}
