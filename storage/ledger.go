package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger is the durable per-video download state tracker, backed by SQLite.
// SQLite serializes writes, and every mutation is a single guarded statement,
// so concurrent upserts for the same video ID cannot lose updates while
// distinct video IDs never interfere with each other.
type Ledger struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS downloads (
	video_id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	published_at TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'not_retrieved',
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_attempt_at TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_downloads_channel ON downloads(channel_id);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
`

// OpenLedger opens (creating if necessary) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &StorageError{Op: "open", Entity: "ledger", ID: path, Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "ledger", ID: path, Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Entity: "ledger", ID: path, Err: err}
	}

	// WAL mode and a busy timeout keep concurrent pipeline workers from
	// tripping over SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Entity: "ledger", ID: path, Err: err}
	}

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Entity: "ledger", ID: path, Err: err}
	}

	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ensure creates a NotRetrieved record for the video if none exists yet.
// Existing records are left untouched, whatever their state.
func (l *Ledger) Ensure(ctx context.Context, videoID, channelID, title string, publishedAt time.Time) error {
	if videoID == "" {
		return &StorageError{Op: "create", Entity: "download", Err: ErrInvalidInput}
	}

	now := timeToDB(time.Now())
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO downloads (video_id, channel_id, title, published_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO NOTHING`,
		videoID, channelID, title, timeToDB(publishedAt), StatusNotRetrieved, now, now)
	if err != nil {
		return &StorageError{Op: "create", Entity: "download", ID: videoID, Err: err}
	}
	return nil
}

// RecordAttempt records the outcome of one fetch attempt. Failures increment
// the attempt count and stamp the attempt time, leaving status unchanged.
// A success additionally transitions NotRetrieved to RetrievedNotWatched;
// re-recording a success for an already-retrieved video is a no-op, so the
// duplicate neither re-transitions nor inflates the attempt count.
func (l *Ledger) RecordAttempt(ctx context.Context, videoID string, success bool, at time.Time) error {
	if !success {
		res, err := l.db.ExecContext(ctx, `
			UPDATE downloads
			SET attempt_count = attempt_count + 1, last_attempt_at = ?, updated_at = ?
			WHERE video_id = ?`,
			timeToDB(at), timeToDB(time.Now()), videoID)
		if err != nil {
			return &StorageError{Op: "update", Entity: "download", ID: videoID, Err: err}
		}
		return l.requireRow(res, videoID)
	}

	res, err := l.db.ExecContext(ctx, `
		UPDATE downloads
		SET status = ?, attempt_count = attempt_count + 1, last_attempt_at = ?, updated_at = ?
		WHERE video_id = ? AND status = ?`,
		StatusRetrievedNotWatched, timeToDB(at), timeToDB(time.Now()), videoID, StatusNotRetrieved)
	if err != nil {
		return &StorageError{Op: "update", Entity: "download", ID: videoID, Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: "update", Entity: "download", ID: videoID, Err: err}
	}
	if n == 0 {
		// Either already retrieved (idempotent success) or unknown video.
		if _, err := l.Get(ctx, videoID); err != nil {
			return err
		}
	}
	return nil
}

// MarkWatched transitions a retrieved video to Watched. This is the entry
// point for the external consumer; the fetch pipeline never calls it.
// Marking an already-watched video is a no-op.
func (l *Ledger) MarkWatched(ctx context.Context, videoID string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE downloads
		SET status = ?, updated_at = ?
		WHERE video_id = ? AND status = ?`,
		StatusWatched, timeToDB(time.Now()), videoID, StatusRetrievedNotWatched)
	if err != nil {
		return &StorageError{Op: "update", Entity: "download", ID: videoID, Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: "update", Entity: "download", ID: videoID, Err: err}
	}
	if n == 0 {
		rec, err := l.Get(ctx, videoID)
		if err != nil {
			return err
		}
		if rec.Status == StatusWatched {
			return nil
		}
		return &StorageError{Op: "update", Entity: "download", ID: videoID, Err: ErrInvalidInput}
	}
	return nil
}

// Get retrieves a download record by video ID.
func (l *Ledger) Get(ctx context.Context, videoID string) (*DownloadRecord, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT video_id, channel_id, title, published_at, status, attempt_count, last_attempt_at, created_at, updated_at
		FROM downloads WHERE video_id = ?`, videoID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &StorageError{Op: "read", Entity: "download", ID: videoID, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "read", Entity: "download", ID: videoID, Err: err}
	}
	return rec, nil
}

// ListByStatus retrieves all records with the given status, newest first.
func (l *Ledger) ListByStatus(ctx context.Context, status string) ([]*DownloadRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT video_id, channel_id, title, published_at, status, attempt_count, last_attempt_at, created_at, updated_at
		FROM downloads WHERE status = ? ORDER BY published_at DESC`, status)
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "download", Err: err}
	}
	defer rows.Close()

	var records []*DownloadRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Op: "read", Entity: "download", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read", Entity: "download", Err: err}
	}
	return records, nil
}

// Summarize returns per-status record counts.
func (l *Ledger) Summarize(ctx context.Context) (Summary, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM downloads GROUP BY status`)
	if err != nil {
		return Summary{}, &StorageError{Op: "read", Entity: "ledger", Err: err}
	}
	defer rows.Close()

	var s Summary
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, &StorageError{Op: "read", Entity: "ledger", Err: err}
		}
		switch status {
		case StatusNotRetrieved:
			s.NotRetrieved = count
		case StatusRetrievedNotWatched:
			s.RetrievedNotWatched = count
		case StatusWatched:
			s.Watched = count
		default:
			return Summary{}, &StorageError{Op: "read", Entity: "ledger", Err: fmt.Errorf("%w: unknown status %q", ErrStorageCorrupt, status)}
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, &StorageError{Op: "read", Entity: "ledger", Err: err}
	}
	return s, nil
}

func (l *Ledger) requireRow(res sql.Result, videoID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: "update", Entity: "download", ID: videoID, Err: err}
	}
	if n == 0 {
		return &StorageError{Op: "update", Entity: "download", ID: videoID, Err: ErrNotFound}
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*DownloadRecord, error) {
	var rec DownloadRecord
	var publishedAt, lastAttemptAt, createdAt, updatedAt string
	if err := s.Scan(&rec.VideoID, &rec.ChannelID, &rec.Title, &publishedAt,
		&rec.Status, &rec.AttemptCount, &lastAttemptAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.PublishedAt = timeFromDB(publishedAt)
	rec.LastAttemptAt = timeFromDB(lastAttemptAt)
	rec.CreatedAt = timeFromDB(createdAt)
	rec.UpdatedAt = timeFromDB(updatedAt)
	return &rec, nil
}

// Timestamps are stored as RFC3339 text in UTC; the zero time maps to the
// empty string.
func timeToDB(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func timeFromDB(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
