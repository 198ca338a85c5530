package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/apperr"
	"github.com/benchscope/benchscope/pkg/logger"
	"github.com/benchscope/benchscope/pkg/urlutil"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS notification_history (
	url_key        TEXT PRIMARY KEY,
	notify_count   INTEGER NOT NULL DEFAULT 0,
	first_notified TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_notified  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	title          TEXT NOT NULL DEFAULT ''
);
`

// SQLiteHistoryStore tracks per-URL notification counts so repeat pushes get
// suppressed. Keys are canonical URLs.
type SQLiteHistoryStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewSQLiteHistoryStore opens (and migrates) the history database at path.
func NewSQLiteHistoryStore(path string, log *logger.Logger) (*SQLiteHistoryStore, error) {
	if log == nil {
		log = logger.Default()
	}
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, apperr.DatabaseError("open history db", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, apperr.DatabaseError("migrate history db", err)
	}
	return &SQLiteHistoryStore{db: db, log: log}, nil
}

var _ out.NotificationHistory = (*SQLiteHistoryStore)(nil)

// Close closes the underlying database.
func (s *SQLiteHistoryStore) Close() error { return s.db.Close() }

// DB exposes the underlying pool for monitoring.
func (s *SQLiteHistoryStore) DB() *sql.DB { return s.db.DB }

// NotifyCount returns how many times the URL has been notified.
func (s *SQLiteHistoryStore) NotifyCount(ctx context.Context, url string) (int, error) {
	key := urlutil.Canonicalize(url)
	if key == "" {
		return 0, nil
	}

	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT notify_count FROM notification_history WHERE url_key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, apperr.DatabaseError("query notify count", err)
	}
	return count, nil
}

// IncrementBatch bumps counters for notified items, inserting new rows as
// needed, and returns the number of rows touched.
func (s *SQLiteHistoryStore) IncrementBatch(ctx context.Context, items []out.NotifiedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperr.DatabaseError("begin history tx", err)
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO notification_history (url_key, notify_count, title)
		VALUES (?, 1, ?)
		ON CONFLICT(url_key) DO UPDATE SET
			notify_count = notify_count + 1,
			last_notified = CURRENT_TIMESTAMP,
			title = excluded.title`

	updated := 0
	for _, item := range items {
		key := urlutil.Canonicalize(item.URL)
		if key == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, key, item.Title); err != nil {
			return updated, apperr.DatabaseError("upsert history row", err)
		}
		updated++
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.DatabaseError("commit history tx", err)
	}
	return updated, nil
}
