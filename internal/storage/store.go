// Package storage persists accepted items and page snapshots in SQLite.
// Deduplication rides on a UNIQUE content hash: SaveIfNew inserts with
// INSERT OR IGNORE and reports whether the row landed.
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config selects the database location.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open creates the database file (and parent directories) if needed, applies
// pragmas and migrations, and returns a ready store.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Fingerprint hashes the stable identity of an item: its title, lower-cased
// and space-normalized, plus the date part of the published timestamp. Edits
// to spacing or capitalization do not defeat dedup; same-title items a day
// apart are still distinct.
func Fingerprint(item domain.Item) string {
	title := strings.ToLower(strings.Join(strings.Fields(item.Title), " "))
	date := item.PublishedAt
	if len(date) > 10 {
		date = date[:10]
	}
	sum := sha256.Sum256([]byte(title + "|" + date))
	return hex.EncodeToString(sum[:])
}

// SaveIfNew persists the item unless its fingerprint already exists. It
// returns true when the item is new.
func (s *Store) SaveIfNew(ctx context.Context, item domain.Item) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("store is closed")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entries(source, title, url, summary, published_at, content_hash, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		item.Source, item.Title, item.URL, item.Summary, item.PublishedAt,
		Fingerprint(item), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SnapshotHash returns the stored page hash for a watched source, or "" when
// the source has never been seen.
func (s *Store) SnapshotHash(ctx context.Context, source string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT page_hash FROM snapshots WHERE source = ?`, source,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// UpsertSnapshot records the latest page hash for a watched source.
func (s *Store) UpsertSnapshot(ctx context.Context, source, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots(source, page_hash, last_checked_at) VALUES(?,?,?)
		 ON CONFLICT(source) DO UPDATE SET page_hash=excluded.page_hash, last_checked_at=excluded.last_checked_at`,
		source, hash, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// PruneOlderThan deletes entries created before the cutoff and returns the
// number of rows removed.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
