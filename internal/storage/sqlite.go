package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "postwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// cursorName keys the single cursor row; the table can hold more if the
// monitor ever tracks several sources.
const cursorName = "posts"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (Cursor, error) {
	if s == nil || s.db == nil {
		return Cursor{}, ErrDisabled
	}
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT last_post_id FROM cursor WHERE name = ?`, cursorName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	if !id.Valid {
		return Cursor{}, nil
	}
	return CursorAt(id.Int64), nil
}

func (s *sqliteStore) Save(ctx context.Context, c Cursor) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	id := sql.NullInt64{Int64: c.ID, Valid: c.Valid}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursor(name, last_post_id, updated_at) VALUES(?,?,?)
		 ON CONFLICT(name) DO UPDATE SET last_post_id=excluded.last_post_id, updated_at=excluded.updated_at`,
		cursorName, id, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
