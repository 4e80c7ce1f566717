package storage

import (
	"context"
	"errors"
	"strings"

	logx "postwatch/pkg/logx"
)

// Store is the cursor persistence API used by the monitor.
//
// Load returns an unset Cursor and a nil error when no state exists yet.
// Any other failure (unreadable or corrupt state) is returned as an error; the
// caller decides how to degrade.
type Store interface {
	Load(ctx context.Context) (Cursor, error)
	Save(ctx context.Context, c Cursor) error
	Close() error
}

// Open initializes the configured store. An empty driver selects "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
