package storage

import (
	"errors"
	"strconv"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON state file at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Cursor is the optional id of the most recently processed post.
type Cursor struct {
	ID    int64
	Valid bool
}

func CursorAt(id int64) Cursor { return Cursor{ID: id, Valid: true} }

// Before reports whether id is newer than the cursor. An unset cursor precedes everything.
func (c Cursor) Before(id int64) bool { return !c.Valid || id > c.ID }

func (c Cursor) String() string {
	if !c.Valid {
		return "unset"
	}
	return strconv.FormatInt(c.ID, 10)
}

// stateRecord is the on-disk shape of the file driver.
type stateRecord struct {
	LastPostID *int64 `json:"last_post_id"`
}

func (r stateRecord) cursor() Cursor {
	if r.LastPostID == nil {
		return Cursor{}
	}
	return CursorAt(*r.LastPostID)
}

func recordOf(c Cursor) stateRecord {
	if !c.Valid {
		return stateRecord{}
	}
	id := c.ID
	return stateRecord{LastPostID: &id}
}
