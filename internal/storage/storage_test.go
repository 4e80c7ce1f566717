package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "postwatch/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	stores := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "state", "last_post_data.json")},
		{Driver: "sqlite", Path: filepath.Join(dir, "db", "postwatch.db")},
	} {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		stores[cfg.Driver] = st
	}
	return stores
}

func TestCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load on empty store: %v", err)
			}
			if got.Valid {
				t.Fatalf("expected unset cursor, got %v", got)
			}

			for _, c := range []Cursor{CursorAt(10), CursorAt(13), {}, CursorAt(1 << 40)} {
				if err := st.Save(ctx, c); err != nil {
					t.Fatalf("Save(%v): %v", c, err)
				}
				got, err := st.Load(ctx)
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if got != c {
					t.Fatalf("round trip = %v, want %v", got, c)
				}
			}
		})
	}
}

func TestFileStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_post_data.json")
	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Save(context.Background(), CursorAt(42)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.TrimSpace(string(b)); got != `{"last_post_id":42}` {
		t.Fatalf("state file = %s", got)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileStoreReadsNullAndRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	nullPath := filepath.Join(dir, "null.json")
	if err := os.WriteFile(nullPath, []byte(`{"last_post_id": null}`), 0o644); err != nil {
		t.Fatal(err)
	}
	st, _ := Open(Config{Path: nullPath}, logx.Nop())
	if c, err := st.Load(ctx); err != nil || c.Valid {
		t.Fatalf("Load(null) = %v, %v", c, err)
	}

	badPath := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badPath, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	st, _ = Open(Config{Path: badPath}, logx.Nop())
	if _, err := st.Load(ctx); err == nil {
		t.Fatal("expected parse error for corrupt state file")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Open(none) = %v, want ErrDisabled", err)
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty file path")
	}
}

func TestCursorBefore(t *testing.T) {
	if !(Cursor{}).Before(1) {
		t.Fatal("unset cursor must precede every id")
	}
	c := CursorAt(10)
	if c.Before(10) || c.Before(9) || !c.Before(11) {
		t.Fatalf("unexpected ordering for %v", c)
	}
}
