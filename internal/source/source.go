// Package source defines the content items the monitor watches.
package source

import "context"

// Item is a published post as seen by the monitor. Items are never mutated.
type Item struct {
	ID    int64
	Title string
	Link  string
}

// Fetcher returns up to n of the most recent items. Order is irrelevant: the
// monitor re-derives it from item ids.
type Fetcher interface {
	FetchLatest(ctx context.Context, n int) ([]Item, error)
}
