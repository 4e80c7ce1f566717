// Package monitor implements the polling loop that turns newly published
// posts into notifications.
//
// # Delivery policy
//
// The monitor is deliberately at-most-once:
//
//   - On first run the cursor is seeded from the newest existing post, so the
//     backlog is never announced.
//   - The cursor is advanced and persisted before the notifications of a cycle
//     are sent. A crash mid-cycle can lose notifications but never repeat them.
//   - A failed delivery is logged and not retried.
//
// Only the newest BatchSize posts are inspected per cycle. When more than
// BatchSize posts are published between two cycles the older ones are never
// announced; the monitor logs a warning when a batch looks saturated.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"postwatch/internal/eventbus"
	"postwatch/internal/monitor/schedule"
	"postwatch/internal/source"
	"postwatch/internal/storage"
	logx "postwatch/pkg/logx"
)

const (
	DefaultBatchSize = 5
	DefaultInterval  = 600 * time.Second
)

// State is the monitor lifecycle state.
type State int

const (
	StateSeeding State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "seeding"
}

// Notifier delivers one notification per item.
type Notifier interface {
	Notify(ctx context.Context, item source.Item) error
}

// Watchdog is pinged after every cycle (systemd in production).
type Watchdog interface {
	Watchdog()
}

type Deps struct {
	Store    storage.Store
	Source   source.Fetcher
	Notifier Notifier
	Log      logx.Logger
	Bus      eventbus.Bus
	Watchdog Watchdog
}

type Options struct {
	BatchSize int
	Schedule  schedule.Schedule
}

// CycleResult summarises one poll cycle.
type CycleResult struct {
	ID       string
	Started  time.Time
	Took     time.Duration
	Fetched  int
	New      int
	Sent     int
	Failed   int
	Prev     storage.Cursor
	Next     storage.Cursor
	FetchErr error
	// Saturated is set when every fetched item was new, so older posts may have been skipped.
	Saturated bool
}

// SeedEvent is published once the initial cursor is known.
type SeedEvent struct {
	Cursor storage.Cursor `json:"cursor"`
	Source string         `json:"source"` // "store" | "latest" | "none"
}

// Monitor owns the cursor and runs the fetch, diff, notify, persist, sleep loop.
//
// Cycle and Seed must be called from a single goroutine; Run does that.
type Monitor struct {
	store    storage.Store
	source   source.Fetcher
	notifier Notifier
	log      logx.Logger
	bus      eventbus.Bus
	watchdog Watchdog

	mu        sync.Mutex
	cursor    storage.Cursor
	state     State
	batchSize int
	sched     schedule.Schedule
}

func New(deps Deps, opts Options) (*Monitor, error) {
	if deps.Store == nil || deps.Source == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("monitor: store, source and notifier are required")
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Monitor{
		store:    deps.Store,
		source:   deps.Source,
		notifier: deps.Notifier,
		log:      log,
		bus:      deps.Bus,
		watchdog: deps.Watchdog,
		state:    StateSeeding,
	}
	m.SetBatchSize(opts.BatchSize)
	m.SetSchedule(opts.Schedule)
	return m, nil
}

// Cursor returns the current in-memory cursor.
func (m *Monitor) Cursor() storage.Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetSchedule changes the poll schedule. It takes effect at the next wait.
func (m *Monitor) SetSchedule(s schedule.Schedule) {
	if s.IsZero() {
		s = schedule.Every(DefaultInterval)
	}
	m.mu.Lock()
	m.sched = s
	m.mu.Unlock()
}

// SetBatchSize changes how many recent posts each cycle inspects.
func (m *Monitor) SetBatchSize(n int) {
	if n <= 0 {
		n = DefaultBatchSize
	}
	m.mu.Lock()
	m.batchSize = n
	m.mu.Unlock()
}

func (m *Monitor) settings() (int, schedule.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchSize, m.sched
}

func (m *Monitor) setCursor(c storage.Cursor) {
	m.mu.Lock()
	m.cursor = c
	m.mu.Unlock()
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Seed loads the persisted cursor. When there is none (missing, null or
// unreadable state) it seeds the cursor from the single newest post without
// notifying. If that fetch fails the cursor stays unset.
func (m *Monitor) Seed(ctx context.Context) {
	defer m.setState(StatePolling)

	c, err := m.store.Load(ctx)
	switch {
	case err != nil:
		m.log.Error("cursor state unreadable; re-seeding from latest post", logx.Err(err))
	case c.Valid:
		m.setCursor(c)
		m.log.Info("loaded last post id", logx.Int64("last_post_id", c.ID))
		m.publish(eventbus.TypeMonitorSeeded, SeedEvent{Cursor: c, Source: "store"})
		return
	}

	items, err := m.source.FetchLatest(ctx, 1)
	if err != nil {
		m.log.Error("seeding failed: could not fetch latest post", logx.Err(err))
		m.publish(eventbus.TypeMonitorSeeded, SeedEvent{Source: "none"})
		return
	}
	if len(items) == 0 {
		m.log.Warn("seeding skipped: no posts found")
		m.publish(eventbus.TypeMonitorSeeded, SeedEvent{Source: "none"})
		return
	}

	seeded := storage.CursorAt(latestID(items))
	m.setCursor(seeded)
	m.persist(ctx, seeded)
	m.log.Info("seeded cursor from latest post", logx.Int64("last_post_id", seeded.ID))
	m.publish(eventbus.TypeMonitorSeeded, SeedEvent{Cursor: seeded, Source: "latest"})
}

// Cycle runs one fetch, diff, persist, notify pass.
func (m *Monitor) Cycle(ctx context.Context) CycleResult {
	batchSize, _ := m.settings()
	prev := m.Cursor()
	res := CycleResult{ID: uuid.NewString(), Started: time.Now(), Prev: prev, Next: prev}
	log := m.log.With(logx.String("cycle", res.ID))
	defer func() {
		res.Took = time.Since(res.Started)
		m.publish(eventbus.TypeMonitorCycle, res)
	}()

	items, err := m.source.FetchLatest(ctx, batchSize)
	if err != nil {
		res.FetchErr = err
		log.Error("failed to get posts", logx.Err(err))
		return res
	}
	res.Fetched = len(items)
	if len(items) == 0 {
		log.Info("no posts found")
		return res
	}

	fresh := NewItems(items, prev)
	res.New = len(fresh)

	if latest := latestID(items); prev.Before(latest) {
		next := storage.CursorAt(latest)
		m.setCursor(next)
		res.Next = next
		m.persist(ctx, next)
	}

	if prev.Valid && len(items) >= batchSize && len(fresh) == len(items) {
		res.Saturated = true
		log.Warn("possible missed posts: every post in the batch is new",
			logx.Int("batch_size", batchSize),
			logx.Int64("previous_post_id", prev.ID),
			logx.Int64("oldest_in_batch", fresh[len(fresh)-1].ID),
		)
	}

	for _, it := range fresh {
		if ctx.Err() != nil {
			log.Warn("cycle interrupted; remaining notifications dropped", logx.Int("remaining", len(fresh)-res.Sent-res.Failed))
			break
		}
		if err := m.notifier.Notify(ctx, it); err != nil {
			res.Failed++
			log.Error("error sending notification", logx.Int64("post_id", it.ID), logx.Err(err))
			continue
		}
		res.Sent++
	}

	if res.New > 0 || res.Failed > 0 {
		log.Info("cycle finished",
			logx.Int("fetched", res.Fetched),
			logx.Int("new", res.New),
			logx.Int("sent", res.Sent),
			logx.Int("failed", res.Failed),
			logx.String("cursor", res.Next.String()),
		)
	} else {
		log.Debug("cycle finished", logx.Int("fetched", res.Fetched), logx.String("cursor", res.Next.String()))
	}
	return res
}

// Run seeds once and then polls until ctx is canceled. Panics inside Seed or
// a cycle are logged and the loop carries on after the normal wait.
func (m *Monitor) Run(ctx context.Context) error {
	batchSize, sched := m.settings()
	m.log.Info("starting post monitor", logx.String("schedule", sched.String()), logx.Int("batch_size", batchSize))

	m.guard("seed", func() { m.Seed(ctx) })

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.guard("cycle", func() { m.Cycle(ctx) })
		if m.watchdog != nil {
			m.watchdog.Watchdog()
		}

		_, sched = m.settings()
		wait := time.Until(sched.Next(time.Now()))
		if wait < 0 {
			wait = 0
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			m.log.Info("monitor stopped")
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (m *Monitor) guard(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.setState(StatePolling)
			m.log.Error("error in main loop", logx.String("stage", stage), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	fn()
}

// persist saves c. Failures are logged only: the in-memory cursor stays
// advanced and the next successful save reconciles the state file.
func (m *Monitor) persist(ctx context.Context, c storage.Cursor) {
	if err := m.store.Save(ctx, c); err != nil {
		m.log.Error("error saving cursor", logx.String("cursor", c.String()), logx.Err(err))
		return
	}
	m.publish(eventbus.TypeCursorSaved, c)
}

func (m *Monitor) publish(typ string, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// NewItems returns the items of batch newer than c, newest first.
// With an unset cursor every item is new.
func NewItems(batch []source.Item, c storage.Cursor) []source.Item {
	out := make([]source.Item, 0, len(batch))
	for _, it := range batch {
		if c.Before(it.ID) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func latestID(items []source.Item) int64 {
	var latest int64
	for i, it := range items {
		if i == 0 || it.ID > latest {
			latest = it.ID
		}
	}
	return latest
}
