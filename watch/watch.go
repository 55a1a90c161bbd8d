// Package watch polls the notebook database and fans change events out to
// subscribers. It standardises the reactive pattern for every surface that
// wants to know "something changed": SSE streams, caches, test harnesses.
//
// Typical usage:
//
//	n := watch.NewNotifier(db, watch.Options{Interval: 200 * time.Millisecond})
//	go n.Run(ctx)
//	ch, cancel := n.Subscribe()
//	defer cancel()
package watch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token from the database. Two calls that
// return different values mean "something changed". int64 maps naturally
// to PRAGMA data_version or a MAX(last_modified) query.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Event is one detected change.
type Event struct {
	// Version is the token that triggered the event.
	Version int64 `json:"version"`
	// At is when the change was observed.
	At time.Time `json:"at"`
}

// Options tunes the notifier.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the event is
	// delivered; further changes during the window reset it. 0 delivers
	// immediately. Default: 0.
	Debounce time.Duration
	// Detector overrides the default PragmaDataVersion detector.
	Detector ChangeDetector
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Notifier polls a SQLite database and broadcasts change events. Safe for
// concurrent use.
type Notifier struct {
	db   *sql.DB
	opts Options

	version atomic.Int64

	mu   sync.Mutex
	subs map[int]chan Event
	next int

	// Counters for observability.
	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Subscribers     int   `json:"subscribers"`
}

// NewNotifier creates a Notifier. Call Run to start the loop.
func NewNotifier(db *sql.DB, opts Options) *Notifier {
	opts.defaults()
	return &Notifier{db: db, opts: opts, subs: make(map[int]chan Event)}
}

// Stats returns the current counters.
func (n *Notifier) Stats() Stats {
	n.mu.Lock()
	subs := len(n.subs)
	n.mu.Unlock()
	return Stats{
		Checks:          n.checks.Load(),
		ChangesDetected: n.changes.Load(),
		Errors:          n.errors.Load(),
		Subscribers:     subs,
	}
}

// Version returns the last observed version token.
func (n *Notifier) Version() int64 { return n.version.Load() }

// Subscribe registers a listener. The channel is buffered; a subscriber
// that falls behind misses intermediate events, never blocks the loop.
// Call cancel to unsubscribe.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan Event, 4)
	n.subs[id] = ch
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
}

// Run blocks until ctx is cancelled, polling at opts.Interval and
// broadcasting an Event whenever the detector's token moves.
func (n *Notifier) Run(ctx context.Context) {
	log := n.opts.Logger

	// Seed the initial version so startup does not look like a change.
	if v, err := n.opts.Detector(ctx, n.db); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		n.version.Store(v)
	}

	ticker := time.NewTicker(n.opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pendingVersion := int64(-1)

	log.Info("watch: started", "interval", n.opts.Interval, "debounce", n.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped")
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			n.checks.Add(1)
			cur, err := n.opts.Detector(ctx, n.db)
			if err != nil {
				n.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur != n.version.Load() && cur != pendingVersion {
				n.changes.Add(1)
				pendingVersion = cur

				if n.opts.Debounce <= 0 {
					n.broadcast(pendingVersion)
					pendingVersion = -1
				} else {
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.NewTimer(n.opts.Debounce)
					debounceCh = debounceTimer.C
					log.Debug("watch: change detected, debouncing", "pending_version", cur)
				}
			}

		case <-debounceCh:
			debounceCh = nil
			if pendingVersion >= 0 {
				n.broadcast(pendingVersion)
				pendingVersion = -1
			}
		}
	}
}

func (n *Notifier) broadcast(version int64) {
	n.version.Store(version)
	ev := Event{Version: version, At: time.Now()}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; it will catch up on the next event.
		}
	}
}

// ---------- Built-in detectors ----------

// PragmaDataVersion uses PRAGMA data_version, which increments whenever
// another connection writes to the same database file. It detects
// cross-process and cross-connection mutations.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// MaxColumnDetector returns a ChangeDetector that polls MAX(column) on a
// table. Suits tables carrying a last_modified timestamp, and unlike
// PRAGMA data_version it sees writes made through the same connection
// pool. Table and column names are interpolated; pass only identifiers
// you control.
func MaxColumnDetector(table, column string) ChangeDetector {
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", column, table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

// DocumentActivity detects notebook document changes: any bump of a
// document's last_modified, and any change in document count (deletes
// move the count even when MAX stands still).
func DocumentActivity(ctx context.Context, db *sql.DB) (int64, error) {
	var maxMod, count int64
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(last_modified), 0), COUNT(*) FROM documents").
		Scan(&maxMod, &count)
	if err != nil {
		return 0, err
	}
	// Fold the count into the low bits so either movement shifts the token.
	return maxMod*31 + count, nil
}
