package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"hash/fnv"
	"log/slog"
	"time"
)

// ChangeDetector reads a version token from the database. Two calls
// returning different values mean "something changed". int64 maps
// naturally to PRAGMA data_version or a MAX(updated_at) query.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// DataVersion uses PRAGMA data_version, which increments whenever another
// connection writes to the same database file. It detects cross-process
// mutations, which is what the badge and presentation contexts need.
func DataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// LastUpdate polls MAX(updated_at) on the kv table. Unlike DataVersion it
// also observes writes made through this same connection pool, but two
// writes landing in the same millisecond produce the same token.
func LastUpdate(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(updated_at), 0) FROM kv").Scan(&v)
	return v, err
}

// Combined folds several detectors into one token that changes whenever
// any input changes. The default pairs LastUpdate with DataVersion so a
// write inside the last observed millisecond is still caught through the
// commit counter. The token is kept non-negative; the watch loop uses -1
// as its no-pending sentinel.
func Combined(dets ...ChangeDetector) ChangeDetector {
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		h := fnv.New64a()
		var buf [8]byte
		for _, d := range dets {
			v, err := d(ctx, db)
			if err != nil {
				return 0, err
			}
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			h.Write(buf[:])
		}
		return int64(h.Sum64() &^ (1 << 63)), nil
	}
}

// WatchOptions tunes the change-notification loop.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action
	// fires; further changes reset the timer. 0 fires immediately.
	Debounce time.Duration
	// Detector overrides the default Combined(DataVersion, LastUpdate).
	Detector ChangeDetector
	// Logger overrides slog.Default().
	Logger *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = Combined(DataVersion, LastUpdate)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls the store for changes and runs an action when the version
// token advances. Coordination between the page contexts and the
// background contexts goes exclusively through the store, so this loop is
// the only change-notification mechanism in the system.
type Watcher struct {
	db   *sql.DB
	opts WatchOptions
}

// Watch creates a Watcher over this store. Call OnChange to start it.
func (s *Store) Watch(opts WatchOptions) *Watcher {
	opts.defaults()
	return &Watcher{db: s.db, opts: opts}
}

// OnChange blocks until ctx is cancelled, polling at the configured
// interval. When the detector reports a new version and the debounce
// window passes quietly, action runs. If action returns an error the
// version is not advanced and the action retries on the next change.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	var version int64
	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("store: initial version check failed", "error", err)
	} else {
		version = v
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				log.Warn("store: version check failed", "error", err)
				continue
			}
			if cur == version || cur == pending {
				continue
			}
			pending = cur
			if w.opts.Debounce <= 0 {
				if err := action(); err != nil {
					log.Error("store: change action failed", "error", err)
				} else {
					version = pending
				}
				pending = -1
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.opts.Debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			if pending < 0 {
				continue
			}
			if err := action(); err != nil {
				log.Error("store: change action failed", "error", err)
			} else {
				version = pending
			}
			pending = -1
		}
	}
}
