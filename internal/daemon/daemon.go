// Package daemon provides the background watcher that keeps the thread
// index cache fresh and publishes pending threads commits.
//
// The daemon:
// 1. Watches the topics directory for thread file changes
// 2. Re-indexes changed threads after a debounce window
// 3. Enqueues background pushes when the threads branch has pending commits
// 4. Periodically performs a full resync as a safety net
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/watercoolerhq/watercooler/internal/index"
	"github.com/watercoolerhq/watercooler/internal/push"
	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/thread"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a changed file sits in the queue
	// before it is re-indexed, batching rapid rewrites together.
	DebounceInterval time.Duration

	// ResyncInterval is how often a full resync runs regardless of
	// events, catching anything the watcher missed.
	ResyncInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
		ResyncInterval:   5 * time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates file watching, index updates, and background
// pushes for one threads clone.
type Daemon struct {
	db     *index.DB
	pair   *repopair.RepoPair
	pusher *push.AsyncPusher
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> queued at
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. pusher may be nil, which disables background
// publishing and leaves only the index maintenance.
func New(db *index.DB, pair *repopair.RepoPair, pusher *push.AsyncPusher, config *Config) (*Daemon, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if pair == nil {
		return nil, fmt.Errorf("pair cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		db:          db,
		pair:        pair,
		pusher:      pusher,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled or Stop is called.
//
// An initial full resync runs before watching begins, so the index is
// trustworthy from the first moment the daemon reports healthy.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("starting daemon")

	if err := d.resync(); err != nil {
		return fmt.Errorf("initial resync failed: %w", err)
	}

	if err := d.watcher.Add(d.pair.Layout.TopicsDir); err != nil {
		return fmt.Errorf("watching topics directory: %w", err)
	}
	d.config.Logger.Printf("watching %s", d.pair.Layout.TopicsDir)

	if d.pusher != nil {
		if err := d.pusher.Start(); err != nil {
			return fmt.Errorf("starting background pusher: %w", err)
		}
	}

	// Commits left unpushed by a previous session should not wait for
	// the first resync tick.
	d.enqueuePendingPush()

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.periodicResync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts the daemon down, draining any pending pushes.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("error closing watcher: %v", err)
	}

	d.wg.Wait()

	if d.pusher != nil {
		d.pusher.Stop()
	}

	d.config.Logger.Println("daemon stopped")
	return nil
}

// resync rebuilds the whole index from the topics directory.
func (d *Daemon) resync() error {
	n, err := d.db.Resync(d.ctx, d.pair.Layout.TopicsDir)
	if err != nil {
		return err
	}
	d.config.Logger.Printf("resynced %d topic(s)", n)
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isThreadFile(event.Name) {
				continue
			}

			d.config.Logger.Printf("file event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("watcher error: %v", err)
		}
	}
}

// isThreadFile filters watcher noise: only committed-shape thread
// files, not the appender's temp files.
func isThreadFile(path string) bool {
	base := filepath.Base(path)
	return filepath.Ext(base) == ".md" && !strings.HasPrefix(base, ".")
}

// queueChange adds a file to the change queue, resetting its debounce
// clock.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[path] = time.Now()
}

// processChangeQueue re-indexes files whose debounce window has passed.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	var ready []string
	now := time.Now()
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	if len(ready) == 0 {
		return
	}

	for _, path := range ready {
		if err := d.syncThreadFile(path); err != nil {
			d.config.Logger.Printf("error syncing %s: %v", path, err)
		}
	}

	d.enqueuePendingPush()
}

// syncThreadFile re-indexes one thread file, or removes its topic when
// the file is gone.
func (d *Daemon) syncThreadFile(path string) error {
	key := strings.TrimSuffix(filepath.Base(path), ".md")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		d.config.Logger.Printf("removing topic %s from index", key)
		return d.db.DeleteTopic(d.ctx, key)
	}

	f, err := thread.Parse(path)
	if err != nil {
		return fmt.Errorf("parsing thread file: %w", err)
	}
	return d.db.UpsertThread(d.ctx, key, f)
}

// enqueuePendingPush hands any unpushed threads commits to the
// background pusher.
func (d *Daemon) enqueuePendingPush() {
	if d.pusher == nil {
		return
	}

	st, err := d.pair.Threads.Status(d.ctx)
	if err != nil {
		d.config.Logger.Printf("error checking threads status: %v", err)
		return
	}
	if st.AheadBehind.Ahead == 0 {
		return
	}

	head, err := d.pair.Threads.HeadCommit(d.ctx)
	if err != nil {
		d.config.Logger.Printf("error reading threads head: %v", err)
		return
	}

	// The pending commits sit on whatever branch the threads clone has
	// checked out now, which may not be the branch the daemon started
	// on. Push the live branch, not the startup snapshot.
	pair := d.pair
	if st.Branch != "" && st.Branch != pair.CodeBranch {
		live := *pair
		live.CodeBranch = st.Branch
		pair = &live
	}

	d.config.Logger.Printf("enqueueing push of %d pending commit(s) on %s", st.AheadBehind.Ahead, pair.CodeBranch)
	if err := d.pusher.Enqueue(pair, head); err != nil {
		d.config.Logger.Printf("error enqueueing push: %v", err)
	}
}

// periodicResync runs a full resync on a fixed interval.
func (d *Daemon) periodicResync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.resync(); err != nil {
				d.config.Logger.Printf("error during periodic resync: %v", err)
			}
			d.enqueuePendingPush()
		}
	}
}
