// Package index maintains the SQLite thread index cache.
//
// The cache lives at .watercooler/index.db inside the threads clone and
// is derived state: the thread files in the topics directory are the
// source of truth, and a full resync can rebuild the cache from them at
// any time. Queries (topic listings, entry tails) read the cache so the
// CLI does not re-parse every thread file per invocation.
//
// The database runs embedded with WAL mode so the daemon can write
// while CLI reads are in flight.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/watercoolerhq/watercooler/internal/thread"
)

// DB wraps the index database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the index database at path. The
// caller must Close it.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging index database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	return db, nil
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: checkpointing index WAL: %v\n", err)
	}
	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		return fmt.Errorf("closing index database: %w", err)
	}
	return nil
}

// InitSchema creates the tables and indexes. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS topics (
		key TEXT PRIMARY KEY,          -- sanitized filename stem
		topic TEXT NOT NULL,           -- original topic as authored
		status TEXT NOT NULL,
		ball TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		entry_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,           -- ULID; sorts by creation time
		topic_key TEXT NOT NULL,
		agent TEXT NOT NULL,
		role TEXT,
		type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		body TEXT,
		FOREIGN KEY (topic_key) REFERENCES topics(key) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_topics_status ON topics(status);
	CREATE INDEX IF NOT EXISTS idx_topics_updated ON topics(updated_at);
	CREATE INDEX IF NOT EXISTS idx_entries_topic ON entries(topic_key, id);
	CREATE INDEX IF NOT EXISTS idx_entries_agent ON entries(agent);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing index schema: %w", err)
	}
	return nil
}

// UpsertThread replaces the indexed state of one topic from its parsed
// thread file. key is the sanitized filename stem.
func (db *DB) UpsertThread(ctx context.Context, key string, f *thread.File) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	defer tx.Rollback()

	entries := f.Entries()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO topics (key, topic, status, ball, created_at, updated_at, entry_count)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		topic = excluded.topic,
		status = excluded.status,
		ball = excluded.ball,
		updated_at = excluded.updated_at,
		entry_count = excluded.entry_count
	`,
		key,
		f.Header.Topic,
		f.Header.Status,
		f.Header.Ball,
		f.Header.CreatedAt.UTC().Format(time.RFC3339),
		f.Header.UpdatedAt.UTC().Format(time.RFC3339),
		len(entries),
	)
	if err != nil {
		return fmt.Errorf("upserting topic %s: %w", key, err)
	}

	// Entries are append-only in the file, so upserts never need to
	// delete rows for a live topic.
	for _, e := range entries {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (id, topic_key, agent, role, type, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body
		`,
			e.ID, key, e.Agent, e.Role, string(e.Type),
			e.Time.UTC().Format(time.RFC3339), e.Body,
		)
		if err != nil {
			return fmt.Errorf("upserting entry %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteTopic removes a topic and its entries. Idempotent.
func (db *DB) DeleteTopic(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM topics WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting topic %s: %w", key, err)
	}
	return nil
}

// Resync rebuilds the cache from the topics directory: every thread
// file is re-parsed and upserted, and topics whose files are gone are
// removed. Returns the number of topics indexed.
func (db *DB) Resync(ctx context.Context, topicsDir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(topicsDir, "*.md"))
	if err != nil {
		return 0, fmt.Errorf("listing thread files: %w", err)
	}

	seen := make(map[string]bool, len(matches))
	for _, path := range matches {
		key := strings.TrimSuffix(filepath.Base(path), ".md")

		f, err := thread.Parse(path)
		if err != nil {
			// A half-written or foreign file must not poison the
			// resync; skip it and keep going.
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", path, err)
			continue
		}
		if err := db.UpsertThread(ctx, key, f); err != nil {
			return 0, err
		}
		seen[key] = true
	}

	stale, err := db.topicKeys(ctx)
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		if !seen[key] {
			if err := db.DeleteTopic(ctx, key); err != nil {
				return 0, err
			}
		}
	}

	return len(seen), nil
}

func (db *DB) topicKeys(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key FROM topics`)
	if err != nil {
		return nil, fmt.Errorf("listing indexed topics: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// TopicSummary is one row of the topic listing.
type TopicSummary struct {
	Key        string
	Topic      string
	Status     string
	Ball       string
	UpdatedAt  time.Time
	EntryCount int
}

// ListTopics returns all topics, most recently updated first. status
// filters when non-empty.
func (db *DB) ListTopics(ctx context.Context, status string) ([]TopicSummary, error) {
	query := `
	SELECT key, topic, status, COALESCE(ball, ''), updated_at, entry_count
	FROM topics`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	defer rows.Close()

	var topics []TopicSummary
	for rows.Next() {
		var t TopicSummary
		var updated string
		if err := rows.Scan(&t.Key, &t.Topic, &t.Status, &t.Ball, &updated, &t.EntryCount); err != nil {
			return nil, err
		}
		t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// TailEntries returns the newest n entries for a topic, oldest first.
func (db *DB) TailEntries(ctx context.Context, key string, n int) ([]thread.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT e.id, t.topic, e.agent, COALESCE(e.role, ''), e.type, e.created_at, COALESCE(e.body, '')
	FROM entries e
	JOIN topics t ON t.key = e.topic_key
	WHERE e.topic_key = ?
	ORDER BY e.id DESC
	LIMIT ?`, key, n)
	if err != nil {
		return nil, fmt.Errorf("reading entries for %s: %w", key, err)
	}
	defer rows.Close()

	var entries []thread.Entry
	for rows.Next() {
		var e thread.Entry
		var typ, created string
		if err := rows.Scan(&e.ID, &e.Topic, &e.Agent, &e.Role, &typ, &created, &e.Body); err != nil {
			return nil, err
		}
		e.Type = thread.EntryType(typ)
		e.Time, _ = time.Parse(time.RFC3339, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-n was selected descending; present oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
