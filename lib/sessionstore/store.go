// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore persists conversation history in SQLite. One
// database holds the sessions of one agent; the daemon opens a store
// per configured agent under its data directory.
//
// Messages are stored as deterministic CBOR blobs, one row per
// message, ordered by a per-session sequence number. Each append runs
// in a single IMMEDIATE transaction together with the retention
// compaction, so a crash never leaves a half-written exchange and the
// database never grows past the configured number of interaction
// groups per session.
package sessionstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/majordomo-home/majordomo/lib/clock"
	"github.com/majordomo-home/majordomo/lib/codec"
	"github.com/majordomo-home/majordomo/lib/conversation"
	"github.com/majordomo-home/majordomo/lib/llm"
)

// Config holds the parameters for opening a session store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist; the file is created on first open.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative. Conversation traffic is light; the pool
	// exists so history reads never wait behind an append.
	PoolSize int

	// RetainInteractions caps the stored history per session in
	// complete interaction groups. Compaction runs inside the append
	// transaction. Zero keeps everything.
	RetainInteractions int

	// Clock provides timestamps for session activity tracking and
	// stale-session purging.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is the durable [conversation.HistoryStore]. Safe for
// concurrent use; SQLite serializes the writes.
type Store struct {
	pool   *sqlitex.Pool
	retain int
	clock  clock.Clock
	logger *slog.Logger
	path   string
}

var _ conversation.HistoryStore = (*Store)(nil)

// schema is applied per connection. IF NOT EXISTS makes it a no-op
// after the first connection of the first run.
const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id   TEXT    NOT NULL,
		sequence     INTEGER NOT NULL,
		starts_group INTEGER NOT NULL,
		body         BLOB    NOT NULL,
		PRIMARY KEY (session_id, sequence)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_group
		ON messages(session_id, starts_group, sequence);
`

// Open creates the connection pool and applies pragmas and schema to
// every connection. The caller must Close the store when done.
func Open(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sessionstore: Path is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	storeClock := config.Clock
	if storeClock == nil {
		storeClock = clock.Real()
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(config.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: opening %s: %w", config.Path, err)
	}

	logger.Info("session store opened",
		"path", config.Path,
		"pool_size", poolSize,
		"retain_interactions", config.RetainInteractions)

	return &Store{
		pool:   pool,
		retain: config.RetainInteractions,
		clock:  storeClock,
		logger: logger,
		path:   config.Path,
	}, nil
}

// prepareConnection applies the pragmas and schema. WAL keeps history
// reads from blocking behind an append; NORMAL synchronous survives a
// process crash, which is the durability a conversation memory needs.
// History databases are small, so the telemetry-scale cache and mmap
// tuning is deliberately absent.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sessionstore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sessionstore: applying schema: %w", err)
	}
	return nil
}

// Close closes the connection pool. Blocks until borrowed connections
// are returned.
func (store *Store) Close() error {
	if err := store.pool.Close(); err != nil {
		store.logger.Error("session store close error", "path", store.path, "error", err)
		return fmt.Errorf("sessionstore: closing %s: %w", store.path, err)
	}
	store.logger.Info("session store closed", "path", store.path)
	return nil
}

// Load returns a session's messages, oldest first. An unknown session
// returns an empty slice.
func (store *Store) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: load %s: %w", sessionID, err)
	}
	defer store.pool.Put(conn)

	var messages []llm.Message
	err = sqlitex.Execute(conn,
		`SELECT body FROM messages WHERE session_id = ? ORDER BY sequence`,
		&sqlitex.ExecOptions{
			Args: []any{sessionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				body := make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, body)
				var message llm.Message
				if err := codec.Unmarshal(body, &message); err != nil {
					return fmt.Errorf("decoding message %d: %w", len(messages), err)
				}
				messages = append(messages, message)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: load %s: %w", sessionID, err)
	}
	return messages, nil
}

// Append adds messages to the end of a session's history and compacts
// it to the retention cap, all in one IMMEDIATE transaction.
func (store *Store) Append(ctx context.Context, sessionID string, messages []llm.Message) (err error) {
	if len(messages) == 0 {
		return nil
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sessionstore: append %s: %w", sessionID, err)
	}
	defer store.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sessionstore: begin append %s: %w", sessionID, err)
	}
	defer endTransaction(&err)

	now := store.clock.Now().Unix()
	err = sqlitex.Execute(conn,
		`INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{sessionID, now, now}})
	if err != nil {
		return fmt.Errorf("sessionstore: touching session %s: %w", sessionID, err)
	}

	var sequence int64
	err = sqlitex.Execute(conn,
		`SELECT COALESCE(MAX(sequence), 0) FROM messages WHERE session_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sessionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sequence = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("sessionstore: reading sequence for %s: %w", sessionID, err)
	}

	for i := range messages {
		body, err := codec.Marshal(&messages[i])
		if err != nil {
			return fmt.Errorf("sessionstore: encoding message for %s: %w", sessionID, err)
		}
		sequence++
		startsGroup := int64(0)
		if startsInteraction(messages[i]) {
			startsGroup = 1
		}
		err = sqlitex.Execute(conn,
			`INSERT INTO messages (session_id, sequence, starts_group, body)
			 VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{sessionID, sequence, startsGroup, body}})
		if err != nil {
			return fmt.Errorf("sessionstore: inserting message for %s: %w", sessionID, err)
		}
	}

	if store.retain > 0 {
		if err := store.compact(conn, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// compact deletes every message older than the newest retain
// interaction groups. The subquery finds the sequence of the oldest
// group start to keep; with fewer groups than the cap it yields NULL
// and the comparison deletes nothing.
func (store *Store) compact(conn *sqlite.Conn, sessionID string) error {
	err := sqlitex.Execute(conn,
		`DELETE FROM messages WHERE session_id = ? AND sequence < (
			SELECT sequence FROM messages
			WHERE session_id = ? AND starts_group = 1
			ORDER BY sequence DESC LIMIT 1 OFFSET ?)`,
		&sqlitex.ExecOptions{Args: []any{sessionID, sessionID, store.retain - 1}})
	if err != nil {
		return fmt.Errorf("sessionstore: compacting %s: %w", sessionID, err)
	}
	if dropped := conn.Changes(); dropped > 0 {
		store.logger.Debug("history compacted", "session", sessionID, "messages_dropped", dropped)
	}
	return nil
}

// Clear removes a session's history and its session row.
func (store *Store) Clear(ctx context.Context, sessionID string) (err error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sessionstore: clear %s: %w", sessionID, err)
	}
	defer store.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sessionstore: begin clear %s: %w", sessionID, err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `DELETE FROM messages WHERE session_id = ?`,
		&sqlitex.ExecOptions{Args: []any{sessionID}})
	if err != nil {
		return fmt.Errorf("sessionstore: clearing messages for %s: %w", sessionID, err)
	}
	err = sqlitex.Execute(conn, `DELETE FROM sessions WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{sessionID}})
	if err != nil {
		return fmt.Errorf("sessionstore: clearing session %s: %w", sessionID, err)
	}
	return nil
}

// SessionRecord summarizes one stored session.
type SessionRecord struct {
	ID        string
	Messages  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sessions lists the stored sessions, most recently updated first.
func (store *Store) Sessions(ctx context.Context) ([]SessionRecord, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: listing sessions: %w", err)
	}
	defer store.pool.Put(conn)

	var records []SessionRecord
	err = sqlitex.Execute(conn,
		`SELECT s.id, s.created_at, s.updated_at, COUNT(m.session_id)
		 FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		 GROUP BY s.id
		 ORDER BY s.updated_at DESC, s.id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, SessionRecord{
					ID:        stmt.ColumnText(0),
					CreatedAt: time.Unix(stmt.ColumnInt64(1), 0).UTC(),
					UpdatedAt: time.Unix(stmt.ColumnInt64(2), 0).UTC(),
					Messages:  int(stmt.ColumnInt64(3)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: listing sessions: %w", err)
	}
	return records, nil
}

// PurgeStale deletes sessions not updated within maxIdle, returning
// the purged ids sorted. The daemon runs this at startup so that
// history from before a long downtime does not resurrect expired
// sessions.
func (store *Store) PurgeStale(ctx context.Context, maxIdle time.Duration) (purged []string, err error) {
	cutoff := store.clock.Now().Add(-maxIdle).Unix()

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: purging stale sessions: %w", err)
	}
	defer store.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: begin purge: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `SELECT id FROM sessions WHERE updated_at < ?`,
		&sqlitex.ExecOptions{
			Args: []any{cutoff},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				purged = append(purged, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: finding stale sessions: %w", err)
	}
	if len(purged) == 0 {
		return nil, nil
	}

	for _, sessionID := range purged {
		err = sqlitex.Execute(conn, `DELETE FROM messages WHERE session_id = ?`,
			&sqlitex.ExecOptions{Args: []any{sessionID}})
		if err != nil {
			return nil, fmt.Errorf("sessionstore: purging messages for %s: %w", sessionID, err)
		}
	}
	err = sqlitex.Execute(conn, `DELETE FROM sessions WHERE updated_at < ?`,
		&sqlitex.ExecOptions{Args: []any{cutoff}})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: purging stale sessions: %w", err)
	}

	slices.Sort(purged)
	store.logger.Info("stale sessions purged", "count", len(purged))
	return purged, nil
}

// startsInteraction reports whether a message opens an interaction
// group: a user message containing text. Tool-result messages carry
// the user role on some wires but never text blocks.
func startsInteraction(message llm.Message) bool {
	if message.Role != llm.RoleUser {
		return false
	}
	for _, block := range message.Content {
		if block.Type == llm.ContentText {
			return true
		}
	}
	return false
}
