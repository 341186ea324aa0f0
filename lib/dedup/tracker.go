// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package dedup

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/mindroom-ai/mindroom/lib/clock"
	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS response_record (
	agent            TEXT    NOT NULL,
	inbound_event_id TEXT    NOT NULL,
	outbound_event_id TEXT   NOT NULL,
	recorded_at      INTEGER NOT NULL,
	PRIMARY KEY (agent, inbound_event_id)
);
CREATE INDEX IF NOT EXISTS response_record_recorded_at
	ON response_record (recorded_at);
`

// Schema creates the tracker's table on a connection. Pass it (or a
// wrapper that includes it) as the pool's OnConnect.
func Schema(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, schema, nil)
}

// Tracker is the durable response record shared by every agent in the
// process. Safe for concurrent use; each call borrows its own pool
// connection.
type Tracker struct {
	pool  *sqlitepool.Pool
	clock clock.Clock
}

// New returns a Tracker over the pool. The pool's OnConnect must run
// [Schema]. A nil clk uses the real clock.
func New(pool *sqlitepool.Pool, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	return &Tracker{pool: pool, clock: clk}
}

// HasResponded reports whether agent already answered the inbound
// event.
func (t *Tracker) HasResponded(ctx context.Context, agent string, inbound ref.EventID) (bool, error) {
	_, ok, err := t.ResponseEventID(ctx, agent, inbound)
	return ok, err
}

// ResponseEventID returns the outbound event ID recorded for
// (agent, inbound), with ok=false when no record exists.
func (t *Tracker) ResponseEventID(ctx context.Context, agent string, inbound ref.EventID) (outbound ref.EventID, ok bool, err error) {
	conn, err := t.pool.Take(ctx)
	if err != nil {
		return ref.EventID{}, false, err
	}
	defer t.pool.Put(conn)

	var raw string
	err = sqlitex.Execute(conn,
		`SELECT outbound_event_id FROM response_record
		 WHERE agent = ? AND inbound_event_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{agent, inbound.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				raw = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return ref.EventID{}, false, fmt.Errorf("dedup: lookup %s/%s: %w", agent, inbound, err)
	}
	if raw == "" {
		return ref.EventID{}, false, nil
	}
	outbound, err = ref.ParseEventID(raw)
	if err != nil {
		// A corrupt row still proves a response happened; report it
		// as responded with no usable outbound ID.
		return ref.EventID{}, true, nil
	}
	return outbound, true, nil
}

// MarkResponded records that agent answered inbound with outbound.
// Re-marking the same inbound event overwrites the outbound ID; this
// is what happens when a user edit causes the reply to be regenerated
// under a new event ID.
func (t *Tracker) MarkResponded(ctx context.Context, agent string, inbound, outbound ref.EventID) error {
	conn, err := t.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer t.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO response_record (agent, inbound_event_id, outbound_event_id, recorded_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (agent, inbound_event_id)
		 DO UPDATE SET outbound_event_id = excluded.outbound_event_id,
		               recorded_at = excluded.recorded_at`,
		&sqlitex.ExecOptions{
			Args: []any{agent, inbound.String(), outbound.String(), t.clock.Now().UnixMilli()},
		})
	if err != nil {
		return fmt.Errorf("dedup: mark %s/%s: %w", agent, inbound, err)
	}
	return nil
}

// Remove deletes the record for (agent, inbound). Used when a sent
// response is retracted so the event becomes answerable again.
func (t *Tracker) Remove(ctx context.Context, agent string, inbound ref.EventID) error {
	conn, err := t.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer t.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM response_record WHERE agent = ? AND inbound_event_id = ?`,
		&sqlitex.ExecOptions{Args: []any{agent, inbound.String()}},
	)
	if err != nil {
		return fmt.Errorf("dedup: remove %s/%s: %w", agent, inbound, err)
	}
	return nil
}

// Prune deletes records older than maxAge and returns how many were
// removed. Old records only matter while their inbound events can
// still be replayed by the homeserver, so a retention of days is
// plenty.
func (t *Tracker) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	conn, err := t.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer t.pool.Put(conn)

	cutoff := t.clock.Now().Add(-maxAge).UnixMilli()
	err = sqlitex.Execute(conn,
		`DELETE FROM response_record WHERE recorded_at < ?`,
		&sqlitex.ExecOptions{Args: []any{cutoff}},
	)
	if err != nil {
		return 0, fmt.Errorf("dedup: prune: %w", err)
	}
	return conn.Changes(), nil
}
