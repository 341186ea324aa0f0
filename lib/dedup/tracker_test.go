// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package dedup_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mindroom-ai/mindroom/lib/clock"
	"github.com/mindroom-ai/mindroom/lib/dedup"
	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/lib/sqlitepool"
)

func openTracker(t *testing.T, path string, clk clock.Clock) *dedup.Tracker {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      path,
		PoolSize:  2,
		OnConnect: dedup.Schema,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return dedup.New(pool, clk)
}

func TestMarkAndLookup(t *testing.T) {
	ctx := context.Background()
	tracker := openTracker(t, filepath.Join(t.TempDir(), "dedup.db"), nil)

	inbound := ref.MustParseEventID("$inbound1")
	outbound := ref.MustParseEventID("$reply1")

	responded, err := tracker.HasResponded(ctx, "calculator", inbound)
	if err != nil {
		t.Fatalf("HasResponded: %v", err)
	}
	if responded {
		t.Fatal("fresh tracker reports responded")
	}

	if err := tracker.MarkResponded(ctx, "calculator", inbound, outbound); err != nil {
		t.Fatalf("MarkResponded: %v", err)
	}

	got, ok, err := tracker.ResponseEventID(ctx, "calculator", inbound)
	if err != nil {
		t.Fatalf("ResponseEventID: %v", err)
	}
	if !ok || got != outbound {
		t.Fatalf("ResponseEventID = %v, %v; want %v, true", got, ok, outbound)
	}

	// The record is scoped per agent: another agent has not responded.
	responded, err = tracker.HasResponded(ctx, "researcher", inbound)
	if err != nil {
		t.Fatalf("HasResponded: %v", err)
	}
	if responded {
		t.Error("record for calculator must not cover researcher")
	}
}

func TestRemarkOverwritesOutbound(t *testing.T) {
	ctx := context.Background()
	tracker := openTracker(t, filepath.Join(t.TempDir(), "dedup.db"), nil)

	inbound := ref.MustParseEventID("$inbound1")
	if err := tracker.MarkResponded(ctx, "calculator", inbound, ref.MustParseEventID("$reply1")); err != nil {
		t.Fatalf("MarkResponded: %v", err)
	}
	if err := tracker.MarkResponded(ctx, "calculator", inbound, ref.MustParseEventID("$reply2")); err != nil {
		t.Fatalf("MarkResponded (again): %v", err)
	}

	got, ok, err := tracker.ResponseEventID(ctx, "calculator", inbound)
	if err != nil {
		t.Fatalf("ResponseEventID: %v", err)
	}
	if !ok || got.String() != "$reply2" {
		t.Fatalf("ResponseEventID = %v, %v; want $reply2, true", got, ok)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	tracker := openTracker(t, filepath.Join(t.TempDir(), "dedup.db"), nil)

	inbound := ref.MustParseEventID("$inbound1")
	if err := tracker.MarkResponded(ctx, "calculator", inbound, ref.MustParseEventID("$reply1")); err != nil {
		t.Fatalf("MarkResponded: %v", err)
	}
	if err := tracker.Remove(ctx, "calculator", inbound); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	responded, err := tracker.HasResponded(ctx, "calculator", inbound)
	if err != nil {
		t.Fatalf("HasResponded: %v", err)
	}
	if responded {
		t.Error("record survives Remove")
	}
}

// Records must survive a process restart: reopen the same database
// file with a fresh pool and find the record intact.
func TestDurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dedup.db")

	tracker := openTracker(t, path, nil)
	inbound := ref.MustParseEventID("$inbound1")
	if err := tracker.MarkResponded(ctx, "calculator", inbound, ref.MustParseEventID("$reply1")); err != nil {
		t.Fatalf("MarkResponded: %v", err)
	}

	reopened := openTracker(t, path, nil)
	responded, err := reopened.HasResponded(ctx, "calculator", inbound)
	if err != nil {
		t.Fatalf("HasResponded after reopen: %v", err)
	}
	if !responded {
		t.Fatal("record lost across reopen")
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Unix(1_700_000_000, 0))
	tracker := openTracker(t, filepath.Join(t.TempDir(), "dedup.db"), clk)

	old := ref.MustParseEventID("$old")
	if err := tracker.MarkResponded(ctx, "calculator", old, ref.MustParseEventID("$reply_old")); err != nil {
		t.Fatalf("MarkResponded: %v", err)
	}

	clk.Advance(48 * time.Hour)
	recent := ref.MustParseEventID("$recent")
	if err := tracker.MarkResponded(ctx, "calculator", recent, ref.MustParseEventID("$reply_recent")); err != nil {
		t.Fatalf("MarkResponded: %v", err)
	}

	removed, err := tracker.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Prune removed %d records, want 1", removed)
	}

	if responded, _ := tracker.HasResponded(ctx, "calculator", old); responded {
		t.Error("old record survived prune")
	}
	if responded, _ := tracker.HasResponded(ctx, "calculator", recent); !responded {
		t.Error("recent record pruned")
	}
}
