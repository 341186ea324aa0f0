// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/mindroom-ai/mindroom/lib/codec"
)

// snapshotDomainKey is the BLAKE3 keyed-hash domain for snapshot file
// names. The byte values are the ASCII encoding of the domain name,
// zero-padded to 32 bytes, so the key is inspectable in hex dumps.
var snapshotDomainKey = [32]byte{
	'm', 'i', 'n', 'd', 'r', 'o', 'o', 'm', '.', 't', 'h', 'r', 'e', 'a', 'd', '.',
	's', 'n', 'a', 'p', 's', 'h', 'o', 't', 0, 0, 0, 0, 0, 0, 0, 0,
}

// HistoryCache persists per-session thread event snapshots so a
// restart does not re-paginate long threads. It is advisory: every
// failure path reads as a miss, and a corrupt file is deleted rather
// than surfaced. Session IDs contain room and event IDs that are not
// filesystem safe, so file names are the hex BLAKE3 digest of the
// session ID.
type HistoryCache struct {
	dir    string
	logger *slog.Logger
}

// NewHistoryCache opens (creating if needed) a snapshot directory.
func NewHistoryCache(dir string, logger *slog.Logger) (*HistoryCache, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("routing: create snapshot directory: %w", err)
	}
	return &HistoryCache{dir: dir, logger: logger}, nil
}

// cachedThread is the on-disk snapshot payload. SessionID is stored
// so a digest collision (or a stray file) can never serve another
// session's history.
type cachedThread struct {
	SessionID string        `cbor:"session_id"`
	Events    []threadEvent `cbor:"events"`
}

// Load returns the cached events for a session, or ok=false on any
// miss, decode failure, or session mismatch.
func (c *HistoryCache) Load(sessionID string) ([]threadEvent, bool) {
	path := c.path(sessionID)
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	data, err := codec.Decompress(compressed)
	if err != nil {
		c.discardCorrupt(path, sessionID, err)
		return nil, false
	}
	var snapshot cachedThread
	if err := codec.Unmarshal(data, &snapshot); err != nil {
		c.discardCorrupt(path, sessionID, err)
		return nil, false
	}
	if snapshot.SessionID != sessionID {
		c.discardCorrupt(path, sessionID, fmt.Errorf("snapshot belongs to session %q", snapshot.SessionID))
		return nil, false
	}
	return snapshot.Events, true
}

// Store writes the session's events. Write errors are logged and
// swallowed; the cache never blocks event processing.
func (c *HistoryCache) Store(sessionID string, events []threadEvent) {
	data, err := codec.Marshal(cachedThread{SessionID: sessionID, Events: events})
	if err != nil {
		c.logger.Warn("snapshot encode failed", "session_id", sessionID, "error", err)
		return
	}
	path := c.path(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, codec.Compress(data), 0o600); err != nil {
		c.logger.Warn("snapshot write failed", "session_id", sessionID, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		c.logger.Warn("snapshot rename failed", "session_id", sessionID, "error", err)
		os.Remove(tmp)
	}
}

// Remove deletes a session's snapshot, if present.
func (c *HistoryCache) Remove(sessionID string) {
	os.Remove(c.path(sessionID))
}

func (c *HistoryCache) discardCorrupt(path, sessionID string, err error) {
	c.logger.Warn("discarding corrupt snapshot",
		"session_id", sessionID,
		"path", path,
		"error", err,
	)
	os.Remove(path)
}

func (c *HistoryCache) path(sessionID string) string {
	hasher, err := blake3.NewKeyed(snapshotDomainKey[:])
	if err != nil {
		panic("routing: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(sessionID))
	var digest [32]byte
	hasher.Sum(digest[:0])
	return filepath.Join(c.dir, hex.EncodeToString(digest[:])+".thread.zst")
}
