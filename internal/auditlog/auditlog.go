// Package auditlog records every committed moderation transition in a
// hash-chained, append-only log.
//
// The chain starts at a genesis entry whose Hash is GenesisHash. Each later
// entry stores the hash of its predecessor, so editing or dropping a row is
// detected by Verify.
//
// Two implementations of Ledger are provided:
//   - MemoryLedger: in-process, for tests and single-process deployments.
//   - PostgresLedger: durable, backed by the audit_ledger table.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// GenesisHash is the hash of the genesis entry and the anchor of the chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ErrNotFound is returned by Get for an index past the tip.
var ErrNotFound = errors.New("audit entry not found")

// Record is what the caller knows about a committed transition.
type Record struct {
	Kind       string
	EntityID   string
	Action     string
	FromStatus string
	ToStatus   string
	Actor      string
	Reason     string
	// Snapshot is hashed into DataHash; it is not stored.
	Snapshot any
}

// Entry is a single row of the audit log.
type Entry struct {
	Index      int       `json:"index"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	DataHash   string    `json:"data_hash"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`
}

// Query selects entries for listing. Zero values match everything.
type Query struct {
	Kind     string
	EntityID string
	Limit    int
}

// Ledger is the append-only audit log.
type Ledger interface {
	// Append adds a new entry chained to the previous one.
	Append(ctx context.Context, rec Record) (*Entry, error)
	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)
	// List returns matching entries, newest first.
	List(ctx context.Context, q Query) ([]*Entry, error)
	// Len returns the number of entries including genesis.
	Len(ctx context.Context) (int, error)
	// Verify walks the chain and returns nil if it is intact.
	Verify(ctx context.Context) error
	// Root returns the hash of the newest entry.
	Root(ctx context.Context) (string, error)
}

// newEntry builds the entry that follows prev.
func newEntry(prev *Entry, rec Record, now time.Time) (*Entry, error) {
	payload, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	// PostgreSQL keeps microseconds; hash what will be read back.
	ts := now.UTC().Truncate(time.Microsecond)
	e := &Entry{
		Index:      prev.Index + 1,
		Timestamp:  ts,
		Kind:       rec.Kind,
		EntityID:   rec.EntityID,
		Action:     rec.Action,
		FromStatus: rec.FromStatus,
		ToStatus:   rec.ToStatus,
		Actor:      rec.Actor,
		Reason:     rec.Reason,
		DataHash:   sha256Sum(payload),
		PrevHash:   prev.Hash,
	}
	e.Hash = hashEntry(e)
	return e, nil
}

func genesis(now time.Time) *Entry {
	return &Entry{
		Index:     0,
		Timestamp: now.UTC().Truncate(time.Microsecond),
		Action:    "genesis",
		Actor:     "console-system",
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}
}

// hashEntry computes the SHA-256 over an entry's fields. Never call it on
// the genesis entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Kind, e.EntityID, e.Action, e.FromStatus, e.ToStatus,
		e.Actor, e.Reason, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// verifyStep checks curr against its predecessor. prev is nil for genesis.
func verifyStep(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}

func (q Query) match(e *Entry) bool {
	if e.Index == 0 {
		return false
	}
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	return q.EntityID == "" || e.EntityID == q.EntityID
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 500 {
		return 100
	}
	return q.Limit
}
