package auditlog

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-memory, thread-safe Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*Entry
	now     func() time.Time
}

// NewMemoryLedger creates a MemoryLedger holding only the genesis entry.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: []*Entry{genesis(time.Now())},
		now:     time.Now,
	}
}

func (l *MemoryLedger) Append(_ context.Context, rec Record) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := newEntry(l.entries[len(l.entries)-1], rec, l.now())
	if err != nil {
		return nil, err
	}
	l.entries = append(l.entries, e)
	cp := *e
	return &cp, nil
}

func (l *MemoryLedger) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, ErrNotFound
	}
	cp := *l.entries[index]
	return &cp, nil
}

func (l *MemoryLedger) List(_ context.Context, q Query) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	limit := q.limit()
	var out []*Entry
	for i := len(l.entries) - 1; i > 0 && len(out) < limit; i-- {
		if e := l.entries[i]; q.match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var prev *Entry
	for _, curr := range l.entries {
		if err := verifyStep(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}
