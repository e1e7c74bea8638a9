package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

type key struct {
	kind model.Kind
	id   uuid.UUID
}

// MemoryStore is a Store backed by process memory. Entities are cloned on the
// way in and out so callers never share snapshots with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[key]model.Entity
	order map[model.Kind][]uuid.UUID
	now   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[key]model.Entity),
		order: make(map[model.Kind][]uuid.UUID),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, kind model.Kind, id uuid.UUID) (model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.items[key{kind, id}]
	if !ok {
		return nil, ErrNotFound
	}
	return ent.Clone(), nil
}

// List returns entities of kind in insertion order.
func (s *MemoryStore) List(_ context.Context, kind model.Kind) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[kind]
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[key{kind, id}].Clone())
	}
	return out, nil
}

// Create stores ent, assigning an id and timestamps when missing.
func (s *MemoryStore) Create(_ context.Context, ent model.Entity) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent = prepareCreate(ent, s.now)
	k := key{ent.Kind(), ent.EntityID()}
	if _, ok := s.items[k]; ok {
		return nil, ErrExists
	}
	s.items[k] = ent.Clone()
	s.order[k.kind] = append(s.order[k.kind], k.id)
	return ent, nil
}

func (s *MemoryStore) Apply(_ context.Context, cmd Command) (model.Entity, error) {
	if err := checkCommand(cmd, true); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{cmd.Kind, cmd.ID}
	stored, ok := s.items[k]
	if !ok {
		return nil, ErrNotFound
	}
	if !matches(stored, cmd) {
		return nil, ErrStale
	}
	s.items[k] = cmd.Entity.Clone()
	return cmd.Entity.Clone(), nil
}

func (s *MemoryStore) Remove(_ context.Context, cmd Command) error {
	if err := checkCommand(cmd, false); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{cmd.Kind, cmd.ID}
	stored, ok := s.items[k]
	if !ok {
		return ErrNotFound
	}
	if !matches(stored, cmd) {
		return ErrStale
	}
	delete(s.items, k)
	ids := s.order[k.kind]
	for i, id := range ids {
		if id == k.id {
			s.order[k.kind] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of stored entities of kind.
func (s *MemoryStore) Len(kind model.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order[kind])
}

// restore puts back a snapshot replaced by a write that could not be
// mirrored elsewhere.
func (s *MemoryStore) restore(ent model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key{ent.Kind(), ent.EntityID()}] = ent.Clone()
}

// prepareCreate fills in an id and timestamps on a copy of ent.
func prepareCreate(ent model.Entity, now func() time.Time) model.Entity {
	ent = ent.Clone()
	ts := now().UTC().Truncate(time.Microsecond)
	switch v := ent.(type) {
	case *model.Dealer:
		if v.ID == uuid.Nil {
			v.ID = uuid.New()
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = ts
		}
	case *model.Listing:
		if v.ID == uuid.Nil {
			v.ID = uuid.New()
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = ts
		}
	case *model.Report:
		if v.ID == uuid.Nil {
			v.ID = uuid.New()
		}
		if v.DateReported.IsZero() {
			v.DateReported = ts
		}
	}
	if ent.Touched().IsZero() {
		ent.Touch(ts)
	}
	return ent
}
