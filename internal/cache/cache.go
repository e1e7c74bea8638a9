// Package cache holds the console's working set: a TTL read-through cache of
// entities loaded from the store. It is only ever written with snapshots the
// store has confirmed.
package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

type key struct {
	kind model.Kind
	id   uuid.UUID
}

// entry holds a cached snapshot.
type entry struct {
	ent       model.Entity
	expiresAt time.Time
}

// WorkingSet is a thread-safe in-memory cache of entities. Entries expire
// after a configurable TTL; whole-kind listings expire with them.
type WorkingSet struct {
	mu      sync.RWMutex
	entries map[key]*entry
	order   map[model.Kind][]uuid.UUID
	listed  map[model.Kind]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// New creates a WorkingSet. A zero ttl disables expiry.
func New(ttl time.Duration) *WorkingSet {
	return &WorkingSet{
		entries: make(map[key]*entry),
		order:   make(map[model.Kind][]uuid.UUID),
		listed:  make(map[model.Kind]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (w *WorkingSet) expiry() time.Time {
	if w.ttl <= 0 {
		return time.Time{}
	}
	return w.now().Add(w.ttl)
}

func (w *WorkingSet) expired(at time.Time) bool {
	return !at.IsZero() && w.now().After(at)
}

// Get returns a copy of the cached entity.
func (w *WorkingSet) Get(kind model.Kind, id uuid.UUID) (model.Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entries[key{kind, id}]
	if !ok || w.expired(e.expiresAt) {
		return nil, false
	}
	return e.ent.Clone(), true
}

// Put stores a confirmed snapshot.
func (w *WorkingSet) Put(ent model.Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.put(ent)
}

func (w *WorkingSet) put(ent model.Entity) {
	k := key{ent.Kind(), ent.EntityID()}
	if _, ok := w.entries[k]; !ok {
		w.order[k.kind] = append(w.order[k.kind], k.id)
	}
	w.entries[k] = &entry{ent: ent.Clone(), expiresAt: w.expiry()}
}

// Fill replaces every cached entity of kind with ents, in order, and marks
// the kind as fully listed.
func (w *WorkingSet) Fill(kind model.Kind, ents []model.Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range w.order[kind] {
		delete(w.entries, key{kind, id})
	}
	w.order[kind] = nil
	for _, ent := range ents {
		w.put(ent)
	}
	w.listed[kind] = w.expiry()
}

// Listed returns copies of every entity of kind, in load order, if the kind
// was filled and has not expired or been invalidated since.
func (w *WorkingSet) Listed(kind model.Kind) ([]model.Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	exp, ok := w.listed[kind]
	if !ok || w.expired(exp) {
		return nil, false
	}
	out := make([]model.Entity, 0, len(w.order[kind]))
	for _, id := range w.order[kind] {
		e, ok := w.entries[key{kind, id}]
		if !ok || w.expired(e.expiresAt) {
			return nil, false
		}
		out = append(out, e.ent.Clone())
	}
	return out, true
}

// Invalidate drops one entity and the kind's listing.
func (w *WorkingSet) Invalidate(kind model.Kind, id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.remove(key{kind, id})
	delete(w.listed, kind)
}

// Remove drops an entity that no longer exists. The kind's listing stays
// valid because the store removed it too.
func (w *WorkingSet) Remove(kind model.Kind, id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.remove(key{kind, id})
}

func (w *WorkingSet) remove(k key) {
	if _, ok := w.entries[k]; !ok {
		return
	}
	delete(w.entries, k)
	ids := w.order[k.kind]
	for i, id := range ids {
		if id == k.id {
			w.order[k.kind] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

// Evict removes all expired entries and returns how many were dropped.
func (w *WorkingSet) Evict() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for k, e := range w.entries {
		if w.expired(e.expiresAt) {
			w.remove(k)
			delete(w.listed, k.kind)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries, including expired ones.
func (w *WorkingSet) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

// Dealer implements lifecycle.DealerLookup over the cached dealers.
func (w *WorkingSet) Dealer(id uuid.UUID) (*model.Dealer, bool) {
	ent, ok := w.Get(model.KindDealer, id)
	if !ok {
		return nil, false
	}
	d, ok := ent.(*model.Dealer)
	return d, ok
}

// DealerStatus reports the cached account status of a dealer by id string.
func (w *WorkingSet) DealerStatus(id string) (model.AccountStatus, bool) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	d, ok := w.Dealer(uid)
	if !ok {
		return "", false
	}
	return d.AccountStatus, true
}
