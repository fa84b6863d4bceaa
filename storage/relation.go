// Package storage implements the MVCC world-state engine of spec §4.5:
// per-relation transactional caches over a persistent KV backing store,
// a working-set-based transaction, and a single-committer validation
// protocol. It is deliberately generic over key/value shape so the
// twelve relations spec §4.5 names (object_flags, object_parent, ...,
// sequences) are all instances of the same Relation[K,V], rather than
// twelve hand-written copies of the same bookkeeping.
package storage

import "sync"

// stamped pairs a value with the commit timestamp that last wrote it.
type stamped[V any] struct {
	val V
	ts  uint64
}

// Relation is one typed key-value map of the world-state schema, e.g.
// object_parent: Obj -> Obj. It is the authority a Transaction validates
// reads and applies writes against at commit time.
type Relation[K comparable, V any] struct {
	name string

	mu      sync.RWMutex
	entries map[K]stamped[V]

	backing KVStore[K, V] // nil for relations with no durable backing (derived sets)
}

// NewRelation creates an empty relation with the given name (used in
// lock-ordering and diagnostics) and optional backing store.
func NewRelation[K comparable, V any](name string, backing KVStore[K, V]) *Relation[K, V] {
	return &Relation[K, V]{name: name, entries: make(map[K]stamped[V]), backing: backing}
}

// Name returns the relation's identifier.
func (r *Relation[K, V]) Name() string { return r.name }

// snapshot returns the current value and timestamp for k, populating
// from the backing store on a cache miss (spec §4.5 "Cache" section).
func (r *Relation[K, V]) snapshot(k K) (V, uint64, bool) {
	r.mu.RLock()
	e, ok := r.entries[k]
	r.mu.RUnlock()
	if ok {
		return e.val, e.ts, true
	}

	if r.backing == nil {
		var zero V
		return zero, 0, false
	}
	v, ok := r.backing.Get(k)
	if !ok {
		var zero V
		return zero, 0, false
	}
	r.mu.Lock()
	r.entries[k] = stamped[V]{val: v, ts: 0}
	r.mu.Unlock()
	return v, 0, true
}

// currentTS reports the relation's timestamp for k without touching the
// backing store, used by commit validation (a key that was never read
// into the cache trivially validates, since nothing could have raced it).
func (r *Relation[K, V]) currentTS(k K) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[k].ts
}

// apply installs v at timestamp ts and persists it to the backing store,
// called only by the committer while holding the relation's write lock.
func (r *Relation[K, V]) apply(k K, v V, ts uint64) {
	r.mu.Lock()
	r.entries[k] = stamped[V]{val: v, ts: ts}
	r.mu.Unlock()
	if r.backing != nil {
		r.backing.Put(k, v)
	}
}

func (r *Relation[K, V]) deleteApply(k K, ts uint64) {
	r.mu.Lock()
	delete(r.entries, k)
	r.mu.Unlock()
	if r.backing != nil {
		r.backing.Delete(k)
	}
	_ = ts
}

// Lock/Unlock expose the relation's write mutex to the committer, which
// must acquire every touched relation's lock in a fixed, global order
// (spec §4.5/§5 "documented order... to avoid deadlock") before
// validating or applying.
func (r *Relation[K, V]) Lock()   { r.mu.Lock() }
func (r *Relation[K, V]) Unlock() { r.mu.Unlock() }

// EvictColder drops cached entries whose timestamp is older than
// keepAbove, bounding relation memory use per spec §4.5 "Cache" —
// eviction is periodic and byte/age based, not reference-counted.
func (r *Relation[K, V]) EvictColder(keepAbove uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, e := range r.entries {
		if e.ts < keepAbove {
			delete(r.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of cached entries, for eviction-threshold checks.
func (r *Relation[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// anyRelation is the type-erased view of a Relation a Transaction's
// working set uses so reads/writes across differently-typed relations
// (Obj->Obj, Obj->string, (Obj,UUID)->Var, ...) can share one commit
// path. Each method takes/returns `any` and type-asserts internally;
// a mismatch is a storage-layer bug, not a user-facing error, so it
// panics rather than threading an error return through every call site.
type anyRelation interface {
	Name() string
	snapshotAny(k any) (any, uint64, bool)
	currentTSAny(k any) uint64
	applyAny(k any, v any, ts uint64)
	deleteApplyAny(k any, ts uint64)
	Lock()
	Unlock()
}

func (r *Relation[K, V]) snapshotAny(k any) (any, uint64, bool) {
	v, ts, ok := r.snapshot(k.(K))
	return v, ts, ok
}

func (r *Relation[K, V]) currentTSAny(k any) uint64 {
	return r.currentTS(k.(K))
}

func (r *Relation[K, V]) applyAny(k any, v any, ts uint64) {
	r.apply(k.(K), v.(V), ts)
}

func (r *Relation[K, V]) deleteApplyAny(k any, ts uint64) {
	r.deleteApply(k.(K), ts)
}
