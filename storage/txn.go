package storage

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrConflict is returned by Commit when a read or write in the working
// set was invalidated by a commit that landed after the transaction's
// snapshot was taken (spec §4.5 "Commit protocol" step 2).
var ErrConflict = errors.New("storage: commit conflict, transaction must retry")

type entryKind int

const (
	kindRead entryKind = iota
	kindWrite
	kindDelete
)

type workingEntry struct {
	relation anyRelation
	key      any
	val      any
	readTS   uint64 // timestamp observed at Read time, for validation
	kind     entryKind
}

// Transaction is the per-task working set: every Read this task has
// performed (to validate at commit) and every Write/Delete it wants to
// apply (to install at commit), buffered independent of the shared
// relation caches until Commit succeeds (spec §4.5 "Transaction lifecycle").
type Transaction struct {
	engine *Engine
	ts     uint64 // snapshot timestamp taken at Begin

	mu      sync.Mutex
	entries map[relKey]*workingEntry
}

type relKey struct {
	relation string
	key      any
}

// Read returns the current value for k in relation r, preferring this
// transaction's own prior write, else the relation's cache/backing
// store, recording the observed timestamp in the working set.
func Read[K comparable, V any](txn *Transaction, r *Relation[K, V], k K) (V, bool) {
	rk := relKey{relation: r.Name(), key: k}

	txn.mu.Lock()
	if e, ok := txn.entries[rk]; ok {
		txn.mu.Unlock()
		if e.kind == kindDelete {
			var zero V
			return zero, false
		}
		return e.val.(V), true
	}
	txn.mu.Unlock()

	v, ts, ok := r.snapshot(k)
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if _, raced := txn.entries[rk]; !raced {
		txn.entries[rk] = &workingEntry{relation: r, key: k, val: v, readTS: ts, kind: kindRead}
	}
	return v, ok
}

// Write buffers v for k in relation r; visible to later reads within
// the same transaction, invisible to every other transaction until Commit.
func Write[K comparable, V any](txn *Transaction, r *Relation[K, V], k K, v V) {
	rk := relKey{relation: r.Name(), key: k}
	txn.mu.Lock()
	defer txn.mu.Unlock()
	readTS := uint64(0)
	if e, ok := txn.entries[rk]; ok && e.kind == kindRead {
		readTS = e.readTS
	}
	txn.entries[rk] = &workingEntry{relation: r, key: k, val: v, readTS: readTS, kind: kindWrite}
}

// Delete buffers removal of k from relation r.
func Delete[K comparable, V any](txn *Transaction, r *Relation[K, V], k K) {
	rk := relKey{relation: r.Name(), key: k}
	txn.mu.Lock()
	defer txn.mu.Unlock()
	txn.entries[rk] = &workingEntry{relation: r, key: k, readTS: 0, kind: kindDelete}
}

// Snapshot returns the timestamp this transaction began at.
func (txn *Transaction) Snapshot() uint64 { return txn.ts }

// commitRequest is submitted to the engine's single committer goroutine.
type commitRequest struct {
	txn    *Transaction
	result chan error
}

// Engine owns the full set of relations plus the single committer
// goroutine that serializes commit validation (spec §4.5 "Commit
// protocol (committer thread)").
type Engine struct {
	clock    atomic.Uint64 // monotonic transaction/commit timestamp counter
	requests chan commitRequest
	done     chan struct{}
	wg       sync.WaitGroup

	Sequences *Relation[uint16, int64] // spec §4.5 "sequences" relation
}

// NewEngine starts an Engine with its committer goroutine running.
func NewEngine() *Engine {
	e := &Engine{
		requests:  make(chan commitRequest, 64),
		done:      make(chan struct{}),
		Sequences: NewRelation[uint16, int64]("sequences", nil),
	}
	e.wg.Add(1)
	go e.committerLoop()
	return e
}

// Close stops the committer goroutine, waiting for the commit it is
// processing to finish; requests still queued are not processed.
func (e *Engine) Close() {
	close(e.done)
	e.wg.Wait()
}

// Begin takes a monotonic snapshot timestamp and returns a fresh
// Transaction (spec §4.5 "Begin").
func (e *Engine) Begin() *Transaction {
	return &Transaction{
		engine:  e,
		ts:      e.clock.Add(1),
		entries: make(map[relKey]*workingEntry),
	}
}

// Commit submits txn to the committer goroutine and blocks for the
// result: nil on success, ErrConflict if any read or write was
// invalidated by a racing commit (spec §4.5 "Commit protocol").
func (txn *Transaction) Commit() error {
	result := make(chan error, 1)
	txn.engine.requests <- commitRequest{txn: txn, result: result}
	return <-result
}

// Rollback discards the working set; trivial by design (spec §4.5
// "Rollback is trivial: drop the working set").
func (txn *Transaction) Rollback() {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	txn.entries = make(map[relKey]*workingEntry)
}

func (e *Engine) committerLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case req := <-e.requests:
			req.result <- e.commitOne(req.txn)
		}
	}
}

// commitOne implements spec §4.5's four-step commit protocol: acquire
// every touched relation's lock in a fixed order, validate every read
// and write against the relation's current timestamp, apply all writes
// under a single new commit timestamp, then release.
func (e *Engine) commitOne(txn *Transaction) error {
	txn.mu.Lock()
	entries := make([]*workingEntry, 0, len(txn.entries))
	for _, ent := range txn.entries {
		entries = append(entries, ent)
	}
	txn.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	relSet := map[string]anyRelation{}
	for _, ent := range entries {
		relSet[ent.relation.Name()] = ent.relation
	}
	names := make([]string, 0, len(relSet))
	for name := range relSet {
		names = append(names, name)
	}
	sort.Strings(names) // fixed global lock order, spec §4.5/§5

	for _, name := range names {
		relSet[name].Lock()
	}
	defer func() {
		for _, name := range names {
			relSet[name].Unlock()
		}
	}()

	for _, ent := range entries {
		if ent.kind != kindRead && ent.kind != kindWrite {
			continue
		}
		if ent.kind == kindWrite && ent.readTS == 0 {
			// blind write with no prior read in this txn: nothing to
			// validate against, but if something else already wrote
			// this key after our snapshot we still must reject it.
			if cur := ent.relation.currentTSAny(ent.key); cur > txn.ts {
				return ErrConflict
			}
			continue
		}
		if cur := ent.relation.currentTSAny(ent.key); cur != ent.readTS {
			return ErrConflict
		}
	}

	commitTS := e.clock.Add(1)
	for _, ent := range entries {
		switch ent.kind {
		case kindWrite:
			ent.relation.applyAny(ent.key, ent.val, commitTS)
		case kindDelete:
			ent.relation.deleteApplyAny(ent.key, commitTS)
		}
	}
	return nil
}
