package storage

import (
	"sync"
	"testing"
)

func TestCommitAppliesWrite(t *testing.T) {
	e := NewEngine()
	defer e.Close()
	rel := NewRelation[string, int]("counters", nil)

	txn := e.Begin()
	Write(txn, rel, "x", 1)
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn2 := e.Begin()
	v, ok := Read(txn2, rel, "x")
	if !ok || v != 1 {
		t.Fatalf("expected 1, got %v ok=%v", v, ok)
	}
}

func TestConcurrentIncrementRetries(t *testing.T) {
	e := NewEngine()
	defer e.Close()
	rel := NewRelation[string, int]("counters", nil)

	seed := e.Begin()
	Write(seed, rel, "count", 0)
	if err := seed.Commit(); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				txn := e.Begin()
				v, _ := Read(txn, rel, "count")
				Write(txn, rel, "count", v+1)
				if err := txn.Commit(); err == nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	final := e.Begin()
	v, _ := Read(final, rel, "count")
	if v != n {
		t.Errorf("expected count=%d after %d increments, got %d", n, n, v)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	e := NewEngine()
	defer e.Close()
	rel := NewRelation[string, int]("counters", nil)

	txn := e.Begin()
	Write(txn, rel, "x", 42)
	txn.Rollback()

	txn2 := e.Begin()
	_, ok := Read(txn2, rel, "x")
	if ok {
		t.Error("expected no value after rollback")
	}
}
