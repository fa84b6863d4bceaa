package arena

import (
	"testing"

	"moocore/types"
)

func TestPushPopScopeRewinds(t *testing.T) {
	a := New(4)
	base := a.PushScope(3)
	if a.Depth() != 3 {
		t.Fatalf("expected depth 3, got %d", a.Depth())
	}
	if !a.Set(base, 0, types.NewInt(42)) {
		t.Fatal("set failed")
	}
	v, ok := a.Get(base, 0)
	if !ok || !v.Equal(types.NewInt(42)) {
		t.Fatalf("expected 42, got %v ok=%v", v, ok)
	}

	a.PopScope()
	if a.Depth() != 0 {
		t.Fatalf("expected depth 0 after pop, got %d", a.Depth())
	}
}

func TestPopScopeUnderflowPanics(t *testing.T) {
	a := New(4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic popping an empty arena")
		}
	}()
	a.PopScope()
}

func TestNestedScopesIsolateSlots(t *testing.T) {
	a := New(8)
	outer := a.PushScope(2)
	a.Set(outer, 0, types.NewInt(1))

	inner := a.PushScope(2)
	a.Set(inner, 0, types.NewInt(2))

	v, _ := a.Get(inner, 0)
	if !v.Equal(types.NewInt(2)) {
		t.Fatalf("expected inner slot 2, got %v", v)
	}

	a.PopScope()
	v, _ = a.Get(outer, 0)
	if !v.Equal(types.NewInt(1)) {
		t.Fatalf("expected outer slot unaffected, got %v", v)
	}

	if _, ok := a.Get(inner, 0); ok {
		t.Error("expected inner slot unreadable after its scope popped")
	}
}

func TestCaptureEnvCopiesValues(t *testing.T) {
	a := New(4)
	base := a.PushScope(2)
	a.Set(base, 0, types.NewInt(10))
	a.Set(base, 1, types.NewInt(20))

	captured := a.CaptureEnv(base, 2)
	a.PopScope()

	if !captured[0].Equal(types.NewInt(10)) || !captured[1].Equal(types.NewInt(20)) {
		t.Fatalf("captured env wrong: %v", captured)
	}
}
