package world

import (
	"testing"

	"moocore/db"
	"moocore/types"
)

func newTestWorld(t *testing.T) (*World, types.ObjID, types.ObjID) {
	t.Helper()
	store := db.NewStore()
	w := New(store)

	wizard := store.NextID()
	wizObj := db.NewObject(wizard, wizard)
	wizObj.Flags = wizObj.Flags.Set(db.FlagWizard)
	if err := store.Add(wizObj); err != nil {
		t.Fatalf("add wizard: %v", err)
	}

	root := store.NextID()
	rootObj := db.NewObject(root, wizard)
	rootObj.Flags = rootObj.Flags.Set(db.FlagFertile)
	if err := store.Add(rootObj); err != nil {
		t.Fatalf("add root: %v", err)
	}
	return w, wizard, root
}

func TestCreateObjectRequiresFertileParent(t *testing.T) {
	w, wizard, root := newTestWorld(t)

	child, err := w.CreateObject(wizard, root, wizard, 0, IDSequential, types.ObjNothing)
	if err != nil {
		t.Fatalf("create under fertile parent: %v", err)
	}
	if w.ParentOf(child) != root {
		t.Errorf("expected parent %v, got %v", root, w.ParentOf(child))
	}

	nonFertile, _ := w.CreateObject(wizard, types.ObjNothing, wizard, 0, IDSequential, types.ObjNothing)
	normalUser := w.Store.NextID()
	userObj := db.NewObject(normalUser, normalUser)
	if err := w.Store.Add(userObj); err != nil {
		t.Fatalf("add user: %v", err)
	}

	if _, err := w.CreateObject(normalUser, nonFertile, normalUser, 0, IDSequential, types.ObjNothing); err == nil {
		t.Error("expected permission error creating under non-fertile parent owned by another user")
	}
}

func TestMoveObjectRejectsRecursiveMove(t *testing.T) {
	w, wizard, root := newTestWorld(t)

	a, _ := w.CreateObject(wizard, root, wizard, 0, IDSequential, types.ObjNothing)
	b, _ := w.CreateObject(wizard, root, wizard, 0, IDSequential, types.ObjNothing)

	if err := w.MoveObject(wizard, b, a); err != nil {
		t.Fatalf("move b into a: %v", err)
	}
	if err := w.MoveObject(wizard, a, b); err == nil {
		t.Error("expected RecursiveMove moving a into its own content b")
	}
}

func TestMoveObjectUpdatesContents(t *testing.T) {
	w, wizard, root := newTestWorld(t)
	box, _ := w.CreateObject(wizard, root, wizard, 0, IDSequential, types.ObjNothing)
	ball, _ := w.CreateObject(wizard, root, wizard, 0, IDSequential, types.ObjNothing)

	if err := w.MoveObject(wizard, ball, box); err != nil {
		t.Fatalf("move: %v", err)
	}
	boxObj := w.Store.Get(box)
	found := false
	for _, c := range boxObj.Contents {
		if c == ball {
			found = true
		}
	}
	if !found {
		t.Error("ball not present in box.Contents after move")
	}

	if err := w.MoveObject(wizard, ball, types.ObjNothing); err != nil {
		t.Fatalf("move to nothing: %v", err)
	}
	boxObj = w.Store.Get(box)
	for _, c := range boxObj.Contents {
		if c == ball {
			t.Error("ball still present in box.Contents after moving out")
		}
	}
}

func TestRecycleObjectReparentsChildrenAndEmptiesContents(t *testing.T) {
	w, wizard, root := newTestWorld(t)
	mid, _ := w.CreateObject(wizard, root, wizard, db.FlagFertile, IDSequential, types.ObjNothing)
	leaf, _ := w.CreateObject(wizard, mid, wizard, 0, IDSequential, types.ObjNothing)
	thing, _ := w.CreateObject(wizard, root, wizard, 0, IDSequential, types.ObjNothing)

	if err := w.MoveObject(wizard, thing, mid); err != nil {
		t.Fatalf("move: %v", err)
	}

	if err := w.RecycleObject(wizard, mid); err != nil {
		t.Fatalf("recycle: %v", err)
	}

	if w.ParentOf(leaf) != root {
		t.Errorf("expected leaf reparented to %v, got %v", root, w.ParentOf(leaf))
	}
	thingObj := w.Store.Get(thing)
	if thingObj.Location != types.ObjNothing {
		t.Errorf("expected thing relocated to NOTHING, got %v", thingObj.Location)
	}
}

func TestChangeParentDetectsCycle(t *testing.T) {
	w, wizard, root := newTestWorld(t)
	a, _ := w.CreateObject(wizard, root, wizard, db.FlagFertile, IDSequential, types.ObjNothing)
	b, _ := w.CreateObject(wizard, a, wizard, 0, IDSequential, types.ObjNothing)

	if err := w.ChangeParent(wizard, a, b); err == nil {
		t.Error("expected RecursiveMove reparenting a under its own descendant b")
	}
}

func TestControlsOwnerAndWizard(t *testing.T) {
	w, wizard, root := newTestWorld(t)
	obj, _ := w.CreateObject(wizard, root, wizard, 0, IDSequential, types.ObjNothing)

	if !w.Controls(wizard, obj) {
		t.Error("wizard should control everything")
	}

	other := w.Store.NextID()
	otherObj := db.NewObject(other, other)
	if err := w.Store.Add(otherObj); err != nil {
		t.Fatalf("add other: %v", err)
	}
	if w.Controls(other, obj) {
		t.Error("non-owner non-wizard should not control obj")
	}
}
