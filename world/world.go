package world

import (
	"moocore/db"
	"moocore/types"
)

// World wraps the object store with the permission-checked, spec-shaped
// operations of §4.4, adapted from the teacher's builtins/objects.go
// (which implements the same behavior inline, ungated behind a facade).
type World struct {
	Store *db.Store
}

// New wraps an existing store.
func New(store *db.Store) *World {
	return &World{Store: store}
}

func isWizard(store *db.Store, who types.ObjID) bool {
	obj := store.Get(who)
	return obj != nil && obj.Flags.Has(db.FlagWizard)
}

// Controls implements spec §4.4.1's `controls(who, what)`.
func (w *World) Controls(who, what types.ObjID) bool {
	if isWizard(w.Store, who) {
		return true
	}
	if who == what {
		return true
	}
	obj := w.Store.Get(what)
	return obj != nil && obj.Owner == who
}

// IDKind selects how CreateObject allocates a new object identifier,
// spec §3.2/§4.4.1.
type IDKind int

const (
	IDSequential IDKind = iota
	IDAnonymous
	IDExplicit
)

// CreateObject implements spec §4.4.1's `create_object`.
func (w *World) CreateObject(perms types.ObjID, parent types.ObjID, owner types.ObjID, flags db.ObjectFlags, kind IDKind, explicitID types.ObjID) (types.ObjID, error) {
	if parent != types.ObjNothing {
		parentObj := w.Store.Get(parent)
		if parentObj == nil {
			return types.ObjNothing, newErr(ObjectNotFound, "parent does not exist")
		}
		if !parentObj.Flags.Has(db.FlagFertile) && !isWizard(w.Store, perms) && parentObj.Owner != perms {
			return types.ObjNothing, newErr(ObjectPermissionDenied, "parent is not fertile")
		}
	}

	var id types.ObjID
	switch kind {
	case IDExplicit:
		if w.Store.GetUnsafe(explicitID) != nil {
			return types.ObjNothing, newErr(ObjectAlreadyExists, "")
		}
		id = explicitID
	default:
		id = w.Store.NextID()
	}

	obj := db.NewObject(id, owner)
	obj.Flags = flags
	obj.Anonymous = kind == IDAnonymous
	if obj.Anonymous {
		obj.Flags = obj.Flags.Set(db.FlagAnonymous)
	}
	if parent != types.ObjNothing {
		obj.Parents = []types.ObjID{parent}
	}

	if err := w.Store.Add(obj); err != nil {
		return types.ObjNothing, newErr(ObjectAlreadyExists, err.Error())
	}

	if parent != types.ObjNothing {
		parentObj := w.Store.Get(parent)
		parentObj.Children = append(parentObj.Children, id)
	}

	return id, nil
}

// RecycleObject implements spec §4.4.1's `recycle_object`: contents move
// to NOTHING, children reparent to the recycled object's own parent
// (the teacher's Store.Recycle leaves both untouched — this fills the
// gap spec §4.4.1 calls out explicitly).
func (w *World) RecycleObject(perms types.ObjID, id types.ObjID) error {
	obj := w.Store.Get(id)
	if obj == nil {
		return newErr(ObjectNotFound, "")
	}
	if !w.Controls(perms, id) {
		return newErr(ObjectPermissionDenied, "")
	}

	grandparents := append([]types.ObjID(nil), obj.Parents...)

	for _, childID := range obj.Children {
		child := w.Store.Get(childID)
		if child == nil {
			continue
		}
		child.Parents = replaceParent(child.Parents, id, grandparents)
		for _, gp := range grandparents {
			if gpObj := w.Store.Get(gp); gpObj != nil {
				gpObj.Children = appendUnique(gpObj.Children, childID)
			}
		}
	}
	for _, gp := range grandparents {
		if gpObj := w.Store.Get(gp); gpObj != nil {
			gpObj.Children = removeObjID(gpObj.Children, id)
		}
	}

	for _, contentID := range append([]types.ObjID(nil), obj.Contents...) {
		if err := w.MoveObject(perms, contentID, types.ObjNothing); err != nil {
			return err
		}
	}

	if err := w.Store.Recycle(id); err != nil {
		return newErr(ObjectNotFound, err.Error())
	}
	w.Store.NoteVerbCacheClear()
	return nil
}

func replaceParent(parents []types.ObjID, old types.ObjID, replacements []types.ObjID) []types.ObjID {
	out := make([]types.ObjID, 0, len(parents)+len(replacements))
	for _, p := range parents {
		if p == old {
			out = append(out, replacements...)
			continue
		}
		out = append(out, p)
	}
	return out
}

func appendUnique(list []types.ObjID, id types.ObjID) []types.ObjID {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func removeObjID(list []types.ObjID, id types.ObjID) []types.ObjID {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// isInLocationChain walks `location` pointers from start and reports
// whether target is reached — the cycle check spec §3.2/§4.4.1 requires
// before MoveObject installs a new location.
func (w *World) isInLocationChain(start, target types.ObjID) bool {
	seen := map[types.ObjID]bool{}
	cur := start
	for cur != types.ObjNothing {
		if cur == target {
			return true
		}
		if seen[cur] {
			return false // already-corrupt cycle; treat as non-match rather than hang
		}
		seen[cur] = true
		obj := w.Store.Get(cur)
		if obj == nil {
			return false
		}
		cur = obj.Location
	}
	return false
}

// MoveObject implements spec §4.4.1's `move_object`.
func (w *World) MoveObject(perms types.ObjID, what, newLoc types.ObjID) error {
	obj := w.Store.Get(what)
	if obj == nil {
		return newErr(ObjectNotFound, "")
	}

	if newLoc != types.ObjNothing {
		if w.Store.Get(newLoc) == nil {
			return newErr(ObjectNotFound, "destination does not exist")
		}
		if newLoc == what || w.isInLocationChain(newLoc, what) {
			return newErr(RecursiveMove, "")
		}
	}

	if obj.Location != types.ObjNothing {
		if oldLoc := w.Store.Get(obj.Location); oldLoc != nil {
			oldLoc.Contents = removeObjID(oldLoc.Contents, what)
		}
	}

	obj.Location = newLoc
	if newLoc != types.ObjNothing {
		if loc := w.Store.Get(newLoc); loc != nil {
			loc.Contents = appendUnique(loc.Contents, what)
		}
	}

	w.setLastMove(obj)
	return nil
}

func (w *World) setLastMove(obj *db.Object) {
	if obj.Properties == nil {
		return
	}
	if p, ok := obj.Properties["last_move"]; ok {
		p.Value = types.NewInt(0) // the teacher's textdump carries real timestamps via a Session clock; see DESIGN.md
		p.Clear = false
	}
}

// ChangeParent implements spec §4.4.1's `change_parent`: rejects cycles
// and reparentings that would duplicate a property name across the new
// ancestry and the object's own descendant tree.
func (w *World) ChangeParent(perms types.ObjID, obj types.ObjID, newParent types.ObjID) error {
	o := w.Store.Get(obj)
	if o == nil {
		return newErr(ObjectNotFound, "")
	}

	if newParent != types.ObjNothing {
		if newParent == obj || w.isAncestor(obj, newParent) {
			return newErr(RecursiveMove, "")
		}
		if conflict := w.findPropertyNameConflict(obj, newParent); conflict != "" {
			return newErr(ChparentPropertyNameConflict, conflict)
		}
	}

	for _, oldParent := range o.Parents {
		if pObj := w.Store.Get(oldParent); pObj != nil {
			pObj.Children = removeObjID(pObj.Children, obj)
		}
	}

	if newParent == types.ObjNothing {
		o.Parents = nil
	} else {
		o.Parents = []types.ObjID{newParent}
		if p := w.Store.Get(newParent); p != nil {
			p.Children = appendUnique(p.Children, obj)
		}
	}
	w.Store.NoteVerbCacheClear()
	return nil
}

// isAncestor reports whether candidate is already an ancestor of obj
// (i.e. re-parenting obj under candidate would create a cycle).
func (w *World) isAncestor(obj, candidate types.ObjID) bool {
	seen := map[types.ObjID]bool{}
	queue := []types.ObjID{obj}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		o := w.Store.Get(cur)
		if o == nil {
			continue
		}
		for _, c := range o.Children {
			if c == candidate {
				return true
			}
			queue = append(queue, c)
		}
	}
	return false
}

// findPropertyNameConflict returns the first property name defined
// both somewhere in newParent's ancestry and somewhere in obj's own
// descendant tree (spec §4.4.1 change_parent errors).
func (w *World) findPropertyNameConflict(obj, newParent types.ObjID) string {
	ancestorNames := map[string]bool{}
	for _, a := range w.AncestorsOf(newParent, true) {
		if ao := w.Store.Get(a); ao != nil {
			for name := range ao.Properties {
				if ao.Properties[name].Defined {
					ancestorNames[name] = true
				}
			}
		}
	}
	for _, d := range w.DescendantsOf(obj, true) {
		if do := w.Store.Get(d); do != nil {
			for name := range do.Properties {
				if do.Properties[name].Defined && ancestorNames[name] {
					return name
				}
			}
		}
	}
	return ""
}

// AncestorsOf returns obj's ancestor chain in breadth-first order.
func (w *World) AncestorsOf(obj types.ObjID, includeSelf bool) []types.ObjID {
	var out []types.ObjID
	seen := map[types.ObjID]bool{}
	if includeSelf {
		out = append(out, obj)
		seen[obj] = true
	}
	o := w.Store.Get(obj)
	if o == nil {
		return out
	}
	queue := append([]types.ObjID(nil), o.Parents...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		if co := w.Store.Get(cur); co != nil {
			queue = append(queue, co.Parents...)
		}
	}
	return out
}

// DescendantsOf returns obj's descendant tree in breadth-first order.
func (w *World) DescendantsOf(obj types.ObjID, includeSelf bool) []types.ObjID {
	var out []types.ObjID
	seen := map[types.ObjID]bool{}
	if includeSelf {
		out = append(out, obj)
		seen[obj] = true
	}
	o := w.Store.Get(obj)
	if o == nil {
		return out
	}
	queue := append([]types.ObjID(nil), o.Children...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		if co := w.Store.Get(cur); co != nil {
			queue = append(queue, co.Children...)
		}
	}
	return out
}

// ChildrenOf returns obj's direct children.
func (w *World) ChildrenOf(obj types.ObjID) []types.ObjID {
	o := w.Store.Get(obj)
	if o == nil {
		return nil
	}
	return append([]types.ObjID(nil), o.Children...)
}

// ParentOf returns obj's first parent (NOTHING if none) — ToastStunt
// multiple-inheritance objects may have more; see Store.Object.Parents.
func (w *World) ParentOf(obj types.ObjID) types.ObjID {
	o := w.Store.Get(obj)
	if o == nil || len(o.Parents) == 0 {
		return types.ObjNothing
	}
	return o.Parents[0]
}
