package world

import (
	"moocore/db"
	"moocore/storage"
	"moocore/types"
)

// PropKey addresses one property slot in the transactional value
// relation: the defining object plus the property name. Values read
// through this relation go through storage's MVCC commit protocol
// (spec §4.5, §8 scenario 5's count-increment race) instead of being
// mutated in place on db.Object like every other piece of object state.
type PropKey struct {
	Obj  types.ObjID
	Name string
}

// PropertyValues is the MVCC-backed relation holding every property's
// current value, keyed by (definer, name) so two tasks racing to read
// and increment the same counter property genuinely conflict and retry
// at commit time rather than silently clobbering one update.
type PropertyValues struct {
	engine   *storage.Engine
	relation *storage.Relation[PropKey, types.Value]
}

// NewPropertyValues creates the property-value relation against engine,
// optionally backed by a durable KV store for persistence across restarts.
func NewPropertyValues(engine *storage.Engine, backing storage.KVStore[PropKey, types.Value]) *PropertyValues {
	return &PropertyValues{engine: engine, relation: storage.NewRelation[PropKey, types.Value]("property_values", backing)}
}

// ParsePropertyPerms reads an "rwc"-style permission string, grounded
// on builtins/properties.go's parsePerms.
func ParsePropertyPerms(s string) db.PropertyPerms {
	var perms db.PropertyPerms
	for _, ch := range s {
		switch ch {
		case 'r':
			perms |= db.PropRead
		case 'w':
			perms |= db.PropWrite
		case 'c':
			perms |= db.PropChown
		}
	}
	return perms
}

// findPropertyInChain walks obj's ancestry breadth-first for the
// nearest non-cleared entry, same traversal and Clear-skipping rule as
// the VM's obj.prop accessor (vm.Evaluator.findProperty): a cleared
// local override is treated as absent so the search continues toward
// the object that actually holds a value.
func (w *World) findPropertyInChain(obj types.ObjID, name string) (*db.Property, types.ObjID) {
	queue := []types.ObjID{obj}
	seen := map[types.ObjID]bool{}
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
		if p, ok := o.Properties[name]; ok && !p.Clear {
			return p, cur
		}
		queue = append(queue, o.Parents...)
	}
	return nil, types.ObjNothing
}

func canWriteProp(perms types.ObjID, prop *db.Property, isWizard bool) bool {
	if isWizard {
		return true
	}
	return prop.Owner == perms || prop.Perms.Has(db.PropWrite)
}

// DefineProperty implements spec §4.4.1's `add_property`.
func (w *World) DefineProperty(perms types.ObjID, obj types.ObjID, name string, value types.Value, owner types.ObjID, permLetters string) error {
	o := w.Store.Get(obj)
	if o == nil {
		return newErr(ObjectNotFound, "")
	}
	if _, exists := o.Properties[name]; exists {
		return newErr(DuplicatePropertyDefinition, name)
	}
	if !isWizard(w.Store, perms) && o.Owner != perms {
		return newErr(PropertyPermissionDenied, "")
	}
	if o.Properties == nil {
		o.Properties = map[string]*db.Property{}
	}
	o.Properties[name] = &db.Property{
		Name:    name,
		Value:   value,
		Owner:   owner,
		Perms:   ParsePropertyPerms(permLetters),
		Clear:   false,
		Defined: true,
	}
	o.PropDefsCount++
	o.PropOrder = append(o.PropOrder, name)
	return nil
}

// DeleteProperty implements spec §4.4.1's `delete_property`. It must be
// called on the object that originally defined the property, mirroring
// `CannotClearPropertyOnDefiner` for clear_property's dual constraint.
func (w *World) DeleteProperty(perms types.ObjID, obj types.ObjID, name string) error {
	o := w.Store.Get(obj)
	if o == nil {
		return newErr(ObjectNotFound, "")
	}
	prop, exists := o.Properties[name]
	if !exists || !prop.Defined {
		return newErr(PropertyNotFound, name)
	}
	if !isWizard(w.Store, perms) && o.Owner != perms {
		return newErr(PropertyPermissionDenied, "")
	}
	delete(o.Properties, name)
	o.PropDefsCount--
	return nil
}

// ClearProperty implements spec §4.4.1's `clear_property`: reverts a
// child's override back to inheriting from its parent. Only the
// overriding object's copy is cleared; the definer's own copy cannot be
// cleared (it has nothing to inherit from).
func (w *World) ClearProperty(perms types.ObjID, obj types.ObjID, name string) error {
	o := w.Store.Get(obj)
	if o == nil {
		return newErr(ObjectNotFound, "")
	}
	prop, exists := o.Properties[name]
	if !exists {
		return newErr(PropertyNotFound, name)
	}
	if prop.Defined {
		return newErr(CannotClearPropertyOnDefiner, name)
	}
	if !canWriteProp(perms, prop, isWizard(w.Store, perms)) {
		return newErr(PropertyPermissionDenied, "")
	}
	prop.Clear = true
	prop.Value = nil
	return nil
}

// SetPropertyInfo implements spec §4.4.1's `set_property_info`: changes
// a property's owner and/or permission letters.
func (w *World) SetPropertyInfo(perms types.ObjID, obj types.ObjID, name string, newOwner types.ObjID, newPermLetters string) error {
	o := w.Store.Get(obj)
	if o == nil {
		return newErr(ObjectNotFound, "")
	}
	prop, exists := o.Properties[name]
	if !exists {
		return newErr(PropertyNotFound, name)
	}
	if !canWriteProp(perms, prop, isWizard(w.Store, perms)) {
		return newErr(PropertyPermissionDenied, "")
	}
	if newOwner != types.ObjNothing {
		prop.Owner = newOwner
	}
	if newPermLetters != "" {
		prop.Perms = ParsePropertyPerms(newPermLetters)
	}
	return nil
}

// ResolveProperty implements spec §4.4.1's property lookup: find the
// defining property in obj's ancestry and, through PropertyValues'
// transaction, its current committed value (or the definer's own value
// if the resolved copy is Clear).
func (w *World) ResolveProperty(pv *PropertyValues, obj types.ObjID, name string) (types.Value, error) {
	prop, definer := w.findPropertyInChain(obj, name)
	if definer == types.ObjNothing {
		return nil, newErr(PropertyNotFound, name)
	}
	key := PropKey{Obj: definer, Name: name}
	txn := pv.engine.Begin()
	if v, ok := storage.Read(txn, pv.relation, key); ok {
		return v, nil
	}
	return prop.Value, nil
}

// UpdateProperty implements spec §4.4.1's `set_property` via the
// transactional value relation, so the read-modify-write callers do
// (e.g. the count-increment race of spec §8 scenario 5) genuinely
// conflict and retry rather than lose an update. Callers supply an
// already-open transaction so the read they validated against and the
// write they perform commit atomically together.
func (w *World) UpdateProperty(txn *storage.Transaction, pv *PropertyValues, perms types.ObjID, obj types.ObjID, name string, value types.Value) error {
	prop, definer := w.findPropertyInChain(obj, name)
	if definer == types.ObjNothing {
		return newErr(PropertyNotFound, name)
	}
	if !canWriteProp(perms, prop, isWizard(w.Store, perms)) {
		return newErr(PropertyPermissionDenied, "")
	}
	key := PropKey{Obj: definer, Name: name}
	storage.Write(txn, pv.relation, key, value)
	return nil
}
