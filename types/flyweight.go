package types

import (
	"fmt"
	"strings"
)

// FlyweightValue is an immutable, identity-free composite value:
// {delegate, slots, contents} per spec §3.1/GLOSSARY. Unlike an object
// it has no owner, no location, and no verb table of its own — property
// and verb lookups that miss in slots fall through to the delegate.
type FlyweightValue struct {
	Delegate ObjValue
	Slots    MapValue // Symbol -> Value, see resolveSlot below for key handling
	Contents []Value
}

// NewFlyweight builds a flyweight from a delegate, slot map, and contents.
func NewFlyweight(delegate ObjValue, slots MapValue, contents []Value) FlyweightValue {
	cp := make([]Value, len(contents))
	copy(cp, contents)
	return FlyweightValue{Delegate: delegate, Slots: slots, Contents: cp}
}

func (f FlyweightValue) Type() TypeCode { return TYPE_WAIF }

func (f FlyweightValue) String() string {
	var parts []string
	for _, p := range f.Slots.Pairs() {
		parts = append(parts, fmt.Sprintf("%s -> %s", p[0].String(), p[1].String()))
	}
	return fmt.Sprintf("<%s, [%s], %s>", f.Delegate.String(), strings.Join(parts, ", "), listLiteral(f.Contents))
}

func listLiteral(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (f FlyweightValue) Truthy() bool { return true }

// Equal implements the resolution of spec §9 Open Question 3: delegates
// must match, slots must match as sets of (key,value) pairs regardless
// of insertion order, and contents must match element-wise in order.
func (f FlyweightValue) Equal(other Value) bool {
	o, ok := other.(FlyweightValue)
	if !ok {
		return false
	}
	if !f.Delegate.Equal(o.Delegate) {
		return false
	}
	if !f.Slots.Equal(o.Slots) {
		return false
	}
	if len(f.Contents) != len(o.Contents) {
		return false
	}
	for i := range f.Contents {
		if !f.Contents[i].Equal(o.Contents[i]) {
			return false
		}
	}
	return true
}

// GetSlot looks up a slot by symbol name.
func (f FlyweightValue) GetSlot(name string) (Value, bool) {
	return f.Slots.Get(NewSymbol(name))
}

// WithSlot returns a copy with the named slot set (copy-on-write).
func (f FlyweightValue) WithSlot(name string, val Value) FlyweightValue {
	f.Slots = f.Slots.Set(NewSymbol(name), val)
	return f
}

// --- legacy waif-shaped call sites --------------------------------------
//
// The teacher repo's prototype-based "waif" predates flyweights acquiring
// a delegate/slots/contents shape; WaifValue is kept as an alias so call
// sites written against the old class/owner/named-property API keep
// working unchanged, backed by the new representation (owner lives in a
// reserved "owner" slot; class is the delegate).

// WaifValue is the old name for FlyweightValue.
type WaifValue = FlyweightValue

const ownerSlotName = "owner"

// NewWaif builds a flyweight the way the old prototype-waif constructor
// did: delegate = class, owner recorded in a reserved slot.
func NewWaif(class ObjID, owner ObjID) FlyweightValue {
	return FlyweightValue{
		Delegate: NewObj(class),
		Slots:    NewEmptyMap().Set(NewSymbol(ownerSlotName), NewObj(owner)),
	}
}

// Class returns the flyweight's delegate object id (legacy waif "class").
func (f FlyweightValue) Class() ObjID { return f.Delegate.ID() }

// Owner returns the object id stored in the reserved owner slot, or
// NOTHING if absent (legacy waif "owner").
func (f FlyweightValue) Owner() ObjID {
	if v, ok := f.GetSlot(ownerSlotName); ok {
		if o, ok := v.(ObjValue); ok {
			return o.ID()
		}
	}
	return NOTHING
}

// GetProperty reads a named slot (legacy waif property access).
func (f FlyweightValue) GetProperty(name string) (Value, bool) {
	return f.GetSlot(name)
}

// SetProperty returns a copy with the named slot set (legacy waif
// property access, copy-on-write).
func (f FlyweightValue) SetProperty(name string, value Value) FlyweightValue {
	return f.WithSlot(name, value)
}
