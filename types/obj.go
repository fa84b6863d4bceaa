package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ObjValue represents a MOO object reference. Three identifier flavors
// share this type, per spec §3.1: fixed/sequential numeric objects carry
// only an id; anonymous objects additionally carry a UUID so the storage
// engine's GC can recognize them independent of their (reused) numeric id.
type ObjValue struct {
	id        ObjID
	anonymous bool // true for anonymous objects (type code 12)
	anonID    uuid.UUID
}

// Special object constants
const (
	NOTHING      = ObjID(-1)
	AMBIGUOUS    = ObjID(-2)
	FAILED_MATCH = ObjID(-3)
)

// NewObj creates a new object value
func NewObj(id ObjID) ObjValue {
	return ObjValue{id: id, anonymous: false}
}

// NewAnon creates a new anonymous object value tagged with a fresh UUID.
func NewAnon(id ObjID) ObjValue {
	return ObjValue{id: id, anonymous: true, anonID: uuid.New()}
}

// NewAnonWithUUID reconstructs an anonymous object reference with a known
// UUID, used when deserializing VM/task state for GC reachability scans.
func NewAnonWithUUID(id ObjID, u uuid.UUID) ObjValue {
	return ObjValue{id: id, anonymous: true, anonID: u}
}

// AnonUUID returns the anonymous-object tag. Zero value for non-anonymous objects.
func (o ObjValue) AnonUUID() uuid.UUID {
	return o.anonID
}

// String returns the MOO string representation
func (o ObjValue) String() string {
	return fmt.Sprintf("#%d", o.id)
}

// Type returns the MOO type (TYPE_ANON for anonymous objects)
func (o ObjValue) Type() TypeCode {
	if o.anonymous {
		return TYPE_ANON
	}
	return TYPE_OBJ
}

// IsAnonymous returns whether this is an anonymous object
func (o ObjValue) IsAnonymous() bool {
	return o.anonymous
}

// Truthy returns whether the value is truthy
// In MOO, objects are never truthy (only non-zero ints and non-empty strings are truthy)
func (o ObjValue) Truthy() bool {
	return false
}

// Equal compares two values for equality
func (o ObjValue) Equal(other Value) bool {
	if otherObj, ok := other.(ObjValue); ok {
		if o.anonymous || otherObj.anonymous {
			return o.anonymous == otherObj.anonymous && o.id == otherObj.id && o.anonID == otherObj.anonID
		}
		return o.id == otherObj.id
	}
	return false
}

// ID returns the object ID
func (o ObjValue) ID() ObjID {
	return o.id
}
