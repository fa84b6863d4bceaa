// Package world is the world-state facade of spec §4.4: object
// creation/recycling/move/reparenting, verb and property definition and
// resolution, and the `controls` permission predicate. Every operation
// takes a `perms Obj` capability per spec §4.4.1 and returns a
// WorldStateError on failure, converted to a runtime E_* value at the
// VM boundary (spec §7.3) rather than surfacing Go errors to user code.
package world

import "moocore/types"

// WorldStateErrorKind enumerates the closed error taxonomy of spec §7.3.
type WorldStateErrorKind int

const (
	ObjectNotFound WorldStateErrorKind = iota
	ObjectAlreadyExists
	ObjectPermissionDenied
	RecursiveMove
	ChparentPropertyNameConflict
	VerbNotFound
	VerbPermissionDenied
	PropertyNotFound
	PropertyPermissionDenied
	CannotClearPropertyOnDefiner
	PropertyTypeMismatch
	DuplicatePropertyDefinition
	InvalidArgument
)

func (k WorldStateErrorKind) String() string {
	switch k {
	case ObjectNotFound:
		return "ObjectNotFound"
	case ObjectAlreadyExists:
		return "ObjectAlreadyExists"
	case ObjectPermissionDenied:
		return "ObjectPermissionDenied"
	case RecursiveMove:
		return "RecursiveMove"
	case ChparentPropertyNameConflict:
		return "ChparentPropertyNameConflict"
	case VerbNotFound:
		return "VerbNotFound"
	case VerbPermissionDenied:
		return "VerbPermissionDenied"
	case PropertyNotFound:
		return "PropertyNotFound"
	case PropertyPermissionDenied:
		return "PropertyPermissionDenied"
	case CannotClearPropertyOnDefiner:
		return "CannotClearPropertyOnDefiner"
	case PropertyTypeMismatch:
		return "PropertyTypeMismatch"
	case DuplicatePropertyDefinition:
		return "DuplicatePropertyDefinition"
	case InvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// WorldStateError is the error family of spec §7.3.
type WorldStateError struct {
	Kind WorldStateErrorKind
	Msg  string
}

func (e *WorldStateError) Error() string {
	if e.Msg != "" {
		return e.Kind.String() + ": " + e.Msg
	}
	return e.Kind.String()
}

func newErr(kind WorldStateErrorKind, msg string) *WorldStateError {
	return &WorldStateError{Kind: kind, Msg: msg}
}

// ToErrorCode converts a WorldStateError to the runtime error the VM
// raises at the call boundary (spec §7.3's conversion table).
func ToErrorCode(err error) types.ErrorCode {
	wse, ok := err.(*WorldStateError)
	if !ok {
		return types.E_INVARG
	}
	switch wse.Kind {
	case ObjectNotFound:
		return types.E_INVIND
	case ObjectAlreadyExists:
		return types.E_INVARG
	case ObjectPermissionDenied, VerbPermissionDenied, PropertyPermissionDenied:
		return types.E_PERM
	case RecursiveMove:
		return types.E_RECMOVE
	case ChparentPropertyNameConflict:
		return types.E_INVARG
	case VerbNotFound:
		return types.E_VERBNF
	case PropertyNotFound:
		return types.E_PROPNF
	case CannotClearPropertyOnDefiner, DuplicatePropertyDefinition, PropertyTypeMismatch, InvalidArgument:
		return types.E_INVARG
	default:
		return types.E_INVARG
	}
}
