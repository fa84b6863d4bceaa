package world

import (
	"strings"

	"moocore/db"
	"moocore/types"
)

// VerbSpec is the add_verb argument triple of spec §4.4.1: dobj/prep/iobj
// argument specifiers, the names string, owner, and permission letters.
type VerbSpec struct {
	Names string
	Owner types.ObjID
	Perms string
	Dobj  string
	Prep  string
	Iobj  string
}

// ParseVerbPerms reads a permission letter string into a VerbPerms
// bitset, grounded on builtins/verbs.go's parseVerbPerms — world keeps
// its own copy since that one is unexported and builtins imports world,
// not the other way around.
func ParseVerbPerms(s string) db.VerbPerms {
	var p db.VerbPerms
	for _, ch := range s {
		switch ch {
		case 'r', 'R':
			p |= db.VerbRead
		case 'w', 'W':
			p |= db.VerbWrite
		case 'x', 'X':
			p |= db.VerbExecute
		case 'd', 'D':
			p |= db.VerbDebug
		}
	}
	return p
}

func validVerbPermLetters(s string) bool {
	for _, ch := range s {
		switch ch {
		case 'r', 'w', 'x', 'd', 'R', 'W', 'X', 'D':
		default:
			return false
		}
	}
	return true
}

func canWriteVerbs(perms types.ObjID, obj *db.Object, isWizard bool) bool {
	if isWizard {
		return true
	}
	return obj.Flags.Has(db.FlagWrite) || obj.Owner == perms
}

// AddVerb implements spec §4.4.1's `add_verb`, returning the verb's
// 1-based index on the object (same return shape as the teacher's
// builtinAddVerb).
func (w *World) AddVerb(perms types.ObjID, obj types.ObjID, spec VerbSpec) (int, error) {
	o := w.Store.Get(obj)
	if o == nil {
		return 0, newErr(ObjectNotFound, "")
	}
	if !canWriteVerbs(perms, o, isWizard(w.Store, perms)) || (!isWizard(w.Store, perms) && spec.Owner != perms) {
		return 0, newErr(VerbPermissionDenied, "")
	}
	if !validVerbPermLetters(spec.Perms) {
		return 0, newErr(InvalidArgument, "bad permission letters")
	}
	names := strings.Fields(spec.Names)
	if len(names) == 0 {
		return 0, newErr(InvalidArgument, "no verb names given")
	}
	for _, name := range names {
		if _, ok := o.Verbs[name]; ok {
			return 0, newErr(DuplicatePropertyDefinition, "verb name collision: "+name)
		}
	}

	verb := &db.Verb{
		Name:  names[0],
		Names: names,
		Owner: spec.Owner,
		Perms: ParseVerbPerms(spec.Perms),
		ArgSpec: db.VerbArgs{
			This: spec.Dobj,
			Prep: spec.Prep,
			That: spec.Iobj,
		},
		Code: []string{},
	}
	if o.Verbs == nil {
		o.Verbs = map[string]*db.Verb{}
	}
	o.Verbs[names[0]] = verb
	o.VerbList = append(o.VerbList, verb)
	w.Store.NoteVerbCacheClear()
	return len(o.VerbList), nil
}

// RemoveVerb implements spec §4.4.1's `delete_verb`.
func (w *World) RemoveVerb(perms types.ObjID, obj types.ObjID, name string) error {
	o := w.Store.Get(obj)
	if o == nil {
		return newErr(ObjectNotFound, "")
	}
	verb, ok := o.Verbs[name]
	if !ok {
		return newErr(VerbNotFound, name)
	}
	if !canWriteVerbs(perms, o, isWizard(w.Store, perms)) {
		return newErr(VerbPermissionDenied, "")
	}
	delete(o.Verbs, name)
	for i, v := range o.VerbList {
		if v == verb {
			o.VerbList = append(o.VerbList[:i], o.VerbList[i+1:]...)
			break
		}
	}
	w.Store.NoteVerbCacheClear()
	return nil
}

// UpdateVerbInfo implements spec §4.4.1's `set_verb_info`: changes
// owner, perms, and/or names on an already-defined verb.
func (w *World) UpdateVerbInfo(perms types.ObjID, obj types.ObjID, name string, newOwner types.ObjID, newPerms string, newNames string) error {
	o := w.Store.Get(obj)
	if o == nil {
		return newErr(ObjectNotFound, "")
	}
	verb, ok := o.Verbs[name]
	if !ok {
		return newErr(VerbNotFound, name)
	}
	if !canWriteVerbs(perms, o, isWizard(w.Store, perms)) {
		return newErr(VerbPermissionDenied, "")
	}
	if newPerms != "" {
		if !validVerbPermLetters(newPerms) {
			return newErr(InvalidArgument, "bad permission letters")
		}
		verb.Perms = ParseVerbPerms(newPerms)
	}
	if newOwner != types.ObjNothing {
		verb.Owner = newOwner
	}
	if newNames != "" {
		names := strings.Fields(newNames)
		if len(names) == 0 {
			return newErr(InvalidArgument, "no verb names given")
		}
		delete(o.Verbs, verb.Name)
		verb.Name = names[0]
		verb.Names = names
		o.Verbs[names[0]] = verb
	}
	w.Store.NoteVerbCacheClear()
	return nil
}

// UpdateVerbCode implements spec §4.4.1's `set_verb_code`: replaces the
// verb's source lines, invalidating its compiled cache so it recompiles
// on next call (spec §4.1 "verb compilation is lazy, cached per-verb").
func (w *World) UpdateVerbCode(perms types.ObjID, obj types.ObjID, name string, code []string) error {
	o := w.Store.Get(obj)
	if o == nil {
		return newErr(ObjectNotFound, "")
	}
	verb, ok := o.Verbs[name]
	if !ok {
		return newErr(VerbNotFound, name)
	}
	if !canWriteVerbs(perms, o, isWizard(w.Store, perms)) {
		return newErr(VerbPermissionDenied, "")
	}
	verb.Code = code
	verb.Program = nil
	verb.BytecodeCache = nil
	return nil
}

// ResolveVerb implements spec §4.4.1's verb lookup along the ancestry
// chain with wildcard name matching — delegated entirely to the
// store's existing FindVerb/matchVerbName, which already implements
// the spec's wildcard algorithm correctly.
func (w *World) ResolveVerb(obj types.ObjID, name string) (*db.Verb, types.ObjID, error) {
	verb, definer, err := w.Store.FindVerb(obj, name)
	if err != nil {
		return nil, types.ObjNothing, newErr(VerbNotFound, name)
	}
	return verb, definer, nil
}
