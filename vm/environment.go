package vm

import "moocore/types"

// Environment manages variable bindings for the tree-walking evaluator, with
// lexical scoping via a parent chain (used for lambda closures and begin/end
// blocks, unlike the bytecode VM's arena-backed scopes).
type Environment struct {
	vars   map[string]types.Value
	parent *Environment
}

// NewEnvironment creates a new environment with no parent (global scope).
// Pre-populates with MOO's built-in type constants and special objects.
func NewEnvironment() *Environment {
	env := &Environment{
		vars:   make(map[string]types.Value),
		parent: nil,
	}

	env.vars["INT"] = types.NewInt(int64(types.TYPE_INT))
	env.vars["OBJ"] = types.NewInt(int64(types.TYPE_OBJ))
	env.vars["STR"] = types.NewInt(int64(types.TYPE_STR))
	env.vars["ERR"] = types.NewInt(int64(types.TYPE_ERR))
	env.vars["LIST"] = types.NewInt(int64(types.TYPE_LIST))
	env.vars["FLOAT"] = types.NewInt(int64(types.TYPE_FLOAT))
	env.vars["MAP"] = types.NewInt(int64(types.TYPE_MAP))
	env.vars["WAIF"] = types.NewInt(int64(types.TYPE_WAIF))
	env.vars["ANON"] = types.NewInt(int64(types.TYPE_ANON))
	env.vars["BOOL"] = types.NewInt(int64(types.TYPE_BOOL))
	env.vars["SYMBOL"] = types.NewInt(int64(types.TYPE_SYMBOL))
	env.vars["BINARY"] = types.NewInt(int64(types.TYPE_BINARY))

	env.vars["$nothing"] = types.NewObj(types.ObjNothing)
	env.vars["$ambiguous_match"] = types.NewObj(types.ObjAmbiguous)
	env.vars["$failed_match"] = types.NewObj(types.ObjFailedMatch)

	return env
}

// NewNestedEnvironment creates a new environment with a parent scope.
func NewNestedEnvironment(parent *Environment) *Environment {
	return &Environment{
		vars:   make(map[string]types.Value),
		parent: parent,
	}
}

// Get looks up a variable by name, searching the current scope then parents.
func (e *Environment) Get(name string) (types.Value, bool) {
	if val, ok := e.vars[name]; ok {
		return val, true
	}
	if e.parent != nil {
		return e.parent.Get(name)
	}
	return nil, false
}

// Set assigns a value to a variable. If the name is already bound in an
// enclosing scope, the assignment updates that binding rather than shadowing
// it — matching MOO's flat-scope assignment semantics for ordinary locals.
func (e *Environment) Set(name string, value types.Value) {
	for env := e; env != nil; env = env.parent {
		if _, ok := env.vars[name]; ok {
			env.vars[name] = value
			return
		}
	}
	e.vars[name] = value
}

// Snapshot flattens the scope chain into a single name->value map, child
// bindings shadowing parent ones — the "entire flat variable table visible
// at the point of the lambda literal" capture-by-value rule of spec §4.2,
// mirrored here for the tree-walker the same way the bytecode compiler
// snapshots c.program.VarNames (vm/compiler_ext.go's compileLambda).
func (e *Environment) Snapshot() map[string]types.Value {
	out := make(map[string]types.Value)
	var chain []*Environment
	for env := e; env != nil; env = env.parent {
		chain = append(chain, env)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for name, val := range chain[i].vars {
			out[name] = val
		}
	}
	return out
}

// Root returns the outermost environment in the scope chain — where
// `global` declarations live regardless of current lexical nesting.
func (e *Environment) Root() *Environment {
	env := e
	for env.parent != nil {
		env = env.parent
	}
	return env
}

// Define creates or overwrites a variable in exactly this scope, without
// walking to a parent. Used for scope-introducing constructs (begin/end
// blocks, lambda parameter binding) where shadowing an outer name is the
// intended behavior rather than an error.
func (e *Environment) Define(name string, value types.Value) {
	e.vars[name] = value
}
