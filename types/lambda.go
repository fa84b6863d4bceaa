package types

import "fmt"

// ParamKind classifies one slot of a lambda's parameter list, mirroring
// the Required/Optional/Rest alternatives of a scatter table (spec §3.4).
type ParamKind int

const (
	ParamRequired ParamKind = iota
	ParamOptional
	ParamRest
)

// LambdaParam describes one parameter slot.
type LambdaParam struct {
	Name       string
	Kind       ParamKind
	HasDefault bool // only meaningful when Kind == ParamOptional
}

// LambdaValue is a first-class closure: its compiled body (an opaque
// *vm.Program, boxed here as any to avoid an import cycle between types
// and vm) plus the lexical environment captured by value at creation
// time (spec §3.1, §4.2 "Lambdas"). SelfName, when non-empty, is the
// identifier the lambda's own body may use to refer to itself
// recursively (MOO's fn syntax).
type LambdaValue struct {
	Params       []LambdaParam
	Body         any // *vm.Program
	CapturedEnv  []Value
	CapturedVars []string // names in CapturedEnv, 1:1 by index
	SelfName     string
}

func (l LambdaValue) Type() TypeCode { return TYPE_LAMBDA }

func (l LambdaValue) String() string {
	return fmt.Sprintf("fn(%d params)", len(l.Params))
}

func (l LambdaValue) Truthy() bool { return true }

// Equal follows MOO reference semantics for lambdas: only identical
// underlying Program pointers (the same closure object) are equal, not
// structurally similar ones.
func (l LambdaValue) Equal(other Value) bool {
	o, ok := other.(LambdaValue)
	if !ok {
		return false
	}
	return l.Body != nil && l.Body == o.Body
}
