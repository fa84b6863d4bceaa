package types

// TypeConstValue is the reified form of a TypeCode, the value that
// typeof() returns and that scatter/catch literal comparisons against
// type names (e.g. INT, STR) resolve to.
type TypeConstValue struct {
	Code TypeCode
}

// NewTypeConst wraps a TypeCode as a Value.
func NewTypeConst(code TypeCode) TypeConstValue {
	return TypeConstValue{Code: code}
}

func (t TypeConstValue) Type() TypeCode { return TYPE_TYPE }

func (t TypeConstValue) String() string { return t.Code.String() }

func (t TypeConstValue) Truthy() bool { return true }

func (t TypeConstValue) Equal(other Value) bool {
	o, ok := other.(TypeConstValue)
	return ok && o.Code == t.Code
}
