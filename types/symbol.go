package types

import "sync"

// Symbol is an interned identifier, compared by identity (spec §3.1).
// The zero value is not a valid symbol; always obtain one through Intern.
type Symbol struct {
	id int32
}

var symbolTable = struct {
	sync.RWMutex
	byName []string
	ids    map[string]int32
}{ids: make(map[string]int32)}

// Intern returns the Symbol for a name, allocating a new one on first use.
func Intern(name string) Symbol {
	symbolTable.RLock()
	if id, ok := symbolTable.ids[name]; ok {
		symbolTable.RUnlock()
		return Symbol{id: id}
	}
	symbolTable.RUnlock()

	symbolTable.Lock()
	defer symbolTable.Unlock()
	if id, ok := symbolTable.ids[name]; ok {
		return Symbol{id: id}
	}
	id := int32(len(symbolTable.byName))
	symbolTable.byName = append(symbolTable.byName, name)
	symbolTable.ids[name] = id
	return Symbol{id: id}
}

// Name returns the interned string this symbol stands for.
func (s Symbol) Name() string {
	symbolTable.RLock()
	defer symbolTable.RUnlock()
	if int(s.id) < 0 || int(s.id) >= len(symbolTable.byName) {
		return ""
	}
	return symbolTable.byName[s.id]
}

// SymbolValue is the Value wrapper around a Symbol.
type SymbolValue struct {
	Sym Symbol
}

// NewSymbol interns name and wraps it as a Value.
func NewSymbol(name string) SymbolValue {
	return SymbolValue{Sym: Intern(name)}
}

func (s SymbolValue) Type() TypeCode { return TYPE_SYMBOL }

// String returns the quoted literal form, e.g. 'foo.
func (s SymbolValue) String() string { return "'" + s.Sym.Name() }

func (s SymbolValue) Truthy() bool { return true }

func (s SymbolValue) Equal(other Value) bool {
	o, ok := other.(SymbolValue)
	return ok && o.Sym.id == s.Sym.id
}
