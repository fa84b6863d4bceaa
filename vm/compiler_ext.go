package vm

import (
	"fmt"

	"moocore/parser"
	"moocore/types"
)

// compileLambda compiles a lambda literal ({params} => expr, or
// {params} name => begin ... end) into its own sub-Program and emits the
// bytecode that builds a closure value over it at runtime.
//
// Parameter binding is compiled with a synthetic ScatterStmt so the lambda
// gets exactly the required/optional/rest semantics a verb's own scatter
// assignment gets — no separate binding logic to keep correct.
//
// Captures are by value: the entire flat variable table visible at the
// point of the lambda literal is snapshotted and threaded through as
// additional locals in the nested compiler, populated by OP_MAKE_LAMBDA
// from values pushed just before it (one OP_GET_VAR per captured name, in
// table order). This is simpler than true free-variable analysis and
// correct for MOO's value semantics: a captured name the lambda body never
// reads is simply an unused local.
func (c *Compiler) compileLambda(n *parser.LambdaExpr) error {
	captured := append([]string(nil), c.program.VarNames...)

	nc := NewCompilerWithRegistry(c.registry)

	nc.declareVariable(lambdaArgsVar)

	targets := make([]parser.ScatterTarget, len(n.Params))
	for i, p := range n.Params {
		targets[i] = parser.ScatterTarget{
			Name:     p.Name,
			Optional: p.Optional,
			Rest:     p.Rest,
			Default:  p.Default,
		}
	}
	scatter := &parser.ScatterStmt{
		Pos:     n.Pos,
		Targets: targets,
		Value:   &parser.IdentifierExpr{Pos: n.Pos, Name: lambdaArgsVar},
	}
	if err := nc.compileScatter(scatter); err != nil {
		return err
	}

	if n.SelfName != "" {
		nc.declareVariable(n.SelfName)
	}
	for _, name := range captured {
		nc.declareVariable(name)
	}

	body, err := nc.CompileStatements(n.Body)
	if err != nil {
		return err
	}

	params := make([]types.LambdaParam, len(n.Params))
	for i, p := range n.Params {
		kind := types.ParamRequired
		switch {
		case p.Rest:
			kind = types.ParamRest
		case p.Optional:
			kind = types.ParamOptional
		}
		params[i] = types.LambdaParam{Name: p.Name, Kind: kind, HasDefault: p.Default != nil}
	}

	if len(c.program.LambdaPrograms) > 255 {
		if c.err == nil {
			c.err = fmt.Errorf("too many lambda literals in one program (max 255)")
		}
		return c.err
	}
	idx := len(c.program.LambdaPrograms)
	c.program.LambdaPrograms = append(c.program.LambdaPrograms, &LambdaTemplate{
		Program:      body,
		Params:       params,
		CapturedVars: captured,
		SelfName:     n.SelfName,
	})

	// Push captured values in table order — captured[i] is always
	// c.program.VarNames[i], so the index doubles as the GET_VAR operand.
	for i := range captured {
		c.emit(OP_GET_VAR)
		c.emitByte(byte(i))
	}

	c.emit(OP_MAKE_LAMBDA)
	c.emitByte(byte(idx))
	return nil
}

// hasVariable reports whether name is bound, either as a flat local/global or
// in the innermost active arena scope — used by compileBuiltinCall to decide
// whether unresolved call syntax `name(args)` is a lambda call rather than an
// unknown builtin.
func (c *Compiler) hasVariable(name string) bool {
	if len(c.arenaScopes) > 0 {
		if _, ok := c.arenaScopes[len(c.arenaScopes)-1][name]; ok {
			return true
		}
	}
	_, ok := c.resolveVariable(name)
	return ok
}

// compileLambdaCall compiles `name(args)` where name resolves to a variable
// rather than a registered builtin: push the arguments, push the callee,
// then OP_CALL_LAMBDA. Splice arguments use the same incremental
// OP_LIST_APPEND/OP_LIST_EXTEND build-up compileBuiltinCall's splice path
// uses, since OP_CALL_LAMBDA has no splice-argument variant of its own.
func (c *Compiler) compileLambdaCall(n *parser.BuiltinCallExpr) error {
	// OP_CALL_LAMBDA has no 0xFF splice-argument sentinel the way
	// OP_CALL_BUILTIN does, so a spliced lambda call is rejected at compile
	// time rather than silently mis-compiled.
	if hasSpliceArgs(n.Args) {
		if c.err == nil {
			c.err = fmt.Errorf("splice arguments in a lambda call are not yet supported")
		}
		return c.err
	}

	if len(n.Args) > 255 {
		if c.err == nil {
			c.err = fmt.Errorf("too many arguments in lambda call (max 255)")
		}
		return c.err
	}

	for _, arg := range n.Args {
		if err := c.compileNode(arg); err != nil {
			return err
		}
	}

	if err := c.compileIdentifier(&parser.IdentifierExpr{Pos: n.Pos, Name: n.Name}); err != nil {
		return err
	}

	c.emit(OP_CALL_LAMBDA)
	c.emitByte(byte(len(n.Args)))
	return nil
}

// compileFlyweight compiles a <delegate, [slot -> value, ...], {contents}>
// literal. Slots are built into a temp map local using the same
// OP_INDEX_SET idiom as compileMap; contents are built directly on the
// stack using the same OP_LIST_APPEND/OP_LIST_EXTEND idiom as compileList.
func (c *Compiler) compileFlyweight(n *parser.FlyweightExpr) error {
	if err := c.compileNode(n.Delegate); err != nil {
		return err
	}

	slotsVar := c.declareVariable(c.tempVar("flyweight_slots"))
	c.emit(OP_MAKE_MAP)
	c.emitByte(0)
	c.emit(OP_SET_VAR)
	c.emitByte(byte(slotsVar))
	for _, pair := range n.Slots {
		if err := c.compileNode(pair.Value); err != nil {
			return err
		}
		if err := c.compileNode(pair.Key); err != nil {
			return err
		}
		c.emit(OP_INDEX_SET)
		c.emitByte(byte(slotsVar))
	}
	c.emit(OP_GET_VAR)
	c.emitByte(byte(slotsVar))

	c.emit(OP_MAKE_LIST)
	c.emitByte(0)
	for _, elem := range n.Contents {
		if splice, ok := elem.(*parser.SpliceExpr); ok {
			if err := c.compileNode(splice.Expr); err != nil {
				return err
			}
			c.emit(OP_LIST_EXTEND)
		} else {
			if err := c.compileNode(elem); err != nil {
				return err
			}
			c.emit(OP_LIST_APPEND)
		}
	}

	c.emit(OP_MAKE_FLYWEIGHT)
	return nil
}

// compileComprehension compiles {expr for x in (container)} and
// {expr for x in [start..end]}, accumulating Result into a list. Structured
// like compileForRange/compileForList but, being an expression rather than
// a statement, has no break/continue/label support.
func (c *Compiler) compileComprehension(n *parser.ComprehensionExpr) error {
	resultVar := c.declareVariable(c.tempVar("comprehension"))
	c.emit(OP_MAKE_LIST)
	c.emitByte(0)
	c.emit(OP_SET_VAR)
	c.emitByte(byte(resultVar))

	if n.RangeStart != nil {
		return c.compileRangeComprehension(n, resultVar)
	}
	return c.compileListComprehension(n, resultVar)
}

func (c *Compiler) compileRangeComprehension(n *parser.ComprehensionExpr, resultVar int) error {
	endVar := c.declareVariable(c.tempVar("comprehension_end"))
	valueVar := c.declareVariable(n.VarName)

	if err := c.compileNode(n.RangeEnd); err != nil {
		return err
	}
	c.emit(OP_SET_VAR)
	c.emitByte(byte(endVar))

	if err := c.compileNode(n.RangeStart); err != nil {
		return err
	}
	c.emit(OP_SET_VAR)
	c.emitByte(byte(valueVar))

	loopStart := c.currentOffset()
	c.emit(OP_GET_VAR)
	c.emitByte(byte(valueVar))
	c.emit(OP_GET_VAR)
	c.emitByte(byte(endVar))
	c.emit(OP_LE)
	exitJump := c.emitJump(OP_JUMP_IF_FALSE)

	if err := c.appendComprehensionResult(n.Result, resultVar); err != nil {
		return err
	}

	c.emit(OP_GET_VAR)
	c.emitByte(byte(valueVar))
	if op, ok := MakeImmediateOpcode(1); ok {
		c.emit(op)
	}
	c.emit(OP_ADD)
	c.emit(OP_SET_VAR)
	c.emitByte(byte(valueVar))

	c.emit(OP_LOOP)
	offset := c.currentOffset() + 2 - loopStart
	c.emitShort(uint16(offset))

	c.patchJump(exitJump)
	c.emit(OP_GET_VAR)
	c.emitByte(byte(resultVar))
	return nil
}

func (c *Compiler) compileListComprehension(n *parser.ComprehensionExpr, resultVar int) error {
	listVar := c.declareVariable(c.tempVar("comprehension_list"))
	idxVar := c.declareVariable(c.tempVar("comprehension_idx"))
	lenVar := c.declareVariable(c.tempVar("comprehension_len"))
	valueVar := c.declareVariable(n.VarName)

	if err := c.compileNode(n.Container); err != nil {
		return err
	}
	c.emit(OP_ITER_PREP)
	c.emitByte(0)
	// Stack: [normalizedList, isPairsFlag] — comprehensions never need the
	// key/index half of the pair, so the flag itself can be discarded.
	c.emit(OP_POP)
	c.emit(OP_SET_VAR)
	c.emitByte(byte(listVar))

	if op, ok := MakeImmediateOpcode(1); ok {
		c.emit(op)
	}
	c.emit(OP_SET_VAR)
	c.emitByte(byte(idxVar))

	c.emit(OP_GET_VAR)
	c.emitByte(byte(listVar))
	c.emit(OP_LENGTH)
	c.emit(OP_SET_VAR)
	c.emitByte(byte(lenVar))

	loopStart := c.currentOffset()
	c.emit(OP_GET_VAR)
	c.emitByte(byte(idxVar))
	c.emit(OP_GET_VAR)
	c.emitByte(byte(lenVar))
	c.emit(OP_LE)
	exitJump := c.emitJump(OP_JUMP_IF_FALSE)

	c.emit(OP_GET_VAR)
	c.emitByte(byte(listVar))
	c.emit(OP_GET_VAR)
	c.emitByte(byte(idxVar))
	c.emit(OP_INDEX)
	c.emit(OP_SET_VAR)
	c.emitByte(byte(valueVar))

	if err := c.appendComprehensionResult(n.Result, resultVar); err != nil {
		return err
	}

	c.emit(OP_GET_VAR)
	c.emitByte(byte(idxVar))
	if op, ok := MakeImmediateOpcode(1); ok {
		c.emit(op)
	}
	c.emit(OP_ADD)
	c.emit(OP_SET_VAR)
	c.emitByte(byte(idxVar))

	c.emit(OP_LOOP)
	offset := c.currentOffset() + 2 - loopStart
	c.emitShort(uint16(offset))

	c.patchJump(exitJump)
	c.emit(OP_GET_VAR)
	c.emitByte(byte(resultVar))
	return nil
}

// appendComprehensionResult emits: result = result + {eval(resultExpr)}.
func (c *Compiler) appendComprehensionResult(resultExpr parser.Expr, resultVar int) error {
	c.emit(OP_GET_VAR)
	c.emitByte(byte(resultVar))
	if err := c.compileNode(resultExpr); err != nil {
		return err
	}
	c.emit(OP_LIST_APPEND)
	c.emit(OP_SET_VAR)
	c.emitByte(byte(resultVar))
	return nil
}

// compileBegin compiles a begin...end block, backing its let/const locals
// with an arena-bump scope instead of the flat locals table (spec §4.3).
// The scope's width isn't known until every VarDeclStmt inside it has been
// compiled, so OP_BEGIN_SCOPE's width operand is patched after the fact —
// the same forward-patch idiom compileFork uses for its body length.
func (c *Compiler) compileBegin(n *parser.BeginStmt) error {
	c.arenaScopes = append(c.arenaScopes, make(map[string]int))

	c.emit(OP_BEGIN_SCOPE)
	widthPatch := len(c.program.Code)
	c.emitByte(0)

	if err := c.compileBlock(n.Body); err != nil {
		return err
	}

	scope := c.arenaScopes[len(c.arenaScopes)-1]
	width := len(scope)
	if width > 255 {
		if c.err == nil {
			c.err = fmt.Errorf("too many scoped locals in begin block (max 255)")
		}
		return c.err
	}
	c.program.Code[widthPatch] = byte(width)

	c.arenaScopes = c.arenaScopes[:len(c.arenaScopes)-1]
	c.emit(OP_END_SCOPE)
	return nil
}

// compileVarDecl compiles `let`/`const`/`global` declarations. `global`
// (and any declaration outside a begin block) always lands in the flat
// locals table; `let`/`const` inside an active begin block get the next
// free slot in that block's arena scope. Only the innermost active scope
// is addressable — a nested begin block shadows its enclosing one rather
// than exposing multi-level depth addressing.
func (c *Compiler) compileVarDecl(n *parser.VarDeclStmt) error {
	if n.Kind == parser.DeclGlobal || len(c.arenaScopes) == 0 {
		idx := c.declareVariable(n.Name)
		if err := c.compileVarDeclValue(n); err != nil {
			return err
		}
		c.emit(OP_SET_VAR)
		c.emitByte(byte(idx))
		return nil
	}

	scope := c.arenaScopes[len(c.arenaScopes)-1]
	slot, ok := scope[n.Name]
	if !ok {
		slot = len(scope)
		scope[n.Name] = slot
	}

	if err := c.compileVarDeclValue(n); err != nil {
		return err
	}
	c.emit(OP_SET_SCOPED)
	c.emitByte(byte(slot))
	return nil
}

func (c *Compiler) compileVarDeclValue(n *parser.VarDeclStmt) error {
	if n.Value != nil {
		return c.compileNode(n.Value)
	}
	if op, ok := MakeImmediateOpcode(0); ok {
		c.emit(op)
	}
	return nil
}
