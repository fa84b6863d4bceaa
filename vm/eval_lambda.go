package vm

import (
	"moocore/parser"
	"moocore/types"
)

// lambdaExpr builds a closure value from a lambda literal (spec §3.1,
// §4.2 "Lambdas"). Captures are by value: the entire flat variable table
// visible at this point is snapshotted into CapturedVars/CapturedEnv,
// the same capture rule vm/compiler_ext.go's compileLambda applies to the
// bytecode path — kept consistent so a types.LambdaValue behaves
// identically regardless of which evaluator produced it. Body is stored
// as the *parser.LambdaExpr itself: types.LambdaValue.Body is `any`
// specifically to let each evaluator pick its own representation without
// an import cycle (types cannot import parser).
func (e *Evaluator) lambdaExpr(node *parser.LambdaExpr, ctx *types.TaskContext) types.Result {
	snap := e.env.Snapshot()
	names := make([]string, 0, len(snap))
	vals := make([]types.Value, 0, len(snap))
	for name, val := range snap {
		names = append(names, name)
		vals = append(vals, val)
	}

	params := make([]types.LambdaParam, len(node.Params))
	for i, p := range node.Params {
		kind := types.ParamRequired
		switch {
		case p.Rest:
			kind = types.ParamRest
		case p.Optional:
			kind = types.ParamOptional
		}
		params[i] = types.LambdaParam{Name: p.Name, Kind: kind, HasDefault: p.Default != nil}
	}

	return types.Ok(types.LambdaValue{
		Params:       params,
		Body:         node,
		CapturedEnv:  vals,
		CapturedVars: names,
		SelfName:     node.SelfName,
	})
}

// callLambdaValue invokes a closure: a fresh, isolated environment seeded
// with the captured values, the bound parameters, and (for a recursive
// lambda) a self-reference, then the body runs to completion the same way
// a verb body does (vm/verbs.go's verbCall) — a FlowReturn unwraps to its
// value, a fall-through yields 0, anything else (exception, uncaught
// break/continue) propagates to the caller.
func (e *Evaluator) callLambdaValue(lambda types.LambdaValue, argExprs []parser.Expr, ctx *types.TaskContext) types.Result {
	node, ok := lambda.Body.(*parser.LambdaExpr)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	var args []types.Value
	for _, argExpr := range argExprs {
		if splice, ok := argExpr.(*parser.SpliceExpr); ok {
			spliceResult := e.Eval(splice.Expr, ctx)
			if !spliceResult.IsNormal() {
				return spliceResult
			}
			list, ok := spliceResult.Val.(types.ListValue)
			if !ok {
				return types.Err(types.E_TYPE)
			}
			for i := 1; i <= list.Len(); i++ {
				args = append(args, list.Get(i))
			}
		} else {
			argResult := e.Eval(argExpr, ctx)
			if !argResult.IsNormal() {
				return argResult
			}
			args = append(args, argResult.Val)
		}
	}

	callEnv := NewNestedEnvironment(nil)
	for i, name := range lambda.CapturedVars {
		if i < len(lambda.CapturedEnv) {
			callEnv.Define(name, lambda.CapturedEnv[i])
		}
	}
	if lambda.SelfName != "" {
		callEnv.Define(lambda.SelfName, lambda)
	}
	if res := bindLambdaParams(callEnv, node.Params, args, e, ctx); res != nil {
		return *res
	}

	oldEnv := e.env
	e.env = callEnv
	result := e.EvalStatements(node.Body, ctx)
	e.env = oldEnv

	if result.Flow == types.FlowReturn {
		return types.Ok(result.Val)
	}
	if result.IsNormal() {
		return types.Ok(types.NewInt(0))
	}
	return result
}

// bindLambdaParams destructures args into env per the required/optional
// (with default)/rest rules of a lambda's parameter list — the same
// binding shape as a scatter assignment (vm/eval_stmt.go's scatterStmt),
// just read from parser.LambdaParamNode instead of parser.ScatterTarget
// since a lambda's default expressions need evaluating in the callee's
// own environment, not the caller's. Returns a non-nil Result only on
// error (arity mismatch or a default expression that itself errors).
func bindLambdaParams(env *Environment, params []parser.LambdaParamNode, args []types.Value, e *Evaluator, ctx *types.TaskContext) *types.Result {
	idx := 0
	var rest *parser.LambdaParamNode
	for i := range params {
		p := &params[i]
		if p.Rest {
			rest = p
			continue
		}
		if idx >= len(args) {
			if p.Optional {
				var val types.Value = types.NewInt(0)
				if p.Default != nil {
					r := e.Eval(p.Default, ctx)
					if !r.IsNormal() {
						return &r
					}
					val = r.Val
				}
				env.Define(p.Name, val)
			} else {
				res := types.Err(types.E_ARGS)
				return &res
			}
		} else {
			env.Define(p.Name, args[idx])
			idx++
		}
	}
	if rest != nil {
		env.Define(rest.Name, types.NewList(args[idx:]))
	} else if idx < len(args) {
		res := types.Err(types.E_ARGS)
		return &res
	}
	return nil
}

// varDeclStmt evaluates `let`/`const`/`global` name [= expr] (spec §4.1).
// let/const declare in the innermost scope (shadowing an outer name of the
// same binding, matching Environment.Define); global always declares at
// depth 0 regardless of how deeply the declaration is lexically nested,
// per spec §4.1's "globals live at depth 0". The front-end is responsible
// for rejecting reassignment of a const; the tree-walker doesn't
// distinguish let from const at runtime, matching the bytecode compiler's
// equally runtime-unenforced treatment of the two (vm/compiler.go).
func (e *Evaluator) varDeclStmt(stmt *parser.VarDeclStmt, ctx *types.TaskContext) types.Result {
	var val types.Value = types.NewInt(0)
	if stmt.Value != nil {
		r := e.Eval(stmt.Value, ctx)
		if !r.IsNormal() {
			return r
		}
		val = r.Val
	}
	if stmt.Kind == parser.DeclGlobal {
		e.env.Root().Define(stmt.Name, val)
	} else {
		e.env.Define(stmt.Name, val)
	}
	return types.Ok(types.NewInt(0))
}

// beginStmt evaluates a begin...end lexical scope block (spec §4.3): a
// fresh child environment for the block's let/const declarations, popped
// on any exit path (fall-through, return, break/continue, exception).
func (e *Evaluator) beginStmt(stmt *parser.BeginStmt, ctx *types.TaskContext) types.Result {
	oldEnv := e.env
	e.env = NewNestedEnvironment(oldEnv)
	result := e.EvalStatements(stmt.Body, ctx)
	e.env = oldEnv
	return result
}

// flyweightExpr builds an immutable {delegate, slots, contents} composite
// (spec §3.1 GLOSSARY "Flyweight"). Mirrors vm/compiler_ext.go's
// compileFlyweight: delegate must be an object, slot values may be any
// valid map value, contents may splice (@expr).
func (e *Evaluator) flyweightExpr(node *parser.FlyweightExpr, ctx *types.TaskContext) types.Result {
	delResult := e.Eval(node.Delegate, ctx)
	if !delResult.IsNormal() {
		return delResult
	}
	delegate, ok := delResult.Val.(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	slots := types.NewEmptyMap()
	for _, pair := range node.Slots {
		keyResult := e.Eval(pair.Key, ctx)
		if !keyResult.IsNormal() {
			return keyResult
		}
		if !types.IsValidMapKey(keyResult.Val) {
			return types.Err(types.E_TYPE)
		}
		valResult := e.Eval(pair.Value, ctx)
		if !valResult.IsNormal() {
			return valResult
		}
		slots = slots.Set(keyResult.Val, valResult.Val)
	}

	var contents []types.Value
	for _, elem := range node.Contents {
		if splice, ok := elem.(*parser.SpliceExpr); ok {
			r := e.Eval(splice.Expr, ctx)
			if !r.IsNormal() {
				return r
			}
			list, ok := r.Val.(types.ListValue)
			if !ok {
				return types.Err(types.E_TYPE)
			}
			for i := 1; i <= list.Len(); i++ {
				contents = append(contents, list.Get(i))
			}
		} else {
			r := e.Eval(elem, ctx)
			if !r.IsNormal() {
				return r
			}
			contents = append(contents, r.Val)
		}
	}

	return types.Ok(types.NewFlyweight(delegate, slots, contents))
}

// comprehensionExpr evaluates {expr for x in (list)} / {expr for i in
// [a..b]}, binding the loop variable in a fresh child scope per
// iteration so the comprehension body can't leak a binding into the
// enclosing scope. Structured like vm/compiler_ext.go's
// compileComprehension, minus break/continue support (an expression, not
// a loop statement).
func (e *Evaluator) comprehensionExpr(node *parser.ComprehensionExpr, ctx *types.TaskContext) types.Result {
	oldEnv := e.env
	defer func() { e.env = oldEnv }()

	runOne := func(v types.Value) types.Result {
		e.env = NewNestedEnvironment(oldEnv)
		e.env.Define(node.VarName, v)
		return e.Eval(node.Result, ctx)
	}

	var elems []types.Value
	if node.Container != nil {
		cres := e.Eval(node.Container, ctx)
		if !cres.IsNormal() {
			return cres
		}
		list, ok := cres.Val.(types.ListValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		for i := 1; i <= list.Len(); i++ {
			r := runOne(list.Get(i))
			if !r.IsNormal() {
				return r
			}
			elems = append(elems, r.Val)
		}
		return types.Ok(types.NewList(elems))
	}

	startRes := e.Eval(node.RangeStart, ctx)
	if !startRes.IsNormal() {
		return startRes
	}
	endRes := e.Eval(node.RangeEnd, ctx)
	if !endRes.IsNormal() {
		return endRes
	}
	start, ok1 := startRes.Val.(types.IntValue)
	end, ok2 := endRes.Val.(types.IntValue)
	if !ok1 || !ok2 {
		return types.Err(types.E_TYPE)
	}
	for i := start.Val; i <= end.Val; i++ {
		r := runOne(types.NewInt(i))
		if !r.IsNormal() {
			return r
		}
		elems = append(elems, r.Val)
	}
	return types.Ok(types.NewList(elems))
}
