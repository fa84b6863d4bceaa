package vm

import (
	"fmt"

	"moocore/types"
)

// executeBeginScope handles OP_BEGIN_SCOPE <width:byte>: bump-allocate a
// fresh arena scope for a begin...end block and remember its base so
// OP_GET_SCOPED/OP_SET_SCOPED inside the block know where to index.
func (vm *VM) executeBeginScope() error {
	width := int(vm.ReadByte())
	base := vm.Arena.PushScope(width)
	vm.ArenaBases = append(vm.ArenaBases, base)
	return nil
}

// executeEndScope handles OP_END_SCOPE: drop the innermost begin...end
// block's arena scope.
func (vm *VM) executeEndScope() error {
	if len(vm.ArenaBases) == 0 {
		return fmt.Errorf("internal error: end_scope with no open scope")
	}
	vm.Arena.PopScope()
	vm.ArenaBases = vm.ArenaBases[:len(vm.ArenaBases)-1]
	return nil
}

// executeGetScoped handles OP_GET_SCOPED <slot:byte>: push the value bound
// to a slot in the innermost active arena scope.
func (vm *VM) executeGetScoped() error {
	slot := int(vm.ReadByte())
	if len(vm.ArenaBases) == 0 {
		return fmt.Errorf("internal error: get_scoped outside any begin block")
	}
	base := vm.ArenaBases[len(vm.ArenaBases)-1]
	val, ok := vm.Arena.Get(base, slot)
	if !ok {
		return MooError{Code: types.E_VARNF}
	}
	vm.Push(val)
	return nil
}

// executeSetScoped handles OP_SET_SCOPED <slot:byte>: pop the top of stack
// into a slot in the innermost active arena scope.
func (vm *VM) executeSetScoped() error {
	slot := int(vm.ReadByte())
	if len(vm.ArenaBases) == 0 {
		return fmt.Errorf("internal error: set_scoped outside any begin block")
	}
	base := vm.ArenaBases[len(vm.ArenaBases)-1]
	val := vm.Pop()
	vm.Arena.Set(base, slot, val)
	return nil
}

// executeMakeLambda handles OP_MAKE_LAMBDA <templateIdx:byte>: pop the
// enclosing locals captured by value for this lambda literal (pushed by the
// compiler in declaration order, one OP_GET_VAR per captured name) and
// build a types.LambdaValue closing over them.
func (vm *VM) executeMakeLambda() error {
	idx := int(vm.ReadByte())
	frame := vm.CurrentFrame()
	if idx < 0 || idx >= len(frame.Program.LambdaPrograms) {
		return fmt.Errorf("internal error: bad lambda template index %d", idx)
	}
	tmpl := frame.Program.LambdaPrograms[idx]

	captured := vm.PopN(len(tmpl.CapturedVars))
	env := make([]types.Value, len(captured))
	copy(env, captured)

	vm.Push(types.LambdaValue{
		Params:       tmpl.Params,
		Body:         tmpl.Program,
		CapturedEnv:  env,
		CapturedVars: tmpl.CapturedVars,
		SelfName:     tmpl.SelfName,
	})
	return nil
}

// lambdaArgsVar is the reserved local name compileLambda uses to hold the
// raw argument list handed to a lambda call, before OP_SCATTER destructures
// it into the lambda's declared parameters.
const lambdaArgsVar = "__lambda_args__"

// executeCallLambda handles OP_CALL_LAMBDA <argc:byte>: pop argc arguments
// and a lambda value, then push a new frame over the lambda's compiled
// body. Parameter binding happens inside the body itself via the same
// OP_SCATTER sequence compileScatter emits for `{a, ?b, @c} = args` —
// this call only has to seed the args list, the self-reference (if any),
// and the captured environment before letting the body run.
func (vm *VM) executeCallLambda() error {
	argc := int(vm.ReadByte())
	args := vm.PopN(argc)

	lambdaVal := vm.Pop()
	lambda, ok := lambdaVal.(types.LambdaValue)
	if !ok {
		return fmt.Errorf("E_TYPE: attempt to call a non-function value")
	}
	prog, ok := lambda.Body.(*Program)
	if !ok || prog == nil {
		return fmt.Errorf("internal error: lambda has no compiled body")
	}

	frame := &StackFrame{
		Program:     prog,
		IP:          0,
		BasePointer: vm.SP,
		Locals:      make([]types.Value, prog.NumLocals),
		This:        vm.CurrentFrame().This,
		Player:      vm.CurrentFrame().Player,
		Verb:        vm.CurrentFrame().Verb,
		Caller:      vm.CurrentFrame().This,
		LoopStack:   make([]LoopState, 0, 4),
		ExceptStack: make([]Handler, 0, 4),
	}
	for i := range frame.Locals {
		frame.Locals[i] = types.UnboundValue{}
	}

	setLocalByName(frame, prog, lambdaArgsVar, types.NewList(args))
	if lambda.SelfName != "" {
		setLocalByName(frame, prog, lambda.SelfName, lambda)
	}
	for i, name := range lambda.CapturedVars {
		if i < len(lambda.CapturedEnv) {
			setLocalByName(frame, prog, name, lambda.CapturedEnv[i])
		}
	}

	vm.Frames = append(vm.Frames, frame)
	return nil
}

// executeMakeFlyweight handles OP_MAKE_FLYWEIGHT: pop contents, slots, and
// delegate (in that push order) and push the assembled FlyweightValue.
func (vm *VM) executeMakeFlyweight() error {
	contentsVal := vm.Pop()
	slotsVal := vm.Pop()
	delegateVal := vm.Pop()

	contentsList, ok := contentsVal.(types.ListValue)
	if !ok {
		return fmt.Errorf("E_TYPE: flyweight contents must be a list")
	}
	slotsMap, ok := slotsVal.(types.MapValue)
	if !ok {
		return fmt.Errorf("E_TYPE: flyweight slots must be a map")
	}
	delegate, ok := delegateVal.(types.ObjValue)
	if !ok {
		return fmt.Errorf("E_TYPE: flyweight delegate must be an object")
	}

	contents := make([]types.Value, contentsList.Len())
	for i := 1; i <= contentsList.Len(); i++ {
		contents[i-1] = contentsList.Get(i)
	}

	vm.Push(types.NewFlyweight(delegate, slotsMap, contents))
	return nil
}
