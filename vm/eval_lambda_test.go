package vm

import (
	"testing"

	"moocore/parser"
	"moocore/types"
)

// runTree parses a full program (not just one expression) and evaluates
// it through the tree-walking Evaluator, mirroring how
// conformance.Runner drives real verb bodies.
func runTree(t *testing.T, src string) types.Result {
	t.Helper()
	p := parser.NewParser(src)
	stmts, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	e := NewEvaluator()
	ctx := types.NewTaskContext()
	return e.EvalStatements(stmts, ctx)
}

func requireOk(t *testing.T, r types.Result) types.Value {
	t.Helper()
	if !r.IsNormal() && r.Flow != types.FlowReturn {
		t.Fatalf("expected normal/return result, got flow=%v err=%v", r.Flow, r.Error)
	}
	return r.Val
}

func TestLambdaCallBasic(t *testing.T) {
	r := runTree(t, `f = {x} => x + 1; return f(41);`)
	val := requireOk(t, r)
	iv, ok := val.(types.IntValue)
	if !ok || iv.Val != 42 {
		t.Fatalf("expected 42, got %v", val)
	}
}

func TestLambdaOptionalAndRest(t *testing.T) {
	r := runTree(t, `f = {a, ?b = 10, @rest} => {a, b, rest}; return f(1, 2, 3, 4);`)
	val := requireOk(t, r)
	list, ok := val.(types.ListValue)
	if !ok || list.Len() != 3 {
		t.Fatalf("expected 3-element list, got %v", val)
	}
	if iv, ok := list.Get(1).(types.IntValue); !ok || iv.Val != 1 {
		t.Fatalf("bad a: %v", list.Get(1))
	}
	if iv, ok := list.Get(2).(types.IntValue); !ok || iv.Val != 2 {
		t.Fatalf("bad b: %v", list.Get(2))
	}
	rest, ok := list.Get(3).(types.ListValue)
	if !ok || rest.Len() != 2 {
		t.Fatalf("bad rest: %v", list.Get(3))
	}
}

func TestLambdaOptionalDefaultUsed(t *testing.T) {
	r := runTree(t, `f = {a, ?b = 99} => b; return f(1);`)
	val := requireOk(t, r)
	if iv, ok := val.(types.IntValue); !ok || iv.Val != 99 {
		t.Fatalf("expected 99, got %v", val)
	}
}

func TestLambdaTooFewRequiredArgsIsError(t *testing.T) {
	r := runTree(t, `f = {a, b} => a + b; return f(1);`)
	if r.Flow != types.FlowException || r.Error != types.E_ARGS {
		t.Fatalf("expected E_ARGS, got flow=%v err=%v", r.Flow, r.Error)
	}
}

func TestLambdaCapturesByValue(t *testing.T) {
	r := runTree(t, `x = 10; f = {} => x; x = 20; return f();`)
	val := requireOk(t, r)
	if iv, ok := val.(types.IntValue); !ok || iv.Val != 10 {
		t.Fatalf("expected captured 10, got %v", val)
	}
}

func TestLambdaRecursiveSelf(t *testing.T) {
	r := runTree(t, `fact = {n} => fact => n < 2 ? 1 | n * fact(n - 1); return fact(5);`)
	val := requireOk(t, r)
	if iv, ok := val.(types.IntValue); !ok || iv.Val != 120 {
		t.Fatalf("expected 120, got %v", val)
	}
}

func TestFlyweightConstruction(t *testing.T) {
	r := runTree(t, `w = <#1, ["foo" -> 1, "bar" -> 2], {10, 20}>; return w;`)
	val := requireOk(t, r)
	fw, ok := val.(types.FlyweightValue)
	if !ok {
		t.Fatalf("expected flyweight, got %T", val)
	}
	if fw.Delegate.ID() != 1 {
		t.Fatalf("expected delegate #1, got %v", fw.Delegate)
	}
	if len(fw.Contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(fw.Contents))
	}
}

func TestFlyweightEquality(t *testing.T) {
	r := runTree(t, `a = <#1, ["x" -> 1], {}>; b = <#1, ["x" -> 1], {}>; return a == b;`)
	val := requireOk(t, r)
	iv, ok := val.(types.IntValue)
	if !ok || iv.Val != 1 {
		t.Fatalf("expected flyweights to compare equal, got %v", val)
	}
}

func TestListComprehension(t *testing.T) {
	r := runTree(t, `return {x * 2 for x in ({1, 2, 3})};`)
	val := requireOk(t, r)
	list, ok := val.(types.ListValue)
	if !ok || list.Len() != 3 {
		t.Fatalf("expected 3-element list, got %v", val)
	}
	want := []int64{2, 4, 6}
	for i, w := range want {
		iv, ok := list.Get(i + 1).(types.IntValue)
		if !ok || iv.Val != w {
			t.Fatalf("element %d: expected %d, got %v", i+1, w, list.Get(i+1))
		}
	}
}

func TestRangeComprehension(t *testing.T) {
	r := runTree(t, `return {i * i for i in [1..4]};`)
	val := requireOk(t, r)
	list, ok := val.(types.ListValue)
	if !ok || list.Len() != 4 {
		t.Fatalf("expected 4-element list, got %v", val)
	}
	want := []int64{1, 4, 9, 16}
	for i, w := range want {
		iv, ok := list.Get(i + 1).(types.IntValue)
		if !ok || iv.Val != w {
			t.Fatalf("element %d: expected %d, got %v", i+1, w, list.Get(i+1))
		}
	}
}

func TestBeginEndScoping(t *testing.T) {
	// A `let` inside begin...end must not leak out, but assigning to an
	// outer ordinary local from inside the block must still be visible
	// afterward (begin/end scopes only lexical `let`/`const`, not plain
	// assignment — matches the arena-scoped model of spec §4.3).
	r := runTree(t, `
		x = 1;
		begin
			let y = 2;
			x = x + y;
		end
		return x;
	`)
	val := requireOk(t, r)
	if iv, ok := val.(types.IntValue); !ok || iv.Val != 3 {
		t.Fatalf("expected 3, got %v", val)
	}
}

func TestGlobalDeclaration(t *testing.T) {
	r := runTree(t, `
		global g = 1;
		begin
			g = g + 1;
		end
		return g;
	`)
	val := requireOk(t, r)
	if iv, ok := val.(types.IntValue); !ok || iv.Val != 2 {
		t.Fatalf("expected 2, got %v", val)
	}
}
