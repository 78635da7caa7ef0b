package interp

import (
	"fmt"
	"strings"
	"time"
)

// Expr is a node of a parsed expression tree.
type Expr interface {
	Eval(st *State, ctx *Context) (Value, error)
	String() string
}

// How long a single command is allowed to evaluate before being cut off.
const evalTimeLimit = 750 * time.Millisecond

func checkTimeLimit(ctx *Context) error {
	if !ctx.execStart.IsZero() && time.Since(ctx.execStart) > evalTimeLimit {
		return fmt.Errorf("time limit exceeded")
	}
	return nil
}

type LitInteger struct{ Value int64 }
type LitDouble struct{ Value float64 }
type LitBoolean struct{ Value bool }
type LitChar struct{ Value rune }
type LitString struct{ Value string }
type LitList struct{ Elems []Expr }

// VarRef names a variable: a global, a builtin, a command, or a macro
// argument when the name starts with '$'.
type VarRef struct{ Name string }

type UnaryOp struct {
	Op    TokenKind
	OpStr string
	Expr  Expr
}

type BinaryOp struct {
	Op    TokenKind
	OpStr string
	LHS   Expr
	RHS   Expr
}

type AssignOp struct {
	Op    TokenKind
	OpStr string
	LHS   Expr
	RHS   Expr
}

type TernaryOp struct {
	Cond Expr
	Then Expr
	Else Expr
}

// ComparisonOp is an n-ary chained comparison: a < b <= c evaluates as
// (a < b) && (b <= c).
type ComparisonOp struct {
	Exprs []Expr
	Ops   []compOp
}

type compOp struct {
	kind  TokenKind
	opStr string
}

type FunctionCall struct {
	Callee Expr
	Args   []Expr
}

// PipelineOp feeds the value of LHS as the first argument of RHS, so
// x |> f |> g means g(f(x)).
type PipelineOp struct {
	LHS Expr
	RHS Expr
}

type SubscriptOp struct {
	Base  Expr
	Index Expr
}

type SliceOp struct {
	Base  Expr
	Start Expr // nil when omitted
	End   Expr // nil when omitted
}

// DotOp supports the list methods len() and append().
type DotOp struct {
	LHS Expr
	RHS Expr
}

func (e *LitInteger) Eval(st *State, ctx *Context) (Value, error) {
	return IntValue(e.Value), nil
}

func (e *LitDouble) Eval(st *State, ctx *Context) (Value, error) {
	return DoubleValue(e.Value), nil
}

func (e *LitBoolean) Eval(st *State, ctx *Context) (Value, error) {
	return BoolValue(e.Value), nil
}

func (e *LitChar) Eval(st *State, ctx *Context) (Value, error) {
	return CharValue(e.Value), nil
}

func (e *LitString) Eval(st *State, ctx *Context) (Value, error) {
	return StringValue(e.Value), nil
}

func (e *LitList) Eval(st *State, ctx *Context) (Value, error) {
	if len(e.Elems) == 0 {
		return ListValue(typeVoid, nil), nil
	}
	vals := make([]Value, 0, len(e.Elems))
	for _, elem := range e.Elems {
		v, err := elem.Eval(st, ctx)
		if err != nil {
			return Value{}, err
		}
		vals = append(vals, v.RValue())
	}
	elemType := vals[0].Type()
	for _, v := range vals[1:] {
		if !v.Type().IsSame(elemType) {
			return Value{}, fmt.Errorf("conflicting types in list -- '%s' and '%s'",
				elemType, v.Type())
		}
	}
	return ListValue(elemType, vals), nil
}

func (e *VarRef) Eval(st *State, ctx *Context) (Value, error) {
	val, ref, err := st.resolveVariable(e.Name, ctx)
	if err != nil {
		return Value{}, err
	}
	if ref != nil {
		return LValue(ref), nil
	}
	return val, nil
}

func (e *UnaryOp) Eval(st *State, ctx *Context) (Value, error) {
	v, err := e.Expr.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	return applyUnary(e.Op, e.OpStr, v)
}

func (e *BinaryOp) Eval(st *State, ctx *Context) (Value, error) {
	if err := checkTimeLimit(ctx); err != nil {
		return Value{}, err
	}
	lhs, err := e.LHS.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	rhs, err := e.RHS.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	return applyBinary(e.Op, e.OpStr, lhs, rhs, nil)
}

func (e *AssignOp) Eval(st *State, ctx *Context) (Value, error) {
	lhs, err := e.LHS.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	rhs, err := e.RHS.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	if !lhs.IsLValue() {
		return Value{}, fmt.Errorf("cannot assign to rvalue")
	}

	if e.Op != TokEqual {
		didAppend := false
		res, err := applyBinary(e.Op, strings.TrimSuffix(e.OpStr, "="), lhs, rhs, &didAppend)
		if err != nil {
			return Value{}, err
		}
		if didAppend {
			return res, nil
		}
		rhs = res
	}

	target := lhs.LValueTarget()
	rhs = rhs.RValue()
	if !target.Type().IsSame(rhs.Type()) {
		casted, ok := rhs.CastTo(target.Type())
		if !ok {
			return Value{}, fmt.Errorf("cannot assign value of type '%s' to variable of type '%s'",
				rhs.Type(), target.Type())
		}
		rhs = casted
	}
	*target = rhs
	return lhs, nil
}

func (e *TernaryOp) Eval(st *State, ctx *Context) (Value, error) {
	cond, err := e.Cond.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	cond = cond.RValue()
	if !cond.IsBool() {
		return Value{}, fmt.Errorf("invalid use of ?: with type '%s' as first operand", cond.Type())
	}
	if cond.Bool() {
		return e.Then.Eval(st, ctx)
	}
	return e.Else.Eval(st, ctx)
}

func (e *ComparisonOp) Eval(st *State, ctx *Context) (Value, error) {
	if len(e.Exprs) != len(e.Ops)+1 || len(e.Exprs) < 2 {
		return Value{}, fmt.Errorf("operand count mismatch in comparison")
	}
	prev, err := e.Exprs[0].Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	for i, op := range e.Ops {
		next, err := e.Exprs[i+1].Eval(st, ctx)
		if err != nil {
			return Value{}, err
		}
		ok, err := compareValues(op.kind, op.opStr, prev, next)
		if err != nil {
			return Value{}, err
		}
		if !ok {
			return BoolValue(false), nil
		}
		prev = next
	}
	return BoolValue(true), nil
}

func (e *FunctionCall) Eval(st *State, ctx *Context) (Value, error) {
	if err := checkTimeLimit(ctx); err != nil {
		return Value{}, err
	}
	target, err := e.Callee.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	target = target.RValue()
	if !target.IsFunction() {
		return Value{}, fmt.Errorf("type '%s' is not callable", target.Type())
	}
	fn := target.Function()
	if fn == nil {
		return Value{}, fmt.Errorf("error retrieving function")
	}

	args := make([]Value, 0, len(e.Args))
	for _, argExpr := range e.Args {
		v, err := argExpr.Eval(st, ctx)
		if err != nil {
			return Value{}, err
		}
		args = append(args, v.RValue())
	}
	return callCommand(fn, st, ctx, args)
}

// callCommand invokes a command with the given evaluated arguments. Macros
// take a list of strings, so arguments are stringified for them.
func callCommand(fn Command, st *State, ctx *Context, args []Value) (Value, error) {
	if _, isMacro := fn.(*Macro); isMacro {
		strArgs := make([]Value, len(args))
		for i, a := range args {
			strArgs[i] = StringValue(a.Raw())
		}
		args = strArgs
	}
	sub := *ctx
	sub.Args = args
	return fn.Run(st, &sub)
}

func (e *PipelineOp) Eval(st *State, ctx *Context) (Value, error) {
	// Desugar x |> f(y) to f(x, y) and x |> f to f(x).
	if call, ok := e.RHS.(*FunctionCall); ok {
		merged := &FunctionCall{
			Callee: call.Callee,
			Args:   append([]Expr{e.LHS}, call.Args...),
		}
		return merged.Eval(st, ctx)
	}
	call := &FunctionCall{Callee: e.RHS, Args: []Expr{e.LHS}}
	return call.Eval(st, ctx)
}

func (e *SubscriptOp) Eval(st *State, ctx *Context) (Value, error) {
	base, err := e.Base.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	idx, err := e.Index.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	idx = idx.RValue()

	deref := base.RValue()
	switch {
	case deref.IsList():
		if !idx.IsInteger() {
			return Value{}, fmt.Errorf("index on a list must be an integer")
		}
		list := deref.List()
		i := idx.Int()
		if i < 0 {
			i += int64(len(list))
		}
		if i < 0 || i >= int64(len(list)) {
			return Value{}, fmt.Errorf("index out of range")
		}
		if base.IsLValue() {
			return LValue(&base.LValueTarget().list[i]), nil
		}
		return list[i], nil

	case deref.IsMap():
		if !deref.Type().KeyType().IsSame(idx.Type()) {
			return Value{}, fmt.Errorf("cannot index '%s' with key of type '%s'",
				deref.Type(), idx.Type())
		}
		if base.IsLValue() {
			target := base.LValueTarget()
			ref := target.m.ref(idx, DefaultOf(deref.Type().ElemType()))
			return LValue(ref), nil
		}
		if v, ok := deref.m.get(idx); ok {
			return v, nil
		}
		return DefaultOf(deref.Type().ElemType()), nil
	}
	return Value{}, fmt.Errorf("type '%s' cannot be indexed", deref.Type())
}

func (e *SliceOp) Eval(st *State, ctx *Context) (Value, error) {
	base, err := e.Base.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	base = base.RValue()
	if !base.IsList() {
		return Value{}, fmt.Errorf("type '%s' cannot be sliced", base.Type())
	}
	list := base.List()
	size := int64(len(list))
	elemType := base.Type().ElemType()

	emptyList := func() (Value, error) { return ListValue(elemType, nil), nil }
	if size == 0 {
		return emptyList()
	}

	first, last := int64(0), size
	if e.Start != nil {
		v, err := e.Start.Eval(st, ctx)
		if err != nil {
			return Value{}, err
		}
		v = v.RValue()
		if !v.IsInteger() {
			return Value{}, fmt.Errorf("slice indices must be integers")
		}
		if n := v.Int(); n < 0 {
			// Too-far-negative start indices fall back to the list head.
			if -n <= size {
				first = size + n
			}
		} else {
			if n >= size {
				return emptyList()
			}
			first = n
		}
	}
	if e.End != nil {
		v, err := e.End.Eval(st, ctx)
		if err != nil {
			return Value{}, err
		}
		v = v.RValue()
		if !v.IsInteger() {
			return Value{}, fmt.Errorf("slice indices must be integers")
		}
		if n := v.Int(); n < 0 {
			if -n > size {
				return emptyList()
			}
			last = size + n
		} else if n < size {
			last = n
		}
	}
	if first >= last {
		return emptyList()
	}
	out := make([]Value, last-first)
	copy(out, list[first:last])
	return ListValue(elemType, out), nil
}

func (e *DotOp) Eval(st *State, ctx *Context) (Value, error) {
	left, err := e.LHS.Eval(st, ctx)
	if err != nil {
		return Value{}, err
	}
	deref := left.RValue()
	if !deref.IsList() {
		return Value{}, fmt.Errorf("invalid '.' on lhs type '%s'", deref.Type())
	}
	call, ok := e.RHS.(*FunctionCall)
	if !ok {
		return Value{}, fmt.Errorf("invalid rhs for '.' on list")
	}
	method, ok := call.Callee.(*VarRef)
	if !ok {
		return Value{}, fmt.Errorf("invalid rhs for '.' on list")
	}

	switch method.Name {
	case "len":
		if len(call.Args) != 0 {
			return Value{}, fmt.Errorf("expected no arguments to len()")
		}
		return IntValue(int64(len(deref.List()))), nil

	case "append":
		if !left.IsLValue() {
			return Value{}, fmt.Errorf("cannot append to rvalue")
		}
		if len(call.Args) == 0 {
			return Value{}, fmt.Errorf("expected at least one argument to append()")
		}
		elemType := deref.Type().ElemType()
		var args []Value
		for i, argExpr := range call.Args {
			arg, err := argExpr.Eval(st, ctx)
			if err != nil {
				return Value{}, err
			}
			casted, ok := arg.RValue().CastTo(elemType)
			if !ok {
				return Value{}, fmt.Errorf(
					"element type mismatch for append() (arg %d); expected '%s', found '%s'",
					i, elemType, arg.Type())
			}
			args = append(args, casted)
		}
		target := left.LValueTarget()
		target.list = append(target.list, args...)
		return LValue(target), nil
	}
	return Value{}, fmt.Errorf("list has no method '%s'", method.Name)
}

func (e *LitInteger) String() string { return fmt.Sprintf("%d", e.Value) }
func (e *LitDouble) String() string  { return fmt.Sprintf("%.3f", e.Value) }
func (e *LitBoolean) String() string { return fmt.Sprintf("%t", e.Value) }
func (e *LitChar) String() string    { return "'" + string(e.Value) + "'" }
func (e *LitString) String() string  { return fmt.Sprintf("%q", e.Value) }

func (e *LitList) String() string {
	parts := make([]string, len(e.Elems))
	for i, elem := range e.Elems {
		parts[i] = elem.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (e *VarRef) String() string   { return e.Name }
func (e *UnaryOp) String() string  { return e.OpStr + e.Expr.String() }
func (e *BinaryOp) String() string { return e.LHS.String() + " " + e.OpStr + " " + e.RHS.String() }
func (e *AssignOp) String() string { return e.LHS.String() + " " + e.OpStr + " " + e.RHS.String() }

func (e *TernaryOp) String() string {
	return e.Cond.String() + " ? " + e.Then.String() + " : " + e.Else.String()
}

func (e *ComparisonOp) String() string {
	var sb strings.Builder
	for i, op := range e.Ops {
		sb.WriteString(e.Exprs[i].String())
		sb.WriteString(" " + op.opStr + " ")
	}
	sb.WriteString(e.Exprs[len(e.Exprs)-1].String())
	return sb.String()
}

func (e *FunctionCall) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return e.Callee.String() + "(" + strings.Join(parts, ", ") + ")"
}

func (e *PipelineOp) String() string { return e.LHS.String() + " |> " + e.RHS.String() }

func (e *SubscriptOp) String() string {
	return e.Base.String() + "[" + e.Index.String() + "]"
}

func (e *SliceOp) String() string {
	start, end := "", ""
	if e.Start != nil {
		start = e.Start.String()
	}
	if e.End != nil {
		end = e.End.String()
	}
	return e.Base.String() + "[" + start + ":" + end + "]"
}

func (e *DotOp) String() string { return e.LHS.String() + "." + e.RHS.String() }
