package interp

import (
	"strings"
	"testing"
)

func evalString(t *testing.T, src string) Value {
	t.Helper()
	itp := New()
	ctx := testContext(newFakeChannel())
	val, err := itp.EvaluateExpr(src, ctx)
	if err != nil {
		t.Fatalf("eval %q -> error %v", src, err)
	}
	return val.RValue()
}

func evalError(t *testing.T, src string) error {
	t.Helper()
	itp := New()
	ctx := testContext(newFakeChannel())
	_, err := itp.EvaluateExpr(src, ctx)
	if err == nil {
		t.Fatalf("eval %q -> no error", src)
	}
	return err
}

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"2 ** 3 ** 2", "512"},
		{"2 ^ 10", "1024"},
		{"0x10 + 0b10", "18"},
		{"10 / 4", "2"},
		{"10 % 3", "1"},
		{"10.0 / 4", "2.5"},
		{"1 << 4", "16"},
		{"255 >> 4", "15"},
		{"12 & 10", "8"},
		{"12 | 10", "14"},
		{"~0", "-1"},
		{"-5 + 3", "-2"},
		{"1e3 + 1", "1001"},
	}
	for _, test := range tests {
		if got := evalString(t, test.src).Str(); got != test.want {
			t.Errorf("eval %q = %s, want %s", test.src, got, test.want)
		}
	}
}

func TestEvalComparisons(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"1 < 2", true},
		{"1 < 2 < 3", true},
		{"1 < 3 < 2", false},
		{"3 > 2 >= 2 == 2", true},
		{"1 == 1.0", true},
		{"1 != 2", true},
		{`"abc" == "abc"`, true},
		{`"abc" < "abd"`, true},
		{"'a' < 'b'", true},
	}
	for _, test := range tests {
		got := evalString(t, test.src)
		if !got.IsBool() || got.Bool() != test.want {
			t.Errorf("eval %q = %s, want %t", test.src, got.Str(), test.want)
		}
	}
}

func TestEvalLogic(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"true && false", "false"},
		{"true || false", "true"},
		{"!true", "false"},
		{"true ? 1 : 2", "1"},
		{"false ? 1 : 2", "2"},
		{"1 < 2 ? 10 : 20", "10"},
	}
	for _, test := range tests {
		if got := evalString(t, test.src).Str(); got != test.want {
			t.Errorf("eval %q = %s, want %s", test.src, got, test.want)
		}
	}
}

func TestEvalListsAndStrings(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"[1, 2, 3][0]", "1"},
		{"[1, 2, 3][-1]", "3"},
		{"[1, 2, 3][1:]", "[2, 3]"},
		{"[1, 2, 3][:2]", "[1, 2]"},
		{"[1, 2, 3][:]", "[1, 2, 3]"},
		{"[1, 2, 3][1:2]", "[2]"},
		{"[1, 2] + [3]", "[1, 2, 3]"},
		{`"foo" + "bar"`, `"foobar"`},
		{`"hello"[1]`, "'e'"},
		{`"hello"[1:3]`, `"el"`},
		{"[1, 2, 3].len()", "3"},
	}
	for _, test := range tests {
		if got := evalString(t, test.src).Str(); got != test.want {
			t.Errorf("eval %q = %s, want %s", test.src, got, test.want)
		}
	}
}

func TestEvalTypeErrors(t *testing.T) {
	for _, src := range []string{
		"1 + true",
		`"a" * 2`,
		"!1",
		"1 ? 2 : 3",
		"[1, 2][true]",
		"true[0]",
		`[1, "a"]`,
	} {
		evalError(t, src)
	}
}

func TestEvalBuiltinConversions(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`int("42")`, "42"},
		{"int(3.9)", "3"},
		{"int(true)", "1"},
		{"int('a')", "97"},
		{"str(42)", `"42"`},
		{"str(true)", `"true"`},
		{"str([1, 2])", `"[1, 2]"`},
		// Pipelines are calls.
		{`"42" |> int`, "42"},
		{`"42" |> int |> str`, `"42"`},
	}
	for _, test := range tests {
		if got := evalString(t, test.src).Str(); got != test.want {
			t.Errorf("eval %q = %s, want %s", test.src, got, test.want)
		}
	}
}

func TestOverloadResolution(t *testing.T) {
	// int(42) must pick the int -> int overload (distance 0), not any
	// widened variant.
	if got := evalString(t, "int(42)").Str(); got != "42" {
		t.Errorf("int(42) = %s", got)
	}
	// No candidate exists for a list argument.
	err := evalError(t, "int([1])")
	if !strings.Contains(err.Error(), "no matching function") {
		t.Errorf("int([1]) error = %v, want no-matching-function", err)
	}
}

func TestOverloadTieBreakFirstDeclared(t *testing.T) {
	called := ""
	mk := func(name string, arg *Type) *BuiltinFunction {
		return NewBuiltinFunction("pick", FunctionType(IntegerType(), []*Type{arg}),
			func(st *State, ctx *Context) (Value, error) {
				called = name
				return IntValue(0), nil
			})
	}
	// Both candidates cost 2 for a [int] argument.
	set := NewOverloadSet("pick",
		mk("first", ListType(VoidType())),
		mk("second", ListType(VoidType())))

	itp := New()
	ctx := testContext(newFakeChannel())
	ctx.Args = []Value{ListValue(IntegerType(), []Value{IntValue(1)})}
	itp.Write(func(st *State) {
		if _, err := set.Run(st, ctx); err != nil {
			t.Fatal(err)
		}
	})
	if called != "first" {
		t.Errorf("tie broke to %q, want first declared", called)
	}
}

func TestEvalGlobals(t *testing.T) {
	itp := New()
	ctx := testContext(newFakeChannel())
	itp.Write(func(st *State) {
		if err := st.AddGlobal("counter", IntValue(0)); err != nil {
			t.Fatal(err)
		}
	})

	if _, err := itp.EvaluateExpr("counter = 5", ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := itp.EvaluateExpr("counter += 10", ctx); err != nil {
		t.Fatal(err)
	}
	val, err := itp.EvaluateExpr("counter", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := val.RValue().Str(); got != "15" {
		t.Errorf("counter = %s, want 15", got)
	}

	// Assigning a mistyped value fails.
	if _, err := itp.EvaluateExpr("counter = true", ctx); err == nil {
		t.Errorf("assigning bool to int global -> no error")
	}
	// Assigning to an rvalue fails.
	if _, err := itp.EvaluateExpr("3 = 4", ctx); err == nil {
		t.Errorf("assigning to rvalue -> no error")
	}
}

func TestEvalGlobalListAppend(t *testing.T) {
	itp := New()
	ctx := testContext(newFakeChannel())
	itp.Write(func(st *State) {
		if err := st.AddGlobal("xs", ListValue(IntegerType(), nil)); err != nil {
			t.Fatal(err)
		}
	})
	for _, src := range []string{"xs += [1]", "xs += [2, 3]", "xs.append(4)"} {
		if _, err := itp.EvaluateExpr(src, ctx); err != nil {
			t.Fatalf("%s -> %v", src, err)
		}
	}
	val, _ := itp.EvaluateExpr("xs", ctx)
	if got := val.RValue().Str(); got != "[1, 2, 3, 4]" {
		t.Errorf("xs = %s, want [1, 2, 3, 4]", got)
	}
}

func TestEvalMapSubscript(t *testing.T) {
	itp := New()
	ctx := testContext(newFakeChannel())
	itp.Write(func(st *State) {
		if err := st.AddGlobal("m", MapValue(StringType(), IntegerType())); err != nil {
			t.Fatal(err)
		}
	})
	if _, err := itp.EvaluateExpr(`m["a"] = 1`, ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := itp.EvaluateExpr(`m["a"] += 9`, ctx); err != nil {
		t.Fatal(err)
	}
	val, _ := itp.EvaluateExpr(`m["a"]`, ctx)
	if got := val.RValue().Str(); got != "10" {
		t.Errorf(`m["a"] = %s, want 10`, got)
	}
}

func TestEvalBuiltinVars(t *testing.T) {
	itp := New()
	ch := newFakeChannel()
	ctx := testContext(ch)
	val, err := itp.EvaluateExpr("$user", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := val.RValue().AsString(); got != "tester" {
		t.Errorf("$user = %q, want tester", got)
	}
	val, err = itp.EvaluateExpr("$channel", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := val.RValue().AsString(); got != "testchan" {
		t.Errorf("$channel = %q", got)
	}
}

func TestEvalMacroArgs(t *testing.T) {
	itp := New()
	ctx := testContext(newFakeChannel())
	ctx.Args = []Value{StringValue("one"), StringValue("two")}
	val, err := itp.EvaluateExpr("$1 + $2", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := val.RValue().AsString(); got != "onetwo" {
		t.Errorf("$1 + $2 = %q, want onetwo", got)
	}
	if _, err := itp.EvaluateExpr("$5", ctx); err == nil {
		t.Errorf("$5 with two args -> no error")
	}
}

func TestEvalUnknownName(t *testing.T) {
	err := evalError(t, "nonexistent")
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not-found diagnostic", err)
	}
}
