package interp

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) Expr {
	t.Helper()
	expr, err := ParseExpr(src)
	if err != nil {
		t.Fatalf("ParseExpr(%q) -> error %v", src, err)
	}
	return expr
}

func TestParsePrecedence(t *testing.T) {
	// The tree shape is checked through evaluation in eval_test.go; here we
	// check the structural properties directly.
	expr := mustParse(t, "1 + 2 * 3")
	add, ok := expr.(*BinaryOp)
	if !ok || add.Op != TokPlus {
		t.Fatalf("1 + 2 * 3 parsed as %T (%s), want + at the root", expr, expr)
	}
	if mul, ok := add.RHS.(*BinaryOp); !ok || mul.Op != TokAsterisk {
		t.Errorf("rhs of + is %s, want 2 * 3", add.RHS)
	}
}

func TestParseExponentRightAssociative(t *testing.T) {
	expr := mustParse(t, "2 ** 3 ** 2")
	outer, ok := expr.(*BinaryOp)
	if !ok || outer.Op != TokExponent {
		t.Fatalf("2 ** 3 ** 2 parsed as %T, want ** at the root", expr)
	}
	if lhs, ok := outer.LHS.(*LitInteger); !ok || lhs.Value != 2 {
		t.Errorf("lhs = %s, want 2; ** must be right-associative", outer.LHS)
	}
}

func TestParseChainedComparison(t *testing.T) {
	expr := mustParse(t, "a < b < c")
	cmp, ok := expr.(*ComparisonOp)
	if !ok {
		t.Fatalf("a < b < c parsed as %T, want a single chained comparison", expr)
	}
	if len(cmp.Exprs) != 3 || len(cmp.Ops) != 2 {
		t.Errorf("chained comparison has %d operands and %d ops, want 3 and 2",
			len(cmp.Exprs), len(cmp.Ops))
	}
}

func TestParsePipeline(t *testing.T) {
	expr := mustParse(t, "x |> f |> g")
	outer, ok := expr.(*PipelineOp)
	if !ok {
		t.Fatalf("x |> f |> g parsed as %T, want pipeline", expr)
	}
	if g, ok := outer.RHS.(*VarRef); !ok || g.Name != "g" {
		t.Errorf("outer rhs = %s, want g", outer.RHS)
	}
	inner, ok := outer.LHS.(*PipelineOp)
	if !ok {
		t.Fatalf("inner of pipeline is %T, want pipeline (left associativity)", outer.LHS)
	}
	if f, ok := inner.RHS.(*VarRef); !ok || f.Name != "f" {
		t.Errorf("inner rhs = %s, want f", inner.RHS)
	}
}

func TestParseSubscriptAndSliceForms(t *testing.T) {
	tests := []struct {
		src       string
		wantSlice bool
		hasStart  bool
		hasEnd    bool
	}{
		{"x[1]", false, false, false},
		{"x[:]", true, false, false},
		{"x[1:]", true, true, false},
		{"x[:2]", true, false, true},
		{"x[1:2]", true, true, true},
	}
	for _, test := range tests {
		expr := mustParse(t, test.src)
		if test.wantSlice {
			slice, ok := expr.(*SliceOp)
			if !ok {
				t.Errorf("%s parsed as %T, want slice", test.src, expr)
				continue
			}
			if (slice.Start != nil) != test.hasStart || (slice.End != nil) != test.hasEnd {
				t.Errorf("%s -> start=%v end=%v, want start=%v end=%v", test.src,
					slice.Start != nil, slice.End != nil, test.hasStart, test.hasEnd)
			}
		} else if _, ok := expr.(*SubscriptOp); !ok {
			t.Errorf("%s parsed as %T, want subscript", test.src, expr)
		}
	}
}

func TestParseTernary(t *testing.T) {
	expr := mustParse(t, "a ? 1 : 2")
	if _, ok := expr.(*TernaryOp); !ok {
		t.Fatalf("a ? 1 : 2 parsed as %T, want ternary", expr)
	}
	if _, err := ParseExpr("a ? 1"); err == nil {
		t.Errorf("ternary without ':' -> no error")
	}
}

func TestParseMacroArg(t *testing.T) {
	expr := mustParse(t, "$1 + $user")
	add := expr.(*BinaryOp)
	if ref, ok := add.LHS.(*VarRef); !ok || ref.Name != "$1" {
		t.Errorf("lhs = %s, want $1", add.LHS)
	}
	if ref, ok := add.RHS.(*VarRef); !ok || ref.Name != "$user" {
		t.Errorf("rhs = %s, want $user", add.RHS)
	}
}

func TestParseStringEscapes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"a\nb"`, "a\nb"},
		{`"a\"b"`, `a"b`},
		{`"a\\b"`, `a\b`},
		// Unknown escapes keep the backslash verbatim.
		{`"a\qb"`, `a\qb`},
	}
	for _, test := range tests {
		expr := mustParse(t, test.src)
		lit, ok := expr.(*LitString)
		if !ok {
			t.Fatalf("%s parsed as %T", test.src, expr)
		}
		if lit.Value != test.want {
			t.Errorf("%s -> %q, want %q", test.src, lit.Value, test.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"1 +",
		"(1",
		"[1, 2",
		"f(1,",
		"$",
		"x[1",
	} {
		if _, err := ParseExpr(src); err == nil {
			t.Errorf("ParseExpr(%q) -> no error", src)
		}
	}
}

func TestParseErrorMentionsToken(t *testing.T) {
	_, err := ParseExpr("1 + ;")
	if err == nil {
		t.Fatal("no error for '1 + ;'")
	}
	if !strings.Contains(err.Error(), ";") {
		t.Errorf("error %q does not name the offending token", err)
	}
}
