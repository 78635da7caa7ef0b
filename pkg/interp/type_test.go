package interp

import (
	"testing"

	"src.ikura.sh/pkg/tt"
)

func TestCastDist(t *testing.T) {
	str := StringType()
	tt.Test(t, tt.Fn("CastDist", (*Type).CastDist), tt.Table{
		// Same type is always distance 0.
		tt.Args(IntegerType(), IntegerType()).Rets(0),
		tt.Args(str, str).Rets(0),
		tt.Args(MapType(str, IntegerType()), MapType(str, IntegerType())).Rets(0),

		// Numeric widening.
		tt.Args(IntegerType(), DoubleType()).Rets(1),
		tt.Args(DoubleType(), IntegerType()).Rets(-1),

		// Generic placeholders.
		tt.Args(ListType(IntegerType()), ListType(VoidType())).Rets(2),
		tt.Args(ListType(VoidType()), ListType(IntegerType())).Rets(-1),
		tt.Args(MapType(str, IntegerType()), MapType(str, VoidType())).Rets(2),
		tt.Args(MapType(str, IntegerType()), MapType(VoidType(), IntegerType())).Rets(2),
		tt.Args(MapType(str, IntegerType()), MapType(VoidType(), VoidType())).Rets(3),

		// No cast at all.
		tt.Args(BooleanType(), IntegerType()).Rets(-1),
		tt.Args(str, IntegerType()).Rets(-1),
		tt.Args(ListType(IntegerType()), MapType(IntegerType(), IntegerType())).Rets(-1),
	})
}

func TestIsSameIffDistZero(t *testing.T) {
	types := []*Type{
		VoidType(), IntegerType(), DoubleType(), BooleanType(), CharType(),
		StringType(), ListType(IntegerType()), ListType(VoidType()),
		MapType(StringType(), IntegerType()), MapType(VoidType(), VoidType()),
		FunctionType(IntegerType(), []*Type{IntegerType()}),
	}
	for _, a := range types {
		for _, b := range types {
			same := a.IsSame(b)
			zero := a.CastDist(b) == 0
			if same != zero {
				t.Errorf("%s vs %s: IsSame=%v but CastDist==0 is %v", a, b, same, zero)
			}
		}
	}
}

func TestTypeString(t *testing.T) {
	tt.Test(t, tt.Fn("String", (*Type).String), tt.Table{
		tt.Args(IntegerType()).Rets("int"),
		tt.Args(DoubleType()).Rets("dbl"),
		tt.Args(StringType()).Rets("str"),
		tt.Args(ListType(IntegerType())).Rets("[int]"),
		tt.Args(MapType(StringType(), IntegerType())).Rets("[str: int]"),
		tt.Args(FunctionType(IntegerType(), []*Type{StringType(), DoubleType()})).
			Rets("fn(str, dbl) -> int"),
	})
}

func TestParseType(t *testing.T) {
	tests := []struct {
		src  string
		want *Type
	}{
		{"int", IntegerType()},
		{"dbl", DoubleType()},
		{"bool", BooleanType()},
		{"str", StringType()},
		{"void", VoidType()},
		{"char", CharType()},
		{"[int]", ListType(IntegerType())},
		{"[str: int]", MapType(StringType(), IntegerType())},
		{"[[int]]", ListType(ListType(IntegerType()))},
		{"(int, str) -> bool", FunctionType(BooleanType(), []*Type{IntegerType(), StringType()})},
	}
	for _, test := range tests {
		got, err := ParseType(test.src)
		if err != nil {
			t.Errorf("ParseType(%q) -> error %v", test.src, err)
			continue
		}
		if !got.IsSame(test.want) {
			t.Errorf("ParseType(%q) -> %s, want %s", test.src, got, test.want)
		}
	}

	for _, src := range []string{"", "florb", "[int", "[int:", "int]"} {
		if _, err := ParseType(src); err == nil {
			t.Errorf("ParseType(%q) -> no error", src)
		}
	}
}

func TestTypeSerialization(t *testing.T) {
	types := []*Type{
		IntegerType(), StringType(),
		MapType(StringType(), ListType(DoubleType())),
		FunctionType(VoidType(), []*Type{CharType(), BooleanType()}),
	}
	for _, typ := range types {
		w := newTestWriter()
		typ.serialize(w)
		got, err := readType(newTestReader(w))
		if err != nil {
			t.Errorf("round trip of %s -> error %v", typ, err)
			continue
		}
		if !got.IsSame(typ) {
			t.Errorf("round trip of %s -> %s", typ, got)
		}
	}
}
