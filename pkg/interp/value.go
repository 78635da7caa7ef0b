package interp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is a runtime value: a tagged union over the interpreter's type set.
// Every Value carries its Type; the dynamic dispatch of operators and
// overload resolution work off the Type, not the union arm.
//
// A Value may also be an lvalue: a reference to another Value that can be
// assigned through. Lvalues never appear inside persisted state.
type Value struct {
	typ *Type

	integer  int64
	double   float64
	boolean  bool
	char     rune
	list     []Value
	m        *valueMap
	function Command
	lvalue   *Value
}

func VoidValue() Value       { return Value{typ: typeVoid} }
func IntValue(i int64) Value { return Value{typ: typeInteger, integer: i} }
func DoubleValue(d float64) Value {
	return Value{typ: typeDouble, double: d}
}
func BoolValue(b bool) Value { return Value{typ: typeBoolean, boolean: b} }
func CharValue(c rune) Value { return Value{typ: typeChar, char: c} }

// StringValue builds the list-of-char representation of a string.
func StringValue(s string) Value {
	list := make([]Value, 0, len(s))
	for _, r := range s {
		list = append(list, CharValue(r))
	}
	return Value{typ: StringType(), list: list}
}

func ListValue(elem *Type, xs []Value) Value {
	return Value{typ: ListType(elem), list: xs}
}

func MapValue(key, elem *Type) Value {
	return Value{typ: MapType(key, elem), m: newValueMap()}
}

func FunctionValue(fn Command) Value {
	return Value{typ: fn.Signature(), function: fn}
}

func LValue(target *Value) Value {
	return Value{typ: target.typ, lvalue: target}
}

// DefaultOf returns the zero value of a type.
func DefaultOf(t *Type) Value {
	switch {
	case t.IsInteger():
		return IntValue(0)
	case t.IsDouble():
		return DoubleValue(0)
	case t.IsBool():
		return BoolValue(false)
	case t.IsChar():
		return CharValue(0)
	case t.IsList():
		return ListValue(t.ElemType(), nil)
	case t.IsMap():
		return MapValue(t.KeyType(), t.ElemType())
	}
	return VoidValue()
}

func (v Value) Type() *Type { return v.typ }

func (v Value) IsVoid() bool     { return v.typ.IsVoid() }
func (v Value) IsInteger() bool  { return v.typ.IsInteger() }
func (v Value) IsDouble() bool   { return v.typ.IsDouble() }
func (v Value) IsBool() bool     { return v.typ.IsBool() }
func (v Value) IsChar() bool     { return v.typ.IsChar() }
func (v Value) IsList() bool     { return v.typ.IsList() }
func (v Value) IsMap() bool      { return v.typ.IsMap() }
func (v Value) IsFunction() bool { return v.typ.IsFunction() }
func (v Value) IsString() bool   { return v.typ.IsString() }
func (v Value) IsLValue() bool   { return v.lvalue != nil }

func (v Value) Int() int64      { return v.deref().integer }
func (v Value) Double() float64 { return v.deref().double }
func (v Value) Bool() bool      { return v.deref().boolean }
func (v Value) Char() rune      { return v.deref().char }
func (v Value) List() []Value   { return v.deref().list }
func (v Value) Function() Command {
	return v.deref().function
}

func (v Value) LValueTarget() *Value { return v.lvalue }

func (v Value) deref() Value {
	for v.lvalue != nil {
		v = *v.lvalue
	}
	return v
}

// RValue strips any lvalue wrapper, yielding the referenced value.
func (v Value) RValue() Value { return v.deref() }

// AsString flattens a string value (list of chars) into a Go string.
func (v Value) AsString() string {
	v = v.deref()
	var sb strings.Builder
	for _, c := range v.list {
		sb.WriteRune(c.deref().char)
	}
	return sb.String()
}

// Raw renders a value for display in a chat message: strings and chars are
// unquoted, everything else reads like a literal.
func (v Value) Raw() string {
	v = v.deref()
	switch {
	case v.IsString():
		return v.AsString()
	case v.IsChar():
		return string(v.char)
	}
	return v.Str()
}

// Str renders a value the way it would be written in source.
func (v Value) Str() string {
	v = v.deref()
	switch {
	case v.IsVoid():
		return "()"
	case v.IsInteger():
		return strconv.FormatInt(v.integer, 10)
	case v.IsDouble():
		return strconv.FormatFloat(v.double, 'g', -1, 64)
	case v.IsBool():
		return strconv.FormatBool(v.boolean)
	case v.IsChar():
		return "'" + string(v.char) + "'"
	case v.IsString():
		return strconv.Quote(v.AsString())
	case v.IsList():
		parts := make([]string, len(v.list))
		for i, x := range v.list {
			parts[i] = x.Str()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case v.IsMap():
		parts := make([]string, 0, v.m.len())
		for _, p := range v.m.sortedPairs() {
			parts = append(parts, p.key.Str()+": "+p.val.Str())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case v.IsFunction():
		return fmt.Sprintf("fn %s%s", v.function.Name(), v.typ)
	}
	return "??"
}

// Equal reports deep equality between two values of the same type.
func (v Value) Equal(other Value) bool {
	v, other = v.deref(), other.deref()
	if !v.typ.IsSame(other.typ) {
		return false
	}
	switch {
	case v.IsVoid():
		return true
	case v.IsInteger():
		return v.integer == other.integer
	case v.IsDouble():
		return v.double == other.double
	case v.IsBool():
		return v.boolean == other.boolean
	case v.IsChar():
		return v.char == other.char
	case v.IsList():
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case v.IsMap():
		if v.m.len() != other.m.len() {
			return false
		}
		for _, p := range v.m.sortedPairs() {
			q, ok := other.m.get(p.key)
			if !ok || !p.val.Equal(q) {
				return false
			}
		}
		return true
	case v.IsFunction():
		return v.function == other.function
	}
	return false
}

// CastTo converts a value to the given type, if a cast exists; the
// conversion cost follows Type.CastDist.
func (v Value) CastTo(t *Type) (Value, bool) {
	v = v.deref()
	if v.typ.IsSame(t) {
		return v, true
	}
	if v.typ.CastDist(t) < 0 {
		return Value{}, false
	}
	switch {
	case v.IsInteger() && t.IsDouble():
		return DoubleValue(float64(v.integer)), true
	case v.IsList() && t.IsList():
		out := v
		out.typ = t
		return out, true
	case v.IsMap() && t.IsMap():
		out := v
		out.typ = t
		return out, true
	}
	return Value{}, false
}

// valueMap maps Values to Values. Keys are bucketed by a canonical string
// encoding; iteration is in sorted encoding order so that serialization and
// printing are deterministic.
type valueMap struct {
	entries map[string]*mapPair
}

type mapPair struct {
	key Value
	val Value
}

func newValueMap() *valueMap {
	return &valueMap{entries: make(map[string]*mapPair)}
}

func mapKey(v Value) string {
	return v.deref().Str()
}

func (vm *valueMap) len() int { return len(vm.entries) }

func (vm *valueMap) get(key Value) (Value, bool) {
	p, ok := vm.entries[mapKey(key)]
	if !ok {
		return Value{}, false
	}
	return p.val, true
}

// ref returns a pointer to the stored value for key, inserting def if the
// key is absent.
func (vm *valueMap) ref(key Value, def Value) *Value {
	k := mapKey(key)
	p, ok := vm.entries[k]
	if !ok {
		p = &mapPair{key: key.deref(), val: def}
		vm.entries[k] = p
	}
	return &p.val
}

func (vm *valueMap) set(key, val Value) {
	vm.entries[mapKey(key)] = &mapPair{key: key.deref(), val: val}
}

func (vm *valueMap) sortedPairs() []*mapPair {
	keys := make([]string, 0, len(vm.entries))
	for k := range vm.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]*mapPair, len(keys))
	for i, k := range keys {
		pairs[i] = vm.entries[k]
	}
	return pairs
}
