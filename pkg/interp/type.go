package interp

import (
	"fmt"
	"strings"

	"src.ikura.sh/pkg/serial"
)

// Kinds of types, also used as their on-disk encoding.
const (
	tVoid     uint8 = 0
	tInteger  uint8 = 1
	tDouble   uint8 = 2
	tBoolean  uint8 = 3
	tList     uint8 = 4
	tMap      uint8 = 5
	tChar     uint8 = 6
	tFunction uint8 = 7
)

// Type is an immutable, possibly recursive type descriptor. Leaf types are
// singletons, so leaf identity can be tested with ==; structural equality
// for every type goes through IsSame.
type Type struct {
	kind uint8
	key  *Type   // key type for maps
	elem *Type   // element type for lists, value type for maps, return type for functions
	args []*Type // argument types for functions
}

var (
	typeVoid    = &Type{kind: tVoid}
	typeInteger = &Type{kind: tInteger}
	typeDouble  = &Type{kind: tDouble}
	typeBoolean = &Type{kind: tBoolean}
	typeChar    = &Type{kind: tChar}
)

func VoidType() *Type    { return typeVoid }
func IntegerType() *Type { return typeInteger }
func DoubleType() *Type  { return typeDouble }
func BooleanType() *Type { return typeBoolean }
func CharType() *Type    { return typeChar }

func StringType() *Type { return ListType(typeChar) }

func ListType(elem *Type) *Type { return &Type{kind: tList, elem: elem} }

func MapType(key, elem *Type) *Type { return &Type{kind: tMap, key: key, elem: elem} }

func FunctionType(ret *Type, args []*Type) *Type {
	return &Type{kind: tFunction, elem: ret, args: args}
}

// MacroFunctionType is the signature shared by all macros: a list of strings
// in, a list of strings out.
func MacroFunctionType() *Type {
	return FunctionType(ListType(StringType()), []*Type{ListType(StringType())})
}

func (t *Type) IsVoid() bool     { return t.kind == tVoid }
func (t *Type) IsInteger() bool  { return t.kind == tInteger }
func (t *Type) IsDouble() bool   { return t.kind == tDouble }
func (t *Type) IsBool() bool     { return t.kind == tBoolean }
func (t *Type) IsChar() bool     { return t.kind == tChar }
func (t *Type) IsList() bool     { return t.kind == tList }
func (t *Type) IsMap() bool      { return t.kind == tMap }
func (t *Type) IsFunction() bool { return t.kind == tFunction }
func (t *Type) IsString() bool   { return t.kind == tList && t.elem.kind == tChar }

func (t *Type) KeyType() *Type    { return t.key }
func (t *Type) ElemType() *Type   { return t.elem }
func (t *Type) RetType() *Type    { return t.elem }
func (t *Type) ArgTypes() []*Type { return t.args }

// IsSame reports structural equality.
func (t *Type) IsSame(other *Type) bool {
	if t.kind != other.kind {
		return false
	}
	switch t.kind {
	case tList:
		return t.elem.IsSame(other.elem)
	case tMap:
		return t.key.IsSame(other.key) && t.elem.IsSame(other.elem)
	case tFunction:
		if !t.elem.IsSame(other.elem) || len(t.args) != len(other.args) {
			return false
		}
		for i := range t.args {
			if !t.args[i].IsSame(other.args[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// CastDist returns the cost of implicitly converting a value of type t to
// the type to: 0 for identical types, a small positive cost for permitted
// widenings, and -1 when no conversion exists. [void] and [void: void] act
// as generic placeholders that any list or map can convert to.
func (t *Type) CastDist(to *Type) int {
	switch {
	case t.IsSame(to):
		return 0
	case t.IsInteger() && to.IsDouble():
		return 1
	case t.IsList() && to.IsList():
		if to.elem.IsVoid() {
			return 2
		}
	case t.IsMap() && to.IsMap():
		switch {
		case t.key.IsSame(to.key) && to.elem.IsVoid():
			return 2
		case t.elem.IsSame(to.elem) && to.key.IsVoid():
			return 2
		case to.key.IsVoid() && to.elem.IsVoid():
			return 3
		}
	}
	return -1
}

func (t *Type) String() string {
	switch {
	case t.IsVoid():
		return "void"
	case t.IsInteger():
		return "int"
	case t.IsDouble():
		return "dbl"
	case t.IsBool():
		return "bool"
	case t.IsChar():
		return "char"
	case t.IsString():
		return "str"
	case t.IsList():
		return fmt.Sprintf("[%s]", t.elem)
	case t.IsMap():
		return fmt.Sprintf("[%s: %s]", t.key, t.elem)
	case t.IsFunction():
		args := make([]string, len(t.args))
		for i, a := range t.args {
			args[i] = a.String()
		}
		return fmt.Sprintf("fn(%s) -> %s", strings.Join(args, ", "), t.elem)
	}
	return "??"
}

func (t *Type) serialize(w *serial.Writer) {
	w.Tag(t.kind)
	switch t.kind {
	case tList:
		t.elem.serialize(w)
	case tMap:
		t.key.serialize(w)
		t.elem.serialize(w)
	case tFunction:
		t.elem.serialize(w)
		w.U64(uint64(len(t.args)))
		for _, a := range t.args {
			a.serialize(w)
		}
	}
}

func readType(r *serial.Reader) (*Type, error) {
	kind, err := r.Tag()
	if err != nil {
		return nil, err
	}
	switch kind {
	case tVoid:
		return typeVoid, nil
	case tInteger:
		return typeInteger, nil
	case tDouble:
		return typeDouble, nil
	case tBoolean:
		return typeBoolean, nil
	case tChar:
		return typeChar, nil
	case tList:
		elem, err := readType(r)
		if err != nil {
			return nil, err
		}
		return ListType(elem), nil
	case tMap:
		key, err := readType(r)
		if err != nil {
			return nil, err
		}
		elem, err := readType(r)
		if err != nil {
			return nil, err
		}
		return MapType(key, elem), nil
	case tFunction:
		ret, err := readType(r)
		if err != nil {
			return nil, err
		}
		n, err := r.U64()
		if err != nil {
			return nil, err
		}
		args := make([]*Type, 0, n)
		for i := uint64(0); i < n; i++ {
			a, err := readType(r)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		return FunctionType(ret, args), nil
	}
	return nil, fmt.Errorf("invalid type encoding %#02x", kind)
}

// ParseType parses the type grammar used by the global command:
// int | dbl | bool | str | char | void | [T] | [K: V] | (T, ...) -> R.
func ParseType(src string) (*Type, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if !p.empty() {
		return nil, fmt.Errorf("trailing junk after type: '%s'", p.peek().Text)
	}
	return t, nil
}

func (p *parser) parseType() (*Type, error) {
	if p.empty() {
		return nil, fmt.Errorf("unexpected end of input in type")
	}
	switch tok := p.peek(); tok.Kind {
	case TokIdentifier:
		p.pop()
		switch tok.Text {
		case "int":
			return typeInteger, nil
		case "dbl", "double":
			return typeDouble, nil
		case "bool":
			return typeBoolean, nil
		case "char":
			return typeChar, nil
		case "str":
			return StringType(), nil
		case "void":
			return typeVoid, nil
		}
		return nil, fmt.Errorf("unknown type '%s'", tok.Text)
	case TokLSquare:
		p.pop()
		first, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if p.match(TokColon) {
			val, err := p.parseType()
			if err != nil {
				return nil, err
			}
			if !p.match(TokRSquare) {
				return nil, fmt.Errorf("expected ']' in map type")
			}
			return MapType(first, val), nil
		}
		if !p.match(TokRSquare) {
			return nil, fmt.Errorf("expected ']' in list type")
		}
		return ListType(first), nil
	case TokLParen:
		p.pop()
		var args []*Type
		for !p.empty() && p.peek().Kind != TokRParen {
			a, err := p.parseType()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.match(TokComma) {
				continue
			}
			break
		}
		if !p.match(TokRParen) {
			return nil, fmt.Errorf("expected ')' in function type")
		}
		if !p.match(TokRightArrow) {
			return nil, fmt.Errorf("expected '->' in function type")
		}
		ret, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return FunctionType(ret, args), nil
	}
	return nil, fmt.Errorf("unexpected token '%s' in type", p.peek().Text)
}
