package interp

import (
	"fmt"

	"src.ikura.sh/pkg/serial"
)

// Value serialization. A value is its tag, its type, then the payload.
// Function values store only the command name; the command table must
// already be decoded when values are read back, so State.Serialize writes
// commands before globals.

func (v Value) serialize(w *serial.Writer) {
	v = v.RValue()
	w.Tag(serial.TagInterpValue)
	v.typ.serialize(w)
	switch {
	case v.IsInteger():
		w.I64(v.integer)
	case v.IsDouble():
		w.F64(v.double)
	case v.IsBool():
		w.Bool(v.boolean)
	case v.IsChar():
		w.U32(uint32(v.char))
	case v.IsList():
		w.U64(uint64(len(v.list)))
		for _, x := range v.list {
			x.serialize(w)
		}
	case v.IsMap():
		pairs := v.m.sortedPairs()
		w.U64(uint64(len(pairs)))
		for _, p := range pairs {
			p.key.serialize(w)
			p.val.serialize(w)
		}
	case v.IsFunction():
		w.String(v.function.Name())
	}
}

func readValue(r *serial.Reader, st *State) (Value, error) {
	if err := r.ExpectTag(serial.TagInterpValue); err != nil {
		return Value{}, err
	}
	typ, err := readType(r)
	if err != nil {
		return Value{}, err
	}
	switch {
	case typ.IsVoid():
		return VoidValue(), nil
	case typ.IsInteger():
		i, err := r.I64()
		if err != nil {
			return Value{}, err
		}
		return IntValue(i), nil
	case typ.IsDouble():
		d, err := r.F64()
		if err != nil {
			return Value{}, err
		}
		return DoubleValue(d), nil
	case typ.IsBool():
		b, err := r.Bool()
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case typ.IsChar():
		c, err := r.U32()
		if err != nil {
			return Value{}, err
		}
		return CharValue(rune(c)), nil
	case typ.IsList():
		n, err := r.U64()
		if err != nil {
			return Value{}, err
		}
		list := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			x, err := readValue(r, st)
			if err != nil {
				return Value{}, err
			}
			list = append(list, x)
		}
		return Value{typ: typ, list: list}, nil
	case typ.IsMap():
		n, err := r.U64()
		if err != nil {
			return Value{}, err
		}
		m := newValueMap()
		for i := uint64(0); i < n; i++ {
			key, err := readValue(r, st)
			if err != nil {
				return Value{}, err
			}
			val, err := readValue(r, st)
			if err != nil {
				return Value{}, err
			}
			m.set(key, val)
		}
		return Value{typ: typ, m: m}, nil
	case typ.IsFunction():
		name, err := r.String()
		if err != nil {
			return Value{}, err
		}
		if fn := GetBuiltinFunction(name); fn != nil {
			return FunctionValue(fn), nil
		}
		if cmd := st.FindCommand(name); cmd != nil {
			return FunctionValue(cmd), nil
		}
		return Value{}, fmt.Errorf("value references unknown command '%s'", name)
	}
	return Value{}, fmt.Errorf("invalid value type '%s'", typ)
}
