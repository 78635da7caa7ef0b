package interp

import (
	"fmt"
	"math"
)

func applyUnary(op TokenKind, opStr string, v Value) (Value, error) {
	v = v.RValue()
	switch op {
	case TokPlus:
		if v.IsInteger() || v.IsDouble() {
			return v, nil
		}
	case TokMinus:
		switch {
		case v.IsInteger():
			return IntValue(-v.Int()), nil
		case v.IsDouble():
			return DoubleValue(-v.Double()), nil
		}
	case TokExclamation:
		if v.IsBool() {
			return BoolValue(!v.Bool()), nil
		}
	case TokTilde:
		if v.IsInteger() {
			return IntValue(^v.Int()), nil
		}
	}
	return Value{}, fmt.Errorf("invalid unary '%s' on type '%s'", opStr, v.Type())
}

func ipow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

// applyBinary implements all binary operators except comparisons. The
// compound-assignment kinds behave like their plain counterparts here; the
// store-back happens in AssignOp. didAppend is set when += appended to a
// list in place.
func applyBinary(op TokenKind, opStr string, lhs, rhs Value, didAppend *bool) (Value, error) {
	l, r := lhs.RValue(), rhs.RValue()

	switch op {
	case TokPlus, TokPlusEquals:
		switch {
		case l.IsInteger() && r.IsInteger():
			return IntValue(l.Int() + r.Int()), nil
		case l.IsInteger() && r.IsDouble():
			return DoubleValue(float64(l.Int()) + r.Double()), nil
		case l.IsDouble() && r.IsInteger():
			return DoubleValue(l.Double() + float64(r.Int())), nil
		case l.IsDouble() && r.IsDouble():
			return DoubleValue(l.Double() + r.Double()), nil
		case l.IsChar() && r.IsInteger():
			return CharValue(l.Char() + rune(r.Int())), nil
		case l.IsInteger() && r.IsChar():
			return CharValue(rune(l.Int()) + r.Char()), nil
		case l.IsList() && r.IsList():
			if !elemCompatible(l.Type(), r.Type()) {
				break
			}
			if op == TokPlusEquals {
				if !lhs.IsLValue() {
					return Value{}, fmt.Errorf("cannot append to rvalue")
				}
				target := lhs.LValueTarget()
				target.list = append(target.list, r.List()...)
				if didAppend != nil {
					*didAppend = true
				}
				return lhs, nil
			}
			joined := make([]Value, 0, len(l.List())+len(r.List()))
			joined = append(joined, l.List()...)
			joined = append(joined, r.List()...)
			return ListValue(l.Type().ElemType(), joined), nil
		}

	case TokMinus, TokMinusEquals:
		switch {
		case l.IsInteger() && r.IsInteger():
			return IntValue(l.Int() - r.Int()), nil
		case l.IsInteger() && r.IsDouble():
			return DoubleValue(float64(l.Int()) - r.Double()), nil
		case l.IsDouble() && r.IsInteger():
			return DoubleValue(l.Double() - float64(r.Int())), nil
		case l.IsDouble() && r.IsDouble():
			return DoubleValue(l.Double() - r.Double()), nil
		case l.IsChar() && r.IsInteger():
			return CharValue(l.Char() - rune(r.Int())), nil
		}

	case TokAsterisk, TokTimesEquals:
		switch {
		case l.IsInteger() && r.IsInteger():
			return IntValue(l.Int() * r.Int()), nil
		case l.IsInteger() && r.IsDouble():
			return DoubleValue(float64(l.Int()) * r.Double()), nil
		case l.IsDouble() && r.IsInteger():
			return DoubleValue(l.Double() * float64(r.Int())), nil
		case l.IsDouble() && r.IsDouble():
			return DoubleValue(l.Double() * r.Double()), nil
		}

	case TokSlash, TokDivideEquals:
		switch {
		case l.IsInteger() && r.IsInteger():
			// Division by zero saturates instead of aborting the command.
			if r.Int() == 0 {
				return IntValue(math.MaxInt64), nil
			}
			return IntValue(l.Int() / r.Int()), nil
		case l.IsInteger() && r.IsDouble():
			return DoubleValue(float64(l.Int()) / r.Double()), nil
		case l.IsDouble() && r.IsInteger():
			return DoubleValue(l.Double() / float64(r.Int())), nil
		case l.IsDouble() && r.IsDouble():
			return DoubleValue(l.Double() / r.Double()), nil
		}

	case TokPercent, TokRemainderEquals:
		switch {
		case l.IsInteger() && r.IsInteger():
			if r.Int() == 0 {
				return IntValue(0), nil
			}
			return IntValue(l.Int() % r.Int()), nil
		case l.IsInteger() && r.IsDouble():
			return DoubleValue(math.Mod(float64(l.Int()), r.Double())), nil
		case l.IsDouble() && r.IsInteger():
			return DoubleValue(math.Mod(l.Double(), float64(r.Int()))), nil
		case l.IsDouble() && r.IsDouble():
			return DoubleValue(math.Mod(l.Double(), r.Double())), nil
		}

	case TokCaret, TokExponent, TokExponentEquals:
		switch {
		case l.IsInteger() && r.IsInteger():
			return IntValue(ipow(l.Int(), r.Int())), nil
		case l.IsInteger() && r.IsDouble():
			return DoubleValue(math.Pow(float64(l.Int()), r.Double())), nil
		case l.IsDouble() && r.IsInteger():
			return DoubleValue(math.Pow(l.Double(), float64(r.Int()))), nil
		case l.IsDouble() && r.IsDouble():
			return DoubleValue(math.Pow(l.Double(), r.Double())), nil
		}

	case TokShiftLeft, TokShiftLeftEquals:
		if l.IsInteger() && r.IsInteger() {
			return IntValue(l.Int() << uint64(r.Int())), nil
		}

	case TokShiftRight, TokShiftRightEquals:
		if l.IsInteger() && r.IsInteger() {
			return IntValue(l.Int() >> uint64(r.Int())), nil
		}

	case TokAmpersand, TokBitwiseAndEquals:
		if l.IsInteger() && r.IsInteger() {
			return IntValue(l.Int() & r.Int()), nil
		}

	case TokPipe, TokBitwiseOrEquals:
		if l.IsInteger() && r.IsInteger() {
			return IntValue(l.Int() | r.Int()), nil
		}

	case TokLogicalAnd:
		if l.IsBool() && r.IsBool() {
			return BoolValue(l.Bool() && r.Bool()), nil
		}

	case TokLogicalOr:
		if l.IsBool() && r.IsBool() {
			return BoolValue(l.Bool() || r.Bool()), nil
		}
	}

	return Value{}, fmt.Errorf("invalid binary '%s' between types '%s' and '%s'",
		opStr, l.Type(), r.Type())
}

func elemCompatible(a, b *Type) bool {
	return a.ElemType().IsSame(b.ElemType()) ||
		a.ElemType().IsVoid() || b.ElemType().IsVoid()
}

func compareValues(op TokenKind, opStr string, l, r Value) (bool, error) {
	l, r = l.RValue(), r.RValue()

	if op == TokEqualTo || op == TokNotEqual {
		var eq, ok bool
		switch {
		case l.IsInteger() && r.IsDouble():
			eq, ok = float64(l.Int()) == r.Double(), true
		case l.IsDouble() && r.IsInteger():
			eq, ok = l.Double() == float64(r.Int()), true
		case l.typ.IsSame(r.typ):
			eq, ok = l.Equal(r), true
		}
		if !ok {
			return false, fmt.Errorf("invalid comparison '%s' between types '%s' and '%s'",
				opStr, l.Type(), r.Type())
		}
		if op == TokNotEqual {
			eq = !eq
		}
		return eq, nil
	}

	cmp, err := orderValues(l, r)
	if err != nil {
		return false, fmt.Errorf("invalid comparison '%s' between types '%s' and '%s'",
			opStr, l.Type(), r.Type())
	}
	switch op {
	case TokLAngle:
		return cmp < 0, nil
	case TokRAngle:
		return cmp > 0, nil
	case TokLessThanEqual:
		return cmp <= 0, nil
	case TokGreaterThanEqual:
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("invalid comparison operator '%s'", opStr)
}

// orderValues returns -1, 0 or 1 for orderable pairs of values.
func orderValues(l, r Value) (int, error) {
	switch {
	case l.IsInteger() && r.IsInteger():
		return cmpOrdered(l.Int(), r.Int()), nil
	case l.IsInteger() && r.IsDouble():
		return cmpOrdered(float64(l.Int()), r.Double()), nil
	case l.IsDouble() && r.IsInteger():
		return cmpOrdered(l.Double(), float64(r.Int())), nil
	case l.IsDouble() && r.IsDouble():
		return cmpOrdered(l.Double(), r.Double()), nil
	case l.IsChar() && r.IsChar():
		return cmpOrdered(l.Char(), r.Char()), nil
	case l.IsChar() && r.IsInteger():
		return cmpOrdered(int64(l.Char()), r.Int()), nil
	case l.IsInteger() && r.IsChar():
		return cmpOrdered(l.Int(), int64(r.Char())), nil
	case l.IsList() && r.IsList():
		ll, rl := l.List(), r.List()
		for i := 0; i < len(ll) && i < len(rl); i++ {
			c, err := orderValues(ll[i].RValue(), rl[i].RValue())
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		return cmpOrdered(len(ll), len(rl)), nil
	}
	return 0, fmt.Errorf("not orderable")
}

func cmpOrdered[T int | int64 | float64 | rune](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
