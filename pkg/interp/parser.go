package interp

import (
	"fmt"
	"strconv"
	"strings"
)

// The parser is precedence-climbing over the binary operator table below;
// higher binds tighter. '?' and '|>' sit at the bottom so that pipelines
// consume entire conditional expressions.
func binaryPrecedence(op TokenKind) int {
	switch op {
	case TokPeriod:
		return 8000
	case TokLParen:
		return 3000
	case TokLSquare:
		return 2800
	case TokCaret, TokExponent:
		return 2600
	case TokAsterisk:
		return 2400
	case TokSlash:
		return 2200
	case TokPercent:
		return 2000
	case TokPlus, TokMinus:
		return 1800
	case TokShiftLeft, TokShiftRight:
		return 1600
	case TokAmpersand:
		return 1400
	case TokPipe:
		return 1000
	case TokEqualTo, TokNotEqual, TokLAngle, TokRAngle, TokLessThanEqual, TokGreaterThanEqual:
		return 800
	case TokLogicalAnd:
		return 600
	case TokLogicalOr:
		return 400
	case TokEqual, TokPlusEquals, TokMinusEquals, TokTimesEquals, TokDivideEquals,
		TokRemainderEquals, TokShiftLeftEquals, TokShiftRightEquals,
		TokBitwiseAndEquals, TokBitwiseOrEquals, TokExponentEquals:
		return 200
	case TokQuestion:
		return 10
	case TokPipeline:
		return 1
	}
	return -1
}

func isComparisonOp(op TokenKind) bool {
	switch op {
	case TokEqualTo, TokNotEqual, TokLAngle, TokRAngle, TokLessThanEqual, TokGreaterThanEqual:
		return true
	}
	return false
}

func isAssignmentOp(op TokenKind) bool {
	switch op {
	case TokEqual, TokPlusEquals, TokMinusEquals, TokTimesEquals, TokDivideEquals,
		TokRemainderEquals, TokShiftLeftEquals, TokShiftRightEquals,
		TokBitwiseAndEquals, TokBitwiseOrEquals, TokExponentEquals:
		return true
	}
	return false
}

func isPostfixOp(op TokenKind) bool {
	return op == TokLParen || op == TokLSquare
}

func isRightAssociative(op TokenKind) bool {
	return op == TokCaret || op == TokExponent
}

type parser struct {
	toks []Token
	pos  int
}

var eofToken = Token{Kind: TokEOF}

func (p *parser) peek() Token {
	if p.pos >= len(p.toks) {
		return eofToken
	}
	return p.toks[p.pos]
}

func (p *parser) pop() Token {
	tok := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return tok
}

func (p *parser) match(kind TokenKind) bool {
	if p.peek().Kind != kind {
		return false
	}
	p.pop()
	return true
}

func (p *parser) empty() bool { return p.pos >= len(p.toks) }

// ParseExpr lexes and parses a single expression. The whole input must be
// consumed. On failure the error is a diagnostic naming the offending
// token; errors from failed alternatives are joined with "; ".
func ParseExpr(src string) (Expr, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.empty() {
		return nil, fmt.Errorf("unexpected trailing token '%s'", p.peek().Text)
	}
	return expr, nil
}

func joinErrors(errs ...error) error {
	var parts []string
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}

func (p *parser) parseExpr() (Expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return p.parseRhs(lhs, 0)
}

func (p *parser) parseRhs(lhs Expr, minPrec int) (Expr, error) {
	for {
		oper := p.peek()
		prec := binaryPrecedence(oper.Kind)
		if prec < 0 || (prec < minPrec && !isRightAssociative(oper.Kind) && !isPostfixOp(oper.Kind)) {
			return lhs, nil
		}
		p.pop()

		if isPostfixOp(oper.Kind) {
			post, err := p.parsePostfix(lhs, oper.Kind)
			if err != nil {
				return nil, err
			}
			lhs = post
			continue
		}

		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if next := p.peek().Kind; binaryPrecedence(next) > prec || isRightAssociative(next) {
			rhs, err = p.parseRhs(rhs, prec+1)
			if err != nil {
				return nil, err
			}
		}

		switch {
		case isAssignmentOp(oper.Kind):
			lhs = &AssignOp{Op: oper.Kind, OpStr: oper.Text, LHS: lhs, RHS: rhs}

		case oper.Kind == TokQuestion:
			if !p.match(TokColon) {
				return nil, fmt.Errorf("expected ':' after '?'")
			}
			els, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lhs = &TernaryOp{Cond: lhs, Then: rhs, Else: els}

		case isComparisonOp(oper.Kind):
			if cmp, ok := lhs.(*ComparisonOp); ok {
				cmp.Exprs = append(cmp.Exprs, rhs)
				cmp.Ops = append(cmp.Ops, compOp{oper.Kind, oper.Text})
			} else {
				lhs = &ComparisonOp{
					Exprs: []Expr{lhs, rhs},
					Ops:   []compOp{{oper.Kind, oper.Text}},
				}
			}

		case oper.Kind == TokPipeline:
			lhs = &PipelineOp{LHS: lhs, RHS: rhs}

		case oper.Kind == TokPeriod:
			// An argument list right after the member name belongs to it,
			// so x.f(a) is a method call on x.
			if p.match(TokLParen) {
				call, err := p.parsePostfix(rhs, TokLParen)
				if err != nil {
					return nil, err
				}
				rhs = call
			}
			lhs = &DotOp{LHS: lhs, RHS: rhs}

		default:
			lhs = &BinaryOp{Op: oper.Kind, OpStr: oper.Text, LHS: lhs, RHS: rhs}
		}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	makeUnary := func(kind TokenKind, text string) (Expr, error) {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: kind, OpStr: text, Expr: operand}, nil
	}
	switch tok := p.peek(); tok.Kind {
	case TokExclamation, TokMinus, TokPlus, TokTilde:
		p.pop()
		return makeUnary(tok.Kind, tok.Text)
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	switch tok := p.peek(); tok.Kind {
	case TokStringLit:
		return p.parseString()
	case TokCharLit:
		p.pop()
		r := []rune(tok.Text)
		return &LitChar{Value: r[0]}, nil
	case TokNumberLit:
		return p.parseNumber()
	case TokBooleanLit:
		p.pop()
		return &LitBoolean{Value: tok.Text == "true"}, nil
	case TokLParen:
		p.pop()
		inside, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.match(TokRParen) {
			return nil, fmt.Errorf("expected ')'")
		}
		return inside, nil
	case TokLSquare:
		return p.parseList()
	case TokDollar, TokIdentifier:
		return p.parseIdentifier()
	case TokEOF:
		return nil, fmt.Errorf("unexpected end of input")
	}
	return nil, fmt.Errorf("unexpected token '%s'", p.peek().Text)
}

func (p *parser) parseNumber() (Expr, error) {
	tok := p.pop()
	text := tok.Text

	isFloating := strings.Contains(text, ".") ||
		(!strings.Contains(text, "x") && !strings.Contains(text, "X") &&
			(strings.Contains(text, "e") || strings.Contains(text, "E")))

	if isFloating {
		val, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number literal '%s'", text)
		}
		return &LitDouble{Value: val}, nil
	}

	base := 10
	digits := text
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		base, digits = 16, text[2:]
	} else if strings.HasPrefix(text, "0b") || strings.HasPrefix(text, "0B") {
		base, digits = 2, text[2:]
	}
	val, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number literal '%s'", text)
	}
	return &LitInteger{Value: val}, nil
}

func (p *parser) parseString() (Expr, error) {
	tok := p.pop()
	text := tok.Text

	var sb strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] != '\\' || i+1 >= len(text) {
			sb.WriteByte(text[i])
			continue
		}
		i++
		switch text[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'b':
			sb.WriteByte('\b')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '"':
			sb.WriteByte('"')
		case '\\':
			sb.WriteByte('\\')
		default:
			// Unknown escapes keep the backslash and the next character
			// verbatim.
			sb.WriteByte('\\')
			sb.WriteByte(text[i])
		}
	}
	return &LitString{Value: sb.String()}, nil
}

func (p *parser) parseList() (Expr, error) {
	p.pop() // '['
	var elems []Expr
	for !p.empty() && p.peek().Kind != TokRSquare {
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if p.match(TokComma) {
			continue
		}
		if p.peek().Kind == TokRSquare {
			break
		}
		return nil, fmt.Errorf("expected ',' or ']' in list literal, found '%s'", p.peek().Text)
	}
	if !p.match(TokRSquare) {
		return nil, fmt.Errorf("expected ']'")
	}
	return &LitList{Elems: elems}, nil
}

// parseIdentifier parses a plain identifier, or a '$' followed by an
// identifier or an integer, which names a macro argument.
func (p *parser) parseIdentifier() (Expr, error) {
	tok := p.pop()
	name := tok.Text
	if tok.Kind == TokDollar {
		switch next := p.peek(); next.Kind {
		case TokIdentifier:
			name += next.Text
		case TokNumberLit:
			if strings.IndexFunc(next.Text, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
				return nil, fmt.Errorf("invalid numeric literal '%s' after '$'", next.Text)
			}
			name += next.Text
		default:
			return nil, fmt.Errorf("invalid token '%s' after '$'", next.Text)
		}
		p.pop()
	}
	return &VarRef{Name: name}, nil
}

func (p *parser) parsePostfix(lhs Expr, op TokenKind) (Expr, error) {
	if op == TokLParen {
		var args []Expr
		for p.peek().Kind != TokRParen {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.match(TokComma) {
				continue
			}
			if p.peek().Kind == TokRParen {
				break
			}
			return nil, fmt.Errorf("expected ',' or ')'")
		}
		if !p.match(TokRParen) {
			return nil, fmt.Errorf("expected ')'")
		}
		return &FunctionCall{Callee: lhs, Args: args}, nil
	}

	// Subscript or slice; the five forms are [i], [:], [i:], [:j] and [i:j].
	if p.match(TokColon) {
		if p.match(TokRSquare) {
			return &SliceOp{Base: lhs}, nil
		}
		end, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.match(TokRSquare) {
			return nil, fmt.Errorf("expected ']'")
		}
		return &SliceOp{Base: lhs, End: end}, nil
	}

	idx, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.match(TokColon) {
		if p.match(TokRSquare) {
			return &SliceOp{Base: lhs, Start: idx}, nil
		}
		end, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.match(TokRSquare) {
			return nil, fmt.Errorf("expected ']'")
		}
		return &SliceOp{Base: lhs, Start: idx, End: end}, nil
	}
	if p.match(TokRSquare) {
		return &SubscriptOp{Base: lhs, Index: idx}, nil
	}
	return nil, joinErrors(
		fmt.Errorf("expected ']' after index"),
		fmt.Errorf("expected ':' for slice, found '%s'", p.peek().Text))
}
