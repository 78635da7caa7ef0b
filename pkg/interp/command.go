package interp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"src.ikura.sh/pkg/serial"
)

// Command is anything runnable by name: a user-defined macro, a builtin
// function, or an overload set grouping builtin functions that share a name.
type Command interface {
	Name() string
	Permissions() uint64
	SetPermissions(p uint64)
	Signature() *Type
	Run(st *State, ctx *Context) (Value, error)

	serialize(w *serial.Writer) error
}

// ErrNotSerializable is returned when trying to persist a command kind that
// never goes to disk (builtin functions and overload sets).
var ErrNotSerializable = errors.New("command is not serializable")

// readCommand decodes a command, dispatching on its type tag. Only macros
// are ever persisted; the function tag is reserved.
func readCommand(r *serial.Reader) (Command, error) {
	tag, err := r.PeekTag()
	if err != nil {
		return nil, err
	}
	switch tag {
	case serial.TagMacro:
		return readMacro(r)
	case serial.TagFunction:
		return nil, fmt.Errorf("reserved command tag %#02x", tag)
	}
	return nil, &serial.TagMismatchError{Want: serial.TagMacro, Got: tag}
}

// Macro is a user-defined command: a list of code words that expand into a
// message. Words starting with '$' are argument placeholders; words starting
// with '\' are inline expressions evaluated at expansion time.
type Macro struct {
	name  string
	perms uint64
	code  []string
}

// NewMacro compiles a macro from its raw body.
func NewMacro(name, body string) *Macro {
	return &Macro{name: name, code: splitMacroWords(body)}
}

func (m *Macro) Name() string            { return m.name }
func (m *Macro) Permissions() uint64     { return m.perms }
func (m *Macro) SetPermissions(p uint64) { m.perms = p }
func (m *Macro) Signature() *Type        { return MacroFunctionType() }

// Code returns the compiled word list.
func (m *Macro) Code() []string { return m.code }

// splitMacroWords splits a macro body into words. An inline expression
// introduced by '\' swallows everything until a space outside of brackets,
// so that "\(f(1, 2))" stays one word.
func splitMacroWords(body string) []string {
	var words []string
	body = strings.TrimSpace(body)
	for body != "" {
		var end int
		if strings.HasPrefix(body, `\\`) {
			end = nextSpace(body, 2)
		} else if strings.HasPrefix(body, `\`) {
			depth := 0
			end = len(body)
			for i := 1; i < len(body); i++ {
				switch body[i] {
				case '(', '[', '{':
					depth++
				case ')', ']', '}':
					depth--
				case ' ':
					if depth == 0 {
						end = i
					}
				}
				if end == i {
					break
				}
			}
		} else {
			end = nextSpace(body, 0)
		}
		words = append(words, body[:end])
		body = strings.TrimLeft(body[end:], " \t")
	}
	return words
}

func nextSpace(s string, from int) int {
	if i := strings.IndexByte(s[from:], ' '); i >= 0 {
		return from + i
	}
	return len(s)
}

// Run expands the macro into a list of strings. Placeholders take the
// positional argument ($1 is the first); $0 takes all arguments joined by
// spaces. Inline '\' expressions are parsed and evaluated here.
func (m *Macro) Run(st *State, ctx *Context) (Value, error) {
	var out []Value
	for _, word := range m.code {
		if word == "" {
			continue
		}
		switch {
		case strings.HasPrefix(word, `\\`):
			out = append(out, StringValue(word[1:]))

		case strings.HasPrefix(word, `\`):
			expr, err := ParseExpr(word[1:])
			if err != nil {
				return Value{}, err
			}
			v, err := expr.Eval(st, ctx)
			if err != nil {
				return Value{}, err
			}
			out = append(out, v.RValue())

		case strings.HasPrefix(word, "$"):
			expanded, err := expandPlaceholder(word, ctx)
			if err != nil {
				return Value{}, err
			}
			out = append(out, StringValue(expanded))

		default:
			out = append(out, StringValue(word))
		}
	}
	return ListValue(StringType(), out), nil
}

// expandPlaceholder substitutes a $N placeholder at the start of a word,
// keeping any trailing characters: "$1!" with first argument "World" gives
// "World!".
func expandPlaceholder(word string, ctx *Context) (string, error) {
	digits := 0
	for digits+1 < len(word) && word[digits+1] >= '0' && word[digits+1] <= '9' {
		digits++
	}
	if digits == 0 {
		// Not a positional placeholder; leave it for expression context.
		return word, nil
	}
	n, err := strconv.Atoi(word[1 : 1+digits])
	if err != nil {
		return "", fmt.Errorf("invalid argument reference '%s'", word)
	}
	rest := word[1+digits:]
	if n == 0 {
		parts := make([]string, len(ctx.Args))
		for i, a := range ctx.Args {
			parts[i] = a.Raw()
		}
		return strings.Join(parts, " ") + rest, nil
	}
	if n > len(ctx.Args) {
		return "", fmt.Errorf("argument $%d out of range (have %d)", n, len(ctx.Args))
	}
	return ctx.Args[n-1].Raw() + rest, nil
}

func (m *Macro) serialize(w *serial.Writer) error {
	w.Tag(serial.TagMacro)
	w.String(m.name)
	w.U64(m.perms)
	serial.WriteSeq(w, m.code, (*serial.Writer).String)
	return nil
}

func readMacro(r *serial.Reader) (*Macro, error) {
	if err := r.ExpectTag(serial.TagMacro); err != nil {
		return nil, err
	}
	name, err := r.String()
	if err != nil {
		return nil, err
	}
	perms, err := r.U64()
	if err != nil {
		return nil, err
	}
	code, err := serial.ReadSeq(r, (*serial.Reader).String)
	if err != nil {
		return nil, err
	}
	return &Macro{name: name, perms: perms, code: code}, nil
}

// BuiltinFunction is a natively implemented function with a declared
// signature.
type BuiltinFunction struct {
	name string
	sig  *Type
	fn   func(st *State, ctx *Context) (Value, error)
}

func NewBuiltinFunction(name string, sig *Type,
	fn func(*State, *Context) (Value, error)) *BuiltinFunction {
	return &BuiltinFunction{name: name, sig: sig, fn: fn}
}

func (b *BuiltinFunction) Name() string          { return b.name }
func (b *BuiltinFunction) Permissions() uint64   { return 0 }
func (b *BuiltinFunction) SetPermissions(uint64) {}
func (b *BuiltinFunction) Signature() *Type      { return b.sig }

func (b *BuiltinFunction) Run(st *State, ctx *Context) (Value, error) {
	return b.fn(st, ctx)
}

func (b *BuiltinFunction) serialize(*serial.Writer) error { return ErrNotSerializable }

// OverloadSet groups same-named functions; calls dispatch to the variant
// with the lowest total cast distance over the arguments.
type OverloadSet struct {
	name string
	fns  []*BuiltinFunction
}

func NewOverloadSet(name string, fns ...*BuiltinFunction) *OverloadSet {
	return &OverloadSet{name: name, fns: fns}
}

func (o *OverloadSet) Name() string          { return o.name }
func (o *OverloadSet) Permissions() uint64   { return 0 }
func (o *OverloadSet) SetPermissions(uint64) {}
func (o *OverloadSet) Signature() *Type      { return MacroFunctionType() }

func (o *OverloadSet) Run(st *State, ctx *Context) (Value, error) {
	best, err := o.resolve(ctx.Args)
	if err != nil {
		return Value{}, err
	}
	return best.Run(st, ctx)
}

// resolve picks the overload with minimal total cast distance. Ties go to
// the first declared candidate.
func (o *OverloadSet) resolve(args []Value) (*BuiltinFunction, error) {
	bestCost := -1
	var best *BuiltinFunction
	for _, cand := range o.fns {
		candArgs := cand.Signature().ArgTypes()
		if len(candArgs) != len(args) {
			continue
		}
		cost := 0
		ok := true
		for i, arg := range args {
			d := arg.Type().CastDist(candArgs[i])
			if d < 0 {
				ok = false
				break
			}
			cost += d
		}
		if ok && (bestCost < 0 || cost < bestCost) {
			bestCost, best = cost, cand
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no matching function for call to '%s'", o.name)
	}
	return best, nil
}

func (o *OverloadSet) serialize(*serial.Writer) error { return ErrNotSerializable }
