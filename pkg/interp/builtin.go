package interp

import (
	"fmt"
	"strconv"

	"src.ikura.sh/pkg/perms"
)

// Builtin function overload sets. The signatures use [void] and
// [void: void] as generic placeholders that participate in the
// cast-distance rule.
var builtinFunctions = map[string]*OverloadSet{
	"int": NewOverloadSet("int",
		conv("int", typeInteger, typeInteger, intFromInt),
		conv("int", StringType(), typeInteger, intFromStr),
		conv("int", typeDouble, typeInteger, intFromDbl),
		conv("int", typeBoolean, typeInteger, intFromBool),
		conv("int", typeChar, typeInteger, intFromChar),
	),
	"str": NewOverloadSet("str",
		conv("str", StringType(), StringType(), strFromStr),
		conv("str", typeInteger, StringType(), strFromAny),
		conv("str", typeDouble, StringType(), strFromAny),
		conv("str", typeBoolean, StringType(), strFromAny),
		conv("str", typeChar, StringType(), strFromAny),
		conv("str", ListType(typeVoid), StringType(), strFromAny),
		conv("str", MapType(typeVoid, typeVoid), StringType(), strFromAny),
	),
}

func conv(name string, arg, ret *Type,
	fn func(*State, *Context) (Value, error)) *BuiltinFunction {
	return NewBuiltinFunction(name, FunctionType(ret, []*Type{arg}), fn)
}

// GetBuiltinFunction returns the builtin function or overload set with the
// given name, or nil.
func GetBuiltinFunction(name string) Command {
	if set, ok := builtinFunctions[name]; ok {
		return set
	}
	return nil
}

func arg0(ctx *Context) (Value, error) {
	if len(ctx.Args) == 0 {
		return Value{}, fmt.Errorf("missing argument")
	}
	return ctx.Args[0].RValue(), nil
}

func intFromInt(st *State, ctx *Context) (Value, error) {
	return arg0(ctx)
}

func intFromStr(st *State, ctx *Context) (Value, error) {
	v, err := arg0(ctx)
	if err != nil {
		return Value{}, err
	}
	i, err := strconv.ParseInt(v.AsString(), 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("'%s' cannot be parsed as an integer", v.AsString())
	}
	return IntValue(i), nil
}

func intFromDbl(st *State, ctx *Context) (Value, error) {
	v, err := arg0(ctx)
	if err != nil {
		return Value{}, err
	}
	return IntValue(int64(v.Double())), nil
}

func intFromBool(st *State, ctx *Context) (Value, error) {
	v, err := arg0(ctx)
	if err != nil {
		return Value{}, err
	}
	if v.Bool() {
		return IntValue(1), nil
	}
	return IntValue(0), nil
}

func intFromChar(st *State, ctx *Context) (Value, error) {
	v, err := arg0(ctx)
	if err != nil {
		return Value{}, err
	}
	return IntValue(int64(v.Char())), nil
}

func strFromStr(st *State, ctx *Context) (Value, error) {
	return arg0(ctx)
}

func strFromAny(st *State, ctx *Context) (Value, error) {
	v, err := arg0(ctx)
	if err != nil {
		return Value{}, err
	}
	return StringValue(v.Str()), nil
}

// Builtin command names; these are reserved and cannot be shadowed by def.
var builtinCommands map[string]func(st *State, ctx *Context, args string)

func init() {
	builtinCommands = map[string]func(st *State, ctx *Context, args string){
		"def":    commandDef,
		"redef":  commandRedef,
		"undef":  commandUndef,
		"show":   commandShow,
		"chmod":  commandChmod,
		"global": commandGlobal,
		"eval":   commandEval,
	}
}

// IsBuiltinCommand reports whether name is one of the builtin commands.
func IsBuiltinCommand(name string) bool {
	_, ok := builtinCommands[name]
	return ok
}

// DefaultBuiltinPermissions returns the permission masks builtin commands
// start out with.
func DefaultBuiltinPermissions() map[string]uint64 {
	admin := perms.Moderator | perms.Broadcaster | perms.Owner
	return map[string]uint64{
		"def":    admin,
		"redef":  admin,
		"undef":  admin,
		"global": admin,
		"chmod":  perms.Broadcaster | perms.Owner,
		"show":   0,
		"eval":   0,
	}
}

// RunBuiltinCommand runs a builtin command if name is one, reporting whether
// it was. The caller has already checked the permission mask.
func RunBuiltinCommand(st *State, ctx *Context, name, args string) bool {
	fn, ok := builtinCommands[name]
	if !ok {
		return false
	}
	fn(st, ctx, args)
	return true
}

func reply(ctx *Context, format string, args ...any) {
	ctx.Channel.SendMessage(TextMessage(fmt.Sprintf(format, args...)))
}

func splitFirstWord(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], trimSpaces(s[i+1:])
		}
	}
	return s, ""
}

func trimSpaces(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

func internalDef(st *State, ctx *Context, redef bool, args string) {
	name, expansion := splitFirstWord(args)
	if name == "" {
		reply(ctx, "not enough arguments to '%s'", map[bool]string{false: "def", true: "redef"}[redef])
		return
	}
	if expansion == "" {
		reply(ctx, "expansion cannot be empty")
		return
	}
	if IsBuiltinCommand(name) || GetBuiltinFunction(name) != nil {
		reply(ctx, "'%s' is a builtin command", name)
		return
	}

	if st.FindCommand(name) != nil {
		if !redef {
			reply(ctx, "'%s' is already defined", name)
			return
		}
		st.RemoveCommand(name)
	} else if redef {
		reply(ctx, "'%s' does not exist", name)
		return
	}

	st.Commands[name] = NewMacro(name, expansion)
	if redef {
		reply(ctx, "redefined '%s'", name)
	} else {
		reply(ctx, "defined '%s'", name)
	}
}

func commandDef(st *State, ctx *Context, args string) {
	internalDef(st, ctx, false, args)
}

func commandRedef(st *State, ctx *Context, args string) {
	internalDef(st, ctx, true, args)
}

func commandUndef(st *State, ctx *Context, args string) {
	if args == "" || hasSpace(args) {
		reply(ctx, "'undef' takes exactly 1 argument")
		return
	}
	if st.RemoveCommand(args) {
		reply(ctx, "removed '%s'", args)
	} else {
		reply(ctx, "'%s' does not exist", args)
	}
}

func commandShow(st *State, ctx *Context, args string) {
	if args == "" || hasSpace(args) {
		reply(ctx, "'show' takes exactly 1 argument")
		return
	}
	if IsBuiltinCommand(args) {
		reply(ctx, "'%s' is a builtin command", args)
		return
	}
	cmd := st.FindCommand(args)
	if cmd == nil {
		reply(ctx, "'%s' does not exist", args)
		return
	}
	macro, ok := cmd.(*Macro)
	if !ok {
		reply(ctx, "'%s' cannot be shown", args)
		return
	}
	msg := TextMessage(fmt.Sprintf("'%s' is defined as:", args))
	for _, word := range macro.Code() {
		msg = msg.Add(word)
	}
	ctx.Channel.SendMessage(msg)
}

func commandChmod(st *State, ctx *Context, args string) {
	name, permStr := splitFirstWord(args)
	if name == "" || permStr == "" {
		reply(ctx, "not enough arguments to chmod")
		return
	}
	perm, err := strconv.ParseUint(permStr, 16, 64)
	if err != nil {
		reply(ctx, "invalid permission string '%s'", permStr)
		return
	}

	if IsBuiltinCommand(name) {
		st.BuiltinPerms[name] = perm
	} else {
		cmd := st.FindCommand(name)
		if cmd == nil {
			reply(ctx, "'%s' does not exist", name)
			return
		}
		cmd.SetPermissions(perm)
	}
	reply(ctx, "permissions for '%s' changed to %x", name, perm)
}

func commandGlobal(st *State, ctx *Context, args string) {
	name, typeStr := splitFirstWord(args)
	if name == "" || typeStr == "" {
		reply(ctx, "not enough arguments to global")
		return
	}
	typ, err := ParseType(typeStr)
	if err != nil {
		reply(ctx, "invalid type '%s'", typeStr)
		return
	}
	if err := st.AddGlobal(name, DefaultOf(typ)); err != nil {
		reply(ctx, "%s", err)
		return
	}
	reply(ctx, "added global '%s' with type '%s'", name, typ)
}

func commandEval(st *State, ctx *Context, args string) {
	val, err := st.EvaluateExpr(args, ctx)
	if err != nil {
		if !ctx.Channel.SilentErrors() {
			reply(ctx, "error: %s", err)
		}
		return
	}
	if msg := ValueMessage(val); len(msg.Fragments) > 0 {
		ctx.Channel.SendMessage(msg)
	}
}

func hasSpace(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return true
		}
	}
	return false
}
