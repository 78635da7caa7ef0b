package interp

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"src.ikura.sh/pkg/serial"
)

// State is the interpreter's persistent state: user commands, builtin
// command permissions, and global variables. It is always accessed through
// an Interp, which provides the locking.
type State struct {
	Commands     map[string]Command
	BuiltinPerms map[string]uint64
	Globals      map[string]*Value
}

// NewState returns an empty state with default builtin permissions.
func NewState() *State {
	return &State{
		Commands:     make(map[string]Command),
		BuiltinPerms: DefaultBuiltinPermissions(),
		Globals:      make(map[string]*Value),
	}
}

// FindCommand looks up a user command by name. Builtin functions are not
// consulted; use resolveVariable for full name resolution.
func (st *State) FindCommand(name string) Command {
	return st.Commands[name]
}

// RemoveCommand removes a user command, reporting whether it existed.
func (st *State) RemoveCommand(name string) bool {
	if _, ok := st.Commands[name]; !ok {
		return false
	}
	delete(st.Commands, name)
	return true
}

// AddGlobal defines a new global variable. Redefinitions are refused.
func (st *State) AddGlobal(name string, val Value) error {
	if isBuiltinVar(name) || (name != "" && name[0] >= '0' && name[0] <= '9') {
		return fmt.Errorf("'%s' is a builtin global", name)
	}
	if _, ok := st.Globals[name]; ok {
		return fmt.Errorf("redefinition of global '%s'", name)
	}
	v := val.RValue()
	st.Globals[name] = &v
	return nil
}

func isBuiltinVar(name string) bool {
	switch name {
	case "user", "self", "args", "channel":
		return true
	}
	return false
}

func builtinVar(name string, ctx *Context) (Value, bool) {
	switch name {
	case "user":
		return StringValue(ctx.CallerName), true
	case "self":
		return StringValue(ctx.Channel.Username()), true
	case "channel":
		return StringValue(ctx.Channel.Name()), true
	case "args":
		args := make([]Value, len(ctx.Args))
		copy(args, ctx.Args)
		return ListValue(StringType(), args), true
	}
	return Value{}, false
}

// resolveVariable resolves a name to a value, and additionally to a
// reference when the name denotes something assignable. Resolution order:
// macro arguments and builtin variables (behind '$'), then globals, then
// builtin functions, then user commands.
func (st *State) resolveVariable(name string, ctx *Context) (Value, *Value, error) {
	if name == "" {
		return Value{}, nil, fmt.Errorf("empty variable name")
	}

	if name[0] == '$' {
		rest := name[1:]
		if rest == "" {
			return Value{}, nil, fmt.Errorf("'$' without a name")
		}
		if rest[0] >= '0' && rest[0] <= '9' {
			idx, err := strconv.Atoi(rest)
			if err != nil {
				return Value{}, nil, fmt.Errorf("invalid argument reference '$%s'", rest)
			}
			if idx < 1 || idx > len(ctx.Args) {
				return Value{}, nil, fmt.Errorf("argument index out of bounds (want %d, have %d)",
					idx, len(ctx.Args))
			}
			return ctx.Args[idx-1], nil, nil
		}
		if v, ok := builtinVar(rest, ctx); ok {
			return v, nil, nil
		}
		return Value{}, nil, fmt.Errorf("variable '%s' not found", name)
	}

	if ref, ok := st.Globals[name]; ok {
		return *ref, ref, nil
	}
	if fn := GetBuiltinFunction(name); fn != nil {
		return FunctionValue(fn), nil, nil
	}
	if cmd := st.FindCommand(name); cmd != nil {
		return FunctionValue(cmd), nil, nil
	}
	return Value{}, nil, fmt.Errorf("variable '%s' not found", name)
}

// EvaluateExpr parses and evaluates an expression against this state.
func (st *State) EvaluateExpr(src string, ctx *Context) (Value, error) {
	expr, err := ParseExpr(src)
	if err != nil {
		return Value{}, err
	}
	return expr.Eval(st, ctx)
}

// Serialize writes the full interpreter state. Commands go first: values
// can reference commands by name, so commands must already be in the lookup
// table when values are decoded.
func (st *State) Serialize(w *serial.Writer) {
	w.Tag(serial.TagInterpState)

	names := sortedKeys(st.Commands)
	serializable := names[:0]
	for _, name := range names {
		if _, ok := st.Commands[name].(*Macro); ok {
			serializable = append(serializable, name)
		}
	}
	w.Tag(serial.TagMap)
	w.U64(uint64(len(serializable)))
	for _, name := range serializable {
		w.String(name)
		st.Commands[name].serialize(w)
	}

	serial.WriteStringMap(w, st.BuiltinPerms, (*serial.Writer).U64)

	w.Tag(serial.TagMap)
	w.U64(uint64(len(st.Globals)))
	for _, name := range sortedKeys(st.Globals) {
		w.String(name)
		st.Globals[name].serialize(w)
	}
}

// ReadState decodes interpreter state written by Serialize.
func ReadState(r *serial.Reader) (*State, error) {
	if err := r.ExpectTag(serial.TagInterpState); err != nil {
		return nil, err
	}
	st := NewState()

	if err := r.ExpectTag(serial.TagMap); err != nil {
		return nil, err
	}
	n, err := r.U64()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		cmd, err := readCommand(r)
		if err != nil {
			return nil, err
		}
		st.Commands[name] = cmd
	}

	perms, err := serial.ReadStringMap(r, (*serial.Reader).U64)
	if err != nil {
		return nil, err
	}
	if len(perms) > 0 {
		st.BuiltinPerms = perms
	}

	if err := r.ExpectTag(serial.TagMap); err != nil {
		return nil, err
	}
	n, err = r.U64()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		val, err := readValue(r, st)
		if err != nil {
			return nil, err
		}
		st.Globals[name] = &val
	}
	return st, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Interp owns a State behind a readers-writer lock. All access from
// command dispatch and the chat path goes through Read and Write.
type Interp struct {
	mu sync.RWMutex
	st *State
}

// New returns an interpreter with a fresh state.
func New() *Interp {
	return &Interp{st: NewState()}
}

// Read runs f with the state under the read lock.
func (itp *Interp) Read(f func(st *State)) {
	itp.mu.RLock()
	defer itp.mu.RUnlock()
	f(itp.st)
}

// Write runs f with the state under the exclusive lock.
func (itp *Interp) Write(f func(st *State)) {
	itp.mu.Lock()
	defer itp.mu.Unlock()
	f(itp.st)
}

// Replace swaps in a new state, as happens after a database load.
func (itp *Interp) Replace(st *State) {
	itp.mu.Lock()
	defer itp.mu.Unlock()
	itp.st = st
}

// EvaluateExpr evaluates an expression under the exclusive lock, since
// expressions can assign to globals.
func (itp *Interp) EvaluateExpr(src string, ctx *Context) (Value, error) {
	var val Value
	var err error
	itp.Write(func(st *State) {
		val, err = st.EvaluateExpr(src, ctx)
	})
	return val, err
}
