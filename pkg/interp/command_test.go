package interp

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"src.ikura.sh/pkg/perms"
	"src.ikura.sh/pkg/serial"
)

func TestSplitMacroWords(t *testing.T) {
	tests := []struct {
		body string
		want []string
	}{
		{"Hello, $1!", []string{"Hello,", "$1!"}},
		{"  a   b  ", []string{"a", "b"}},
		{`a \(f(1, 2)) b`, []string{"a", `\(f(1, 2))`, "b"}},
		{`\\literal x`, []string{`\\literal`, "x"}},
	}
	for _, test := range tests {
		got := splitMacroWords(test.body)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("splitMacroWords(%q) (-want +got):\n%s", test.body, diff)
		}
	}
}

func runMacro(t *testing.T, body string, args ...string) string {
	t.Helper()
	itp := New()
	ctx := testContext(newFakeChannel())
	for _, a := range args {
		ctx.Args = append(ctx.Args, StringValue(a))
	}
	macro := NewMacro("m", body)
	var val Value
	var err error
	itp.Write(func(st *State) {
		val, err = macro.Run(st, ctx)
	})
	if err != nil {
		t.Fatalf("macro %q -> error %v", body, err)
	}
	return ValueMessage(val).Flatten()
}

func TestMacroExpansion(t *testing.T) {
	tests := []struct {
		body string
		args []string
		want string
	}{
		{"Hello, $1!", []string{"World"}, "Hello, World!"},
		{"all: $0", []string{"a", "b", "c"}, "all: a b c"},
		{"$2 then $1", []string{"x", "y"}, "y then x"},
		{`sum is \(1 + 2)`, nil, "sum is 3"},
		{`\\(escaped)`, nil, `\(escaped)`},
		{"plain words only", nil, "plain words only"},
	}
	for _, test := range tests {
		if got := runMacro(t, test.body, test.args...); got != test.want {
			t.Errorf("macro %q with %v = %q, want %q", test.body, test.args, got, test.want)
		}
	}
}

func TestMacroMissingArg(t *testing.T) {
	itp := New()
	ctx := testContext(newFakeChannel())
	macro := NewMacro("m", "need $1")
	var err error
	itp.Write(func(st *State) {
		_, err = macro.Run(st, ctx)
	})
	if err == nil {
		t.Errorf("macro with missing argument -> no error")
	}
}

func TestMacroSerialization(t *testing.T) {
	macro := NewMacro("greet", "Hello, $1!")
	macro.SetPermissions(perms.Moderator)

	w := newTestWriter()
	if err := macro.serialize(w); err != nil {
		t.Fatal(err)
	}
	cmd, err := readCommand(newTestReader(w))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := cmd.(*Macro)
	if !ok {
		t.Fatalf("round trip -> %T, want *Macro", cmd)
	}
	if got.Name() != "greet" || got.Permissions() != perms.Moderator {
		t.Errorf("round trip lost metadata: name=%q perms=%x", got.Name(), got.Permissions())
	}
	if diff := cmp.Diff(macro.Code(), got.Code()); diff != "" {
		t.Errorf("code words (-want +got):\n%s", diff)
	}
}

func TestBuiltinNotSerializable(t *testing.T) {
	fn := NewBuiltinFunction("f", FunctionType(VoidType(), nil), nil)
	if err := fn.serialize(newTestWriter()); !errors.Is(err, ErrNotSerializable) {
		t.Errorf("builtin serialize = %v, want ErrNotSerializable", err)
	}
	set := NewOverloadSet("s")
	if err := set.serialize(newTestWriter()); !errors.Is(err, ErrNotSerializable) {
		t.Errorf("overload set serialize = %v, want ErrNotSerializable", err)
	}
}

func TestReadCommandReservedTag(t *testing.T) {
	w := newTestWriter()
	w.Tag(serial.TagFunction)
	if _, err := readCommand(newTestReader(w)); err == nil {
		t.Errorf("reserved function tag -> no error")
	}
}

func TestStateSerialization(t *testing.T) {
	st := NewState()
	st.Commands["greet"] = NewMacro("greet", "Hello, $1!")
	st.BuiltinPerms["def"] = 0x42
	g1 := IntValue(99)
	g2 := StringValue("hi")
	st.Globals["n"] = &g1
	st.Globals["s"] = &g2

	w := newTestWriter()
	st.Serialize(w)
	got, err := ReadState(newTestReader(w))
	if err != nil {
		t.Fatal(err)
	}

	if got.BuiltinPerms["def"] != 0x42 {
		t.Errorf("builtin perms lost: %x", got.BuiltinPerms["def"])
	}
	cmd := got.FindCommand("greet")
	if cmd == nil {
		t.Fatal("command lost in round trip")
	}
	if !got.Globals["n"].Equal(g1) || !got.Globals["s"].Equal(g2) {
		t.Errorf("globals lost in round trip")
	}
}

func TestStateSerializationFunctionValue(t *testing.T) {
	// A global can hold a reference to a command; it is stored by name.
	st := NewState()
	macro := NewMacro("target", "x")
	st.Commands["target"] = macro
	fv := FunctionValue(macro)
	st.Globals["f"] = &fv

	w := newTestWriter()
	st.Serialize(w)
	got, err := ReadState(newTestReader(w))
	if err != nil {
		t.Fatal(err)
	}
	val := got.Globals["f"]
	if val == nil || !val.IsFunction() {
		t.Fatal("function global lost")
	}
	if val.Function().Name() != "target" {
		t.Errorf("function global resolves to %q, want target", val.Function().Name())
	}
}

func TestProcessCommandScenarios(t *testing.T) {
	itp := New()
	ch := newFakeChannel()
	modCtx := func() *Context {
		return NewContext("100", "mod", ch)
	}
	mod := perms.Moderator | perms.Everyone

	// !def greet Hello, $1! then !greet World
	if !itp.ProcessCommand(modCtx(), mod, "def greet Hello, $1!") {
		t.Fatal("def did not run")
	}
	if got := ch.lastMessage(); got != "defined 'greet'" {
		t.Errorf("def reply = %q", got)
	}
	if !itp.ProcessCommand(modCtx(), mod, "greet World") {
		t.Fatal("greet did not run")
	}
	if got := ch.lastMessage(); got != "Hello, World!" {
		t.Errorf("greet World -> %q, want Hello, World!", got)
	}

	// !eval 0x10 + 0b10
	if !itp.ProcessCommand(modCtx(), mod, "eval 0x10 + 0b10") {
		t.Fatal("eval did not run")
	}
	if got := ch.lastMessage(); got != "18" {
		t.Errorf("eval 0x10 + 0b10 -> %q, want 18", got)
	}

	// def refuses to overwrite; redef requires existence.
	itp.ProcessCommand(modCtx(), mod, "def greet nope")
	if got := ch.lastMessage(); got != "'greet' is already defined" {
		t.Errorf("duplicate def reply = %q", got)
	}
	itp.ProcessCommand(modCtx(), mod, "redef missing nope")
	if got := ch.lastMessage(); got != "'missing' does not exist" {
		t.Errorf("redef missing reply = %q", got)
	}
	itp.ProcessCommand(modCtx(), mod, "redef greet Hi, $1!")
	itp.ProcessCommand(modCtx(), mod, "greet again")
	if got := ch.lastMessage(); got != "Hi, again!" {
		t.Errorf("redefined greet -> %q", got)
	}

	// show
	itp.ProcessCommand(modCtx(), mod, "show greet")
	if got := ch.lastMessage(); !strings.Contains(got, "Hi,") {
		t.Errorf("show greet -> %q", got)
	}

	// undef
	itp.ProcessCommand(modCtx(), mod, "undef greet")
	if itp.ProcessCommand(modCtx(), mod, "greet x") {
		t.Errorf("greet still runs after undef")
	}
}

func TestProcessCommandPermissions(t *testing.T) {
	itp := New()
	ch := newFakeChannel()
	broadcaster := perms.Broadcaster | perms.Everyone

	itp.ProcessCommand(NewContext("1", "owner", ch), broadcaster, "def greet Hello, $1!")

	// chmod greet 1: only users with the 0x1 bit may run it.
	itp.ProcessCommand(NewContext("1", "owner", ch), broadcaster, "chmod greet 1")
	if got := ch.lastMessage(); got != "permissions for 'greet' changed to 1" {
		t.Errorf("chmod reply = %q", got)
	}

	itp.ProcessCommand(NewContext("2", "pleb", ch), 0x1, "greet x")
	if got := ch.lastMessage(); got != "Hello, x!" {
		t.Errorf("user with mask 1 -> %q, want success", got)
	}

	itp.ProcessCommand(NewContext("3", "other", ch), 0x2, "greet x")
	if got := ch.lastMessage(); got != "insufficient permissions" {
		t.Errorf("user with mask 2 -> %q, want insufficient permissions", got)
	}

	// A moderator can run a command whose mask includes moderator.
	itp.ProcessCommand(NewContext("1", "owner", ch), broadcaster, "chmod greet 60")
	itp.ProcessCommand(NewContext("4", "m", ch), perms.Moderator, "greet y")
	if got := ch.lastMessage(); got != "Hello, y!" {
		t.Errorf("moderator vs MODERATOR|BROADCASTER mask -> %q", got)
	}

	// A user with only EVERYONE cannot run a command whose mask lacks it.
	itp.ProcessCommand(NewContext("5", "nobody", ch), perms.Everyone, "greet z")
	if got := ch.lastMessage(); got != "insufficient permissions" {
		t.Errorf("everyone vs mod-only mask -> %q", got)
	}
}

func TestProcessCommandBuiltinPermissions(t *testing.T) {
	itp := New()
	ch := newFakeChannel()

	// Default def permissions exclude ordinary users.
	itp.ProcessCommand(NewContext("2", "pleb", ch), perms.Everyone, "def x y")
	if got := ch.lastMessage(); got != "insufficient permissions" {
		t.Errorf("pleb def -> %q", got)
	}
}

func TestProcessCommandErrors(t *testing.T) {
	itp := New()
	ch := newFakeChannel()
	ctx := NewContext("1", "u", ch)

	itp.ProcessCommand(ctx, perms.Everyone, "eval 1 +")
	if got := ch.lastMessage(); !strings.HasPrefix(got, "error: ") {
		t.Errorf("eval parse error -> %q, want diagnostic", got)
	}

	// Silent channels swallow diagnostics.
	ch.silent = true
	before := len(ch.sent)
	itp.ProcessCommand(NewContext("1", "u", ch), perms.Everyone, "eval 1 +")
	if len(ch.sent) != before {
		t.Errorf("silent channel still received %q", ch.lastMessage())
	}
}

func TestGlobalCommand(t *testing.T) {
	itp := New()
	ch := newFakeChannel()
	mod := perms.Moderator

	itp.ProcessCommand(NewContext("1", "m", ch), mod, "global counter int")
	if got := ch.lastMessage(); got != "added global 'counter' with type 'int'" {
		t.Errorf("global reply = %q", got)
	}
	itp.ProcessCommand(NewContext("1", "m", ch), mod, "eval counter += 7")
	itp.ProcessCommand(NewContext("1", "m", ch), mod, "eval counter")
	if got := ch.lastMessage(); got != "7" {
		t.Errorf("counter after += 7 -> %q", got)
	}

	itp.ProcessCommand(NewContext("1", "m", ch), mod, "global counter int")
	if got := ch.lastMessage(); !strings.Contains(got, "redefinition") {
		t.Errorf("duplicate global -> %q", got)
	}

	itp.ProcessCommand(NewContext("1", "m", ch), mod, "global bad florb")
	if got := ch.lastMessage(); got != "invalid type 'florb'" {
		t.Errorf("bad type -> %q", got)
	}
}

func TestDefCannotShadowBuiltin(t *testing.T) {
	itp := New()
	ch := newFakeChannel()
	itp.ProcessCommand(NewContext("1", "m", ch), perms.Moderator, "def eval x")
	if got := ch.lastMessage(); got != "'eval' is a builtin command" {
		t.Errorf("shadowing def -> %q", got)
	}
	itp.ProcessCommand(NewContext("1", "m", ch), perms.Moderator, "def int x")
	if got := ch.lastMessage(); got != "'int' is a builtin command" {
		t.Errorf("shadowing builtin fn -> %q", got)
	}
}
