package interp

import (
	"strings"

	"src.ikura.sh/pkg/logutil"
	"src.ikura.sh/pkg/perms"
)

var logger = logutil.GetLogger("[interp] ")

// ProcessCommand runs one command invocation. The line is the message with
// the channel's command prefix already stripped; userPerms is the caller's
// permission mask. It reports whether the line named a builtin or a known
// command; an invocation denied for lack of permissions also reports true.
//
// Permission failures send a chat reply; evaluation errors send the
// diagnostic unless the channel suppresses interpreter errors.
func (itp *Interp) ProcessCommand(ctx *Context, userPerms uint64, line string) bool {
	name, argStr := splitFirstWord(strings.TrimSpace(line))
	if name == "" {
		return false
	}

	denied := func() bool {
		logger.Printf("user %q denied command %q (perms %x)", ctx.CallerName, name, userPerms)
		ctx.Channel.SendMessage(TextMessage("insufficient permissions"))
		return true
	}

	if IsBuiltinCommand(name) {
		var required uint64
		itp.Read(func(st *State) { required = st.BuiltinPerms[name] })
		if !perms.Check(required, userPerms) {
			return denied()
		}
		itp.Write(func(st *State) {
			RunBuiltinCommand(st, ctx, name, argStr)
		})
		return true
	}

	var cmd Command
	itp.Read(func(st *State) { cmd = st.FindCommand(name) })
	if cmd == nil {
		return false
	}
	if !perms.Check(cmd.Permissions(), userPerms) {
		return denied()
	}

	var args []Value
	for _, word := range strings.Fields(argStr) {
		args = append(args, StringValue(word))
	}
	ctx.Args = args

	var result Value
	var err error
	itp.Write(func(st *State) {
		result, err = cmd.Run(st, ctx)
	})
	if err != nil {
		logger.Printf("command %q failed: %v", name, err)
		if !ctx.Channel.SilentErrors() {
			ctx.Channel.SendMessage(TextMessage("error: " + err.Error()))
		}
		return true
	}
	if msg := ValueMessage(result); len(msg.Fragments) > 0 {
		ctx.Channel.SendMessage(msg)
	}
	return true
}
