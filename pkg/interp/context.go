package interp

import (
	"strings"
	"time"
)

// Message is an outbound chat message, assembled from text and emote
// fragments. Backends render emotes by name.
type Message struct {
	Fragments []Fragment
}

// Fragment is one piece of a Message.
type Fragment struct {
	Text    string
	IsEmote bool
}

// TextMessage builds a single-fragment text message.
func TextMessage(text string) Message {
	return Message{Fragments: []Fragment{{Text: text}}}
}

// Add appends a text fragment and returns the message.
func (m Message) Add(text string) Message {
	m.Fragments = append(m.Fragments, Fragment{Text: text})
	return m
}

// AddEmote appends an emote fragment and returns the message.
func (m Message) AddEmote(name string) Message {
	m.Fragments = append(m.Fragments, Fragment{Text: name, IsEmote: true})
	return m
}

// Flatten joins all fragments with spaces.
func (m Message) Flatten() string {
	parts := make([]string, len(m.Fragments))
	for i, frag := range m.Fragments {
		parts[i] = frag.Text
	}
	return strings.Join(parts, " ")
}

// Channel is the surface a command executes against. It is implemented by
// the chat backends.
type Channel interface {
	Name() string
	// Username returns the account the bot itself runs as.
	Username() string
	CommandPrefix() string
	// SilentErrors suppresses interpreter diagnostics in chat.
	SilentErrors() bool
	SendMessage(msg Message)
}

// Context carries the per-invocation state of a command: who called it,
// where, and with what arguments.
type Context struct {
	CallerID   string
	CallerName string
	Channel    Channel

	// Arguments to the command being run; for macros these are all strings.
	Args []Value

	execStart time.Time
}

// NewContext returns a context with the execution clock started.
func NewContext(callerID, callerName string, channel Channel) *Context {
	return &Context{
		CallerID:   callerID,
		CallerName: callerName,
		Channel:    channel,
		execStart:  time.Now(),
	}
}

// ValueMessage renders a command result as a chat message. A list yields
// one fragment per element, a void value yields an empty message, and
// everything else is rendered as a single fragment.
func ValueMessage(v Value) Message {
	v = v.RValue()
	if v.IsList() && !v.IsString() {
		var msg Message
		for _, elem := range v.List() {
			msg = msg.Add(elem.Raw())
		}
		return msg
	}
	if v.IsVoid() {
		return Message{}
	}
	return TextMessage(v.Raw())
}
