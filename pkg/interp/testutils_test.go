package interp

import (
	"src.ikura.sh/pkg/serial"
)

func newTestWriter() *serial.Writer { return serial.NewWriter() }

func newTestReader(w *serial.Writer) *serial.Reader {
	return serial.NewReader(w.Bytes())
}

// fakeChannel records sent messages for assertions.
type fakeChannel struct {
	name   string
	prefix string
	silent bool
	sent   []Message
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{name: "testchan", prefix: "!"}
}

func (c *fakeChannel) Name() string          { return c.name }
func (c *fakeChannel) Username() string      { return "ikura" }
func (c *fakeChannel) CommandPrefix() string { return c.prefix }
func (c *fakeChannel) SilentErrors() bool    { return c.silent }

func (c *fakeChannel) SendMessage(msg Message) {
	c.sent = append(c.sent, msg)
}

func (c *fakeChannel) lastMessage() string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1].Flatten()
}

func testContext(ch Channel) *Context {
	return NewContext("1000", "tester", ch)
}
