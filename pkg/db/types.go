package db

import (
	"src.ikura.sh/pkg/serial"
)

// TwitchUser is a chat user as seen in one channel, with the credentials
// they have accumulated there.
type TwitchUser struct {
	ID          string
	Username    string
	DisplayName string

	// Permission bits (see pkg/perms) plus the subscription streak from
	// the badge-info tag.
	Permissions      uint64
	SubscribedMonths uint64
}

// TwitchChannel is the persisted per-channel state: identity plus the
// user-id -> credentials map.
type TwitchChannel struct {
	ID    string
	Name  string
	Users map[string]TwitchUser
}

// RelSpan references a span inside a message log's raw text.
type RelSpan struct {
	Offset uint64
	Length uint64
}

// LoggedMessage is one chat message in the log. The text and the emote
// positions are spans into the log's raw buffer, so the log has no interior
// pointers to serialize.
type LoggedMessage struct {
	Timestamp int64 // milliseconds since epoch
	UserID    string
	Username  string
	Channel   string
	Text      RelSpan
	Emotes    []RelSpan
	IsCommand bool
}

// MessageLog accumulates chat history; the markov engine retrains from it.
type MessageLog struct {
	Raw      string
	Messages []LoggedMessage
}

// Append logs a message, storing its contents in the raw buffer. The
// emote spans are byte ranges within text.
func (l *MessageLog) Append(msg LoggedMessage, text string, emotes [][2]int) {
	base := uint64(len(l.Raw))
	l.Raw += text
	msg.Text = RelSpan{Offset: base, Length: uint64(len(text))}
	for _, span := range emotes {
		msg.Emotes = append(msg.Emotes, RelSpan{
			Offset: base + uint64(span[0]),
			Length: uint64(span[1] - span[0]),
		})
	}
	l.Messages = append(l.Messages, msg)
}

// TextOf resolves a message's text span.
func (l *MessageLog) TextOf(msg LoggedMessage) string {
	return l.spanText(msg.Text)
}

// EmotesOf resolves a message's emote spans to ranges relative to its own
// text.
func (l *MessageLog) EmotesOf(msg LoggedMessage) [][2]int {
	var out [][2]int
	for _, span := range msg.Emotes {
		begin := int(span.Offset - msg.Text.Offset)
		out = append(out, [2]int{begin, begin + int(span.Length)})
	}
	return out
}

func (l *MessageLog) spanText(span RelSpan) string {
	if span.Offset+span.Length > uint64(len(l.Raw)) {
		return ""
	}
	return l.Raw[span.Offset : span.Offset+span.Length]
}

// TwitchData is everything persisted for the twitch backend.
type TwitchData struct {
	Channels   map[string]TwitchChannel
	MessageLog MessageLog
}

// DiscordUser mirrors TwitchUser for the discord backend.
type DiscordUser struct {
	ID          string
	Username    string
	Nickname    string
	Permissions uint64
}

// DiscordData is everything persisted for the discord backend.
type DiscordData struct {
	Users      map[string]DiscordUser
	MessageLog MessageLog
}

func (u *TwitchUser) serialize(w *serial.Writer) {
	w.Tag(serial.TagTwitchUser)
	w.String(u.ID)
	w.String(u.Username)
	w.String(u.DisplayName)
	w.Tag(serial.TagUserCredentials)
	w.U64(u.Permissions)
	w.U64(u.SubscribedMonths)
}

func readTwitchUser(r *serial.Reader) (TwitchUser, error) {
	var u TwitchUser
	var err error
	if err = r.ExpectTag(serial.TagTwitchUser); err != nil {
		return u, err
	}
	if u.ID, err = r.String(); err != nil {
		return u, err
	}
	if u.Username, err = r.String(); err != nil {
		return u, err
	}
	if u.DisplayName, err = r.String(); err != nil {
		return u, err
	}
	if err = r.ExpectTag(serial.TagUserCredentials); err != nil {
		return u, err
	}
	if u.Permissions, err = r.U64(); err != nil {
		return u, err
	}
	if u.SubscribedMonths, err = r.U64(); err != nil {
		return u, err
	}
	return u, nil
}

func (c *TwitchChannel) serialize(w *serial.Writer) {
	w.Tag(serial.TagTwitchChannel)
	w.String(c.ID)
	w.String(c.Name)
	serial.WriteStringMap(w, c.Users, func(w *serial.Writer, u TwitchUser) {
		u.serialize(w)
	})
}

func readTwitchChannel(r *serial.Reader) (TwitchChannel, error) {
	var c TwitchChannel
	var err error
	if err = r.ExpectTag(serial.TagTwitchChannel); err != nil {
		return c, err
	}
	if c.ID, err = r.String(); err != nil {
		return c, err
	}
	if c.Name, err = r.String(); err != nil {
		return c, err
	}
	if c.Users, err = serial.ReadStringMap(r, readTwitchUser); err != nil {
		return c, err
	}
	return c, nil
}

func (l *MessageLog) serialize(w *serial.Writer) {
	w.Tag(serial.TagMessageLog)
	w.String(l.Raw)
	serial.WriteSeq(w, l.Messages, func(w *serial.Writer, m LoggedMessage) {
		w.Tag(serial.TagLoggedMessage)
		w.I64(m.Timestamp)
		w.String(m.UserID)
		w.String(m.Username)
		w.String(m.Channel)
		w.RelString(m.Text.Offset, m.Text.Length)
		serial.WriteSeq(w, m.Emotes, func(w *serial.Writer, s RelSpan) {
			w.RelString(s.Offset, s.Length)
		})
		w.Bool(m.IsCommand)
	})
}

func readMessageLog(r *serial.Reader) (MessageLog, error) {
	var l MessageLog
	var err error
	if err = r.ExpectTag(serial.TagMessageLog); err != nil {
		return l, err
	}
	if l.Raw, err = r.String(); err != nil {
		return l, err
	}
	l.Messages, err = serial.ReadSeq(r, func(r *serial.Reader) (LoggedMessage, error) {
		var m LoggedMessage
		var err error
		if err = r.ExpectTag(serial.TagLoggedMessage); err != nil {
			return m, err
		}
		if m.Timestamp, err = r.I64(); err != nil {
			return m, err
		}
		if m.UserID, err = r.String(); err != nil {
			return m, err
		}
		if m.Username, err = r.String(); err != nil {
			return m, err
		}
		if m.Channel, err = r.String(); err != nil {
			return m, err
		}
		var off, length uint64
		if off, length, err = r.RelString(); err != nil {
			return m, err
		}
		m.Text = RelSpan{Offset: off, Length: length}
		m.Emotes, err = serial.ReadSeq(r, func(r *serial.Reader) (RelSpan, error) {
			off, length, err := r.RelString()
			return RelSpan{Offset: off, Length: length}, err
		})
		if err != nil {
			return m, err
		}
		if m.IsCommand, err = r.Bool(); err != nil {
			return m, err
		}
		return m, nil
	})
	return l, err
}

func (d *TwitchData) serialize(w *serial.Writer) {
	w.Tag(serial.TagTwitchDB)
	serial.WriteStringMap(w, d.Channels, func(w *serial.Writer, c TwitchChannel) {
		c.serialize(w)
	})
	d.MessageLog.serialize(w)
}

func readTwitchData(r *serial.Reader) (TwitchData, error) {
	var d TwitchData
	var err error
	if err = r.ExpectTag(serial.TagTwitchDB); err != nil {
		return d, err
	}
	if d.Channels, err = serial.ReadStringMap(r, readTwitchChannel); err != nil {
		return d, err
	}
	if d.MessageLog, err = readMessageLog(r); err != nil {
		return d, err
	}
	return d, nil
}

func (d *DiscordData) serialize(w *serial.Writer) {
	w.Tag(serial.TagDiscordDB)
	serial.WriteStringMap(w, d.Users, func(w *serial.Writer, u DiscordUser) {
		w.String(u.ID)
		w.String(u.Username)
		w.String(u.Nickname)
		w.U64(u.Permissions)
	})
	d.MessageLog.serialize(w)
}

func readDiscordData(r *serial.Reader) (DiscordData, error) {
	var d DiscordData
	var err error
	if err = r.ExpectTag(serial.TagDiscordDB); err != nil {
		return d, err
	}
	d.Users, err = serial.ReadStringMap(r, func(r *serial.Reader) (DiscordUser, error) {
		var u DiscordUser
		var err error
		if u.ID, err = r.String(); err != nil {
			return u, err
		}
		if u.Username, err = r.String(); err != nil {
			return u, err
		}
		if u.Nickname, err = r.String(); err != nil {
			return u, err
		}
		if u.Permissions, err = r.U64(); err != nil {
			return u, err
		}
		return u, nil
	})
	if err != nil {
		return d, err
	}
	if d.MessageLog, err = readMessageLog(r); err != nil {
		return d, err
	}
	return d, nil
}
