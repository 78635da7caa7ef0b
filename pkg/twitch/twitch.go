// Package twitch implements the chat ingest path: it consumes IRC frames
// from the transport, keeps per-channel user credentials up to date,
// dispatches commands, feeds the markov engine, and logs messages.
//
// The network transport itself lives outside this package; it delivers
// inbound lines to Client.ProcessLine and implements Sender for outbound
// ones.
package twitch

import (
	"strconv"
	"strings"
	"time"

	"src.ikura.sh/pkg/db"
	"src.ikura.sh/pkg/interp"
	"src.ikura.sh/pkg/irc"
	"src.ikura.sh/pkg/logutil"
	"src.ikura.sh/pkg/markov"
	"src.ikura.sh/pkg/perms"
	"src.ikura.sh/pkg/strutil"
)

var logger = logutil.GetLogger("[twitch] ")

// Outbound chat messages are split at the last space at or before this
// many codepoints.
const maxMessageLength = 500

// Sender is the transport half the client writes to. Lines carry no
// CR/LF; moderator sends may use the higher rate-limit bucket.
type Sender interface {
	SendLine(line string, moderator bool)
}

// ChannelConfig is the per-channel configuration from the config file.
type ChannelConfig struct {
	Name               string
	Lurk               bool
	Mod                bool
	RespondToPings     bool
	SilentInterpErrors bool
	CommandPrefix      string
}

// Channel is the runtime state of one joined channel. It implements
// interp.Channel.
type Channel struct {
	cfg    ChannelConfig
	client *Client
}

func (c *Channel) Name() string       { return c.cfg.Name }
func (c *Channel) Username() string   { return c.client.username }
func (c *Channel) SilentErrors() bool { return c.cfg.SilentInterpErrors }

func (c *Channel) CommandPrefix() string {
	if c.cfg.CommandPrefix == "" {
		return "!"
	}
	return c.cfg.CommandPrefix
}

// SendMessage renders a message and sends it as one or more PRIVMSG lines,
// splitting when it exceeds the length limit.
func (c *Channel) SendMessage(msg interp.Message) {
	text := msg.Flatten()
	if text == "" {
		return
	}
	for _, chunk := range strutil.SplitAt(text, maxMessageLength) {
		// The text always goes out as the trailing parameter, even when it
		// is a single word.
		line := irc.Message{
			Command: "PRIVMSG",
			Params:  []string{"#" + c.cfg.Name},
		}
		c.client.sender.SendLine(line.Format()+" :"+chunk, c.cfg.Mod)
	}
}

// Client drives all joined channels of one connection.
type Client struct {
	username string
	ownerID  string
	ignored  map[string]bool
	channels map[string]*Channel

	sender Sender
	store  *db.Store
	interp *interp.Interp
	markov *markov.DB
}

// Config configures a Client.
type Config struct {
	Username     string
	OwnerID      string
	IgnoredUsers []string
	Channels     []ChannelConfig
}

// New builds a client over the given collaborators.
func New(cfg Config, sender Sender, store *db.Store, itp *interp.Interp, mk *markov.DB) *Client {
	c := &Client{
		username: cfg.Username,
		ownerID:  cfg.OwnerID,
		ignored:  make(map[string]bool),
		channels: make(map[string]*Channel),
		sender:   sender,
		store:    store,
		interp:   itp,
		markov:   mk,
	}
	for _, user := range cfg.IgnoredUsers {
		c.ignored[strings.ToLower(user)] = true
	}
	for _, chanCfg := range cfg.Channels {
		c.channels[chanCfg.Name] = &Channel{cfg: chanCfg, client: c}
		store.PerformWrite(func(d *db.Database) {
			rec := d.Twitch.Channels[chanCfg.Name]
			rec.Name = chanCfg.Name
			if rec.Users == nil {
				rec.Users = make(map[string]db.TwitchUser)
			}
			d.Twitch.Channels[chanCfg.Name] = rec
		})
	}
	return c
}

// Channel returns the runtime channel with the given name, or nil.
func (c *Client) Channel(name string) *Channel {
	return c.channels[name]
}

// ProcessLine handles one inbound wire line.
func (c *Client) ProcessLine(line string) {
	msg, err := irc.Parse(line)
	if err != nil {
		logger.Printf("discarding malformed message: %v", err)
		return
	}

	switch msg.Command {
	case "PING":
		pong := irc.Message{Command: "PONG", Params: msg.Params}
		c.sender.SendLine(pong.Format(), false)

	case "PRIVMSG":
		c.handlePrivmsg(msg)

	case "JOIN", "PART", "MODE", "NOTICE":
		// Nothing to do.

	default:
		if len(msg.Command) > 0 && msg.Command[0] >= '0' && msg.Command[0] <= '9' {
			// Numeric replies during connection setup.
			return
		}
		logger.Printf("unhandled command %q", msg.Command)
	}
}

func (c *Client) handlePrivmsg(msg *irc.Message) {
	if len(msg.Params) < 2 {
		logger.Printf("discarding malformed PRIVMSG")
		return
	}
	username := msg.Nick
	if username == c.username {
		return
	}
	if c.ignored[strings.ToLower(username)] {
		return
	}

	chanName := strings.TrimPrefix(msg.Params[0], "#")
	channel := c.channels[chanName]
	if channel == nil {
		logger.Printf("message for unjoined channel %q", chanName)
		return
	}
	text := msg.Params[1]

	userID := msg.Tags["user-id"]
	if userID == "" {
		userID = username
	}
	userPerms := c.updateCredentials(channel, userID, username, msg.Tags)

	emotes := parseEmoteSpans(msg.Tags["emotes"], text)

	ranCommand := false
	prefix := channel.CommandPrefix()
	if !channel.cfg.Lurk && strings.HasPrefix(text, prefix) {
		ctx := interp.NewContext(userID, username, channel)
		ranCommand = c.interp.ProcessCommand(ctx, userPerms, text[len(prefix):])
	}

	if !ranCommand {
		spans := make([]markov.Span, len(emotes))
		for i, e := range emotes {
			spans[i] = markov.Span{Begin: e[0], End: e[1]}
		}
		c.markov.Process(text, spans)

		if channel.cfg.RespondToPings && mentions(text, c.username) {
			c.respondToMention(channel, username)
		}
	}

	c.logMessage(msg, chanName, userID, username, text, emotes, ranCommand)
}

func mentions(text, username string) bool {
	return username != "" && strings.Contains(strings.ToLower(text), strings.ToLower(username))
}

func (c *Client) respondToMention(channel *Channel, username string) {
	tokens := c.markov.Generate(nil)
	if len(tokens) == 0 {
		return
	}
	msg := interp.TextMessage("@" + username)
	for _, tok := range tokens {
		if tok.IsEmote {
			msg = msg.AddEmote(tok.Text)
		} else {
			msg = msg.Add(tok.Text)
		}
	}
	channel.SendMessage(msg)
}

// updateCredentials folds the message's badge tags into the per-channel
// user record and returns the user's permission mask.
func (c *Client) updateCredentials(channel *Channel, userID, username string, tags map[string]string) uint64 {
	mask := perms.Everyone
	for _, badge := range strings.Split(tags["badges"], ",") {
		name, _ := bisectSlash(badge)
		switch name {
		case "subscriber", "founder":
			mask |= perms.Subscriber
		case "vip":
			mask |= perms.VIP
		case "moderator":
			mask |= perms.Moderator
		case "broadcaster":
			mask |= perms.Broadcaster
		}
	}
	if userID == c.ownerID && c.ownerID != "" {
		mask |= perms.Owner
	}

	var months uint64
	if info := tags["badge-info"]; info != "" {
		for _, part := range strings.Split(info, ",") {
			name, value := bisectSlash(part)
			if name == "subscriber" || name == "founder" {
				if n, err := strconv.ParseUint(value, 10, 64); err == nil {
					months = n
				}
			}
		}
	}

	display := tags["display-name"]
	c.store.PerformWrite(func(d *db.Database) {
		rec := d.Twitch.Channels[channel.cfg.Name]
		if rec.Users == nil {
			rec.Users = make(map[string]db.TwitchUser)
			rec.Name = channel.cfg.Name
		}
		user := rec.Users[userID]
		user.ID = userID
		user.Username = username
		if display != "" {
			user.DisplayName = display
		}
		user.Permissions = mask
		user.SubscribedMonths = months
		rec.Users[userID] = user
		d.Twitch.Channels[channel.cfg.Name] = rec
	})
	return mask
}

func bisectSlash(s string) (string, string) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// parseEmoteSpans decodes the "emotes" tag into byte ranges of the message
// text. The wire format is "ID:begin-end,begin-end/ID:begin-end" with
// codepoint-inclusive indices, so the tag indices are translated through a
// rune offset map.
func parseEmoteSpans(tag, text string) [][2]int {
	if tag == "" {
		return nil
	}
	offsets := strutil.RuneOffsets(text)
	runes := len(offsets) - 1

	var spans [][2]int
	for _, group := range strings.Split(tag, "/") {
		_, ranges := bisectColon(group)
		if ranges == "" {
			continue
		}
		for _, rng := range strings.Split(ranges, ",") {
			beginStr, endStr := bisectDash(rng)
			begin, err1 := strconv.Atoi(beginStr)
			end, err2 := strconv.Atoi(endStr)
			if err1 != nil || err2 != nil || begin < 0 || end < begin || end >= runes {
				continue
			}
			spans = append(spans, [2]int{offsets[begin], offsets[end+1]})
		}
	}
	return spans
}

func bisectColon(s string) (string, string) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func bisectDash(s string) (string, string) {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// tagTimestamp uses the server-side timestamp when the tags carry one.
func tagTimestamp(tags map[string]string) int64 {
	if ts, err := strconv.ParseInt(tags["tmi-sent-ts"], 10, 64); err == nil {
		return ts
	}
	return time.Now().UnixMilli()
}

func (c *Client) logMessage(msg *irc.Message, chanName, userID, username, text string,
	emotes [][2]int, ranCommand bool) {
	timestamp := tagTimestamp(msg.Tags)
	c.store.PerformWrite(func(d *db.Database) {
		d.Twitch.MessageLog.Append(db.LoggedMessage{
			Timestamp: timestamp,
			UserID:    userID,
			Username:  username,
			Channel:   chanName,
			IsCommand: ranCommand,
		}, text, emotes)
	})
}

// RetrainMarkov replays all logged non-command messages through the markov
// ingest queue.
func (c *Client) RetrainMarkov() {
	var inputs []markov.Input
	c.store.PerformRead(func(d *db.Database) {
		log := &d.Twitch.MessageLog
		for _, msg := range log.Messages {
			if msg.IsCommand {
				continue
			}
			var spans []markov.Span
			for _, e := range log.EmotesOf(msg) {
				spans = append(spans, markov.Span{Begin: e[0], End: e[1]})
			}
			inputs = append(inputs, markov.Input{Text: log.TextOf(msg), Emotes: spans})
		}
	})
	c.markov.Retrain(inputs)
}
