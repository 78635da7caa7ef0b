// Package irc parses and formats IRC-family wire messages, including the
// IRCv3 tags used by the Twitch chat protocol.
//
// The grammar handled here is
//
//	['@' tags ' '] [':' prefix ' '] command params... [' :' trailing]
//
// with tags being a ';'-separated list of key[=value] pairs and the prefix
// being nick['!'user]['@'host].
package irc

import (
	"fmt"
	"sort"
	"strings"
)

// Message is one parsed wire frame.
type Message struct {
	Tags    map[string]string
	Nick    string
	User    string
	Host    string
	Command string
	Params  []string

	// CTCP-quoted PRIVMSG/NOTICE payloads are unwrapped: IsCTCP is set,
	// CTCPCommand holds the embedded command and the last param holds the
	// rest.
	IsCTCP      bool
	CTCPCommand string
}

// ParseError describes which part of a frame was malformed.
type ParseError struct {
	Section string
	Input   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed irc message: invalid %s in %q", e.Section, e.Input)
}

func bisect(s string, sep byte) (string, string) {
	if i := strings.IndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// Tag value escapes, per the IRCv3 message-tags spec.
func unescapeTagValue(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case ':':
			sb.WriteByte(';')
		case 's':
			sb.WriteByte(' ')
		case '\\':
			sb.WriteByte('\\')
		case 'r':
			sb.WriteByte('\r')
		case 'n':
			sb.WriteByte('\n')
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func escapeTagValue(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ';':
			sb.WriteString(`\:`)
		case ' ':
			sb.WriteString(`\s`)
		case '\\':
			sb.WriteString(`\\`)
		case '\r':
			sb.WriteString(`\r`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func parseTags(msg *Message, tags string) {
	msg.Tags = make(map[string]string)
	for tags != "" {
		var tag string
		tag, tags = bisect(tags, ';')
		key, value := bisect(tag, '=')
		if key == "" {
			continue
		}
		msg.Tags[key] = unescapeTagValue(value)
	}
}

func parsePrefix(msg *Message, prefix string) {
	end := strings.IndexAny(prefix, "!@")
	if end < 0 {
		end = len(prefix)
	}
	msg.Nick = prefix[:end]
	prefix = prefix[end:]

	if strings.HasPrefix(prefix, "!") {
		user, rest := bisect(prefix[1:], '@')
		msg.User = user
		if rest != "" {
			msg.Host = rest
		}
	} else if strings.HasPrefix(prefix, "@") {
		msg.Host = prefix[1:]
	}
}

// Parse parses one frame. The input may carry its trailing CR/LF.
func Parse(input string) (*Message, error) {
	line := strings.TrimRight(input, "\r\n")
	msg := &Message{}

	var part string
	rest := line

	part, rest = bisect(rest, ' ')
	if part == "" {
		return nil, &ParseError{Section: "command", Input: input}
	}

	if part[0] == '@' {
		if len(part) == 1 {
			return nil, &ParseError{Section: "tags", Input: input}
		}
		parseTags(msg, part[1:])
		part, rest = bisect(rest, ' ')
	}

	if part != "" && part[0] == ':' {
		if len(part) == 1 {
			return nil, &ParseError{Section: "prefix", Input: input}
		}
		parsePrefix(msg, part[1:])
		part, rest = bisect(rest, ' ')
	}

	if part == "" {
		return nil, &ParseError{Section: "command", Input: input}
	}
	msg.Command = part

	for rest != "" {
		if rest[0] == ':' {
			trailing := rest[1:]
			if msg.Command == "PRIVMSG" || msg.Command == "NOTICE" {
				if strings.HasPrefix(trailing, "\x01") {
					// CTCP must both start and end with 0x01.
					if !strings.HasSuffix(trailing[1:], "\x01") {
						return nil, &ParseError{Section: "ctcp", Input: input}
					}
					inner := strings.TrimSuffix(trailing[1:], "\x01")
					msg.IsCTCP = true
					msg.CTCPCommand, trailing = bisect(inner, ' ')
				}
			}
			msg.Params = append(msg.Params, trailing)
			break
		}
		part, rest = bisect(rest, ' ')
		if part != "" {
			msg.Params = append(msg.Params, part)
		}
	}

	return msg, nil
}

// Format renders a message back to its wire form, without the trailing
// CR/LF. It is the inverse of Parse for non-CTCP messages.
func (msg *Message) Format() string {
	var sb strings.Builder

	if len(msg.Tags) > 0 {
		sb.WriteByte('@')
		first := true
		for _, key := range sortedTagKeys(msg.Tags) {
			if !first {
				sb.WriteByte(';')
			}
			first = false
			sb.WriteString(key)
			if value := msg.Tags[key]; value != "" {
				sb.WriteByte('=')
				sb.WriteString(escapeTagValue(value))
			}
		}
		sb.WriteByte(' ')
	}

	if msg.Nick != "" {
		sb.WriteByte(':')
		sb.WriteString(msg.Nick)
		if msg.User != "" {
			sb.WriteByte('!')
			sb.WriteString(msg.User)
		}
		if msg.Host != "" {
			sb.WriteByte('@')
			sb.WriteString(msg.Host)
		}
		sb.WriteByte(' ')
	}

	sb.WriteString(msg.Command)

	for i, param := range msg.Params {
		sb.WriteByte(' ')
		if i == len(msg.Params)-1 && (strings.ContainsRune(param, ' ') || param == "" || strings.HasPrefix(param, ":")) {
			sb.WriteByte(':')
		}
		sb.WriteString(param)
	}
	return sb.String()
}

func sortedTagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
