// Package strutil provides string utilities used across the bot: codepoint
// index maps for translating wire-protocol emote positions, and splitting of
// over-length outbound messages.
package strutil

import (
	"strings"
	"unicode/utf8"
)

// RuneOffsets returns the byte offset of every rune in s, with one extra
// entry holding len(s). It translates codepoint indices (as used by the
// Twitch emotes tag) into byte offsets.
func RuneOffsets(s string) []int {
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}

// RuneCount is utf8.RuneCountInString.
func RuneCount(s string) int {
	return utf8.RuneCountInString(s)
}

// SplitAt splits a message into chunks of at most limit codepoints,
// breaking at the last space at or before the limit when there is one.
func SplitAt(s string, limit int) []string {
	if limit <= 0 || RuneCount(s) <= limit {
		return []string{s}
	}

	var chunks []string
	for RuneCount(s) > limit {
		offsets := RuneOffsets(s)
		cut := offsets[limit]
		if i := strings.LastIndexByte(s[:cut], ' '); i > 0 {
			chunks = append(chunks, s[:i])
			s = s[i+1:]
		} else {
			chunks = append(chunks, s[:cut])
			s = s[cut:]
		}
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
