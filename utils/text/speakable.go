package text

import (
	"regexp"
	"strings"
)

var (
	fencedCodeRegex     = regexp.MustCompile("(?s)```.*?```")
	markdownLinkRegex   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingRegex        = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	bulletRegex         = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	emphasisRegex       = regexp.MustCompile("\\*\\*|__|~~|[*`]")
	removeEmojiRegex    = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\p{P}\p{Z}\s$+<=>^|~]`)
	multipleSpacesRegex = regexp.MustCompile(`\s+`)
)

// Speakable prepares a model reply for speech synthesis: markdown markup,
// code blocks and emoji are dropped and whitespace is collapsed. Link text
// is kept, the target is not.
func Speakable(s string) string {
	s = fencedCodeRegex.ReplaceAllString(s, " ")
	s = markdownLinkRegex.ReplaceAllString(s, "$1")
	s = headingRegex.ReplaceAllString(s, "")
	s = bulletRegex.ReplaceAllString(s, "")
	s = emphasisRegex.ReplaceAllString(s, "")
	s = removeEmojiRegex.ReplaceAllString(s, "")
	s = multipleSpacesRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SplitForSpeech breaks s into chunks of at most maxRunes runes, preferring
// sentence ends, then word boundaries. Providers with a per-request text limit
// synthesize the chunks in order.
func SplitForSpeech(s string, maxRunes int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if maxRunes <= 0 {
		return []string{s}
	}

	var chunks []string
	runes := []rune(s)
	for len(runes) > maxRunes {
		cut := lastBreak(runes[:maxRunes+1])
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \t\n"))
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// lastBreak returns the split position inside window (exclusive end of the
// first chunk). window holds one rune more than the chunk limit so a break
// exactly at the limit is found. Sentence ends only count in the second half
// of the window.
func lastBreak(window []rune) int {
	limit := len(window) - 1
	for i := limit; i > limit/2; i-- {
		switch window[i-1] {
		case '.', '!', '?', ';', '。', '！', '？', '؟':
			return i
		}
	}
	for i := limit; i > 0; i-- {
		if window[i] == ' ' || window[i] == '\n' || window[i] == '\t' {
			return i
		}
	}
	return limit
}
