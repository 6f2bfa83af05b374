package text

import (
	"html"
	"strings"

	"speechbot/core"
)

// Direction is the writing direction a chat line should be rendered with.
type Direction string

const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

// IsRTL reports whether s contains Arabic script (U+0600 to U+06FF).
func IsRTL(s string) bool {
	for _, r := range s {
		if r >= '\u0600' && r <= '\u06FF' {
			return true
		}
	}
	return false
}

// DirectionOf picks the rendering direction for s.
func DirectionOf(s string) Direction {
	if IsRTL(s) {
		return RTL
	}
	return LTR
}

// ChatLine renders a message as a markdown line prefixed with the speaker.
func ChatLine(msg core.Message) string {
	if msg.Role == core.RoleUser {
		return "**User:** " + msg.Content
	}
	return "**Assistant:** " + msg.Content
}

// HTML escapes s and, for right-to-left text, wraps it in a right-aligned
// paragraph.
func HTML(s string) string {
	escaped := strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
	if !IsRTL(s) {
		return escaped
	}
	return "<p style='direction: rtl; text-align: right;'>" + escaped + "</p>"
}
