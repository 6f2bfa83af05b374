package text

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"speechbot/core"
)

func TestDirection(t *testing.T) {
	assert.Equal(t, RTL, DirectionOf("مرحبا بك"))
	assert.Equal(t, RTL, DirectionOf("Answer: نعم"))
	assert.Equal(t, LTR, DirectionOf("hello"))
	assert.Equal(t, LTR, DirectionOf("שלום"))
}

func TestHTML(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt;<br>c", HTML("a <b>\nc"))
	assert.Equal(t, "<p style='direction: rtl; text-align: right;'>مرحبا</p>", HTML("مرحبا"))
}

func TestChatLine(t *testing.T) {
	assert.Equal(t, "**User:** hi", ChatLine(core.NewUserMessage("hi")))
	assert.Equal(t, "**Assistant:** hello", ChatLine(core.NewAssistantMessage("hello")))
}

func TestSpeakable(t *testing.T) {
	in := "## Answer\n\n- **Bold** point 😀\n- see [docs](https://example.com)\n```go\nfmt.Println()\n```\nDone."
	assert.Equal(t, "Answer Bold point see docs Done.", Speakable(in))
	assert.Equal(t, "", Speakable("🎉🎉"))
	assert.Equal(t, "مرحبا بك", Speakable("مرحبا   بك"))
}

func TestSplitForSpeech(t *testing.T) {
	assert.Nil(t, SplitForSpeech("   ", 10))
	assert.Equal(t, []string{"short"}, SplitForSpeech("short", 200))

	s := "First sentence here. Second sentence is a bit longer. Third."
	chunks := SplitForSpeech(s, 30)
	assert.Equal(t, "First sentence here.", chunks[0])
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 30)
	}
	assert.Equal(t, strings.Join(strings.Fields(s), " "), strings.Join(chunks, " "))

	long := strings.Repeat("x", 25)
	chunks = SplitForSpeech(long, 10)
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, chunks)
}
