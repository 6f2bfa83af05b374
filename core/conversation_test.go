package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKeepsInsertionOrder(t *testing.T) {
	c := NewConversation("llama3", 0)
	assert.Equal(t, MaxHistory, c.Cap())
	assert.Equal(t, "llama3", c.Model())

	c.Append(NewUserMessage("hi"))
	c.Append(NewAssistantMessage("hello"))

	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}, c.Messages())
	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "hello", last.Content)
}

func TestConversationEvictsOldest(t *testing.T) {
	c := NewConversation("m", MaxHistory)
	for i := 1; i <= MaxHistory; i++ {
		assert.False(t, c.Append(NewUserMessage(fmt.Sprintf("m%d", i))))
	}
	assert.True(t, c.Append(NewUserMessage("m21")))

	msgs := c.Messages()
	require.Len(t, msgs, MaxHistory)
	assert.Equal(t, "m2", msgs[0].Content)
	assert.Equal(t, "m21", msgs[MaxHistory-1].Content)
}

func TestConversationWrapsManyTimes(t *testing.T) {
	c := NewConversation("m", 3)
	for i := 0; i < 10; i++ {
		c.Append(NewUserMessage(fmt.Sprint(i)))
	}
	var got []string
	for _, m := range c.Messages() {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"7", "8", "9"}, got)
	assert.Equal(t, 3, c.Len())
}

func TestConversationMessagesIsACopy(t *testing.T) {
	c := NewConversation("m", 2)
	c.Append(NewUserMessage("original"))
	msgs := c.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "original", c.Messages()[0].Content)
}

func TestConversationEmpty(t *testing.T) {
	c := NewConversation("m", 2)
	_, ok := c.Last()
	assert.False(t, ok)
	assert.Empty(t, c.Messages())
}
