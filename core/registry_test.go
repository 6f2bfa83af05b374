package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateReturnsSameConversation(t *testing.T) {
	r := NewConversationRegistry()
	a := r.GetOrCreate("llama3")
	b := r.GetOrCreate("llama3")
	assert.Same(t, a, b)
	assert.Empty(t, a.Messages())
	assert.Equal(t, []string{"llama3"}, r.Models())
}

func TestRegistryIsolatesModels(t *testing.T) {
	r := NewConversationRegistry()
	require.NoError(t, r.Append("A", NewUserMessage("hi")))
	require.NoError(t, r.Append("A", NewAssistantMessage("hello")))

	assert.Len(t, r.Snapshot("A"), 2)
	assert.Empty(t, r.Snapshot("B"))
	assert.Equal(t, 0, r.Len("C"))
	assert.Equal(t, []string{"A", "B"}, r.Models())
}

func TestRegistryKeepsLastTwenty(t *testing.T) {
	r := NewConversationRegistry()
	for i := 1; i <= 25; i++ {
		require.NoError(t, r.Append("m", NewUserMessage(fmt.Sprintf("m%d", i))))
	}
	snap := r.Snapshot("m")
	require.Len(t, snap, 20)
	assert.Equal(t, "m6", snap[0].Content)
	assert.Equal(t, "m25", snap[19].Content)
}

func TestRegistryAppendValidation(t *testing.T) {
	r := NewConversationRegistry()
	assert.ErrorIs(t, r.Append("", NewUserMessage("hi")), ErrEmptyModel)
	assert.ErrorIs(t, r.Append("m", Message{Role: "system", Content: "x"}), ErrInvalidRole)
	assert.ErrorIs(t, r.Append("m", NewUserMessage("   ")), ErrEmptyMessage)
	assert.Equal(t, 0, r.Len("m"))
}

func TestRegistryClose(t *testing.T) {
	r := NewConversationRegistry()
	require.NoError(t, r.Append("m", NewUserMessage("hi")))
	conv := r.GetOrCreate("m")

	r.Close()
	assert.Empty(t, conv.Messages())
	assert.Empty(t, r.Models())
	assert.ErrorIs(t, r.Append("m", NewUserMessage("again")), ErrRegistryClosed)

	assert.Empty(t, r.Snapshot("other"))
	assert.Nil(t, r.GetOrCreate("another"))
	assert.Equal(t, 0, r.Len("other"))
	assert.Empty(t, r.Models())
}

func TestRegistryConcurrentAppends(t *testing.T) {
	r := NewConversationRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Append("m", NewUserMessage(fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot("m")
	require.Len(t, snap, MaxHistory)
	seen := make(map[string]bool)
	for _, m := range snap {
		assert.False(t, seen[m.Content], "duplicate %s", m.Content)
		seen[m.Content] = true
	}
}

func TestRegistryWindowIsFixed(t *testing.T) {
	r := NewConversationRegistry()
	for i := 0; i < MaxHistory+1; i++ {
		require.NoError(t, r.Append("m", NewUserMessage(fmt.Sprint(i))))
	}
	assert.Equal(t, 20, r.Len("m"))
	assert.Equal(t, 20, r.GetOrCreate("m").Cap())
}
