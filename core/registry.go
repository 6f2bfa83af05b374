package core

import (
	"sort"
	"strings"
	"sync"
)

// ConversationRegistry maps model identifiers to their conversations for a
// single user session. It is the only owner of message history; callers get
// copies through Snapshot.
//
// Sessions must not share a registry: isolation between users comes from
// giving every session its own instance.
type ConversationRegistry struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	closed        bool
}

// NewConversationRegistry returns an empty registry. Every conversation it
// creates keeps the last MaxHistory messages.
func NewConversationRegistry() *ConversationRegistry {
	return &ConversationRegistry{
		conversations: make(map[string]*Conversation),
	}
}

// GetOrCreate returns the conversation for model, creating an empty one on
// first use. Repeated calls return the same instance. A closed registry
// returns nil and creates nothing.
func (r *ConversationRegistry) GetOrCreate(model string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.getOrCreateLocked(model)
}

func (r *ConversationRegistry) getOrCreateLocked(model string) *Conversation {
	conv, ok := r.conversations[model]
	if !ok {
		conv = NewConversation(model, MaxHistory)
		r.conversations[model] = conv
	}
	return conv
}

// Append adds msg to model's conversation and enforces the history window.
// Empty model ids, unknown roles and blank user messages are rejected.
func (r *ConversationRegistry) Append(model string, msg Message) error {
	if model == "" {
		return ErrEmptyModel
	}
	if !msg.Role.Valid() {
		return ErrInvalidRole
	}
	if msg.Role == RoleUser && strings.TrimSpace(msg.Content) == "" {
		return ErrEmptyMessage
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	r.getOrCreateLocked(model).Append(msg)
	return nil
}

// Snapshot returns model's history, oldest first. The slice is a copy and
// reflects every Append that returned before the call. A closed registry
// returns an empty slice.
func (r *ConversationRegistry) Snapshot(model string) []Message {
	conv := r.GetOrCreate(model)
	if conv == nil {
		return []Message{}
	}
	return conv.Messages()
}

// Len returns the number of messages retained for model without creating
// a conversation.
func (r *ConversationRegistry) Len(model string) int {
	r.mu.Lock()
	conv, ok := r.conversations[model]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return conv.Len()
}

// Models returns the sorted identifiers that have a conversation.
func (r *ConversationRegistry) Models() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	models := make([]string, 0, len(r.conversations))
	for m := range r.conversations {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Close discards every conversation. Afterwards Append returns
// ErrRegistryClosed and no conversation is created.
func (r *ConversationRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.conversations {
		conv.clear()
	}
	r.conversations = make(map[string]*Conversation)
	r.closed = true
}
