package core

import "sync"

// MaxHistory is the number of messages a conversation retains.
const MaxHistory = 20

// Conversation is the bounded, ordered message history of one model.
//
// Storage is a fixed ring: once the ring is full, each Append overwrites the
// oldest entry, so the conversation always holds the most recent Cap()
// messages in their original order. Truncation happens here and nowhere else.
type Conversation struct {
	model string

	mu   sync.Mutex
	buf  []Message
	head int // index of the oldest message
	size int
}

// NewConversation returns an empty conversation for model holding at most
// capacity messages. A non-positive capacity selects MaxHistory.
func NewConversation(model string, capacity int) *Conversation {
	if capacity <= 0 {
		capacity = MaxHistory
	}
	return &Conversation{
		model: model,
		buf:   make([]Message, capacity),
	}
}

// Model returns the model identifier this conversation belongs to.
func (c *Conversation) Model() string {
	return c.model
}

// Cap returns the window size.
func (c *Conversation) Cap() int {
	return len(c.buf)
}

// Len returns the number of retained messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Append adds msg as the newest entry, evicting the oldest one when the
// window is full. It reports whether a message was evicted.
func (c *Conversation) Append(msg Message) (evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size < len(c.buf) {
		c.buf[(c.head+c.size)%len(c.buf)] = msg
		c.size++
		return false
	}
	c.buf[c.head] = msg
	c.head = (c.head + 1) % len(c.buf)
	return true
}

// Messages returns the retained messages, oldest first, in a new slice.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, c.size)
	n := copy(out, c.buf[c.head:min(c.head+c.size, len(c.buf))])
	copy(out[n:], c.buf[:c.size-n])
	return out
}

// Last returns the newest message, or false when the conversation is empty.
func (c *Conversation) Last() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.size == 0 {
		return Message{}, false
	}
	return c.buf[(c.head+c.size-1)%len(c.buf)], true
}

func (c *Conversation) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.buf {
		c.buf[i] = Message{}
	}
	c.head, c.size = 0, 0
}
