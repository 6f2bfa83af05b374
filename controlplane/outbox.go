package controlplane

import "sync/atomic"

// outbox is the bounded queue between producers (logs, events, heartbeats)
// and the connection writer. When full, the oldest message is discarded so
// producers never block on a slow or absent control plane.
type outbox struct {
	ch      chan []byte
	dropped atomic.Int64
}

func newOutbox(size int) *outbox {
	return &outbox{ch: make(chan []byte, size)}
}

// push queues data and reports whether an older message was discarded.
func (o *outbox) push(data []byte) bool {
	select {
	case o.ch <- data:
		return false
	default:
	}

	evicted := false
	select {
	case <-o.ch:
		evicted = true
	default:
	}
	select {
	case o.ch <- data:
	default:
		// Lost a race with another producer; the new message goes instead.
		evicted = true
	}
	if evicted {
		o.dropped.Add(1)
	}
	return evicted
}

func (o *outbox) pending() int { return len(o.ch) }

func (o *outbox) droppedTotal() int64 { return o.dropped.Load() }
