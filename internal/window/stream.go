package window

import (
	"sync"
	"time"
)

// TitleUpdate is one item of a channel subscription
type TitleUpdate struct {
	Title string    `json:"title,omitempty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// chanListener forwards to a buffered channel and drops when it is full
type chanListener struct {
	mu     sync.Mutex
	ch     chan TitleUpdate
	closed bool
}

func (c *chanListener) send(u TitleUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.ch <- u:
	default:
		// Skip if channel is full
	}
}

func (c *chanListener) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

func (c *chanListener) OnTitle(title string) {
	c.send(TitleUpdate{Title: title, Time: time.Now()})
}

func (c *chanListener) OnError(err error) {
	c.send(TitleUpdate{Error: err.Error(), Time: time.Now()})
}

func (c *chanListener) OnComplete() {
	c.close()
}

// SubscribeChan returns a channel of updates and a cancel func. The channel is
// closed on cancel or when the monitor is disposed. Updates are dropped while
// the buffer is full so a slow reader never stalls the OS callback thread.
func (m *Monitor) SubscribeChan(buffer int) (<-chan TitleUpdate, func()) {
	if buffer <= 0 {
		buffer = 10
	}
	l := &chanListener{ch: make(chan TitleUpdate, buffer)}
	sub := m.Subscribe(l)

	cancel := func() {
		sub.Unsubscribe()
		l.close()
	}
	return l.ch, cancel
}
