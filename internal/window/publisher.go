package window

import (
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/focuswatch/internal/logger"
)

// Listener receives published titles. Handlers run synchronously on the OS
// callback thread while the publisher holds its guard: they must return
// quickly and must not call Monitor.Dispose directly (use a goroutine).
type Listener interface {
	OnTitle(title string)
	OnError(err error)
	OnComplete()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Title    func(title string)
	Error    func(err error)
	Complete func()
}

func (f ListenerFuncs) OnTitle(title string) {
	if f.Title != nil {
		f.Title(title)
	}
}

func (f ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f ListenerFuncs) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

// Subscription is a listener registered with a publisher
type Subscription struct {
	id        uint64
	listener  Listener
	publisher *DedupPublisher
	cancelled atomic.Bool
}

// Unsubscribe stops delivery to the listener. Safe to call from inside a handler.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	if s.publisher != nil {
		s.publisher.remove(s.id)
	}
}

func (s *Subscription) deliverTitle(title string) (err error) {
	if s.cancelled.Load() {
		return nil
	}
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v}
		}
	}()
	s.listener.OnTitle(title)
	return nil
}

func (s *Subscription) deliverError(cause error) {
	if s.cancelled.Load() {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			logger.WithComponent("publisher").Error().
				Interface("panic", v).
				Uint64("subscription", s.id).
				Msg("Recovered panic in error handler")
		}
	}()
	s.listener.OnError(cause)
}

func (s *Subscription) deliverComplete() {
	if s.cancelled.Load() {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			logger.WithComponent("publisher").Error().
				Interface("panic", v).
				Uint64("subscription", s.id).
				Msg("Recovered panic in completion handler")
		}
	}()
	s.listener.OnComplete()
}

// DedupPublisher filters raw notifications, resolves the focused title and
// multicasts it when it differs from the last one published
type DedupPublisher struct {
	resolver TitleResolver

	// mu is the dedup guard: resolve, compare, update and publish run as one
	// unit so subscribers see titles in the order they were observed
	mu        sync.Mutex
	lastTitle string
	current   atomic.Value // string, lock-free copy of lastTitle
	closed    atomic.Bool

	// subsMu only guards replacing subs; the slice itself is never mutated
	subsMu sync.Mutex
	subs   []*Subscription
	nextID uint64
}

// NewDedupPublisher creates a publisher resolving titles with r
func NewDedupPublisher(r TitleResolver) *DedupPublisher {
	p := &DedupPublisher{resolver: r}
	p.current.Store("")
	return p
}

// Subscribe registers l for future titles. Past titles are not replayed.
// Subscribing to a closed publisher completes l immediately.
func (p *DedupPublisher) Subscribe(l Listener) *Subscription {
	p.subsMu.Lock()
	if p.closed.Load() {
		p.subsMu.Unlock()
		sub := &Subscription{listener: l}
		sub.deliverComplete()
		sub.cancelled.Store(true)
		return sub
	}
	p.nextID++
	sub := &Subscription{id: p.nextID, listener: l, publisher: p}
	next := make([]*Subscription, len(p.subs), len(p.subs)+1)
	copy(next, p.subs)
	p.subs = append(next, sub)
	p.subsMu.Unlock()

	return sub
}

func (p *DedupPublisher) remove(id uint64) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	for i, sub := range p.subs {
		if sub.id == id {
			next := make([]*Subscription, 0, len(p.subs)-1)
			next = append(next, p.subs[:i]...)
			p.subs = append(next, p.subs[i+1:]...)
			return
		}
	}
}

func (p *DedupPublisher) snapshot() []*Subscription {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	return p.subs
}

// SubscriberCount returns the number of active subscriptions
func (p *DedupPublisher) SubscriberCount() int {
	return len(p.snapshot())
}

// Last returns the last published title, or "" before the first one
func (p *DedupPublisher) Last() string {
	return p.current.Load().(string)
}

// OnRawEvent handles one notification. It never panics.
func (p *DedupPublisher) OnRawEvent(n RawNotification) {
	if !IsRelevant(n.Kind, n.ObjectID) {
		return
	}
	if p.closed.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return
	}

	title, err := p.resolve()
	if err != nil {
		p.failLocked(&ResolutionError{Kind: n.Kind, Err: err})
		return
	}
	if title == "" || title == p.lastTitle {
		return
	}

	p.lastTitle = title
	p.current.Store(title)
	p.publishLocked(n.Kind, title)
}

func (p *DedupPublisher) resolve() (title string, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v}
		}
	}()
	return p.resolver.Resolve()
}

func (p *DedupPublisher) publishLocked(kind EventKind, title string) {
	subs := p.snapshot()

	logger.WithComponent("publisher").Debug().
		Str("title", title).
		Stringer("event", kind).
		Int("subscribers", len(subs)).
		Msg("Publishing title")

	var failures []error
	for _, sub := range subs {
		if err := sub.deliverTitle(title); err != nil {
			failures = append(failures, err)
		}
	}
	for _, err := range failures {
		p.failLocked(&ResolutionError{Kind: kind, Err: err})
	}
}

func (p *DedupPublisher) failLocked(err error) {
	logger.WithComponent("publisher").Warn().Err(err).Msg("Forwarding error to subscribers")

	for _, sub := range p.snapshot() {
		sub.deliverError(err)
	}
}

// Close completes every subscriber and drops them. Once Close returns nothing
// more is published. Must not be called from inside a handler.
func (p *DedupPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.subsMu.Lock()
	subs := p.subs
	p.subs = nil
	p.subsMu.Unlock()

	for _, sub := range subs {
		sub.deliverComplete()
	}
}
