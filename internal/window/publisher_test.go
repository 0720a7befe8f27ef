package window

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResolver returns the next entry on every call, repeating the last one
type scriptedResolver struct {
	results []scriptedResult
	calls   int
}

type scriptedResult struct {
	title string
	err   error
}

func (s *scriptedResolver) Resolve() (string, error) {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i].title, s.results[i].err
}

func titles(ts ...string) *scriptedResolver {
	s := &scriptedResolver{}
	for _, t := range ts {
		s.results = append(s.results, scriptedResult{title: t})
	}
	return s
}

func foreground() RawNotification {
	return RawNotification{Kind: EventSystemForeground, ObjectID: ObjectIDWindow}
}

func TestDedupPublisherSuppressesDuplicates(t *testing.T) {
	p := NewDedupPublisher(titles("A", "A", "B", "B", "A"))
	rec := &recorder{}
	p.Subscribe(rec)

	for i := 0; i < 5; i++ {
		p.OnRawEvent(foreground())
	}

	assert.Equal(t, []string{"A", "B", "A"}, rec.Titles())
	assert.Equal(t, "A", p.Last())
}

func TestDedupPublisherSkipsEmpty(t *testing.T) {
	p := NewDedupPublisher(titles("", "A", "", "A"))
	rec := &recorder{}
	p.Subscribe(rec)

	for i := 0; i < 4; i++ {
		p.OnRawEvent(foreground())
	}

	assert.Equal(t, []string{"A"}, rec.Titles())
}

func TestDedupPublisherFiltersSubObjects(t *testing.T) {
	r := titles("A")
	p := NewDedupPublisher(r)
	rec := &recorder{}
	p.Subscribe(rec)

	p.OnRawEvent(RawNotification{Kind: EventObjectNameChange, ObjectID: 5})
	assert.Empty(t, rec.Titles())
	assert.Zero(t, r.calls, "filtered notifications must not query the title")
}

func TestDedupPublisherForwardsErrors(t *testing.T) {
	r := &scriptedResolver{results: []scriptedResult{
		{title: "A"},
		{err: errAccessDenied},
		{title: "B"},
	}}
	p := NewDedupPublisher(r)
	rec := &recorder{}
	p.Subscribe(rec)

	for i := 0; i < 3; i++ {
		p.OnRawEvent(foreground())
	}

	assert.Equal(t, []string{"A", "B"}, rec.Titles())
	errs := rec.Errors()
	require.Len(t, errs, 1)

	var resErr *ResolutionError
	require.True(t, errors.As(errs[0], &resErr))
	assert.Equal(t, EventSystemForeground, resErr.Kind)
	assert.ErrorIs(t, errs[0], errAccessDenied)
}

func TestDedupPublisherResolverPanic(t *testing.T) {
	calls := 0
	p := NewDedupPublisher(TitleResolverFunc(func() (string, error) {
		calls++
		if calls == 1 {
			panic("resolver exploded")
		}
		return "A", nil
	}))
	rec := &recorder{}
	p.Subscribe(rec)

	assert.NotPanics(t, func() { p.OnRawEvent(foreground()) })
	p.OnRawEvent(foreground())

	assert.Len(t, rec.Errors(), 1)
	assert.Equal(t, []string{"A"}, rec.Titles())
}

func TestDedupPublisherSubscriberPanic(t *testing.T) {
	p := NewDedupPublisher(titles("A", "B"))

	p.Subscribe(ListenerFuncs{Title: func(string) { panic("bad handler") }})
	rec := &recorder{}
	p.Subscribe(rec)

	assert.NotPanics(t, func() { p.OnRawEvent(foreground()) })
	p.OnRawEvent(foreground())

	assert.Equal(t, []string{"A", "B"}, rec.Titles())
	assert.Len(t, rec.Errors(), 2)
}

func TestDedupPublisherMultipleSubscribers(t *testing.T) {
	p := NewDedupPublisher(titles("A", "B", "C"))
	first, second := &recorder{}, &recorder{}
	p.Subscribe(first)
	p.Subscribe(second)
	assert.Equal(t, 2, p.SubscriberCount())

	for i := 0; i < 3; i++ {
		p.OnRawEvent(foreground())
	}

	assert.Equal(t, []string{"A", "B", "C"}, first.Titles())
	assert.Equal(t, first.Titles(), second.Titles())
}

func TestDedupPublisherNoReplay(t *testing.T) {
	p := NewDedupPublisher(titles("A", "B"))
	p.OnRawEvent(foreground())

	rec := &recorder{}
	p.Subscribe(rec)
	p.OnRawEvent(foreground())

	assert.Equal(t, []string{"B"}, rec.Titles())
}

func TestDedupPublisherUnsubscribeInsideHandler(t *testing.T) {
	p := NewDedupPublisher(titles("A", "B"))

	var got []string
	var sub *Subscription
	sub = p.Subscribe(ListenerFuncs{Title: func(title string) {
		got = append(got, title)
		sub.Unsubscribe()
	}})
	other := &recorder{}
	p.Subscribe(other)

	p.OnRawEvent(foreground())
	p.OnRawEvent(foreground())

	assert.Equal(t, []string{"A"}, got)
	assert.Equal(t, []string{"A", "B"}, other.Titles())
	assert.Equal(t, 1, p.SubscriberCount())
}

func TestDedupPublisherClose(t *testing.T) {
	p := NewDedupPublisher(titles("A", "B"))
	rec := &recorder{}
	p.Subscribe(rec)

	p.OnRawEvent(foreground())
	p.Close()
	p.Close()
	p.OnRawEvent(foreground())

	assert.Equal(t, []string{"A"}, rec.Titles())
	assert.Empty(t, rec.Errors())
	assert.Equal(t, 1, rec.Completed())
	assert.Zero(t, p.SubscriberCount())

	late := &recorder{}
	sub := p.Subscribe(late)
	assert.Equal(t, 1, late.Completed())
	assert.NotPanics(t, sub.Unsubscribe)
}
