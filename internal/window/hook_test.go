package window

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookRegistrarRegister(t *testing.T) {
	b := newFakeBackend()
	r := NewHookRegistrar(b)

	var got []RawNotification
	reg, err := r.Register(SingleEvent(EventSystemForeground), func(n RawNotification) {
		got = append(got, n)
	})
	require.NoError(t, err)
	assert.NotZero(t, reg.Handle())
	assert.False(t, reg.Released())

	b.mu.Lock()
	flags := b.hooks[reg.Handle()].flags
	b.mu.Unlock()
	assert.Equal(t, HookOutOfContext|HookSkipOwnProcess, flags)

	b.fire(EventSystemForeground, ObjectIDWindow)
	require.Len(t, got, 1)
	assert.Equal(t, EventSystemForeground, got[0].Kind)
}

func TestHookRegistrarRefused(t *testing.T) {
	b := newFakeBackend()
	b.refuse[EventObjectNameChange] = errAccessDenied
	r := NewHookRegistrar(b)

	reg, err := r.Register(SingleEvent(EventObjectNameChange), func(RawNotification) {})
	assert.Nil(t, reg)

	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, SingleEvent(EventObjectNameChange), setupErr.Range)
	assert.ErrorIs(t, err, errAccessDenied)
}

func TestHookRegistrarNilCallback(t *testing.T) {
	r := NewHookRegistrar(newFakeBackend())
	_, err := r.Register(SingleEvent(EventSystemForeground), nil)
	assert.Error(t, err)
}

func TestHookRegistrarUnregisterIdempotent(t *testing.T) {
	b := newFakeBackend()
	r := NewHookRegistrar(b)

	reg, err := r.Register(SingleEvent(EventSystemForeground), func(RawNotification) {})
	require.NoError(t, err)

	require.NoError(t, r.Unregister(reg))
	assert.True(t, reg.Released())
	require.NoError(t, r.Unregister(reg))
	require.NoError(t, r.Unregister(nil))

	assert.Len(t, b.unhooked, 1)
	assert.Equal(t, 0, b.hookCount())
}

func TestHookRegistrarUnregisterFailure(t *testing.T) {
	b := newFakeBackend()
	b.unhookErr = errAccessDenied
	r := NewHookRegistrar(b)

	reg, err := r.Register(SingleEvent(EventSystemForeground), func(RawNotification) {})
	require.NoError(t, err)

	err = r.Unregister(reg)
	assert.ErrorIs(t, err, errAccessDenied)
	assert.True(t, reg.Released())
}

func TestHookRegistrationDropsAfterRelease(t *testing.T) {
	b := newFakeBackend()
	r := NewHookRegistrar(b)

	calls := 0
	reg, err := r.Register(SingleEvent(EventSystemForeground), func(RawNotification) { calls++ })
	require.NoError(t, err)

	// Keep the native callback so it can be invoked after unregistration, as
	// an OS callback already in flight would be.
	b.mu.Lock()
	native := b.hooks[reg.Handle()].cb
	b.mu.Unlock()

	require.NoError(t, r.Unregister(reg))
	native(RawNotification{Kind: EventSystemForeground})
	assert.Zero(t, calls)
}

func TestHookRegistrationRecoversPanic(t *testing.T) {
	b := newFakeBackend()
	r := NewHookRegistrar(b)

	_, err := r.Register(SingleEvent(EventSystemForeground), func(RawNotification) {
		panic("boom")
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		b.fire(EventSystemForeground, ObjectIDWindow)
	})
}
