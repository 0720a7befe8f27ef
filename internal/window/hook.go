package window

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/focuswatch/internal/logger"
)

// trampoline is the entry point the backend invokes for one registration
type trampoline struct {
	onEvent EventCallback
}

// HookRegistration is one active subscription with the notification subsystem.
// It owns its trampoline from Register until Unregister.
type HookRegistration struct {
	Range EventRange

	handle   HookHandle
	released atomic.Bool

	mu    sync.Mutex
	tramp *trampoline
}

// Handle returns the backend handle of the registration
func (r *HookRegistration) Handle() HookHandle {
	return r.handle
}

// Released reports whether Unregister has been called
func (r *HookRegistration) Released() bool {
	return r.released.Load()
}

// dispatch is handed to the backend as the native callback. Calls that arrive
// after release are dropped, and no panic escapes into the OS frame.
func (r *HookRegistration) dispatch(n RawNotification) {
	if r.released.Load() {
		return
	}

	r.mu.Lock()
	t := r.tramp
	r.mu.Unlock()
	if t == nil {
		return
	}

	defer func() {
		if v := recover(); v != nil {
			logger.WithComponent("hook-registrar").Error().
				Interface("panic", v).
				Stringer("event", n.Kind).
				Msg("Recovered panic in hook callback")
		}
	}()
	t.onEvent(n)
}

// HookRegistrar registers event ranges with a Backend
type HookRegistrar struct {
	backend Backend
	flags   HookFlags
}

// NewHookRegistrar creates a registrar requesting out-of-context delivery
// that skips this process's own windows
func NewHookRegistrar(b Backend) *HookRegistrar {
	return &HookRegistrar{
		backend: b,
		flags:   DefaultHookFlags,
	}
}

// Register asks the backend to deliver every event in r to onEvent
func (h *HookRegistrar) Register(r EventRange, onEvent EventCallback) (*HookRegistration, error) {
	if onEvent == nil {
		return nil, fmt.Errorf("nil callback for %s", r)
	}

	reg := &HookRegistration{
		Range: r,
		tramp: &trampoline{onEvent: onEvent},
	}

	handle, err := h.backend.RegisterRange(r.Min, r.Max, h.flags, reg.dispatch)
	if err != nil {
		reg.released.Store(true)
		reg.tramp = nil
		return nil, &SetupError{Range: r, Err: err}
	}
	reg.handle = handle

	logger.WithComponent("hook-registrar").Debug().
		Str("backend", h.backend.Name()).
		Stringer("range", r).
		Uint64("handle", uint64(handle)).
		Msg("Hook registered")

	return reg, nil
}

// Unregister stops delivery for reg and releases its trampoline. The
// registration is marked released before the backend is asked to unhook, so
// a queued call that runs afterwards is a no-op. Calling it twice is harmless.
func (h *HookRegistrar) Unregister(reg *HookRegistration) error {
	if reg == nil || !reg.released.CompareAndSwap(false, true) {
		return nil
	}

	err := h.backend.Unregister(reg.handle)

	reg.mu.Lock()
	reg.tramp = nil
	reg.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to unregister hook for %s: %w", reg.Range, err)
	}

	logger.WithComponent("hook-registrar").Debug().
		Stringer("range", reg.Range).
		Uint64("handle", uint64(reg.handle)).
		Msg("Hook unregistered")
	return nil
}
