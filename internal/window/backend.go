package window

import (
	"errors"
	"fmt"
	"strings"
)

// HookHandle identifies a registration inside a Backend
type HookHandle uintptr

// HookFlags select how the notification subsystem delivers events
type HookFlags uint32

const (
	// HookOutOfContext delivers events to this process instead of injecting
	// the callback into the process that raised them (WINEVENT_OUTOFCONTEXT)
	HookOutOfContext HookFlags = 0x0000
	// HookSkipOwnProcess drops events raised by windows of this process
	// (WINEVENT_SKIPOWNPROCESS)
	HookSkipOwnProcess HookFlags = 0x0002

	// DefaultHookFlags is what the registrar always requests
	DefaultHookFlags = HookOutOfContext | HookSkipOwnProcess
)

// EventCallback receives raw notifications on a thread chosen by the backend
type EventCallback func(RawNotification)

// backendHook is one registration held by a backend that synthesizes
// notifications itself
type backendHook struct {
	rng   EventRange
	flags HookFlags
	cb    EventCallback
}

var (
	// ErrUnknownHook is returned when unregistering a handle the backend does not own
	ErrUnknownHook = errors.New("unknown hook handle")
	// ErrBackendClosed is returned by backends after Close
	ErrBackendClosed = errors.New("backend closed")
	// ErrBackendUnavailable is returned when a backend cannot run on this platform
	ErrBackendUnavailable = errors.New("backend not available on this platform")
)

// Backend is the OS notification subsystem (Win32 WinEvents, X11 property
// notifications, KWin over D-Bus, or a fake in tests)
type Backend interface {
	// RegisterRange asks the OS to deliver every event with a code in
	// [min, max] to cb until Unregister is called with the returned handle
	RegisterRange(min, max EventKind, flags HookFlags, cb EventCallback) (HookHandle, error)

	// Unregister stops delivery for a handle returned by RegisterRange
	Unregister(h HookHandle) error

	// FocusedWindow returns the window currently receiving input, or 0 when
	// there is none
	FocusedWindow() (WindowHandle, error)

	// WindowTitle returns the title of w, truncated to maxLen UTF-16 code
	// units including the terminator. Windows without a title yield "".
	WindowTitle(w WindowHandle, maxLen int) (string, error)

	// Name returns the backend name (e.g., "win32", "x11")
	Name() string

	// Close releases the connection to the OS
	Close() error
}

// Backend names accepted by NewBackend
const (
	BackendAuto  = "auto"
	BackendWin32 = "win32"
	BackendX11   = "x11"
	BackendKWin  = "kwin"
)

// NewBackend creates the named backend. "auto" (or "") picks the platform default.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendAuto:
		return NewBackend(defaultBackendName)
	case BackendWin32:
		return newWin32Backend()
	case BackendX11:
		b, err := NewX11Backend()
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendKWin:
		b, err := NewKWinBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (use auto, win32, x11 or kwin)", name)
	}
}
