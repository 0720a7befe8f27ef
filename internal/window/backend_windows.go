//go:build windows

package window

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/bryanchriswhite/focuswatch/internal/logger"
	"golang.org/x/sys/windows"
)

const defaultBackendName = BackendWin32

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWinEventHook     = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent      = user32.NewProc("UnhookWinEvent")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
)

const (
	wmQuit     = 0x0012
	wmUser     = 0x0400
	wmApp      = 0x8000
	wmPumpCall = wmApp + 1
	pmNoRemove = 0x0000
)

type point struct {
	X int32
	Y int32
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
}

// Go callbacks are never released by the runtime, so a single WINEVENTPROC
// serves every hook and routes by handle.
var (
	winEventProcOnce sync.Once
	winEventProc     uintptr

	hookTableMu sync.RWMutex
	hookTable   = make(map[uintptr]EventCallback)
)

func winEventCallback(hook, event, hwnd, idObject, idChild, idEventThread, eventTime uintptr) uintptr {
	hookTableMu.RLock()
	cb := hookTable[hook]
	hookTableMu.RUnlock()
	if cb == nil {
		return 0
	}

	cb(RawNotification{
		Kind:      EventKind(uint32(event)),
		Window:    WindowHandle(hwnd),
		ObjectID:  int32(uint32(idObject)),
		ChildID:   int32(uint32(idChild)),
		ThreadID:  uint32(idEventThread),
		Timestamp: uint32(eventTime),
	})
	return 0
}

// Win32Backend delivers WinEvents through SetWinEventHook. Out-of-context hooks
// are serviced by the message loop of the thread that installed them, so every
// hook lives on one goroutine locked to its OS thread.
type Win32Backend struct {
	mu       sync.Mutex
	threadID uint32
	calls    chan func()
	done     chan struct{}
	closed   bool
	hooks    map[uintptr]struct{}
}

func newWin32Backend() (Backend, error) {
	b, err := NewWin32Backend()
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewWin32Backend loads user32.dll and starts the message pump
func NewWin32Backend() (*Win32Backend, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("failed to load user32.dll: %w", err)
	}

	winEventProcOnce.Do(func() {
		winEventProc = windows.NewCallback(winEventCallback)
	})

	b := &Win32Backend{
		calls: make(chan func(), 16),
		done:  make(chan struct{}),
		hooks: make(map[uintptr]struct{}),
	}

	ready := make(chan uint32)
	go b.pump(ready)
	b.threadID = <-ready

	logger.WithComponent("win32-backend").Debug().
		Uint32("thread_id", b.threadID).
		Msg("Message pump started")

	return b, nil
}

// Name returns the backend name
func (b *Win32Backend) Name() string {
	return BackendWin32
}

// pump owns the OS thread that installs hooks and receives their callbacks
func (b *Win32Backend) pump(ready chan<- uint32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(b.done)

	var m msg
	// Force creation of the thread message queue before anyone posts to it
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, wmUser, wmUser, pmNoRemove)
	ready <- windows.GetCurrentThreadId()

	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			// WM_QUIT or failure
			return
		}
		if m.Hwnd == 0 && m.Message == wmPumpCall {
			b.drainCalls()
			continue
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func (b *Win32Backend) drainCalls() {
	for {
		select {
		case fn := <-b.calls:
			fn()
		default:
			return
		}
	}
}

// onPump runs fn on the pump thread and waits for it. Calls made from the pump
// thread itself (e.g. a handler disposing the monitor) run inline.
func (b *Win32Backend) onPump(fn func()) error {
	if windows.GetCurrentThreadId() == b.threadID {
		fn()
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBackendClosed
	}
	b.mu.Unlock()

	finished := make(chan struct{})
	select {
	case b.calls <- func() { fn(); close(finished) }:
	case <-b.done:
		return ErrBackendClosed
	}

	if r, _, err := procPostThreadMessageW.Call(uintptr(b.threadID), wmPumpCall, 0, 0); r == 0 {
		return fmt.Errorf("failed to wake message pump: %w", err)
	}

	select {
	case <-finished:
		return nil
	case <-b.done:
		return ErrBackendClosed
	}
}

// RegisterRange installs a WinEvent hook for [min, max]
func (b *Win32Backend) RegisterRange(min, max EventKind, flags HookFlags, cb EventCallback) (HookHandle, error) {
	var handle uintptr
	var hookErr error

	err := b.onPump(func() {
		r, _, callErr := procSetWinEventHook.Call(
			uintptr(min),
			uintptr(max),
			0, // hmodWinEventProc, unused out of context
			winEventProc,
			0, // all processes
			0, // all threads
			uintptr(flags),
		)
		if r == 0 {
			hookErr = lastError("SetWinEventHook", callErr)
			return
		}
		// No event can be dispatched before this returns: callbacks only
		// run while this thread pumps messages.
		hookTableMu.Lock()
		hookTable[r] = cb
		hookTableMu.Unlock()

		b.mu.Lock()
		b.hooks[r] = struct{}{}
		b.mu.Unlock()
		handle = r
	})
	if err != nil {
		return 0, err
	}
	if hookErr != nil {
		return 0, hookErr
	}

	logger.WithComponent("win32-backend").Debug().
		Str("min", min.String()).
		Str("max", max.String()).
		Uint64("hook", uint64(handle)).
		Msg("WinEvent hook installed")

	return HookHandle(handle), nil
}

// Unregister removes the hook. The table entry goes first so a callback
// already queued on the pump is dropped.
func (b *Win32Backend) Unregister(h HookHandle) error {
	b.mu.Lock()
	_, owned := b.hooks[uintptr(h)]
	b.mu.Unlock()
	if !owned {
		return ErrUnknownHook
	}

	var unhookErr error
	err := b.onPump(func() {
		unhookErr = b.unhook(uintptr(h))
	})
	if err != nil {
		return err
	}
	return unhookErr
}

// unhook must run on the pump thread
func (b *Win32Backend) unhook(h uintptr) error {
	hookTableMu.Lock()
	delete(hookTable, h)
	hookTableMu.Unlock()

	b.mu.Lock()
	delete(b.hooks, h)
	b.mu.Unlock()

	if r, _, err := procUnhookWinEvent.Call(h); r == 0 {
		return lastError("UnhookWinEvent", err)
	}
	return nil
}

// FocusedWindow returns the foreground window, or 0 when none has focus
func (b *Win32Backend) FocusedWindow() (WindowHandle, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	return WindowHandle(hwnd), nil
}

// WindowTitle reads the window text into a maxLen buffer. GetWindowTextW
// returns 0 both for untitled windows and on failure; both map to "".
func (b *Win32Backend) WindowTitle(w WindowHandle, maxLen int) (string, error) {
	if w == 0 {
		return "", nil
	}
	if maxLen <= 0 {
		maxLen = MaxTitleLength
	}

	buf := make([]uint16, maxLen)
	n, _, _ := procGetWindowTextW.Call(uintptr(w), uintptr(unsafe.Pointer(&buf[0])), uintptr(maxLen))
	if n == 0 {
		return "", nil
	}
	return windows.UTF16ToString(buf[:n]), nil
}

// Close removes any hooks still installed and stops the pump
func (b *Win32Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	remaining := make([]uintptr, 0, len(b.hooks))
	for h := range b.hooks {
		remaining = append(remaining, h)
	}
	b.mu.Unlock()

	var errs []error
	if len(remaining) > 0 {
		err := b.onPump(func() {
			for _, h := range remaining {
				if err := b.unhook(h); err != nil {
					errs = append(errs, err)
				}
			}
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	if r, _, err := procPostThreadMessageW.Call(uintptr(b.threadID), wmQuit, 0, 0); r == 0 {
		errs = append(errs, fmt.Errorf("failed to stop message pump: %w", err))
	} else if windows.GetCurrentThreadId() != b.threadID {
		<-b.done
	}

	logger.WithComponent("win32-backend").Debug().Msg("Message pump stopped")
	return errors.Join(errs...)
}

func lastError(op string, err error) error {
	var errno windows.Errno
	if errors.As(err, &errno) && errno == 0 {
		return fmt.Errorf("%s failed", op)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
