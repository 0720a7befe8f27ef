package window

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/focuswatch/internal/logger"
)

// X11Backend implements the Backend interface using X11. Foreground changes
// come from PropertyNotify on the root window's _NET_ACTIVE_WINDOW, and name
// changes from PropertyNotify on the active window's _NET_WM_NAME or WM_NAME.
type X11Backend struct {
	conn *xgb.Conn
	root xproto.Window
	pid  int

	activeWindowAtom xproto.Atom
	netWMNameAtom    xproto.Atom
	wmNameAtom       xproto.Atom
	wmPIDAtom        xproto.Atom

	mu         sync.Mutex
	hooks      map[HookHandle]backendHook
	nextHandle HookHandle
	watched    xproto.Window
	stopChan   chan struct{}
	watching   bool
	closed     bool
}

// NewX11Backend connects to the X server named by $DISPLAY
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	b := &X11Backend{
		conn:  conn,
		root:  screen.Root,
		pid:   os.Getpid(),
		hooks: make(map[HookHandle]backendHook),
	}

	atoms := []struct {
		name string
		dst  *xproto.Atom
	}{
		{"_NET_ACTIVE_WINDOW", &b.activeWindowAtom},
		{"_NET_WM_NAME", &b.netWMNameAtom},
		{"WM_NAME", &b.wmNameAtom},
		{"_NET_WM_PID", &b.wmPIDAtom},
	}
	for _, a := range atoms {
		atom, err := b.getAtom(a.name)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to intern %s: %w", a.name, err)
		}
		*a.dst = atom
	}

	return b, nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return BackendX11
}

// RegisterRange records cb and starts the event loop on first use
func (b *X11Backend) RegisterRange(min, max EventKind, flags HookFlags, cb EventCallback) (HookHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBackendClosed
	}

	if !b.watching {
		if err := b.startWatchingLocked(); err != nil {
			return 0, err
		}
	}

	b.nextHandle++
	h := b.nextHandle
	b.hooks[h] = backendHook{
		rng:   EventRange{Min: min, Max: max},
		flags: flags,
		cb:    cb,
	}
	return h, nil
}

// Unregister drops the hook. The event loop stops with the last one.
func (b *X11Backend) Unregister(h HookHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.hooks[h]; !ok {
		return ErrUnknownHook
	}
	delete(b.hooks, h)

	if len(b.hooks) == 0 {
		b.stopWatchingLocked()
	}
	return nil
}

func (b *X11Backend) startWatchingLocked() error {
	if err := xproto.ChangeWindowAttributesChecked(
		b.conn,
		b.root,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange},
	).Check(); err != nil {
		return fmt.Errorf("failed to set event mask: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.watching = true
	b.watchWindowLocked(b.activeWindow())

	go b.eventLoop(b.stopChan)

	logger.WithComponent("x11-backend").Debug().Msg("Started watching property events")
	return nil
}

func (b *X11Backend) stopWatchingLocked() {
	if !b.watching {
		return
	}
	close(b.stopChan)
	b.watching = false
	b.watchWindowLocked(0)
}

// watchWindowLocked moves the PropertyChange selection to win
func (b *X11Backend) watchWindowLocked(win xproto.Window) {
	if win == b.watched {
		return
	}
	// The previous window may already be gone; errors are ignored.
	if b.watched != 0 {
		xproto.ChangeWindowAttributes(b.conn, b.watched, xproto.CwEventMask, []uint32{xproto.EventMaskNoEvent})
	}
	if win != 0 {
		xproto.ChangeWindowAttributes(b.conn, win, xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange})
	}
	b.watched = win
}

// eventLoop polls for X11 events until stop is closed
func (b *X11Backend) eventLoop(stop chan struct{}) {
	log := logger.WithComponent("x11-backend")

	for {
		select {
		case <-stop:
			return
		default:
		}

		ev, err := b.conn.PollForEvent()
		if err != nil {
			log.Debug().Err(err).Msg("X11 event error")
			continue
		}
		if ev == nil {
			// No event available, sleep briefly
			time.Sleep(50 * time.Millisecond)
			continue
		}

		prop, ok := ev.(xproto.PropertyNotifyEvent)
		if !ok {
			continue
		}
		b.handlePropertyNotify(prop)
	}
}

func (b *X11Backend) handlePropertyNotify(ev xproto.PropertyNotifyEvent) {
	switch {
	case ev.Window == b.root && ev.Atom == b.activeWindowAtom:
		active := b.activeWindow()
		b.mu.Lock()
		b.watchWindowLocked(active)
		b.mu.Unlock()
		b.emit(EventSystemForeground, active, uint32(ev.Time))

	case ev.Atom == b.netWMNameAtom || ev.Atom == b.wmNameAtom:
		b.mu.Lock()
		watched := b.watched
		b.mu.Unlock()
		if ev.Window != watched {
			return
		}
		b.emit(EventObjectNameChange, ev.Window, uint32(ev.Time))
	}
}

// emit delivers a synthesized notification to every matching hook
func (b *X11Backend) emit(kind EventKind, win xproto.Window, ts uint32) {
	b.mu.Lock()
	targets := make([]backendHook, 0, len(b.hooks))
	for _, h := range b.hooks {
		if h.rng.Contains(kind) {
			targets = append(targets, h)
		}
	}
	b.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	own := win != 0 && b.windowPID(win) == b.pid
	n := RawNotification{
		Kind:      kind,
		Window:    WindowHandle(win),
		ObjectID:  ObjectIDWindow,
		Timestamp: ts,
	}
	for _, h := range targets {
		if own && h.flags&HookSkipOwnProcess != 0 {
			continue
		}
		h.cb(n)
	}
}

// FocusedWindow returns the EWMH active window, falling back to the input focus
func (b *X11Backend) FocusedWindow() (WindowHandle, error) {
	if win := b.activeWindow(); win != 0 {
		return WindowHandle(win), nil
	}

	focusReply, err := xproto.GetInputFocus(b.conn).Reply()
	if err != nil {
		return 0, err
	}
	// None (0) and PointerRoot (1) are not windows
	if focusReply.Focus <= 1 || focusReply.Focus == b.root {
		return 0, nil
	}
	return WindowHandle(focusReply.Focus), nil
}

// WindowTitle returns _NET_WM_NAME, or WM_NAME when that is unset
func (b *X11Backend) WindowTitle(w WindowHandle, maxLen int) (string, error) {
	if w == 0 {
		return "", nil
	}
	win := xproto.Window(w)

	title, err := b.getProperty(win, b.netWMNameAtom)
	if err != nil {
		return "", err
	}
	if title == "" {
		title, err = b.getProperty(win, b.wmNameAtom)
		if err != nil {
			return "", err
		}
	}
	return TruncateTitle(title, maxLen), nil
}

// Close stops the event loop and closes the X11 connection
func (b *X11Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.stopWatchingLocked()
	b.hooks = make(map[HookHandle]backendHook)
	b.mu.Unlock()

	b.conn.Close()
	return nil
}

// activeWindow reads _NET_ACTIVE_WINDOW from the root window, 0 if unset
func (b *X11Backend) activeWindow() xproto.Window {
	v, ok := b.getCardinal(b.root, b.activeWindowAtom, xproto.AtomWindow)
	if !ok {
		return 0
	}
	return xproto.Window(v)
}

// windowPID reads _NET_WM_PID, or -1 if the window does not advertise one
func (b *X11Backend) windowPID(win xproto.Window) int {
	v, ok := b.getCardinal(win, b.wmPIDAtom, xproto.AtomCardinal)
	if !ok {
		return -1
	}
	return int(v)
}

// getCardinal reads the first 32-bit value of a property
func (b *X11Backend) getCardinal(win xproto.Window, atom, typ xproto.Atom) (uint32, bool) {
	reply, err := xproto.GetProperty(b.conn, false, win, atom, typ, 0, 1).Reply()
	if err != nil || reply == nil || len(reply.Value) < 4 {
		return 0, false
	}
	return uint32(reply.Value[0]) |
		uint32(reply.Value[1])<<8 |
		uint32(reply.Value[2])<<16 |
		uint32(reply.Value[3])<<24, true
}

// getAtom gets an atom ID by name
func (b *X11Backend) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// getProperty gets a property value as a string, "" when it is unset
func (b *X11Backend) getProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", fmt.Errorf("failed to read property of window 0x%x: %w", uint32(win), err)
	}
	if reply == nil || reply.ValueLen == 0 {
		return "", nil
	}
	return string(reply.Value), nil
}
