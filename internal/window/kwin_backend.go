package window

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bryanchriswhite/focuswatch/internal/logger"
	"github.com/godbus/dbus/v5"
)

// KWin D-Bus constants
const (
	kwinService                    = "org.kde.KWin"
	kwinPath                       = "/KWin"
	kwinInterface                  = "org.kde.KWin"
	virtualDesktopManagerInterface = "org.kde.KWin.VirtualDesktopManager"
)

// Window interfaces, newest first (KWin6, KWin5, older KWin)
var kwinWindowInterfaces = []string{
	"org.kde.KWin.Window",
	"org.kde.KWin.Client",
	"org.kde.kwin.Toplevel",
}

// Signals that trigger an immediate focus check: desktop switches and
// "Show Desktop" mode
var kwinSignalMatches = [][]dbus.MatchOption{
	{dbus.WithMatchInterface(virtualDesktopManagerInterface), dbus.WithMatchMember("currentChanged")},
	{dbus.WithMatchInterface(kwinInterface), dbus.WithMatchMember("showingDesktopChanged")},
}

// signalMatcher is the part of *dbus.Conn that manages match rules
type signalMatcher interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
}

// kwinPollInterval is how often the active window is re-read. KWin emits no
// D-Bus signal for focus or caption changes.
const kwinPollInterval = 500 * time.Millisecond

// KWinBackend implements the Backend interface using KWin's D-Bus interface,
// for KDE Plasma sessions without an X server. Focus and caption changes are
// detected by polling and turned into the same notifications the other
// backends deliver; desktop switches trigger an immediate check.
type KWinBackend struct {
	conn *dbus.Conn
	bus  signalMatcher
	pid  int

	mu         sync.Mutex
	hooks      map[HookHandle]backendHook
	nextHandle HookHandle
	stopChan   chan struct{}
	watching   bool
	closed     bool
	matches    [][]dbus.MatchOption

	// Object paths of the latest and previous handle given out
	pathsMu    sync.RWMutex
	paths      map[WindowHandle]dbus.ObjectPath
	lastHandle WindowHandle

	lastPath    dbus.ObjectPath
	lastCaption string
}

// NewKWinBackend creates a new KWin D-Bus backend
func NewKWinBackend() (*KWinBackend, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Check if KWin service is available
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}

	kwinFound := false
	for _, name := range names {
		if name == kwinService {
			kwinFound = true
			break
		}
	}
	if !kwinFound {
		conn.Close()
		return nil, fmt.Errorf("KWin service not found on D-Bus")
	}

	logger.WithComponent("kwin-backend").Debug().Msg("Connected to KWin D-Bus service")

	return &KWinBackend{
		conn:  conn,
		bus:   conn,
		pid:   os.Getpid(),
		hooks: make(map[HookHandle]backendHook),
		paths: make(map[WindowHandle]dbus.ObjectPath),
	}, nil
}

// Name returns the backend name
func (b *KWinBackend) Name() string {
	return BackendKWin
}

// RegisterRange records cb and starts watching on first use
func (b *KWinBackend) RegisterRange(min, max EventKind, flags HookFlags, cb EventCallback) (HookHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBackendClosed
	}

	if !b.watching {
		b.startWatchingLocked()
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

// Unregister drops the hook. Watching stops with the last one.
func (b *KWinBackend) Unregister(h HookHandle) error {
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

func (b *KWinBackend) startWatchingLocked() {
	b.stopChan = make(chan struct{})
	b.watching = true
	b.addMatchesLocked()

	b.lastPath, b.lastCaption = b.activeWindow()
	go b.watchLoop(b.stopChan)
}

func (b *KWinBackend) stopWatchingLocked() {
	if b.watching {
		close(b.stopChan)
		b.watching = false
		b.removeMatchesLocked()
	}
}

// addMatchesLocked installs the desktop signal match rules. Only rules the
// bus accepted are recorded for removal.
func (b *KWinBackend) addMatchesLocked() {
	log := logger.WithComponent("kwin-backend")
	for _, m := range kwinSignalMatches {
		if err := b.bus.AddMatchSignal(m...); err != nil {
			log.Warn().Err(err).Msg("Failed to add D-Bus signal match")
			continue
		}
		b.matches = append(b.matches, m)
	}
}

func (b *KWinBackend) removeMatchesLocked() {
	log := logger.WithComponent("kwin-backend")
	for _, m := range b.matches {
		if err := b.bus.RemoveMatchSignal(m...); err != nil {
			log.Debug().Err(err).Msg("Failed to remove D-Bus signal match")
		}
	}
	b.matches = nil
}

// watchLoop polls for focus changes and responds to desktop change signals
func (b *KWinBackend) watchLoop(stop chan struct{}) {
	log := logger.WithComponent("kwin-backend")
	ticker := time.NewTicker(kwinPollInterval)
	defer ticker.Stop()

	signalChan := make(chan *dbus.Signal, 10)
	b.conn.Signal(signalChan)
	defer b.conn.RemoveSignal(signalChan)

	for {
		select {
		case <-stop:
			return
		case sig := <-signalChan:
			if sig == nil {
				continue
			}
			switch sig.Name {
			case virtualDesktopManagerInterface + ".currentChanged",
				kwinInterface + ".showingDesktopChanged":
				log.Debug().Str("signal", sig.Name).Msg("Desktop changed, re-checking focus")
				b.check()
			}
		case <-ticker.C:
			b.check()
		}
	}
}

// check compares the active window with the last one seen and emits the
// matching notification
func (b *KWinBackend) check() {
	path, caption := b.activeWindow()

	b.mu.Lock()
	kind := EventKind(0)
	switch {
	case path != b.lastPath:
		kind = EventSystemForeground
	case caption != b.lastCaption:
		kind = EventObjectNameChange
	}
	b.lastPath, b.lastCaption = path, caption
	targets := make([]backendHook, 0, len(b.hooks))
	if kind != 0 {
		for _, h := range b.hooks {
			if h.rng.Contains(kind) {
				targets = append(targets, h)
			}
		}
	}
	b.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	own := path != "" && b.windowPID(path) == b.pid
	n := RawNotification{
		Kind:      kind,
		Window:    b.handleFor(path),
		ObjectID:  ObjectIDWindow,
		Timestamp: uint32(time.Now().UnixMilli()),
	}
	for _, h := range targets {
		if own && h.flags&HookSkipOwnProcess != 0 {
			continue
		}
		h.cb(n)
	}
}

// activeWindow returns the active window path and its caption
func (b *KWinBackend) activeWindow() (dbus.ObjectPath, string) {
	path := b.activeWindowPath()
	if path == "" {
		return "", ""
	}
	return path, b.caption(path)
}

// activeWindowPath reads KWin's activeWindow (KWin6) or activeClient (KWin5)
func (b *KWinBackend) activeWindowPath() dbus.ObjectPath {
	obj := b.conn.Object(kwinService, kwinPath)

	for _, propName := range []string{"activeWindow", "activeClient"} {
		variant, err := obj.GetProperty(kwinInterface + "." + propName)
		if err != nil {
			continue
		}
		switch v := variant.Value().(type) {
		case dbus.ObjectPath:
			if v != "/" {
				return v
			}
		case string:
			if v != "" && v != "/" {
				return dbus.ObjectPath(v)
			}
		}
	}
	return ""
}

// caption returns the window caption, trying each window interface
func (b *KWinBackend) caption(path dbus.ObjectPath) string {
	obj := b.conn.Object(kwinService, path)
	for _, iface := range kwinWindowInterfaces {
		if v, err := obj.GetProperty(iface + ".caption"); err == nil {
			if s, ok := v.Value().(string); ok {
				return s
			}
		}
	}
	return ""
}

// windowPID returns the pid of the window's client, or -1 when unknown
func (b *KWinBackend) windowPID(path dbus.ObjectPath) int {
	obj := b.conn.Object(kwinService, path)
	for _, iface := range kwinWindowInterfaces {
		v, err := obj.GetProperty(iface + ".pid")
		if err != nil {
			continue
		}
		switch p := v.Value().(type) {
		case int32:
			return int(p)
		case uint32:
			return int(p)
		case int64:
			return int(p)
		}
	}
	return -1
}

// handleFor maps a window path to a stable numeric handle. Only the latest
// and previous handles stay resolvable.
func (b *KWinBackend) handleFor(path dbus.ObjectPath) WindowHandle {
	if path == "" {
		return 0
	}
	h := WindowHandle(hashStringToUint32(string(path)))

	b.pathsMu.Lock()
	defer b.pathsMu.Unlock()
	if h != b.lastHandle {
		for k := range b.paths {
			if k != b.lastHandle {
				delete(b.paths, k)
			}
		}
		b.lastHandle = h
	}
	b.paths[h] = path
	return h
}

// FocusedWindow returns a handle for KWin's active window, or 0 when none
func (b *KWinBackend) FocusedWindow() (WindowHandle, error) {
	return b.handleFor(b.activeWindowPath()), nil
}

// WindowTitle returns the caption of a window handed out by FocusedWindow
func (b *KWinBackend) WindowTitle(w WindowHandle, maxLen int) (string, error) {
	if w == 0 {
		return "", nil
	}

	b.pathsMu.RLock()
	path, ok := b.paths[w]
	b.pathsMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown KWin window 0x%x", uintptr(w))
	}
	return TruncateTitle(b.caption(path), maxLen), nil
}

// Close stops watching and closes the session bus connection
func (b *KWinBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.stopWatchingLocked()
	b.hooks = make(map[HookHandle]backendHook)
	b.mu.Unlock()

	return b.conn.Close()
}

// hashStringToUint32 creates a simple hash of a string to uint32
// Used to convert KWin's object paths to numeric handles
func hashStringToUint32(s string) uint32 {
	var hash uint32 = 5381
	for i := 0; i < len(s); i++ {
		hash = ((hash << 5) + hash) + uint32(s[i])
	}
	return hash
}
