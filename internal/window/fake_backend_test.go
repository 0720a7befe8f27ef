package window

import (
	"errors"
	"sync"
)

type fakeHook struct {
	rng   EventRange
	flags HookFlags
	cb    EventCallback
}

// fakeBackend is a scripted notification subsystem
type fakeBackend struct {
	mu         sync.Mutex
	hooks      map[HookHandle]fakeHook
	nextHandle HookHandle
	registered []EventRange
	unhooked   []HookHandle
	refuse     map[EventKind]error
	unhookErr  error
	closed     bool

	focused   WindowHandle
	titles    map[WindowHandle]string
	focusErr  error
	titleErr  error
	titleHook func(w WindowHandle) (string, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		hooks:  make(map[HookHandle]fakeHook),
		refuse: make(map[EventKind]error),
		titles: make(map[WindowHandle]string),
	}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) RegisterRange(min, max EventKind, flags HookFlags, cb EventCallback) (HookHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.refuse[min]; ok {
		return 0, err
	}
	f.nextHandle++
	f.hooks[f.nextHandle] = fakeHook{rng: EventRange{Min: min, Max: max}, flags: flags, cb: cb}
	f.registered = append(f.registered, EventRange{Min: min, Max: max})
	return f.nextHandle, nil
}

func (f *fakeBackend) Unregister(h HookHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.hooks[h]; !ok {
		return ErrUnknownHook
	}
	delete(f.hooks, h)
	f.unhooked = append(f.unhooked, h)
	return f.unhookErr
}

func (f *fakeBackend) FocusedWindow() (WindowHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.focused, f.focusErr
}

func (f *fakeBackend) WindowTitle(w WindowHandle, maxLen int) (string, error) {
	f.mu.Lock()
	hook := f.titleHook
	title, err := f.titles[w], f.titleErr
	f.mu.Unlock()

	if hook != nil {
		return hook(w)
	}
	return title, err
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// focus makes w the foreground window with the given title
func (f *fakeBackend) focus(w WindowHandle, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = w
	f.titles[w] = title
}

func (f *fakeBackend) setTitleErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleErr = err
}

func (f *fakeBackend) hookCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hooks)
}

// fire delivers a notification to every hook whose range contains kind, the
// way the OS would
func (f *fakeBackend) fire(kind EventKind, objectID int32) {
	f.mu.Lock()
	var cbs []EventCallback
	for _, h := range f.hooks {
		if h.rng.Contains(kind) {
			cbs = append(cbs, h.cb)
		}
	}
	n := RawNotification{Kind: kind, Window: f.focused, ObjectID: objectID}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(n)
	}
}

// recorder is a Listener that keeps everything it receives
type recorder struct {
	mu        sync.Mutex
	titles    []string
	errs      []error
	completed int
}

func (r *recorder) OnTitle(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func (r *recorder) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

var errAccessDenied = errors.New("access denied")
