package window

import "fmt"

// EventKind is a WinEvent code as delivered by the notification subsystem
type EventKind uint32

// Event codes consumed by the monitor. Values match the Win32 constants and are
// reused by the X11 backend when it synthesizes notifications.
const (
	EventSystemForeground EventKind = 0x0003 // EVENT_SYSTEM_FOREGROUND
	EventObjectNameChange EventKind = 0x800C // EVENT_OBJECT_NAMECHANGE
)

// ObjectIDWindow is the object scope identifying the window itself (OBJID_WINDOW)
const ObjectIDWindow int32 = 0

// String returns the symbolic name of the event kind
func (k EventKind) String() string {
	switch k {
	case EventSystemForeground:
		return "FOREGROUND_CHANGED"
	case EventObjectNameChange:
		return "OBJECT_NAME_CHANGED"
	default:
		return fmt.Sprintf("EVENT_0x%04X", uint32(k))
	}
}

// WindowHandle is an opaque native window handle (HWND or X11 window id)
type WindowHandle uintptr

// RawNotification is a single event as delivered by the OS. It is not retained
// past one filter pass.
type RawNotification struct {
	Kind      EventKind
	Window    WindowHandle
	ObjectID  int32
	ChildID   int32
	ThreadID  uint32
	Timestamp uint32 // milliseconds, OS clock
}

// EventRange is an inclusive range of event codes for one hook registration
type EventRange struct {
	Min EventKind
	Max EventKind
}

// SingleEvent returns a range covering exactly one event kind
func SingleEvent(kind EventKind) EventRange {
	return EventRange{Min: kind, Max: kind}
}

// Contains reports whether kind falls inside the range
func (r EventRange) Contains(kind EventKind) bool {
	return kind >= r.Min && kind <= r.Max
}

func (r EventRange) String() string {
	if r.Min == r.Max {
		return r.Min.String()
	}
	return fmt.Sprintf("%s..%s", r.Min, r.Max)
}

// IsRelevant decides whether a notification can change the foreground title.
// Name changes fire for menus, controls and other sub-objects; only the ones
// scoped to the window object matter.
func IsRelevant(kind EventKind, objectID int32) bool {
	return kind == EventSystemForeground || objectID == ObjectIDWindow
}
