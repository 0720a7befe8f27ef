package window

import (
	"fmt"
	"unicode/utf16"
)

// MaxTitleLength is the title buffer size in UTF-16 code units, terminator included
const MaxTitleLength = 256

// TitleResolver returns the title of the currently focused window
type TitleResolver interface {
	// Resolve returns "" when no window is focused or it has no title
	Resolve() (string, error)
}

// TitleResolverFunc adapts a function to TitleResolver
type TitleResolverFunc func() (string, error)

func (f TitleResolverFunc) Resolve() (string, error) {
	return f()
}

// backendResolver queries a Backend for the focused window, then its title
type backendResolver struct {
	backend Backend
	maxLen  int
}

// NewTitleResolver returns a resolver backed by b. maxLen <= 0 selects MaxTitleLength.
func NewTitleResolver(b Backend, maxLen int) TitleResolver {
	if maxLen <= 0 {
		maxLen = MaxTitleLength
	}
	return &backendResolver{backend: b, maxLen: maxLen}
}

func (r *backendResolver) Resolve() (string, error) {
	hwnd, err := r.backend.FocusedWindow()
	if err != nil {
		return "", fmt.Errorf("failed to query focused window: %w", err)
	}
	if hwnd == 0 {
		return "", nil
	}

	title, err := r.backend.WindowTitle(hwnd, r.maxLen)
	if err != nil {
		return "", fmt.Errorf("failed to query title of window 0x%x: %w", uintptr(hwnd), err)
	}
	return TruncateTitle(title, r.maxLen), nil
}

// TruncateTitle limits s to maxLen-1 UTF-16 code units, the amount of text a
// maxLen buffer holds next to its terminator. Surrogate pairs are never split.
func TruncateTitle(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxTitleLength
	}
	limit := maxLen - 1

	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > limit {
			return s[:i]
		}
		units += n
	}
	return s
}
