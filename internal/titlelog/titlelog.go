// Package titlelog renders published window titles as text lines.
package titlelog

import (
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/bryanchriswhite/focuswatch/internal/logger"
)

// DefaultTimeFormat is used when no format is configured
const DefaultTimeFormat = "15:04:05"

// Writer is a window.Listener that writes one line per title or error
type Writer struct {
	mu         sync.Mutex
	out        io.Writer
	timeFormat string
	ignore     []*regexp.Regexp
	now        func() time.Time
	done       chan struct{}
	doneOnce   sync.Once
}

// Option configures a Writer
type Option func(*Writer)

// WithTimeFormat sets the time layout prefixed to each line. An empty layout
// drops the prefix.
func WithTimeFormat(layout string) Option {
	return func(w *Writer) {
		w.timeFormat = layout
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// New creates a Writer. Titles matching any of ignorePatterns are skipped.
func New(out io.Writer, ignorePatterns []string, opts ...Option) (*Writer, error) {
	w := &Writer{
		out:        out,
		timeFormat: DefaultTimeFormat,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.SetIgnorePatterns(ignorePatterns); err != nil {
		return nil, err
	}

	return w, nil
}

// SetIgnorePatterns replaces the ignore patterns. On error the current
// patterns are kept.
func (w *Writer) SetIgnorePatterns(patterns []string) error {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	w.mu.Lock()
	w.ignore = compiled
	w.mu.Unlock()
	return nil
}

// Ignored reports whether title matches an ignore pattern
func (w *Writer) Ignored(title string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, re := range w.ignore {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// OnTitle writes the title unless it is ignored
func (w *Writer) OnTitle(title string) {
	if w.Ignored(title) {
		logger.WithComponent("titlelog").Debug().Str("title", title).Msg("Title ignored")
		return
	}
	w.writeLine(title)
}

// OnError writes the cause on an error line
func (w *Writer) OnError(err error) {
	w.writeLine("error: " + err.Error())
}

// OnComplete marks the stream finished
func (w *Writer) OnComplete() {
	w.doneOnce.Do(func() { close(w.done) })
}

// Done is closed once the stream has completed
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) writeLine(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.timeFormat == "" {
		_, err = fmt.Fprintln(w.out, text)
	} else {
		_, err = fmt.Fprintf(w.out, "%s  %s\n", w.now().Format(w.timeFormat), text)
	}
	if err != nil {
		logger.WithComponent("titlelog").Warn().Err(err).Msg("Failed to write title line")
	}
}
