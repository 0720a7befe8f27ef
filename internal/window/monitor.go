package window

import (
	"errors"
	"sync"

	"github.com/bryanchriswhite/focuswatch/internal/logger"
)

// Option configures a Monitor
type Option func(*monitorOptions)

type monitorOptions struct {
	maxTitleLength int
	resolver       TitleResolver
}

// WithMaxTitleLength overrides the title buffer size (UTF-16 code units)
func WithMaxTitleLength(n int) Option {
	return func(o *monitorOptions) {
		o.maxTitleLength = n
	}
}

// WithResolver replaces the backend title resolver
func WithResolver(r TitleResolver) Option {
	return func(o *monitorOptions) {
		o.resolver = r
	}
}

// Monitor watches the foreground window and publishes its title on change
type Monitor struct {
	backend   Backend
	registrar *HookRegistrar
	publisher *DedupPublisher

	mu            sync.Mutex
	registrations []*HookRegistration
	disposed      bool
}

// monitoredEvents are registered in order, one hook each
var monitoredEvents = []EventKind{EventSystemForeground, EventObjectNameChange}

// NewMonitor registers the foreground and name-change hooks with b. If any
// registration is refused the ones already made are rolled back and a
// *SetupError is returned.
func NewMonitor(b Backend, opts ...Option) (*Monitor, error) {
	o := monitorOptions{maxTitleLength: MaxTitleLength}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		o.resolver = NewTitleResolver(b, o.maxTitleLength)
	}

	m := &Monitor{
		backend:   b,
		registrar: NewHookRegistrar(b),
		publisher: NewDedupPublisher(o.resolver),
	}

	log := logger.WithComponent("monitor")

	for _, kind := range monitoredEvents {
		reg, err := m.registrar.Register(SingleEvent(kind), m.publisher.OnRawEvent)
		if err != nil {
			for _, done := range m.registrations {
				if uerr := m.registrar.Unregister(done); uerr != nil {
					log.Warn().Err(uerr).Msg("Failed to roll back hook registration")
				}
			}
			m.registrations = nil
			return nil, err
		}
		m.registrations = append(m.registrations, reg)
	}

	log.Info().
		Str("backend", b.Name()).
		Int("hooks", len(m.registrations)).
		Msg("Window monitor started")

	return m, nil
}

// Subscribe registers l for titles published from now on
func (m *Monitor) Subscribe(l Listener) *Subscription {
	return m.publisher.Subscribe(l)
}

// Current returns the last published title
func (m *Monitor) Current() string {
	return m.publisher.Last()
}

// Backend returns the backend the monitor is registered with
func (m *Monitor) Backend() Backend {
	return m.backend
}

// Dispose unregisters every hook and completes all subscribers. It is
// idempotent, and nothing is published once it returns. The backend is not
// closed; its owner does that.
func (m *Monitor) Dispose() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	regs := m.registrations
	m.registrations = nil
	m.mu.Unlock()

	var errs []error
	for _, reg := range regs {
		if err := m.registrar.Unregister(reg); err != nil {
			errs = append(errs, err)
		}
	}

	m.publisher.Close()

	log := logger.WithComponent("monitor")
	err := errors.Join(errs...)
	if err != nil {
		log.Warn().Err(err).Msg("Window monitor stopped with errors")
	} else {
		log.Info().Msg("Window monitor stopped")
	}
	return err
}
