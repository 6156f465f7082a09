package connstate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Monitor tracks internet-capable networks reported by a Platform, keeps the
// Registry current and raises ConnectionEstablished / ConnectionLost events.
//
// The registry only exists between Start and Stop. Platform callbacks that
// arrive outside that window are ignored; a callback racing Stop may still
// write into the registry being discarded, which is harmless.
type Monitor struct {
	platform Platform
	resolver *ActiveResolver
	emitter  Emitter
	now      func() time.Time

	mu      sync.Mutex
	sub     Subscription
	running bool
	cur     atomic.Pointer[run]
}

// run is the state of one Start..Stop window. Events raised while the
// platform registration is still in progress are held until it succeeds, so a
// failed Start never leaves an established connection without its loss.
type run struct {
	registry *Registry

	emitMu  sync.Mutex
	open    bool
	pending []Event
}

// NewMonitor creates a stopped monitor. A nil platform yields a monitor whose
// Start is a no-op, for hosts without network state services.
func NewMonitor(p Platform, e Emitter) *Monitor {
	if e == nil {
		e = noopEmitter{}
	}
	return &Monitor{
		platform: p,
		resolver: NewActiveResolver(p),
		emitter:  e,
		now:      time.Now,
	}
}

// Start registers for internet-capable network notifications. It is a no-op
// if the monitor is already running or has no platform.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if m.platform == nil {
		log.Warn("Network platform unavailable, connection monitoring disabled")
		return nil
	}

	// The platform may report already-connected networks while registering.
	r := &run{registry: NewRegistry()}
	m.cur.Store(r)

	sub, err := m.platform.RegisterCallback(Request{RequireInternet: true}, m)
	if err != nil {
		m.cur.Store(nil)
		r.discard()
		return fmt.Errorf("register network callback: %w", err)
	}
	m.sub = sub
	m.running = true
	r.release(m.emitter)

	log.Info("Started connection state monitoring")
	return nil
}

// Stop unregisters from the platform and discards the registry. Calling Stop
// on a monitor that is not running does nothing.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	sub := m.sub
	r := m.cur.Swap(nil)
	m.mu.Unlock()

	err := m.platform.UnregisterCallback(sub)
	if r != nil {
		r.registry.Clear()
	}

	log.Info("Stopped connection state monitoring")
	if err != nil {
		return fmt.Errorf("unregister network callback: %w", err)
	}
	return nil
}

// Run starts the monitor and blocks until ctx is cancelled. A platform that
// refuses registration leaves the monitor degraded rather than failing.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		log.WithError(err).Warn("Connection monitoring unavailable")
	}
	<-ctx.Done()
	return nil
}

// Close stops the monitor.
func (m *Monitor) Close() error {
	return m.Stop()
}

// OnAvailable classifies a newly available network, registers it and emits
// ConnectionEstablished. Networks whose capabilities cannot be read or that
// lack internet capability are skipped without an event.
func (m *Monitor) OnAvailable(id NetworkID) {
	r := m.cur.Load()
	if r == nil {
		log.WithField("network", id).Trace("Ignoring availability while stopped")
		return
	}

	caps, err := m.platform.Capabilities(id)
	if err != nil {
		log.WithField("network", id).WithError(err).Debug("Dropping availability, capabilities unreadable")
		return
	}
	if !caps.Internet {
		log.WithField("network", id).Debug("Dropping availability, no internet capability")
		return
	}

	info := Classify(caps)
	info.IsActive = m.resolver.IsPrimary(id)
	r.registry.Put(id, info)

	log.WithFields(log.Fields{
		"network":         id,
		"connection_type": info.Type,
		"active":          info.IsActive,
		"metered":         info.IsMetered,
	}).Info("Connection established")

	m.emit(r, ConnectionEstablished, info)
}

// OnCapabilitiesChanged refreshes the registry entry for id from caps. It
// never emits: capability churn on a known network is not a transition.
func (m *Monitor) OnCapabilitiesChanged(id NetworkID, caps Capabilities) {
	r := m.cur.Load()
	if r == nil {
		log.WithField("network", id).Trace("Ignoring capability change while stopped")
		return
	}
	if !caps.Internet {
		log.WithField("network", id).Debug("Ignoring capability change without internet capability")
		return
	}

	info := Classify(caps)
	if prev, ok := r.registry.Get(id); ok {
		info.IsActive = prev.IsActive
	}
	r.registry.Put(id, info)

	log.WithFields(log.Fields{
		"network":         id,
		"connection_type": info.Type,
		"metered":         info.IsMetered,
	}).Debug("Connection capabilities changed")
}

// OnLost removes id and emits exactly one ConnectionLost. An id that was never
// registered is reported as an unknown, unmetered connection.
func (m *Monitor) OnLost(id NetworkID) {
	r := m.cur.Load()
	if r == nil {
		log.WithField("network", id).Trace("Ignoring loss while stopped")
		return
	}

	info, ok := r.registry.Remove(id)
	if !ok {
		info = ConnectionInfo{Type: Unknown}
	}
	info.IsActive = false

	log.WithFields(log.Fields{
		"network":         id,
		"connection_type": info.Type,
		"known":           ok,
	}).Info("Connection lost")

	m.emit(r, ConnectionLost, info)
}

// ConnectionState returns every registered connection with IsActive resolved
// against the platform's primary network at the time of the call.
func (m *Monitor) ConnectionState() []ConnectionInfo {
	entries := m.Networks()
	infos := make([]ConnectionInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.Info)
	}
	return infos
}

// Networks is ConnectionState keyed by network id.
func (m *Monitor) Networks() []Entry {
	r := m.cur.Load()
	if r == nil {
		return []Entry{}
	}

	entries := r.registry.Snapshot()
	primary, ok := m.resolver.Primary()
	for i := range entries {
		entries[i].Info.IsActive = ok && entries[i].ID == primary
	}
	return entries
}

// NetworkCount is the number of registered networks.
func (m *Monitor) NetworkCount() int {
	r := m.cur.Load()
	if r == nil {
		return 0
	}
	return r.registry.Len()
}

func (m *Monitor) emit(r *run, t EventType, info ConnectionInfo) {
	ev := Event{Type: t, Info: info, Time: m.now()}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if !r.open {
		r.pending = append(r.pending, ev)
		return
	}
	m.emitter.Emit(ev)
}

// release forwards the held events in order and opens the run.
func (r *run) release(e Emitter) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	for _, ev := range r.pending {
		e.Emit(ev)
	}
	r.pending = nil
	r.open = true
}

// discard drops the held events of a run whose registration failed.
func (r *run) discard() {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if len(r.pending) > 0 {
		log.WithField("events", len(r.pending)).Debug("Discarding events from failed registration")
	}
	r.pending = nil
}
