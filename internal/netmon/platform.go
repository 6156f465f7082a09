package netmon

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connstated/internal/connstate"
)

// ErrUnsupported is returned by New on operating systems without a watcher.
var ErrUnsupported = errors.New("network monitoring not supported on this platform")

// Options tunes how links are classified.
type Options struct {
	// MeteredInterfaces names links that are always reported as metered.
	MeteredInterfaces []string
}

// linkState is one observation of a link made by a watcher.
type linkState struct {
	index    int
	name     string
	kind     string // kernel link kind, empty when the OS has none
	present  bool   // false once the link is deleted
	up       bool
	loopback bool
	wireless bool
	routable bool // holds at least one global unicast address
}

// watcher is the OS-specific event source.
type watcher interface {
	// run reports the state of every current link, then every change, until
	// ctx is cancelled or the OS event source fails.
	run(ctx context.Context, observe func(linkState)) error

	// primaryIndex returns the link index of the preferred default route.
	primaryIndex() (int, bool)
}

type trackedLink struct {
	id   connstate.NetworkID
	name string
	caps connstate.Capabilities
}

// session is one run of the watcher. Observations from a session that is no
// longer current are dropped, so a restart never inherits stale links.
type session struct {
	links  map[int]*trackedLink // ifindex -> link
	byID   map[connstate.NetworkID]int
	cancel context.CancelFunc
	done   chan struct{}
}

// Platform implements connstate.Platform on top of an OS watcher. It tracks
// links that are up and hold a routable address and hands out a fresh
// NetworkID each time a link gains that capability.
type Platform struct {
	w       watcher
	metered map[string]struct{}

	// notifyMu serializes callback delivery, so a late subscriber's replay
	// and live watcher notifications for the same id cannot interleave.
	notifyMu sync.Mutex

	mu      sync.Mutex
	cur     *session
	nextID  connstate.NetworkID
	subs    map[connstate.Subscription]connstate.Callback
	nextSub connstate.Subscription
}

// New creates a Platform for the running OS.
func New(opts Options) (*Platform, error) {
	w, err := newWatcher()
	if err != nil {
		return nil, err
	}
	return newPlatform(w, opts), nil
}

func newPlatform(w watcher, opts Options) *Platform {
	metered := make(map[string]struct{}, len(opts.MeteredInterfaces))
	for _, name := range opts.MeteredInterfaces {
		metered[name] = struct{}{}
	}
	return &Platform{
		w:       w,
		metered: metered,
		subs:    make(map[connstate.Subscription]connstate.Callback),
	}
}

// RegisterCallback starts the watcher on first registration. A later
// registration is told about every network already tracked before it sees
// any live notification. Only internet-capable networks are ever reported,
// whatever the request.
func (p *Platform) RegisterCallback(_ connstate.Request, cb connstate.Callback) (connstate.Subscription, error) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	p.nextSub++
	sub := p.nextSub
	p.subs[sub] = cb

	if p.cur == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s := &session{
			links:  make(map[int]*trackedLink),
			byID:   make(map[connstate.NetworkID]int),
			cancel: cancel,
			done:   make(chan struct{}),
		}
		p.cur = s
		go p.watch(ctx, s)
		p.mu.Unlock()
		return sub, nil
	}

	existing := make([]connstate.NetworkID, 0, len(p.cur.links))
	for _, l := range p.cur.links {
		existing = append(existing, l.id)
	}
	p.mu.Unlock()

	for _, id := range existing {
		cb.OnAvailable(id)
	}
	return sub, nil
}

// UnregisterCallback stops delivery to sub and shuts the watcher down once no
// callbacks remain. Tracked links are forgotten, so a later registration sees
// every network under a new id.
func (p *Platform) UnregisterCallback(sub connstate.Subscription) error {
	p.mu.Lock()
	if _, ok := p.subs[sub]; !ok {
		p.mu.Unlock()
		return connstate.ErrNotRegistered
	}
	delete(p.subs, sub)
	if len(p.subs) > 0 || p.cur == nil {
		p.mu.Unlock()
		return nil
	}
	s := p.cur
	p.cur = nil
	p.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

func (p *Platform) Capabilities(id connstate.NetworkID) (connstate.Capabilities, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return connstate.Capabilities{}, connstate.ErrUnknownNetwork
	}
	index, ok := p.cur.byID[id]
	if !ok {
		return connstate.Capabilities{}, connstate.ErrUnknownNetwork
	}
	return p.cur.links[index].caps, nil
}

func (p *Platform) PrimaryNetwork() (connstate.NetworkID, bool) {
	index, ok := p.w.primaryIndex()
	if !ok {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return 0, false
	}
	l, ok := p.cur.links[index]
	if !ok {
		return 0, false
	}
	return l.id, true
}

func (p *Platform) watch(ctx context.Context, s *session) {
	defer close(s.done)
	log.Info("Starting network interface watcher")
	defer log.Info("Stopping network interface watcher")

	observe := func(ls linkState) { p.observe(s, ls) }
	if err := p.w.run(ctx, observe); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("Network interface watcher failed")
	}
}

// observe folds one link observation into the session's tracked set and
// notifies callbacks. It runs on the session's watcher goroutine only, which
// keeps each network's notifications in order.
func (p *Platform) observe(s *session, ls linkState) {
	caps := p.classify(ls)
	capable := caps.Internet

	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	if p.cur != s {
		p.mu.Unlock()
		log.WithField("interface", ls.name).Trace("Dropping observation from stopped watcher")
		return
	}
	l, tracked := s.links[ls.index]

	var notify func(connstate.Callback)
	switch {
	case capable && !tracked:
		p.nextID++
		id := p.nextID
		s.links[ls.index] = &trackedLink{id: id, name: ls.name, caps: caps}
		s.byID[id] = ls.index
		notify = func(cb connstate.Callback) { cb.OnAvailable(id) }
		log.WithFields(log.Fields{"interface": ls.name, "network": id}).Debug("Interface became internet-capable")

	case capable && tracked && l.caps != caps:
		l.caps = caps
		id := l.id
		notify = func(cb connstate.Callback) { cb.OnCapabilitiesChanged(id, caps) }
		log.WithFields(log.Fields{"interface": ls.name, "network": id}).Trace("Interface capabilities changed")

	case !capable && tracked:
		delete(s.links, ls.index)
		delete(s.byID, l.id)
		id := l.id
		notify = func(cb connstate.Callback) { cb.OnLost(id) }
		log.WithFields(log.Fields{"interface": l.name, "network": id}).Debug("Interface lost internet capability")
	}

	var cbs []connstate.Callback
	if notify != nil {
		cbs = make([]connstate.Callback, 0, len(p.subs))
		for _, cb := range p.subs {
			cbs = append(cbs, cb)
		}
	}
	p.mu.Unlock()

	// Callbacks query the platform, so they run without mu held.
	for _, cb := range cbs {
		notify(cb)
	}
}

// classify turns what a watcher learned about a link into capabilities.
func (p *Platform) classify(ls linkState) connstate.Capabilities {
	internet := ls.present && ls.up && ls.routable && !ls.loopback
	transports := transportsFor(ls.kind, ls.name, ls.loopback, ls.wireless)
	return capabilitiesFor(transports, ls.name, internet, p.metered)
}
