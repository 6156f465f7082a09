package connstate

import (
	"errors"
	"sync"
)

// fakePlatform is a test double for the Platform interface.
type fakePlatform struct {
	mu          sync.Mutex
	caps        map[NetworkID]Capabilities
	capsErr     map[NetworkID]error
	primary     NetworkID
	hasPrimary  bool
	cb          Callback
	req         Request
	nextSub     Subscription
	registerErr error
	replayErr   error // returned after the initial networks were reported
	registered  int
	initial     []NetworkID
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		caps:    make(map[NetworkID]Capabilities),
		capsErr: make(map[NetworkID]error),
	}
}

func (p *fakePlatform) RegisterCallback(req Request, cb Callback) (Subscription, error) {
	p.mu.Lock()
	if p.registerErr != nil {
		p.mu.Unlock()
		return 0, p.registerErr
	}
	p.cb = cb
	p.req = req
	p.nextSub++
	p.registered++
	sub := p.nextSub
	initial := append([]NetworkID(nil), p.initial...)
	p.mu.Unlock()

	for _, id := range initial {
		cb.OnAvailable(id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.replayErr != nil {
		p.cb = nil
		p.registered--
		return 0, p.replayErr
	}
	return sub, nil
}

func (p *fakePlatform) UnregisterCallback(sub Subscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cb == nil || sub != p.nextSub {
		return ErrNotRegistered
	}
	p.cb = nil
	p.registered--
	return nil
}

func (p *fakePlatform) Capabilities(id NetworkID) (Capabilities, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.capsErr[id]; ok {
		return Capabilities{}, err
	}
	caps, ok := p.caps[id]
	if !ok {
		return Capabilities{}, ErrUnknownNetwork
	}
	return caps, nil
}

func (p *fakePlatform) PrimaryNetwork() (NetworkID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.primary, p.hasPrimary
}

func (p *fakePlatform) setCaps(id NetworkID, caps Capabilities) {
	p.mu.Lock()
	p.caps[id] = caps
	p.mu.Unlock()
}

func (p *fakePlatform) failCaps(id NetworkID) {
	p.mu.Lock()
	p.capsErr[id] = errors.New("capability query failed")
	p.mu.Unlock()
}

func (p *fakePlatform) setPrimary(id NetworkID) {
	p.mu.Lock()
	p.primary = id
	p.hasPrimary = true
	p.mu.Unlock()
}

func (p *fakePlatform) clearPrimary() {
	p.mu.Lock()
	p.primary = 0
	p.hasPrimary = false
	p.mu.Unlock()
}

func (p *fakePlatform) callback() Callback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cb
}

// recordingEmitter captures emitted events in order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingEmitter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

var (
	wifiCaps     = Capabilities{Transports: NewTransportSet(TransportWiFi), Internet: true}
	cellularCaps = Capabilities{Transports: NewTransportSet(TransportCellular), Internet: true, Metered: true}
)
