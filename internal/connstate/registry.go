package connstate

import "sync"

// Entry pairs a network id with its registered info.
type Entry struct {
	ID   NetworkID
	Info ConnectionInfo
}

// Registry is the concurrency-safe set of networks known to be
// internet-capable and not yet lost. Values are stored by copy, so a
// snapshot never aliases an entry that is updated later.
type Registry struct {
	mu       sync.RWMutex
	networks map[NetworkID]ConnectionInfo
}

func NewRegistry() *Registry {
	return &Registry{
		networks: make(map[NetworkID]ConnectionInfo),
	}
}

// Put adds or overwrites the entry for id.
func (r *Registry) Put(id NetworkID, info ConnectionInfo) {
	r.mu.Lock()
	r.networks[id] = info
	r.mu.Unlock()
}

func (r *Registry) Get(id NetworkID) (ConnectionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.networks[id]
	return info, ok
}

// Remove deletes id and returns the value it held, if any.
func (r *Registry) Remove(id NetworkID) (ConnectionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.networks[id]
	if ok {
		delete(r.networks, id)
	}
	return info, ok
}

// Snapshot returns a point-in-time copy of every entry, in no particular order.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.networks))
	for id, info := range r.networks {
		entries = append(entries, Entry{ID: id, Info: info})
	}
	return entries
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.networks)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	clear(r.networks)
	r.mu.Unlock()
}
