package connstate

// Request filters the networks a platform reports to a registered callback.
type Request struct {
	// RequireInternet limits notifications to internet-capable networks.
	RequireInternet bool
}

// Subscription is the handle returned by RegisterCallback.
type Subscription uint64

// Callback receives network lifecycle notifications. Platforms may invoke it
// from any goroutine and concurrently for different ids, but calls for a
// single id are delivered in order.
type Callback interface {
	OnAvailable(id NetworkID)
	OnCapabilitiesChanged(id NetworkID, caps Capabilities)
	OnLost(id NetworkID)
}

// Platform is the OS-facing source of network state.
type Platform interface {
	// RegisterCallback starts delivering notifications matching req to cb.
	RegisterCallback(req Request, cb Callback) (Subscription, error)

	// UnregisterCallback stops delivery for sub.
	UnregisterCallback(sub Subscription) error

	// Capabilities returns the current capabilities of id, or
	// ErrUnknownNetwork if the platform is not tracking it.
	Capabilities(id NetworkID) (Capabilities, error)

	// PrimaryNetwork returns the network default traffic is routed through.
	// ok is false when there is none.
	PrimaryNetwork() (id NetworkID, ok bool)
}
