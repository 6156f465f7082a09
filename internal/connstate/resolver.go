package connstate

// ActiveResolver answers whether a network is the platform's primary one.
// Every call re-queries the platform, so answers are "as of now" and two
// calls during a transition may disagree.
type ActiveResolver struct {
	platform Platform
}

func NewActiveResolver(p Platform) *ActiveResolver {
	return &ActiveResolver{platform: p}
}

// Primary returns the current primary network id.
func (r *ActiveResolver) Primary() (NetworkID, bool) {
	if r == nil || r.platform == nil {
		return 0, false
	}
	return r.platform.PrimaryNetwork()
}

// IsPrimary reports whether id is the current primary network. It is false
// for every id when the platform has no primary network.
func (r *ActiveResolver) IsPrimary(id NetworkID) bool {
	primary, ok := r.Primary()
	return ok && primary == id
}
