package connstate

import (
	"errors"
	"strings"
)

// NetworkID is the platform handle of one network interface instance. A
// platform never reuses an id while it is still registered.
type NetworkID uint64

// ConnectionType is the transport classification of a network. The integer
// values are part of the consumer contract and must not be renumbered.
type ConnectionType int

const (
	Unknown ConnectionType = iota
	WiFi
	Cellular
	Ethernet
	Bluetooth
	VPN
	Loopback
)

var connectionTypeNames = [...]string{
	Unknown:   "unknown",
	WiFi:      "wifi",
	Cellular:  "cellular",
	Ethernet:  "ethernet",
	Bluetooth: "bluetooth",
	VPN:       "vpn",
	Loopback:  "loopback",
}

func (t ConnectionType) String() string {
	if t < 0 || int(t) >= len(connectionTypeNames) {
		return connectionTypeNames[Unknown]
	}
	return connectionTypeNames[t]
}

// ParseConnectionType maps a name produced by String back to its type.
func ParseConnectionType(s string) (ConnectionType, bool) {
	for i, name := range connectionTypeNames {
		if strings.EqualFold(name, s) {
			return ConnectionType(i), true
		}
	}
	return Unknown, false
}

// ConnectionInfo is the classification of one registered network.
type ConnectionInfo struct {
	Type      ConnectionType `json:"connection_type"`
	IsActive  bool           `json:"is_active"`
	IsMetered bool           `json:"is_metered"`
}

// Transport is a single transport a platform reports for a network.
type Transport uint8

const (
	TransportWiFi Transport = 1 << iota
	TransportCellular
	TransportEthernet
	TransportBluetooth
	TransportVPN
	TransportLoopback
)

// TransportSet is the set of transports reported for a network.
type TransportSet uint8

func NewTransportSet(ts ...Transport) TransportSet {
	var s TransportSet
	for _, t := range ts {
		s = s.With(t)
	}
	return s
}

func (s TransportSet) Has(t Transport) bool { return s&TransportSet(t) != 0 }

func (s TransportSet) With(t Transport) TransportSet { return s | TransportSet(t) }

// Capabilities is what the platform reports about a network at query time.
type Capabilities struct {
	Transports TransportSet
	Internet   bool
	Metered    bool
}

// transportPriority is consulted in order when a network reports several
// transports at once; the first match wins.
var transportPriority = []struct {
	transport Transport
	connType  ConnectionType
}{
	{TransportWiFi, WiFi},
	{TransportCellular, Cellular},
	{TransportEthernet, Ethernet},
	{TransportBluetooth, Bluetooth},
	{TransportVPN, VPN},
	{TransportLoopback, Loopback},
}

// Classify builds the ConnectionInfo for caps. IsActive is left false; it is
// resolved separately against the platform's primary network.
func Classify(caps Capabilities) ConnectionInfo {
	info := ConnectionInfo{Type: Unknown, IsMetered: caps.Metered}
	for _, p := range transportPriority {
		if caps.Transports.Has(p.transport) {
			info.Type = p.connType
			break
		}
	}
	return info
}

var (
	// ErrUnknownNetwork is returned by a Platform queried about an id it no
	// longer (or never) tracked.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrNotRegistered is returned when unregistering a subscription the
	// platform does not hold.
	ErrNotRegistered = errors.New("callback not registered")
)
