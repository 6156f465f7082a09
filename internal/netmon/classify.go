package netmon

import (
	"net"
	"strings"

	"github.com/dmdmdm-nz/connstated/internal/connstate"
)

var (
	cellularPrefixes  = []string{"wwan", "rmnet", "ccmni", "pdp_ip"}
	bluetoothPrefixes = []string{"bnep", "bt-pan"}
	wifiPrefixes      = []string{"wlan", "wlp", "wlx"}
	vpnPrefixes       = []string{"tun", "tap", "wg", "ppp", "utun", "ipsec", "tailscale", "zt"}
	ethernetPrefixes  = []string{"en", "eth", "bridge", "br-", "bond", "veth", "vlan"}

	vpnKinds      = []string{"tuntap", "wireguard", "ipip", "gre", "gretun", "ip6tnl", "sit", "vti", "xfrm", "ppp"}
	ethernetKinds = []string{"device", "veth", "bridge", "bond", "vlan", "macvlan", "ipvlan", "vxlan"}
)

// transportsFor guesses the transport of a link from its kernel link kind
// (empty when the OS does not expose one), its name and what the caller
// could learn about it directly.
func transportsFor(kind, name string, loopback, wireless bool) connstate.TransportSet {
	var t connstate.Transport
	switch {
	case loopback:
		t = connstate.TransportLoopback
	case wireless || hasAnyPrefix(name, wifiPrefixes):
		t = connstate.TransportWiFi
	case hasAnyPrefix(name, cellularPrefixes):
		t = connstate.TransportCellular
	case hasAnyPrefix(name, bluetoothPrefixes):
		t = connstate.TransportBluetooth
	case contains(vpnKinds, kind) || hasAnyPrefix(name, vpnPrefixes):
		t = connstate.TransportVPN
	case contains(ethernetKinds, kind) || hasAnyPrefix(name, ethernetPrefixes):
		t = connstate.TransportEthernet
	default:
		return 0
	}
	return connstate.NewTransportSet(t)
}

// BSD ifmedia word layout (net/if_media.h): bits 5-7 carry the network type.
const (
	ifmNetworkMask = 0xe0
	ifmIEEE80211   = 0x80
)

// isWirelessMedia reports whether an ifmedia word describes an 802.11 link.
func isWirelessMedia(word int32) bool {
	return word&ifmNetworkMask == ifmIEEE80211
}

// isInternetAddress reports whether ip can reach beyond the local link.
func isInternetAddress(ip net.IP) bool {
	return ip != nil && ip.IsGlobalUnicast()
}

// capabilitiesFor assembles the capabilities of an up link.
func capabilitiesFor(transports connstate.TransportSet, name string, internet bool, metered map[string]struct{}) connstate.Capabilities {
	_, forced := metered[name]
	return connstate.Capabilities{
		Transports: transports,
		Internet:   internet,
		Metered:    forced || transports.Has(connstate.TransportCellular),
	}
}

// defaultRoute is the part of a routing table entry needed to pick the
// primary network.
type defaultRoute struct {
	linkIndex int
	priority  int
}

// pickPrimary returns the link of the preferred default route: the lowest
// priority wins, ties go to the first listed.
func pickPrimary(routes []defaultRoute) (int, bool) {
	best := -1
	for i, r := range routes {
		if r.linkIndex <= 0 {
			continue
		}
		if best < 0 || r.priority < routes[best].priority {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return routes[best].linkIndex, true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// isDefaultDst reports whether a route destination is the default route.
// Netlink leaves Dst nil for default routes on older kernels.
func isDefaultDst(dst *net.IPNet) bool {
	if dst == nil {
		return true
	}
	ones, _ := dst.Mask.Size()
	return ones == 0 && dst.IP.IsUnspecified()
}
