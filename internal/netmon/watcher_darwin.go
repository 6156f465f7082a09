//go:build darwin

package netmon

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/route"
	"golang.org/x/sys/unix"
)

// Routing message types we care about
const (
	rtmNewAddr = 0x0c // RTM_NEWADDR - address added
	rtmDelAddr = 0x0d // RTM_DELADDR - address removed
	rtmIfInfo  = 0x0e // RTM_IFINFO - interface up/down
)

type darwinWatcher struct{}

func newWatcher() (watcher, error) {
	return &darwinWatcher{}, nil
}

func (w *darwinWatcher) run(ctx context.Context, observe func(linkState)) error {
	fd, err := unix.Socket(unix.AF_ROUTE, unix.SOCK_RAW, unix.AF_UNSPEC)
	if err != nil {
		return fmt.Errorf("open route socket: %w", err)
	}

	// Close socket when context is cancelled
	go func() {
		<-ctx.Done()
		unix.Close(fd)
	}()

	interfaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range interfaces {
		observe(interfaceState(iface.Index))
	}
	log.WithField("links", len(interfaces)).Debug("Darwin watcher initialized")

	buf := make([]byte, 4096)

	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.WithError(err).Warn("Error reading from route socket")
				continue
			}
		}

		if n < 14 {
			continue
		}

		// Message header layout for if_msghdr / ifa_msghdr:
		// - bytes 0-1: msglen
		// - byte 2: version
		// - byte 3: type
		// - bytes 4-7: addrs
		// - bytes 8-11: flags
		// - bytes 12-13: interface index
		msgType := buf[3]
		if msgType != rtmIfInfo && msgType != rtmNewAddr && msgType != rtmDelAddr {
			continue
		}

		ifIndex := int(binary.LittleEndian.Uint16(buf[12:14]))
		if ifIndex == 0 {
			continue
		}

		log.WithFields(log.Fields{
			"msgType": msgType,
			"ifIndex": ifIndex,
		}).Trace("Received interface event")

		// IFF_UP is 0x1 in BSD
		if msgType == rtmIfInfo && binary.LittleEndian.Uint32(buf[8:12])&0x1 == 0 {
			observe(linkState{index: ifIndex, present: true})
			continue
		}

		observe(interfaceState(ifIndex))
	}
}

func (w *darwinWatcher) primaryIndex() (int, bool) {
	rib, err := route.FetchRIB(unix.AF_INET, route.RIBTypeRoute, 0)
	if err != nil {
		log.WithError(err).Debug("Failed to fetch routing table")
		return 0, false
	}
	msgs, err := route.ParseRIB(route.RIBTypeRoute, rib)
	if err != nil {
		log.WithError(err).Debug("Failed to parse routing table")
		return 0, false
	}

	var defaults []defaultRoute
	for _, m := range msgs {
		rm, ok := m.(*route.RouteMessage)
		if !ok {
			continue
		}
		// Interface-scoped defaults only apply to sockets bound to that interface.
		if rm.Flags&unix.RTF_UP == 0 || rm.Flags&unix.RTF_GATEWAY == 0 || rm.Flags&unix.RTF_IFSCOPE != 0 {
			continue
		}
		if !isDefaultRouteAddrs(rm.Addrs) {
			continue
		}
		// The kernel lists routes in preference order.
		defaults = append(defaults, defaultRoute{linkIndex: rm.Index, priority: len(defaults)})
	}
	return pickPrimary(defaults)
}

func isDefaultRouteAddrs(addrs []route.Addr) bool {
	if len(addrs) <= unix.RTAX_NETMASK {
		return false
	}
	dst, ok := addrs[unix.RTAX_DST].(*route.Inet4Addr)
	if !ok || dst.IP != [4]byte{} {
		return false
	}
	switch mask := addrs[unix.RTAX_NETMASK].(type) {
	case nil:
		return true
	case *route.Inet4Addr:
		return mask.IP == [4]byte{}
	}
	return false
}

// interfaceState inspects a link by index. A link that no longer exists is
// reported as not present.
func interfaceState(index int) linkState {
	iface, err := net.InterfaceByIndex(index)
	if err != nil {
		return linkState{index: index}
	}

	ls := linkState{
		index:    iface.Index,
		name:     iface.Name,
		present:  true,
		up:       iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0,
		loopback: iface.Flags&net.FlagLoopback != 0,
	}
	if !ls.loopback {
		ls.wireless = isWirelessInterface(iface.Name)
	}
	if ls.up && !ls.loopback {
		ls.routable = hasRoutableInterfaceAddr(iface)
	}
	return ls
}

func hasRoutableInterfaceAddr(iface *net.Interface) bool {
	addrs, err := iface.Addrs()
	if err != nil {
		log.WithError(err).WithField("interface", iface.Name).Trace("Failed to get interface addresses")
		return false
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && isInternetAddress(ipNet.IP) {
			return true
		}
	}
	return false
}

// ifMediaReq mirrors struct ifmediareq, which darwin packs to 4 bytes.
type ifMediaReq struct {
	name    [unix.IFNAMSIZ]byte
	current int32
	mask    int32
	status  int32
	active  int32
	count   int32
	ulist   [2]uint32 // int *ifm_ulist, left nil
}

// isWirelessInterface asks the driver for the link's media type. en0 is Wi-Fi
// on most Macs and wired on others, so the name alone cannot tell.
func isWirelessInterface(name string) bool {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		log.WithError(err).Trace("Failed to open media query socket")
		return false
	}
	defer unix.Close(fd)

	var req ifMediaReq
	copy(req.name[:], name)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.SIOCGIFMEDIA), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		// Interfaces without media support (utun, bridges) return EINVAL.
		log.WithError(errno).WithField("interface", name).Trace("Media query unsupported")
		return false
	}
	return isWirelessMedia(req.current)
}
