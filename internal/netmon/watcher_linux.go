//go:build linux

package netmon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const sysClassNet = "/sys/class/net"

// Updates are buffered so the netlink receive goroutines never block on a
// reader that has already returned.
const updateBuffer = 64

type linuxWatcher struct{}

func newWatcher() (watcher, error) {
	return &linuxWatcher{}, nil
}

func (w *linuxWatcher) run(ctx context.Context, observe func(linkState)) error {
	linkCh := make(chan netlink.LinkUpdate, updateBuffer)
	addrCh := make(chan netlink.AddrUpdate, updateBuffer)
	done := make(chan struct{})
	defer close(done)

	if err := netlink.LinkSubscribe(linkCh, done); err != nil {
		return fmt.Errorf("subscribe to link updates: %w", err)
	}
	if err := netlink.AddrSubscribe(addrCh, done); err != nil {
		return fmt.Errorf("subscribe to address updates: %w", err)
	}

	// Subscribe first so nothing between the listing and the first update is missed.
	links, err := netlink.LinkList()
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}
	for _, link := range links {
		observe(linkStateOf(link))
	}
	log.WithField("links", len(links)).Debug("Linux watcher initialized")

	for {
		select {
		case <-ctx.Done():
			return nil

		case update, ok := <-linkCh:
			if !ok {
				return errors.New("link subscription closed")
			}
			observe(linkUpdateState(update))

		case update, ok := <-addrCh:
			if !ok {
				return errors.New("address subscription closed")
			}
			link, err := netlink.LinkByIndex(update.LinkIndex)
			if err != nil {
				// The link is gone; its RTM_DELLINK reports the loss.
				log.WithError(err).WithField("index", update.LinkIndex).Trace("Failed to get link by index")
				continue
			}
			observe(linkStateOf(link))
		}
	}
}

func (w *linuxWatcher) primaryIndex() (int, bool) {
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		routes, err := netlink.RouteList(nil, family)
		if err != nil {
			log.WithError(err).WithField("family", family).Debug("Failed to list routes")
			continue
		}

		var defaults []defaultRoute
		for _, r := range routes {
			if !isDefaultDst(r.Dst) {
				continue
			}
			index := r.LinkIndex
			if index == 0 && len(r.MultiPath) > 0 {
				index = r.MultiPath[0].LinkIndex
			}
			defaults = append(defaults, defaultRoute{linkIndex: index, priority: r.Priority})
		}

		if index, ok := pickPrimary(defaults); ok {
			return index, true
		}
	}
	return 0, false
}

func linkUpdateState(update netlink.LinkUpdate) linkState {
	if update.Header.Type == unix.RTM_DELLINK {
		attrs := update.Link.Attrs()
		return linkState{index: attrs.Index, name: attrs.Name, kind: update.Link.Type()}
	}
	return linkStateOf(update.Link)
}

func linkStateOf(link netlink.Link) linkState {
	attrs := link.Attrs()
	ls := linkState{
		index:    attrs.Index,
		name:     attrs.Name,
		kind:     link.Type(),
		present:  true,
		up:       attrs.Flags&net.FlagUp != 0 && attrs.RawFlags&unix.IFF_RUNNING != 0,
		loopback: attrs.Flags&net.FlagLoopback != 0,
		wireless: isWireless(attrs.Name),
	}
	if ls.up && !ls.loopback {
		ls.routable = hasRoutableAddress(link)
	}
	return ls
}

func hasRoutableAddress(link netlink.Link) bool {
	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		log.WithError(err).WithField("interface", link.Attrs().Name).Trace("Failed to list addresses")
		return false
	}
	for _, addr := range addrs {
		if addr.IPNet == nil || addr.Flags&(unix.IFA_F_TENTATIVE|unix.IFA_F_DADFAILED) != 0 {
			continue
		}
		if addr.Scope == unix.RT_SCOPE_UNIVERSE && isInternetAddress(addr.IP) {
			return true
		}
	}
	return false
}

func isWireless(name string) bool {
	for _, marker := range []string{"wireless", "phy80211"} {
		if _, err := os.Stat(filepath.Join(sysClassNet, name, marker)); err == nil {
			return true
		}
	}
	return false
}
