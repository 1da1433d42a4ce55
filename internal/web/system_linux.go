//go:build linux

package web

import (
	"net"
	"net/netip"
	"slices"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

func snapshotDisk(dir string) *DiskSnapshot {
	if dir == "" {
		dir = "/"
	}
	var fs unix.Statfs_t
	if err := unix.Statfs(dir, &fs); err != nil {
		return &DiskSnapshot{Path: dir, LastError: err.Error()}
	}
	block := uint64(fs.Bsize)
	total := fs.Blocks * block
	avail := fs.Bavail * block
	snap := &DiskSnapshot{
		Path:       dir,
		TotalBytes: total,
		AvailBytes: avail,
		Avail:      humanize.IBytes(avail),
	}
	if total > 0 {
		snap.UsedPct = 100 * float64(total-fs.Bfree*block) / float64(total)
	}
	return snap
}

func snapshotNetwork() *NetworkSnapshot {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var addrs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifAddrs {
			if s, ok := groundAddr(iface.Name, a); ok {
				addrs = append(addrs, s)
			}
		}
	}
	slices.Sort(addrs)
	return &NetworkSnapshot{LocalAddrs: addrs}
}

// groundAddr formats a routable IPv4 interface address as "iface: cidr".
func groundAddr(iface string, a net.Addr) (string, bool) {
	n, ok := a.(*net.IPNet)
	if !ok {
		return "", false
	}
	prefix, err := netip.ParsePrefix(n.String())
	if err != nil {
		return "", false
	}
	ip := prefix.Addr().Unmap()
	if !ip.Is4() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return "", false
	}
	return iface + ": " + netip.PrefixFrom(ip, prefix.Bits()).String(), true
}
