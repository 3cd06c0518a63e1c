//go:build unix

package mcast

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

var errNoRawConn = errors.New("connection does not expose a file descriptor")

func control(c net.PacketConn, fn func(fd int) error) error {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return errNoRawConn
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := raw.Control(func(fd uintptr) { opErr = fn(int(fd)) }); err != nil {
		return err
	}
	return opErr
}

func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var opErr error
	if err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return opErr
}

// setMulticastIfAddr selects the IPv4 outbound interface by local address.
func setMulticastIfAddr(c net.PacketConn, ip net.IP) error {
	var a [4]byte
	copy(a[:], ip.To4())
	return control(c, func(fd int) error {
		return unix.SetsockoptInet4Addr(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_IF, a)
	})
}

// joinGroup4 adds an ip_mreq membership. A nil ifAddr means INADDR_ANY.
func joinGroup4(c net.PacketConn, group, ifAddr net.IP) error {
	mreq := &unix.IPMreq{}
	copy(mreq.Multiaddr[:], group.To4())
	if ifAddr != nil {
		copy(mreq.Interface[:], ifAddr.To4())
	}
	return control(c, func(fd int) error {
		return unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
	})
}
