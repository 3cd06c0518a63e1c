//go:build !unix

package mcast

import (
	"errors"
	"net"
	"syscall"
)

func reuseAddrControl(_, _ string, _ syscall.RawConn) error { return errors.ErrUnsupported }

func setMulticastIfAddr(net.PacketConn, net.IP) error { return errors.ErrUnsupported }

func joinGroup4(net.PacketConn, net.IP, net.IP) error { return errors.ErrUnsupported }
