// Package mcast opens UDP sockets configured for sending to, or receiving
// from, an IPv4 or IPv6 multicast group.
package mcast

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	logx "eventcast/pkg/logx"
)

// SenderOptions configures NewSender.
type SenderOptions struct {
	Address string
	Port    string
	// Interface is the outbound interface name. Empty lets the kernel pick.
	Interface string
	// TTL is the IPv4 multicast TTL or the IPv6 hop limit (0..255).
	TTL      int
	Loopback bool
}

// ReceiverOptions configures NewReceiver.
type ReceiverOptions struct {
	Address string
	Port    string
	// Interface restricts group membership to one interface. Empty joins on
	// the kernel's default.
	Interface string
}

// Socket is a configured multicast socket plus the resolved group address.
type Socket struct {
	conn net.PacketConn
	dst  net.UDPAddr
	ipv6 bool
}

// Conn returns the underlying packet connection.
func (s *Socket) Conn() net.PacketConn { return s.conn }

// Destination returns a copy of the resolved group address.
func (s *Socket) Destination() *net.UDPAddr {
	d := s.dst
	d.IP = append(net.IP(nil), s.dst.IP...)
	return &d
}

// IPv6 reports the socket's address family.
func (s *Socket) IPv6() bool { return s.ipv6 }

// Send writes one datagram to the group.
func (s *Socket) Send(b []byte) (int, error) { return s.conn.WriteTo(b, &s.dst) }

// ReadFrom reads one datagram.
func (s *Socket) ReadFrom(b []byte) (int, net.Addr, error) { return s.conn.ReadFrom(b) }

func (s *Socket) Close() error { return s.conn.Close() }

// Dependencies are the OS facilities the factory uses. Nil fields fall back
// to the net package.
type Dependencies struct {
	// Resolve turns host and port into a UDP address of either family.
	Resolve func(ctx context.Context, host, port string) (*net.UDPAddr, error)

	// ListenPacket opens a UDP socket on address. reuseAddr requests SO_REUSEADDR.
	ListenPacket func(ctx context.Context, network, address string, reuseAddr bool) (net.PacketConn, error)

	// Interfaces enumerates local interfaces (IPv4 address scan).
	Interfaces func() ([]net.Interface, error)

	// InterfaceByName resolves an interface name (IPv6 index lookup).
	InterfaceByName func(name string) (*net.Interface, error)
}

// Factory builds sender and receiver sockets.
type Factory struct {
	deps Dependencies
	log  logx.Logger
}

// NewFactory returns a factory. deps may be nil.
func NewFactory(deps *Dependencies, log logx.Logger) *Factory {
	var d Dependencies
	if deps != nil {
		d = *deps
	}
	if d.Resolve == nil {
		d.Resolve = resolveUDP
	}
	if d.ListenPacket == nil {
		d.ListenPacket = listenUDP
	}
	if d.Interfaces == nil {
		d.Interfaces = net.Interfaces
	}
	if d.InterfaceByName == nil {
		d.InterfaceByName = net.InterfaceByName
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Factory{deps: d, log: log}
}

// resolveUDP is family agnostic: literals (with IPv6 zones) and names both work.
func resolveUDP(ctx context.Context, host, port string) (*net.UDPAddr, error) {
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %q", host)
	}
	p, err := net.DefaultResolver.LookupPort(ctx, "udp", port)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ips[0].IP, Port: p, Zone: ips[0].Zone}, nil
}

func listenUDP(ctx context.Context, network, address string, reuseAddr bool) (net.PacketConn, error) {
	var lc net.ListenConfig
	if reuseAddr {
		lc.Control = reuseAddrControl
	}
	return lc.ListenPacket(ctx, network, address)
}

// releaser collects cleanups for resources acquired so far. On a failed
// setup every one of them runs, most recent first.
type releaser struct {
	fns []func() error
}

func (r *releaser) add(fn func() error) { r.fns = append(r.fns, fn) }

func (r *releaser) release() error {
	var result *multierror.Error
	for i := len(r.fns) - 1; i >= 0; i-- {
		if err := r.fns[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	r.fns = nil
	return result.ErrorOrNil()
}

func (f *Factory) resolveGroup(ctx context.Context, host, port string) (*net.UDPAddr, string, error) {
	dst, err := f.deps.Resolve(ctx, host, port)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s port %s: %v", ErrResolve, host, port, err)
	}
	if !dst.IP.IsMulticast() {
		return nil, "", fmt.Errorf("%w: %s", ErrNotMulticast, dst.IP)
	}
	if dst.IP.To4() != nil {
		dst.IP = dst.IP.To4()
		return dst, "udp4", nil
	}
	return dst, "udp6", nil
}

// NewSender opens a socket for sending to the group.
func (f *Factory) NewSender(ctx context.Context, opts SenderOptions) (sock *Socket, err error) {
	if opts.TTL < 0 || opts.TTL > 255 {
		return nil, fmt.Errorf("%w: ttl %d out of range 0..255", ErrSocketSetup, opts.TTL)
	}
	dst, network, err := f.resolveGroup(ctx, opts.Address, opts.Port)
	if err != nil {
		return nil, err
	}

	var rel releaser
	defer func() {
		if err != nil {
			if rerr := rel.release(); rerr != nil {
				err = multierror.Append(err, rerr)
			}
		}
	}()

	conn, err := f.deps.ListenPacket(ctx, network, wildcard(network, "0"), false)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s socket: %v", ErrSocketSetup, network, err)
	}
	rel.add(conn.Close)

	if network == "udp4" {
		err = f.configureSender4(conn, opts)
	} else {
		err = f.configureSender6(conn, opts)
	}
	if err != nil {
		return nil, err
	}

	f.log.Debug("multicast sender ready",
		logx.String("group", dst.String()),
		logx.String("iface", opts.Interface),
		logx.Int("ttl", opts.TTL),
		logx.Bool("loopback", opts.Loopback))
	return &Socket{conn: conn, dst: *dst, ipv6: network == "udp6"}, nil
}

func (f *Factory) configureSender4(conn net.PacketConn, opts SenderOptions) error {
	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastTTL(opts.TTL); err != nil {
		return fmt.Errorf("%w: IP_MULTICAST_TTL: %v", ErrSocketSetup, err)
	}
	if opts.Interface != "" {
		ip, err := f.interfaceAddr4(opts.Interface)
		if err != nil {
			return err
		}
		if err := setMulticastIfAddr(conn, ip); err != nil {
			return fmt.Errorf("%w: IP_MULTICAST_IF %s (%s): %v", ErrSocketSetup, opts.Interface, ip, err)
		}
	}
	if !opts.Loopback {
		if err := p.SetMulticastLoopback(false); err != nil {
			return fmt.Errorf("%w: IP_MULTICAST_LOOP: %v", ErrSocketSetup, err)
		}
	}
	return nil
}

func (f *Factory) configureSender6(conn net.PacketConn, opts SenderOptions) error {
	p := ipv6.NewPacketConn(conn)
	if err := p.SetMulticastHopLimit(opts.TTL); err != nil {
		return fmt.Errorf("%w: IPV6_MULTICAST_HOPS: %v", ErrSocketSetup, err)
	}
	if opts.Interface != "" {
		ifi, err := f.interfaceIndex6(opts.Interface)
		if err != nil {
			return err
		}
		if err := p.SetMulticastInterface(ifi); err != nil {
			return fmt.Errorf("%w: IPV6_MULTICAST_IF %s (index %d): %v", ErrSocketSetup, ifi.Name, ifi.Index, err)
		}
	}
	if !opts.Loopback {
		if err := p.SetMulticastLoopback(false); err != nil {
			return fmt.Errorf("%w: IPV6_MULTICAST_LOOP: %v", ErrSocketSetup, err)
		}
	}
	return nil
}

// NewReceiver opens a socket bound to the group's port on the wildcard
// address and joins the group.
func (f *Factory) NewReceiver(ctx context.Context, opts ReceiverOptions) (sock *Socket, err error) {
	dst, network, err := f.resolveGroup(ctx, opts.Address, opts.Port)
	if err != nil {
		return nil, err
	}

	var rel releaser
	defer func() {
		if err != nil {
			if rerr := rel.release(); rerr != nil {
				err = multierror.Append(err, rerr)
			}
		}
	}()

	conn, err := f.deps.ListenPacket(ctx, network, wildcard(network, strconv.Itoa(dst.Port)), true)
	if err != nil {
		return nil, fmt.Errorf("%w: bind %s port %d: %v", ErrSocketSetup, network, dst.Port, err)
	}
	rel.add(conn.Close)

	if network == "udp4" {
		var ifAddr net.IP
		if opts.Interface != "" {
			if ifAddr, err = f.interfaceAddr4(opts.Interface); err != nil {
				return nil, err
			}
		}
		if err = joinGroup4(conn, dst.IP, ifAddr); err != nil {
			return nil, fmt.Errorf("%w: IP_ADD_MEMBERSHIP %s: %v", ErrSocketSetup, dst.IP, err)
		}
	} else {
		var ifi *net.Interface
		if opts.Interface != "" {
			if ifi, err = f.interfaceIndex6(opts.Interface); err != nil {
				return nil, err
			}
		}
		if err = ipv6.NewPacketConn(conn).JoinGroup(ifi, &net.UDPAddr{IP: dst.IP}); err != nil {
			return nil, fmt.Errorf("%w: IPV6_JOIN_GROUP %s: %v", ErrSocketSetup, dst.IP, err)
		}
	}

	f.log.Debug("multicast receiver ready",
		logx.String("group", dst.String()),
		logx.String("iface", opts.Interface),
		logx.String("local", conn.LocalAddr().String()))
	return &Socket{conn: conn, dst: *dst, ipv6: network == "udp6"}, nil
}

// interfaceAddr4 scans local interfaces for name and returns its first IPv4
// address.
func (f *Factory) interfaceAddr4(name string) (net.IP, error) {
	ifs, err := f.deps.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: list interfaces: %v", ErrSocketSetup, err)
	}
	for i := range ifs {
		if ifs[i].Name != name {
			continue
		}
		addrs, err := ifs[i].Addrs()
		if err != nil {
			return nil, fmt.Errorf("%w: %s addresses: %v", ErrSocketSetup, name, err)
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil {
				return ip4, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %w: %s has no IPv4 address", ErrSocketSetup, ErrNoInterface, name)
}

func (f *Factory) interfaceIndex6(name string) (*net.Interface, error) {
	ifi, err := f.deps.InterfaceByName(name)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: %w: %s: %v", ErrSocketSetup, ErrNoInterface, name, err)
	case ifi == nil || ifi.Index == 0:
		return nil, fmt.Errorf("%w: %w: %s has no interface index", ErrSocketSetup, ErrNoInterface, name)
	}
	return ifi, nil
}

func wildcard(network, port string) string {
	if network == "udp6" {
		return net.JoinHostPort("::", port)
	}
	return net.JoinHostPort("0.0.0.0", port)
}
