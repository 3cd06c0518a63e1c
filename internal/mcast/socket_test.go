package mcast

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	logx "eventcast/pkg/logx"
)

// recordingListener wraps the real listener and remembers every socket it opened.
type recordingListener struct {
	mu    sync.Mutex
	calls int
	conns []net.PacketConn
}

func (r *recordingListener) listen(ctx context.Context, network, address string, reuse bool) (net.PacketConn, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	c, err := listenUDP(ctx, network, address, reuse)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.conns = append(r.conns, c)
	r.mu.Unlock()
	return c, nil
}

func assertClosed(t *testing.T, c net.PacketConn) {
	t.Helper()
	_, err := c.WriteTo([]byte("x"), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9})
	if !errors.Is(err, net.ErrClosed) {
		t.Fatalf("WriteTo on released socket = %v, want net.ErrClosed", err)
	}
}

func TestNewSenderRejectsBeforeOpeningSocket(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		opts SenderOptions
		want error
	}{
		{"unicast v4", SenderOptions{Address: "127.0.0.1", Port: "8000", TTL: 1}, ErrNotMulticast},
		{"unicast v6", SenderOptions{Address: "::1", Port: "8000", TTL: 1}, ErrNotMulticast},
		{"empty address", SenderOptions{Address: "", Port: "8000", TTL: 1}, ErrResolve},
		{"unknown service", SenderOptions{Address: "239.1.2.3", Port: "no-such-service-eventcast", TTL: 1}, ErrResolve},
		{"ttl too large", SenderOptions{Address: "239.1.2.3", Port: "8000", TTL: 256}, ErrSocketSetup},
		{"ttl negative", SenderOptions{Address: "239.1.2.3", Port: "8000", TTL: -1}, ErrSocketSetup},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := &recordingListener{}
			f := NewFactory(&Dependencies{ListenPacket: rec.listen}, logx.Nop())
			sock, err := f.NewSender(context.Background(), tc.opts)
			if sock != nil {
				t.Fatalf("NewSender returned a socket on failure")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("NewSender err = %v, want %v", err, tc.want)
			}
			if rec.calls != 0 {
				t.Fatalf("ListenPacket calls = %d, want 0", rec.calls)
			}
		})
	}
}

func TestNewReceiverRejectsUnicast(t *testing.T) {
	t.Parallel()
	rec := &recordingListener{}
	f := NewFactory(&Dependencies{ListenPacket: rec.listen}, logx.Nop())
	_, err := f.NewReceiver(context.Background(), ReceiverOptions{Address: "10.0.0.1", Port: "8000"})
	if !errors.Is(err, ErrNotMulticast) {
		t.Fatalf("NewReceiver err = %v, want ErrNotMulticast", err)
	}
	if rec.calls != 0 {
		t.Fatalf("ListenPacket calls = %d, want 0", rec.calls)
	}
}

func TestNewSenderReleasesSocketOnUnknownInterface(t *testing.T) {
	t.Parallel()
	rec := &recordingListener{}
	f := NewFactory(&Dependencies{
		ListenPacket: rec.listen,
		Interfaces:   func() ([]net.Interface, error) { return nil, nil },
	}, logx.Nop())

	_, err := f.NewSender(context.Background(), SenderOptions{
		Address: "239.1.2.3", Port: "8000", Interface: "nonexistent0", TTL: 1, Loopback: true,
	})
	if !errors.Is(err, ErrSocketSetup) || !errors.Is(err, ErrNoInterface) {
		t.Fatalf("NewSender err = %v, want ErrSocketSetup wrapping ErrNoInterface", err)
	}
	if len(rec.conns) != 1 {
		t.Fatalf("opened sockets = %d, want 1", len(rec.conns))
	}
	assertClosed(t, rec.conns[0])
}

func TestNewReceiverReleasesSocketOnUnknownInterface(t *testing.T) {
	t.Parallel()
	rec := &recordingListener{}
	f := NewFactory(&Dependencies{
		ListenPacket: rec.listen,
		Interfaces:   func() ([]net.Interface, error) { return nil, nil },
	}, logx.Nop())

	_, err := f.NewReceiver(context.Background(), ReceiverOptions{
		Address: "239.1.2.3", Port: "0", Interface: "nonexistent0",
	})
	if !errors.Is(err, ErrNoInterface) {
		t.Fatalf("NewReceiver err = %v, want ErrNoInterface", err)
	}
	if len(rec.conns) != 1 {
		t.Fatalf("opened sockets = %d, want 1", len(rec.conns))
	}
	assertClosed(t, rec.conns[0])
}

func TestNewSenderReportsOpenFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("no sockets left")
	f := NewFactory(&Dependencies{
		ListenPacket: func(context.Context, string, string, bool) (net.PacketConn, error) { return nil, boom },
	}, logx.Nop())
	_, err := f.NewSender(context.Background(), SenderOptions{Address: "ff02::2:3:2:4", Port: "8000", TTL: 1})
	if !errors.Is(err, ErrSocketSetup) {
		t.Fatalf("NewSender err = %v, want ErrSocketSetup", err)
	}
}

func TestNewSenderIPv4(t *testing.T) {
	t.Parallel()
	f := NewFactory(nil, logx.Nop())
	sock, err := f.NewSender(context.Background(), SenderOptions{
		Address: "239.255.12.34", Port: "8000", TTL: 1, Loopback: false,
	})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sock.Close()

	if sock.IPv6() {
		t.Fatalf("IPv6() = true, want false")
	}
	dst := sock.Destination()
	if !dst.IP.Equal(net.IPv4(239, 255, 12, 34)) || dst.Port != 8000 {
		t.Fatalf("Destination() = %v, want 239.255.12.34:8000", dst)
	}
	dst.IP[0] = 1
	if got := sock.Destination(); !got.IP.Equal(net.IPv4(239, 255, 12, 34)) {
		t.Fatalf("Destination() aliased internal state: %v", got)
	}
}

func TestReleaserRunsInReverseAndAggregates(t *testing.T) {
	t.Parallel()
	var order []int
	var r releaser
	r.add(func() error { order = append(order, 1); return errors.New("first") })
	r.add(func() error { order = append(order, 2); return nil })
	r.add(func() error { order = append(order, 3); return errors.New("third") })

	err := r.release()
	if err == nil {
		t.Fatalf("release() = nil, want aggregated error")
	}
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Fatalf("release order = %v, want [3 2 1]", order)
	}
	if err := r.release(); err != nil {
		t.Fatalf("second release() = %v, want nil", err)
	}
}

func TestNewReceiverRejectsBeforeOpeningSocket(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		opts ReceiverOptions
		want error
	}{
		{"empty address", ReceiverOptions{Address: "", Port: "8000"}, ErrResolve},
		{"unresolvable host", ReceiverOptions{Address: "no-such-host.invalid", Port: "8000"}, ErrResolve},
		{"unknown service", ReceiverOptions{Address: "239.1.2.3", Port: "no-such-service-eventcast"}, ErrResolve},
		{"unicast", ReceiverOptions{Address: "192.0.2.1", Port: "8000"}, ErrNotMulticast},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := &recordingListener{}
			f := NewFactory(&Dependencies{ListenPacket: rec.listen}, logx.Nop())
			sock, err := f.NewReceiver(context.Background(), tc.opts)
			if sock != nil {
				t.Fatalf("NewReceiver returned a socket on failure")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("NewReceiver err = %v, want %v", err, tc.want)
			}
			if rec.calls != 0 {
				t.Fatalf("ListenPacket calls = %d, want 0", rec.calls)
			}
		})
	}
}

func TestSenderToReceiverRoundTrip(t *testing.T) {
	t.Parallel()
	f := NewFactory(nil, logx.Nop())
	ctx := context.Background()

	// Port 0 binds an ephemeral port; the sender then targets that port.
	recv, err := f.NewReceiver(ctx, ReceiverOptions{Address: "239.255.77.1", Port: "0"})
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	defer recv.Close()
	if recv.IPv6() {
		t.Fatalf("receiver IPv6() = true, want false")
	}
	port := recv.Conn().LocalAddr().(*net.UDPAddr).Port

	send, err := f.NewSender(ctx, SenderOptions{
		Address: "239.255.77.1", Port: strconv.Itoa(port), TTL: 3, Loopback: true,
	})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer send.Close()

	pc := ipv4.NewPacketConn(send.Conn())
	if ttl, err := pc.MulticastTTL(); err != nil || ttl != 3 {
		t.Fatalf("MulticastTTL() = %d, %v, want 3", ttl, err)
	}
	if on, err := pc.MulticastLoopback(); err != nil || !on {
		t.Fatalf("MulticastLoopback() = %v, %v, want true", on, err)
	}

	if n, err := send.Send([]byte("hi\x00")); err != nil {
		if strings.Contains(err.Error(), "unreachable") {
			t.Skipf("no multicast route: %v", err)
		}
		t.Fatalf("Send: %v", err)
	} else if n != 3 {
		t.Fatalf("Send wrote %d bytes, want 3", n)
	}

	_ = recv.Conn().SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	n, _, err := recv.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got := string(buf[:n]); got != "hi\x00" {
		t.Fatalf("payload = %q, want %q", got, "hi\x00")
	}
}

func TestNewSenderIPv6(t *testing.T) {
	t.Parallel()
	lc, err := net.ListenPacket("udp6", "[::1]:0")
	if err != nil {
		t.Skipf("IPv6 unavailable: %v", err)
	}
	lc.Close()

	f := NewFactory(nil, logx.Nop())
	sock, err := f.NewSender(context.Background(), SenderOptions{
		Address: "ff02::2:3:2:4", Port: "8000", TTL: 2, Loopback: false,
	})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sock.Close()

	if !sock.IPv6() {
		t.Fatalf("IPv6() = false, want true")
	}
	pc := ipv6.NewPacketConn(sock.Conn())
	if hops, err := pc.MulticastHopLimit(); err != nil || hops != 2 {
		t.Fatalf("MulticastHopLimit() = %d, %v, want 2", hops, err)
	}
	if on, err := pc.MulticastLoopback(); err != nil || on {
		t.Fatalf("MulticastLoopback() = %v, %v, want false", on, err)
	}
	if _, err := sock.Send([]byte("x\x00")); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestInterfaceIndexZero(t *testing.T) {
	t.Parallel()
	f := NewFactory(&Dependencies{
		InterfaceByName: func(name string) (*net.Interface, error) { return &net.Interface{Name: name}, nil },
	}, logx.Nop())
	_, err := f.interfaceIndex6("dummy0")
	if !errors.Is(err, ErrNoInterface) {
		t.Fatalf("interfaceIndex6 err = %v, want ErrNoInterface", err)
	}
	if strings.Contains(err.Error(), "<nil>") {
		t.Fatalf("error text %q mentions a nil error", err)
	}
}
