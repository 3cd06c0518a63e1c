package dispatch

import (
	"fmt"
	"io"
	"net"
	"sync"
)

// PacketWriter is the part of a packet connection the workers need.
type PacketWriter interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// SharedSocket is the one socket every worker of the daemon writes to.
// Sends are serialized by mu; the destination never changes after creation.
type SharedSocket struct {
	mu  sync.Mutex
	w   PacketWriter
	dst net.Addr
}

func NewSharedSocket(w PacketWriter, dst net.Addr) *SharedSocket {
	return &SharedSocket{w: w, dst: dst}
}

// Destination returns the group address datagrams are sent to.
func (s *SharedSocket) Destination() net.Addr { return s.dst }

// Send writes payload as a single datagram. A short write is an error.
func (s *SharedSocket) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.w.WriteTo(payload, s.dst)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("%w: wrote %d of %d bytes", io.ErrShortWrite, n, len(payload))
	}
	return nil
}
