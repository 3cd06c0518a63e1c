package receiver

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	logx "eventcast/pkg/logx"
)

type read struct {
	data []byte
	err  error
}

// scriptedConn replays reads, then blocks until closed.
type scriptedConn struct {
	reads  chan read
	closed chan struct{}
	once   sync.Once
}

func newScriptedConn(rs ...read) *scriptedConn {
	c := &scriptedConn{reads: make(chan read, len(rs)), closed: make(chan struct{})}
	for _, r := range rs {
		c.reads <- r
	}
	return c
}

func (c *scriptedConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, nil, r.err
		}
		n := copy(b, r.data)
		return n, &net.UDPAddr{IP: net.ParseIP("fe80::1"), Port: 8000}, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestPayload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"hello\x00", "hello"},
		{"hello", "hello"},
		{"a\x00b\x00", "a"},
		{"\x00", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := string(Payload([]byte(tt.in))); got != tt.want {
			t.Fatalf("Payload(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunPrintsAndSurvivesErrors(t *testing.T) {
	t.Parallel()
	long := bytes.Repeat([]byte("x"), BufferSize+100)
	conn := newScriptedConn(
		read{data: []byte("first\x00")},
		read{err: errors.New("connection refused")},
		read{data: []byte("second\x00garbage")},
		read{data: long},
	)
	var out syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(conn, &out, logx.Nop()).Run(ctx) }()

	want := "first\nsecond\n" + string(long[:BufferSize]) + "\n"
	deadline := time.Now().Add(5 * time.Second)
	for out.String() != want {
		if time.Now().After(deadline) {
			t.Fatalf("output = %q, want %q", out.String(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}

func TestRunReportsForeignClose(t *testing.T) {
	t.Parallel()
	conn := newScriptedConn()
	_ = conn.Close()
	err := New(conn, &syncBuffer{}, logx.Nop()).Run(context.Background())
	if !errors.Is(err, net.ErrClosed) {
		t.Fatalf("Run() = %v, want net.ErrClosed", err)
	}
}
