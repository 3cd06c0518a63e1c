// Package receiver prints the text payloads arriving on a multicast socket.
package receiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	logx "eventcast/pkg/logx"
)

// BufferSize bounds one received datagram; longer ones are truncated.
const BufferSize = 512

const (
	errPause   = 50 * time.Millisecond
	errLogRate = 1
)

// Conn is the receiving side of a packet connection.
type Conn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	Close() error
}

type Receiver struct {
	conn Conn
	out  io.Writer
	log  logx.Logger
	errs *logx.Sampled
}

func New(conn Conn, out io.Writer, log logx.Logger) *Receiver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Receiver{
		conn: conn,
		out:  out,
		log:  log,
		errs: logx.NewSampled(log, errLogRate),
	}
}

// Payload returns the text of a datagram: everything before the first NUL.
func Payload(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

// Run prints one line per datagram until ctx is canceled, which also closes
// the connection. Receive errors are logged and receiving continues; only a
// connection closed by someone else ends the loop with an error.
func (r *Receiver) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.conn.Close() })
	defer stop()

	buf := make([]byte, BufferSize)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			r.errs.Warn("receive failed", logx.Err(err))
			t := time.NewTimer(errPause)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			continue
		}

		text := Payload(buf[:n])
		if _, err := fmt.Fprintf(r.out, "%s\n", text); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if r.log.Enabled(logx.LevelDebug) {
			src := ""
			if from != nil {
				src = from.String()
			}
			r.log.Debug("datagram received", logx.String("from", src), logx.Int("bytes", n))
		}
	}
}
