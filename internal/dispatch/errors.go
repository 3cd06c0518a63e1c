package dispatch

import "errors"

// ErrSend is returned by Worker.Run when the shared socket rejects a datagram.
// A failed broadcast is not retried: the daemon treats it as fatal.
var ErrSend = errors.New("multicast send failed")
