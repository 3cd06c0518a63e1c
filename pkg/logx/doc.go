// Package logx configures eventcast's structured logging.
//
// Logger is a small wrapper on top of zerolog:
//   - Console output is readable (short timestamp and short caller)
//   - File output is JSON-structured
//   - Sampled throttles hot paths such as per-datagram debug lines
package logx
