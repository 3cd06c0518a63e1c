package config

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"eventcast/internal/event"
	logx "eventcast/pkg/logx"
)

// maxLineLen bounds a single events-file line. Longer lines are skipped.
const maxLineLen = 64 * 1024

// ParseLine parses "<repeat_after> <repeat_during> <description...>".
//
// Fields are separated by exactly one space. Both numbers are non-negative
// integers in C notation (0x.. hex, leading 0 octal, decimal otherwise).
// Everything after the second space is the description; a line holding only
// the two numbers has an empty one.
func ParseLine(line string) (event.Event, error) {
	first, rest, ok := strings.Cut(line, " ")
	if !ok {
		return event.Event{}, fmt.Errorf("%w: missing repeat_during", ErrInvalidFormat)
	}
	after, err := parseSeconds(first)
	if err != nil {
		return event.Event{}, fmt.Errorf("%w: repeat_after: %v", ErrInvalidFormat, err)
	}

	second, desc, _ := strings.Cut(rest, " ")
	during, err := parseSeconds(second)
	if err != nil {
		return event.Event{}, fmt.Errorf("%w: repeat_during: %v", ErrInvalidFormat, err)
	}

	return event.New(after, during, desc), nil
}

// parseSeconds accepts what strtoul(s, 0) would, minus signs.
func parseSeconds(tok string) (int64, error) {
	if tok == "" {
		return 0, fmt.Errorf("empty number")
	}
	if tok[0] == '-' {
		return 0, fmt.Errorf("negative value %q", tok)
	}
	digits := strings.TrimPrefix(tok, "+")

	base := 10
	switch {
	case len(digits) > 2 && (digits[:2] == "0x" || digits[:2] == "0X"):
		base, digits = 16, digits[2:]
	case len(digits) > 1 && digits[0] == '0':
		base, digits = 8, digits[1:]
	}
	v, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", tok)
	}
	// Seconds are stored as a time.Duration.
	if v > math.MaxInt64/int64(time.Second) {
		return 0, fmt.Errorf("value %q out of range", tok)
	}
	return v, nil
}

// readLine returns the next line without its line ending. A line longer than
// maxLineLen is consumed and reported as overlong. io.EOF is returned only
// when no bytes were left.
func readLine(r *bufio.Reader) (string, bool, error) {
	var (
		buf  []byte
		size int
		read bool
	)
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if err == io.EOF && read {
				break
			}
			return "", false, err
		}
		read = true
		size += len(chunk)
		if size <= maxLineLen {
			buf = append(buf, chunk...)
		}
		if !isPrefix {
			break
		}
	}
	if size > maxLineLen {
		return "", true, nil
	}
	return string(buf), false, nil
}

// ParseFile reads an events file into a fresh list.
//
// Blank lines and lines starting with '#' are ignored. Malformed lines are
// logged and skipped. The only failure is an unreadable file.
func ParseFile(fs afero.Fs, path string, log logx.Logger) (*event.List, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer f.Close()

	list := event.NewList()
	r := bufio.NewReader(f)
	n := 0
	for {
		line, overlong, err := readLine(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			list.Destroy()
			return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
		}
		n++
		if overlong {
			log.Warn("skipping overlong event line", logx.Int("line", n), logx.Int("max", maxLineLen))
			continue
		}
		log.Trace("config_parse", logx.Int("line", n), logx.String("text", line))

		if line == "" || line[0] == '#' {
			continue
		}
		ev, err := ParseLine(line)
		if err != nil {
			log.Warn("skipping invalid event", logx.Int("line", n), logx.String("text", line), logx.Err(err))
			continue
		}
		list.Push(ev)
	}

	log.Debug("events loaded", logx.String("path", path), logx.Int("events", list.Len()))
	return list, nil
}
