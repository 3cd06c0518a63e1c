package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"eventcast/internal/event"
	logx "eventcast/pkg/logx"
)

func TestParseLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		line   string
		after  time.Duration
		during time.Duration
		desc   string
	}{
		{name: "basic", line: "1 2 abc", after: time.Second, during: 2 * time.Second, desc: "abc"},
		{name: "no description", line: "1 2", after: time.Second, during: 2 * time.Second, desc: ""},
		{name: "spaces kept in description", line: "5 0 hello  multicast world", after: 5 * time.Second, desc: "hello  multicast world"},
		{name: "hex", line: "0x10 0 x", after: 16 * time.Second, desc: "x"},
		{name: "octal", line: "010 011 y", after: 8 * time.Second, during: 9 * time.Second, desc: "y"},
		{name: "zero", line: "0 0 z", desc: "z"},
		{name: "trailing space", line: "3 4 ", after: 3 * time.Second, during: 4 * time.Second, desc: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine(%q) error: %v", tt.line, err)
			}
			if got.RepeatAfter != tt.after {
				t.Fatalf("RepeatAfter = %v, want %v", got.RepeatAfter, tt.after)
			}
			if got.RepeatDuring != tt.during {
				t.Fatalf("RepeatDuring = %v, want %v", got.RepeatDuring, tt.during)
			}
			if got.Description != tt.desc {
				t.Fatalf("Description = %q, want %q", got.Description, tt.desc)
			}
		})
	}
}

func TestParseLineInvalid(t *testing.T) {
	t.Parallel()
	for _, line := range []string{
		"-1 2 abc",
		"1 -2 abc",
		"abc 2 x",
		"1 abc x",
		"1",
		"1  2 x",
		"08 1 x",
		"0x 1 x",
		"99999999999999999999 1 x",
		"",
	} {
		if _, err := ParseLine(line); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("ParseLine(%q) error = %v, want ErrInvalidFormat", line, err)
		}
	}
}

func TestParseLineTruncatesDescription(t *testing.T) {
	t.Parallel()
	ev, err := ParseLine("1 1 " + strings.Repeat("d", 1000))
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if len(ev.Description) != event.MaxDescriptionLen {
		t.Fatalf("len(Description) = %d, want %d", len(ev.Description), event.MaxDescriptionLen)
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	content := strings.Join([]string{
		"# schedule",
		"",
		"bogus line",
		"2 10 first",
		"#3 3 commented out",
		"0 0 second",
		"",
	}, "\n")
	if err := afero.WriteFile(fs, "/etc/events.txt", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := ParseFile(fs, "/etc/events.txt", logx.Nop())
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	vals := list.Values()
	if len(vals) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(vals), vals)
	}
	if vals[0].Description != "first" || vals[1].Description != "second" {
		t.Fatalf("unexpected events: %+v", vals)
	}
}

func TestParseFileInvalidThenValid(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "events.txt", []byte("x y z\r\n1 2 ok\r\n"), 0o644)

	list, err := ParseFile(fs, "events.txt", logx.Nop())
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if list.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", list.Len())
	}
	ev, _ := list.Pop()
	if ev != event.New(1, 2, "ok") {
		t.Fatalf("event = %+v", ev)
	}
}

func TestParseFileEmpty(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "empty.txt", nil, 0o644)
	list, err := ParseFile(fs, "empty.txt", logx.Nop())
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if !list.Empty() {
		t.Fatalf("Len() = %d, want 0", list.Len())
	}
}

func TestParseFileMissing(t *testing.T) {
	t.Parallel()
	_, err := ParseFile(afero.NewMemMapFs(), "nope.txt", logx.Nop())
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("error = %v, want ErrOpen", err)
	}
}

func TestParseFileSkipsOverlongLine(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	long := "1 0 " + strings.Repeat("x", 70*1024)
	body := long + "\n2 0 ok\n" + "3 0 " + strings.Repeat("y", maxLineLen-4)
	_ = afero.WriteFile(fs, "e.txt", []byte(body), 0o644)

	list, err := ParseFile(fs, "e.txt", logx.Nop())
	if err != nil {
		t.Fatalf("ParseFile() = %v, want nil", err)
	}
	got := list.Values()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Description != "ok" || got[0].RepeatAfter != 2*time.Second {
		t.Fatalf("first = %+v, want the line after the overlong one", got[0])
	}
	if got[1].RepeatAfter != 3*time.Second || len(got[1].Description) != event.MaxDescriptionLen {
		t.Fatalf("second = %+v, want a line of exactly the maximum length", got[1])
	}
}
