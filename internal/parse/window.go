package parse

import (
	"fmt"
	"regexp"
	"strings"

	"clinic-queue-backend/internal/clock"
)

// windowRe accepts "09:00-13:00", "9:00 - 13:00" and "09:00~13:00".
var windowRe = regexp.MustCompile(`^\s*(\d{1,2}:\d{2})\s*[-~]\s*(\d{1,2}:\d{2})\s*$`)

// Window is a half-open [Start, End) range of minutes after midnight.
type Window struct {
	Start int
	End   int
}

// ParseWindow parses a doctor availability window as stored by the directory.
func ParseWindow(raw string) (Window, error) {
	m := windowRe.FindStringSubmatch(raw)
	if m == nil {
		return Window{}, fmt.Errorf("unable to parse availability window: %q", raw)
	}
	start, err := clock.ParseTimeOfDay(m[1])
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", raw, err)
	}
	end, err := clock.ParseTimeOfDay(m[2])
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", raw, err)
	}
	if end <= start {
		return Window{}, fmt.Errorf("window %q ends before it starts", raw)
	}
	return Window{Start: start, End: end}, nil
}

// ParseWindows parses every entry, skipping blanks. The first bad entry fails the lot.
func ParseWindows(raw []string) ([]Window, error) {
	out := make([]Window, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		w, err := ParseWindow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Contains reports whether minute falls inside the window.
func (w Window) Contains(minute int) bool {
	return minute >= w.Start && minute < w.End
}

func (w Window) String() string {
	return clock.FormatTimeOfDay(w.Start) + "-" + clock.FormatTimeOfDay(w.End)
}

// AnyContains reports whether any window admits minute.
func AnyContains(ws []Window, minute int) bool {
	for _, w := range ws {
		if w.Contains(minute) {
			return true
		}
	}
	return false
}
