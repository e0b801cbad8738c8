package aggregate

import (
	"fmt"
	"time"
)

// Window is a fixed lookback period keyed like "24h" or "7d".
type Window string

const (
	Window24h Window = "24h"
	Window72h Window = "72h"
	Window7d  Window = "7d"
	Window30d Window = "30d"
	Window60d Window = "60d"
	Window90d Window = "90d"
)

// Windows lists every window in ascending length.
var Windows = []Window{Window24h, Window72h, Window7d, Window30d, Window60d, Window90d}

var windowHours = map[Window]int{
	Window24h: 24,
	Window72h: 72,
	Window7d:  168,
	Window30d: 720,
	Window60d: 1440,
	Window90d: 2160,
}

var windowLabels = map[Window]string{
	Window24h: "Last 24 hours",
	Window72h: "Last 72 hours",
	Window7d:  "Last 7 days",
	Window30d: "Last 30 days",
	Window60d: "Last 60 days",
	Window90d: "Last 90 days",
}

// ParseWindow validates a window key.
func ParseWindow(key string) (Window, error) {
	w := Window(key)
	if _, ok := windowHours[w]; !ok {
		return "", fmt.Errorf("unknown window %q", key)
	}
	return w, nil
}

// Hours returns the window length in hours, zero for an unknown key.
func (w Window) Hours() int {
	return windowHours[w]
}

// Label returns the display label of the window.
func (w Window) Label() string {
	return windowLabels[w]
}

// Days is ceil(hours / 24).
func (w Window) Days() int {
	return (w.Hours() + 23) / 24
}

// Since returns the inclusive lower bound of the window ending at now.
func (w Window) Since(now time.Time) time.Time {
	return now.Add(-time.Duration(w.Hours()) * time.Hour)
}

// FilterByWindow keeps items measured within [now - hours, now].
// Items without a measurement time are dropped, never treated as now.
func FilterByWindow[T Measured](items []T, w Window, now time.Time) []T {
	since := w.Since(now)
	out := make([]T, 0, len(items))
	for _, item := range items {
		at, ok := item.MeasuredAt()
		if !ok || at.Before(since) || at.After(now) {
			continue
		}
		out = append(out, item)
	}
	return out
}
