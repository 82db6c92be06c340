// Package iteration resolves the reporting window for a report run.
package iteration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AllTimeName labels the unbounded fallback window.
const AllTimeName = "All Time"

// DateLayout is the calendar date layout used by configuration and the
// schedule file.
const DateLayout = "2006-01-02"

// Window origins.
const (
	OriginConfigured = "configured"
	OriginProject    = "project"
	OriginAllTime    = "all_time"
)

var lastNumber = regexp.MustCompile(`(\d+)(\D*)$`)

// Window is the reporting window of one run. Both bounds are inclusive; a
// zero Start or End is unbounded on that side.
type Window struct {
	Name   string
	Start  time.Time
	End    time.Time
	Origin string
}

// AllTime returns the unbounded window.
func AllTime() Window {
	return Window{Name: AllTimeName, Origin: OriginAllTime}
}

// IsAllTime reports whether neither bound is set.
func (w Window) IsAllTime() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether ts falls inside the window, bounds included.
func (w Window) Contains(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	if !w.Start.IsZero() && ts.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && ts.After(w.End) {
		return false
	}
	return true
}

// Validate checks the bound ordering.
func (w Window) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("iteration name is required")
	}
	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return fmt.Errorf("iteration %q ends before it starts", w.Name)
	}
	return nil
}

// In returns the window with both bounds expressed in loc.
func (w Window) In(loc *time.Location) Window {
	if !w.Start.IsZero() {
		w.Start = w.Start.In(loc)
	}
	if !w.End.IsZero() {
		w.End = w.End.In(loc)
	}
	return w
}

// ParseBound parses a configured bound. Dates (YYYY-MM-DD) become the start
// of the day in loc, or its last second when endOfDay is set. RFC 3339 values
// keep their instant.
func ParseBound(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if day, err := time.ParseInLocation(DateLayout, trimmed, loc); err == nil {
		if endOfDay {
			return EndOfDay(day), nil
		}
		return day, nil
	}
	if instant, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return instant.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("parse iteration bound %q: want YYYY-MM-DD or RFC 3339", raw)
}

// EndOfDay returns 23:59:59 of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 23, 59, 59, 0, t.Location())
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// NextName increments the last number in name, or appends " 2" when it has none.
func NextName(name string) string {
	trimmed := strings.TrimSpace(name)
	if next, ok := shiftNumber(trimmed, 1); ok {
		return next
	}
	if trimmed == "" {
		return "Iteration 2"
	}
	return trimmed + " 2"
}

// PreviousName decrements the last number in name, or returns
// "Previous Iteration" when it has none to decrement.
func PreviousName(name string) string {
	if previous, ok := shiftNumber(strings.TrimSpace(name), -1); ok {
		return previous
	}
	return "Previous Iteration"
}

func shiftNumber(name string, delta int) (string, bool) {
	loc := lastNumber.FindStringSubmatchIndex(name)
	if loc == nil {
		return "", false
	}
	digits := name[loc[2]:loc[3]]
	value, err := strconv.Atoi(digits)
	if err != nil || value+delta < 0 {
		return "", false
	}
	shifted := strconv.Itoa(value + delta)
	if len(shifted) < len(digits) {
		shifted = strings.Repeat("0", len(digits)-len(shifted)) + shifted
	}
	return name[:loc[2]] + shifted + name[loc[3]:], true
}
