package iteration

import (
	"testing"
	"time"
)

func TestWindowContainsBoundaries(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	start, err := ParseBound("2025-11-03", loc, false)
	if err != nil {
		t.Fatalf("ParseBound(start) unexpected error: %v", err)
	}
	end, err := ParseBound("2025-11-17", loc, true)
	if err != nil {
		t.Fatalf("ParseBound(end) unexpected error: %v", err)
	}
	window := Window{Name: "Sprint 12", Start: start, End: end}

	testCases := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{name: "exact_start", ts: start, want: true},
		{name: "second_before_start", ts: start.Add(-time.Second), want: false},
		{name: "exact_end", ts: end, want: true},
		{name: "second_after_end", ts: end.Add(time.Second), want: false},
		{name: "end_expressed_in_utc", ts: end.UTC(), want: true},
		{name: "zero_timestamp", ts: time.Time{}, want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := window.Contains(tc.ts); got != tc.want {
				t.Fatalf("Contains(%s) = %t, want %t", tc.ts, got, tc.want)
			}
		})
	}

	// 2025-11-03 follows the 2025-11-02 DST change in New York.
	if got := start.UTC().Format(time.RFC3339); got != "2025-11-03T05:00:00Z" {
		t.Fatalf("start in UTC = %s, want 2025-11-03T05:00:00Z", got)
	}
	if got := end.UTC().Format(time.RFC3339); got != "2025-11-18T04:59:59Z" {
		t.Fatalf("end in UTC = %s, want 2025-11-18T04:59:59Z", got)
	}
}

func TestAllTimeWindow(t *testing.T) {
	t.Parallel()

	window := AllTime()
	if !window.IsAllTime() || window.Name != AllTimeName || window.Origin != OriginAllTime {
		t.Fatalf("AllTime() = %+v", window)
	}
	if !window.Contains(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("AllTime().Contains() = false, want true")
	}
	if err := window.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestWindowValidate(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 11, 17, 0, 0, 0, 0, time.UTC)
	if err := (Window{Name: "bad", Start: start, End: start.Add(-time.Hour)}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for inverted bounds, got nil")
	}
	if err := (Window{Name: " "}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for blank name, got nil")
	}
}

func TestParseBound(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		raw      string
		endOfDay bool
		want     time.Time
		wantErr  bool
	}{
		{name: "date_start", raw: "2025-11-03", want: time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)},
		{name: "date_end", raw: "2025-11-17", endOfDay: true, want: time.Date(2025, 11, 17, 23, 59, 59, 0, time.UTC)},
		{name: "rfc3339", raw: "2025-11-03T09:30:00+02:00", want: time.Date(2025, 11, 3, 7, 30, 0, 0, time.UTC)},
		{name: "empty", raw: "", want: time.Time{}},
		{name: "garbage", raw: "next tuesday", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseBound(tc.raw, time.UTC, tc.endOfDay)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseBound(%q) expected error, got nil", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBound(%q) unexpected error: %v", tc.raw, err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("ParseBound(%q) = %s, want %s", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNextAndPreviousName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		wantNext     string
		wantPrevious string
	}{
		{name: "Sprint 12", wantNext: "Sprint 13", wantPrevious: "Sprint 11"},
		{name: "Iteration 09", wantNext: "Iteration 10", wantPrevious: "Iteration 08"},
		{name: "2025 Q4 Sprint 3 (platform)", wantNext: "2025 Q4 Sprint 4 (platform)", wantPrevious: "2025 Q4 Sprint 2 (platform)"},
		{name: "Sprint 0", wantNext: "Sprint 1", wantPrevious: "Previous Iteration"},
		{name: "Hardening", wantNext: "Hardening 2", wantPrevious: "Previous Iteration"},
		{name: "", wantNext: "Iteration 2", wantPrevious: "Previous Iteration"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := NextName(tc.name); got != tc.wantNext {
				t.Fatalf("NextName(%q) = %q, want %q", tc.name, got, tc.wantNext)
			}
			if got := PreviousName(tc.name); got != tc.wantPrevious {
				t.Fatalf("PreviousName(%q) = %q, want %q", tc.name, got, tc.wantPrevious)
			}
		})
	}
}
