package model

import (
	"strings"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
	}{
		{"assigned", StatusAssigned},
		{"IN_PROGRESS", StatusInProgress},
		{" blocked ", StatusBlocked},
		{"done", StatusDone},
		{"archived", StatusAssigned},
		{"", StatusAssigned},
	}
	for _, tc := range cases {
		if got := ParseStatus(tc.raw); got != tc.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	cases := []struct {
		raw  string
		want Priority
	}{
		{"low", PriorityLow},
		{"HIGH", PriorityHigh},
		{"urgent", PriorityMedium},
		{"", PriorityMedium},
	}
	for _, tc := range cases {
		if got := ParsePriority(tc.raw); got != tc.want {
			t.Errorf("ParsePriority(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestClampProgress(t *testing.T) {
	cases := []struct{ in, want int }{
		{-10, 0},
		{0, 0},
		{50, 50},
		{100, 100},
		{250, 100},
	}
	for _, tc := range cases {
		if got := ClampProgress(tc.in); got != tc.want {
			t.Errorf("ClampProgress(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestNewTaskID(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	id := NewTaskID("-1001234567890", now)
	if !strings.HasPrefix(id, "7890-") {
		t.Fatalf("id = %q, want the trailing group digits as scope", id)
	}

	if got := NewTaskID("", now); !strings.HasPrefix(got, "0-") {
		t.Fatalf("empty group id = %q", got)
	}

	later := NewTaskID("-1001234567890", now.Add(time.Millisecond))
	if id == later {
		t.Fatal("ids a millisecond apart must differ")
	}
}
