package cli

import (
	"testing"
)

func TestParseAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  Action
		ok    bool
	}{
		{"0", ActionExit, true},
		{"1", ActionCreateSession, true},
		{"2", ActionListSessions, true},
		{"18", ActionPoolUsage, true},
		{"19", ActionExit, false},
		{"-1", ActionExit, false},
		{"abc", ActionExit, false},
		{"1x", ActionExit, false},
	}
	for _, tt := range tests {
		got, ok := parseAction(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("parseAction(%q) = (%v, %t), want (%v, %t)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMenuEntriesMatchActions(t *testing.T) {
	t.Parallel()

	// Каждое действие перечисления присутствует в меню ровно один раз.
	seen := make(map[Action]int, len(menuEntries))
	for _, e := range menuEntries {
		seen[e.action]++
	}
	for a := ActionExit; a <= ActionPoolUsage; a++ {
		if seen[a] != 1 {
			t.Fatalf("action %d appears %d times in menu, want 1", a, seen[a])
		}
	}
}

func TestParseIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		total   int
		want    int
		wantErr bool
	}{
		{"1", 3, 0, false},
		{"3", 3, 2, false},
		{"0", 3, 0, true},
		{"4", 3, 0, true},
		{"x", 3, 0, true},
	}
	for _, tt := range tests {
		var idx int
		_, err := parseIndex(tt.input, tt.total, &idx)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseIndex(%q, %d) error = %v, wantErr %t", tt.input, tt.total, err, tt.wantErr)
		}
		if err == nil && idx != tt.want {
			t.Fatalf("parseIndex(%q, %d) = %d, want %d", tt.input, tt.total, idx, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"", 10, "-"},
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"this is a longer string", 10, "this is a…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
