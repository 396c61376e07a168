package util

import (
	"strings"
	"testing"
)

func isHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		hexLength int
		wantLen   int
	}{
		{"run style", "run_", 16, 20},
		{"no prefix", "", 8, 8},
		{"zero length", "x_", 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.prefix)
			}
			if len(got) != tt.wantLen {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLen)
			}
			if !isHex(got[len(tt.prefix):]) {
				t.Errorf("GenerateRandomID() hex part = %v is not valid hex", got[len(tt.prefix):])
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	if got := GenerateRandomHex(-1); got != "" {
		t.Errorf("GenerateRandomHex(-1) = %q, want empty", got)
	}
	got := GenerateRandomHex(32)
	if len(got) != 32 {
		t.Errorf("GenerateRandomHex(32) length = %v, want 32", len(got))
	}
	if !isHex(got) {
		t.Errorf("GenerateRandomHex() = %v is not valid hex", got)
	}
}

func TestGenerateRunIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateRunID()
		if seen[id] {
			t.Fatalf("GenerateRunID() generated duplicate: %v", id)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "run_") {
			t.Fatalf("GenerateRunID() = %v, want run_ prefix", id)
		}
	}
}
