package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   bool
		want  bool
	}{
		{"unset uses default", "", true, true},
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"yes uppercase", "YES", false, true},
		{"on with spaces", "  on  ", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"off", "off", true, false},
		{"garbage uses default", "maybe", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "REACHOUT_TEST_BOOL"
			if tt.value != "" {
				t.Setenv(key, tt.value)
			}
			if got := ParseBoolEnv(key, tt.def); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	key := "REACHOUT_TEST_INT"
	if got := ParseIntEnv(key, 20); got != 20 {
		t.Errorf("unset: got %d, want 20", got)
	}
	t.Setenv(key, "50")
	if got := ParseIntEnv(key, 20); got != 50 {
		t.Errorf("set: got %d, want 50", got)
	}
	t.Setenv(key, "not-a-number")
	if got := ParseIntEnv(key, 20); got != 20 {
		t.Errorf("invalid: got %d, want default 20", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	key := "REACHOUT_TEST_FLOAT"
	if got := ParseFloatEnv(key, 2.0); got != 2.0 {
		t.Errorf("unset: got %v, want 2.0", got)
	}
	t.Setenv(key, "1.5")
	if got := ParseFloatEnv(key, 2.0); got != 1.5 {
		t.Errorf("set: got %v, want 1.5", got)
	}
	t.Setenv(key, "fast")
	if got := ParseFloatEnv(key, 2.0); got != 2.0 {
		t.Errorf("invalid: got %v, want default 2.0", got)
	}
}

func TestParseMillisEnv(t *testing.T) {
	key := "REACHOUT_TEST_MS"
	if got := ParseMillisEnv(key, 5*time.Second); got != 5*time.Second {
		t.Errorf("unset: got %v, want 5s", got)
	}
	t.Setenv(key, "2500")
	if got := ParseMillisEnv(key, 5*time.Second); got != 2500*time.Millisecond {
		t.Errorf("set: got %v, want 2.5s", got)
	}
	t.Setenv(key, "-100")
	if got := ParseMillisEnv(key, time.Second); got != time.Second {
		t.Errorf("negative: got %v, want default 1s", got)
	}
	t.Setenv(key, "soon")
	if got := ParseMillisEnv(key, time.Second); got != time.Second {
		t.Errorf("invalid: got %v, want default 1s", got)
	}
}
