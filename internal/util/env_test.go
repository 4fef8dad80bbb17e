package util

import (
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("HM_TEST_STR", "  value ")
	if got := GetEnvOrDefault("HM_TEST_STR", "x"); got != "value" {
		t.Errorf("expected trimmed value, got %q", got)
	}
	t.Setenv("HM_TEST_STR", "   ")
	if got := GetEnvOrDefault("HM_TEST_STR", "x"); got != "x" {
		t.Errorf("expected default for blank value, got %q", got)
	}
	if got := GetEnvOrDefault("HM_TEST_UNSET_STR", "x"); got != "x" {
		t.Errorf("expected default for unset key, got %q", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"1", false, true},
		{"false", true, false},
		{"Off", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Setenv("HM_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("HM_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, expected %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	def := 2 * time.Hour
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", def},
		{"90m", 90 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"45", 45 * time.Minute},
		{"0", def},
		{"-5m", def},
		{"soon", def},
	}
	for _, tt := range tests {
		t.Setenv("HM_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("HM_TEST_DURATION", def); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %s, expected %s", tt.value, got, tt.want)
		}
	}
}
