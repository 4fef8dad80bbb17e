package messaging

import (
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
)

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"15551234567", "15551234567", false},
		{"+1 (555) 123-4567", "15551234567", false},
		{"whatsapp:+15551234567", "15551234567", false},
		{"", "", true},
		{"hello", "", true},
		{"+123", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("CanonicalizePhone(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = %q, %v; expected %q", tt.in, got, err, tt.want)
		}
	}
}

func TestFormatChoicePrompt(t *testing.T) {
	if got := FormatChoicePrompt("Gender?", nil); got != "Gender?" {
		t.Errorf("expected body unchanged without options, got %q", got)
	}
	got := FormatChoicePrompt("Gender?", []string{"Male", "Female", "Other"})
	if !strings.HasPrefix(got, "Gender?\n\n") || !strings.HasSuffix(got, "Male / Female / Other") {
		t.Errorf("unexpected prompt: %q", got)
	}
}

func TestEmitResponseDropsWhenFull(t *testing.T) {
	ch := make(chan models.Response, 1)
	emitResponse(ch, models.Response{From: "1"}, "test")

	start := time.Now()
	emitResponse(ch, models.Response{From: "2"}, "test")
	if time.Since(start) < DefaultChannelTimeout {
		t.Error("expected emit to wait for the channel timeout before dropping")
	}
	if got := <-ch; got.From != "1" {
		t.Errorf("expected first response kept, got %+v", got)
	}
	if len(ch) != 0 {
		t.Error("expected second response dropped")
	}
}
