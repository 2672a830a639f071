package queue

import (
	"testing"
	"time"
)

func TestKindIsValid(t *testing.T) {
	valid := []Kind{KindScriptGeneration, KindTTSGeneration, KindMusicGeneration, KindAudioMixing}
	for _, k := range valid {
		if !k.IsValid() {
			t.Errorf("Kind(%q).IsValid() = false, want true", k)
		}
	}
	for _, k := range []Kind{"", "SCRIPT", "mixing"} {
		if k.IsValid() {
			t.Errorf("Kind(%q).IsValid() = true, want false", k)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Status(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	for attempt := 1; attempt <= 4; attempt++ {
		base := backoffBase << (attempt - 1)
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)
		for i := 0; i < 50; i++ {
			d := backoffDelay(attempt)
			if d < lo || d > hi {
				t.Fatalf("backoffDelay(%d) = %v, want within [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestBackoffDelayClampsAttempt(t *testing.T) {
	d := backoffDelay(0)
	if d < time.Duration(float64(backoffBase)*0.8) || d > time.Duration(float64(backoffBase)*1.2) {
		t.Fatalf("backoffDelay(0) = %v, want first-attempt delay", d)
	}
}
