package submission

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to in_progress", StatusPending, StatusInProgress, true},
		{"in_progress to succeeded", StatusInProgress, StatusSucceeded, true},
		{"in_progress to exhausted", StatusInProgress, StatusExhausted, true},
		{"in_progress to interrupted", StatusInProgress, StatusInterrupted, true},
		{"pending to interrupted", StatusPending, StatusInterrupted, true},
		{"succeeded is final", StatusSucceeded, StatusInProgress, false},
		{"exhausted is final", StatusExhausted, StatusInProgress, false},
		{"interrupted is final", StatusInterrupted, StatusSucceeded, false},
		{"no back-transition", StatusInProgress, StatusPending, false},
		{"no self-transition", StatusInProgress, StatusInProgress, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestApplySetsCompletedAtOnTerminal(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	result := Apply(StatusSucceeded, now)
	if result.NewStatus != StatusSucceeded {
		t.Errorf("NewStatus = %s, want %s", result.NewStatus, StatusSucceeded)
	}
	if result.CompletedAt == nil || !result.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", result.CompletedAt, now)
	}

	result = Apply(StatusInProgress, now)
	if result.CompletedAt != nil {
		t.Errorf("CompletedAt = %v for non-terminal transition, want nil", result.CompletedAt)
	}
}
