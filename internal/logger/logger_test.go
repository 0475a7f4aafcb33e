package logger

import (
	"context"
	"testing"
)

func TestWithJobID_And_JobIDFromContext(t *testing.T) {
	ctx := context.Background()
	jobID := "8d5f1b2a-job"

	// Initially empty
	if got := JobIDFromContext(ctx); got != "" {
		t.Errorf("JobIDFromContext() on empty ctx = %v, want empty", got)
	}

	ctx = WithJobID(ctx, jobID)
	if got := JobIDFromContext(ctx); got != jobID {
		t.Errorf("JobIDFromContext() = %v, want %v", got, jobID)
	}
}

func TestFromContext_WithJobID(t *testing.T) {
	base := New("info")
	ctx := context.Background()

	// Without job ID - should return base logger (not nil)
	if got := FromContext(ctx, base); got == nil {
		t.Error("FromContext() returned nil")
	}

	ctx = WithJobID(ctx, "job-42")
	if got := FromContext(ctx, base); got == nil {
		t.Error("FromContext() with job ID returned nil")
	}
}

func TestNew_LevelParsing(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "bogus", ""} {
		if logger := New(level); logger == nil {
			t.Errorf("New(%q) returned nil", level)
		}
	}
}
