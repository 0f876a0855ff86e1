package job

import (
	"errors"
	"testing"

	"github.com/maauso/mediagen-api/internal/media"
)

func TestNew(t *testing.T) {
	job := New("", media.KindVideo, "svc", "a dragon", nil)

	if job.ID == "" {
		t.Error("expected job to have an ID")
	}
	if job.State != StateCreated {
		t.Errorf("expected state %s, got %s", StateCreated, job.State)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.Parameters == nil {
		t.Error("expected Parameters to be initialized")
	}
}

func TestNew_KeepsTaskID(t *testing.T) {
	job := New("task-123", media.KindImage, "svc", "p", nil)
	if job.ID != "task-123" {
		t.Errorf("expected ID task-123, got %s", job.ID)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{"CREATED to SUBMITTED", StateCreated, StateSubmitted, false},
		{"CREATED to FAILED", StateCreated, StateFailed, false},
		{"SUBMITTED to POLLING", StateSubmitted, StatePolling, false},
		{"SUBMITTED to COMPLETED", StateSubmitted, StateCompleted, false},
		{"SUBMITTED to CREATED", StateSubmitted, StateCreated, false},
		{"POLLING to COMPLETED", StatePolling, StateCompleted, false},
		{"POLLING to TIMED_OUT", StatePolling, StateTimedOut, false},
		{"POLLING to FAILED", StatePolling, StateFailed, false},
		{"POLLING to CREATED", StatePolling, StateCreated, false},
		// Invalid transitions
		{"CREATED to POLLING", StateCreated, StatePolling, true},
		{"CREATED to COMPLETED", StateCreated, StateCompleted, true},
		{"SUBMITTED to TIMED_OUT", StateSubmitted, StateTimedOut, true},
		{"POLLING to SUBMITTED", StatePolling, StateSubmitted, true},
		{"COMPLETED to CREATED", StateCompleted, StateCreated, true},
		{"FAILED to SUBMITTED", StateFailed, StateSubmitted, true},
		{"TIMED_OUT to POLLING", StateTimedOut, StatePolling, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := New("test", media.KindVideo, "svc", "p", nil)
			job.State = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition for %s -> %s, got %v", tt.from, tt.to, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_RequestIDOncePerAttempt(t *testing.T) {
	job := New("t", media.KindVideo, "svc", "p", nil)
	_ = job.Submit()

	if err := job.EnterPolling(); !errors.Is(err, ErrRequestIDRequired) {
		t.Fatalf("expected ErrRequestIDRequired, got %v", err)
	}
	if err := job.SetRequestID("req-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := job.SetRequestID("req-2"); !errors.Is(err, ErrRequestIDAlreadySet) {
		t.Fatalf("expected ErrRequestIDAlreadySet, got %v", err)
	}
	if err := job.EnterPolling(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A retry starts a new attempt with a fresh request id.
	if err := job.Retry(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.RequestID != "" {
		t.Errorf("expected request id to be cleared, got %q", job.RequestID)
	}
	if err := job.SetRequestID("req-2"); err != nil {
		t.Fatalf("unexpected error on new attempt: %v", err)
	}
}

func TestJob_RetryBound(t *testing.T) {
	job := New("t", media.KindImage, "svc", "p", nil)

	for i := 0; i < 2; i++ {
		_ = job.Submit()
		if err := job.Retry(2); err != nil {
			t.Fatalf("retry %d: unexpected error: %v", i, err)
		}
	}
	_ = job.Submit()
	if err := job.Retry(2); !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if job.Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", job.Attempt)
	}
	if job.State != StateSubmitted {
		t.Errorf("expected state unchanged, got %s", job.State)
	}
}

func TestJob_TerminalStates(t *testing.T) {
	job := New("t", media.KindImage, "svc", "p", nil)
	_ = job.Submit()
	_ = job.SetRequestID("r")
	_ = job.EnterPolling()

	boom := errors.New("boom")
	if err := job.TimeOut(boom); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !job.IsTerminal() {
		t.Error("expected job to be terminal")
	}
	if job.Err != boom {
		t.Errorf("expected error to be kept, got %v", job.Err)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if err := job.Fail(boom); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected terminal state to be final, got %v", err)
	}
	if err := job.Retry(2); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected no retry from terminal state, got %v", err)
	}
}

func TestJob_History(t *testing.T) {
	job := New("t", media.KindImage, "svc", "p", nil)
	_ = job.Submit()
	_ = job.Complete(Result{Success: true})

	if len(job.History) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(job.History))
	}
	if job.History[0].From != StateCreated || job.History[1].To != StateCompleted {
		t.Errorf("unexpected history: %+v", job.History)
	}
	if job.Result == nil || !job.Result.Success {
		t.Error("expected result to be set")
	}
}

func TestJob_SubmitArguments(t *testing.T) {
	job := New("t", media.KindVideo, "svc", "a dragon", map[string]any{ParamAspectRatio: "16:9"})

	args := job.SubmitArguments()
	if args[ParamPrompt] != "a dragon" || args[ParamAspectRatio] != "16:9" {
		t.Errorf("unexpected args: %v", args)
	}

	// Returned arguments are a copy.
	args["extra"] = true
	if _, ok := job.Parameters["extra"]; ok {
		t.Error("expected parameters to be unaffected")
	}

	job.DropParameter(ParamAspectRatio)
	job.AppendPrompt(", detailed")
	args = job.SubmitArguments()
	if _, ok := args[ParamAspectRatio]; ok {
		t.Error("expected aspect ratio to be dropped")
	}
	if args[ParamPrompt] != "a dragon, detailed" {
		t.Errorf("unexpected prompt: %v", args[ParamPrompt])
	}
}

func TestJob_Clone(t *testing.T) {
	job := New("t", media.KindVideo, "svc", "p", map[string]any{"k": "v"})
	_ = job.Submit()
	_ = job.Complete(Result{Success: true, Metadata: &Metadata{RequestID: "r"}})

	clone := job.Clone()

	if clone.ID != job.ID || clone.State != job.State {
		t.Error("expected clone to match job")
	}

	clone.Parameters["k"] = "changed"
	clone.Result.Metadata.RequestID = "changed"
	clone.History[0].To = StateFailed

	if job.Parameters["k"] != "v" {
		t.Error("modifying clone parameters affected original")
	}
	if job.Result.Metadata.RequestID != "r" {
		t.Error("modifying clone metadata affected original")
	}
	if job.History[0].To != StateSubmitted {
		t.Error("modifying clone history affected original")
	}
}
