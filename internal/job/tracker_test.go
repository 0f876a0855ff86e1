package job

import (
	"context"
	"testing"

	"github.com/maauso/mediagen-api/internal/media"
)

func TestTracker_RegisterAndRelease(t *testing.T) {
	tracker := NewTracker()
	job := New("task-1", media.KindImage, "svc", "p", nil)

	ctx, release, err := tracker.Register(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracker.Len() != 1 {
		t.Errorf("expected 1 job, got %d", tracker.Len())
	}

	got, err := tracker.Get("task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "task-1" {
		t.Errorf("expected task-1, got %s", got.ID)
	}

	release()
	if tracker.Len() != 0 {
		t.Errorf("expected tracker to be empty, got %d", tracker.Len())
	}
	if ctx.Err() == nil {
		t.Error("expected context to be cancelled on release")
	}
	if _, err := tracker.Get("task-1"); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestTracker_Duplicate(t *testing.T) {
	tracker := NewTracker()
	_, release, _ := tracker.Register(context.Background(), New("dup", media.KindImage, "svc", "p", nil))
	defer release()

	_, _, err := tracker.Register(context.Background(), New("dup", media.KindImage, "svc", "p", nil))
	if err != ErrDuplicateTask {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestTracker_Cancel(t *testing.T) {
	tracker := NewTracker()
	ctx, release, _ := tracker.Register(context.Background(), New("task-2", media.KindVideo, "svc", "p", nil))
	defer release()

	if err := tracker.Cancel("task-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("expected job context to be cancelled")
	}

	if err := tracker.Cancel("missing"); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestTracker_List(t *testing.T) {
	tracker := NewTracker()
	for _, id := range []string{"b", "a", "c"} {
		_, release, _ := tracker.Register(context.Background(), New(id, media.KindImage, "svc", "p", nil))
		defer release()
	}

	jobs := tracker.List()
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "a" || jobs[2].ID != "c" {
		t.Errorf("expected jobs ordered by id, got %s..%s", jobs[0].ID, jobs[2].ID)
	}
}

func TestBuildParameters(t *testing.T) {
	seed := int64(0)
	params := BuildParameters(Options{
		AspectRatio: "16:9",
		Duration:    3,
		Seed:        &seed,
		Extra: map[string]any{
			"style":          "anime",
			ParamAspectRatio: "1:1",
			ParamPrompt:      "ignored",
		},
	})

	want := map[string]any{
		ParamAspectRatio: "16:9",
		ParamDuration:    3,
		ParamSeed:        int64(0),
		"style":          "anime",
	}
	if len(params) != len(want) {
		t.Fatalf("expected %d params, got %v", len(want), params)
	}
	for k, v := range want {
		if params[k] != v {
			t.Errorf("param %s: expected %v, got %v", k, v, params[k])
		}
	}
}
