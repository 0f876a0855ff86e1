package job

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Static errors for the tracker.
var (
	// ErrJobNotFound is returned when no in-flight job has the given ID.
	ErrJobNotFound = errors.New("job: not found")
	// ErrDuplicateTask is returned when a task ID is already in flight.
	ErrDuplicateTask = errors.New("job: task id already in flight")
)

type trackedJob struct {
	job    *Job
	cancel context.CancelFunc
}

// Tracker keeps the in-flight jobs of the process so they can be looked
// up and cancelled by task ID. Jobs leave the tracker when they finish;
// nothing is persisted.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]trackedJob
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		jobs: make(map[string]trackedJob),
	}
}

// Register adds j and returns a context that is cancelled by Cancel,
// together with a release function that removes j again.
func (t *Tracker) Register(ctx context.Context, j *Job) (context.Context, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[j.ID]; ok {
		return ctx, func() {}, ErrDuplicateTask
	}

	jobCtx, cancel := context.WithCancel(ctx)
	t.jobs[j.ID] = trackedJob{job: j, cancel: cancel}

	release := func() {
		t.mu.Lock()
		if tracked, ok := t.jobs[j.ID]; ok && tracked.job == j {
			delete(t.jobs, j.ID)
		}
		t.mu.Unlock()
		cancel()
	}
	return jobCtx, release, nil
}

// Cancel stops the in-flight job with the given ID.
func (t *Tracker) Cancel(id string) error {
	t.mu.RLock()
	tracked, ok := t.jobs[id]
	t.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	tracked.cancel()
	return nil
}

// Get returns a snapshot of the in-flight job with the given ID.
func (t *Tracker) Get(id string) (*Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tracked, ok := t.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return tracked.job.Clone(), nil
}

// List returns snapshots of all in-flight jobs ordered by ID.
func (t *Tracker) List() []*Job {
	t.mu.RLock()
	result := make([]*Job, 0, len(t.jobs))
	for _, tracked := range t.jobs {
		result = append(result, tracked.job.Clone())
	}
	t.mu.RUnlock()

	sort.Slice(result, func(i, k int) bool { return result[i].ID < result[k].ID })
	return result
}

// Len returns the number of in-flight jobs.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}
