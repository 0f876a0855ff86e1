// Package job provides the Job aggregate for media generation requests and
// the Orchestrator that drives a Job through the submit, poll and result
// steps of a generation tool.
package job

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/maauso/mediagen-api/internal/job/id"
	"github.com/maauso/mediagen-api/internal/media"
)

// State represents the lifecycle state of a Job.
type State string

const (
	// StateCreated indicates the job is ready to be submitted.
	StateCreated State = "CREATED"
	// StateSubmitted indicates the submit tool has been invoked.
	StateSubmitted State = "SUBMITTED"
	// StatePolling indicates the status tool is being polled.
	StatePolling State = "POLLING"
	// StateCompleted indicates media was materialized.
	StateCompleted State = "COMPLETED"
	// StateFailed indicates the job ended with an error.
	StateFailed State = "FAILED"
	// StateTimedOut indicates the poll budget ran out.
	StateTimedOut State = "TIMED_OUT"
)

// Static errors for state changes.
var (
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("job: invalid state transition")
	// ErrRequestIDAlreadySet is returned when a second request id is stored in one attempt.
	ErrRequestIDAlreadySet = errors.New("job: request id already set for this attempt")
	// ErrRequestIDRequired is returned when polling starts without a request id.
	ErrRequestIDRequired = errors.New("job: request id required before polling")
	// ErrRetriesExhausted is returned when no outer retry is left.
	ErrRetriesExhausted = errors.New("job: outer retries exhausted")
)

// validTransitions defines which state transitions are allowed.
// SUBMITTED and POLLING may fall back to CREATED for an outer retry.
var validTransitions = map[State][]State{
	StateCreated:   {StateSubmitted, StateFailed},
	StateSubmitted: {StatePolling, StateCompleted, StateFailed, StateCreated},
	StatePolling:   {StateCompleted, StateFailed, StateTimedOut, StateCreated},
	StateCompleted: {},
	StateFailed:    {},
	StateTimedOut:  {},
}

func canTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// IsTerminal returns true for states no transition leaves.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Transition records one state change.
type Transition struct {
	From    State
	To      State
	Attempt int
	At      time.Time
}

// Job is one generation request. It is mutated only by the Orchestrator;
// readers take a Clone.
type Job struct {
	mu sync.RWMutex

	// ID is the caller task id or a generated one.
	ID string
	// Kind is image or video.
	Kind media.Kind
	// ServiceID identifies the generation service in the registry.
	ServiceID string
	// Prompt is the text sent to the submit tool.
	Prompt string
	// Parameters are the free-form submit arguments besides the prompt.
	Parameters map[string]any
	// State is the current lifecycle state.
	State State
	// Attempt is the 0-based outer retry count.
	Attempt int
	// RequestID is the backend correlation id of the current attempt.
	RequestID string
	// Result is set once the job is COMPLETED.
	Result *Result
	// Err is set once the job is FAILED or TIMED_OUT.
	Err error
	// History lists every transition in order.
	History []Transition

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	now func() time.Time
}

// New creates a Job in CREATED state. An empty taskID gets a generated id.
func New(taskID string, kind media.Kind, serviceID, prompt string, params map[string]any) *Job {
	if taskID == "" {
		taskID = id.Generate()
	}
	if params == nil {
		params = make(map[string]any)
	}
	now := time.Now()
	return &Job{
		ID:         taskID,
		Kind:       kind,
		ServiceID:  serviceID,
		Prompt:     prompt,
		Parameters: params,
		State:      StateCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
		now:        time.Now,
	}
}

// TransitionTo changes the job state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(state State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(state)
}

func (j *Job) transitionLocked(state State) error {
	if !canTransition(j.State, state) {
		return ErrInvalidTransition
	}

	now := j.clock()
	j.History = append(j.History, Transition{From: j.State, To: state, Attempt: j.Attempt, At: now})
	j.State = state
	j.UpdatedAt = now

	switch {
	case state == StateSubmitted && j.StartedAt.IsZero():
		j.StartedAt = now
	case state.IsTerminal():
		j.CompletedAt = now
	}
	return nil
}

func (j *Job) clock() time.Time {
	if j.now == nil {
		return time.Now()
	}
	return j.now()
}

// Submit moves the job from CREATED to SUBMITTED.
func (j *Job) Submit() error {
	return j.TransitionTo(StateSubmitted)
}

// SetRequestID stores the backend correlation id of the current attempt.
// It can be set at most once per attempt.
func (j *Job) SetRequestID(requestID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.RequestID != "" {
		return ErrRequestIDAlreadySet
	}
	j.RequestID = requestID
	j.UpdatedAt = j.clock()
	return nil
}

// EnterPolling moves the job from SUBMITTED to POLLING.
// Returns ErrRequestIDRequired when no request id is stored.
func (j *Job) EnterPolling() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.RequestID == "" {
		return ErrRequestIDRequired
	}
	return j.transitionLocked(StatePolling)
}

// Retry returns the job to CREATED for another attempt, clearing the
// request id. Returns ErrRetriesExhausted once Attempt has reached maxRetries.
func (j *Job) Retry(maxRetries int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Attempt >= maxRetries {
		return ErrRetriesExhausted
	}
	if err := j.transitionLocked(StateCreated); err != nil {
		return err
	}
	j.Attempt++
	j.RequestID = ""
	return nil
}

// Complete moves the job to COMPLETED with result.
func (j *Job) Complete(result Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateCompleted); err != nil {
		return err
	}
	j.Result = &result
	return nil
}

// Fail moves the job to FAILED with err.
func (j *Job) Fail(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e := j.transitionLocked(StateFailed); e != nil {
		return e
	}
	j.Err = err
	return nil
}

// TimeOut moves the job to TIMED_OUT with err.
func (j *Job) TimeOut(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e := j.transitionLocked(StateTimedOut); e != nil {
		return e
	}
	j.Err = err
	return nil
}

// Bind records the resolved service and media kind.
func (j *Job) Bind(serviceID string, kind media.Kind) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ServiceID = serviceID
	j.Kind = kind
}

// DropParameter removes a submit argument.
func (j *Job) DropParameter(key string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.Parameters, key)
}

// AppendPrompt adds text to the end of the prompt.
func (j *Job) AppendPrompt(text string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Prompt += text
}

// SubmitArguments returns the prompt and parameters as submit tool arguments.
func (j *Job) SubmitArguments() map[string]any {
	j.mu.RLock()
	defer j.mu.RUnlock()
	args := maps.Clone(j.Parameters)
	if args == nil {
		args = make(map[string]any, 1)
	}
	args[ParamPrompt] = j.Prompt
	return args
}

// GetRequestID returns the request id of the current attempt.
func (j *Job) GetRequestID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.RequestID
}

// GetAttempt returns the outer retry count.
func (j *Job) GetAttempt() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Attempt
}

// GetState returns the current state (thread-safe).
func (j *Job) GetState() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.GetState().IsTerminal()
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result *Result
	if j.Result != nil {
		r := j.Result.clone()
		result = &r
	}

	return &Job{
		ID:          j.ID,
		Kind:        j.Kind,
		ServiceID:   j.ServiceID,
		Prompt:      j.Prompt,
		Parameters:  maps.Clone(j.Parameters),
		State:       j.State,
		Attempt:     j.Attempt,
		RequestID:   j.RequestID,
		Result:      result,
		Err:         j.Err,
		History:     slices.Clone(j.History),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		now:         j.now,
	}
}

// Result is the outcome returned to the caller of Generate.
type Result struct {
	Success       bool      `json:"success"`
	URL           string    `json:"url,omitempty"`
	LocalPath     string    `json:"localPath,omitempty"`
	Metadata      *Metadata `json:"metadata,omitempty"`
	Error         string    `json:"error,omitempty"`
	ErrorCategory string    `json:"errorCategory,omitempty"`
}

func (r Result) clone() Result {
	if r.Metadata != nil {
		m := *r.Metadata
		r.Metadata = &m
	}
	return r
}

// Metadata describes how a result was produced.
type Metadata struct {
	RequestID   string     `json:"requestId,omitempty"`
	ServiceID   string     `json:"serviceId"`
	ServiceName string     `json:"serviceName,omitempty"`
	Kind        media.Kind `json:"kind"`
	Attempts    int        `json:"attempts"`
	Degraded    bool       `json:"degraded"`
	SourceURL   string     `json:"sourceUrl,omitempty"`
	MirrorURL   string     `json:"mirrorUrl,omitempty"`
	ElapsedMs   int64      `json:"elapsedMs"`
}
