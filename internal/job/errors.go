package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/mediagen-api/internal/media"
)

// ErrorKind classifies why a job did not complete.
type ErrorKind string

const (
	// KindConfiguration covers unknown services and undiscoverable tools.
	KindConfiguration ErrorKind = "configuration"
	// KindProtocol covers responses that could not be decoded.
	KindProtocol ErrorKind = "protocol"
	// KindBackendFailed covers a FAILED status or an error reported by a tool.
	KindBackendFailed ErrorKind = "backend_failed"
	// KindTimeout covers an exhausted poll budget.
	KindTimeout ErrorKind = "timeout"
	// KindCancelled covers jobs stopped through their context.
	KindCancelled ErrorKind = "cancelled"
	// KindTransport covers connection and tool call failures.
	KindTransport ErrorKind = "transport"
	// KindInternal covers anything not classified above.
	KindInternal ErrorKind = "internal"
)

// TransientKind is the closed set of backend errors that warrant an outer
// retry with mutated parameters.
type TransientKind string

const (
	// TransientNone means the error is not retried.
	TransientNone TransientKind = "none"
	// TransientAspectRatio means the backend rejected the aspect_ratio parameter.
	TransientAspectRatio TransientKind = "aspect_ratio"
	// TransientFileTooSmall means a generated video was rejected as too small.
	TransientFileTooSmall TransientKind = "file_too_small"
)

// Static errors for job outcomes.
var (
	// ErrBackendFailed is returned when the status tool reports FAILED.
	ErrBackendFailed = errors.New("job: backend reported failure")
	// ErrPollBudgetExhausted is returned when polling never saw COMPLETED.
	ErrPollBudgetExhausted = errors.New("job: poll budget exhausted")
	// ErrToolError is returned when a tool answers with an error response.
	ErrToolError = errors.New("job: tool returned an error")
	// ErrInvalidKind is returned for a media kind other than image or video.
	ErrInvalidKind = errors.New("job: invalid media kind")
	// ErrEmptyPrompt is returned when the prompt is blank.
	ErrEmptyPrompt = errors.New("job: prompt is empty")
)

// Error is a classified job error.
type Error struct {
	Kind      ErrorKind
	Transient TransientKind
	Err       error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Transient: TransientNone, Err: err}
}

// KindOf returns the kind of err. Context errors are reported as cancelled.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var jobErr *Error
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// Category returns the caller-facing error category of err.
func Category(err error) string {
	return string(KindOf(err))
}

// TransientOf returns the transient classification carried by err.
func TransientOf(err error) TransientKind {
	var jobErr *Error
	if errors.As(err, &jobErr) && jobErr.Transient != "" {
		return jobErr.Transient
	}
	return TransientNone
}

const fileTooSmallMarker = "file size is too small, minimum 1mb required"

// ClassifyTransient decides once, where a backend error is first observed,
// whether it is one of the retried transient errors. Any other text is not
// retried.
func ClassifyTransient(text string, kind media.Kind, params map[string]any) TransientKind {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "aspect_ratio") && hasParam(params, ParamAspectRatio) {
		return TransientAspectRatio
	}
	if kind == media.KindVideo && strings.Contains(lower, fileTooSmallMarker) {
		return TransientFileTooSmall
	}
	return TransientNone
}

func hasParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}

// classify wraps err as a job error of kind and attaches its transient
// classification.
func classify(kind ErrorKind, err error, mediaKind media.Kind, params map[string]any) *Error {
	e := newError(kind, err)
	e.Transient = ClassifyTransient(err.Error(), mediaKind, params)
	return e
}

func timeoutError(checks int, elapsedMinutes float64) *Error {
	return newError(KindTimeout, fmt.Errorf("%w after %d status checks (%.1f minutes elapsed)",
		ErrPollBudgetExhausted, checks, elapsedMinutes))
}
