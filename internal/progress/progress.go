// Package progress forwards job progress to interested listeners.
// Reporting is fire-and-forget: a slow or absent listener never blocks or
// fails a job.
package progress

import "log/slog"

// EventType distinguishes progress events.
type EventType string

// Event types as seen by stream clients.
const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// IsTerminal returns true for completed and error events.
func (t EventType) IsTerminal() bool {
	return t == EventCompleted || t == EventError
}

// Event is one notification for a task, serialised as a single NDJSON line.
type Event struct {
	Type          EventType `json:"type"`
	TaskID        string    `json:"taskId"`
	Percent       int       `json:"percent,omitempty"`
	Message       string    `json:"message,omitempty"`
	Result        any       `json:"result,omitempty"`
	Error         string    `json:"error,omitempty"`
	ErrorCategory string    `json:"errorCategory,omitempty"`
}

// Reporter receives job progress.
type Reporter interface {
	// Progress reports an intermediate percentage.
	Progress(taskID string, percent int, message string)
	// Completed reports successful termination with the job result.
	Completed(taskID string, result any)
	// Failed reports unsuccessful termination.
	Failed(taskID, message, category string)
}

// Resetter is implemented by reporters that keep per-task state, which
// must be forgotten when a task id starts a new job.
type Resetter interface {
	Reset(taskID string)
}

// Nop discards every report.
type Nop struct{}

func (Nop) Progress(string, int, string)  {}
func (Nop) Completed(string, any)         {}
func (Nop) Failed(string, string, string) {}

// LogReporter writes reports to a logger at debug level.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r LogReporter) Progress(taskID string, percent int, message string) {
	r.logger().Debug("job progress",
		slog.String("task_id", taskID),
		slog.Int("percent", percent),
		slog.String("message", message),
	)
}

func (r LogReporter) Completed(taskID string, _ any) {
	r.logger().Debug("job completed", slog.String("task_id", taskID))
}

func (r LogReporter) Failed(taskID, message, category string) {
	r.logger().Debug("job failed",
		slog.String("task_id", taskID),
		slog.String("error", message),
		slog.String("category", category),
	)
}

// Multi fans every report out to several reporters.
type Multi []Reporter

func (m Multi) Progress(taskID string, percent int, message string) {
	for _, r := range m {
		r.Progress(taskID, percent, message)
	}
}

func (m Multi) Completed(taskID string, result any) {
	for _, r := range m {
		r.Completed(taskID, result)
	}
}

func (m Multi) Failed(taskID, message, category string) {
	for _, r := range m {
		r.Failed(taskID, message, category)
	}
}

// Reset forwards to every member that keeps per-task state.
func (m Multi) Reset(taskID string) {
	for _, r := range m {
		if rs, ok := r.(Resetter); ok {
			rs.Reset(taskID)
		}
	}
}

// Compile-time checks.
var (
	_ Reporter = Nop{}
	_ Reporter = LogReporter{}
	_ Reporter = Multi(nil)
	_ Reporter = (*Hub)(nil)
	_ Resetter = Multi(nil)
	_ Resetter = (*Hub)(nil)
)
