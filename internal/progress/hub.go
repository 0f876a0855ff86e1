package progress

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultBuffer    = 32
	defaultRetention = 5 * time.Minute
)

type subscriber struct {
	ch chan Event
}

type terminalEntry struct {
	event Event
	at    time.Time
}

// Hub is a Reporter that fans events out to per-task subscribers.
// Sends never block: an event is dropped for a subscriber whose buffer is
// full. After a terminal event all subscriber channels of the task are
// closed, and the terminal event is retained for a while so that late
// subscribers still learn the outcome.
type Hub struct {
	logger    *slog.Logger
	buffer    int
	retention time.Duration
	now       func() time.Time

	mu       sync.Mutex
	subs     map[string]map[*subscriber]struct{}
	terminal map[string]terminalEntry
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithRetention sets how long terminal events stay available.
func WithRetention(d time.Duration) HubOption {
	return func(h *Hub) {
		h.retention = d
	}
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:    logger,
		buffer:    defaultBuffer,
		retention: defaultRetention,
		now:       time.Now,
		subs:      make(map[string]map[*subscriber]struct{}),
		terminal:  make(map[string]terminalEntry),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe returns a channel of events for taskID and a function that
// ends the subscription. The channel is closed after a terminal event or
// when the subscription ends.
func (h *Hub) Subscribe(taskID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pruneLocked()

	if entry, ok := h.terminal[taskID]; ok {
		ch := make(chan Event, 1)
		ch <- entry.event
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{ch: make(chan Event, h.buffer)}
	if h.subs[taskID] == nil {
		h.subs[taskID] = make(map[*subscriber]struct{})
	}
	h.subs[taskID][sub] = struct{}{}

	return sub.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[taskID]; ok {
			if _, ok := set[sub]; ok {
				delete(set, sub)
				close(sub.ch)
				if len(set) == 0 {
					delete(h.subs, taskID)
				}
			}
		}
	}
}

// Subscribers returns the number of live subscribers for taskID.
func (h *Hub) Subscribers(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID])
}

// Reset forgets the retained terminal event of taskID, so the id can be
// reused by a new job.
func (h *Hub) Reset(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.terminal, taskID)
}

// Progress publishes a progress event.
func (h *Hub) Progress(taskID string, percent int, message string) {
	h.publish(Event{Type: EventProgress, TaskID: taskID, Percent: percent, Message: message})
}

// Completed publishes the terminal completed event.
func (h *Hub) Completed(taskID string, result any) {
	h.publish(Event{Type: EventCompleted, TaskID: taskID, Percent: 100, Result: result})
}

// Failed publishes the terminal error event.
func (h *Hub) Failed(taskID, message, category string) {
	h.publish(Event{Type: EventError, TaskID: taskID, Error: message, ErrorCategory: category})
}

func (h *Hub) publish(ev Event) {
	if ev.TaskID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// A live event means the id belongs to a running job again.
	if !ev.Type.IsTerminal() {
		delete(h.terminal, ev.TaskID)
	}

	for sub := range h.subs[ev.TaskID] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Debug("progress event dropped",
				slog.String("task_id", ev.TaskID),
				slog.String("type", string(ev.Type)),
			)
		}
	}

	if ev.Type.IsTerminal() {
		for sub := range h.subs[ev.TaskID] {
			close(sub.ch)
		}
		delete(h.subs, ev.TaskID)
		h.terminal[ev.TaskID] = terminalEntry{event: ev, at: h.now()}
		h.pruneLocked()
	}
}

func (h *Hub) pruneLocked() {
	cutoff := h.now().Add(-h.retention)
	for id, entry := range h.terminal {
		if entry.at.Before(cutoff) {
			delete(h.terminal, id)
		}
	}
}
