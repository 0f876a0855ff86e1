package job

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/mediagen-api/internal/media"
)

// Status is the coarse backend status parsed from a status tool response.
type Status string

const (
	// StatusUnknown means no status token was found.
	StatusUnknown Status = ""
	// StatusInQueue indicates the request waits for a worker.
	StatusInQueue Status = "IN_QUEUE"
	// StatusInProgress indicates the request is being generated.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted indicates the result is ready.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the backend gave up.
	StatusFailed Status = "FAILED"
)

// statusSearchOrder is the precedence of tokens when several appear.
var statusSearchOrder = []Status{StatusCompleted, StatusFailed, StatusInProgress, StatusInQueue}

// statusPatterns match the upper-case tokens as whole words only.
var statusPatterns = func() map[Status]*regexp.Regexp {
	m := make(map[Status]*regexp.Regexp, len(statusSearchOrder))
	for _, s := range statusSearchOrder {
		m[s] = regexp.MustCompile(`\b` + string(s) + `\b`)
	}
	return m
}()

var queuePositionPattern = regexp.MustCompile(`(?i)queue[_ ]position["']?\s*[:=]?\s*(\d+)`)

// ParseStatus extracts the coarse status token and the queue position from
// the text blocks of a status response.
func ParseStatus(texts []string) (Status, *int) {
	joined := strings.Join(texts, "\n")

	var position *int
	if m := queuePositionPattern.FindStringSubmatch(joined); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			position = &n
		}
	}

	for _, s := range statusSearchOrder {
		if statusPatterns[s].MatchString(joined) {
			return s, position
		}
	}
	return StatusUnknown, position
}

// Polling schedule constants.
const (
	DefaultImagePollAttempts = 30
	DefaultVideoPollAttempts = 120

	imageInterval     = 2 * time.Second
	videoBaseInterval = 8 * time.Second
	videoFastInterval = 3 * time.Second
	maxInterval       = 30 * time.Second
	lateFloor         = 15 * time.Second
	lateAfter         = 5 * time.Minute
	stuckThreshold    = 3
	stuckFactor       = 1.5
)

// PollState is the working memory of one polling loop.
type PollState struct {
	Status            Status
	QueuePosition     *int
	LastQueuePosition *int
	StuckCount        int
	ChecksRemaining   int
	// CheckIndex is the 0-based index of the latest status check.
	CheckIndex     int
	Interval       time.Duration
	CheckStartTime time.Time

	checks int
}

// NewPollState starts a polling loop with a budget of maxChecks.
func NewPollState(maxChecks int, start time.Time) *PollState {
	return &PollState{ChecksRemaining: maxChecks, CheckStartTime: start}
}

// Observe records the outcome of one status check. An unchanged queue
// position increments the stuck counter; any change resets it.
func (p *PollState) Observe(status Status, queuePosition *int) {
	if p.checks > 0 {
		if samePosition(p.QueuePosition, queuePosition) {
			p.StuckCount++
		} else {
			p.StuckCount = 0
		}
	}
	p.LastQueuePosition = p.QueuePosition
	p.QueuePosition = queuePosition
	p.Status = status
	p.CheckIndex = p.checks
	p.checks++
	p.ChecksRemaining--
}

// Checks returns the number of status checks observed so far.
func (p *PollState) Checks() int {
	return p.checks
}

func samePosition(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Profile holds the polling parameters of one media kind.
type Profile struct {
	MaxPollAttempts int
	// Adaptive selects the queue-aware video schedule; otherwise
	// FlatInterval is used between checks.
	Adaptive     bool
	FlatInterval time.Duration
}

// DefaultProfile returns the polling profile for kind.
func DefaultProfile(kind media.Kind) Profile {
	if kind == media.KindVideo {
		return Profile{MaxPollAttempts: DefaultVideoPollAttempts, Adaptive: true}
	}
	return Profile{MaxPollAttempts: DefaultImagePollAttempts, FlatInterval: imageInterval}
}

// NextInterval computes the wait before the next status check and stores
// it in s.Interval.
func (p Profile) NextInterval(serviceName string, s *PollState, now time.Time) time.Duration {
	if p.Adaptive {
		s.Interval = VideoInterval(serviceName, s.QueuePosition, s.StuckCount, now.Sub(s.CheckStartTime))
	} else {
		s.Interval = p.FlatInterval
		if s.Interval <= 0 {
			s.Interval = imageInterval
		}
	}
	return s.Interval
}

// VideoInterval is the adaptive wait between video status checks.
func VideoInterval(serviceName string, queuePosition *int, stuckCount int, elapsed time.Duration) time.Duration {
	d := videoBaseInterval
	if strings.Contains(strings.ToLower(serviceName), "fast") {
		d = videoFastInterval
	}

	if queuePosition != nil {
		switch pos := *queuePosition; {
		case pos > 100:
			d = 30 * time.Second
		case pos > 50:
			d = 20 * time.Second
		case pos > 20:
			d = 15 * time.Second
		case pos > 10:
			d = 10 * time.Second
		case pos > 5:
			d = 8 * time.Second
		case pos > 0:
			d = 5 * time.Second
		}
	}

	if elapsed > lateAfter && d < lateFloor {
		d = lateFloor
	}

	if stuckCount > stuckThreshold {
		d = time.Duration(float64(d) * stuckFactor)
		if d > maxInterval {
			d = maxInterval
		}
	}
	return d
}

// ProgressPercent estimates job progress for a status check.
func ProgressPercent(status Status, queuePosition *int, checkIndex, maxChecks int) int {
	if status == StatusCompleted {
		return 100
	}

	percent := 40
	if queuePosition != nil {
		switch pos := *queuePosition; {
		case pos > 10:
			percent = 5
		case pos > 5:
			percent = 15
		case pos > 0:
			percent = 25
		}
	}

	if status == StatusInProgress {
		percent = max(percent, 40)
		if maxChecks > 0 {
			percent += min(50, int(float64(checkIndex)/float64(maxChecks)*50))
		}
		percent = min(percent, 95)
	}
	return percent
}

func progressMessage(status Status, queuePosition *int) string {
	switch {
	case queuePosition != nil && *queuePosition > 0:
		return "In queue (position " + strconv.Itoa(*queuePosition) + ")"
	case status == StatusInProgress:
		return "Generating"
	case status == StatusInQueue:
		return "Waiting in queue"
	default:
		return "Waiting for backend"
	}
}
