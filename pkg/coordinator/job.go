package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/heyjunin/hlsgrab/pkg/progress"
)

// Kind is the download strategy of a job.
type Kind string

const (
	// KindHLS downloads a playlist segment by segment.
	KindHLS Kind = "hls"
	// KindDirect downloads a single media URL in one request.
	KindDirect Kind = "direct"
)

// Job is a snapshot of one download.
type Job struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	Filename   string          `json:"filename"`
	Kind       Kind            `json:"kind"`
	Status     progress.Status `json:"status"`
	Progress   int             `json:"progress"`
	Message    string          `json:"message"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has finished.
func (j Job) Terminal() bool {
	return j.Status.Terminal()
}

// jobEntry is the registry record of a job. Only the job's own goroutine changes job.
// Cancel calls cancel with mu held.
type jobEntry struct {
	mu     sync.Mutex
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
}

func (e *jobEntry) snapshot() Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job
}

// transition applies a state change and returns the event to publish.
// ok is false when the job is already terminal. Progress never goes down.
func (e *jobEntry) transition(status progress.Status, pct int, message string) (progress.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transitionLocked(status, pct, message)
}

// transitionLocked is transition with e.mu held. Once the job's context is done only
// the terminal state is accepted.
func (e *jobEntry) transitionLocked(status progress.Status, pct int, message string) (progress.Event, bool) {
	if e.job.Status.Terminal() {
		return progress.Event{}, false
	}
	if !status.Terminal() && e.ctx != nil && e.ctx.Err() != nil {
		return progress.Event{}, false
	}
	if pct < e.job.Progress {
		pct = e.job.Progress
	}
	if pct > 100 {
		pct = 100
	}
	e.job.Status = status
	e.job.Progress = pct
	e.job.Message = message
	if status.Terminal() {
		e.job.FinishedAt = time.Now()
	}
	return progress.NewEvent(e.job.ID, status, pct, message), true
}
