package printqueue

import (
	"context"
	"sync"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

type JobState string

const (
	JobQueued     JobState = "QUEUED"
	JobInProgress JobState = "IN_PROGRESS"
	JobCompleted  JobState = "COMPLETED"
	JobFailed     JobState = "FAILED"
)

// Options controls how a job's documents are executed.
type Options struct {
	// DesktopOnly skips the job on kiosk and tablet stations.
	DesktopOnly bool
	// SaveInsteadOfPrint routes every document to the Saver.
	SaveInsteadOfPrint bool
	// Before and After run around each document. They are not awaited for
	// results and a panic inside them is recovered.
	Before func(index int, doc model.RenderedLabel)
	After  func(index int, doc model.RenderedLabel, err error)
}

// Job is the handle returned by Submit. It settles exactly once.
type Job struct {
	ID   string
	docs []model.RenderedLabel
	opts Options

	mu      sync.Mutex
	state   JobState
	err     error
	skipped bool
	done    chan struct{}
}

func newJob(id string, docs []model.RenderedLabel, opts Options) *Job {
	return &Job{
		ID:    id,
		docs:  docs,
		opts:  opts,
		state: JobQueued,
		done:  make(chan struct{}),
	}
}

// Done is closed once the job completed or failed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job settles or ctx ends. Cancelling ctx does not cancel the job.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Skipped reports whether the job completed without running because it was
// desktop-only on another form factor.
func (j *Job) Skipped() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.skipped
}

func (j *Job) Documents() int {
	return len(j.docs)
}

func (j *Job) start() {
	j.mu.Lock()
	j.state = JobInProgress
	j.mu.Unlock()
}

func (j *Job) skip() {
	j.mu.Lock()
	j.skipped = true
	j.mu.Unlock()
	j.settle(nil)
}

func (j *Job) settle(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == JobCompleted || j.state == JobFailed {
		return
	}
	if err != nil {
		j.state = JobFailed
		j.err = err
	} else {
		j.state = JobCompleted
	}
	close(j.done)
}
