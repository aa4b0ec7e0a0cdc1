// Package printqueue runs print jobs one at a time, in submission order,
// against a printer or a local save location.
package printqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

var ErrQueueClosed = errors.New("print queue is closed")

// DefaultDocumentTimeout bounds a single Print or Save call.
const DefaultDocumentTimeout = time.Minute

// Facility prints a document and returns once the printer acknowledged it.
type Facility interface {
	Print(ctx context.Context, doc model.RenderedLabel) error
}

// Saver persists a document under the given file name instead of printing it.
type Saver interface {
	Save(ctx context.Context, filename string, doc model.RenderedLabel) error
}

type State string

const (
	StateIdle     State = "IDLE"
	StateDraining State = "DRAINING"
)

type Config struct {
	FormFactor model.FormFactor
	// DocumentTimeout is the deadline handed to the facility for each
	// document; a printer that does not answer in time fails the job.
	DocumentTimeout time.Duration
	Logger          *slog.Logger
}

// Queue serializes print jobs. At most one job is in flight; a single drain
// goroutine, started when work arrives in the Idle state, owns execution.
type Queue struct {
	facility Facility
	saver    Saver
	config   Config
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	pending []*Job
	closed  bool
	drains  sync.WaitGroup
}

func New(facility Facility, saver Saver, cfg Config) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DocumentTimeout <= 0 {
		cfg.DocumentTimeout = DefaultDocumentTimeout
	}
	return &Queue{
		facility: facility,
		saver:    saver,
		config:   cfg,
		logger:   logger.With("component", "printqueue"),
		state:    StateIdle,
	}
}

// Submit validates the documents and enqueues them as one job. Unsupported
// documents reject the whole job before anything is enqueued.
func (q *Queue) Submit(docs []model.RenderedLabel, opts Options) (*Job, error) {
	for i, doc := range docs {
		if !accepted(doc.Kind) {
			return nil, fmt.Errorf("%w: document %d has kind %q", model.ErrUnsupportedDocument, i, doc.Kind)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	job := newJob(uuid.NewString(), append([]model.RenderedLabel(nil), docs...), opts)

	if opts.DesktopOnly && q.config.FormFactor != "" && q.config.FormFactor != model.FormFactorDesktop {
		q.logger.Info("skipping desktop-only print job", "job", job.ID, "form_factor", q.config.FormFactor)
		job.skip()
		return job, nil
	}
	if len(job.docs) == 0 {
		job.settle(nil)
		return job, nil
	}

	q.pending = append(q.pending, job)
	q.logger.Debug("print job queued", "job", job.ID, "documents", len(job.docs), "pending", len(q.pending))

	if q.state == StateIdle {
		q.state = StateDraining
		q.drains.Add(1)
		go q.drain()
	}
	return job, nil
}

// Len returns the number of jobs waiting behind the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Close stops accepting jobs and waits until the queued ones have run or ctx ends.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.drains.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) drain() {
	defer q.drains.Done()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.state = StateIdle
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(job)
	}
}

func (q *Queue) run(job *Job) {
	job.start()
	log := q.logger.With("job", job.ID)
	log.Debug("print job started", "documents", len(job.docs))

	for i, doc := range job.docs {
		q.hook(log, "before", func() {
			if job.opts.Before != nil {
				job.opts.Before(i, doc)
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), q.config.DocumentTimeout)
		err := q.execute(ctx, job, doc)
		cancel()

		q.hook(log, "after", func() {
			if job.opts.After != nil {
				job.opts.After(i, doc, err)
			}
		})

		if err != nil {
			log.Error("print job failed", "document", i, "filename", doc.Filename, "error", err)
			job.settle(err)
			return
		}
		log.Debug("document acknowledged", "document", i, "filename", doc.Filename)
	}

	log.Info("print job completed", "documents", len(job.docs))
	job.settle(nil)
}

func (q *Queue) execute(ctx context.Context, job *Job, doc model.RenderedLabel) error {
	var err error
	switch {
	case job.opts.SaveInsteadOfPrint && q.saver == nil:
		return errors.New("no save location configured")
	case job.opts.SaveInsteadOfPrint:
		err = q.saver.Save(ctx, uniqueFilename(doc), doc)
	case q.facility == nil:
		return errors.New("no print facility configured")
	default:
		err = q.facility.Print(ctx, doc)
	}
	// Socket deadlines surface as their own error type; keep the context cause visible.
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

func (q *Queue) hook(log *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("print hook panicked", "hook", name, "panic", r)
		}
	}()
	fn()
}

func accepted(kind model.DocumentKind) bool {
	return kind == model.KindPDF || kind == model.KindPrinterNative
}

func uniqueFilename(doc model.RenderedLabel) string {
	name := filepath.Base(doc.Filename)
	if doc.Filename == "" || name == "." || name == string(filepath.Separator) {
		name = "label" + defaultExt(doc)
	}
	return uuid.NewString() + "_" + name
}

func defaultExt(doc model.RenderedLabel) string {
	switch {
	case doc.Kind == model.KindPDF:
		return ".pdf"
	case doc.MIME == model.MIMEESCPOS:
		return ".escpos"
	default:
		return ".prn"
	}
}
