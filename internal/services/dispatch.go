package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Global-Optima/zeep-print-agent/internal/kvstore"
	"github.com/Global-Optima/zeep-print-agent/internal/label"
	"github.com/Global-Optima/zeep-print-agent/internal/model"
	"github.com/Global-Optima/zeep-print-agent/internal/printqueue"
)

const (
	defaultReceiptTimeout = 30 * time.Second
	reportTimeout         = 10 * time.Second
)

type LabelRenderer interface {
	Render(c model.LabelContent, kind model.DocumentKind) (model.RenderedLabel, error)
}

type OrderRenderer interface {
	Render(ctx context.Context, order model.Order) (model.RenderedLabel, error)
}

type JobSubmitter interface {
	Submit(docs []model.RenderedLabel, opts printqueue.Options) (*printqueue.Job, error)
}

type DispatcherConfig struct {
	Labels LabelRenderer
	Queue  JobSubmitter
	// Receipts and ReceiptQueue are optional; receipts are only printed when
	// both are set, on the receipt printer's own queue.
	Receipts     OrderRenderer
	ReceiptQueue JobSubmitter
	Store        kvstore.Store
	Reporter     Reporter

	Kind               model.DocumentKind
	SaveInsteadOfPrint bool
	SaveReceipts       bool
	ReceiptTimeout     time.Duration
	Logger             *slog.Logger
}

// Dispatcher turns newly created orders into print jobs: one QR label per
// sub-order and, when enabled, a desktop-only receipt ticket.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *slog.Logger
	wg     sync.WaitGroup

	// lastReceipt closes once the previous order's receipt was submitted.
	receiptMu   sync.Mutex
	lastReceipt chan struct{}
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NewLogReporter(logger)
	}
	if cfg.Kind == "" {
		cfg.Kind = model.KindPDF
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	logger = logger.With("component", "dispatcher")
	if cfg.Receipts != nil && cfg.ReceiptQueue == nil {
		logger.Warn("receipts disabled: no receipt printer queue")
		cfg.Receipts = nil
	}
	return &Dispatcher{cfg: cfg, logger: logger}
}

// DocumentKind maps the configured printer format onto a document kind.
func DocumentKind(format string) model.DocumentKind {
	if format == "zpl" {
		return model.KindPrinterNative
	}
	return model.KindPDF
}

// OnOrderCreated is the reconciler hook. Label jobs are submitted before it
// returns, so they keep the order in which orders were created. Receipts are
// rendered in the background and submitted in the same order.
func (d *Dispatcher) OnOrderCreated(order model.Order) {
	if err := d.dispatchLabels(context.Background(), order); err != nil {
		d.logger.Error("failed to dispatch labels", "order", order.ID, "error", err)
	}
	if d.cfg.Receipts != nil {
		d.dispatchReceiptAsync(order)
	}
}

// Dispatch submits labels and the receipt for order before returning.
func (d *Dispatcher) Dispatch(ctx context.Context, order model.Order) error {
	if err := d.dispatchLabels(ctx, order); err != nil {
		return err
	}
	if d.cfg.Receipts == nil {
		return nil
	}
	doc, err := d.renderReceipt(ctx, order)
	if err != nil {
		return err
	}
	return d.submitReceipt(order, doc)
}

func (d *Dispatcher) dispatchLabels(ctx context.Context, order model.Order) error {
	if len(order.SubOrders) == 0 {
		d.logger.Debug("order has no sub-orders, nothing to label", "order", order.ID)
		return nil
	}

	g := label.SavedGeometry(ctx, d.cfg.Store, label.UsageOrderQR)
	contents := label.OrderLabelContents(order, g)
	docs := make([]model.RenderedLabel, 0, len(contents))
	for i, c := range contents {
		doc, err := d.cfg.Labels.Render(c, d.cfg.Kind)
		if err != nil {
			err = fmt.Errorf("failed to render label %d: %w", i, err)
			d.report(order, "labels", nil, len(contents), err)
			return err
		}
		docs = append(docs, doc)
	}

	job, err := d.cfg.Queue.Submit(docs, printqueue.Options{SaveInsteadOfPrint: d.cfg.SaveInsteadOfPrint})
	if err != nil {
		d.report(order, "labels", nil, len(docs), err)
		return err
	}
	d.track(order, "labels", job)
	return nil
}

func (d *Dispatcher) dispatchReceiptAsync(order model.Order) {
	d.receiptMu.Lock()
	prev := d.lastReceipt
	done := make(chan struct{})
	d.lastReceipt = done
	d.receiptMu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(done)

		doc, err := d.renderReceipt(context.Background(), order)
		if prev != nil {
			<-prev
		}
		if err != nil {
			d.logger.Error("failed to dispatch receipt", "order", order.ID, "error", err)
			return
		}
		if err := d.submitReceipt(order, doc); err != nil {
			d.logger.Error("failed to dispatch receipt", "order", order.ID, "error", err)
		}
	}()
}

func (d *Dispatcher) renderReceipt(ctx context.Context, order model.Order) (model.RenderedLabel, error) {
	rctx, cancel := context.WithTimeout(ctx, d.cfg.ReceiptTimeout)
	defer cancel()

	doc, err := d.cfg.Receipts.Render(rctx, order)
	if err != nil {
		err = fmt.Errorf("failed to render receipt: %w", err)
		d.report(order, "receipt", nil, 1, err)
	}
	return doc, err
}

func (d *Dispatcher) submitReceipt(order model.Order, doc model.RenderedLabel) error {
	job, err := d.cfg.ReceiptQueue.Submit([]model.RenderedLabel{doc}, printqueue.Options{
		DesktopOnly:        true,
		SaveInsteadOfPrint: d.cfg.SaveReceipts,
	})
	if err != nil {
		d.report(order, "receipt", nil, 1, err)
		return err
	}
	d.track(order, "receipt", job)
	return nil
}

func (d *Dispatcher) track(order model.Order, kind string, job *printqueue.Job) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := job.Wait(context.Background())
		d.report(order, kind, job, job.Documents(), err)
	}()
}

func (d *Dispatcher) report(order model.Order, kind string, job *printqueue.Job, docs int, err error) {
	o := Outcome{
		OrderID:       order.ID,
		DisplayNumber: order.DisplayNumber,
		Kind:          kind,
		Documents:     docs,
		At:            time.Now(),
	}
	switch {
	case err != nil:
		o.Status = OutcomeFailed
		o.Error = err.Error()
	case job != nil && job.Skipped():
		o.Status = OutcomeSkipped
	case kind == "receipt" && d.cfg.SaveReceipts, kind == "labels" && d.cfg.SaveInsteadOfPrint:
		o.Status = OutcomeSaved
	default:
		o.Status = OutcomePrinted
	}
	if job != nil {
		o.JobID = job.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	if err := d.cfg.Reporter.Report(ctx, o); err != nil {
		d.logger.Warn("failed to report print outcome", "order", order.ID, "error", err)
	}
}

// Wait blocks until every tracked job has been reported.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
