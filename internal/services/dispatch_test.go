package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Global-Optima/zeep-print-agent/internal/kvstore"
	"github.com/Global-Optima/zeep-print-agent/internal/label"
	"github.com/Global-Optima/zeep-print-agent/internal/model"
	"github.com/Global-Optima/zeep-print-agent/internal/printqueue"
	"github.com/Global-Optima/zeep-print-agent/internal/reconciler"
)

type recordingFacility struct {
	mu    sync.Mutex
	names []string
	saved []string
}

func (f *recordingFacility) Print(ctx context.Context, doc model.RenderedLabel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, doc.Filename)
	return nil
}

func (f *recordingFacility) Save(ctx context.Context, filename string, doc model.RenderedLabel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, filename)
	return nil
}

func (f *recordingFacility) printed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *outcomeRecorder) Report(ctx context.Context, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *outcomeRecorder) get() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

type fakeLabels struct {
	mu       sync.Mutex
	contents []model.LabelContent
	err      error
}

func (f *fakeLabels) Render(c model.LabelContent, kind model.DocumentKind) (model.RenderedLabel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.RenderedLabel{}, f.err
	}
	f.contents = append(f.contents, c)
	return model.RenderedLabel{Kind: kind, Filename: c.Payload, Data: []byte(c.Payload)}, nil
}

type fakeReceipts struct{}

func (fakeReceipts) Render(ctx context.Context, order model.Order) (model.RenderedLabel, error) {
	return model.RenderedLabel{
		Kind:     model.KindPrinterNative,
		MIME:     model.MIMEESCPOS,
		Filename: fmt.Sprintf("order-%d.escpos", order.ID),
		Data:     []byte{0x1B, 0x40},
	}, nil
}

func testOrder(id int, subOrders int) model.Order {
	o := model.Order{
		ID:            id,
		CustomerName:  "Aida",
		DisplayNumber: id * 10,
		Status:        model.OrderStatusPending,
		CreatedAt:     time.Date(2025, 3, 1, 9, id, 0, 0, time.UTC),
	}
	for i := 1; i <= subOrders; i++ {
		o.SubOrders = append(o.SubOrders, model.SubOrder{
			ID:      id*100 + i,
			OrderID: id,
			ProductSize: model.ProductSize{
				ProductName: "Latte",
				SizeName:    "M",
				MachineID:   fmt.Sprintf("M-%d", i),
			},
		})
	}
	return o
}

func TestDispatcher_PrintsOneLabelPerSubOrder(t *testing.T) {
	fac := &recordingFacility{}
	queue := printqueue.New(fac, fac, printqueue.Config{})
	outcomes := &outcomeRecorder{}
	labels := &fakeLabels{}

	d := NewDispatcher(DispatcherConfig{Labels: labels, Queue: queue, Reporter: outcomes, Kind: model.KindPrinterNative})
	require.NoError(t, d.Dispatch(context.Background(), testOrder(1, 2)))
	d.Wait()

	assert.Equal(t, []string{"101|M-1", "102|M-2"}, fac.printed())
	require.Len(t, outcomes.get(), 1)
	o := outcomes.get()[0]
	assert.Equal(t, OutcomePrinted, o.Status)
	assert.Equal(t, "labels", o.Kind)
	assert.Equal(t, 2, o.Documents)
	assert.Equal(t, 10, o.DisplayNumber)
	assert.NotEmpty(t, o.JobID)

	// Default geometry without a store.
	assert.Equal(t, label.DefaultGeometry(label.UsageOrderQR), labels.contents[0].Geometry)
}

func TestDispatcher_UsesSavedGeometry(t *testing.T) {
	store, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	defer store.Close()
	g := model.Geometry{WidthMm: 58, HeightMm: 40}
	require.NoError(t, label.SaveGeometry(context.Background(), store, label.UsageOrderQR, g))

	fac := &recordingFacility{}
	labels := &fakeLabels{}
	d := NewDispatcher(DispatcherConfig{
		Labels:   labels,
		Queue:    printqueue.New(fac, fac, printqueue.Config{}),
		Store:    store,
		Reporter: &outcomeRecorder{},
	})
	require.NoError(t, d.Dispatch(context.Background(), testOrder(2, 1)))
	d.Wait()

	require.Len(t, labels.contents, 1)
	assert.Equal(t, g, labels.contents[0].Geometry)
}

func TestDispatcher_SaveInsteadOfPrint(t *testing.T) {
	fac := &recordingFacility{}
	outcomes := &outcomeRecorder{}
	d := NewDispatcher(DispatcherConfig{
		Labels:             &fakeLabels{},
		Queue:              printqueue.New(nil, fac, printqueue.Config{}),
		Reporter:           outcomes,
		SaveInsteadOfPrint: true,
	})
	require.NoError(t, d.Dispatch(context.Background(), testOrder(3, 1)))
	d.Wait()

	assert.Empty(t, fac.printed())
	require.Len(t, fac.saved, 1)
	assert.True(t, strings.HasSuffix(fac.saved[0], "_301|M-1"), fac.saved[0])
	assert.Equal(t, OutcomeSaved, outcomes.get()[0].Status)
}

func TestDispatcher_RenderFailureIsReported(t *testing.T) {
	fac := &recordingFacility{}
	outcomes := &outcomeRecorder{}
	d := NewDispatcher(DispatcherConfig{
		Labels:   &fakeLabels{err: model.ErrInvalidGeometry},
		Queue:    printqueue.New(fac, fac, printqueue.Config{}),
		Reporter: outcomes,
	})

	err := d.Dispatch(context.Background(), testOrder(4, 1))
	assert.ErrorIs(t, err, model.ErrInvalidGeometry)
	d.Wait()

	assert.Empty(t, fac.printed())
	require.Len(t, outcomes.get(), 1)
	assert.Equal(t, OutcomeFailed, outcomes.get()[0].Status)
	assert.Contains(t, outcomes.get()[0].Error, "invalid geometry")
}

func TestDispatcher_ReceiptSkippedOnKiosk(t *testing.T) {
	labels, receipts := &recordingFacility{}, &recordingFacility{}
	outcomes := &outcomeRecorder{}
	kiosk := printqueue.Config{FormFactor: model.FormFactorKiosk}
	d := NewDispatcher(DispatcherConfig{
		Labels:       &fakeLabels{},
		Queue:        printqueue.New(labels, labels, kiosk),
		Receipts:     fakeReceipts{},
		ReceiptQueue: printqueue.New(receipts, receipts, kiosk),
		Reporter:     outcomes,
	})
	require.NoError(t, d.Dispatch(context.Background(), testOrder(5, 1)))
	d.Wait()

	assert.Equal(t, []string{"501|M-1"}, labels.printed())
	assert.Empty(t, receipts.printed())
	byKind := map[string]OutcomeStatus{}
	for _, o := range outcomes.get() {
		byKind[o.Kind] = o.Status
	}
	assert.Equal(t, map[string]OutcomeStatus{"labels": OutcomePrinted, "receipt": OutcomeSkipped}, byKind)
}

func TestDispatcher_ReceiptGoesToReceiptPrinter(t *testing.T) {
	labels, receipts := &recordingFacility{}, &recordingFacility{}
	desktop := printqueue.Config{FormFactor: model.FormFactorDesktop}
	d := NewDispatcher(DispatcherConfig{
		Labels:       &fakeLabels{},
		Queue:        printqueue.New(labels, labels, desktop),
		Receipts:     fakeReceipts{},
		ReceiptQueue: printqueue.New(receipts, receipts, desktop),
		Reporter:     &outcomeRecorder{},
	})
	require.NoError(t, d.Dispatch(context.Background(), testOrder(6, 1)))
	d.Wait()

	assert.Equal(t, []string{"601|M-1"}, labels.printed())
	assert.Equal(t, []string{"order-6.escpos"}, receipts.printed())
}

func TestDispatcher_ReceiptsNeedTheirOwnQueue(t *testing.T) {
	labels := &recordingFacility{}
	d := NewDispatcher(DispatcherConfig{
		Labels:   &fakeLabels{},
		Queue:    printqueue.New(labels, labels, printqueue.Config{}),
		Receipts: fakeReceipts{},
		Reporter: &outcomeRecorder{},
	})
	require.NoError(t, d.Dispatch(context.Background(), testOrder(7, 1)))
	d.Wait()

	assert.Equal(t, []string{"701|M-1"}, labels.printed(), "no receipt bytes reach the label printer")
}

// gatedReceipts blocks rendering of the orders that have a gate until it is closed.
type gatedReceipts struct {
	gates map[int]chan struct{}
}

func (g gatedReceipts) Render(ctx context.Context, order model.Order) (model.RenderedLabel, error) {
	if gate, ok := g.gates[order.ID]; ok {
		<-gate
	}
	return fakeReceipts{}.Render(ctx, order)
}

func TestDispatcher_HookRendersReceiptsInBackground(t *testing.T) {
	labels, receipts := &recordingFacility{}, &recordingFacility{}
	gate := make(chan struct{})
	d := NewDispatcher(DispatcherConfig{
		Labels:       &fakeLabels{},
		Queue:        printqueue.New(labels, labels, printqueue.Config{}),
		Receipts:     gatedReceipts{gates: map[int]chan struct{}{1: gate}},
		ReceiptQueue: printqueue.New(receipts, receipts, printqueue.Config{}),
		Reporter:     &outcomeRecorder{},
	})

	// Both hooks return while the first receipt is still rendering.
	d.OnOrderCreated(testOrder(1, 1))
	d.OnOrderCreated(testOrder(2, 1))

	assert.Eventually(t, func() bool { return len(labels.printed()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"101|M-1", "201|M-1"}, labels.printed())
	assert.Empty(t, receipts.printed(), "the second receipt waits for the first")

	close(gate)
	d.Wait()
	assert.Equal(t, []string{"order-1.escpos", "order-2.escpos"}, receipts.printed())
}

func TestDispatcher_NoSubOrdersNothingQueued(t *testing.T) {
	fac := &recordingFacility{}
	outcomes := &outcomeRecorder{}
	d := NewDispatcher(DispatcherConfig{Labels: &fakeLabels{}, Queue: printqueue.New(fac, fac, printqueue.Config{}), Reporter: outcomes})

	require.NoError(t, d.Dispatch(context.Background(), testOrder(7, 0)))
	d.Wait()
	assert.Empty(t, fac.printed())
	assert.Empty(t, outcomes.get())
}

func TestDispatcher_SubmitRejected(t *testing.T) {
	fac := &recordingFacility{}
	queue := printqueue.New(fac, fac, printqueue.Config{})
	require.NoError(t, queue.Close(context.Background()))
	outcomes := &outcomeRecorder{}

	d := NewDispatcher(DispatcherConfig{Labels: &fakeLabels{}, Queue: queue, Reporter: outcomes})
	err := d.Dispatch(context.Background(), testOrder(8, 1))
	assert.True(t, errors.Is(err, printqueue.ErrQueueClosed))
	assert.Equal(t, OutcomeFailed, outcomes.get()[0].Status)
}

func TestDispatcher_FromReconcilerHook(t *testing.T) {
	fac := &recordingFacility{}
	renderer, err := label.NewRenderer()
	require.NoError(t, err)
	d := NewDispatcher(DispatcherConfig{
		Labels:   renderer,
		Queue:    printqueue.New(fac, fac, printqueue.Config{}),
		Reporter: &outcomeRecorder{},
		Kind:     DocumentKind("zpl"),
	})
	rec := reconciler.New(reconciler.Options{OnCreated: d.OnOrderCreated})

	frame := `{"type":"order_created","payload":{"id":9,"customerName":"Aida","displayNumber":90,` +
		`"status":"PENDING","createdAt":"2025-03-01T09:00:00Z",` +
		`"subOrders":[{"id":901,"orderId":9,"productSize":{"productName":"Latte","sizeName":"M","machineId":"M-1"}}]}}`
	require.NoError(t, rec.HandleFrame([]byte(frame)))
	d.Wait()

	assert.Equal(t, []string{"qr-901_M-1.zpl"}, fac.printed())
	assert.Equal(t, 1, rec.Len())
}

func TestDocumentKind(t *testing.T) {
	assert.Equal(t, model.KindPrinterNative, DocumentKind("zpl"))
	assert.Equal(t, model.KindPDF, DocumentKind("pdf"))
	assert.Equal(t, model.KindPDF, DocumentKind(""))
}
