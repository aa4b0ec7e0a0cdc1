// Package reconciler keeps a local, ordered mirror of the store's orders
// from the live order feed.
package reconciler

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

// CreatedHook runs after an order_created frame has been applied.
type CreatedHook func(order model.Order)

type Options struct {
	// Filter limits Filtered to these statuses; empty means all orders.
	Filter    []model.OrderStatus
	OnCreated CreatedHook
	Logger    *slog.Logger
}

// Reconciler owns the order collection. It is only mutated through
// HandleFrame and Apply; each frame is applied atomically under one lock and
// readers always receive copies.
type Reconciler struct {
	mu        sync.RWMutex
	orders    []model.Order
	filter    map[model.OrderStatus]struct{}
	onCreated CreatedHook
	logger    *slog.Logger
}

func New(opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		filter:    statusSet(opts.Filter),
		onCreated: opts.OnCreated,
		logger:    logger.With("component", "reconciler"),
	}
}

// HandleFrame decodes and applies one raw feed frame. Malformed and unknown
// frames are logged and returned; the collection is left untouched.
func (r *Reconciler) HandleFrame(raw []byte) error {
	ev, err := DecodeFrame(raw)
	if err != nil {
		r.logger.Warn("dropping malformed frame", "error", err)
		return err
	}
	return r.Apply(ev)
}

func (r *Reconciler) Apply(ev Event) error {
	var created *model.Order

	r.mu.Lock()
	switch e := ev.(type) {
	case InitialData:
		for _, err := range e.Rejected {
			r.logger.Warn("skipping invalid order in initial data", "error", err)
		}
		r.orders = dedupe(e.Orders)
		sortByCreation(r.orders)
		r.logger.Info("initial orders loaded", "orders", len(r.orders))

	case OrderCreated:
		r.upsert(e.Order)
		order := cloneOrder(e.Order)
		created = &order
		r.logger.Debug("order created", "order", e.Order.ID)

	case OrderUpdated:
		r.upsert(e.Order)
		r.logger.Debug("order updated", "order", e.Order.ID, "status", e.Order.Status)

	case OrderDeleted:
		r.remove(e.OrderID)
		r.logger.Debug("order deleted", "order", e.OrderID)

	case Unrecognized:
		r.mu.Unlock()
		r.logger.Warn("ignoring unknown event type", "type", e.Type)
		return fmt.Errorf("%w: %q", model.ErrUnknownEventType, e.Type)

	default:
		r.mu.Unlock()
		return fmt.Errorf("%w: %T", model.ErrUnknownEventType, ev)
	}
	r.mu.Unlock()

	// The side effect never rolls back the mutation above.
	if created != nil && r.onCreated != nil {
		r.onCreated(*created)
	}
	return nil
}

// upsert replaces the order with the same id or puts it in front, then
// re-sorts, so a new order sorts ahead of existing ones with the same
// creation time. Must be called with r.mu held.
func (r *Reconciler) upsert(order model.Order) {
	order = cloneOrder(order)
	for i := range r.orders {
		if r.orders[i].ID == order.ID {
			r.orders[i] = order
			sortByCreation(r.orders)
			return
		}
	}
	r.orders = append([]model.Order{order}, r.orders...)
	sortByCreation(r.orders)
}

func (r *Reconciler) remove(id int) {
	for i := range r.orders {
		if r.orders[i].ID == id {
			r.orders = append(r.orders[:i], r.orders[i+1:]...)
			return
		}
	}
}

// Orders returns a copy of the collection, ascending by creation time.
func (r *Reconciler) Orders() []model.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneOrders(r.orders, nil)
}

func (r *Reconciler) Get(id int) (model.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.ID == id {
			return cloneOrder(o), true
		}
	}
	return model.Order{}, false
}

func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// Filtered returns the orders matching the current status filter.
func (r *Reconciler) Filtered() []model.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.filter) == 0 {
		return cloneOrders(r.orders, nil)
	}
	return cloneOrders(r.orders, func(o model.Order) bool {
		_, ok := r.filter[o.Status]
		return ok
	})
}

// SetFilter replaces the status filter. No statuses clears it.
func (r *Reconciler) SetFilter(statuses ...model.OrderStatus) {
	set := statusSet(statuses)
	r.mu.Lock()
	r.filter = set
	r.mu.Unlock()
}

// StatusCounts counts orders per known status. Every known status is present.
func (r *Reconciler) StatusCounts() map[model.OrderStatus]int {
	counts := make(map[model.OrderStatus]int, len(model.OrderStatuses))
	for _, s := range model.OrderStatuses {
		counts[s] = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if _, ok := counts[o.Status]; ok {
			counts[o.Status]++
		}
	}
	return counts
}

func statusSet(statuses []model.OrderStatus) map[model.OrderStatus]struct{} {
	set := make(map[model.OrderStatus]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// sortByCreation is stable so equal timestamps keep arrival order.
func sortByCreation(orders []model.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

// dedupe keeps the last occurrence of every id at the position of its first.
func dedupe(orders []model.Order) []model.Order {
	index := make(map[int]int, len(orders))
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if i, ok := index[o.ID]; ok {
			out[i] = cloneOrder(o)
			continue
		}
		index[o.ID] = len(out)
		out = append(out, cloneOrder(o))
	}
	return out
}

func cloneOrders(orders []model.Order, keep func(model.Order) bool) []model.Order {
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if keep == nil || keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	return out
}

func cloneOrder(o model.Order) model.Order {
	if o.SubOrders == nil {
		return o
	}
	subs := make([]model.SubOrder, len(o.SubOrders))
	for i, sb := range o.SubOrders {
		if sb.Additives != nil {
			sb.Additives = append([]model.SubOrderAdditive(nil), sb.Additives...)
		}
		subs[i] = sb
	}
	o.SubOrders = subs
	return o
}
