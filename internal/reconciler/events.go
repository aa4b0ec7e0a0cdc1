package reconciler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

// Event is one decoded feed frame. The set of implementations is closed.
type Event interface {
	eventType() model.EventType
}

type InitialData struct {
	Orders []model.Order
	// Rejected holds the reason for every order left out of Orders.
	Rejected []error
}

type OrderCreated struct {
	Order model.Order
}

type OrderUpdated struct {
	Order model.Order
}

type OrderDeleted struct {
	OrderID int
}

// Unrecognized carries a well-formed frame whose type the agent does not know.
type Unrecognized struct {
	Type    model.EventType
	Payload json.RawMessage
}

func (InitialData) eventType() model.EventType  { return model.EventTypeInitialData }
func (OrderCreated) eventType() model.EventType { return model.EventTypeOrderCreated }
func (OrderUpdated) eventType() model.EventType { return model.EventTypeOrderUpdated }
func (OrderDeleted) eventType() model.EventType { return model.EventTypeOrderDeleted }
func (u Unrecognized) eventType() model.EventType {
	return u.Type
}

// DecodeFrame parses and validates a raw frame. Malformed JSON, a missing type
// or a payload that does not match its type yields ErrMalformedFrame. Invalid
// orders inside initial_data are left out and listed in InitialData.Rejected.
func DecodeFrame(raw []byte) (Event, error) {
	var frame model.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedFrame, err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("%w: missing type", model.ErrMalformedFrame)
	}

	switch frame.Type {
	case model.EventTypeInitialData:
		var orders []model.Order
		if err := decodePayload(frame, &orders); err != nil {
			return nil, err
		}
		ev := InitialData{Orders: make([]model.Order, 0, len(orders))}
		for i := range orders {
			if err := validateOrder(orders[i]); err != nil {
				ev.Rejected = append(ev.Rejected, fmt.Errorf("order at index %d: %w", i, err))
				continue
			}
			ev.Orders = append(ev.Orders, orders[i])
		}
		// A snapshot with nothing usable in it would wipe the collection.
		if len(orders) > 0 && len(ev.Orders) == 0 {
			return nil, fmt.Errorf("%w: %s: no valid orders: %v", model.ErrMalformedFrame, frame.Type, errors.Join(ev.Rejected...))
		}
		return ev, nil

	case model.EventTypeOrderCreated, model.EventTypeOrderSucceeded:
		order, err := decodeOrder(frame)
		if err != nil {
			return nil, err
		}
		return OrderCreated{Order: order}, nil

	case model.EventTypeOrderUpdated:
		order, err := decodeOrder(frame)
		if err != nil {
			return nil, err
		}
		return OrderUpdated{Order: order}, nil

	case model.EventTypeOrderDeleted:
		id, err := decodeOrderID(frame)
		if err != nil {
			return nil, err
		}
		return OrderDeleted{OrderID: id}, nil

	default:
		return Unrecognized{Type: frame.Type, Payload: frame.Payload}, nil
	}
}

func decodePayload(frame model.Frame, v any) error {
	if len(bytes.TrimSpace(frame.Payload)) == 0 || bytes.Equal(bytes.TrimSpace(frame.Payload), []byte("null")) {
		return fmt.Errorf("%w: %s without payload", model.ErrMalformedFrame, frame.Type)
	}
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", model.ErrMalformedFrame, frame.Type, err)
	}
	return nil
}

func decodeOrder(frame model.Frame) (model.Order, error) {
	var order model.Order
	if err := decodePayload(frame, &order); err != nil {
		return order, err
	}
	if err := validateOrder(order); err != nil {
		return order, fmt.Errorf("%w: %s: %v", model.ErrMalformedFrame, frame.Type, err)
	}
	return order, nil
}

// decodeOrderID accepts a bare id or an object carrying one.
func decodeOrderID(frame model.Frame) (int, error) {
	var id int
	if err := decodePayload(frame, &id); err == nil {
		if id == 0 {
			return 0, fmt.Errorf("%w: %s: zero id", model.ErrMalformedFrame, frame.Type)
		}
		return id, nil
	}

	var ref struct {
		ID int `json:"id"`
	}
	if err := decodePayload(frame, &ref); err != nil {
		return 0, err
	}
	if ref.ID == 0 {
		return 0, fmt.Errorf("%w: %s: missing id", model.ErrMalformedFrame, frame.Type)
	}
	return ref.ID, nil
}

func validateOrder(o model.Order) error {
	if o.ID == 0 {
		return errors.New("missing id")
	}
	if o.CreatedAt.IsZero() {
		return fmt.Errorf("order %d: missing createdAt", o.ID)
	}
	return nil
}
