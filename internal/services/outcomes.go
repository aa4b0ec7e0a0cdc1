package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

type OutcomeStatus string

const (
	OutcomePrinted OutcomeStatus = "printed"
	OutcomeSaved   OutcomeStatus = "saved"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome describes what happened to the documents of one order.
type Outcome struct {
	OrderID       int           `json:"orderId"`
	DisplayNumber int           `json:"displayNumber"`
	JobID         string        `json:"jobId,omitempty"`
	Kind          string        `json:"kind"` // "labels" or "receipt"
	Documents     int           `json:"documents"`
	Status        OutcomeStatus `json:"status"`
	Error         string        `json:"error,omitempty"`
	At            time.Time     `json:"at"`
}

// Reporter publishes print outcomes. Report must not block for long.
type Reporter interface {
	Report(ctx context.Context, o Outcome) error
}

// LogReporter writes outcomes to the structured log.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger.With("component", "outcomes")}
}

func (r *LogReporter) Report(ctx context.Context, o Outcome) error {
	attrs := []any{
		"order", o.OrderID,
		"display_number", o.DisplayNumber,
		"kind", o.Kind,
		"job", o.JobID,
		"documents", o.Documents,
		"status", o.Status,
	}
	if o.Status == OutcomeFailed {
		r.logger.ErrorContext(ctx, "print failed", append(attrs, "error", o.Error)...)
		return nil
	}
	r.logger.InfoContext(ctx, "print outcome", attrs...)
	return nil
}

// KafkaReporter publishes outcomes as JSON keyed by order id so every order
// lands on one partition.
type KafkaReporter struct {
	writer *kafka.Writer
}

func NewKafkaReporter(brokers []string, topic string) (*KafkaReporter, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka reporter requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka reporter requires a topic")
	}
	return &KafkaReporter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (r *KafkaReporter) Report(ctx context.Context, o Outcome) error {
	msg, err := outcomeMessage(o)
	if err != nil {
		return err
	}
	return r.writer.WriteMessages(ctx, msg)
}

func (r *KafkaReporter) Close() error {
	return r.writer.Close()
}

func outcomeMessage(o Outcome) (kafka.Message, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode outcome: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.Itoa(o.OrderID)),
		Value: payload,
		Time:  o.At.UTC(),
	}, nil
}

// MultiReporter fans an outcome out to every reporter and joins their errors.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, o Outcome) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
