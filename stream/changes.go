// Package stream turns DynamoDB Streams events of the lots table into lot
// change notifications.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/store"
)

// Kind says what happened to a lot.
type Kind string

const (
	// Inserted marks a newly stored lot.
	Inserted Kind = "inserted"
	// Updated marks a change to the mutable fields of a stored lot.
	Updated Kind = "updated"
)

// Change is one lot change. Old is nil for inserts.
type Change struct {
	Kind           Kind
	Old            *lot.Record
	New            lot.Record
	SequenceNumber string
}

// Sink receives changes in stream order.
type Sink interface {
	Publish(ctx context.Context, c Change) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, c Change) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, c Change) error {
	return f(ctx, c)
}

// LogSink logs every change at info level.
func LogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return SinkFunc(func(ctx context.Context, c Change) error {
		logger.InfoContext(ctx, "lot changed",
			"kind", string(c.Kind),
			"lotId", c.New.ID.String(),
			"lot", c.New.Lot,
			"itemCode", c.New.ItemCode,
			"amount", c.New.Amount,
		)
		return nil
	})
}

// Handler processes DynamoDB stream events of the lots table.
type Handler struct {
	sink   Sink
	logger *slog.Logger
}

// NewHandler creates a new stream handler. A nil sink logs changes.
func NewHandler(sink Sink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = LogSink(logger)
	}
	return &Handler{
		sink:   sink,
		logger: logger,
	}
}

// HandleLotChanges publishes the lot changes in event.
// This function is designed to be used as an AWS Lambda handler. A failed
// record aborts the batch so Lambda retries it.
func (h *Handler) HandleLotChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"lotId", getStringAttr(record.Change.Keys, store.AttrLotID),
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord publishes one stream record, if it is a lot change.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	change, ok, err := decodeChange(record)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := h.sink.Publish(ctx, change); err != nil {
		return fmt.Errorf("publish %s: %w", change.New.ID, err)
	}
	return nil
}

// decodeChange reports false for records that are not lot changes: removals,
// and modifications that only relink the code chain.
func decodeChange(record events.DynamoDBEventRecord) (Change, bool, error) {
	switch events.DynamoDBOperationType(record.EventName) {
	case events.DynamoDBOperationTypeInsert:
		rec, err := DecodeRecord(record.Change.NewImage)
		if err != nil {
			return Change{}, false, fmt.Errorf("new image: %w", err)
		}
		return Change{
			Kind:           Inserted,
			New:            rec,
			SequenceNumber: record.Change.SequenceNumber,
		}, true, nil

	case events.DynamoDBOperationTypeModify:
		rec, err := DecodeRecord(record.Change.NewImage)
		if err != nil {
			return Change{}, false, fmt.Errorf("new image: %w", err)
		}
		old, err := DecodeRecord(record.Change.OldImage)
		if err != nil {
			return Change{}, false, fmt.Errorf("old image: %w", err)
		}
		relinked := old
		relinked.NextByCode = rec.NextByCode
		if relinked == rec {
			return Change{}, false, nil
		}
		return Change{
			Kind:           Updated,
			Old:            &old,
			New:            rec,
			SequenceNumber: record.Change.SequenceNumber,
		}, true, nil

	default:
		return Change{}, false, nil
	}
}
