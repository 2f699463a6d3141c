package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jacentio/lottrace/lot"
)

// Registry stores lots and keeps the code, type and children indices and the
// per-code chains consistent with them.
//
// Mutations are serialized by a single writer lock and each runs as one
// backend transaction. Reads share a read lock, so they never observe a
// mutation or batch half applied.
type Registry struct {
	backend Backend
	logger  *slog.Logger
	metrics *Metrics

	mu sync.RWMutex
}

// New creates a Registry over backend. A nil logger uses slog.Default().
func New(backend Backend, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		backend: backend,
		logger:  logger,
	}
}

// SetMetrics attaches operation counters.
func (r *Registry) SetMetrics(m *Metrics) {
	r.metrics = m
}

// Backend returns the underlying backend.
func (r *Registry) Backend() Backend {
	return r.backend
}

// Insert stores rec and indexes it. It fails with ErrAlreadyExists if rec.ID
// is stored and with ErrInvalidRecord if rec has no label or id. The
// NextByCode field of rec is ignored.
func (r *Registry) Insert(ctx context.Context, rec lot.Record) (err error) {
	defer func() { r.metrics.observe("insert", err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.backend.Update(ctx, func(tx Tx) error {
		return insert(tx, rec)
	})
	if err != nil {
		return err
	}
	r.metrics.addInserted(1)
	r.logger.Debug("lot inserted",
		"lotId", rec.ID.String(),
		"itemCode", rec.ItemCode,
		"itemType", rec.ItemType,
	)
	return nil
}

// Add inserts the record described by in and returns its derived id.
func (r *Registry) Add(ctx context.Context, in lot.Input) (lot.ID, error) {
	rec := in.Record()
	if err := r.Insert(ctx, rec); err != nil {
		return lot.ID{}, err
	}
	return rec.ID, nil
}

// BatchInsert inserts recs in order as one atomic unit. If any record fails,
// nothing is stored and the error wraps ErrInvalidBatch and the cause.
func (r *Registry) BatchInsert(ctx context.Context, recs []lot.Record) (err error) {
	defer func() { r.metrics.observe("batch_insert", err) }()

	if len(recs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.backend.Update(ctx, func(tx Tx) error {
		for i, rec := range recs {
			if err := insert(tx, rec); err != nil {
				return fmt.Errorf("%w: record %d (%q): %w", ErrInvalidBatch, i, rec.Lot, err)
			}
		}
		return nil
	})
	if err != nil {
		// Conflicts detected only at commit carry no record index.
		if !errors.Is(err, ErrInvalidBatch) && errors.Is(err, ErrAlreadyExists) {
			err = fmt.Errorf("%w: %w", ErrInvalidBatch, err)
		}
		r.logger.Warn("batch rejected", "count", len(recs), "error", err)
		return err
	}

	r.metrics.addInserted(len(recs))
	r.logger.Debug("batch inserted", "count", len(recs))
	return nil
}

// BatchAdd inserts the records described by inputs as one batch and returns
// their ids in input order.
func (r *Registry) BatchAdd(ctx context.Context, inputs []lot.Input) ([]lot.ID, error) {
	recs := lot.Records(inputs)
	if err := r.BatchInsert(ctx, recs); err != nil {
		return nil, err
	}
	ids := make([]lot.ID, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return ids, nil
}

// Get returns the record stored under id, or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id lot.ID) (rec lot.Record, err error) {
	defer func() { r.metrics.observe("get", err) }()

	r.mu.RLock()
	defer r.mu.RUnlock()

	err = r.backend.View(ctx, func(tx Tx) error {
		var err error
		rec, err = getRecord(tx, id)
		return err
	})
	return rec, err
}

// Update overwrites the mutable fields of the record stored under id. It
// fails with ErrNotFound if id is not stored. Indexed fields never change, so
// no index is touched.
func (r *Registry) Update(ctx context.Context, id lot.ID, patch lot.Patch) (err error) {
	defer func() { r.metrics.observe("update", err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.backend.Update(ctx, func(tx Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		rec.Apply(patch)
		return tx.PutRecord(rec)
	})
	if err != nil {
		return err
	}
	r.logger.Debug("lot updated", "lotId", id.String())
	return nil
}

// Parent returns the parent id recorded for id; Zero for roots.
func (r *Registry) Parent(ctx context.Context, id lot.ID) (lot.ID, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return lot.ID{}, err
	}
	return rec.ParentID, nil
}

func getRecord(tx Tx, id lot.ID) (lot.Record, error) {
	rec, err := tx.Record(id)
	if errors.Is(err, ErrNotFound) {
		return lot.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// insert writes rec, links it at the tail of its code chain and appends it to
// every index it belongs to.
func insert(tx Tx, rec lot.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := tx.Record(rec.ID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s (%q)", ErrAlreadyExists, rec.ID, rec.Lot)
	case !errors.Is(err, ErrNotFound):
		return err
	}

	rec.NextByCode = lot.Zero

	chain, err := tx.Chain(rec.ItemCode)
	if err != nil {
		return fmt.Errorf("read chain %q: %w", rec.ItemCode, err)
	}
	if chain.IsEmpty() {
		chain.Head = rec.ID
	} else {
		tail, err := tx.Record(chain.Tail)
		if err != nil {
			return fmt.Errorf("read chain tail %s: %w", chain.Tail, err)
		}
		tail.NextByCode = rec.ID
		if err := tx.PutRecord(tail); err != nil {
			return err
		}
	}
	chain.Tail = rec.ID

	if err := tx.CreateRecord(rec); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("%w: %s (%q)", ErrAlreadyExists, rec.ID, rec.Lot)
		}
		return err
	}
	if err := tx.PutChain(rec.ItemCode, chain); err != nil {
		return err
	}
	if err := tx.Append(KindType, rec.ItemType, rec.ID); err != nil {
		return err
	}
	if err := tx.Append(KindCode, rec.ItemCode, rec.ID); err != nil {
		return err
	}
	if !rec.ParentID.IsZero() {
		if err := tx.Append(KindChildren, ChildrenKey(rec.ParentID), rec.ID); err != nil {
			return err
		}
	}
	return nil
}
