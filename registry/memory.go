package registry

import (
	"context"
	"sync"

	"github.com/jacentio/lottrace/lot"
)

type indexKey struct {
	kind Kind
	key  string
}

// MemoryBackend keeps the registry state in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[lot.ID]lot.Record
	indexes map[indexKey][]lot.ID
	chains  map[string]Chain
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[lot.ID]lot.Record),
		indexes: make(map[indexKey][]lot.ID),
		chains:  make(map[string]Chain),
	}
}

// View runs fn under the read lock.
func (m *MemoryBackend) View(_ context.Context, fn func(tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{base: m})
}

// Update runs fn against an overlay of pending writes and applies the overlay
// only when fn succeeds.
func (m *MemoryBackend) Update(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		base:     m,
		writable: true,
		records:  make(map[lot.ID]lot.Record),
		appends:  make(map[indexKey][]lot.ID),
		chains:   make(map[string]Chain),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Len returns the number of stored records.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

type memTx struct {
	base     *MemoryBackend
	writable bool

	records map[lot.ID]lot.Record
	appends map[indexKey][]lot.ID
	chains  map[string]Chain
}

func (tx *memTx) Record(id lot.ID) (lot.Record, error) {
	if rec, ok := tx.records[id]; ok {
		return rec, nil
	}
	if rec, ok := tx.base.records[id]; ok {
		return rec, nil
	}
	return lot.Record{}, ErrNotFound
}

func (tx *memTx) CreateRecord(rec lot.Record) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if _, err := tx.Record(rec.ID); err == nil {
		return ErrAlreadyExists
	}
	tx.records[rec.ID] = rec
	return nil
}

func (tx *memTx) PutRecord(rec lot.Record) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.records[rec.ID] = rec
	return nil
}

func (tx *memTx) Index(kind Kind, key string) ([]lot.ID, error) {
	k := indexKey{kind: kind, key: key}
	base := tx.base.indexes[k]
	pending := tx.appends[k]
	ids := make([]lot.ID, 0, len(base)+len(pending))
	ids = append(ids, base...)
	return append(ids, pending...), nil
}

func (tx *memTx) Append(kind Kind, key string, id lot.ID) error {
	if !tx.writable {
		return ErrReadOnly
	}
	k := indexKey{kind: kind, key: key}
	tx.appends[k] = append(tx.appends[k], id)
	return nil
}

func (tx *memTx) Chain(code string) (Chain, error) {
	if c, ok := tx.chains[code]; ok {
		return c, nil
	}
	return tx.base.chains[code], nil
}

func (tx *memTx) PutChain(code string, c Chain) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.chains[code] = c
	return nil
}

// commit applies the overlay; the caller holds the write lock.
func (tx *memTx) commit() {
	for id, rec := range tx.records {
		tx.base.records[id] = rec
	}
	for k, ids := range tx.appends {
		tx.base.indexes[k] = append(tx.base.indexes[k], ids...)
	}
	for code, c := range tx.chains {
		tx.base.chains[code] = c
	}
}
