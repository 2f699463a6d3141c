package badgerstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/registry"
)

// Store is a registry.Backend on badger. Transactions map one to one onto
// badger transactions, which see their own pending writes.
type Store struct {
	db    *badger.DB
	codec codec
}

var _ registry.Backend = (*Store)(nil)

// Open opens or creates a database in dir. A nil logger uses slog.Default().
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return open(badger.DefaultOptions(dir).WithLogger(slogAdapter{logger: logger}))
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, codec: c}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// View runs fn in a read-only badger transaction.
func (s *Store) View(ctx context.Context, fn func(tx registry.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn, codec: s.codec})
	})
}

// Update runs fn in a read-write badger transaction, committed if fn
// succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx registry.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn, codec: s.codec, writable: true})
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("transaction too large: %w", err)
	}
	return err
}

func recordKey(id lot.ID) []byte {
	return append([]byte("r/"), id[:]...)
}

func indexPrefix(kind registry.Kind, key string) []byte {
	return fmt.Appendf(nil, "i/%d/%s/", kind, hex.EncodeToString([]byte(key)))
}

func countKey(kind registry.Kind, key string) []byte {
	return fmt.Appendf(nil, "n/%d/%s", kind, hex.EncodeToString([]byte(key)))
}

func chainKey(code string) []byte {
	return append([]byte("c/"), hex.EncodeToString([]byte(code))...)
}

type tx struct {
	txn      *badger.Txn
	codec    codec
	writable bool
}

// get returns nil, nil for a missing key.
func (t *tx) get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *tx) Record(id lot.ID) (lot.Record, error) {
	val, err := t.get(recordKey(id))
	if err != nil {
		return lot.Record{}, err
	}
	if val == nil {
		return lot.Record{}, registry.ErrNotFound
	}
	return t.codec.decodeRecord(val)
}

func (t *tx) CreateRecord(rec lot.Record) error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	val, err := t.get(recordKey(rec.ID))
	if err != nil {
		return err
	}
	if val != nil {
		return registry.ErrAlreadyExists
	}
	return t.put(rec)
}

func (t *tx) PutRecord(rec lot.Record) error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	return t.put(rec)
}

func (t *tx) put(rec lot.Record) error {
	val, err := t.codec.encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return t.txn.Set(recordKey(rec.ID), val)
}

func (t *tx) Index(kind registry.Kind, key string) ([]lot.ID, error) {
	prefix := indexPrefix(kind, key)
	ids := []lot.ID{}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		id, err := idFromBytes(val)
		if err != nil {
			return nil, fmt.Errorf("index %s %q: %w", kind, key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *tx) Append(kind registry.Kind, key string, id lot.ID) error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	ck := countKey(kind, key)
	val, err := t.get(ck)
	if err != nil {
		return err
	}
	var count uint64
	if len(val) == 8 {
		count = binary.BigEndian.Uint64(val)
	}
	count++

	entry := binary.BigEndian.AppendUint64(indexPrefix(kind, key), count)
	if err := t.txn.Set(entry, append([]byte(nil), id[:]...)); err != nil {
		return err
	}
	return t.txn.Set(ck, binary.BigEndian.AppendUint64(nil, count))
}

func (t *tx) Chain(code string) (registry.Chain, error) {
	val, err := t.get(chainKey(code))
	if err != nil {
		return registry.Chain{}, err
	}
	if val == nil {
		return registry.Chain{}, nil
	}
	return t.codec.decodeChain(val)
}

func (t *tx) PutChain(code string, c registry.Chain) error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	val, err := t.codec.encodeChain(c)
	if err != nil {
		return fmt.Errorf("encode chain %q: %w", code, err)
	}
	return t.txn.Set(chainKey(code), val)
}
