package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lottrace/internal/shard"
	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/registry"
)

// MaxTransactItems is the DynamoDB limit on actions per TransactWriteItems.
const MaxTransactItems = 100

// Condition expressions used on commit.
const (
	CondLotNotExists  = "attribute_not_exists(lot_id)"
	CondVersionEquals = "attribute_exists(lot_id) AND #version = :expected_version"
	CondRowNotExists  = "attribute_not_exists(pk)"
	CondCountEquals   = "#count = :prev"
	CondTailEquals    = "#tail = :prev"
)

// API is the subset of the DynamoDB client the Store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store is a registry.Backend on two DynamoDB tables.
//
// Reads are strongly consistent but a View is not a snapshot across items;
// the Registry's lock provides snapshot reads within one process. Writes are
// buffered per transaction and committed in a single TransactWriteItems call
// whose conditions detect concurrent writers in other processes.
type Store struct {
	client API
	config Config
}

var _ registry.Backend = (*Store)(nil)

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// View runs fn against a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx registry.Tx) error) error {
	return fn(s.newTx(ctx, false))
}

// Update runs fn and commits its writes in one transaction if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx registry.Tx) error) error {
	tx := s.newTx(ctx, true)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// getItem fetches one item with a strongly consistent read; nil if absent.
func (s *Store) getItem(ctx context.Context, table string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return result.Item, nil
}

// getRecord returns the stored record and the version it was read at.
func (s *Store) getRecord(ctx context.Context, id lot.ID) (lot.Record, int64, error) {
	raw, err := s.getItem(ctx, s.config.LotTable, lotKey(id))
	if err != nil {
		return lot.Record{}, 0, fmt.Errorf("get lot %s: %w", id, err)
	}
	if raw == nil {
		return lot.Record{}, 0, registry.ErrNotFound
	}
	var it LotItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return lot.Record{}, 0, fmt.Errorf("unmarshal lot %s: %w", id, err)
	}
	rec, err := it.Record()
	if err != nil {
		return lot.Record{}, 0, err
	}
	return rec, it.Version, nil
}

func (s *Store) getCount(ctx context.Context, ref string) (int64, error) {
	raw, err := s.getItem(ctx, s.config.IndexTable, rowKey(metaPK(ref)))
	if err != nil {
		return 0, fmt.Errorf("get index count %q: %w", ref, err)
	}
	if raw == nil {
		return 0, nil
	}
	var meta indexMeta
	if err := attributevalue.UnmarshalMap(raw, &meta); err != nil {
		return 0, fmt.Errorf("unmarshal index count %q: %w", ref, err)
	}
	return meta.Count, nil
}

func (s *Store) getChain(ctx context.Context, code string) (registry.Chain, error) {
	raw, err := s.getItem(ctx, s.config.IndexTable, rowKey(chainPK(code)))
	if err != nil {
		return registry.Chain{}, fmt.Errorf("get chain %q: %w", code, err)
	}
	if raw == nil {
		return registry.Chain{}, nil
	}
	var c chainItem
	if err := attributevalue.UnmarshalMap(raw, &c); err != nil {
		return registry.Chain{}, fmt.Errorf("unmarshal chain %q: %w", code, err)
	}
	return c.chain()
}

// queryIndex returns the committed entries of ref ordered by sequence number.
func (s *Store) queryIndex(ctx context.Context, ref string) ([]lot.ID, error) {
	pks := shard.All(ref, s.config.NumShards)

	var entries []indexEntry
	if len(pks) == 1 {
		// Fast path for single shard (default)
		var err error
		entries, err = s.queryShard(ctx, pks[0])
		if err != nil {
			return nil, err
		}
	} else {
		// Multi-shard fan-out
		var mu sync.Mutex
		var wg sync.WaitGroup
		errs := make(chan error, len(pks))

		for shardNum, pk := range pks {
			wg.Add(1)
			go func(shardNum int, pk string) {
				defer wg.Done()

				shardEntries, err := s.queryShard(ctx, pk)
				if err != nil {
					errs <- fmt.Errorf("shard %02x: %w", shardNum, err)
					return
				}

				mu.Lock()
				entries = append(entries, shardEntries...)
				mu.Unlock()
			}(shardNum, pk)
		}

		go func() {
			wg.Wait()
			close(errs)
		}()

		for err := range errs {
			if err != nil {
				return nil, err
			}
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].SK < entries[j].SK })
	}

	ids := make([]lot.ID, 0, len(entries))
	for _, e := range entries {
		id, err := ParseHexID(e.LotID)
		if err != nil {
			return nil, fmt.Errorf("index %q at %d: %w", ref, e.SK, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) queryShard(ctx context.Context, pk string) ([]indexEntry, error) {
	var entries []indexEntry

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.IndexTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ConsistentRead: aws.Bool(true),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var pageEntries []indexEntry
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageEntries); err != nil {
			return nil, fmt.Errorf("unmarshal index entries: %w", err)
		}
		entries = append(entries, pageEntries...)
	}

	return entries, nil
}

// tx buffers writes until commit. Reads consult the buffer first.
type tx struct {
	ctx      context.Context
	s        *Store
	writable bool

	records  map[lot.ID]lot.Record
	created  map[lot.ID]bool
	versions map[lot.ID]int64
	recOrder []lot.ID

	counts   map[string]int64
	appends  map[string][]lot.ID
	refOrder []string

	chainsRead map[string]registry.Chain
	chains     map[string]registry.Chain
	codeOrder  []string
}

func (s *Store) newTx(ctx context.Context, writable bool) *tx {
	return &tx{
		ctx:        ctx,
		s:          s,
		writable:   writable,
		records:    make(map[lot.ID]lot.Record),
		created:    make(map[lot.ID]bool),
		versions:   make(map[lot.ID]int64),
		counts:     make(map[string]int64),
		appends:    make(map[string][]lot.ID),
		chainsRead: make(map[string]registry.Chain),
		chains:     make(map[string]registry.Chain),
	}
}

func (t *tx) Record(id lot.ID) (lot.Record, error) {
	if rec, ok := t.records[id]; ok {
		return rec, nil
	}
	rec, version, err := t.s.getRecord(t.ctx, id)
	if err != nil {
		return lot.Record{}, err
	}
	// Writes are conditioned on the first version seen.
	if _, ok := t.versions[id]; !ok {
		t.versions[id] = version
	}
	return rec, nil
}

func (t *tx) CreateRecord(rec lot.Record) error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	if _, ok := t.records[rec.ID]; ok {
		return registry.ErrAlreadyExists
	}
	t.created[rec.ID] = true
	t.putRecord(rec)
	return nil
}

func (t *tx) PutRecord(rec lot.Record) error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	if _, ok := t.versions[rec.ID]; !ok && !t.created[rec.ID] {
		if _, err := t.Record(rec.ID); err != nil {
			return err
		}
	}
	t.putRecord(rec)
	return nil
}

func (t *tx) putRecord(rec lot.Record) {
	if _, ok := t.records[rec.ID]; !ok {
		t.recOrder = append(t.recOrder, rec.ID)
	}
	t.records[rec.ID] = rec
}

func (t *tx) Index(kind registry.Kind, key string) ([]lot.ID, error) {
	ref := indexRef(kind, key)
	ids, err := t.s.queryIndex(t.ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("query index %q: %w", ref, err)
	}
	return append(ids, t.appends[ref]...), nil
}

func (t *tx) Append(kind registry.Kind, key string, id lot.ID) error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	ref := indexRef(kind, key)
	if _, ok := t.counts[ref]; !ok {
		count, err := t.s.getCount(t.ctx, ref)
		if err != nil {
			return err
		}
		t.counts[ref] = count
		t.refOrder = append(t.refOrder, ref)
	}
	t.appends[ref] = append(t.appends[ref], id)
	return nil
}

func (t *tx) Chain(code string) (registry.Chain, error) {
	if c, ok := t.chains[code]; ok {
		return c, nil
	}
	if c, ok := t.chainsRead[code]; ok {
		return c, nil
	}
	c, err := t.s.getChain(t.ctx, code)
	if err != nil {
		return registry.Chain{}, err
	}
	t.chainsRead[code] = c
	return c, nil
}

func (t *tx) PutChain(code string, c registry.Chain) error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	if _, ok := t.chainsRead[code]; !ok {
		// Condition the write on the chain as stored now.
		if _, err := t.Chain(code); err != nil {
			return err
		}
	}
	if _, ok := t.chains[code]; !ok {
		t.codeOrder = append(t.codeOrder, code)
	}
	t.chains[code] = c
	return nil
}

// action describes a transaction item for error mapping.
type action struct {
	createID lot.ID
	create   bool
	what     string
}

func (t *tx) commit() error {
	items, actions, err := t.build()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	if len(items) > MaxTransactItems {
		return fmt.Errorf("%w: %d write actions, limit %d", ErrTransactionTooLarge, len(items), MaxTransactItems)
	}

	_, err = t.s.client.TransactWriteItems(t.ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapCommitError(err, actions)
}

// build turns the buffered writes into transaction items, in the order
// records, index entries and counters, chains.
func (t *tx) build() ([]types.TransactWriteItem, []action, error) {
	var items []types.TransactWriteItem
	var actions []action

	put := func(table string, v any, cond string, names map[string]string, values map[string]types.AttributeValue, a action) error {
		item, err := marshalItem(v)
		if err != nil {
			return err
		}
		p := &types.Put{
			TableName:                 aws.String(table),
			Item:                      item,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}
		if cond != "" {
			p.ConditionExpression = aws.String(cond)
		}
		items = append(items, types.TransactWriteItem{Put: p})
		actions = append(actions, a)
		return nil
	}

	for _, id := range t.recOrder {
		it := NewLotItem(t.records[id])
		a := action{createID: id, create: t.created[id], what: "lot " + id.String()}
		var err error
		if t.created[id] {
			it.Version = 1
			err = put(t.s.config.LotTable, it, CondLotNotExists, nil, nil, a)
		} else {
			prev := t.versions[id]
			it.Version = prev + 1
			a.what += " version " + strconv.FormatInt(prev, 10)
			err = put(t.s.config.LotTable, it, CondVersionEquals,
				map[string]string{"#version": AttrVersion},
				map[string]types.AttributeValue{
					":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(prev, 10)},
				}, a)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	for _, ref := range t.refOrder {
		prev := t.counts[ref]
		ids := t.appends[ref]
		for i, id := range ids {
			seq := prev + int64(i) + 1
			entry := indexEntry{
				PK:    shard.IndexPK(ref, id.Hex(), t.s.config.NumShards),
				SK:    seq,
				LotID: id.Hex(),
			}
			a := action{what: fmt.Sprintf("index %q entry %d", ref, seq)}
			if err := put(t.s.config.IndexTable, entry, "", nil, nil, a); err != nil {
				return nil, nil, err
			}
		}

		meta := indexMeta{PK: metaPK(ref), Count: prev + int64(len(ids))}
		a := action{what: fmt.Sprintf("index %q count", ref)}
		var err error
		if prev == 0 {
			err = put(t.s.config.IndexTable, meta, CondRowNotExists, nil, nil, a)
		} else {
			err = put(t.s.config.IndexTable, meta, CondCountEquals,
				map[string]string{"#count": "count"},
				map[string]types.AttributeValue{
					":prev": &types.AttributeValueMemberN{Value: strconv.FormatInt(prev, 10)},
				}, a)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	for _, code := range t.codeOrder {
		c := t.chains[code]
		prev := t.chainsRead[code]
		row := chainItem{PK: chainPK(code), Head: c.Head.Hex(), Tail: c.Tail.Hex()}
		a := action{what: fmt.Sprintf("chain %q", code)}
		var err error
		if prev.IsEmpty() {
			err = put(t.s.config.IndexTable, row, CondRowNotExists, nil, nil, a)
		} else {
			err = put(t.s.config.IndexTable, row, CondTailEquals,
				map[string]string{"#tail": "tail"},
				map[string]types.AttributeValue{
					":prev": &types.AttributeValueMemberS{Value: prev.Tail.Hex()},
				}, a)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	return items, actions, nil
}

// mapCommitError maps a cancelled transaction to the sentinel for the first
// failed condition. A failed create means the lot exists; any other failed
// condition means another writer got there first.
func mapCommitError(err error, actions []action) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
				continue
			}
			if i < len(actions) {
				a := actions[i]
				if a.create {
					return fmt.Errorf("%w: %s", registry.ErrAlreadyExists, a.createID)
				}
				return fmt.Errorf("%w: %s", ErrConcurrentModification, a.what)
			}
			return ErrConcurrentModification
		}
	}

	return err
}
