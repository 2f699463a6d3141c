// Package store provides a DynamoDB backend for the lot registry.
//
// A Store keeps lots in one table and everything derived from them in a
// second, sharded index table. Each registry mutation becomes a single
// TransactWriteItems call, so a batch of lots is stored completely or not at
// all.
//
// # Key Features
//
//   - Atomic batches (up to [MaxTransactItems] write actions)
//   - Insert-only lot creation guarded by attribute_not_exists
//   - Optimistic locking on index counters, code chain ends and lot versions
//   - Configurable write sharding for index entries
//   - Strongly consistent reads
//
// # Tables
//
// The lots table is keyed by lot_id, the lot id as 64 hex digits:
//
//	lot_id | lot | parent_lot_id | item_code | amount | per | item_type | ... | version
//
// Every rewrite of an existing lot is conditioned on the version it was read
// at, so a relink by another process is never overwritten with a stale
// next_by_code.
//
// The index table is keyed by pk (S) and sk (N) and holds three row kinds:
//
//	code#BOX#00      | 1 | lot_id        index entry, sk is the sequence number
//	code#BOX#meta    | 0 | count         entries appended so far
//	chain#BOX        | 0 | head, tail    ends of the per-code chain
//
// Index refs are code#<itemCode>, type#<itemType> and children#<parent hex>.
//
// # Configuration
//
// Use [DefaultConfig] for small datasets (NumShards=1, single queries).
// Increase NumShards to spread large indices over more partitions:
//
//	cfg := store.DefaultConfig()
//	cfg.NumShards = 16
//
// # Errors
//
// Lookups and conflicts surface as registry errors ([registry.ErrNotFound],
// [registry.ErrAlreadyExists]). The package adds:
//
//   - [ErrConcurrentModification] - an index counter, chain or lot version moved under the transaction
//   - [ErrTransactionTooLarge] - a mutation needs more than [MaxTransactItems] writes
package store
