// Package registry is the lot registry and indexing engine.
//
// A [Registry] stores [lot.Record] values keyed by their [lot.ID] and keeps
// three append-only secondary indices consistent with them on every insert:
//
//   - by item code ([Registry.ByCode])
//   - by item type ([Registry.ByType]), an open string tag
//   - by parent id ([Registry.ChildrenOf])
//
// Records sharing an item code are also linked into a singly linked chain
// through [lot.Record.NextByCode], in insertion order. [Registry.Traverse]
// walks that chain with an optional limit. The chain and the code index
// overlap on purpose: the chain is the ordering guarantee for bounded walks.
//
// # Trees
//
// [Registry.Flatten] walks parent to children links from a root and returns a
// depth-first pre-order list. [lot.BuildTree] turns such a list back into a
// nested [lot.Node]; [Registry.Tree] does both. Parents need not exist when a
// child is inserted: such a child appears as a root until its parent arrives.
//
// # Mutations
//
// [Registry.Insert], [Registry.Update] and [Registry.BatchInsert] are
// serialized by one writer lock and each is applied in a single [Backend]
// transaction, so a failed batch leaves no trace. There is no delete.
//
// # Backends
//
// [NewMemoryBackend] keeps state in memory. Durable backends live in the
// badgerstore (local) and store (DynamoDB) packages. The registrytest package
// holds the conformance suite every backend runs.
//
// # Errors
//
//   - [ErrNotFound] - lot id not stored
//   - [ErrAlreadyExists] - lot id already stored
//   - [ErrInvalidBatch] - a batch element failed; wraps the cause too
//   - [ErrInvalidRecord] - record has no label or a zero id
package registry
