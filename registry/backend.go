package registry

import (
	"context"

	"github.com/jacentio/lottrace/lot"
)

// Kind names a secondary index.
type Kind uint8

const (
	// KindCode indexes lot ids by item code.
	KindCode Kind = iota + 1
	// KindType indexes lot ids by item type.
	KindType
	// KindChildren indexes lot ids by parent id (hex, no prefix).
	KindChildren
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindType:
		return "type"
	case KindChildren:
		return "children"
	default:
		return "unknown"
	}
}

// Chain tracks the first and last record of an item code's linked list.
type Chain struct {
	Head lot.ID
	Tail lot.ID
}

// IsEmpty reports whether no record has been linked yet.
func (c Chain) IsEmpty() bool {
	return c.Head.IsZero()
}

// Tx is the keyed view of the registry state inside one backend transaction.
// Writes are visible to later reads of the same Tx.
type Tx interface {
	// Record returns ErrNotFound if id is not stored.
	Record(id lot.ID) (lot.Record, error)

	// CreateRecord stores a new record. Backends fail with ErrAlreadyExists
	// if the id is stored, either immediately or when the transaction commits.
	CreateRecord(rec lot.Record) error

	// PutRecord overwrites a stored record.
	PutRecord(rec lot.Record) error

	// Index returns the ids appended under key, in append order. Unused keys
	// yield an empty, non-nil slice.
	Index(kind Kind, key string) ([]lot.ID, error)

	// Append adds id at the end of the index under key.
	Append(kind Kind, key string, id lot.ID) error

	// Chain returns the zero Chain for an unused code.
	Chain(code string) (Chain, error)

	// PutChain stores the chain ends for code.
	PutChain(code string, c Chain) error
}

// Backend is a keyed store with atomic transactions.
type Backend interface {
	// View runs fn against a read-only snapshot.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a read-write transaction. Writes become visible only
	// if fn returns nil and the commit succeeds; otherwise none of them do.
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// ChildrenKey returns the KindChildren index key for a parent id.
func ChildrenKey(parent lot.ID) string {
	return parent.Hex()
}
