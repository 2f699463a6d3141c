package store

import "errors"

var (
	// ErrConcurrentModification is returned when an optimistic lock fails: an
	// index counter, a chain tail or a record version moved between this
	// transaction's reads and its commit. Nothing was written; the operation
	// can be retried.
	ErrConcurrentModification = errors.New("lottrace: registry modified concurrently")

	// ErrTransactionTooLarge is returned when a transaction needs more write
	// actions than DynamoDB accepts in one TransactWriteItems call.
	ErrTransactionTooLarge = errors.New("lottrace: transaction too large")
)

// Lookups and inserts report registry.ErrNotFound and registry.ErrAlreadyExists.
