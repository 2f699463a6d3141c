package registry

import (
	"errors"

	"github.com/jacentio/lottrace/lot"
)

var (
	// ErrNotFound is returned when a lot id is not stored.
	ErrNotFound = errors.New("lottrace: lot not found")

	// ErrAlreadyExists is returned when inserting a lot id that is already stored.
	ErrAlreadyExists = errors.New("lottrace: lot already exists")

	// ErrInvalidBatch is returned when any record of a batch fails. The batch is
	// rolled back and the error also wraps the failing record's cause.
	ErrInvalidBatch = errors.New("lottrace: invalid batch")

	// ErrInvalidRecord is returned when a record has no label or a zero id.
	ErrInvalidRecord = lot.ErrInvalidRecord

	// ErrReadOnly is returned by Tx writes inside Backend.View.
	ErrReadOnly = errors.New("lottrace: write in read-only transaction")
)
