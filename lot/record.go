package lot

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord is returned when a record cannot be stored as given.
var ErrInvalidRecord = errors.New("lottrace: invalid record")

// Record is a stored lot.
type Record struct {
	ID       ID
	Lot      string
	ParentID ID
	ItemCode string
	Amount   uint64
	Per      string
	// ItemType is an open tag; any string is a valid index key.
	ItemType     string
	ExternalLot  string
	ExternalCode string
	ItemName     string

	// NextByCode links to the next record inserted with the same ItemCode.
	// Maintained by the registry; Zero terminates the chain.
	NextByCode ID
}

// IsRoot reports whether the record declares no parent.
func (r Record) IsRoot() bool {
	return r.ParentID.IsZero()
}

// Validate checks the fields the registry relies on.
func (r Record) Validate() error {
	if r.Lot == "" {
		return fmt.Errorf("%w: empty lot label", ErrInvalidRecord)
	}
	if r.ID.IsZero() {
		return fmt.Errorf("%w: zero lot id for %q", ErrInvalidRecord, r.Lot)
	}
	return nil
}

// Patch holds the mutable fields of a record.
type Patch struct {
	Amount       uint64 `json:"amount"`
	Per          string `json:"per"`
	ExternalLot  string `json:"externalLot"`
	ExternalCode string `json:"externalCode"`
	ItemName     string `json:"itemName"`
}

// Apply overwrites the mutable fields of r with p.
func (r *Record) Apply(p Patch) {
	r.Amount = p.Amount
	r.Per = p.Per
	r.ExternalLot = p.ExternalLot
	r.ExternalCode = p.ExternalCode
	r.ItemName = p.ItemName
}

// Input is the flat boundary shape of a lot, keyed by labels rather than ids.
type Input struct {
	Lot          string `json:"lot"`
	ParentLot    string `json:"parentLot"`
	ItemCode     string `json:"itemCode"`
	Amount       uint64 `json:"amount"`
	Per          string `json:"per"`
	Type         string `json:"type"`
	ExternalLot  string `json:"externalLot"`
	ExternalCode string `json:"externalCode"`
	ItemName     string `json:"itemName"`
}

// Record derives ids from the labels and returns the record to insert.
func (in Input) Record() Record {
	var id ID
	if in.Lot != "" {
		id = DeriveID(in.Lot)
	}
	return Record{
		ID:           id,
		Lot:          in.Lot,
		ParentID:     ParentID(in.ParentLot),
		ItemCode:     in.ItemCode,
		Amount:       in.Amount,
		Per:          in.Per,
		ItemType:     in.Type,
		ExternalLot:  in.ExternalLot,
		ExternalCode: in.ExternalCode,
		ItemName:     in.ItemName,
	}
}

// Records converts inputs in order.
func Records(inputs []Input) []Record {
	recs := make([]Record, len(inputs))
	for i, in := range inputs {
		recs[i] = in.Record()
	}
	return recs
}
