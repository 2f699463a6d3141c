package badgerstore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/registry"
)

// recordValue is the stored form of a record. Ids are byte strings.
type recordValue struct {
	ID           []byte `cbor:"1,keyasint"`
	Lot          string `cbor:"2,keyasint"`
	ParentID     []byte `cbor:"3,keyasint"`
	ItemCode     string `cbor:"4,keyasint"`
	Amount       uint64 `cbor:"5,keyasint"`
	Per          string `cbor:"6,keyasint"`
	ItemType     string `cbor:"7,keyasint"`
	ExternalLot  string `cbor:"8,keyasint"`
	ExternalCode string `cbor:"9,keyasint"`
	ItemName     string `cbor:"10,keyasint"`
	NextByCode   []byte `cbor:"11,keyasint"`
}

type chainValue struct {
	Head []byte `cbor:"1,keyasint"`
	Tail []byte `cbor:"2,keyasint"`
}

// codec encodes values deterministically so equal records are equal bytes.
type codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCodec() (codec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return codec{}, fmt.Errorf("cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return codec{}, fmt.Errorf("cbor decoder: %w", err)
	}
	return codec{enc: enc, dec: dec}, nil
}

func (c codec) encodeRecord(rec lot.Record) ([]byte, error) {
	return c.enc.Marshal(recordValue{
		ID:           rec.ID[:],
		Lot:          rec.Lot,
		ParentID:     rec.ParentID[:],
		ItemCode:     rec.ItemCode,
		Amount:       rec.Amount,
		Per:          rec.Per,
		ItemType:     rec.ItemType,
		ExternalLot:  rec.ExternalLot,
		ExternalCode: rec.ExternalCode,
		ItemName:     rec.ItemName,
		NextByCode:   rec.NextByCode[:],
	})
}

func (c codec) decodeRecord(data []byte) (lot.Record, error) {
	var v recordValue
	if err := c.dec.Unmarshal(data, &v); err != nil {
		return lot.Record{}, fmt.Errorf("decode record: %w", err)
	}
	rec := lot.Record{
		Lot:          v.Lot,
		ItemCode:     v.ItemCode,
		Amount:       v.Amount,
		Per:          v.Per,
		ItemType:     v.ItemType,
		ExternalLot:  v.ExternalLot,
		ExternalCode: v.ExternalCode,
		ItemName:     v.ItemName,
	}
	var err error
	if rec.ID, err = idFromBytes(v.ID); err != nil {
		return lot.Record{}, err
	}
	if rec.ParentID, err = idFromBytes(v.ParentID); err != nil {
		return lot.Record{}, err
	}
	if rec.NextByCode, err = idFromBytes(v.NextByCode); err != nil {
		return lot.Record{}, err
	}
	return rec, nil
}

func (c codec) encodeChain(ch registry.Chain) ([]byte, error) {
	return c.enc.Marshal(chainValue{Head: ch.Head[:], Tail: ch.Tail[:]})
}

func (c codec) decodeChain(data []byte) (registry.Chain, error) {
	var v chainValue
	if err := c.dec.Unmarshal(data, &v); err != nil {
		return registry.Chain{}, fmt.Errorf("decode chain: %w", err)
	}
	head, err := idFromBytes(v.Head)
	if err != nil {
		return registry.Chain{}, err
	}
	tail, err := idFromBytes(v.Tail)
	if err != nil {
		return registry.Chain{}, err
	}
	return registry.Chain{Head: head, Tail: tail}, nil
}

func idFromBytes(b []byte) (lot.ID, error) {
	var id lot.ID
	if len(b) == 0 {
		return id, nil
	}
	if len(b) != lot.IDSize {
		return id, fmt.Errorf("%w: %d bytes", lot.ErrInvalidID, len(b))
	}
	copy(id[:], b)
	return id, nil
}
