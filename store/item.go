package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/registry"
)

// Attribute names shared by the tables and the stream decoder.
const (
	AttrLotID        = "lot_id"
	AttrLot          = "lot"
	AttrParentLotID  = "parent_lot_id"
	AttrItemCode     = "item_code"
	AttrAmount       = "amount"
	AttrPer          = "per"
	AttrItemType     = "item_type"
	AttrExternalLot  = "external_lot"
	AttrExternalCode = "external_code"
	AttrItemName     = "item_name"
	AttrNextByCode   = "next_by_code"
	AttrVersion      = "version"
)

// LotItem is the lots table row of a record. Ids are stored as 64 hex digits
// without a prefix; Zero is stored as all zeros. Version starts at 1 and is
// bumped by every write so concurrent rewrites of a row can be detected.
type LotItem struct {
	LotID        string `dynamodbav:"lot_id"`
	Lot          string `dynamodbav:"lot"`
	ParentLotID  string `dynamodbav:"parent_lot_id"`
	ItemCode     string `dynamodbav:"item_code"`
	Amount       uint64 `dynamodbav:"amount"`
	Per          string `dynamodbav:"per"`
	ItemType     string `dynamodbav:"item_type"`
	ExternalLot  string `dynamodbav:"external_lot"`
	ExternalCode string `dynamodbav:"external_code"`
	ItemName     string `dynamodbav:"item_name"`
	NextByCode   string `dynamodbav:"next_by_code"`
	Version      int64  `dynamodbav:"version"`
}

// NewLotItem converts a record to its table row.
func NewLotItem(rec lot.Record) LotItem {
	return LotItem{
		LotID:        rec.ID.Hex(),
		Lot:          rec.Lot,
		ParentLotID:  rec.ParentID.Hex(),
		ItemCode:     rec.ItemCode,
		Amount:       rec.Amount,
		Per:          rec.Per,
		ItemType:     rec.ItemType,
		ExternalLot:  rec.ExternalLot,
		ExternalCode: rec.ExternalCode,
		ItemName:     rec.ItemName,
		NextByCode:   rec.NextByCode.Hex(),
	}
}

// Record converts the row back to a record.
func (it LotItem) Record() (lot.Record, error) {
	id, err := ParseHexID(it.LotID)
	if err != nil {
		return lot.Record{}, fmt.Errorf("%s: %w", AttrLotID, err)
	}
	parent, err := ParseHexID(it.ParentLotID)
	if err != nil {
		return lot.Record{}, fmt.Errorf("%s: %w", AttrParentLotID, err)
	}
	next, err := ParseHexID(it.NextByCode)
	if err != nil {
		return lot.Record{}, fmt.Errorf("%s: %w", AttrNextByCode, err)
	}
	return lot.Record{
		ID:           id,
		Lot:          it.Lot,
		ParentID:     parent,
		ItemCode:     it.ItemCode,
		Amount:       it.Amount,
		Per:          it.Per,
		ItemType:     it.ItemType,
		ExternalLot:  it.ExternalLot,
		ExternalCode: it.ExternalCode,
		ItemName:     it.ItemName,
		NextByCode:   next,
	}, nil
}

// ParseHexID parses an id stored without the 0x prefix. The empty string is
// Zero.
func ParseHexID(s string) (lot.ID, error) {
	if s == "" {
		return lot.Zero, nil
	}
	return lot.ParseID("0x" + s)
}

// indexEntry is one position of an index.
type indexEntry struct {
	PK    string `dynamodbav:"pk"`
	SK    int64  `dynamodbav:"sk"`
	LotID string `dynamodbav:"lot_id"`
}

// indexMeta counts the entries of an index across all its shards.
type indexMeta struct {
	PK    string `dynamodbav:"pk"`
	SK    int64  `dynamodbav:"sk"`
	Count int64  `dynamodbav:"count"`
}

// chainItem holds the chain ends of an item code.
type chainItem struct {
	PK   string `dynamodbav:"pk"`
	SK   int64  `dynamodbav:"sk"`
	Head string `dynamodbav:"head"`
	Tail string `dynamodbav:"tail"`
}

func (c chainItem) chain() (registry.Chain, error) {
	head, err := ParseHexID(c.Head)
	if err != nil {
		return registry.Chain{}, fmt.Errorf("chain head: %w", err)
	}
	tail, err := ParseHexID(c.Tail)
	if err != nil {
		return registry.Chain{}, fmt.Errorf("chain tail: %w", err)
	}
	return registry.Chain{Head: head, Tail: tail}, nil
}

func marshalItem(v any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}
	return item, nil
}

// indexRef names the index of kind under key.
func indexRef(kind registry.Kind, key string) string {
	return kind.String() + "#" + key
}

func metaPK(ref string) string {
	return ref + "#meta"
}

func chainPK(code string) string {
	return "chain#" + code
}

func lotKey(id lot.ID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrLotID: &types.AttributeValueMemberS{Value: id.Hex()},
	}
}

func rowKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberN{Value: "0"},
	}
}
