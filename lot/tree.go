package lot

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
)

// Detail is the nested input shape: a lot with the sub-lots it decomposes into.
type Detail struct {
	Input
	SubItems []Detail `json:"subItems,omitempty"`
}

// Flatten walks d in pre-order and returns flat inputs. Each sub-item's
// ParentLot is taken from its enclosing node, whatever it declared; the root
// keeps an empty ParentLot. Nodes without a label get a random UUID label.
func (d Detail) Flatten() []Input {
	var out []Input
	var walk func(cur Detail, parentLot string)
	walk = func(cur Detail, parentLot string) {
		in := cur.Input
		if in.Lot == "" {
			in.Lot = uuid.NewString()
		}
		in.ParentLot = parentLot
		out = append(out, in)
		for _, sub := range cur.SubItems {
			walk(sub, in.Lot)
		}
	}
	walk(d, "")
	return out
}

// DecodeInputs decodes JSON holding either an array of flat inputs or one
// nested Detail, which is flattened.
func DecodeInputs(data []byte) ([]Input, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		var inputs []Input
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, err
		}
		return inputs, nil
	}
	var d Detail
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d.Flatten(), nil
}

// Node is the nested output shape of a stored lot.
type Node struct {
	ID           ID      `json:"lotId"`
	Lot          string  `json:"lot"`
	ParentID     ID      `json:"parentLotId"`
	ItemCode     string  `json:"itemCode"`
	Amount       uint64  `json:"amount"`
	Per          string  `json:"per"`
	ItemType     string  `json:"type"`
	ExternalLot  string  `json:"externalLot"`
	ExternalCode string  `json:"externalCode"`
	ItemName     string  `json:"itemName"`
	SubItems     []*Node `json:"subItems"`
}

// NewNode returns a node holding r's fields and no sub-items.
func NewNode(r Record) *Node {
	return &Node{
		ID:           r.ID,
		Lot:          r.Lot,
		ParentID:     r.ParentID,
		ItemCode:     r.ItemCode,
		Amount:       r.Amount,
		Per:          r.Per,
		ItemType:     r.ItemType,
		ExternalLot:  r.ExternalLot,
		ExternalCode: r.ExternalCode,
		ItemName:     r.ItemName,
		SubItems:     []*Node{},
	}
}

// Record returns the node's own fields as a record. NextByCode is not part of
// the nested shape and is left Zero.
func (n *Node) Record() Record {
	return Record{
		ID:           n.ID,
		Lot:          n.Lot,
		ParentID:     n.ParentID,
		ItemCode:     n.ItemCode,
		Amount:       n.Amount,
		Per:          n.Per,
		ItemType:     n.ItemType,
		ExternalLot:  n.ExternalLot,
		ExternalCode: n.ExternalCode,
		ItemName:     n.ItemName,
	}
}

// Records flattens the node back into pre-order records.
func (n *Node) Records() []Record {
	if n == nil {
		return nil
	}
	var out []Record
	var walk func(*Node)
	walk = func(cur *Node) {
		out = append(out, cur.Record())
		for _, sub := range cur.SubItems {
			walk(sub)
		}
	}
	walk(n)
	return out
}

// BuildTree rebuilds a nested tree from flat records.
//
// The root is the first record, in input order, whose parent is Zero or not
// among the input ids. Every other record is attached under its parent when
// the parent is present. When several records qualify as root only the first
// is returned; the others and their descendants are unreachable. The chosen
// root is never attached below another node, and a record naming itself as
// parent is not attached at all. Returns nil when no root exists.
func BuildTree(records []Record) *Node {
	nodes := make(map[ID]*Node, len(records))
	for _, r := range records {
		nodes[r.ID] = NewNode(r)
	}

	var root *Node
	for _, r := range records {
		if _, ok := nodes[r.ParentID]; !ok || r.ParentID.IsZero() {
			root = nodes[r.ID]
			break
		}
	}
	if root == nil {
		return nil
	}

	for _, r := range records {
		if r.ID == root.ID || r.ParentID == r.ID {
			continue
		}
		if parent, ok := nodes[r.ParentID]; ok {
			parent.SubItems = append(parent.SubItems, nodes[r.ID])
		}
	}
	return root
}
