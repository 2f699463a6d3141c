package lot_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/jacentio/lottrace/lot"
)

// scenario returns root -> (child1 -> grandchild1, child2) in pre-order.
func scenario() []lot.Record {
	return lot.Records([]lot.Input{
		{Lot: "root", ItemCode: "0045462", Amount: 1000, Per: "ea", Type: "item", ItemName: "root item"},
		{Lot: "child1", ParentLot: "root", ItemCode: "0045462", Amount: 100, Per: "ea", Type: "cover", ItemName: "child item 1"},
		{Lot: "grandchild1", ParentLot: "child1", ItemCode: "0045462", Amount: 10, Per: "ea", Type: "subItem", ItemName: "grandchild item 1"},
		{Lot: "child2", ParentLot: "root", ItemCode: "0045462", Amount: 200, Per: "ea", Type: "cover", ItemName: "child item 2"},
	})
}

func TestBuildTree_Scenario(t *testing.T) {
	root := lot.BuildTree(scenario())
	if root == nil {
		t.Fatal("expected a root")
	}
	if root.Lot != "root" || root.ItemType != "item" {
		t.Errorf("unexpected root %+v", root)
	}
	if len(root.SubItems) != 2 {
		t.Fatalf("expected 2 sub items, got %d", len(root.SubItems))
	}
	child1 := root.SubItems[0]
	if child1.Lot != "child1" || child1.ItemType != "cover" {
		t.Errorf("unexpected first child %+v", child1)
	}
	if len(child1.SubItems) != 1 || child1.SubItems[0].ItemName != "grandchild item 1" {
		t.Errorf("expected child1 to hold grandchild1, got %+v", child1.SubItems)
	}
	if child1.SubItems[0].ItemType != "subItem" {
		t.Errorf("expected subItem type, got %q", child1.SubItems[0].ItemType)
	}
	if len(root.SubItems[1].SubItems) != 0 {
		t.Errorf("expected child2 to be a leaf")
	}
}

func TestBuildTree_Empty(t *testing.T) {
	if lot.BuildTree(nil) != nil {
		t.Error("expected nil tree for empty input")
	}
}

func TestBuildTree_SubtreeRootHasAbsentParent(t *testing.T) {
	// A subtree flattened from child1 still names root as parent; root is not in
	// the input, so child1 is chosen as the root.
	recs := scenario()
	sub := []lot.Record{recs[1], recs[2]}

	root := lot.BuildTree(sub)
	if root == nil || root.Lot != "child1" {
		t.Fatalf("expected child1 as root, got %+v", root)
	}
	if len(root.SubItems) != 1 || root.SubItems[0].Lot != "grandchild1" {
		t.Errorf("unexpected sub items %+v", root.SubItems)
	}
}

func TestBuildTree_FirstRootWins(t *testing.T) {
	recs := lot.Records([]lot.Input{
		{Lot: "a"},
		{Lot: "b"},
		{Lot: "a1", ParentLot: "a"},
		{Lot: "b1", ParentLot: "b"},
	})

	root := lot.BuildTree(recs)
	if root == nil || root.Lot != "a" {
		t.Fatalf("expected a as root, got %+v", root)
	}
	if len(root.SubItems) != 1 || root.SubItems[0].Lot != "a1" {
		t.Errorf("unexpected sub items %+v", root.SubItems)
	}
}

func TestBuildTree_SelfParentIsNotAttachedToItself(t *testing.T) {
	recs := lot.Records([]lot.Input{
		{Lot: "root"},
		{Lot: "loop", ParentLot: "loop"},
	})

	root := lot.BuildTree(recs)
	if root == nil || root.Lot != "root" {
		t.Fatalf("expected root, got %+v", root)
	}
	if len(root.SubItems) != 0 {
		t.Errorf("expected no sub items, got %d", len(root.SubItems))
	}
	// Marshalling must terminate.
	if _, err := json.Marshal(root); err != nil {
		t.Fatalf("marshal: %v", err)
	}
}

func TestBuildTree_NoRoot(t *testing.T) {
	recs := lot.Records([]lot.Input{
		{Lot: "a", ParentLot: "b"},
		{Lot: "b", ParentLot: "a"},
	})
	if root := lot.BuildTree(recs); root != nil {
		t.Errorf("expected nil for a cycle without root, got %+v", root)
	}
}

func TestNodeRecords_RoundTrip(t *testing.T) {
	recs := scenario()
	root := lot.BuildTree(recs)

	got := root.Records()
	if len(got) != len(recs) {
		t.Fatalf("expected %d records, got %d", len(recs), len(got))
	}
	for i := range recs {
		if got[i] != recs[i] {
			t.Errorf("record %d: expected %+v, got %+v", i, recs[i], got[i])
		}
	}
}

func TestNodeJSONShape(t *testing.T) {
	root := lot.BuildTree(scenario()[:1])
	data, err := json.Marshal(root)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["lotId"] != lot.DeriveID("root").String() {
		t.Errorf("unexpected lotId %v", decoded["lotId"])
	}
	if decoded["parentLotId"] != lot.Zero.String() {
		t.Errorf("unexpected parentLotId %v", decoded["parentLotId"])
	}
	if decoded["type"] != "item" {
		t.Errorf("unexpected type %v", decoded["type"])
	}
	subs, ok := decoded["subItems"].([]any)
	if !ok || len(subs) != 0 {
		t.Errorf("expected empty subItems array, got %v", decoded["subItems"])
	}
}

func TestDetailFlatten(t *testing.T) {
	d := lot.Detail{
		Input: lot.Input{Lot: "main", ParentLot: "ignored", ItemCode: "0045462", Type: "item"},
		SubItems: []lot.Detail{
			{
				Input: lot.Input{Lot: "cover1", ItemCode: "0045462", Type: "cover"},
				SubItems: []lot.Detail{
					{Input: lot.Input{Lot: "sauce", ParentLot: "wrong", Type: "subItem"}},
				},
			},
			{Input: lot.Input{Lot: "cover2", Type: "cover"}},
		},
	}

	flat := d.Flatten()
	want := []struct{ lot, parent string }{
		{"main", ""},
		{"cover1", "main"},
		{"sauce", "cover1"},
		{"cover2", "main"},
	}
	if len(flat) != len(want) {
		t.Fatalf("expected %d inputs, got %d", len(want), len(flat))
	}
	for i, w := range want {
		if flat[i].Lot != w.lot || flat[i].ParentLot != w.parent {
			t.Errorf("input %d: expected %s<-%s, got %s<-%s", i, w.lot, w.parent, flat[i].Lot, flat[i].ParentLot)
		}
	}
}

func TestDetailFlatten_AssignsLabels(t *testing.T) {
	d := lot.Detail{
		Input:    lot.Input{ItemCode: "C"},
		SubItems: []lot.Detail{{Input: lot.Input{Lot: "leaf"}}},
	}

	flat := d.Flatten()
	if _, err := uuid.Parse(flat[0].Lot); err != nil {
		t.Fatalf("expected a uuid label, got %q", flat[0].Lot)
	}
	if flat[1].ParentLot != flat[0].Lot {
		t.Errorf("expected leaf to link to generated label %q, got %q", flat[0].Lot, flat[1].ParentLot)
	}
}

func TestDetailJSON(t *testing.T) {
	data := []byte(`{
		"lot": "a8b7e8d4-5f6e-4c69-9d70-28c17b5dfb5f",
		"parentLot": "",
		"itemCode": "0045462",
		"amount": 10308,
		"per": "ea",
		"type": "item",
		"subItems": [
			{"lot": "438fd95f-e0c4-4ff8-a0e4-2ab20fc5584f", "itemCode": "0045462", "amount": 11854, "type": "cover"}
		]
	}`)

	var d lot.Detail
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Amount != 10308 || len(d.SubItems) != 1 || d.SubItems[0].Amount != 11854 {
		t.Errorf("unexpected detail %+v", d)
	}

	flat := d.Flatten()
	if flat[1].ParentLot != "a8b7e8d4-5f6e-4c69-9d70-28c17b5dfb5f" {
		t.Errorf("unexpected parent %q", flat[1].ParentLot)
	}
}

func TestDecodeInputs(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    []string
		wantErr bool
	}{
		{"array", `[{"lot":"a"},{"lot":"b","parentLot":"a"}]`, []string{"a", "b"}, false},
		{"padded array", "\n  []", []string{}, false},
		{"detail", `{"lot":"a","subItems":[{"lot":"b"},{"lot":"c"}]}`, []string{"a", "b", "c"}, false},
		{"bad array", `[{"lot":1}]`, nil, true},
		{"bad detail", `{"lot":`, nil, true},
		{"empty", ``, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lot.DecodeInputs([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeInputs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("DecodeInputs() = %+v, want %d inputs", got, len(tt.want))
			}
			for i, label := range tt.want {
				if got[i].Lot != label {
					t.Errorf("input %d lot = %q, want %q", i, got[i].Lot, label)
				}
			}
		})
	}
}
