package stream_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/store"
	"github.com/jacentio/lottrace/stream"
)

// imageOf renders rec the way the lots table stream delivers it.
func imageOf(rec lot.Record) map[string]events.DynamoDBAttributeValue {
	it := store.NewLotItem(rec)
	return map[string]events.DynamoDBAttributeValue{
		store.AttrLotID:        events.NewStringAttribute(it.LotID),
		store.AttrLot:          events.NewStringAttribute(it.Lot),
		store.AttrParentLotID:  events.NewStringAttribute(it.ParentLotID),
		store.AttrItemCode:     events.NewStringAttribute(it.ItemCode),
		store.AttrAmount:       events.NewNumberAttribute(strconv.FormatUint(it.Amount, 10)),
		store.AttrPer:          events.NewStringAttribute(it.Per),
		store.AttrItemType:     events.NewStringAttribute(it.ItemType),
		store.AttrExternalLot:  events.NewStringAttribute(it.ExternalLot),
		store.AttrExternalCode: events.NewStringAttribute(it.ExternalCode),
		store.AttrItemName:     events.NewStringAttribute(it.ItemName),
		store.AttrNextByCode:   events.NewStringAttribute(it.NextByCode),
	}
}

func keysOf(rec lot.Record) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		store.AttrLotID: events.NewStringAttribute(rec.ID.Hex()),
	}
}

type recorder struct {
	changes []stream.Change
	err     error
}

func (r *recorder) Publish(_ context.Context, c stream.Change) error {
	if r.err != nil {
		return r.err
	}
	r.changes = append(r.changes, c)
	return nil
}

func sample() lot.Record {
	return lot.Input{
		Lot:       "child",
		ParentLot: "root",
		ItemCode:  "SKU-1",
		Amount:    250,
		Per:       "kg",
		Type:      "cover",
		ItemName:  "Lid",
	}.Record()
}

func TestNewHandler(t *testing.T) {
	// Test with nil sink and logger (should not panic)
	h := stream.NewHandler(nil, nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
	rec := sample()
	err := h.HandleLotChanges(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{{
			EventName: "INSERT",
			Change:    events.DynamoDBStreamRecord{Keys: keysOf(rec), NewImage: imageOf(rec)},
		}},
	})
	if err != nil {
		t.Errorf("HandleLotChanges() with log sink error = %v", err)
	}
}

func TestDecodeRecord(t *testing.T) {
	want := sample()
	want.NextByCode = lot.DeriveID("next")

	got, err := stream.DecodeRecord(imageOf(want))
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	if got != want {
		t.Errorf("DecodeRecord() = %+v, want %+v", got, want)
	}
}

func TestDecodeRecord_BadID(t *testing.T) {
	image := imageOf(sample())
	image[store.AttrLotID] = events.NewStringAttribute("not-hex")

	if _, err := stream.DecodeRecord(image); !errors.Is(err, lot.ErrInvalidID) {
		t.Errorf("DecodeRecord() error = %v, want ErrInvalidID", err)
	}
}

func TestHandler_HandleLotChanges(t *testing.T) {
	base := sample()

	relinked := base
	relinked.NextByCode = lot.DeriveID("sibling")

	patched := relinked
	patched.Apply(lot.Patch{Amount: 90, Per: "kg", ItemName: "Lid v2"})

	tests := []struct {
		name     string
		record   events.DynamoDBEventRecord
		wantKind stream.Kind
		wantOld  bool
	}{
		{
			name: "insert",
			record: events.DynamoDBEventRecord{
				EventName: "INSERT",
				Change:    events.DynamoDBStreamRecord{Keys: keysOf(base), NewImage: imageOf(base)},
			},
			wantKind: stream.Inserted,
		},
		{
			name: "chain relink only",
			record: events.DynamoDBEventRecord{
				EventName: "MODIFY",
				Change: events.DynamoDBStreamRecord{
					Keys:     keysOf(base),
					OldImage: imageOf(base),
					NewImage: imageOf(relinked),
				},
			},
		},
		{
			name: "update",
			record: events.DynamoDBEventRecord{
				EventName: "MODIFY",
				Change: events.DynamoDBStreamRecord{
					Keys:     keysOf(base),
					OldImage: imageOf(relinked),
					NewImage: imageOf(patched),
				},
			},
			wantKind: stream.Updated,
			wantOld:  true,
		},
		{
			name: "remove",
			record: events.DynamoDBEventRecord{
				EventName: "REMOVE",
				Change:    events.DynamoDBStreamRecord{Keys: keysOf(base), OldImage: imageOf(base)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recorder{}
			h := stream.NewHandler(sink, nil)

			err := h.HandleLotChanges(context.Background(), events.DynamoDBEvent{
				Records: []events.DynamoDBEventRecord{tt.record},
			})
			if err != nil {
				t.Fatalf("HandleLotChanges() error = %v", err)
			}

			if tt.wantKind == "" {
				if len(sink.changes) != 0 {
					t.Errorf("expected no changes, got %+v", sink.changes)
				}
				return
			}
			if len(sink.changes) != 1 {
				t.Fatalf("expected 1 change, got %d", len(sink.changes))
			}
			c := sink.changes[0]
			if c.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", c.Kind, tt.wantKind)
			}
			if (c.Old != nil) != tt.wantOld {
				t.Errorf("Old = %+v, want present=%v", c.Old, tt.wantOld)
			}
			if c.New.ID != base.ID {
				t.Errorf("New.ID = %s, want %s", c.New.ID, base.ID)
			}
		})
	}
}

func TestHandler_HandleLotChanges_SinkErrorStopsBatch(t *testing.T) {
	a := sample()
	b := lot.Input{Lot: "other", ItemCode: "SKU-2"}.Record()
	boom := errors.New("sink down")
	sink := &recorder{err: boom}
	h := stream.NewHandler(sink, nil)

	err := h.HandleLotChanges(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			{EventName: "INSERT", Change: events.DynamoDBStreamRecord{Keys: keysOf(a), NewImage: imageOf(a)}},
			{EventName: "INSERT", Change: events.DynamoDBStreamRecord{Keys: keysOf(b), NewImage: imageOf(b)}},
		},
	})
	if !errors.Is(err, boom) {
		t.Errorf("HandleLotChanges() error = %v, want sink error", err)
	}
}

func TestHandler_HandleLotChanges_EmptyEvent(t *testing.T) {
	sink := &recorder{}
	h := stream.NewHandler(sink, nil)

	// Empty event should not error
	if err := h.HandleLotChanges(context.Background(), events.DynamoDBEvent{}); err != nil {
		t.Errorf("expected no error for empty event, got %v", err)
	}
}
