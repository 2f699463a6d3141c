package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jacentio/lottrace/internal/sheet"
	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/registry"
)

const detailJSON = `{
	"lot": "pallet", "itemCode": "P", "amount": 2, "type": "item", "itemName": "pallet one",
	"subItems": [
		{"lot": "box-a", "itemCode": "B", "amount": 10, "type": "cover"},
		{"lot": "box-b", "itemCode": "B", "amount": 12, "type": "cover", "itemName": "second box"}
	]
}`

func newApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return &app{
		reg:    registry.New(registry.NewMemoryBackend(), nil),
		out:    out,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func ingest(t *testing.T, a *app, out *bytes.Buffer) {
	t.Helper()
	if err := a.dispatch(context.Background(), "ingest", []string{writeFile(t, "lots.json", detailJSON)}); err != nil {
		t.Fatalf("ingest error = %v", err)
	}
	out.Reset()
}

func TestDispatch_Ingest(t *testing.T) {
	a, out := newApp(t)
	if err := a.dispatch(context.Background(), "ingest", []string{writeFile(t, "lots.json", detailJSON)}); err != nil {
		t.Fatal(err)
	}
	var ids []lot.ID
	if err := json.Unmarshal(out.Bytes(), &ids); err != nil {
		t.Fatalf("output %q: %v", out.String(), err)
	}
	if len(ids) != 3 || ids[0] != lot.DeriveID("pallet") {
		t.Errorf("ids = %v", ids)
	}
}

func TestDispatch_IngestArray(t *testing.T) {
	a, _ := newApp(t)
	path := writeFile(t, "lots.json", `[{"lot":"x","itemCode":"C"},{"lot":"y","parentLot":"x","itemCode":"C"}]`)
	if err := a.dispatch(context.Background(), "ingest", []string{path}); err != nil {
		t.Fatal(err)
	}
	parent, err := a.reg.Parent(context.Background(), lot.DeriveID("y"))
	if err != nil || parent != lot.DeriveID("x") {
		t.Errorf("Parent(y) = %s, %v", parent, err)
	}
}

func TestDispatch_IngestDuplicateRollsBack(t *testing.T) {
	a, _ := newApp(t)
	path := writeFile(t, "lots.json", `[{"lot":"x"},{"lot":"x"}]`)
	err := a.dispatch(context.Background(), "ingest", []string{path})
	if !errors.Is(err, registry.ErrInvalidBatch) {
		t.Fatalf("ingest error = %v, want ErrInvalidBatch", err)
	}
	if _, err := a.reg.Get(context.Background(), lot.DeriveID("x")); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Get(x) error = %v, want ErrNotFound", err)
	}
}

func TestDispatch_Queries(t *testing.T) {
	a, out := newApp(t)
	ingest(t, a, out)

	tests := []struct {
		cmd  string
		args []string
		want []string
	}{
		{"get", []string{"box-a"}, []string{`"lot": "box-a"`, `"amount": 10`}},
		{"get", []string{lot.DeriveID("pallet").String()}, []string{`"lot": "pallet"`}},
		{"parent", []string{"box-b"}, []string{lot.DeriveID("pallet").String()}},
		{"children", []string{"pallet"}, []string{lot.DeriveID("box-a").String(), lot.DeriveID("box-b").String()}},
		{"flat", []string{"pallet"}, []string{`"lot": "pallet"`, `"lot": "box-b"`}},
		{"tree", []string{"pallet"}, []string{`"subItems": [`, `"lot": "box-a"`}},
		{"code", []string{"B"}, []string{lot.DeriveID("box-a").String()}},
		{"type", []string{"item"}, []string{lot.DeriveID("pallet").String()}},
		{"chain", []string{"B"}, []string{`"itemNames": [`, `"second box"`}},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			out.Reset()
			if err := a.dispatch(context.Background(), tt.cmd, tt.args); err != nil {
				t.Fatalf("%s error = %v", tt.cmd, err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("%s output missing %q:\n%s", tt.cmd, w, out.String())
				}
			}
		})
	}
}

func TestDispatch_ChainLimit(t *testing.T) {
	a, out := newApp(t)
	ingest(t, a, out)

	if err := a.dispatch(context.Background(), "chain", []string{"-limit", "1", "B"}); err != nil {
		t.Fatal(err)
	}
	var got struct {
		LotIDs    []lot.ID `json:"lotIds"`
		ItemNames []string `json:"itemNames"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.LotIDs) != 1 || got.LotIDs[0] != lot.DeriveID("box-a") {
		t.Errorf("chain -limit 1 = %+v", got)
	}
}

func TestDispatch_Update(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"lot first", []string{"box-a", "-amount", "7", "-name", "renamed"}},
		{"flags first", []string{"-amount", "7", "-name", "renamed", "box-a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, out := newApp(t)
			ingest(t, a, out)

			if err := a.dispatch(context.Background(), "update", tt.args); err != nil {
				t.Fatalf("update error = %v", err)
			}
			rec, err := a.reg.Get(context.Background(), lot.DeriveID("box-a"))
			if err != nil {
				t.Fatal(err)
			}
			if rec.Amount != 7 || rec.ItemName != "renamed" {
				t.Errorf("updated record = %+v", rec)
			}
			if rec.ItemType != "cover" || rec.ItemCode != "B" {
				t.Errorf("indexed fields changed: %+v", rec)
			}
		})
	}
}

func TestDispatch_UpdateKeepsUnsetFields(t *testing.T) {
	a, out := newApp(t)
	ingest(t, a, out)

	if err := a.dispatch(context.Background(), "update", []string{"box-b", "-per", "pcs"}); err != nil {
		t.Fatal(err)
	}
	rec, err := a.reg.Get(context.Background(), lot.DeriveID("box-b"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Per != "pcs" || rec.Amount != 12 || rec.ItemName != "second box" {
		t.Errorf("record = %+v", rec)
	}
}

func TestDispatch_Export(t *testing.T) {
	a, out := newApp(t)
	ingest(t, a, out)

	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := a.dispatch(context.Background(), "export", []string{"pallet", path}); err != nil {
		t.Fatalf("export error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	inputs, err := sheet.ReadInputs(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 3 || inputs[0].Lot != "pallet" || inputs[2].Amount != 12 {
		t.Errorf("exported rows = %+v", inputs)
	}
}

func TestDispatch_IngestWorkbook(t *testing.T) {
	src, out := newApp(t)
	ingest(t, src, out)
	path := filepath.Join(t.TempDir(), "lots.xlsx")
	if err := src.dispatch(context.Background(), "export", []string{"box-a", path}); err != nil {
		t.Fatal(err)
	}

	dst, out := newApp(t)
	if err := dst.dispatch(context.Background(), "ingest", []string{path}); err != nil {
		t.Fatalf("ingest xlsx error = %v", err)
	}
	rec, err := dst.reg.Get(context.Background(), lot.DeriveID("box-a"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Amount != 10 || rec.ItemCode != "B" {
		t.Errorf("ingested record = %+v", rec)
	}
	if !strings.Contains(out.String(), lot.DeriveID("box-a").String()) {
		t.Errorf("output = %s", out.String())
	}
}

func TestDispatch_Errors(t *testing.T) {
	a, out := newApp(t)
	ingest(t, a, out)

	tests := []struct {
		name    string
		cmd     string
		args    []string
		wantErr error
	}{
		{"unknown command", "delete", []string{"x"}, nil},
		{"missing lot", "get", []string{"nope"}, registry.ErrNotFound},
		{"no args", "get", nil, nil},
		{"too many args", "code", []string{"a", "b"}, nil},
		{"update missing lot", "update", []string{"nope", "-amount", "1"}, registry.ErrNotFound},
		{"update without lot", "update", []string{"-amount", "1"}, nil},
		{"chain bad flag", "chain", []string{"-limit", "x", "B"}, nil},
		{"ingest missing file", "ingest", []string{filepath.Join(t.TempDir(), "absent.json")}, nil},
		{"export missing root", "export", []string{"nope", filepath.Join(t.TempDir(), "x.xlsx")}, registry.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.dispatch(context.Background(), tt.cmd, tt.args)
			if err == nil {
				t.Fatal("error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun(t *testing.T) {
	t.Setenv("LOTTRACE_BACKEND", "badger")
	t.Setenv("LOTTRACE_BADGER_PATH", t.TempDir())
	t.Setenv("LOTTRACE_LOG_LEVEL", "error")
	ctx := context.Background()

	var out bytes.Buffer
	if err := run(ctx, []string{"ingest", writeFile(t, "lots.json", detailJSON)}, &out); err != nil {
		t.Fatalf("run ingest error = %v", err)
	}

	// A second process sees what the first stored.
	out.Reset()
	if err := run(ctx, []string{"get", "box-b"}, &out); err != nil {
		t.Fatalf("run get error = %v", err)
	}
	if !strings.Contains(out.String(), `"amount": 12`) {
		t.Errorf("run get output = %s", out.String())
	}

	if err := run(ctx, nil, &out); err == nil {
		t.Error("run without command error = nil")
	}
}
