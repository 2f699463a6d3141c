// Package registrytest holds the conformance suite for registry backends.
package registrytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/registry"
)

// NewBackend returns an empty backend for one subtest.
type NewBackend func(t *testing.T) registry.Backend

// Run exercises a Registry over backends created by newBackend. Each subtest
// gets a fresh backend.
func Run(t *testing.T, newBackend NewBackend) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, r *registry.Registry)
	}{
		{"InsertGet", testInsertGet},
		{"InsertDuplicate", testInsertDuplicate},
		{"InsertInvalid", testInsertInvalid},
		{"GetMissing", testGetMissing},
		{"Traverse", testTraverse},
		{"TraverseUnknownCode", testTraverseUnknownCode},
		{"IndexCounts", testIndexCounts},
		{"Flatten", testFlatten},
		{"FlattenMissingRoot", testFlattenMissingRoot},
		{"FlattenSelfParent", testFlattenSelfParent},
		{"OrphanChild", testOrphanChild},
		{"Tree", testTree},
		{"TreeByCode", testTreeByCode},
		{"Update", testUpdate},
		{"Parent", testParent},
		{"BatchInsert", testBatchInsert},
		{"BatchRollback", testBatchRollback},
		{"BatchIntraDuplicate", testBatchIntraDuplicate},
		{"BatchEmpty", testBatchEmpty},
		{"Scenario", testScenario},
		{"ConcurrentReaders", testConcurrentReaders},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, registry.New(newBackend(t), nil))
		})
	}
}

func input(label, parent, code, itemType string, amount uint64) lot.Input {
	return lot.Input{
		Lot:       label,
		ParentLot: parent,
		ItemCode:  code,
		Amount:    amount,
		Per:       "kg",
		Type:      itemType,
		ItemName:  "name-" + label,
	}
}

func mustAdd(t *testing.T, r *registry.Registry, in lot.Input) lot.ID {
	t.Helper()
	id, err := r.Add(context.Background(), in)
	if err != nil {
		t.Fatalf("Add(%q) error = %v", in.Lot, err)
	}
	return id
}

// mustIDs unwraps an index query: mustIDs(t)(r.ByCode(ctx, code)).
func mustIDs(t *testing.T) func([]lot.ID, error) []lot.ID {
	t.Helper()
	return func(ids []lot.ID, err error) []lot.ID {
		t.Helper()
		if err != nil {
			t.Fatalf("index error = %v", err)
		}
		return ids
	}
}

func equalIDs(a, b []lot.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// snapshot captures everything observable about the given labels and codes.
func snapshot(t *testing.T, r *registry.Registry, labels, codes, types []string) string {
	t.Helper()
	ctx := context.Background()
	var s string
	for _, l := range labels {
		rec, err := r.Get(ctx, lot.DeriveID(l))
		s += fmt.Sprintf("get %s: %+v %v\n", l, rec, err)
		kids, err := r.ChildrenOf(ctx, lot.DeriveID(l))
		s += fmt.Sprintf("children %s: %v %v\n", l, kids, err)
	}
	for _, c := range codes {
		ids, err := r.ByCode(ctx, c)
		s += fmt.Sprintf("code %s: %v %v\n", c, ids, err)
		chain, names, err := r.Traverse(ctx, c, 0)
		s += fmt.Sprintf("chain %s: %v %v %v\n", c, chain, names, err)
	}
	for _, it := range types {
		ids, err := r.ByType(ctx, it)
		s += fmt.Sprintf("type %s: %v %v\n", it, ids, err)
	}
	return s
}

func testInsertGet(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	in := lot.Input{
		Lot:          "L-001",
		ParentLot:    "P-000",
		ItemCode:     "SKU-1",
		Amount:       1 << 40,
		Per:          "box",
		Type:         "pallet",
		ExternalLot:  "EXT-9",
		ExternalCode: "EC-1",
		ItemName:     "Widget",
	}
	want := in.Record()
	if err := r.Insert(ctx, want); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := r.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.NextByCode = lot.Zero
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func testInsertDuplicate(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	mustAdd(t, r, input("a", "", "C", "item", 1))
	mustAdd(t, r, input("b", "a", "C", "item", 2))

	labels, codes, types := []string{"a", "b"}, []string{"C"}, []string{"item"}
	before := snapshot(t, r, labels, codes, types)

	_, err := r.Add(ctx, input("a", "", "C", "item", 99))
	if !errors.Is(err, registry.ErrAlreadyExists) {
		t.Fatalf("second Add() error = %v, want ErrAlreadyExists", err)
	}
	if after := snapshot(t, r, labels, codes, types); after != before {
		t.Errorf("state changed after failed insert\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func testInsertInvalid(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	tests := []struct {
		name string
		rec  lot.Record
	}{
		{"empty label", lot.Record{ID: lot.DeriveID("x"), ItemCode: "C"}},
		{"zero id", lot.Record{Lot: "x", ItemCode: "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Insert(ctx, tt.rec); !errors.Is(err, registry.ErrInvalidRecord) {
				t.Errorf("Insert() error = %v, want ErrInvalidRecord", err)
			}
		})
	}
	ids := mustIDs(t)(r.ByCode(ctx, "C"))
	if len(ids) != 0 {
		t.Errorf("ByCode() = %v, want empty", ids)
	}
}

func testGetMissing(t *testing.T, r *registry.Registry) {
	_, err := r.Get(context.Background(), lot.DeriveID("missing"))
	if !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func testTraverse(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	var want []lot.ID
	var wantNames []string
	for i := 0; i < 5; i++ {
		label := fmt.Sprintf("t-%d", i)
		want = append(want, mustAdd(t, r, input(label, "", "C", "item", uint64(i))))
		wantNames = append(wantNames, "name-"+label)
		// Interleave another code to check chains stay separate.
		mustAdd(t, r, input(label+"-other", "", "D", "item", 0))
	}

	tests := []struct {
		limit int
		n     int
	}{
		{0, 5},
		{-1, 5},
		{1, 1},
		{3, 3},
		{5, 5},
		{10, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit=%d", tt.limit), func(t *testing.T) {
			ids, names, err := r.Traverse(ctx, "C", tt.limit)
			if err != nil {
				t.Fatalf("Traverse() error = %v", err)
			}
			if !equalIDs(ids, want[:tt.n]) {
				t.Errorf("Traverse() ids = %v, want %v", ids, want[:tt.n])
			}
			if len(names) != tt.n {
				t.Fatalf("Traverse() names = %v, want %d", names, tt.n)
			}
			for i := range names {
				if names[i] != wantNames[i] {
					t.Errorf("names[%d] = %q, want %q", i, names[i], wantNames[i])
				}
			}
		})
	}
}

func testTraverseUnknownCode(t *testing.T, r *registry.Registry) {
	ids, names, err := r.Traverse(context.Background(), "nope", 0)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if ids == nil || names == nil || len(ids) != 0 || len(names) != 0 {
		t.Errorf("Traverse() = %v, %v, want two empty slices", ids, names)
	}
}

func testIndexCounts(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	mustAdd(t, r, input("a", "", "C1", "cover", 1))
	mustAdd(t, r, input("b", "", "C1", "item", 1))
	mustAdd(t, r, input("c", "", "C2", "cover", 1))
	mustAdd(t, r, input("d", "", "C1", "a type nobody planned", 1))

	tests := []struct {
		name string
		get  func() ([]lot.ID, error)
		want int
	}{
		{"code C1", func() ([]lot.ID, error) { return r.ByCode(ctx, "C1") }, 3},
		{"code C2", func() ([]lot.ID, error) { return r.ByCode(ctx, "C2") }, 1},
		{"code unused", func() ([]lot.ID, error) { return r.ByCode(ctx, "C3") }, 0},
		{"type cover", func() ([]lot.ID, error) { return r.ByType(ctx, "cover") }, 2},
		{"type open", func() ([]lot.ID, error) { return r.ByType(ctx, "a type nobody planned") }, 1},
		{"type unused", func() ([]lot.ID, error) { return r.ByType(ctx, "subItem") }, 0},
		{"children unused", func() ([]lot.ID, error) { return r.ChildrenOf(ctx, lot.DeriveID("a")) }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := tt.get()
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if ids == nil {
				t.Fatal("got nil slice, want non-nil")
			}
			if len(ids) != tt.want {
				t.Errorf("len = %d, want %d", len(ids), tt.want)
			}
		})
	}

	ids := mustIDs(t)(r.ByCode(ctx, "C1"))
	want := []lot.ID{lot.DeriveID("a"), lot.DeriveID("b"), lot.DeriveID("d")}
	if !equalIDs(ids, want) {
		t.Errorf("ByCode(C1) = %v, want insertion order %v", ids, want)
	}
}

func addFamily(t *testing.T, r *registry.Registry) {
	t.Helper()
	mustAdd(t, r, input("root", "", "R", "item", 1000))
	mustAdd(t, r, input("child1", "root", "C", "cover", 100))
	mustAdd(t, r, input("child2", "root", "C", "cover", 200))
	mustAdd(t, r, input("grandchild1", "child1", "G", "subItem", 10))
}

func labelsOf(recs []lot.Record) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.Lot
	}
	return out
}

func testFlatten(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	addFamily(t, r)

	recs, err := r.Flatten(ctx, lot.DeriveID("root"))
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	got := fmt.Sprint(labelsOf(recs))
	want := fmt.Sprint([]string{"root", "child1", "grandchild1", "child2"})
	if got != want {
		t.Errorf("Flatten() = %s, want %s", got, want)
	}

	if n := len(mustIDs(t)(r.ChildrenOf(ctx, lot.DeriveID("root")))); n != 2 {
		t.Errorf("ChildrenOf(root) len = %d, want 2", n)
	}
	if n := len(mustIDs(t)(r.ChildrenOf(ctx, lot.DeriveID("child1")))); n != 1 {
		t.Errorf("ChildrenOf(child1) len = %d, want 1", n)
	}

	sub, err := r.Flatten(ctx, lot.DeriveID("child1"))
	if err != nil {
		t.Fatalf("Flatten(child1) error = %v", err)
	}
	if got := fmt.Sprint(labelsOf(sub)); got != "[child1 grandchild1]" {
		t.Errorf("Flatten(child1) = %s", got)
	}
}

func testFlattenMissingRoot(t *testing.T, r *registry.Registry) {
	_, err := r.Flatten(context.Background(), lot.DeriveID("missing"))
	if !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Flatten() error = %v, want ErrNotFound", err)
	}
}

func testFlattenSelfParent(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	id := mustAdd(t, r, input("loop", "loop", "C", "item", 1))
	mustAdd(t, r, input("inner", "loop", "C", "item", 1))

	recs, err := r.Flatten(ctx, id)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	if got := fmt.Sprint(labelsOf(recs)); got != "[loop inner]" {
		t.Errorf("Flatten() = %s, want [loop inner]", got)
	}
}

func testOrphanChild(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	// Child first; the parent arrives later.
	mustAdd(t, r, input("kid", "later", "C", "item", 1))
	if n := len(mustIDs(t)(r.ChildrenOf(ctx, lot.DeriveID("later")))); n != 1 {
		t.Fatalf("ChildrenOf(later) len = %d, want 1", n)
	}

	recs, err := r.Flatten(ctx, lot.DeriveID("kid"))
	if err != nil {
		t.Fatalf("Flatten(kid) error = %v", err)
	}
	if node := lot.BuildTree(recs); node == nil || node.Lot != "kid" {
		t.Fatalf("BuildTree() root = %+v, want kid", node)
	}

	mustAdd(t, r, input("later", "", "C", "item", 1))
	node, err := r.Tree(ctx, lot.DeriveID("later"))
	if err != nil {
		t.Fatalf("Tree(later) error = %v", err)
	}
	if len(node.SubItems) != 1 || node.SubItems[0].Lot != "kid" {
		t.Errorf("Tree(later) subItems = %+v", node.SubItems)
	}
}

func testTree(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	addFamily(t, r)

	recs, err := r.Flatten(ctx, lot.DeriveID("root"))
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	node, err := r.Tree(ctx, lot.DeriveID("root"))
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if node.Lot != "root" || len(node.SubItems) != 2 {
		t.Fatalf("Tree() root = %s with %d subItems", node.Lot, len(node.SubItems))
	}
	c1 := node.SubItems[0]
	if c1.Lot != "child1" || len(c1.SubItems) != 1 || c1.SubItems[0].Lot != "grandchild1" {
		t.Errorf("child1 branch = %+v", c1)
	}

	// Round trip: the rebuilt tree flattens back to the stored records.
	back := node.Records()
	if len(back) != len(recs) {
		t.Fatalf("Records() len = %d, want %d", len(back), len(recs))
	}
	for i := range recs {
		want := recs[i]
		want.NextByCode = lot.Zero
		if back[i] != want {
			t.Errorf("Records()[%d] = %+v, want %+v", i, back[i], want)
		}
	}
}

func testTreeByCode(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	addFamily(t, r)

	recs, err := r.TreeByCode(ctx, "C")
	if err != nil {
		t.Fatalf("TreeByCode() error = %v", err)
	}
	if got := fmt.Sprint(labelsOf(recs)); got != "[child1 child2]" {
		t.Errorf("TreeByCode(C) = %s, want [child1 child2]", got)
	}

	none, err := r.TreeByCode(ctx, "unused")
	if err != nil {
		t.Fatalf("TreeByCode(unused) error = %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("TreeByCode(unused) = %v, want empty", none)
	}
}

func testUpdate(t *testing.T, r *registry.Registry) {
	ctx := context.Background()

	err := r.Update(ctx, lot.DeriveID("missing"), lot.Patch{Amount: 1})
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("Update(missing) error = %v, want ErrNotFound", err)
	}

	mustAdd(t, r, input("p", "", "C", "item", 1))
	id := mustAdd(t, r, input("x", "p", "C", "cover", 5))
	mustAdd(t, r, input("y", "", "C", "cover", 6))
	before, err := r.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	patch := lot.Patch{
		Amount:       42,
		Per:          "l",
		ExternalLot:  "E-1",
		ExternalCode: "E-C",
		ItemName:     "renamed",
	}
	if err := r.Update(ctx, id, patch); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := r.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	want := before
	want.Apply(patch)
	if got != want {
		t.Errorf("Get() after Update = %+v, want %+v", got, want)
	}

	_, names, err := r.Traverse(ctx, "C", 0)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(names) != "[name-p renamed name-y]" {
		t.Errorf("Traverse() names = %v", names)
	}
	if n := len(mustIDs(t)(r.ByType(ctx, "cover"))); n != 2 {
		t.Errorf("ByType(cover) len = %d, want 2", n)
	}
}

func testParent(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	addFamily(t, r)

	tests := []struct {
		label string
		want  lot.ID
	}{
		{"root", lot.Zero},
		{"child1", lot.DeriveID("root")},
		{"grandchild1", lot.DeriveID("child1")},
	}
	for _, tt := range tests {
		got, err := r.Parent(ctx, lot.DeriveID(tt.label))
		if err != nil {
			t.Fatalf("Parent(%s) error = %v", tt.label, err)
		}
		if got != tt.want {
			t.Errorf("Parent(%s) = %s, want %s", tt.label, got, tt.want)
		}
	}

	if _, err := r.Parent(ctx, lot.DeriveID("missing")); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Parent(missing) error = %v, want ErrNotFound", err)
	}
}

func testBatchInsert(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	ids, err := r.BatchAdd(ctx, []lot.Input{
		input("b1", "", "C", "item", 1),
		input("b2", "b1", "C", "item", 2),
		input("b3", "b1", "C", "item", 3),
	})
	if err != nil {
		t.Fatalf("BatchAdd() error = %v", err)
	}
	want := []lot.ID{lot.DeriveID("b1"), lot.DeriveID("b2"), lot.DeriveID("b3")}
	if !equalIDs(ids, want) {
		t.Errorf("BatchAdd() ids = %v, want %v", ids, want)
	}

	chain, _, err := r.Traverse(ctx, "C", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(chain, want) {
		t.Errorf("Traverse() = %v, want %v", chain, want)
	}
	if n := len(mustIDs(t)(r.ChildrenOf(ctx, want[0]))); n != 2 {
		t.Errorf("ChildrenOf(b1) len = %d, want 2", n)
	}
}

func testBatchRollback(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	mustAdd(t, r, input("dup", "", "C", "item", 1))

	labels := []string{"dup", "n0", "n1", "n2", "n3"}
	codes, types := []string{"C", "N"}, []string{"item", "new"}
	before := snapshot(t, r, labels, codes, types)

	batch := []lot.Input{
		input("n0", "", "N", "new", 1),
		input("n1", "n0", "C", "new", 1),
		input("dup", "", "C", "item", 1),
		input("n2", "n0", "N", "new", 1),
		input("n3", "", "C", "item", 1),
	}
	_, err := r.BatchAdd(ctx, batch)
	if !errors.Is(err, registry.ErrInvalidBatch) {
		t.Fatalf("BatchAdd() error = %v, want ErrInvalidBatch", err)
	}
	if !errors.Is(err, registry.ErrAlreadyExists) {
		t.Errorf("BatchAdd() error = %v, want cause ErrAlreadyExists", err)
	}

	if after := snapshot(t, r, labels, codes, types); after != before {
		t.Errorf("state changed after failed batch\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func testBatchIntraDuplicate(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	labels, codes, types := []string{"a", "b"}, []string{"C"}, []string{"item"}
	before := snapshot(t, r, labels, codes, types)

	_, err := r.BatchAdd(ctx, []lot.Input{
		input("a", "", "C", "item", 1),
		input("b", "", "C", "item", 1),
		input("a", "", "C", "item", 2),
	})
	if !errors.Is(err, registry.ErrInvalidBatch) || !errors.Is(err, registry.ErrAlreadyExists) {
		t.Fatalf("BatchAdd() error = %v, want ErrInvalidBatch wrapping ErrAlreadyExists", err)
	}
	if after := snapshot(t, r, labels, codes, types); after != before {
		t.Errorf("state changed after failed batch\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func testBatchEmpty(t *testing.T, r *registry.Registry) {
	if err := r.BatchInsert(context.Background(), nil); err != nil {
		t.Errorf("BatchInsert(nil) error = %v", err)
	}
}

func testScenario(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	if _, err := r.BatchAdd(ctx, []lot.Input{
		input("root", "", "R", "item", 1000),
		input("child1", "root", "C", "cover", 100),
		input("child2", "root", "C", "cover", 200),
		input("grandchild1", "child1", "G", "subItem", 10),
	}); err != nil {
		t.Fatalf("BatchAdd() error = %v", err)
	}

	recs, err := r.Flatten(ctx, lot.DeriveID("root"))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 4 {
		t.Errorf("Flatten(root) len = %d, want 4", len(recs))
	}
	if n := len(mustIDs(t)(r.ChildrenOf(ctx, lot.DeriveID("root")))); n != 2 {
		t.Errorf("ChildrenOf(root) len = %d, want 2", n)
	}
	if n := len(mustIDs(t)(r.ByType(ctx, "cover"))); n != 2 {
		t.Errorf("ByType(cover) len = %d, want 2", n)
	}

	node := lot.BuildTree(recs)
	if node == nil || len(node.SubItems) != 2 {
		t.Fatalf("BuildTree() = %+v, want 2 subItems", node)
	}
	var c1 *lot.Node
	for _, sub := range node.SubItems {
		if sub.Lot == "child1" {
			c1 = sub
		}
	}
	if c1 == nil || len(c1.SubItems) != 1 || c1.SubItems[0].ItemName != "name-grandchild1" {
		t.Errorf("child1 branch = %+v", c1)
	}
}

// testConcurrentReaders checks that readers see every batch whole or not at all.
func testConcurrentReaders(t *testing.T, r *registry.Registry) {
	ctx := context.Background()
	const batches, size = 10, 4

	done := make(chan struct{})
	errs := make(chan error, 1)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				ids, err := r.ByCode(ctx, "C")
				if err == nil && len(ids)%size != 0 {
					err = fmt.Errorf("saw %d ids, not a multiple of %d", len(ids), size)
				}
				if err != nil {
					select {
					case errs <- err:
					default:
					}
					return
				}
			}
		}()
	}

	for b := 0; b < batches; b++ {
		var batch []lot.Input
		for i := 0; i < size; i++ {
			batch = append(batch, input(fmt.Sprintf("c-%d-%d", b, i), "", "C", "item", 1))
		}
		if _, err := r.BatchAdd(ctx, batch); err != nil {
			close(done)
			wg.Wait()
			t.Fatalf("BatchAdd() error = %v", err)
		}
	}
	close(done)
	wg.Wait()

	select {
	case err := <-errs:
		t.Fatal(err)
	default:
	}
	if n := len(mustIDs(t)(r.ByCode(ctx, "C"))); n != batches*size {
		t.Errorf("ByCode(C) len = %d, want %d", n, batches*size)
	}
}
