package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/lottrace/lot"
)

// ByCode returns the ids inserted with itemCode, in insertion order.
func (r *Registry) ByCode(ctx context.Context, itemCode string) ([]lot.ID, error) {
	return r.index(ctx, "by_code", KindCode, itemCode)
}

// ByType returns the ids inserted with itemType, in insertion order.
func (r *Registry) ByType(ctx context.Context, itemType string) ([]lot.ID, error) {
	return r.index(ctx, "by_type", KindType, itemType)
}

// ChildrenOf returns the ids inserted with parent as their parent, in
// insertion order. The parent itself need not be stored.
func (r *Registry) ChildrenOf(ctx context.Context, parent lot.ID) ([]lot.ID, error) {
	return r.index(ctx, "children_of", KindChildren, ChildrenKey(parent))
}

func (r *Registry) index(ctx context.Context, op string, kind Kind, key string) (ids []lot.ID, err error) {
	defer func() { r.metrics.observe(op, err) }()

	r.mu.RLock()
	defer r.mu.RUnlock()

	err = r.backend.View(ctx, func(tx Tx) error {
		var err error
		ids, err = tx.Index(kind, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []lot.ID{}
	}
	return ids, nil
}

// Traverse walks the chain of itemCode from its head and returns the ids and
// item names of up to limit records in chain order. A limit of zero or less
// walks the whole chain. An unused code yields two empty slices.
func (r *Registry) Traverse(ctx context.Context, itemCode string, limit int) (ids []lot.ID, names []string, err error) {
	defer func() { r.metrics.observe("traverse", err) }()

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids = []lot.ID{}
	names = []string{}
	err = r.backend.View(ctx, func(tx Tx) error {
		chain, err := tx.Chain(itemCode)
		if err != nil {
			return err
		}
		for cur := chain.Head; !cur.IsZero(); {
			if limit > 0 && len(ids) >= limit {
				break
			}
			rec, err := tx.Record(cur)
			if err != nil {
				return fmt.Errorf("chain %q at %s: %w", itemCode, cur, err)
			}
			ids = append(ids, rec.ID)
			names = append(names, rec.ItemName)
			cur = rec.NextByCode
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ids, names, nil
}

// Flatten returns the record stored under rootID followed by all of its
// descendants in depth-first pre-order, children in insertion order. It fails
// with ErrNotFound if rootID is not stored. Each record is emitted once even
// if parent links form a cycle.
func (r *Registry) Flatten(ctx context.Context, rootID lot.ID) (recs []lot.Record, err error) {
	defer func() { r.metrics.observe("flatten", err) }()

	r.mu.RLock()
	defer r.mu.RUnlock()

	err = r.backend.View(ctx, func(tx Tx) error {
		var err error
		recs, err = flatten(tx, rootID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Tree returns the subtree under rootID as a nested node.
func (r *Registry) Tree(ctx context.Context, rootID lot.ID) (*lot.Node, error) {
	recs, err := r.Flatten(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return lot.BuildTree(recs), nil
}

// TreeByCode returns the records carrying itemCode in code index order.
//
// Despite the name this is a flat filter over the code index: records are not
// nested and their position in any tree is ignored.
func (r *Registry) TreeByCode(ctx context.Context, itemCode string) (recs []lot.Record, err error) {
	defer func() { r.metrics.observe("tree_by_code", err) }()

	r.mu.RLock()
	defer r.mu.RUnlock()

	recs = []lot.Record{}
	err = r.backend.View(ctx, func(tx Tx) error {
		ids, err := tx.Index(KindCode, itemCode)
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, err := tx.Record(id)
			if err != nil {
				return fmt.Errorf("code %q at %s: %w", itemCode, id, err)
			}
			if rec.ItemCode == itemCode {
				recs = append(recs, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func flatten(tx Tx, rootID lot.ID) ([]lot.Record, error) {
	root, err := getRecord(tx, rootID)
	if err != nil {
		return nil, err
	}

	var out []lot.Record
	visited := make(map[lot.ID]bool)

	var walk func(rec lot.Record) error
	walk = func(rec lot.Record) error {
		visited[rec.ID] = true
		out = append(out, rec)

		children, err := tx.Index(KindChildren, ChildrenKey(rec.ID))
		if err != nil {
			return err
		}
		for _, id := range children {
			if visited[id] {
				continue
			}
			child, err := tx.Record(id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}
