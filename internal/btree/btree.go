package btree

import (
	"bkv/internal/pager"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get and Delete when the key is absent.
var ErrNotFound = errors.New("btree: key not found")

// BTree is a classical B-tree keyed by a Comparator over byte strings, with
// node identity delegated entirely to the Pager: every node reference here
// is a page number, and every mutation goes through pager.PageFrame handles.
type BTree struct {
	pager *pager.Pager
	t     int // minimum-key degree
	less  Comparator
}

// New returns a B-tree backed by p. minDegree < 2 falls back to
// pager.DefaultMinDegree; a nil less falls back to DefaultComparator.
func New(p *pager.Pager, minDegree int, less Comparator) *BTree {
	if minDegree < 2 {
		minDegree = pager.DefaultMinDegree
	}
	if less == nil {
		less = DefaultComparator
	}
	return &BTree{pager: p, t: minDegree, less: less}
}

func (bt *BTree) equal(a, b []byte) bool {
	return !bt.less(a, b) && !bt.less(b, a)
}

// lowerBound returns the first index i such that n.KVs[i].Key >= key.
func lowerBound(n *pager.Node, key []byte, less Comparator) int {
	lo, hi := 0, len(n.KVs)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if less(n.KVs[mid].Key, key) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// ───────────────────────────────────────────────────────────────────────────
// Get
// ───────────────────────────────────────────────────────────────────────────

// Get returns the value stored for key, or ErrNotFound if it's absent.
func (bt *BTree) Get(key []byte) (value []byte, err error) {
	frame, err := bt.pager.GetRoot()
	if err != nil {
		return nil, err
	}
	for {
		n := frame.Node
		i := lowerBound(n, key, bt.less)
		if i < len(n.KVs) && bt.equal(n.KVs[i].Key, key) {
			return n.KVs[i].Value, nil
		}
		if n.IsLeaf {
			return nil, ErrNotFound
		}
		frame, err = bt.pager.GetPage(n.Children[i], false)
		if err != nil {
			return nil, err
		}
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Put
// ───────────────────────────────────────────────────────────────────────────

// Put inserts key/value, or overwrites the value in place if key already exists.
func (bt *BTree) Put(key, value []byte) error {
	root, err := bt.pager.GetRoot()
	if err != nil {
		return err
	}
	if err := bt.put(root, key, value); err != nil {
		return err
	}
	if len(root.Node.KVs) > 2*bt.t {
		return bt.splitRoot(root)
	}
	return nil
}

func (bt *BTree) put(frame *pager.PageFrame, key, value []byte) error {
	n := frame.Node
	i := lowerBound(n, key, bt.less)
	if i < len(n.KVs) && bt.equal(n.KVs[i].Key, key) {
		n.KVs[i].Value = value
		frame.Dirty = true
		return nil
	}
	if n.IsLeaf {
		n.KVs = insertKV(n.KVs, i, pager.KV{Key: key, Value: value})
		frame.Dirty = true
		return nil
	}

	child, err := bt.pager.GetPage(n.Children[i], false)
	if err != nil {
		return err
	}
	if err := bt.put(child, key, value); err != nil {
		return err
	}
	if len(child.Node.KVs) > 2*bt.t {
		return bt.splitChild(frame, i, child)
	}
	return nil
}

// splitChild splits an overfull child of frame at index idx into two fresh
// nodes, promoting the median key into frame at idx. The child's original
// page is freed; both halves are allocated fresh (spec.md §4.5).
func (bt *BTree) splitChild(frame *pager.PageFrame, idx int, child *pager.PageFrame) error {
	left, right, median, err := bt.splitNode(child)
	if err != nil {
		return err
	}

	pn := frame.Node
	pn.KVs = insertKV(pn.KVs, idx, median)
	pn.Children[idx] = left.PageNo
	pn.Children = insertChild(pn.Children, idx+1, right.PageNo)
	frame.Dirty = true
	return nil
}

// splitRoot splits an overfull root, allocating a new internal root above
// the two fresh halves.
func (bt *BTree) splitRoot(root *pager.PageFrame) error {
	left, right, median, err := bt.splitNode(root)
	if err != nil {
		return err
	}

	newRoot, err := bt.pager.NewTreeNode(false)
	if err != nil {
		return err
	}
	newRoot.Node.KVs = []pager.KV{median}
	newRoot.Node.Children = []pager.PageNo{left.PageNo, right.PageNo}
	newRoot.Dirty = true
	newRoot.Pinned = true

	bt.pager.SetRoot(newRoot.PageNo)
	return nil
}

// splitNode splits an overfull node in two, frees its original page, and
// returns the fresh left/right frames plus the promoted median entry.
func (bt *BTree) splitNode(frame *pager.PageFrame) (left, right *pager.PageFrame, median pager.KV, err error) {
	n := frame.Node
	m := len(n.KVs) / 2
	median = n.KVs[m]

	left, err = bt.pager.NewTreeNode(n.IsLeaf)
	if err != nil {
		return nil, nil, pager.KV{}, err
	}
	left.Node.KVs = append([]pager.KV(nil), n.KVs[:m]...)
	if !n.IsLeaf {
		left.Node.Children = append([]pager.PageNo(nil), n.Children[:m+1]...)
	}
	left.Dirty = true

	right, err = bt.pager.NewTreeNode(n.IsLeaf)
	if err != nil {
		return nil, nil, pager.KV{}, err
	}
	right.Node.KVs = append([]pager.KV(nil), n.KVs[m+1:]...)
	if !n.IsLeaf {
		right.Node.Children = append([]pager.PageNo(nil), n.Children[m+1:]...)
	}
	right.Dirty = true

	if err := bt.pager.FreeNode(frame); err != nil {
		return nil, nil, pager.KV{}, err
	}
	return left, right, median, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Delete
// ───────────────────────────────────────────────────────────────────────────

// Delete removes key, returning ErrNotFound if it wasn't present.
func (bt *BTree) Delete(key []byte) error {
	root, err := bt.pager.GetRoot()
	if err != nil {
		return err
	}
	found, err := bt.del(root, nil, -1, key)
	if err != nil {
		return err
	}

	rn := root.Node
	if !rn.IsLeaf && len(rn.KVs) == 0 {
		if len(rn.Children) != 1 {
			panic("btree: internal root with no keys must have exactly one child")
		}
		child, err := bt.pager.GetPage(rn.Children[0], false)
		if err != nil {
			return err
		}
		if err := bt.pager.FreeNode(root); err != nil {
			return err
		}
		child.Pinned = true
		bt.pager.SetRoot(child.PageNo)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// del removes key from the subtree rooted at frame. parent/childIdx describe
// frame's position in its parent (nil/-1 at the root). Rebalancing of frame
// itself, if needed, happens here using parent/childIdx before returning —
// the cascade up through ancestors falls out of ordinary call-stack unwinding.
func (bt *BTree) del(frame, parent *pager.PageFrame, childIdx int, key []byte) (bool, error) {
	n := frame.Node
	i := lowerBound(n, key, bt.less)
	var found bool

	switch {
	case i < len(n.KVs) && bt.equal(n.KVs[i].Key, key):
		found = true
		if n.IsLeaf {
			n.KVs = removeKV(n.KVs, i)
			frame.Dirty = true
		} else {
			predKV, err := bt.maxKV(n.Children[i])
			if err != nil {
				return false, err
			}
			n.KVs[i] = predKV
			frame.Dirty = true
			child, err := bt.pager.GetPage(n.Children[i], false)
			if err != nil {
				return false, err
			}
			if _, err := bt.del(child, frame, i, predKV.Key); err != nil {
				return false, err
			}
		}
	case !n.IsLeaf:
		child, err := bt.pager.GetPage(n.Children[i], false)
		if err != nil {
			return false, err
		}
		f, err := bt.del(child, frame, i, key)
		if err != nil {
			return false, err
		}
		found = f
	default:
		return false, nil
	}

	if parent != nil && len(n.KVs) < bt.t {
		if err := bt.rebalance(frame, parent, childIdx); err != nil {
			return found, err
		}
	}
	return found, nil
}

// maxKV returns the rightmost key/value reachable under pageNo, without
// mutating anything — used to find the in-order predecessor.
func (bt *BTree) maxKV(pageNo pager.PageNo) (pager.KV, error) {
	frame, err := bt.pager.GetPage(pageNo, false)
	if err != nil {
		return pager.KV{}, err
	}
	n := frame.Node
	for !n.IsLeaf {
		frame, err = bt.pager.GetPage(n.Children[len(n.Children)-1], false)
		if err != nil {
			return pager.KV{}, err
		}
		n = frame.Node
	}
	if len(n.KVs) == 0 {
		return pager.KV{}, fmt.Errorf("btree: empty leaf reached while finding predecessor")
	}
	return n.KVs[len(n.KVs)-1], nil
}

// rebalance restores frame's [t, 2t] invariant after it fell below t keys,
// in priority order: rotate from left, rotate from right, merge with left,
// merge with right. Exactly one applies for a well-formed non-root node.
func (bt *BTree) rebalance(frame, parent *pager.PageFrame, childIdx int) error {
	pn := parent.Node
	n := frame.Node

	var leftSib, rightSib *pager.PageFrame
	var err error
	if childIdx > 0 {
		leftSib, err = bt.pager.GetPage(pn.Children[childIdx-1], false)
		if err != nil {
			return err
		}
	}
	if childIdx < len(pn.Children)-1 {
		rightSib, err = bt.pager.GetPage(pn.Children[childIdx+1], false)
		if err != nil {
			return err
		}
	}

	if leftSib != nil && len(leftSib.Node.KVs) > bt.t {
		ls := leftSib.Node
		sep := childIdx - 1
		n.KVs = insertKV(n.KVs, 0, pn.KVs[sep])
		if !n.IsLeaf {
			last := ls.Children[len(ls.Children)-1]
			n.Children = insertChild(n.Children, 0, last)
			ls.Children = ls.Children[:len(ls.Children)-1]
		}
		pn.KVs[sep] = ls.KVs[len(ls.KVs)-1]
		ls.KVs = ls.KVs[:len(ls.KVs)-1]
		frame.Dirty = true
		leftSib.Dirty = true
		parent.Dirty = true
		return nil
	}

	if rightSib != nil && len(rightSib.Node.KVs) > bt.t {
		rs := rightSib.Node
		sep := childIdx
		n.KVs = append(n.KVs, pn.KVs[sep])
		if !n.IsLeaf {
			first := rs.Children[0]
			n.Children = append(n.Children, first)
			rs.Children = rs.Children[1:]
		}
		pn.KVs[sep] = rs.KVs[0]
		rs.KVs = rs.KVs[1:]
		frame.Dirty = true
		rightSib.Dirty = true
		parent.Dirty = true
		return nil
	}

	if leftSib != nil {
		ls := leftSib.Node
		sep := childIdx - 1
		ls.KVs = append(ls.KVs, pn.KVs[sep])
		ls.KVs = append(ls.KVs, n.KVs...)
		if !n.IsLeaf {
			ls.Children = append(ls.Children, n.Children...)
		}
		pn.KVs = removeKV(pn.KVs, sep)
		pn.Children = removeChild(pn.Children, sep+1)
		leftSib.Dirty = true
		parent.Dirty = true
		return bt.pager.FreeNode(frame)
	}

	if rightSib != nil {
		rs := rightSib.Node
		sep := childIdx
		n.KVs = append(n.KVs, pn.KVs[sep])
		n.KVs = append(n.KVs, rs.KVs...)
		if !n.IsLeaf {
			n.Children = append(n.Children, rs.Children...)
		}
		pn.KVs = removeKV(pn.KVs, sep)
		pn.Children = removeChild(pn.Children, sep+1)
		frame.Dirty = true
		parent.Dirty = true
		return bt.pager.FreeNode(rightSib)
	}

	panic("btree: underfull non-root node has no sibling to rebalance with")
}

// ───────────────────────────────────────────────────────────────────────────
// Slice helpers
// ───────────────────────────────────────────────────────────────────────────

func insertKV(kvs []pager.KV, i int, kv pager.KV) []pager.KV {
	kvs = append(kvs, pager.KV{})
	copy(kvs[i+1:], kvs[i:])
	kvs[i] = kv
	return kvs
}

func removeKV(kvs []pager.KV, i int) []pager.KV {
	return append(kvs[:i], kvs[i+1:]...)
}

func insertChild(cs []pager.PageNo, i int, c pager.PageNo) []pager.PageNo {
	cs = append(cs, pager.NoPage)
	copy(cs[i+1:], cs[i:])
	cs[i] = c
	return cs
}

func removeChild(cs []pager.PageNo, i int) []pager.PageNo {
	return append(cs[:i], cs[i+1:]...)
}
