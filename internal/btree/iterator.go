package btree

import "bkv/internal/pager"

// pathEntry is one level of an iterator's root-to-leaf path. childIdx is the
// index (in this node's Children) that was followed to reach the next
// entry down; it's meaningless for the last (deepest) entry until Next
// descends from it.
type pathEntry struct {
	frame    *pager.PageFrame
	childIdx int
}

// Iterator walks live keys in comparator order. It holds a path of page
// handles from root to the current node plus an index into that node's
// key sequence (spec.md §4.6). An iterator is only valid between mutations:
// any Put/Delete on the owning tree may invalidate a stored path.
type Iterator struct {
	bt    *BTree
	path  []pathEntry
	kvIdx int
	valid bool
}

// Iterator returns a fresh, unseeked iterator over bt.
func (bt *BTree) Iterator() *Iterator {
	return &Iterator{bt: bt}
}

// Valid reports whether Key/Value may be called.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current entry's key. Valid must be true.
func (it *Iterator) Key() []byte {
	top := it.path[len(it.path)-1]
	return top.frame.Node.KVs[it.kvIdx].Key
}

// Value returns the current entry's value. Valid must be true.
func (it *Iterator) Value() []byte {
	top := it.path[len(it.path)-1]
	return top.frame.Node.KVs[it.kvIdx].Value
}

// SeekFirst positions the iterator at the smallest live key.
func (it *Iterator) SeekFirst() error {
	root, err := it.bt.pager.GetRoot()
	if err != nil {
		return err
	}
	it.path = it.path[:0]
	frame := root
	for {
		n := frame.Node
		if n.IsLeaf {
			it.path = append(it.path, pathEntry{frame: frame})
			break
		}
		it.path = append(it.path, pathEntry{frame: frame, childIdx: 0})
		frame, err = it.bt.pager.GetPage(n.Children[0], false)
		if err != nil {
			return err
		}
	}
	it.kvIdx = 0
	it.valid = len(frame.Node.KVs) > 0
	return nil
}

// SeekLast positions the iterator at the largest live key.
func (it *Iterator) SeekLast() error {
	root, err := it.bt.pager.GetRoot()
	if err != nil {
		return err
	}
	it.path = it.path[:0]
	frame := root
	for {
		n := frame.Node
		if n.IsLeaf {
			it.path = append(it.path, pathEntry{frame: frame})
			break
		}
		last := len(n.Children) - 1
		it.path = append(it.path, pathEntry{frame: frame, childIdx: last})
		frame, err = it.bt.pager.GetPage(n.Children[last], false)
		if err != nil {
			return err
		}
	}
	n := frame.Node
	it.kvIdx = len(n.KVs) - 1
	it.valid = it.kvIdx >= 0
	return nil
}

// Seek positions the iterator at key if present. Otherwise it stops at the
// lower-bound position in the leaf where the search path ends; if that
// position is past the leaf's last key, Valid is false, even when a larger
// key is stored in an ancestor node.
func (it *Iterator) Seek(key []byte) error {
	root, err := it.bt.pager.GetRoot()
	if err != nil {
		return err
	}
	it.path = it.path[:0]
	frame := root
	for {
		n := frame.Node
		i := lowerBound(n, key, it.bt.less)
		if i < len(n.KVs) && it.bt.equal(n.KVs[i].Key, key) {
			it.path = append(it.path, pathEntry{frame: frame})
			it.kvIdx = i
			it.valid = true
			return nil
		}
		if n.IsLeaf {
			it.path = append(it.path, pathEntry{frame: frame})
			if i < len(n.KVs) {
				it.kvIdx = i
				it.valid = true
			} else {
				it.valid = false
			}
			return nil
		}
		it.path = append(it.path, pathEntry{frame: frame, childIdx: i})
		frame, err = it.bt.pager.GetPage(n.Children[i], false)
		if err != nil {
			return err
		}
	}
}

// Next advances to the in-order successor. It's a no-op once Valid is false.
func (it *Iterator) Next() error {
	if !it.valid {
		return nil
	}

	top := &it.path[len(it.path)-1]
	n := top.frame.Node

	if !n.IsLeaf {
		top.childIdx = it.kvIdx + 1
		frame, err := it.bt.pager.GetPage(n.Children[it.kvIdx+1], false)
		if err != nil {
			return err
		}
		for {
			cn := frame.Node
			if cn.IsLeaf {
				it.path = append(it.path, pathEntry{frame: frame})
				break
			}
			it.path = append(it.path, pathEntry{frame: frame, childIdx: 0})
			frame, err = it.bt.pager.GetPage(cn.Children[0], false)
			if err != nil {
				return err
			}
		}
		it.kvIdx = 0
		it.valid = true
		return nil
	}

	if it.kvIdx+1 < len(n.KVs) {
		it.kvIdx++
		return nil
	}

	it.path = it.path[:len(it.path)-1]
	for len(it.path) > 0 {
		anc := &it.path[len(it.path)-1]
		pn := anc.frame.Node
		if anc.childIdx < len(pn.KVs) {
			it.kvIdx = anc.childIdx
			it.valid = true
			return nil
		}
		it.path = it.path[:len(it.path)-1]
	}
	it.valid = false
	return nil
}
