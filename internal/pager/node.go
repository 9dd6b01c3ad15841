package pager

import (
	"bkv/internal/codec"
	"fmt"
)

// KV is a single key/value entry stored in a tree node.
type KV struct {
	Key   []byte
	Value []byte
}

// Node is the logical form of one B-tree vertex: its page number, whether
// it's a leaf, its ordered child page numbers (empty on leaves, one more
// than len(KVs) on internal nodes), and its ordered key/value entries.
type Node struct {
	PageNo   PageNo
	IsLeaf   bool
	Children []PageNo
	KVs      []KV
}

// EncodedSize returns the number of payload bytes Encode would write.
//
//	children_count : u32
//	children       : u64 × children_count
//	kvs_count      : u32
//	foreach kv: length-prefixed key, length-prefixed value
func (n *Node) EncodedSize() int {
	size := 4 + 8*len(n.Children) + 4
	for _, kv := range n.KVs {
		size += codec.BytesLen(kv.Key) + codec.BytesLen(kv.Value)
	}
	return size
}

// Encode serializes n's payload (not its header) into buf, which must be at
// least EncodedSize() bytes. Returns the number of bytes written.
func (n *Node) Encode(buf []byte) int {
	off := 0
	off += codec.PutUint32(buf[off:], uint32(len(n.Children)))
	for _, c := range n.Children {
		off += codec.PutUint64(buf[off:], uint64(c))
	}
	off += codec.PutUint32(buf[off:], uint32(len(n.KVs)))
	for _, kv := range n.KVs {
		off += codec.PutBytes(buf[off:], kv.Key)
		off += codec.PutBytes(buf[off:], kv.Value)
	}
	return off
}

// DecodeNode reconstructs a node's Children and KVs from a reassembled
// payload buffer of declared size. Decoding is total: it never reads past
// buf's bounds, returning an error instead on a truncated/corrupt payload.
func DecodeNode(pageNo PageNo, isLeaf bool, buf []byte) (*Node, error) {
	n := &Node{PageNo: pageNo, IsLeaf: isLeaf}
	off := 0

	if len(buf) < off+4 {
		return nil, fmt.Errorf("pager: node payload truncated reading children_count: %w", ErrCorrupt)
	}
	childCount, sz := codec.Uint32(buf[off:])
	off += sz

	n.Children = make([]PageNo, 0, childCount)
	for i := uint32(0); i < childCount; i++ {
		if len(buf) < off+8 {
			return nil, fmt.Errorf("pager: node payload truncated reading child %d/%d: %w", i, childCount, ErrCorrupt)
		}
		v, sz := codec.Uint64(buf[off:])
		off += sz
		n.Children = append(n.Children, PageNo(int64(v)))
	}

	if len(buf) < off+4 {
		return nil, fmt.Errorf("pager: node payload truncated reading kvs_count: %w", ErrCorrupt)
	}
	kvCount, sz := codec.Uint32(buf[off:])
	off += sz

	n.KVs = make([]KV, 0, kvCount)
	for i := uint32(0); i < kvCount; i++ {
		key, consumed, err := codec.Bytes(buf[off:])
		if err != nil {
			return nil, fmt.Errorf("pager: node payload kv %d/%d key: %w: %w", i, kvCount, err, ErrCorrupt)
		}
		off += consumed
		val, consumed, err := codec.Bytes(buf[off:])
		if err != nil {
			return nil, fmt.Errorf("pager: node payload kv %d/%d value: %w: %w", i, kvCount, err, ErrCorrupt)
		}
		off += consumed
		n.KVs = append(n.KVs, KV{Key: key, Value: val})
	}

	return n, nil
}
