package pager

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T, pageSize, cacheCap int) (*Pager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bkv")
	p, err := Open(path, pageSize, cacheCap)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p, path
}

func TestPageHeaderRoundTrip(t *testing.T) {
	h := PageHeader{
		PageNo:   7,
		Type:     PageOverflow,
		IsLeaf:   true,
		NextFree: 3,
		OfPageNo: 9,
		DataSize: 123,
		PageCnt:  2,
	}
	buf := make([]byte, PageHeaderSize)
	MarshalHeader(&h, buf)
	h2 := UnmarshalHeader(buf)
	if h2 != h {
		t.Fatalf("header roundtrip mismatch: %+v vs %+v", h, h2)
	}
}

func TestDBHeaderRoundTrip(t *testing.T) {
	h := DBHeader{FreeList: 5, RootPage: 1, TotalPages: 42, PageSize: 512}
	buf := make([]byte, DBHeaderSize)
	MarshalDBHeader(&h, buf)
	h2 := UnmarshalDBHeader(buf)
	if h2 != h {
		t.Fatalf("DBHeader roundtrip mismatch: %+v vs %+v", h, h2)
	}
}

func TestNodeEncodeDecodeRoundTrip(t *testing.T) {
	n := &Node{
		PageNo:   3,
		IsLeaf:   false,
		Children: []PageNo{1, 2, 3},
		KVs: []KV{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
		},
	}
	buf := make([]byte, n.EncodedSize())
	nWritten := n.Encode(buf)
	if nWritten != len(buf) {
		t.Fatalf("Encode wrote %d, expected %d", nWritten, len(buf))
	}
	got, err := DecodeNode(n.PageNo, n.IsLeaf, buf)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	if got.PageNo != n.PageNo || got.IsLeaf != n.IsLeaf {
		t.Fatalf("decoded identity mismatch: %+v", got)
	}
	if len(got.Children) != len(n.Children) {
		t.Fatalf("children mismatch: %v vs %v", got.Children, n.Children)
	}
	for i := range n.Children {
		if got.Children[i] != n.Children[i] {
			t.Fatalf("child %d mismatch: %v vs %v", i, got.Children[i], n.Children[i])
		}
	}
	if len(got.KVs) != len(n.KVs) {
		t.Fatalf("kvs mismatch: %v vs %v", got.KVs, n.KVs)
	}
	for i := range n.KVs {
		if !bytes.Equal(got.KVs[i].Key, n.KVs[i].Key) || !bytes.Equal(got.KVs[i].Value, n.KVs[i].Value) {
			t.Fatalf("kv %d mismatch: %+v vs %+v", i, got.KVs[i], n.KVs[i])
		}
	}
	// A re-serialized node must be byte-for-byte equal (spec.md §8).
	buf2 := make([]byte, got.EncodedSize())
	got.Encode(buf2)
	if !bytes.Equal(buf, buf2) {
		t.Fatalf("re-serialization mismatch")
	}
}

func TestOpenCreatesFreshHeader(t *testing.T) {
	p, path := openTest(t, DefaultPageSize, 10)
	defer p.Close()

	if p.header.FreeList != NoPage || p.header.RootPage != NoPage || p.header.TotalPages != 1 {
		t.Fatalf("unexpected fresh header: %+v", p.header)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != int64(DefaultPageSize) {
		t.Fatalf("expected file size %d, got %d", DefaultPageSize, fi.Size())
	}
}

func TestOpenRejectsPageSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bkv")
	p, err := Open(path, DefaultPageSize, 10)
	if err != nil {
		t.Fatal(err)
	}
	p.Close()

	if _, err := Open(path, DefaultPageSize*2, 10); err == nil {
		t.Fatal("expected page size mismatch error")
	}
}

func TestNewTreeNodeAndGetPage(t *testing.T) {
	p, _ := openTest(t, DefaultPageSize, 10)
	defer p.Close()

	f, err := p.NewTreeNode(true)
	if err != nil {
		t.Fatal(err)
	}
	f.Node.KVs = []KV{{Key: []byte("k"), Value: []byte("v")}}
	f.Dirty = true

	if err := p.prune(0, false); err != nil {
		t.Fatal(err)
	}
	got, err := p.GetPage(f.PageNo, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Node.KVs) != 1 || !bytes.Equal(got.Node.KVs[0].Key, []byte("k")) {
		t.Fatalf("unexpected roundtrip node: %+v", got.Node)
	}
}

func TestOverflowChainRoundTrip(t *testing.T) {
	p, _ := openTest(t, DefaultPageSize, 10)
	defer p.Close()

	big := make([]byte, 6400)
	if _, err := rand.Read(big); err != nil {
		t.Fatal(err)
	}

	f, err := p.NewTreeNode(true)
	if err != nil {
		t.Fatal(err)
	}
	f.Node.KVs = []KV{{Key: []byte("big"), Value: big}}
	if err := p.flushPage(f); err != nil {
		t.Fatal(err)
	}

	chain, err := p.physicalChain(f.PageNo)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) < 13 {
		t.Fatalf("expected overflow chain of >= 13 pages, got %d", len(chain))
	}

	p.cache.remove(f.PageNo)
	reread, err := p.GetPage(f.PageNo, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(reread.Node.KVs[0].Value, big) {
		t.Fatal("overflow payload did not round-trip")
	}
}

func TestFlushShrinkReturnsSurplusToFreeList(t *testing.T) {
	// Regression test for the overflow page leak the original source left
	// unresolved (original_source/pager.cpp, "// FIXME page leak"): when a
	// node's payload shrinks across flushes, every surplus overflow page
	// must come back to the free list rather than being stranded.
	p, _ := openTest(t, DefaultPageSize, 10)
	defer p.Close()

	f, err := p.NewTreeNode(true)
	if err != nil {
		t.Fatal(err)
	}
	big := make([]byte, 6400)
	f.Node.KVs = []KV{{Key: []byte("k"), Value: big}}
	if err := p.flushPage(f); err != nil {
		t.Fatal(err)
	}
	chainBefore, err := p.physicalChain(f.PageNo)
	if err != nil {
		t.Fatal(err)
	}
	if len(chainBefore) < 2 {
		t.Fatalf("expected an overflow chain, got %d pages", len(chainBefore))
	}

	freeBefore := p.header.FreeList

	f.Node.KVs = []KV{{Key: []byte("k"), Value: []byte("tiny")}}
	if err := p.flushPage(f); err != nil {
		t.Fatal(err)
	}
	chainAfter, err := p.physicalChain(f.PageNo)
	if err != nil {
		t.Fatal(err)
	}
	if len(chainAfter) != 1 {
		t.Fatalf("expected chain to shrink to 1 page, got %d", len(chainAfter))
	}

	// The surplus pages must now be reachable through the free list.
	seen := map[PageNo]bool{}
	for fl := p.header.FreeList; fl != NoPage; {
		seen[fl] = true
		buf, err := p.readPageRaw(fl)
		if err != nil {
			t.Fatal(err)
		}
		h := UnmarshalHeader(buf)
		if h.Type != PageFree {
			t.Fatalf("free list page %d has type %s", fl, h.Type)
		}
		fl = h.NextFree
	}
	for _, pn := range chainBefore[1:] {
		if !seen[pn] {
			t.Fatalf("surplus overflow page %d leaked, not on free list", pn)
		}
	}
	_ = freeBefore
}

func TestFreeNodeReturnsWholeChainToFreeList(t *testing.T) {
	p, _ := openTest(t, DefaultPageSize, 10)
	defer p.Close()

	f, err := p.NewTreeNode(true)
	if err != nil {
		t.Fatal(err)
	}
	big := make([]byte, 6400)
	f.Node.KVs = []KV{{Key: []byte("k"), Value: big}}
	if err := p.flushPage(f); err != nil {
		t.Fatal(err)
	}
	chain, err := p.physicalChain(f.PageNo)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) < 2 {
		t.Fatalf("expected overflow chain, got %d pages", len(chain))
	}

	if err := p.FreeNode(f); err != nil {
		t.Fatal(err)
	}

	seen := map[PageNo]bool{}
	for fl := p.header.FreeList; fl != NoPage; {
		seen[fl] = true
		buf, err := p.readPageRaw(fl)
		if err != nil {
			t.Fatal(err)
		}
		h := UnmarshalHeader(buf)
		fl = h.NextFree
	}
	for _, pn := range chain {
		if !seen[pn] {
			t.Fatalf("page %d from freed chain not on free list", pn)
		}
	}
}

func TestFreeListReuse(t *testing.T) {
	p, _ := openTest(t, DefaultPageSize, 10)
	defer p.Close()

	f1, err := p.NewTreeNode(true)
	if err != nil {
		t.Fatal(err)
	}
	f1.Node.KVs = []KV{{Key: []byte("a"), Value: []byte("1")}}
	if err := p.flushPage(f1); err != nil {
		t.Fatal(err)
	}
	before := p.header.TotalPages

	if err := p.FreeNode(f1); err != nil {
		t.Fatal(err)
	}
	f2, err := p.NewTreeNode(true)
	if err != nil {
		t.Fatal(err)
	}
	if f2.PageNo != f1.PageNo {
		t.Fatalf("expected reuse of page %d, got %d", f1.PageNo, f2.PageNo)
	}
	if p.header.TotalPages != before {
		t.Fatalf("TotalPages grew on a reuse: before %d, after %d", before, p.header.TotalPages)
	}
}

func TestLRUEvictsUnpinnedAndSkipsPinned(t *testing.T) {
	p, _ := openTest(t, DefaultPageSize, 2)
	defer p.Close()

	root, err := p.GetRoot() // pinned
	if err != nil {
		t.Fatal(err)
	}
	root.Node.KVs = []KV{{Key: []byte("root"), Value: []byte("v")}}
	root.Dirty = true

	var pages []PageNo
	for i := 0; i < 5; i++ {
		f, err := p.NewTreeNode(true)
		if err != nil {
			t.Fatal(err)
		}
		f.Node.KVs = []KV{{Key: []byte{byte(i)}, Value: []byte{byte(i)}}}
		pages = append(pages, f.PageNo)
	}
	if p.cache.size() > p.cache.capacity {
		t.Fatalf("cache exceeded capacity: %d > %d", p.cache.size(), p.cache.capacity)
	}
	if _, ok := p.cache.get(root.PageNo); !ok {
		t.Fatal("pinned root was evicted")
	}
}

func TestCloseFlushesAndPersistsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bkv")
	p, err := Open(path, DefaultPageSize, 10)
	if err != nil {
		t.Fatal(err)
	}
	f, err := p.NewTreeNode(true)
	if err != nil {
		t.Fatal(err)
	}
	f.Node.KVs = []KV{{Key: []byte("x"), Value: []byte("y")}}
	p.SetRoot(f.PageNo)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	p2, err := Open(path, DefaultPageSize, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()
	if p2.header.RootPage != f.PageNo {
		t.Fatalf("root page not persisted: got %d want %d", p2.header.RootPage, f.PageNo)
	}
	got, err := p2.GetPage(f.PageNo, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Node.KVs[0].Value, []byte("y")) {
		t.Fatal("flushed node value mismatch after reopen")
	}
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	p, _ := openTest(t, DefaultPageSize, 10)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.NewTreeNode(true); !errors.Is(err, ErrClosed) {
		t.Fatalf("NewTreeNode: expected ErrClosed, got %v", err)
	}
	if _, err := p.GetRoot(); !errors.Is(err, ErrClosed) {
		t.Fatalf("GetRoot: expected ErrClosed, got %v", err)
	}
	if _, err := p.GetPage(0, false); !errors.Is(err, ErrClosed) {
		t.Fatalf("GetPage: expected ErrClosed, got %v", err)
	}
}
