package pager

import (
	"fmt"
	"os"
)

// ───────────────────────────────────────────────────────────────────────────
// Pager
// ───────────────────────────────────────────────────────────────────────────
//
// The Pager is the sole owner of the database file. It exposes the tree a
// handful of node-shaped operations (NewTreeNode, GetRoot, GetPage, FreeNode)
// and hides everything about page layout, the free list, overflow chains,
// and the in-memory cache behind them. There is no locking: spec.md's
// non-goals rule out concurrent access, so a Pager is only ever driven by
// one goroutine at a time.

type Pager struct {
	file     *os.File
	path     string
	pageSize int
	fileSize int64
	header   DBHeader
	cache    *pageCache
	closed   bool
}

// Open opens (or creates) the database file at path. cacheCapacity is the
// number of Tree pages the LRU cache holds before evicting; DefaultCacheCapacity
// is used if it's <= 0.
//
// On a fresh file, pageSize is taken as given and a new DBHeader is written
// to page 0. On an existing file, the stored page size must match.
func Open(path string, pageSize int, cacheCapacity int) (*Pager, error) {
	if pageSize <= PageHeaderSize {
		return nil, fmt.Errorf("pager: page size %d too small (header alone needs %d)", pageSize, PageHeaderSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pager: stat %s: %w", path, err)
	}

	p := &Pager{
		file:     f,
		path:     path,
		pageSize: pageSize,
		fileSize: fi.Size(),
		cache:    newPageCache(cacheCapacity),
	}

	if p.fileSize >= DBHeaderSize {
		hbuf := make([]byte, DBHeaderSize)
		if _, err := f.ReadAt(hbuf, 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("pager: read header page: %w", err)
		}
		if stored := UnmarshalDBHeader(hbuf).PageSize; stored != 0 && int(stored) != pageSize {
			f.Close()
			return nil, fmt.Errorf("pager: page size mismatch: file was created with %d, opened with %d", stored, pageSize)
		}
	}

	if p.fileSize < int64(pageSize) {
		if err := f.Truncate(int64(pageSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("pager: allocate header page: %w", err)
		}
		p.fileSize = int64(pageSize)
		p.header = DBHeader{
			FreeList:   NoPage,
			RootPage:   NoPage,
			TotalPages: 1,
			PageSize:   int64(pageSize),
		}
		if err := p.writeHeaderPage(); err != nil {
			f.Close()
			return nil, err
		}
		return p, nil
	}

	buf := make([]byte, pageSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("pager: read header page: %w", err)
	}
	p.header = UnmarshalDBHeader(buf)
	p.header.PageSize = int64(pageSize)
	return p, nil
}

// PageSize returns the fixed page size this file was opened with.
func (p *Pager) PageSize() int { return p.pageSize }

// TotalPages returns the high-water mark of allocated pages, including the
// header page, free pages and pages still referenced by the tree.
func (p *Pager) TotalPages() int64 { return p.header.TotalPages }

// Close flushes every dirty cached page, persists the DBHeader, and closes
// the underlying file. Close is idempotent.
func (p *Pager) Close() error {
	if p.closed {
		return nil
	}
	if err := p.prune(0, true); err != nil {
		return err
	}
	if err := p.writeHeaderPage(); err != nil {
		return err
	}
	p.closed = true
	return p.file.Close()
}

func (p *Pager) writeHeaderPage() error {
	buf := make([]byte, p.pageSize)
	MarshalDBHeader(&p.header, buf)
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("pager: write header page: %w", err)
	}
	return nil
}

// ───────────────────────────────────────────────────────────────────────────
// Raw page I/O
// ───────────────────────────────────────────────────────────────────────────

// readPageRaw reads a full, existing page. Reading a page number that lies
// beyond the current end of file is a structural fault and panics.
func (p *Pager) readPageRaw(pageNo PageNo) ([]byte, error) {
	off := int64(pageNo) * int64(p.pageSize)
	if off < 0 || off+int64(p.pageSize) > p.fileSize {
		panic(fmt.Sprintf("pager: page %d is past the end of file", pageNo))
	}
	buf := make([]byte, p.pageSize)
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("pager: read page %d: %w", pageNo, err)
	}
	return buf, nil
}

// writePageRaw writes a full page, growing the file if pageNo lies at or
// beyond its current end.
func (p *Pager) writePageRaw(pageNo PageNo, buf []byte) error {
	off := int64(pageNo) * int64(p.pageSize)
	need := off + int64(p.pageSize)
	if need > p.fileSize {
		if err := p.file.Truncate(need); err != nil {
			return fmt.Errorf("pager: grow file to %d bytes: %w", need, err)
		}
		p.fileSize = need
	}
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("pager: write page %d: %w", pageNo, err)
	}
	return nil
}

// headerIfExists reads pageNo's header from disk, or reports ok=false if
// pageNo has never been written (lies at or beyond the current file size).
// Used to discover a node's existing overflow chain before rewriting it.
func (p *Pager) headerIfExists(pageNo PageNo) (h PageHeader, ok bool, err error) {
	off := int64(pageNo) * int64(p.pageSize)
	if off < 0 || off+int64(p.pageSize) > p.fileSize {
		return PageHeader{}, false, nil
	}
	buf, err := p.readPageRaw(pageNo)
	if err != nil {
		return PageHeader{}, false, err
	}
	return UnmarshalHeader(buf), true, nil
}

// physicalChain returns the full list of physical pages currently backing
// primary (primary itself first, followed by its overflow pages in link
// order), as last written to disk. Returns just [primary] if primary has
// never been written as a Tree page (past the end of file, a zero-filled
// page inside the file, or a Free page).
func (p *Pager) physicalChain(primary PageNo) ([]PageNo, error) {
	h, ok, err := p.headerIfExists(primary)
	if err != nil {
		return nil, err
	}
	chain := []PageNo{primary}
	if !ok || h.Type != PageTree {
		return chain, nil
	}
	of := h.OfPageNo
	for of != NoPage {
		oh, ok, err := p.headerIfExists(of)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		chain = append(chain, of)
		of = oh.OfPageNo
	}
	return chain, nil
}

// allocPageNo returns a page number for new content: the free list head if
// one is available, otherwise a fresh page at the current high-water mark.
func (p *Pager) allocPageNo() (PageNo, error) {
	if p.header.FreeList != NoPage {
		return p.popFreeList()
	}
	pn := PageNo(p.header.TotalPages)
	p.header.TotalPages++
	return pn, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Tree node access
// ───────────────────────────────────────────────────────────────────────────

// NewTreeNode allocates a fresh, empty tree node (leaf or internal) and
// inserts it into the cache, dirty. The caller fills in Children/KVs and
// leaves the page cache to write it back.
func (p *Pager) NewTreeNode(isLeaf bool) (*PageFrame, error) {
	if p.closed {
		return nil, ErrClosed
	}
	pn, err := p.allocPageNo()
	if err != nil {
		return nil, err
	}
	f := &PageFrame{
		PageNo: pn,
		Node:   &Node{PageNo: pn, IsLeaf: isLeaf},
		Dirty:  true,
	}
	p.cacheInsert(f)
	return f, nil
}

// GetRoot returns the tree's root node, pinned for the life of the Pager.
// If the tree is empty (no root yet), an empty leaf root is allocated.
func (p *Pager) GetRoot() (*PageFrame, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.header.RootPage == NoPage {
		f, err := p.NewTreeNode(true)
		if err != nil {
			return nil, err
		}
		p.header.RootPage = f.PageNo
		f.Pinned = true
		return f, nil
	}
	return p.GetPage(p.header.RootPage, true)
}

// SetRoot updates the page number the DBHeader records as the tree root.
func (p *Pager) SetRoot(pageNo PageNo) {
	p.header.RootPage = pageNo
}

// GetPage returns a handle to the Tree node at pageNo, serving it from cache
// when resident. pin sticks the page in cache for the rest of the Pager's
// open lifetime; pass true only for the root.
func (p *Pager) GetPage(pageNo PageNo, pin bool) (*PageFrame, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if f, ok := p.cache.get(pageNo); ok {
		if pin {
			f.Pinned = true
		}
		return f, nil
	}

	buf, err := p.readPageRaw(pageNo)
	if err != nil {
		return nil, err
	}
	h := UnmarshalHeader(buf)
	if h.Type != PageTree {
		panic(fmt.Sprintf("pager: GetPage(%d): expected a Tree page, found %s", pageNo, h.Type))
	}

	payload := make([]byte, 0, h.DataSize)
	payload = append(payload, readOverflowPayload(buf, h.DataSize)...)
	of := h.OfPageNo
	for of != NoPage {
		obuf, err := p.readPageRaw(of)
		if err != nil {
			return nil, err
		}
		oh := UnmarshalHeader(obuf)
		payload = append(payload, readOverflowPayload(obuf, oh.DataSize)...)
		of = oh.OfPageNo
	}

	node, err := DecodeNode(pageNo, h.IsLeaf, payload)
	if err != nil {
		return nil, fmt.Errorf("pager: decode page %d: %w", pageNo, err)
	}
	f := &PageFrame{PageNo: pageNo, Node: node, Pinned: pin}
	p.cacheInsert(f)
	return f, nil
}

// FreeNode returns a node's primary page and its entire overflow chain to
// the free list, and drops it from the cache. Callers must not use f again.
func (p *Pager) FreeNode(f *PageFrame) error {
	if p.closed {
		return ErrClosed
	}
	chain, err := p.physicalChain(f.PageNo)
	if err != nil {
		return err
	}
	for _, pn := range chain {
		if err := p.pushFreeList(pn); err != nil {
			return err
		}
	}
	p.cache.remove(f.PageNo)
	return nil
}

// ───────────────────────────────────────────────────────────────────────────
// Cache insertion, eviction and flush
// ───────────────────────────────────────────────────────────────────────────

func (p *Pager) cacheInsert(f *PageFrame) {
	p.cache.put(f)
	p.prune(p.cache.capacity, false)
}

// prune evicts frames until at most limit remain cached, writing back any
// dirty victim first. With force, pinned frames are eligible too (used on
// Close, where the root must also be flushed and released).
func (p *Pager) prune(limit int, force bool) error {
	for p.cache.size() > limit {
		f := p.cache.lruUnpinned(force)
		if f == nil {
			break
		}
		if f.Dirty {
			if err := p.flushPage(f); err != nil {
				return err
			}
		}
		p.cache.remove(f.PageNo)
	}
	return nil
}

// flushPage serializes f.Node and writes it back to its primary page and
// however many overflow pages the payload now needs, reusing the pages
// already backing it and releasing any surplus to the free list, or
// allocating more if the payload grew (spec.md §4.4).
func (p *Pager) flushPage(f *PageFrame) error {
	payloadPerPage := PayloadPerPage(p.pageSize)
	size := f.Node.EncodedSize()
	payload := make([]byte, size)
	f.Node.Encode(payload)

	neededCnt := (size + payloadPerPage - 1) / payloadPerPage
	if neededCnt < 1 {
		neededCnt = 1
	}

	existing, err := p.physicalChain(f.PageNo)
	if err != nil {
		return err
	}

	var usePages []PageNo
	if neededCnt <= len(existing) {
		usePages = existing[:neededCnt]
		for _, surplus := range existing[neededCnt:] {
			if err := p.pushFreeList(surplus); err != nil {
				return err
			}
		}
	} else {
		usePages = append(usePages, existing...)
		for i := 0; i < neededCnt-len(existing); i++ {
			pn, err := p.allocPageNo()
			if err != nil {
				return err
			}
			usePages = append(usePages, pn)
		}
	}

	for i, pn := range usePages {
		start := i * payloadPerPage
		end := start + payloadPerPage
		if end > size {
			end = size
		}
		chunk := payload[start:end]

		var of PageNo = NoPage
		if i < len(usePages)-1 {
			of = usePages[i+1]
		}
		h := PageHeader{PageNo: pn, OfPageNo: of, DataSize: uint32(len(chunk))}
		if i == 0 {
			h.Type = PageTree
			h.IsLeaf = f.Node.IsLeaf
			h.PageCnt = uint32(len(usePages))
		} else {
			h.Type = PageOverflow
			h.PageCnt = 1
		}

		buf := NewPageBuf(p.pageSize, h)
		if err := writeOverflowPayload(buf, chunk); err != nil {
			return err
		}
		if err := p.writePageRaw(pn, buf); err != nil {
			return err
		}
	}

	f.Dirty = false
	return nil
}

// Stats reports cache and allocation figures for diagnostics.
type Stats struct {
	TotalPages   int64
	CachedPages  int
	FreeListHead PageNo
	RootPage     PageNo
}

func (p *Pager) Stats() Stats {
	return Stats{
		TotalPages:   p.header.TotalPages,
		CachedPages:  p.cache.size(),
		FreeListHead: p.header.FreeList,
		RootPage:     p.header.RootPage,
	}
}
