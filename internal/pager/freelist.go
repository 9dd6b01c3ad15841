package pager

// ───────────────────────────────────────────────────────────────────────────
// Free list
// ───────────────────────────────────────────────────────────────────────────
//
// The free list is a singly-linked chain of whole pages, threaded directly
// through each page's own header: a Free page's header.NextFree points at
// the next free page (or NoPage at the end), and the DBHeader's FreeList
// field is the chain head. There is no separate free-list page format —
// one node of the chain *is* one page, which keeps allocation and release
// O(1) with no extra bookkeeping page to maintain.
//
// Popping the head requires reading that page to learn its NextFree link
// (spec.md §4.4); pushing a freed page just rewrites its header and moves
// the DBHeader's FreeList pointer to it.

// popFreeList removes and returns the head of the free list, or NoPage if
// it is empty. The caller is responsible for persisting the updated
// DBHeader.FreeList.
func (p *Pager) popFreeList() (PageNo, error) {
	head := p.header.FreeList
	if head == NoPage {
		return NoPage, nil
	}
	buf, err := p.readPageRaw(head)
	if err != nil {
		return NoPage, err
	}
	h := UnmarshalHeader(buf)
	if h.Type != PageFree {
		panic("pager: free list head is not a Free page — corrupt free list")
	}
	p.header.FreeList = h.NextFree
	return head, nil
}

// pushFreeList prepends pageNo to the free list, rewriting its header.
func (p *Pager) pushFreeList(pageNo PageNo) error {
	h := PageHeader{
		PageNo:   pageNo,
		Type:     PageFree,
		NextFree: p.header.FreeList,
		OfPageNo: NoPage,
	}
	buf := NewPageBuf(p.pageSize, h)
	if err := p.writePageRaw(pageNo, buf); err != nil {
		return err
	}
	p.header.FreeList = pageNo
	return nil
}
