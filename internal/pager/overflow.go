package pager

import "fmt"

// ───────────────────────────────────────────────────────────────────────────
// Overflow pages
// ───────────────────────────────────────────────────────────────────────────
//
// When a node's serialized payload doesn't fit in one page, the remainder
// spills into a singly-linked chain of Overflow pages, each reusing the
// common PageHeader: OfPageNo links to the next page in the chain (NoPage
// at the end) and DataSize is the number of payload bytes that page holds.
// The full payload is the concatenation of the primary page's payload slice
// with each overflow page's payload slice, in link order (spec.md §4.2).

// overflowCapacity returns the payload bytes a single overflow page holds.
func overflowCapacity(pageSize int) int {
	return PayloadPerPage(pageSize)
}

// writeOverflowPayload copies payload into buf's payload region (after the
// header) and returns an error if it doesn't fit.
func writeOverflowPayload(buf []byte, payload []byte) error {
	cap := overflowCapacity(len(buf))
	if len(payload) > cap {
		return fmt.Errorf("pager: overflow payload %d bytes exceeds page capacity %d", len(payload), cap)
	}
	copy(buf[PageHeaderSize:], payload)
	return nil
}

// readOverflowPayload returns the payload slice of a page buffer given the
// declared data size in its header.
func readOverflowPayload(buf []byte, dataSize uint32) []byte {
	return buf[PageHeaderSize : PageHeaderSize+int(dataSize)]
}
