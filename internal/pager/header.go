package pager

import "bkv/internal/codec"

// DBHeaderSize is the on-disk size of DBHeader in bytes: four int64 fields.
const DBHeaderSize = 8 * 4

// DBHeader is the persistent database header, stored in page 0. The
// remaining bytes of page 0 are reserved.
type DBHeader struct {
	FreeList   PageNo // head of the free list, or NoPage
	RootPage   PageNo // root of the B-tree, or NoPage when empty
	TotalPages int64  // next-to-allocate high-water mark
	PageSize   int64  // fixed page size configured for this file
}

// MarshalDBHeader writes h into the first DBHeaderSize bytes of buf.
func MarshalDBHeader(h *DBHeader, buf []byte) {
	if len(buf) < DBHeaderSize {
		panic("pager: buffer too small for DBHeader")
	}
	off := 0
	off += codec.PutUint64(buf[off:], uint64(h.FreeList))
	off += codec.PutUint64(buf[off:], uint64(h.RootPage))
	off += codec.PutUint64(buf[off:], uint64(h.TotalPages))
	codec.PutUint64(buf[off:], uint64(h.PageSize))
}

// UnmarshalDBHeader reads a DBHeader from the first DBHeaderSize bytes of buf.
func UnmarshalDBHeader(buf []byte) DBHeader {
	var h DBHeader
	off := 0
	v, n := codec.Uint64(buf[off:])
	h.FreeList = PageNo(int64(v))
	off += n
	v, n = codec.Uint64(buf[off:])
	h.RootPage = PageNo(int64(v))
	off += n
	v, n = codec.Uint64(buf[off:])
	h.TotalPages = int64(v)
	off += n
	v, _ = codec.Uint64(buf[off:])
	h.PageSize = int64(v)
	return h
}
