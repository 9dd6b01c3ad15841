// Package codec implements the fixed-width little-endian integer and
// length-prefixed byte-string encoding used throughout the on-disk format.
package codec

import (
	"encoding/binary"
	"fmt"
)

// PutUint8 writes a single byte at buf[0] and returns the bytes written.
func PutUint8(buf []byte, v uint8) int {
	buf[0] = v
	return 1
}

// Uint8 reads a single byte from buf[0].
func Uint8(buf []byte) (uint8, int) {
	return buf[0], 1
}

// PutUint16 writes a little-endian uint16 at buf[0:2].
func PutUint16(buf []byte, v uint16) int {
	binary.LittleEndian.PutUint16(buf, v)
	return 2
}

// Uint16 reads a little-endian uint16 from buf[0:2].
func Uint16(buf []byte) (uint16, int) {
	return binary.LittleEndian.Uint16(buf), 2
}

// PutUint32 writes a little-endian uint32 at buf[0:4].
func PutUint32(buf []byte, v uint32) int {
	binary.LittleEndian.PutUint32(buf, v)
	return 4
}

// Uint32 reads a little-endian uint32 from buf[0:4].
func Uint32(buf []byte) (uint32, int) {
	return binary.LittleEndian.Uint32(buf), 4
}

// PutUint64 writes a little-endian uint64 at buf[0:8].
func PutUint64(buf []byte, v uint64) int {
	binary.LittleEndian.PutUint64(buf, v)
	return 8
}

// Uint64 reads a little-endian uint64 from buf[0:8].
func Uint64(buf []byte) (uint64, int) {
	return binary.LittleEndian.Uint64(buf), 8
}

// PutBool writes a single byte (0 or 1) at buf[0].
func PutBool(buf []byte, v bool) int {
	if v {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	return 1
}

// Bool reads a single byte from buf[0] as a boolean.
func Bool(buf []byte) (bool, int) {
	return buf[0] != 0, 1
}

// PutBytes writes a u32 length prefix followed by the raw bytes of b, at
// buf[0:4+len(b)], and returns the total bytes written.
func PutBytes(buf []byte, b []byte) int {
	binary.LittleEndian.PutUint32(buf, uint32(len(b)))
	copy(buf[4:], b)
	return 4 + len(b)
}

// Bytes decodes a u32-length-prefixed byte string from buf. It never reads
// past len(buf); a truncated prefix or payload returns an error instead of
// panicking, so a corrupt on-disk record cannot crash the decoder.
func Bytes(buf []byte) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("codec: length prefix truncated: have %d bytes, need 4", len(buf))
	}
	n := binary.LittleEndian.Uint32(buf)
	end := 4 + int(n)
	if end < 0 || len(buf) < end {
		return nil, 0, fmt.Errorf("codec: byte string truncated: have %d bytes, need %d", len(buf), end)
	}
	out := make([]byte, n)
	copy(out, buf[4:end])
	return out, end, nil
}

// BytesLen returns the number of bytes PutBytes would write for b.
func BytesLen(b []byte) int {
	return 4 + len(b)
}
