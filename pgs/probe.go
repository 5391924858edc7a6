package pgs

import "bytes"

// IsSupData reports whether the given file head looks like a .sup stream,
// which always starts with a segment magic number.
func IsSupData(head []byte) bool {
	return bytes.HasPrefix(head, magicNumber[:])
}
