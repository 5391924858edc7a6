package vobsub

import "bytes"

var (
	idxMagic = []byte("# VobSub index file")
	subMagic = []byte{0x00, 0x00, 0x01, StreamIDPackHeader}
)

// IsIdxData reports whether the given file head looks like an Idx file, which
// always starts with its signature comment line.
func IsIdxData(head []byte) bool {
	return bytes.HasPrefix(head, idxMagic)
}

// IsSubData reports whether the given file head looks like a .sub MPEG
// Program Stream, which always starts with a pack header.
func IsSubData(head []byte) bool {
	return bytes.HasPrefix(head, subMagic)
}
