package subpic

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Cursor extends a readable byte source with the primitive reads needed by
// the binary subtitle parsers: big endian multi bytes integers (including
// 24 bits ones), fixed size byte runs and relative skipping.
//
// Skipping is always relative, never absolute: it goes through the internal
// buffer first and only falls back to a relative seek on the underlying
// source for the part beyond it. Absolute seeks would invalidate the buffer
// and silently desynchronize the stream position.
type Cursor struct {
	reader   *bufio.Reader
	seeker   io.Seeker // nil if the source is not seekable
	position int64
}

// NewCursor wraps a byte source. If the source implements io.Seeker, large
// skips are done with relative seeks instead of reading through.
func NewCursor(source io.Reader) (c *Cursor) {
	c = &Cursor{
		reader: bufio.NewReader(source),
	}
	if seeker, ok := source.(io.Seeker); ok {
		c.seeker = seeker
	}
	return
}

// Position returns the number of bytes consumed from the source so far.
func (c *Cursor) Position() int64 {
	return c.position
}

// ReadByte reads a single byte. io.EOF is returned untouched so callers can
// detect a clean end of stream at a record boundary.
func (c *Cursor) ReadByte() (b byte, err error) {
	if b, err = c.reader.ReadByte(); err != nil {
		return
	}
	c.position++
	return
}

// ReadBytes reads exactly n bytes. A clean end of stream before the first
// byte yields io.EOF, a partial read fails wrapping ErrUnexpectedEOF.
func (c *Cursor) ReadBytes(n int) (buffer []byte, err error) {
	buffer = make([]byte, n)
	if err = c.ReadFull(buffer); err != nil {
		buffer = nil
	}
	return
}

// ReadFull fills the given buffer entirely, with the same end of stream
// semantics as ReadBytes.
func (c *Cursor) ReadFull(buffer []byte) (err error) {
	var nbRead int
	nbRead, err = io.ReadFull(c.reader, buffer)
	c.position += int64(nbRead)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = fmt.Errorf("read %d bytes out of %d: %w", nbRead, len(buffer), ErrUnexpectedEOF)
		}
		// io.EOF returned untouched
		return
	}
	return
}

// ReadU16 reads a big endian 16 bits unsigned integer.
func (c *Cursor) ReadU16() (value uint16, err error) {
	var buffer [2]byte
	if err = c.readInto(buffer[:]); err != nil {
		return
	}
	value = binary.BigEndian.Uint16(buffer[:])
	return
}

// ReadU24 reads a big endian 24 bits unsigned integer.
func (c *Cursor) ReadU24() (value uint32, err error) {
	var buffer [3]byte
	if err = c.readInto(buffer[:]); err != nil {
		return
	}
	value = uint32(buffer[0])<<16 | uint32(buffer[1])<<8 | uint32(buffer[2])
	return
}

// ReadU32 reads a big endian 32 bits unsigned integer.
func (c *Cursor) ReadU32() (value uint32, err error) {
	var buffer [4]byte
	if err = c.readInto(buffer[:]); err != nil {
		return
	}
	value = binary.BigEndian.Uint32(buffer[:])
	return
}

// readInto is ReadFull for mid structure reads: any end of stream here is an
// ErrUnexpectedEOF, including a clean one.
func (c *Cursor) readInto(buffer []byte) (err error) {
	if err = c.ReadFull(buffer); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("expected %d more bytes: %w", len(buffer), ErrUnexpectedEOF)
		}
		return
	}
	return
}

// Skip advances the cursor by n bytes relative to the current position.
func (c *Cursor) Skip(n int64) (err error) {
	if n < 0 {
		err = fmt.Errorf("can not skip backward (%d bytes)", n)
		return
	}
	buffered := int64(c.reader.Buffered())
	if n <= buffered || c.seeker == nil {
		var discarded int
		discarded, err = c.reader.Discard(int(n))
		c.position += int64(discarded)
		if err != nil {
			err = fmt.Errorf("skipped %d bytes out of %d: %w", discarded, n, ErrUnexpectedEOF)
			return
		}
		return
	}
	// Consume the buffer, then seek the remainder relatively to keep the
	// source position in sync with ours.
	if buffered > 0 {
		var discarded int
		if discarded, err = c.reader.Discard(int(buffered)); err != nil {
			c.position += int64(discarded)
			err = fmt.Errorf("failed to drain read buffer: %w", err)
			return
		}
		c.position += buffered
	}
	if _, err = c.seeker.Seek(n-buffered, io.SeekCurrent); err != nil {
		err = fmt.Errorf("relative seek of %d bytes failed: %w", n-buffered, err)
		return
	}
	c.position += n - buffered
	return
}
