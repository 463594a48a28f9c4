package tspacer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/icza/bitio"
)

// BitReader provides byte-aligned and sub-byte, MSB-first reads over a
// contiguous in-memory buffer, with peek and push-back. It wraps
// github.com/icza/bitio.CountReader the way the teacher's PES/PSI decoders
// do, but additionally tracks enough state to support the sync-scan
// one-byte rewind and the pack-header-probing 32-bit rewind called out in
// the design notes.
type BitReader struct {
	buf []byte
	r   *bitio.CountReader
	// bitOffset is the absolute bit offset of the next unread bit.
	bitOffset int64
}

// NewBitReader wraps buf for reading.
func NewBitReader(buf []byte) *BitReader {
	br := &BitReader{buf: buf}
	br.r = bitio.NewCountReader(bytes.NewReader(buf))
	return br
}

func (b *BitReader) totalBits() int64 { return int64(len(b.buf)) * 8 }

// HasMoreData reports whether at least one more bit can be read.
func (b *BitReader) HasMoreData() bool { return b.bitOffset < b.totalBits() }

// IsByteAligned reports whether the next read starts on a byte boundary.
func (b *BitReader) IsByteAligned() bool { return b.bitOffset%8 == 0 }

// reposition rebuilds the underlying bitio reader at bitOffset. bitio has
// no native seek, so push-back is implemented by re-slicing the backing
// buffer from the nearest byte boundary and discarding the remainder.
func (b *BitReader) reposition() {
	byteOff := b.bitOffset / 8
	b.r = bitio.NewCountReader(bytes.NewReader(b.buf[byteOff:]))
	if sub := b.bitOffset % 8; sub != 0 {
		_ = b.r.TryReadBits(uint8(sub))
	}
}

func (b *BitReader) checkErr() error {
	if b.r.TryError != nil {
		if b.r.TryError == io.EOF || b.r.TryError == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w", ErrReadPastEnd)
		}
		return fmt.Errorf("tspacer: bit read failed: %w", b.r.TryError)
	}
	return nil
}

// ReadBit reads a single bit.
func (b *BitReader) ReadBit() (bool, error) {
	if b.bitOffset+1 > b.totalBits() {
		return false, ErrReadPastEnd
	}
	v := b.r.TryReadBool()
	if err := b.checkErr(); err != nil {
		return false, err
	}
	b.bitOffset++
	return v, nil
}

// ReadBits reads n (<=32) bits MSB-first and returns them right-aligned.
func (b *BitReader) ReadBits(n uint8) (uint32, error) {
	if n > 32 {
		return 0, fmt.Errorf("tspacer: ReadBits: n=%d exceeds 32", n)
	}
	if b.bitOffset+int64(n) > b.totalBits() {
		return 0, ErrReadPastEnd
	}
	v := b.r.TryReadBits(n)
	if err := b.checkErr(); err != nil {
		return 0, err
	}
	b.bitOffset += int64(n)
	return uint32(v), nil
}

// ReadByte reads a single byte.
func (b *BitReader) ReadByte() (byte, error) {
	v, err := b.ReadBits(8)
	return byte(v), err
}

// ReadBytes reads n bytes. When the reader is byte-aligned, it returns a
// borrowed view into the backing buffer (no copy); otherwise it assembles
// the bytes bit by bit.
func (b *BitReader) ReadBytes(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if b.bitOffset+int64(n)*8 > b.totalBits() {
		return nil, ErrReadPastEnd
	}
	if b.IsByteAligned() {
		start := b.bitOffset / 8
		out := b.buf[start : start+int64(n)]
		b.bitOffset += int64(n) * 8
		b.reposition()
		return out, nil
	}
	out := make([]byte, n)
	for i := range out {
		v, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SkipBytes advances n bytes without copying them out.
func (b *BitReader) SkipBytes(n int) error {
	if n <= 0 {
		return nil
	}
	if b.bitOffset+int64(n)*8 > b.totalBits() {
		return ErrReadPastEnd
	}
	b.bitOffset += int64(n) * 8
	b.reposition()
	return nil
}

// PushBackBits rewinds the reader by n bits.
func (b *BitReader) PushBackBits(n int64) error {
	if b.bitOffset-n < 0 {
		return fmt.Errorf("tspacer: PushBackBits: rewinding %d bits from offset %d underflows", n, b.bitOffset)
	}
	b.bitOffset -= n
	b.reposition()
	return nil
}

// PushBackByte rewinds the reader by one byte-aligned byte.
func (b *BitReader) PushBackByte() error { return b.PushBackBits(8) }

// PushBackBytes rewinds the reader by n bytes.
func (b *BitReader) PushBackBytes(n int) error { return b.PushBackBits(int64(n) * 8) }

// Peek returns the next n bytes without advancing the reader.
func (b *BitReader) Peek(n int) ([]byte, error) {
	save := b.bitOffset
	out, err := b.ReadBytes(n)
	b.bitOffset = save
	b.reposition()
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(out))
	copy(cp, out)
	return cp, nil
}

// GetCurrentByte returns the byte the reader's cursor currently sits in
// (requires byte alignment).
func (b *BitReader) GetCurrentByte() (byte, error) {
	return b.GetByteAt(0)
}

// GetByteAt returns the byte at relativeOffset bytes from the current
// (byte-aligned) position, without advancing the reader.
func (b *BitReader) GetByteAt(relativeOffset int) (byte, error) {
	idx := b.bitOffset/8 + int64(relativeOffset)
	if idx < 0 || idx >= int64(len(b.buf)) {
		return 0, ErrReadPastEnd
	}
	return b.buf[idx], nil
}

// BitOffset returns the absolute bit offset of the next unread bit.
func (b *BitReader) BitOffset() int64 { return b.bitOffset }

// ByteOffset returns BitOffset()/8, valid only when IsByteAligned.
func (b *BitReader) ByteOffset() int64 { return b.bitOffset / 8 }

// Len returns the total number of bytes backing the reader.
func (b *BitReader) Len() int { return len(b.buf) }
