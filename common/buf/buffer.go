package buf

import (
	"io"

	E "github.com/sagernet/sing-cio/common/exceptions"
)

// Buffer is one fixed-capacity segment. Readable bytes are data[start:end]
// and writable space is data[end:].
type Buffer struct {
	data   []byte
	start  int
	end    int
	pooled bool
}

// NewSize returns an empty buffer holding size bytes. Sizes the allocator
// does not serve are allocated directly.
func NewSize(size int) *Buffer {
	buffer := getBuffer()
	data := Get(size)
	if data != nil {
		*buffer = Buffer{data: data, pooled: true}
	} else {
		*buffer = Buffer{data: make([]byte, size)}
	}
	return buffer
}

func (b *Buffer) Len() int {
	return b.end - b.start
}

func (b *Buffer) FreeLen() int {
	return len(b.data) - b.end
}

func (b *Buffer) IsEmpty() bool {
	return b.start == b.end
}

func (b *Buffer) IsFull() bool {
	return b.end == len(b.data)
}

func (b *Buffer) Bytes() []byte {
	return b.data[b.start:b.end]
}

func (b *Buffer) FreeBytes() []byte {
	return b.data[b.end:]
}

// Byte returns the readable byte at index.
func (b *Buffer) Byte(index int) byte {
	return b.data[b.start+index]
}

// To returns the first n readable bytes without consuming them.
func (b *Buffer) To(n int) []byte {
	return b.data[b.start : b.start+n]
}

// Extend marks n bytes of free space as written.
func (b *Buffer) Extend(n int) {
	if n > b.FreeLen() {
		panic(E.New("buffer overflow: free ", b.FreeLen(), ", extend ", n))
	}
	b.end += n
}

// Advance consumes n readable bytes.
func (b *Buffer) Advance(n int) {
	b.start += n
}

func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > 0 && b.IsFull() {
		return 0, io.ErrShortBuffer
	}
	n := copy(b.data[b.end:], p)
	b.end += n
	return n, nil
}

func (b *Buffer) WriteString(s string) (int, error) {
	if len(s) > 0 && b.IsFull() {
		return 0, io.ErrShortBuffer
	}
	n := copy(b.data[b.end:], s)
	b.end += n
	return n, nil
}

func (b *Buffer) WriteByte(value byte) error {
	if b.IsFull() {
		return io.ErrShortBuffer
	}
	b.data[b.end] = value
	b.end++
	return nil
}

// ReadFullFrom appends exactly size bytes read from r.
func (b *Buffer) ReadFullFrom(r io.Reader, size int) (int, error) {
	if size > b.FreeLen() {
		return 0, io.ErrShortBuffer
	}
	n, err := io.ReadFull(r, b.data[b.end:b.end+size])
	b.end += n
	return n, err
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.IsEmpty() {
		return 0, io.EOF
	}
	n := copy(p, b.Bytes())
	b.start += n
	return n, nil
}

func (b *Buffer) ReadByte() (byte, error) {
	if b.IsEmpty() {
		return 0, io.EOF
	}
	value := b.data[b.start]
	b.start++
	return value, nil
}

// Release returns the buffer and its storage to their pools. The buffer
// must not be used afterwards.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if b.pooled {
		_ = Put(b.data)
	}
	*b = Buffer{}
	putBuffer(b)
}
