package buf

import (
	"bytes"
	"io"
)

// Chain is an unbounded byte queue made of pooled segments.
// It is not safe for concurrent use.
type Chain struct {
	segments []*Buffer
	length   int
}

func NewChain() *Chain {
	return new(Chain)
}

func (c *Chain) Len() int {
	return c.length
}

func (c *Chain) IsEmpty() bool {
	return c.length == 0
}

func (c *Chain) tail() *Buffer {
	if len(c.segments) > 0 {
		last := c.segments[len(c.segments)-1]
		if !last.IsFull() {
			return last
		}
	}
	segment := NewSize(SegmentSize)
	c.segments = append(c.segments, segment)
	return segment
}

func (c *Chain) Write(p []byte) (n int, err error) {
	for n < len(p) {
		written, _ := c.tail().Write(p[n:])
		n += written
	}
	c.length += n
	return
}

func (c *Chain) WriteString(s string) (n int, err error) {
	for n < len(s) {
		written, _ := c.tail().WriteString(s[n:])
		n += written
	}
	c.length += n
	return
}

func (c *Chain) WriteByte(d byte) error {
	_ = c.tail().WriteByte(d)
	c.length++
	return nil
}

// FreeBytes returns writable space at the tail. Bytes written into it become
// readable after Commit.
func (c *Chain) FreeBytes() []byte {
	return c.tail().FreeBytes()
}

func (c *Chain) Commit(n int) {
	c.segments[len(c.segments)-1].Extend(n)
	c.length += n
}

// Head returns the readable bytes of the first segment.
func (c *Chain) Head() []byte {
	for _, segment := range c.segments {
		if !segment.IsEmpty() {
			return segment.Bytes()
		}
	}
	return nil
}

// Discard drops up to n bytes from the front and returns the count dropped.
func (c *Chain) Discard(n int) int {
	var discarded int
	for discarded < n && len(c.segments) > 0 {
		segment := c.segments[0]
		step := segment.Len()
		if step > n-discarded {
			step = n - discarded
		}
		segment.Advance(step)
		discarded += step
		if segment.IsEmpty() {
			c.popFront()
		}
	}
	c.length -= discarded
	return discarded
}

func (c *Chain) popFront() {
	c.segments[0].Release()
	c.segments[0] = nil
	c.segments = c.segments[1:]
	if len(c.segments) == 0 {
		c.segments = nil
	}
}

func (c *Chain) Read(p []byte) (n int, err error) {
	if c.length == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	for n < len(p) && len(c.segments) > 0 {
		segment := c.segments[0]
		read, _ := segment.Read(p[n:])
		n += read
		if segment.IsEmpty() {
			c.popFront()
		}
	}
	c.length -= n
	return
}

func (c *Chain) ReadByte() (byte, error) {
	if c.length == 0 {
		return 0, io.EOF
	}
	for c.segments[0].IsEmpty() {
		c.popFront()
	}
	segment := c.segments[0]
	value, _ := segment.ReadByte()
	if segment.IsEmpty() {
		c.popFront()
	}
	c.length--
	return value, nil
}

// Peek copies the first len(p) bytes without consuming them.
func (c *Chain) Peek(p []byte) int {
	var n int
	for _, segment := range c.segments {
		if n == len(p) {
			break
		}
		n += copy(p[n:], segment.Bytes())
	}
	return n
}

// ByteAt returns the byte at offset index from the front.
func (c *Chain) ByteAt(index int) byte {
	for _, segment := range c.segments {
		if index < segment.Len() {
			return segment.Byte(index)
		}
		index -= segment.Len()
	}
	panic(io.ErrUnexpectedEOF)
}

// Index returns the offset of the first occurrence of delimiter, or -1.
func (c *Chain) Index(delimiter []byte) int {
	if len(delimiter) == 0 {
		return 0
	}
	var offset int
	for segmentIndex, segment := range c.segments {
		content := segment.Bytes()
		for position := 0; position < len(content); {
			found := bytes.IndexByte(content[position:], delimiter[0])
			if found < 0 {
				break
			}
			position += found
			if c.matchAt(segmentIndex, position, delimiter) {
				return offset + position
			}
			position++
		}
		offset += len(content)
	}
	return -1
}

func (c *Chain) matchAt(segmentIndex int, position int, delimiter []byte) bool {
	for _, expected := range delimiter {
		for segmentIndex < len(c.segments) && position >= c.segments[segmentIndex].Len() {
			position -= c.segments[segmentIndex].Len()
			segmentIndex++
		}
		if segmentIndex == len(c.segments) {
			return false
		}
		if c.segments[segmentIndex].Byte(position) != expected {
			return false
		}
		position++
	}
	return true
}

// MoveTo transfers up to n bytes to destination, relinking whole segments
// when possible. A negative n moves everything.
func (c *Chain) MoveTo(destination *Chain, n int) int {
	if n < 0 || n > c.length {
		n = c.length
	}
	var moved int
	for moved < n && len(c.segments) > 0 {
		segment := c.segments[0]
		if segment.Len() <= n-moved {
			moved += segment.Len()
			destination.segments = append(destination.segments, segment)
			destination.length += segment.Len()
			c.segments[0] = nil
			c.segments = c.segments[1:]
			continue
		}
		part := segment.To(n - moved)
		_, _ = destination.Write(part)
		segment.Advance(len(part))
		moved += len(part)
	}
	if len(c.segments) == 0 {
		c.segments = nil
	}
	c.length -= moved
	return moved
}

// WriteTo writes and consumes the content in order.
func (c *Chain) WriteTo(w io.Writer) (n int64, err error) {
	for len(c.segments) > 0 {
		segment := c.segments[0]
		if !segment.IsEmpty() {
			var written int
			written, err = w.Write(segment.Bytes())
			segment.Advance(written)
			c.length -= written
			n += int64(written)
			if err != nil {
				return
			}
			if !segment.IsEmpty() {
				return n, io.ErrShortWrite
			}
		}
		c.popFront()
	}
	return
}

func (c *Chain) Bytes() []byte {
	content := make([]byte, 0, c.length)
	for _, segment := range c.segments {
		content = append(content, segment.Bytes()...)
	}
	return content
}

func (c *Chain) Release() {
	for _, segment := range c.segments {
		segment.Release()
	}
	c.segments = nil
	c.length = 0
}
