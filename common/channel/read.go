package channel

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/sagernet/sing-cio/common/buf"
)

func ReadByte(ctx context.Context, c ReadChannel) (byte, error) {
	ok, err := c.AwaitContent(ctx, 1)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, io.EOF
	}
	buffer, err := c.ReadBuffer()
	if err != nil {
		return 0, err
	}
	return buffer.ReadByte()
}

func ReadShort(ctx context.Context, c ReadChannel) (uint16, error) {
	var data [2]byte
	err := ReadFully(ctx, c, data[:])
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data[:]), nil
}

func ReadInt(ctx context.Context, c ReadChannel) (uint32, error) {
	var data [4]byte
	err := ReadFully(ctx, c, data[:])
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data[:]), nil
}

func ReadLong(ctx context.Context, c ReadChannel) (uint64, error) {
	var data [8]byte
	err := ReadFully(ctx, c, data[:])
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data[:]), nil
}

// ReadFully fills data. It returns io.EOF if the channel ended before any
// byte was read and io.ErrUnexpectedEOF if it ended midway.
func ReadFully(ctx context.Context, c ReadChannel, data []byte) error {
	var n int
	for n < len(data) {
		ok, err := c.AwaitContent(ctx, 1)
		if err != nil {
			return err
		}
		if !ok {
			if n == 0 {
				return io.EOF
			}
			return io.ErrUnexpectedEOF
		}
		buffer, err := c.ReadBuffer()
		if err != nil {
			return err
		}
		readN, _ := buffer.Read(data[n:])
		n += readN
	}
	return nil
}

// ReadAvailable reads whatever is readable into data, waiting only if
// nothing is.
func ReadAvailable(ctx context.Context, c ReadChannel, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	ok, err := c.AwaitContent(ctx, 1)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, io.EOF
	}
	buffer, err := c.ReadBuffer()
	if err != nil {
		return 0, err
	}
	return buffer.Read(data)
}

// ReadPacket reads exactly size bytes into a new chain.
func ReadPacket(ctx context.Context, c ReadChannel, size int) (*buf.Chain, error) {
	packet := buf.NewChain()
	for packet.Len() < size {
		ok, err := c.AwaitContent(ctx, 1)
		if err != nil {
			packet.Release()
			return nil, err
		}
		if !ok {
			empty := packet.IsEmpty()
			packet.Release()
			if empty {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		buffer, err := c.ReadBuffer()
		if err != nil {
			packet.Release()
			return nil, err
		}
		buffer.MoveTo(packet, size-packet.Len())
	}
	return packet, nil
}

func ReadRemaining(ctx context.Context, c ReadChannel) ([]byte, error) {
	return ReadRemainingLimit(ctx, c, math.MaxInt64)
}

// ReadRemainingLimit reads until end of stream or until limit bytes.
func ReadRemainingLimit(ctx context.Context, c ReadChannel, limit int64) ([]byte, error) {
	var content bytes.Buffer
	_, err := readTo(ctx, c, &content, limit)
	if err != nil {
		return nil, err
	}
	return content.Bytes(), nil
}

func ReadString(ctx context.Context, c ReadChannel) (string, error) {
	var content strings.Builder
	_, err := readTo(ctx, c, &content, math.MaxInt64)
	if err != nil {
		return "", err
	}
	return content.String(), nil
}

func readTo(ctx context.Context, c ReadChannel, output io.Writer, limit int64) (int64, error) {
	var n int64
	for n < limit {
		ok, err := c.AwaitContent(ctx, 1)
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		buffer, err := c.ReadBuffer()
		if err != nil {
			return n, err
		}
		chunk := buffer.Head()
		if int64(len(chunk)) > limit-n {
			chunk = chunk[:limit-n]
		}
		written, err := output.Write(chunk)
		buffer.Discard(written)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadUTF8Line reads a line terminated by "\n" or "\r\n", without the
// terminator. A final line without terminator is returned as is. A negative
// limit disables the length check.
func ReadUTF8Line(ctx context.Context, c ReadChannel, limit int) (string, error) {
	var line strings.Builder
	ok, err := ReadUTF8LineTo(ctx, c, &line, limit)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", io.EOF
	}
	return line.String(), nil
}

// ReadUTF8LineTo writes the next line to output and reports whether a line
// was read.
func ReadUTF8LineTo(ctx context.Context, c ReadChannel, output io.Writer, limit int) (bool, error) {
	ok, err := c.AwaitContent(ctx, 1)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for {
		buffer, err := c.ReadBuffer()
		if err != nil {
			return false, err
		}
		index := buffer.Index([]byte{'\n'})
		if index >= 0 {
			lineEnd := index
			if lineEnd > 0 && buffer.ByteAt(lineEnd-1) == '\r' {
				lineEnd--
			}
			if limit >= 0 && lineEnd > limit {
				return false, ErrLineTooLong
			}
			line := make([]byte, lineEnd)
			_, _ = buffer.Read(line)
			buffer.Discard(index - lineEnd + 1)
			_, err = output.Write(line)
			return true, err
		}
		if limit >= 0 && buffer.Len() > limit+1 {
			return false, ErrLineTooLong
		}
		ok, err = c.AwaitContent(ctx, buffer.Len()+1)
		if err != nil {
			return false, err
		}
		if !ok {
			buffer, err = c.ReadBuffer()
			if err != nil {
				return false, err
			}
			lineEnd := buffer.Len()
			if lineEnd > 0 && buffer.ByteAt(lineEnd-1) == '\r' {
				lineEnd--
			}
			if limit >= 0 && lineEnd > limit {
				return false, ErrLineTooLong
			}
			line := make([]byte, lineEnd)
			_, _ = buffer.Read(line)
			buffer.Discard(buffer.Len())
			_, err = output.Write(line)
			return true, err
		}
	}
}

// ReadUntilDelimiter copies bytes to output until delimiter, leaving the
// delimiter unread. It returns io.EOF if the stream ended first.
func ReadUntilDelimiter(ctx context.Context, c ReadChannel, delimiter []byte, output WriteChannel) (int64, error) {
	var copied int64
	for {
		buffer, err := c.ReadBuffer()
		if err != nil {
			return copied, err
		}
		index := buffer.Index(delimiter)
		var (
			size  int
			found = index >= 0
		)
		if found {
			size = index
		} else {
			size = buffer.Len() - len(delimiter) + 1
		}
		if size > 0 {
			outputBuffer, err := output.WriteBuffer()
			if err != nil {
				return copied, err
			}
			copied += int64(buffer.MoveTo(outputBuffer, size))
			err = output.Flush(ctx)
			if err != nil {
				return copied, err
			}
		}
		if found {
			return copied, nil
		}
		ok, err := c.AwaitContent(ctx, buffer.Len()+1)
		if err != nil {
			return copied, err
		}
		if !ok {
			outputBuffer, err := output.WriteBuffer()
			if err != nil {
				return copied, err
			}
			copied += int64(buffer.MoveTo(outputBuffer, -1))
			err = output.Flush(ctx)
			if err != nil {
				return copied, err
			}
			return copied, io.EOF
		}
	}
}

// SkipDelimiter consumes delimiter, failing if the next bytes differ.
func SkipDelimiter(ctx context.Context, c ReadChannel, delimiter []byte) error {
	ok, err := c.AwaitContent(ctx, len(delimiter))
	if err != nil {
		return err
	}
	if !ok {
		return io.ErrUnexpectedEOF
	}
	buffer, err := c.ReadBuffer()
	if err != nil {
		return err
	}
	next := make([]byte, len(delimiter))
	buffer.Peek(next)
	if !bytes.Equal(next, delimiter) {
		return ErrDelimiterMismatch
	}
	buffer.Discard(len(delimiter))
	return nil
}

// Discard drops up to max bytes, stopping early at end of stream.
func Discard(ctx context.Context, c ReadChannel, max int64) (int64, error) {
	var discarded int64
	for discarded < max {
		ok, err := c.AwaitContent(ctx, 1)
		if err != nil {
			return discarded, err
		}
		if !ok {
			break
		}
		buffer, err := c.ReadBuffer()
		if err != nil {
			return discarded, err
		}
		step := int64(buffer.Len())
		if step > max-discarded {
			step = max - discarded
		}
		discarded += int64(buffer.Discard(int(step)))
	}
	return discarded, nil
}

func DiscardExact(ctx context.Context, c ReadChannel, n int64) error {
	discarded, err := Discard(ctx, c, n)
	if err != nil {
		return err
	}
	if discarded < n {
		return io.ErrUnexpectedEOF
	}
	return nil
}
