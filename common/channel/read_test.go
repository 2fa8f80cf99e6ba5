package channel

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadPrimitives(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	channel := New()
	require.NoError(t, WriteShort(channel, 0x0102))
	require.NoError(t, WriteInt(channel, 0x03040506))
	require.NoError(t, WriteLong(channel, 0x0708090A0B0C0D0E))
	require.NoError(t, WriteByte(channel, 0xFF))
	require.NoError(t, channel.FlushAndClose(ctx))

	short, err := ReadShort(ctx, channel)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0102), short)
	integer, err := ReadInt(ctx, channel)
	require.NoError(t, err)
	require.Equal(t, uint32(0x03040506), integer)
	long, err := ReadLong(ctx, channel)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0708090A0B0C0D0E), long)
	_, err = ReadShort(ctx, channel)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadLines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	channel := NewStringReader("GET / HTTP/1.1\r\nHost: example\n\nlast")
	for _, expected := range []string{"GET / HTTP/1.1", "Host: example", "", "last"} {
		line, err := ReadUTF8Line(ctx, channel, 64)
		require.NoError(t, err)
		require.Equal(t, expected, line)
	}
	_, err := ReadUTF8Line(ctx, channel, 64)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadLineAcrossFlushes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	job := Writer(ctx, func(ctx context.Context, writer WriteChannel) error {
		for _, part := range []string{"par", "tial\r", "\nnext\n"} {
			err := WriteString(writer, part)
			if err != nil {
				return err
			}
			err = writer.Flush(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	var line strings.Builder
	ok, err := ReadUTF8LineTo(ctx, job.Channel, &line, -1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "partial", line.String())
	next, err := ReadUTF8Line(ctx, job.Channel, -1)
	require.NoError(t, err)
	require.Equal(t, "next", next)
}

func TestReadLineLimit(t *testing.T) {
	t.Parallel()
	channel := NewStringReader(strings.Repeat("x", 100) + "\n")
	_, err := ReadUTF8Line(context.Background(), channel, 10)
	require.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLastLineCarriageReturn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	channel := NewStringReader("aaa\r")
	line, err := ReadUTF8Line(ctx, channel, 3)
	require.NoError(t, err)
	require.Equal(t, "aaa", line)
	_, err = ReadUTF8Line(ctx, channel, 3)
	require.ErrorIs(t, err, io.EOF)

	_, err = ReadUTF8Line(ctx, NewStringReader("aaaa\r"), 3)
	require.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadUntilDelimiter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	channel := NewStringReader("header--boundary--body")
	output := New()
	copied, err := ReadUntilDelimiter(ctx, channel, []byte("--boundary--"), output)
	require.NoError(t, err)
	require.Equal(t, int64(6), copied)
	require.NoError(t, SkipDelimiter(ctx, channel, []byte("--boundary--")))
	require.ErrorIs(t, SkipDelimiter(ctx, channel, []byte("xx")), ErrDelimiterMismatch)
	rest, err := ReadString(ctx, channel)
	require.NoError(t, err)
	require.Equal(t, "body", rest)
	require.NoError(t, output.Close())
	header, err := ReadString(ctx, output)
	require.NoError(t, err)
	require.Equal(t, "header", header)
}

func TestReadUntilMissingDelimiter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	output := New()
	copied, err := ReadUntilDelimiter(ctx, NewStringReader("no delimiter here"), []byte("\r\n"), output)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, int64(17), copied)
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	channel := NewReader(bytes.Repeat([]byte{1}, 100))
	discarded, err := Discard(ctx, channel, 40)
	require.NoError(t, err)
	require.Equal(t, int64(40), discarded)
	require.NoError(t, DiscardExact(ctx, channel, 50))
	require.ErrorIs(t, DiscardExact(ctx, channel, 20), io.ErrUnexpectedEOF)
}

func TestReadPacket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	channel := NewStringReader("0123456789")
	packet, err := ReadPacket(ctx, channel, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("0123"), packet.Bytes())
	packet.Release()
	_, err = ReadPacket(ctx, channel, 10)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	_, err = ReadPacket(ctx, channel, 1)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadRemainingLimit(t *testing.T) {
	t.Parallel()
	content, err := ReadRemainingLimit(context.Background(), NewStringReader("abcdef"), 3)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), content)
}

func TestReadAvailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	channel := NewStringReader("abc")
	data := make([]byte, 16)
	n, err := ReadAvailable(ctx, channel, data)
	require.NoError(t, err)
	require.Equal(t, "abc", string(data[:n]))
	_, err = ReadAvailable(ctx, channel, data)
	require.ErrorIs(t, err, io.EOF)
}
