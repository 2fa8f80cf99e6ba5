package buf_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/sagernet/sing-cio/common/buf"

	"github.com/stretchr/testify/require"
)

func TestBuffer(t *testing.T) {
	t.Parallel()
	buffer := buf.NewSize(1024)
	defer buffer.Release()
	_, err := buffer.ReadFullFrom(rand.Reader, 1000)
	require.NoError(t, err)
	require.Equal(t, 1000, buffer.Len())
	require.Equal(t, 24, buffer.FreeLen())
	_, err = buffer.Write(make([]byte, 100))
	require.NoError(t, err)
	require.True(t, buffer.IsFull())
	_, err = buffer.Write([]byte{1})
	require.ErrorIs(t, err, io.ErrShortBuffer)
}

func TestAllocatorClasses(t *testing.T) {
	t.Parallel()
	for _, size := range []int{1, 64, 65, 1000, 4096, 65536} {
		data := buf.Get(size)
		require.Len(t, data, size)
		require.NoError(t, buf.Put(data))
	}
	require.Nil(t, buf.Get(65537))
	require.Error(t, buf.Put(make([]byte, 100)))
}

func TestChainAcrossSegments(t *testing.T) {
	t.Parallel()
	content := make([]byte, buf.SegmentSize*3+17)
	_, err := rand.Read(content)
	require.NoError(t, err)
	chain := buf.NewChain()
	defer chain.Release()
	_, err = chain.Write(content)
	require.NoError(t, err)
	require.Equal(t, len(content), chain.Len())
	require.Equal(t, content[buf.SegmentSize+1], chain.ByteAt(buf.SegmentSize+1))

	destination := buf.NewChain()
	defer destination.Release()
	require.Equal(t, buf.SegmentSize+5, chain.MoveTo(destination, buf.SegmentSize+5))
	require.Equal(t, content[:buf.SegmentSize+5], destination.Bytes())
	require.Equal(t, len(content)-buf.SegmentSize-5, chain.Len())

	var output bytes.Buffer
	_, err = chain.WriteTo(&output)
	require.NoError(t, err)
	require.Equal(t, content[buf.SegmentSize+5:], output.Bytes())
	require.True(t, chain.IsEmpty())
}

func TestChainIndex(t *testing.T) {
	t.Parallel()
	chain := buf.NewChain()
	defer chain.Release()
	_, _ = chain.Write(bytes.Repeat([]byte{'a'}, buf.SegmentSize-1))
	_, _ = chain.WriteString("\r\nnext")
	require.Equal(t, buf.SegmentSize-1, chain.Index([]byte("\r\n")))
	require.Equal(t, -1, chain.Index([]byte("\n\n")))
	require.Equal(t, 0, chain.Index(nil))
	require.Equal(t, buf.SegmentSize+1, chain.Index([]byte("next")))
}

func TestChainReadByte(t *testing.T) {
	t.Parallel()
	chain := buf.NewChain()
	require.NoError(t, chain.WriteByte(0x2A))
	value, err := chain.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x2A), value)
	_, err = chain.ReadByte()
	require.ErrorIs(t, err, io.EOF)
}

func TestChainCommit(t *testing.T) {
	t.Parallel()
	chain := buf.NewChain()
	defer chain.Release()
	free := chain.FreeBytes()
	require.NotEmpty(t, free)
	n := copy(free, "hello")
	chain.Commit(n)
	require.Equal(t, []byte("hello"), chain.Head())
	require.Equal(t, 2, chain.Discard(2))
	require.Equal(t, []byte("llo"), chain.Head())
}
