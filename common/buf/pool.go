package buf

import "sync"

// SegmentSize is the size of each Chain segment.
const SegmentSize = 4 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		return new(Buffer)
	},
}

func getBuffer() *Buffer {
	return bufferPool.Get().(*Buffer)
}

func putBuffer(buffer *Buffer) {
	bufferPool.Put(buffer)
}

func Get(size int) []byte {
	if size == 0 {
		return nil
	}
	return DefaultAllocator.Get(size)
}

func Put(buffer []byte) error {
	return DefaultAllocator.Put(buffer)
}
