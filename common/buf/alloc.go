package buf

import (
	"math/bits"
	"sync"

	E "github.com/sagernet/sing-cio/common/exceptions"
)

const (
	minClassBits = 6
	maxClassBits = 16
)

var DefaultAllocator Allocator = newSizeClassAllocator()

type Allocator interface {
	Get(size int) []byte
	Put(buffer []byte) error
}

// sizeClassAllocator pools power-of-two slices between 64 bytes and 64 KiB.
type sizeClassAllocator struct {
	classes [maxClassBits - minClassBits + 1]sync.Pool
}

func newSizeClassAllocator() *sizeClassAllocator {
	allocator := new(sizeClassAllocator)
	for index := range allocator.classes {
		classSize := 1 << (index + minClassBits)
		allocator.classes[index].New = func() any {
			buffer := make([]byte, classSize)
			return &buffer
		}
	}
	return allocator
}

func classOf(size int) int {
	if size <= 1<<minClassBits {
		return 0
	}
	index := bits.Len32(uint32(size - 1))
	return index - minClassBits
}

func (a *sizeClassAllocator) Get(size int) []byte {
	if size <= 0 || size > 1<<maxClassBits {
		return nil
	}
	buffer := a.classes[classOf(size)].Get().(*[]byte)
	return (*buffer)[:size]
}

func (a *sizeClassAllocator) Put(buffer []byte) error {
	capacity := cap(buffer)
	if capacity < 1<<minClassBits || capacity > 1<<maxClassBits || capacity&(capacity-1) != 0 {
		return E.New("allocator: bad buffer capacity ", capacity)
	}
	buffer = buffer[:capacity]
	a.classes[classOf(capacity)].Put(&buffer)
	return nil
}
