package core

import (
	"sync/atomic"
	"unsafe"
)

// SampleBuffer holds the last value delivered for every logical channel. DMA
// writes whole 32-bit words into it behind the CPU's back; readers use atomic
// loads, so a read observes either the previous or the new sample, never a mix.
// There is no stronger ordering: a value may be stale by up to one transfer.
type SampleBuffer struct {
	slots []uint32
}

const sampleSize = unsafe.Sizeof(uint32(0))

// NewSampleBuffer allocates n zeroed slots.
func NewSampleBuffer(n int) *SampleBuffer {
	return &SampleBuffer{slots: make([]uint32, n)}
}

// Len returns the number of slots.
func (b *SampleBuffer) Len() int {
	return len(b.slots)
}

// Load reads slot i.
func (b *SampleBuffer) Load(i int) uint32 {
	return atomic.LoadUint32(&b.slots[i])
}

// Store writes slot i. Used by interrupt-driven (non-DMA) delivery.
func (b *SampleBuffer) Store(i int, v uint32) {
	atomic.StoreUint32(&b.slots[i], v)
}

// Addr returns the bus address of slot i, handed to DMA as a destination.
func (b *SampleBuffer) Addr(i int) uintptr {
	if i >= len(b.slots) {
		return 0
	}
	return uintptr(unsafe.Pointer(&b.slots[i]))
}

// StoreAddr writes the slot at bus address addr, as a DMA engine would. It
// reports false if addr is not a slot of this buffer.
func (b *SampleBuffer) StoreAddr(addr uintptr, v uint32) bool {
	if len(b.slots) == 0 {
		return false
	}
	base := b.Addr(0)
	if addr < base {
		return false
	}
	off := addr - base
	if off%sampleSize != 0 || int(off/sampleSize) >= len(b.slots) {
		return false
	}
	b.Store(int(off/sampleSize), v)
	return true
}
