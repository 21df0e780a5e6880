package stacktrace

import "golang.org/x/exp/slices"

const defaultStackAllocation = 8

// frameBuffer accumulates frames for the single pass strategy. It lives only
// for the duration of one capture.
type frameBuffer struct {
	codes     []Code
	pcOffsets []uintptr
}

func newFrameBuffer(capacity int) *frameBuffer {
	if capacity < 1 {
		capacity = defaultStackAllocation
	}
	return &frameBuffer{
		codes:     make([]Code, 0, capacity),
		pcOffsets: make([]uintptr, 0, capacity),
	}
}

func (b *frameBuffer) Len() int {
	return len(b.codes)
}

func (b *frameBuffer) Add(code Code, pcOffset uintptr) {
	if len(b.codes) == cap(b.codes) {
		// capacity doubles
		grow := cap(b.codes)
		if grow < defaultStackAllocation {
			grow = defaultStackAllocation
		}
		b.codes = slices.Grow(b.codes, grow)
		b.pcOffsets = slices.Grow(b.pcOffsets, grow)
	}
	b.codes = append(b.codes, code)
	b.pcOffsets = append(b.pcOffsets, pcOffset)
}
