package stacktrace

import (
	"unsafe"

	"golang.org/x/exp/slices"
)

const wordSize = int(unsafe.Sizeof(uintptr(0)))

// Snapshot is an immutable capture of a call stack. Index i of the code
// references pairs with index i of the offsets, innermost frame first.
type Snapshot struct {
	codes     []Code
	pcOffsets []uintptr

	asyncCause *Snapshot
}

// newSnapshot copies codes and pcOffsets into storage owned by the snapshot.
// The offsets are plain words the collector knows nothing about, so the bulk
// copy runs with safepoints disabled on the capturing thread.
func newSnapshot(safepoints *Safepoints, codes []Code, pcOffsets []uintptr) *Snapshot {
	if len(codes) != len(pcOffsets) {
		panic("Code and offset lists differ in length.")
	}

	fixedCodes := make([]Code, len(codes))
	copy(fixedCodes, codes)
	fixedOffsets := make([]uintptr, len(pcOffsets))
	if len(pcOffsets) > 0 {
		scope := safepoints.EnterNoSafepoint()
		copy(wordBytes(fixedOffsets), wordBytes(pcOffsets))
		scope.Exit()
	}
	return &Snapshot{codes: fixedCodes, pcOffsets: fixedOffsets}
}

// newFixedSnapshot takes ownership of already exactly sized storage.
func newFixedSnapshot(codes []Code, pcOffsets []uintptr) *Snapshot {
	if len(codes) != len(pcOffsets) {
		panic("Code and offset lists differ in length.")
	}
	return &Snapshot{codes: codes, pcOffsets: pcOffsets}
}

func wordBytes(words []uintptr) []byte {
	if len(words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), len(words)*wordSize)
}

func (s *Snapshot) Len() int {
	return len(s.codes)
}

func (s *Snapshot) CodeAt(i int) Code {
	return s.codes[i]
}

func (s *Snapshot) PCOffsetAt(i int) uintptr {
	return s.pcOffsets[i]
}

func (s *Snapshot) Codes() []Code {
	return slices.Clone(s.codes)
}

func (s *Snapshot) PCOffsets() []uintptr {
	return slices.Clone(s.pcOffsets)
}

// PCOffsetBytes returns the offsets in their raw in-memory layout: one
// native-endian machine word per frame.
func (s *Snapshot) PCOffsetBytes() []byte {
	return slices.Clone(wordBytes(s.pcOffsets))
}

// AsyncCause is the snapshot of the stack that started the asynchronous task
// this snapshot was captured in, or nil.
func (s *Snapshot) AsyncCause() *Snapshot {
	return s.asyncCause
}

func (s *Snapshot) withAsyncCause(cause *Snapshot) *Snapshot {
	s.asyncCause = cause
	return s
}
