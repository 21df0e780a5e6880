package runtime

import "github.com/glossopoeia/bobatrace/stacktrace"

// Fiber is a single thread of execution. Its frames are only ever read or
// written by the goroutine running it.
type Fiber struct {
	instruction CodePointer
	values      []Value
	frames      []Frame
	safepoints  stacktrace.Safepoints
	asyncCause  *stacktrace.Snapshot

	// walker is reused by every walk of this fiber's frames.
	walker frameIterator
}

var _ stacktrace.Thread = (*Fiber)(nil)

func (f *Fiber) PushValue(v Value) {
	f.values = append(f.values, v)
}

func (f *Fiber) PopOneValue() Value {
	stackLen := len(f.values)
	if stackLen <= 0 {
		panic("Stack underflow detected.")
	}

	result := f.values[stackLen-1]
	f.values = f.values[:stackLen-1]
	return result
}

func (f *Fiber) PeekOneValue() Value {
	stackLen := len(f.values)
	if stackLen <= 0 {
		panic("Stack underflow detected.")
	}
	return f.values[stackLen-1]
}

func (f *Fiber) PopTwoValues() (fst Value, snd Value) {
	stackLen := len(f.values)
	if stackLen <= 1 {
		panic("Stack underflow detected.")
	}

	r1 := f.values[stackLen-1]
	r2 := f.values[stackLen-2]
	f.values = f.values[:stackLen-2]
	return r1, r2
}

func (f *Fiber) PushFrame(fr Frame) {
	f.frames = append(f.frames, fr)
}

func (f *Fiber) PopFrame() Frame {
	stackLen := len(f.frames)
	if stackLen <= 0 {
		panic("Frame underflow detected.")
	}

	result := f.frames[stackLen-1]
	f.frames = f.frames[:stackLen-1]
	return result
}

func (f *Fiber) topFrame() *Frame {
	stackLen := len(f.frames)
	if stackLen <= 0 {
		panic("Frame underflow detected.")
	}
	return &f.frames[stackLen-1]
}

// Depth is the number of live frames of every kind.
func (f *Fiber) Depth() int {
	return len(f.frames)
}

// Frames restarts the fiber's frame walk. Walks of one fiber must not
// overlap.
func (f *Fiber) Frames(showInvisible bool) stacktrace.FrameIterator {
	f.walker = frameIterator{
		frames: f.frames,
		next:   len(f.frames) - 1,
		view:   frameView{showInvisible: showInvisible},
	}
	return &f.walker
}

func (f *Fiber) Safepoints() *stacktrace.Safepoints {
	return &f.safepoints
}

func (f *Fiber) AsyncCause() *stacktrace.Snapshot {
	return f.asyncCause
}

// enterRuntime pushes a frame for work done outside of bytecode. The
// returned func pops it again.
func (f *Fiber) enterRuntime(kind FrameKind, name string) func() {
	f.PushFrame(Frame{kind: kind, name: name})
	depth := len(f.frames)
	return func() {
		if len(f.frames) != depth {
			panic("Runtime frame left unbalanced.")
		}
		f.PopFrame()
	}
}

func (f *Fiber) unwind() {
	f.frames = f.frames[:0]
	f.values = f.values[:0]
}
