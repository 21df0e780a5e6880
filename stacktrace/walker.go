// Package stacktrace captures the call stack of a running fiber as an
// immutable snapshot of code references and program counter offsets. It
// knows nothing about how frames are laid out in memory; hosts provide a
// Thread that can iterate its own frames innermost first.
package stacktrace

// Code is an opaque handle to a compiled code blob. The capture machinery
// only stores it; resolving offsets against it is left to the host.
type Code interface {
	Name() string
}

// Frame is a single activation reported by a FrameIterator.
type Frame interface {
	// IsManaged is false for entry frames, native trampolines and hidden
	// runtime frames.
	IsManaged() bool
	Code() Code
	// PCOffset is the distance from the start of Code's payload to the
	// instruction currently executing in this frame.
	PCOffset() uintptr
}

type FrameIterator interface {
	// NextFrame returns the next frame moving outwards, or false once the
	// outermost frame has been returned.
	NextFrame() (Frame, bool)
}

// Thread is the owner of a stack. All methods are called from the goroutine
// currently running the thread.
type Thread interface {
	Frames(showInvisible bool) FrameIterator
	Safepoints() *Safepoints
	// AsyncCause is the snapshot recorded when the thread was started on
	// behalf of a suspended asynchronous caller, or nil.
	AsyncCause() *Snapshot
}
