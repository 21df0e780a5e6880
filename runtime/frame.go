package runtime

import "github.com/glossopoeia/bobatrace/stacktrace"

type FrameKind int

const (
	// EntryFrame sits below the first managed frame of every fiber.
	EntryFrame FrameKind = iota
	ManagedFrame
	// NativeFrame is active while a registered native function runs.
	NativeFrame
	// StubFrame is active while the runtime itself does work on behalf of an
	// instruction, such as throwing.
	StubFrame
)

func (k FrameKind) String() string {
	switch k {
	case EntryFrame:
		return "entry"
	case ManagedFrame:
		return "managed"
	case NativeFrame:
		return "native"
	case StubFrame:
		return "stub"
	default:
		return "unknown"
	}
}

type Frame struct {
	kind FrameKind
	name string
	code *Code
	// pc is the start of the instruction executing in this frame: the
	// current instruction for the innermost frame, the call for the others.
	pc            CodePointer
	afterLocation CodePointer
}

func (f *Frame) Kind() FrameKind {
	return f.kind
}

func (f *Frame) Name() string {
	if f.code != nil {
		return f.code.name
	}
	return f.name
}

// frameIterator walks a fiber's frames from the innermost outwards. The
// Frame it returns is only valid until the next call to NextFrame.
type frameIterator struct {
	frames []Frame
	next   int
	view   frameView
}

type frameView struct {
	frame         *Frame
	showInvisible bool
}

func (v *frameView) IsManaged() bool {
	return v.frame.kind == ManagedFrame && (v.showInvisible || !v.frame.code.hidden)
}

func (v *frameView) Code() stacktrace.Code {
	if v.frame.code == nil {
		return nil
	}
	return v.frame.code
}

func (v *frameView) PCOffset() uintptr {
	if v.frame.code == nil {
		return 0
	}
	return uintptr(v.frame.pc - v.frame.code.start)
}

func (it *frameIterator) NextFrame() (stacktrace.Frame, bool) {
	if it.next < 0 {
		return nil, false
	}
	it.view.frame = &it.frames[it.next]
	it.next--
	return &it.view, true
}
