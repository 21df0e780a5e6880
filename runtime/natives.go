package runtime

import "github.com/glossopoeia/bobatrace/stacktrace"

const (
	NativeStackTraceCurrent = "StackTrace_current"
	NativeHasStack          = "StackTrace_hasStack"

	// CurrentStackTraceWrapper is the managed function programs call to get
	// their own stack; see Builder.LinkCore.
	CurrentStackTraceWrapper = "StackTrace.current"
)

func registerCoreNatives(m *Machine) {
	m.RegisterNative(NativeStackTraceCurrent, func(m *Machine, f *Fiber) {
		f.PushValue(stacktrace.Current(f, m.Config))
	})
	m.RegisterNative(NativeHasStack, func(m *Machine, f *Fiber) {
		f.PushValue(stacktrace.HasLiveFrame(f))
	})
}
