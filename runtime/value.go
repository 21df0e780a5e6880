package runtime

import (
	"fmt"

	"github.com/glossopoeia/bobatrace/stacktrace"
)

type Value interface{}

type HeapKey = uint

type Ref struct {
	Pointer HeapKey
}

// UncaughtException is returned from Run when a THROW is not handled before
// the fiber's entry frame.
type UncaughtException struct {
	Value Value
	Trace *stacktrace.Snapshot
}

func (e *UncaughtException) Error() string {
	return fmt.Sprintf("uncaught exception: %v", e.Value)
}
