package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rjNemo/underscore"

	"github.com/glossopoeia/bobatrace/runtime"
	"github.com/glossopoeia/bobatrace/stacktrace"
)

const asyncGap = "<asynchronous suspension>"

// writeTrace prints trace and any causal async segments after it. Frame
// numbers continue across segments.
func writeTrace(w io.Writer, source string, trace *stacktrace.Snapshot) {
	file := filepath.Base(source)
	var segments []string
	index := 0
	for s := trace; s != nil; s = s.AsyncCause() {
		positions := make([]int, s.Len())
		for i := range positions {
			positions[i] = i
		}
		frames := underscore.Map(positions, func(i int) string {
			return describeFrame(index+i, file, s.CodeAt(i), s.PCOffsetAt(i))
		})
		index += s.Len()
		segments = append(segments, strings.Join(frames, "\n"))
	}
	segments = underscore.Filter(segments, func(s string) bool { return s != "" })
	fmt.Fprintln(w, strings.Join(segments, "\n"+asyncGap+"\n"))
}

func describeFrame(n int, file string, code stacktrace.Code, pcOffset uintptr) string {
	if c, ok := code.(*runtime.Code); ok {
		return fmt.Sprintf("#%-6d %s (%s:%d, +0x%x)", n, c.Name(), file, c.LineAt(pcOffset), pcOffset)
	}
	return fmt.Sprintf("#%-6d %s (+0x%x)", n, code.Name(), pcOffset)
}
