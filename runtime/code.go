package runtime

import (
	"golang.org/x/exp/slices"

	"github.com/glossopoeia/bobatrace/stacktrace"
)

type CodePointer = uint

// Code is the compiled body of one function: a contiguous range of the
// machine's bytecode plus the source line of every byte in it.
type Code struct {
	name   string
	hidden bool
	start  CodePointer
	end    CodePointer
	lines  []uint
}

var _ stacktrace.Code = (*Code)(nil)

func (c *Code) Name() string {
	return c.name
}

// Hidden functions belong to the runtime rather than the program and are
// left out of stack traces unless invisible frames are shown.
func (c *Code) Hidden() bool {
	return c.hidden
}

func (c *Code) PayloadStart() CodePointer {
	return c.start
}

func (c *Code) Size() uint {
	return c.end - c.start
}

func (c *Code) Contains(pc CodePointer) bool {
	return pc >= c.start && pc < c.end
}

// LineAt returns the source line of the instruction at pcOffset, or 0 if
// the offset is outside the payload.
func (c *Code) LineAt(pcOffset uintptr) uint {
	if pcOffset >= uintptr(len(c.lines)) {
		return 0
	}
	return c.lines[pcOffset]
}

// LookupCode finds the function whose payload contains pc.
func (m *Machine) LookupCode(pc CodePointer) *Code {
	i, found := slices.BinarySearchFunc(m.codes, pc, func(c *Code, pc CodePointer) int {
		switch {
		case c.end <= pc:
			return -1
		case c.start > pc:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return nil
	}
	return m.codes[i]
}

func (m *Machine) codeStartingAt(pc CodePointer) *Code {
	code := m.LookupCode(pc)
	if code == nil || code.start != pc {
		panic("Call target is not the start of a function.")
	}
	return code
}

// Function returns the compiled function with the given name, or nil.
func (m *Machine) Function(name string) *Code {
	i := slices.IndexFunc(m.codes, func(c *Code) bool { return c.name == name })
	if i < 0 {
		return nil
	}
	return m.codes[i]
}
