package runtime

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

type fixup struct {
	at     CodePointer
	target string
	line   uint
}

// Builder emits functions into a machine. Emitting methods record the first
// error they hit and turn into no-ops afterwards; Finish reports it.
type Builder struct {
	m       *Machine
	current *Code
	line    uint
	labels  map[string]CodePointer
	fixups  []fixup
	pending []fixup
	err     error
}

func NewBuilder(m *Machine) *Builder {
	return &Builder{m: m, labels: make(map[string]CodePointer)}
}

func (b *Builder) Function(name string) *Builder {
	return b.beginFunction(name, false)
}

// HiddenFunction starts a function that belongs to the runtime rather than
// the program being run.
func (b *Builder) HiddenFunction(name string) *Builder {
	return b.beginFunction(name, true)
}

func (b *Builder) beginFunction(name string, hidden bool) *Builder {
	if b.err != nil {
		return b
	}
	if b.current != nil {
		b.err = errors.Errorf("line %d: function %q started before %q ended", b.line, name, b.current.name)
		return b
	}
	if b.m.Function(name) != nil {
		b.err = errors.Errorf("line %d: function %q defined twice", b.line, name)
		return b
	}
	start := CodePointer(len(b.m.code))
	b.current = &Code{name: name, hidden: hidden, start: start}
	b.labels = make(map[string]CodePointer)
	b.m.AddLabel(name, start)
	return b
}

// End closes the current function, resolving jumps to its local labels.
func (b *Builder) End() *Code {
	if b.err != nil {
		return nil
	}
	if b.current == nil {
		b.err = errors.Errorf("line %d: end without a function", b.line)
		return nil
	}
	if b.current.start == CodePointer(len(b.m.code)) {
		b.err = errors.Errorf("line %d: function %q is empty", b.line, b.current.name)
		return nil
	}

	for _, f := range b.pending {
		target, ok := b.labels[f.target]
		if !ok {
			b.err = errors.Errorf("line %d: undefined label %q in %q", f.line, f.target, b.current.name)
			return nil
		}
		b.patch(f.at, uint32(target))
	}
	b.pending = b.pending[:0]

	code := b.current
	code.end = CodePointer(len(b.m.code))
	code.lines = b.m.lines[code.start:code.end:code.end]
	b.m.codes = append(b.m.codes, code)
	b.current = nil
	return code
}

// Line attributes the following instructions to source line n.
func (b *Builder) Line(n uint) *Builder {
	b.line = n
	return b
}

func (b *Builder) Label(name string) *Builder {
	if b.err != nil {
		return b
	}
	if _, ok := b.labels[name]; ok {
		b.err = errors.Errorf("line %d: label %q defined twice", b.line, name)
		return b
	}
	b.labels[name] = CodePointer(len(b.m.code))
	b.m.AddLabel(name, CodePointer(len(b.m.code)))
	return b
}

func (b *Builder) Nop() *Builder     { return b.emit(NOP) }
func (b *Builder) Abort() *Builder   { return b.emit(ABORT) }
func (b *Builder) Pop() *Builder     { return b.emit(POP) }
func (b *Builder) Dup() *Builder     { return b.emit(DUP) }
func (b *Builder) Return() *Builder  { return b.emit(RETURN) }
func (b *Builder) Throw() *Builder   { return b.emit(THROW) }
func (b *Builder) RefNew() *Builder  { return b.emit(REF_NEW) }
func (b *Builder) RefGet() *Builder  { return b.emit(REF_GET) }
func (b *Builder) RefPut() *Builder  { return b.emit(REF_PUT) }
func (b *Builder) Collect() *Builder { return b.emit(GC) }

func (b *Builder) Constant(v Value) *Builder {
	if len(b.m.constants) > 0xFFFF {
		b.err = errors.Errorf("line %d: too many constants", b.line)
		return b
	}
	idx := b.m.AddConstant(v)
	return b.emit(CONSTANT, byte(idx>>8), byte(idx))
}

func (b *Builder) I32(v int32) *Builder {
	return b.emit(I32, bigEndian32(uint32(v))...)
}

func (b *Builder) I64(v int64) *Builder {
	u := uint64(v)
	return b.emit(I64, append(bigEndian32(uint32(u>>32)), bigEndian32(uint32(u))...)...)
}

func (b *Builder) Add(numType Instruction) *Builder      { return b.emit(NUM_ADD, numType) }
func (b *Builder) Subtract(numType Instruction) *Builder { return b.emit(NUM_SUB, numType) }
func (b *Builder) Equal(numType Instruction) *Builder    { return b.emit(NUM_EQ, numType) }

func (b *Builder) Jump(label string) *Builder      { return b.emitTarget(JUMP, label, true) }
func (b *Builder) JumpTrue(label string) *Builder  { return b.emitTarget(JUMP_TRUE, label, true) }
func (b *Builder) JumpFalse(label string) *Builder { return b.emitTarget(JUMP_FALSE, label, true) }

func (b *Builder) Call(fn string) *Builder     { return b.emitTarget(CALL, fn, false) }
func (b *Builder) TailCall(fn string) *Builder { return b.emitTarget(TAILCALL, fn, false) }
func (b *Builder) Async(fn string) *Builder    { return b.emitTarget(ASYNC, fn, false) }

func (b *Builder) CallNative(name string) *Builder {
	idx := slices.Index(b.m.nativeFnNames, name)
	if idx < 0 {
		if b.err == nil {
			b.err = errors.Errorf("line %d: unknown native %q", b.line, name)
		}
		return b
	}
	return b.emit(CALL_NATIVE, bigEndian32(uint32(idx))...)
}

// LinkCore emits the managed functions of the core library. Programs get
// their own stack trace by calling StackTrace.current.
func (b *Builder) LinkCore() *Builder {
	b.Function(CurrentStackTraceWrapper).
		CallNative(NativeStackTraceCurrent).
		Return().
		End()
	return b
}

// Finish resolves calls between functions.
func (b *Builder) Finish() error {
	if b.err != nil {
		return b.err
	}
	if b.current != nil {
		return errors.Errorf("function %q was never ended", b.current.name)
	}
	for _, f := range b.fixups {
		code := b.m.Function(f.target)
		if code == nil {
			return errors.Errorf("line %d: call to undefined function %q", f.line, f.target)
		}
		b.patch(f.at, uint32(code.start))
	}
	b.fixups = b.fixups[:0]
	return nil
}

func (b *Builder) emit(op Instruction, operands ...byte) *Builder {
	if b.err != nil {
		return b
	}
	if b.current == nil {
		b.err = errors.Errorf("line %d: instruction outside of a function", b.line)
		return b
	}
	b.m.code = append(b.m.code, op)
	b.m.code = append(b.m.code, operands...)
	for i := 0; i <= len(operands); i++ {
		b.m.lines = append(b.m.lines, b.line)
	}
	return b
}

func (b *Builder) emitTarget(op Instruction, target string, local bool) *Builder {
	at := CodePointer(len(b.m.code) + 1)
	b.emit(op, 0, 0, 0, 0)
	if b.err != nil {
		return b
	}
	f := fixup{at: at, target: target, line: b.line}
	if local {
		b.pending = append(b.pending, f)
	} else {
		b.fixups = append(b.fixups, f)
	}
	return b
}

func (b *Builder) patch(at CodePointer, target uint32) {
	copy(b.m.code[at:at+4], bigEndian32(target))
}

func bigEndian32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
