package runtime

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/glossopoeia/bobatrace/stacktrace"
)

type NativeFn = func(*Machine, *Fiber)

type Machine struct {
	code      []byte
	lines     []uint
	constants []Value
	codes     []*Code

	labels map[uint]string

	// world is held for reading by every fiber while it executes an
	// instruction and for writing by the collector.
	world sync.RWMutex

	heapLock    sync.Mutex
	Heap        map[HeapKey]Value
	NextHeapKey HeapKey

	fibersLock sync.Mutex
	fibers     map[*Fiber]struct{}

	nativeFns     []NativeFn
	nativeFnNames []string

	// Config is read at the start of every stack capture.
	Config stacktrace.Config

	TraceFrames    bool
	TraceExecution bool
}

func NewDebugMachine(cfg stacktrace.Config) *Machine {
	m := NewReleaseMachine(cfg)
	m.TraceFrames = true
	m.TraceExecution = true
	return m
}

func NewReleaseMachine(cfg stacktrace.Config) *Machine {
	m := new(Machine)
	m.code = make([]byte, 0)
	m.lines = make([]uint, 0)
	m.constants = make([]Value, 0)
	m.codes = make([]*Code, 0)

	m.labels = make(map[uint]string)
	m.Heap = make(map[HeapKey]Value)
	m.NextHeapKey = 0
	m.fibers = make(map[*Fiber]struct{})

	m.nativeFns = make([]NativeFn, 0)
	m.nativeFnNames = make([]string, 0)
	registerCoreNatives(m)

	m.Config = cfg
	return m
}

// RegisterNative adds fn to the native table. Natives run inside a step of
// the calling fiber, so they must not collect or run other fibers.
func (m *Machine) RegisterNative(name string, fn NativeFn) {
	m.nativeFns = append(m.nativeFns, fn)
	m.nativeFnNames = append(m.nativeFnNames, name)
}

func (m *Machine) AddConstant(val Value) uint16 {
	m.constants = append(m.constants, val)
	return uint16(len(m.constants) - 1)
}

func (m *Machine) AddLabel(label string, index uint) {
	m.labels[index] = label
}

// NewFiber creates a fiber that the collector treats as a root set until it
// is released.
func (m *Machine) NewFiber() *Fiber {
	fiber := new(Fiber)
	fiber.values = make([]Value, 0)
	fiber.frames = make([]Frame, 0)

	m.fibersLock.Lock()
	m.fibers[fiber] = struct{}{}
	m.fibersLock.Unlock()
	return fiber
}

func (m *Machine) ReleaseFiber(fiber *Fiber) {
	m.fibersLock.Lock()
	delete(m.fibers, fiber)
	m.fibersLock.Unlock()
}

// RunFunction runs the named function to completion on a fresh fiber.
func (m *Machine) RunFunction(name string) (Value, error) {
	entry := m.Function(name)
	if entry == nil {
		return nil, errors.Errorf("no function named %q", name)
	}
	fiber := m.NewFiber()
	defer m.ReleaseFiber(fiber)

	if m.TraceExecution {
		m.Disassemble(os.Stdout)
	}
	return m.Run(fiber, entry)
}

func (m *Machine) RunFromStart() (Value, error) {
	return m.RunFunction("main")
}

// Run executes entry on fiber until it returns, aborts or throws. Returning
// from entry yields the top of the value stack, if any.
func (m *Machine) Run(fiber *Fiber, entry *Code) (Value, error) {
	fiber.PushFrame(Frame{kind: EntryFrame, name: "entry"})
	fiber.PushFrame(Frame{kind: ManagedFrame, code: entry, pc: entry.start})
	fiber.instruction = entry.start

	for {
		result, done, err := m.step(fiber)
		if done || err != nil {
			return result, err
		}
	}
}

// step executes one instruction while holding the world for reading, so the
// boundary between two steps is the fiber's safepoint.
func (m *Machine) step(fiber *Fiber) (Value, bool, error) {
	m.world.RLock()
	defer m.world.RUnlock()

	fiber.topFrame().pc = fiber.instruction

	if m.TraceFrames {
		m.PrintFrames(fiber)
	}
	if m.TraceExecution {
		m.DisassembleInstruction(os.Stdout, fiber.instruction)
	}

	switch fiber.ReadInstruction(m) {
	case NOP:
		// do nothing
	case ABORT:
		result := fiber.PopOneValue()
		fiber.unwind()
		return result, true, nil
	case CONSTANT:
		constIdx := fiber.ReadUInt16(m)
		fiber.PushValue(m.constants[constIdx])
	case I32:
		fiber.PushValue(fiber.ReadInt32(m))
	case I64:
		fiber.PushValue(fiber.ReadInt64(m))
	case POP:
		fiber.PopOneValue()
	case DUP:
		fiber.PushValue(fiber.PeekOneValue())

	// NUMERIC OPERATIONS
	case NUM_ADD:
		m.BinaryNumeric(fiber, Add)
	case NUM_SUB:
		m.BinaryNumeric(fiber, Subtract)
	case NUM_EQ:
		m.BinaryNumeric(fiber, Equal)

	// JUMPS
	case JUMP:
		fiber.instruction = uint(fiber.ReadUInt32(m))
	case JUMP_TRUE:
		jump := fiber.ReadUInt32(m)
		if fiber.PopOneValue().(bool) {
			fiber.instruction = uint(jump)
		}
	case JUMP_FALSE:
		jump := fiber.ReadUInt32(m)
		if !fiber.PopOneValue().(bool) {
			fiber.instruction = uint(jump)
		}

	// FUNCTION CALL RELATED
	case CALL:
		callee := m.codeStartingAt(uint(fiber.ReadUInt32(m)))
		fiber.PushFrame(Frame{kind: ManagedFrame, code: callee, pc: callee.start, afterLocation: fiber.instruction})
		fiber.instruction = callee.start
	case TAILCALL:
		callee := m.codeStartingAt(uint(fiber.ReadUInt32(m)))
		top := fiber.topFrame()
		top.code = callee
		top.pc = callee.start
		fiber.instruction = callee.start
	case CALL_NATIVE:
		fnIndex := fiber.ReadUInt32(m)
		leave := fiber.enterRuntime(NativeFrame, m.nativeFnNames[fnIndex])
		m.nativeFns[fnIndex](m, fiber)
		leave()
	case RETURN:
		returning := fiber.PopFrame()
		if fiber.topFrame().kind == EntryFrame {
			var result Value
			if len(fiber.values) > 0 {
				result = fiber.PeekOneValue()
			}
			fiber.unwind()
			return result, true, nil
		}
		fiber.instruction = returning.afterLocation
	case ASYNC:
		task := m.codeStartingAt(uint(fiber.ReadUInt32(m)))
		var result Value
		var err error
		m.releaseWorld(func() { result, err = m.runAsync(fiber, task) })
		if err != nil {
			fiber.unwind()
			return nil, true, err
		}
		fiber.PushValue(result)

	case THROW:
		exception := m.throw(fiber, fiber.PopOneValue())
		fiber.unwind()
		return nil, true, exception

	// HEAP
	case REF_NEW:
		fiber.PushValue(m.Allocate(fiber.PopOneValue()))
	case REF_GET:
		ref := fiber.PopOneValue().(Ref)
		fiber.PushValue(m.Load(ref))
	case REF_PUT:
		val := fiber.PopOneValue()
		ref := fiber.PopOneValue().(Ref)
		m.Store(ref, val)
	case GC:
		var err error
		m.releaseWorld(func() { _, err = m.Collect() })
		fiber.PushValue(err == nil)

	default:
		panic(fmt.Sprintf("Unknown instruction at %d.", fiber.instruction-1))
	}
	return nil, false, nil
}

// releaseWorld runs fn with the calling fiber parked at a safepoint. The
// fiber's value stack must not change until fn returns.
func (m *Machine) releaseWorld(fn func()) {
	m.world.RUnlock()
	defer m.world.RLock()
	fn()
}

func (m *Machine) throw(fiber *Fiber, value Value) *UncaughtException {
	leave := fiber.enterRuntime(StubFrame, "Throw")
	trace := stacktrace.CaptureForException(fiber, m.Config)
	leave()

	logrus.WithFields(logrus.Fields{
		"value":  value,
		"frames": trace.Len(),
	}).Debug("uncaught exception")
	return &UncaughtException{Value: value, Trace: trace}
}

// runAsync runs task on its own fiber while the calling fiber waits. When
// causal async stacks are enabled the task remembers the stack that started
// it, including that stack's own cause.
func (m *Machine) runAsync(fiber *Fiber, task *Code) (Value, error) {
	child := m.NewFiber()
	defer m.ReleaseFiber(child)

	if m.Config.CausalAsyncStacks {
		leave := fiber.enterRuntime(StubFrame, "Async")
		child.asyncCause = stacktrace.CaptureForException(fiber, m.Config)
		leave()
	}
	return m.Run(child, task)
}

func (m *Machine) BinaryNumeric(fiber *Fiber, binary func(Instruction, Value, Value) Value) {
	r, l := fiber.PopTwoValues()
	fiber.PushValue(binary(fiber.ReadInstruction(m), l, r))
}

func (m *Machine) PrintFrames(f *Fiber) {
	fmt.Printf("FRAMES:    ")
	if len(f.frames) <= 0 {
		fmt.Printf("<empty>")
	}
	for _, fr := range f.frames {
		fmt.Printf("%s(%s @%d) ~ ", fr.kind, fr.Name(), fr.pc)
	}
	fmt.Println()
}
