package runtime

import (
	"fmt"
	"io"
)

type Instruction = byte

const (
	NOP Instruction = iota
	ABORT

	CONSTANT
	I32
	I64
	POP
	DUP

	NUM_ADD
	NUM_SUB
	NUM_EQ

	JUMP
	JUMP_TRUE
	JUMP_FALSE

	CALL
	TAILCALL
	CALL_NATIVE
	RETURN
	ASYNC

	THROW

	REF_NEW
	REF_GET
	REF_PUT
	GC
)

func (m *Machine) Disassemble(w io.Writer) {
	for i := 0; i < len(m.code); {
		if val, hasLabel := m.labels[uint(i)]; hasLabel {
			fmt.Fprintf(w, "%s:\n", val)
		}
		i = int(m.DisassembleInstruction(w, uint(i)))
	}
}

func (m *Machine) DisassembleInstruction(w io.Writer, offset uint) uint {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && m.lines[offset] == m.lines[offset-1] {
		fmt.Fprintf(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", m.lines[offset])
	}

	instruction := m.code[offset]
	switch instruction {
	case NOP:
		return m.simpleInstruction(w, "NOP", offset)
	case ABORT:
		return m.simpleInstruction(w, "ABORT", offset)
	case CONSTANT:
		constIdx, next := m.ReadUInt16(offset + 1)
		fmt.Fprintf(w, "CONSTANT: %v\n", m.constants[constIdx])
		return next
	case I32:
		arg, next := m.ReadInt32(offset + 1)
		fmt.Fprintf(w, "I32: %d\n", arg)
		return next
	case I64:
		arg, next := m.ReadInt64(offset + 1)
		fmt.Fprintf(w, "I64: %d\n", arg)
		return next
	case POP:
		return m.simpleInstruction(w, "POP", offset)
	case DUP:
		return m.simpleInstruction(w, "DUP", offset)
	case NUM_ADD:
		return m.numericInstruction(w, "NUM_ADD", offset)
	case NUM_SUB:
		return m.numericInstruction(w, "NUM_SUB", offset)
	case NUM_EQ:
		return m.numericInstruction(w, "NUM_EQ", offset)
	case JUMP:
		return m.jumpInstruction(w, "JUMP", offset)
	case JUMP_TRUE:
		return m.jumpInstruction(w, "JUMP_TRUE", offset)
	case JUMP_FALSE:
		return m.jumpInstruction(w, "JUMP_FALSE", offset)
	case CALL:
		return m.jumpInstruction(w, "CALL", offset)
	case TAILCALL:
		return m.jumpInstruction(w, "TAILCALL", offset)
	case CALL_NATIVE:
		nativeIdx, aft := m.ReadUInt32(offset + 1)
		fmt.Fprintf(w, "CALL_NATIVE: %s\n", m.nativeFnNames[nativeIdx])
		return aft
	case RETURN:
		return m.simpleInstruction(w, "RETURN", offset)
	case ASYNC:
		return m.jumpInstruction(w, "ASYNC", offset)
	case THROW:
		return m.simpleInstruction(w, "THROW", offset)
	case REF_NEW:
		return m.simpleInstruction(w, "REF_NEW", offset)
	case REF_GET:
		return m.simpleInstruction(w, "REF_GET", offset)
	case REF_PUT:
		return m.simpleInstruction(w, "REF_PUT", offset)
	case GC:
		return m.simpleInstruction(w, "GC", offset)
	default:
		fmt.Fprintf(w, "Unknown opcode %d\n", instruction)
		return offset + 1
	}
}

func (m *Machine) simpleInstruction(w io.Writer, instr string, offset uint) uint {
	fmt.Fprintln(w, instr)
	return offset + 1
}

func numericType(typeId byte) string {
	switch typeId {
	case I32:
		return "I32"
	case I64:
		return "I64"
	default:
		return "UNKNOWN"
	}
}

func (m *Machine) numericInstruction(w io.Writer, instr string, offset uint) uint {
	fmt.Fprintf(w, "%-16s %s\n", instr, numericType(m.code[offset+1]))
	return offset + 2
}

func (m *Machine) jumpInstruction(w io.Writer, instr string, offset uint) uint {
	target, aft := m.ReadUInt32(offset + 1)
	if val, hasLabel := m.labels[uint(target)]; hasLabel {
		fmt.Fprintf(w, "%s: %s\n", instr, val)
	} else {
		fmt.Fprintf(w, "%s: %d\n", instr, target)
	}
	return aft
}

func (f *Fiber) ReadInstruction(m *Machine) Instruction {
	return f.ReadUInt8(m)
}

func (m *Machine) ReadUInt8(offset uint) (uint8, uint) {
	return m.code[offset], offset + 1
}

func (f *Fiber) ReadUInt8(m *Machine) uint8 {
	result, next := m.ReadUInt8(f.instruction)
	f.instruction = next
	return result
}

func (m *Machine) ReadUInt16(offset uint) (uint16, uint) {
	result := (uint16(m.code[offset]) << 8) | uint16(m.code[offset+1])
	return result, offset + 2
}

func (f *Fiber) ReadUInt16(m *Machine) uint16 {
	result, next := m.ReadUInt16(f.instruction)
	f.instruction = next
	return result
}

func (m *Machine) ReadInt32(offset uint) (int32, uint) {
	result, next := m.ReadUInt32(offset)
	return int32(result), next
}

func (f *Fiber) ReadInt32(m *Machine) int32 {
	result, next := m.ReadInt32(f.instruction)
	f.instruction = next
	return result
}

func (m *Machine) ReadUInt32(offset uint) (uint32, uint) {
	result := (uint32(m.code[offset]) << 24) |
		(uint32(m.code[offset+1]) << 16) |
		(uint32(m.code[offset+2]) << 8) |
		uint32(m.code[offset+3])
	return result, offset + 4
}

func (f *Fiber) ReadUInt32(m *Machine) uint32 {
	result, next := m.ReadUInt32(f.instruction)
	f.instruction = next
	return result
}

func (m *Machine) ReadInt64(offset uint) (int64, uint) {
	result := (uint64(m.code[offset]) << 56) |
		(uint64(m.code[offset+1]) << 48) |
		(uint64(m.code[offset+2]) << 40) |
		(uint64(m.code[offset+3]) << 32) |
		(uint64(m.code[offset+4]) << 24) |
		(uint64(m.code[offset+5]) << 16) |
		(uint64(m.code[offset+6]) << 8) |
		uint64(m.code[offset+7])
	return int64(result), offset + 8
}

func (f *Fiber) ReadInt64(m *Machine) int64 {
	result, next := m.ReadInt64(f.instruction)
	f.instruction = next
	return result
}
