package runtime

func Add(instr Instruction, l Value, r Value) Value {
	switch instr {
	case I32:
		return l.(int32) + r.(int32)
	case I64:
		return l.(int64) + r.(int64)
	default:
		panic("Invalid addition argument type.")
	}
}

func Subtract(instr Instruction, l Value, r Value) Value {
	switch instr {
	case I32:
		return l.(int32) - r.(int32)
	case I64:
		return l.(int64) - r.(int64)
	default:
		panic("Invalid subtraction argument type.")
	}
}

func Equal(instr Instruction, l Value, r Value) Value {
	switch instr {
	case I32:
		return l.(int32) == r.(int32)
	case I64:
		return l.(int64) == r.(int64)
	default:
		panic("Invalid equality argument type.")
	}
}
