// Package compiler turns boba assembly text into runtime functions.
//
// A program is a sequence of functions. Each function starts with
// `func NAME` (or `hidden func NAME` for runtime helpers that should stay
// out of stack traces) and runs until `end`. Inside a function every line is
// one instruction or a `LABEL:` definition. Comments start with `;`.
//
//	func main
//	    i32 4
//	    call countdown
//	    return
//	end
//
// The source line of every instruction is recorded so stack trace offsets
// can be mapped back to the text they came from.
package compiler

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/glossopoeia/bobatrace/runtime"
)

var numericTypes = map[string]runtime.Instruction{
	"i32": runtime.I32,
	"i64": runtime.I64,
}

var simpleInstructions = map[string]func(b *runtime.Builder) *runtime.Builder{
	"nop":     (*runtime.Builder).Nop,
	"abort":   (*runtime.Builder).Abort,
	"pop":     (*runtime.Builder).Pop,
	"dup":     (*runtime.Builder).Dup,
	"return":  (*runtime.Builder).Return,
	"throw":   (*runtime.Builder).Throw,
	"ref_new": (*runtime.Builder).RefNew,
	"ref_get": (*runtime.Builder).RefGet,
	"ref_put": (*runtime.Builder).RefPut,
	"gc":      (*runtime.Builder).Collect,
}

var targetInstructions = map[string]func(b *runtime.Builder, target string) *runtime.Builder{
	"jump":       (*runtime.Builder).Jump,
	"jump_true":  (*runtime.Builder).JumpTrue,
	"jump_false": (*runtime.Builder).JumpFalse,
	"call":       (*runtime.Builder).Call,
	"tailcall":   (*runtime.Builder).TailCall,
	"async":      (*runtime.Builder).Async,
	"native":     (*runtime.Builder).CallNative,
}

var numericInstructions = map[string]func(b *runtime.Builder, numType runtime.Instruction) *runtime.Builder{
	"add": (*runtime.Builder).Add,
	"sub": (*runtime.Builder).Subtract,
	"eq":  (*runtime.Builder).Equal,
}

// Assemble compiles source into m, linking the core library first.
func Assemble(m *runtime.Machine, source string) error {
	b := runtime.NewBuilder(m)
	b.LinkCore()

	inFunction := false
	for i, raw := range strings.Split(source, "\n") {
		line := uint(i + 1)
		fields := tokenize(raw)
		if len(fields) == 0 {
			continue
		}
		b.Line(line)

		var err error
		switch {
		case fields[0] == "func" || (fields[0] == "hidden" && len(fields) > 1 && fields[1] == "func"):
			err = beginFunction(b, fields, inFunction)
			inFunction = true
		case fields[0] == "end":
			if !inFunction {
				err = errors.New("end outside of a function")
			} else if b.End() == nil {
				// builder errors already carry their line
				return b.Finish()
			}
			inFunction = false
		case !inFunction:
			err = errors.Errorf("%q outside of a function", fields[0])
		case len(fields) == 1 && strings.HasSuffix(fields[0], ":"):
			b.Label(strings.TrimSuffix(fields[0], ":"))
		default:
			err = instruction(b, fields)
		}
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
	}
	if inFunction {
		return errors.New("missing end of the last function")
	}
	return b.Finish()
}

// tokenize splits a line into fields, dropping comments. A string constant
// stays one field; an unterminated one runs to the end of the line.
func tokenize(raw string) []string {
	quote := strings.IndexByte(raw, '"')
	comment := strings.IndexByte(raw, ';')
	if comment >= 0 && (quote < 0 || comment < quote) {
		return strings.Fields(raw[:comment])
	}
	if quote < 0 {
		return strings.Fields(raw)
	}

	end := closingQuote(raw, quote)
	fields := append(strings.Fields(raw[:quote]), raw[quote:end])
	rest := raw[end:]
	if i := strings.IndexByte(rest, ';'); i >= 0 {
		rest = rest[:i]
	}
	return append(fields, strings.Fields(rest)...)
}

// closingQuote returns the index just past the quote that closes the string
// opening at raw[open], or len(raw) if there is none.
func closingQuote(raw string, open int) int {
	for i := open + 1; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(raw)
}

func beginFunction(b *runtime.Builder, fields []string, inFunction bool) error {
	if inFunction {
		return errors.New("nested function definition")
	}
	name := fields[len(fields)-1]
	if len(fields) != 2 && !(fields[0] == "hidden" && len(fields) == 3) {
		return errors.New("expected `func NAME` or `hidden func NAME`")
	}
	if fields[0] == "hidden" {
		b.HiddenFunction(name)
	} else {
		b.Function(name)
	}
	return nil
}

func instruction(b *runtime.Builder, fields []string) error {
	mnemonic := strings.ToLower(fields[0])
	args := fields[1:]

	if emit, ok := simpleInstructions[mnemonic]; ok {
		if err := expectArgs(mnemonic, args, 0); err != nil {
			return err
		}
		emit(b)
		return nil
	}
	if emit, ok := targetInstructions[mnemonic]; ok {
		if err := expectArgs(mnemonic, args, 1); err != nil {
			return err
		}
		emit(b, args[0])
		return nil
	}
	if emit, ok := numericInstructions[mnemonic]; ok {
		if err := expectArgs(mnemonic, args, 1); err != nil {
			return err
		}
		numType, ok := numericTypes[strings.ToLower(args[0])]
		if !ok {
			return errors.Errorf("unknown numeric type %q", args[0])
		}
		emit(b, numType)
		return nil
	}

	switch mnemonic {
	case "i32":
		if err := expectArgs(mnemonic, args, 1); err != nil {
			return err
		}
		v, err := strconv.ParseInt(args[0], 0, 32)
		if err != nil {
			return errors.Wrap(err, "i32 operand")
		}
		b.I32(int32(v))
	case "i64":
		if err := expectArgs(mnemonic, args, 1); err != nil {
			return err
		}
		v, err := strconv.ParseInt(args[0], 0, 64)
		if err != nil {
			return errors.Wrap(err, "i64 operand")
		}
		b.I64(v)
	case "const":
		if err := expectArgs(mnemonic, args, 1); err != nil {
			return err
		}
		s, err := strconv.Unquote(args[0])
		if err != nil {
			return errors.Wrapf(err, "string constant %s", args[0])
		}
		b.Constant(s)
	default:
		return errors.Errorf("unknown instruction %q", fields[0])
	}
	return nil
}

func expectArgs(mnemonic string, args []string, n int) error {
	if len(args) != n {
		return errors.Errorf("%s takes %d operand(s), got %d", mnemonic, n, len(args))
	}
	return nil
}
