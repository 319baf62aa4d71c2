package protocol

import "fmt"

type Verb int

const (
	Increment Verb = iota
	Decrement
)

func (v Verb) String() string {
	if v == Decrement {
		return "decr"
	}
	return "incr"
}

type Opcode uint8

const (
	OpIncrement      Opcode = 0x05
	OpDecrement      Opcode = 0x06
	OpIncrementQuiet Opcode = 0x15
	OpDecrementQuiet Opcode = 0x16
)

// EffectiveOpcode picks the binary opcode for a verb, switching to the quiet
// sibling when no reply is wanted.
func EffectiveOpcode(v Verb, quiet bool) Opcode {
	switch {
	case v == Increment && quiet:
		return OpIncrementQuiet
	case v == Increment:
		return OpIncrement
	case quiet:
		return OpDecrementQuiet
	default:
		return OpDecrement
	}
}

func (o Opcode) Quiet() bool {
	return o == OpIncrementQuiet || o == OpDecrementQuiet
}

func (o Opcode) Counter() bool {
	switch o {
	case OpIncrement, OpDecrement, OpIncrementQuiet, OpDecrementQuiet:
		return true
	}
	return false
}

func (o Opcode) String() string {
	switch o {
	case OpIncrement:
		return "INCREMENT"
	case OpDecrement:
		return "DECREMENT"
	case OpIncrementQuiet:
		return "INCREMENTQ"
	case OpDecrementQuiet:
		return "DECREMENTQ"
	default:
		return fmt.Sprintf("0x%02x", uint8(o))
	}
}
