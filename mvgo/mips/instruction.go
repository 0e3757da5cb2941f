package mips

import "fmt"

// Instruction is the immutable decoded form of a MIPS instruction word.
//
// OpA is always a register index (0..34). OpB and OpC are register indices or
// immediate words depending on the ImmB/ImmC flags. Raw preserves the original
// instruction word; for UNIMPL it is the only meaningful field.
type Instruction struct {
	Opcode Opcode
	OpA    uint32
	OpB    uint32
	OpC    uint32
	ImmB   bool
	ImmC   bool
	Raw    uint32
}

// Encode returns the instruction word this instruction was decoded from.
// Decode(i.Encode()) == i for any decoded instruction, UNIMPL included.
// Instructions built by hand carry no raw word and encode to zero.
func (i Instruction) Encode() uint32 {
	return i.Raw
}

func (i Instruction) String() string {
	b := fmt.Sprintf("$%s", RegisterName(i.OpB))
	if i.ImmB {
		b = fmt.Sprintf("%#x", i.OpB)
	}
	c := fmt.Sprintf("$%s", RegisterName(i.OpC))
	if i.ImmC {
		c = fmt.Sprintf("%#x", i.OpC)
	}
	switch {
	case i.Opcode == UNIMPL:
		return fmt.Sprintf("unimpl %#08x", i.Raw)
	case i.Opcode.IsLoad() || i.Opcode.IsStore():
		return fmt.Sprintf("%s $%s, %s(%s)", i.Opcode, RegisterName(i.OpA), c, b)
	default:
		return fmt.Sprintf("%s $%s, %s, %s", i.Opcode, RegisterName(i.OpA), b, c)
	}
}

// NewALU builds a register-form ALU instruction, for tests and program builders.
func NewALU(op Opcode, a, b, c uint32) Instruction {
	return Instruction{Opcode: op, OpA: a, OpB: b, OpC: c}
}

// NewImm builds an instruction with an immediate third operand.
func NewImm(op Opcode, a, b, imm uint32) Instruction {
	return Instruction{Opcode: op, OpA: a, OpB: b, OpC: imm, ImmC: true}
}
