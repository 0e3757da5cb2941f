package mips

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name     string
		raw      uint32
		expected Instruction
	}{
		{"addu", 0x0109_4021, Instruction{Opcode: ADD, OpA: 8, OpB: 8, OpC: 9}},
		{"subu", 0x014b_6023, Instruction{Opcode: SUB, OpA: 12, OpB: 10, OpC: 11}},
		{"sll", 0x0005_20c0, Instruction{Opcode: SLL, OpA: 4, OpB: 5, OpC: 3, ImmC: true}},
		{"rotr", 0x0025_20c2, Instruction{Opcode: ROR, OpA: 4, OpB: 5, OpC: 3, ImmC: true}},
		{"nop", 0x0000_0000, Instruction{Opcode: ADD, ImmB: true, ImmC: true}},
		{"lui", 0x3c08_1234, Instruction{Opcode: SLL, OpA: 8, OpB: 0x1234, OpC: 16, ImmB: true, ImmC: true}},
		{"addiu negative", 0x2402_ffff, Instruction{Opcode: ADD, OpA: 2, OpB: 0, OpC: 0xffff_ffff, ImmC: true}},
		{"lw", 0x8faa_0004, Instruction{Opcode: LW, OpA: 10, OpB: 29, OpC: 4, ImmC: true}},
		{"sw negative offset", 0xafaa_fff8, Instruction{Opcode: SW, OpA: 10, OpB: 29, OpC: 0xffff_fff8, ImmC: true}},
		{"beq", 0x1109_0004, Instruction{Opcode: BEQ, OpA: 8, OpB: 9, OpC: 16, ImmC: true}},
		{"bltz backward", 0x0460_ffff, Instruction{Opcode: BLTZ, OpA: 3, OpB: 0, OpC: 0xffff_fffc, ImmB: true, ImmC: true}},
		{"j", 0x0800_0100, Instruction{Opcode: Jumpi, OpA: 0, OpB: 0x400, ImmB: true, ImmC: true}},
		{"jal", 0x0c00_0100, Instruction{Opcode: Jumpi, OpA: RegRA, OpB: 0x400, ImmB: true, ImmC: true}},
		{"jr", 0x03e0_0008, Instruction{Opcode: Jump, OpA: 0, OpB: 31, OpC: 0, ImmC: true}},
		{"jalr", 0x0320_f809, Instruction{Opcode: Jump, OpA: 31, OpB: 25, OpC: 0, ImmC: true}},
		{"syscall", 0x0000_000c, Instruction{Opcode: SYSCALL, OpA: RegV0, OpB: RegA0, OpC: RegA1}},
		{"mflo", 0x0000_4012, Instruction{Opcode: ADD, OpA: 8, OpB: RegLO, OpC: 0, ImmC: true}},
		{"mult", 0x0109_0018, Instruction{Opcode: MULT, OpA: RegLO, OpB: 8, OpC: 9}},
		{"divu", 0x0109_001b, Instruction{Opcode: DIVU, OpA: RegLO, OpB: 8, OpC: 9}},
		{"clz", 0x7062_1020, Instruction{Opcode: CLZ, OpA: 2, OpB: 3, OpC: 0, ImmC: true}},
		{"ext", 0x7d07_2100, Instruction{Opcode: EXT, OpA: 7, OpB: 8, OpC: 4<<5 | 4, ImmC: true}},
		{"teq", 0x0109_0034, Instruction{Opcode: TEQ, OpA: 8, OpB: 9, OpC: 0, ImmC: true}},
		{"break", 0x0000_000d, Instruction{Opcode: BREAK}},
		{"unknown", 0xffff_ffff, Instruction{Opcode: UNIMPL}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ins := Decode(tc.raw)
			expected := tc.expected
			expected.Raw = tc.raw
			require.Equal(t, expected, ins)
		})
	}
}

func TestDecodePreservesRaw(t *testing.T) {
	for _, raw := range []uint32{0, 0x0109_4021, 0x8faa_0004, 0xffff_ffff, 0x0000_000c} {
		ins := Decode(raw)
		require.Equal(t, raw, ins.Raw)
		require.Equal(t, ins, Decode(ins.Encode()))
	}
}

func TestOpcodeFamiliesDisjoint(t *testing.T) {
	for op := Opcode(0); op < numOpcodes; op++ {
		n := 0
		for _, is := range []bool{op.IsALU(), op.IsMulDiv(), op.IsLoad(), op.IsStore(), op.IsBranch(), op.IsJump(), op.IsMisc()} {
			if is {
				n++
			}
		}
		require.LessOrEqual(t, n, 1, "opcode %s in multiple families", op)
	}
}

func TestRegisterName(t *testing.T) {
	require.Equal(t, "zero", RegisterName(0))
	require.Equal(t, "sp", RegisterName(RegSP))
	require.Equal(t, "hi", RegisterName(RegHI))
	require.Equal(t, "?", RegisterName(99))
}
