package emu

import (
	"math/bits"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

// Pure per-opcode semantics. All arithmetic is wrapping 32-bit.

func signExt8(v uint32) uint32  { return uint32(int32(int8(v))) }
func signExt16(v uint32) uint32 { return uint32(int32(int16(v))) }

func executeALU(op mips.Opcode, b, c uint32) uint32 {
	switch op {
	case mips.ADD:
		return b + c
	case mips.SUB:
		return b - c
	case mips.MUL:
		return b * c
	case mips.SLL:
		return b << (c & 0x1f)
	case mips.SRL:
		return b >> (c & 0x1f)
	case mips.SRA:
		return uint32(int32(b) >> (c & 0x1f))
	case mips.ROR:
		return bits.RotateLeft32(b, -int(c&0x1f))
	case mips.SLT:
		if int32(b) < int32(c) {
			return 1
		}
		return 0
	case mips.SLTU:
		if b < c {
			return 1
		}
		return 0
	case mips.AND:
		return b & c
	case mips.OR:
		return b | c
	case mips.XOR:
		return b ^ c
	case mips.NOR:
		return ^(b | c)
	case mips.CLZ:
		return uint32(bits.LeadingZeros32(b))
	case mips.CLO:
		return uint32(bits.LeadingZeros32(^b))
	case mips.MOD:
		_, r := divide(b, c)
		return r
	case mips.MODU:
		_, r := divideU(b, c)
		return r
	}
	panic("not an ALU opcode: " + op.String())
}

// divide implements the signed DIV semantics: division by zero yields
// quotient 0xFFFFFFFF and remainder b, and the i32::MIN / -1 overflow case
// yields quotient i32::MIN and remainder 0. Fixing the unpredictable MIPS
// results permits a unique constraint.
func divide(b, c uint32) (quot, rem uint32) {
	if c == 0 {
		return 0xFFFF_FFFF, b
	}
	sb, sc := int32(b), int32(c)
	if sb == -0x8000_0000 && sc == -1 {
		return 0x8000_0000, 0
	}
	return uint32(sb / sc), uint32(sb % sc)
}

func divideU(b, c uint32) (quot, rem uint32) {
	if c == 0 {
		return 0xFFFF_FFFF, b
	}
	return b / c, b % c
}

// executeMulDiv returns the (lo, hi) pair of the HI-writing opcodes.
// prevLo/prevHi feed the multiply-accumulate family.
func executeMulDiv(op mips.Opcode, b, c, prevLo, prevHi uint32) (lo, hi uint32) {
	switch op {
	case mips.MULT:
		prod := int64(int32(b)) * int64(int32(c))
		return uint32(prod), uint32(uint64(prod) >> 32)
	case mips.MULTU:
		prod := uint64(b) * uint64(c)
		return uint32(prod), uint32(prod >> 32)
	case mips.DIV:
		q, r := divide(b, c)
		return q, r
	case mips.DIVU:
		q, r := divideU(b, c)
		return q, r
	case mips.MADD:
		acc := uint64(prevHi)<<32 | uint64(prevLo)
		acc += uint64(int64(int32(b)) * int64(int32(c)))
		return uint32(acc), uint32(acc >> 32)
	case mips.MADDU:
		acc := uint64(prevHi)<<32 | uint64(prevLo)
		acc += uint64(b) * uint64(c)
		return uint32(acc), uint32(acc >> 32)
	case mips.MSUB:
		acc := uint64(prevHi)<<32 | uint64(prevLo)
		acc -= uint64(int64(int32(b)) * int64(int32(c)))
		return uint32(acc), uint32(acc >> 32)
	case mips.MSUBU:
		acc := uint64(prevHi)<<32 | uint64(prevLo)
		acc -= uint64(b) * uint64(c)
		return uint32(acc), uint32(acc >> 32)
	}
	panic("not a mul/div opcode: " + op.String())
}

// executeLoad extracts the loaded value from the aligned memory word.
// addr is the unaligned effective address; prevA is the destination's prior
// contents, which LWL/LWR merge into.
func executeLoad(op mips.Opcode, addr, memWord, prevA uint32) uint32 {
	offset := addr & 3
	switch op {
	case mips.LB:
		return signExt8(memWord >> (offset * 8) & 0xff)
	case mips.LBU:
		return memWord >> (offset * 8) & 0xff
	case mips.LH:
		return signExt16(memWord >> ((offset & 2) * 8) & 0xffff)
	case mips.LHU:
		return memWord >> ((offset & 2) * 8) & 0xffff
	case mips.LW, mips.LL:
		return memWord
	case mips.LWL:
		// load the left (high) part of the register from memory
		shift := (3 - offset) * 8
		mask := uint32(0xffff_ffff) << shift
		return (memWord << shift) | (prevA &^ mask)
	case mips.LWR:
		shift := offset * 8
		mask := uint32(0xffff_ffff) >> shift
		return (memWord >> shift) | (prevA &^ mask)
	}
	panic("not a load opcode: " + op.String())
}

// executeStore merges the register value into the prior memory word.
func executeStore(op mips.Opcode, addr, regVal, memWord uint32) uint32 {
	offset := addr & 3
	switch op {
	case mips.SB:
		shift := offset * 8
		return (memWord &^ (0xff << shift)) | (regVal&0xff)<<shift
	case mips.SH:
		shift := (offset & 2) * 8
		return (memWord &^ (0xffff << shift)) | (regVal&0xffff)<<shift
	case mips.SW, mips.SC:
		return regVal
	case mips.SWL:
		shift := (3 - offset) * 8
		mask := uint32(0xffff_ffff) >> shift
		return (regVal >> shift) | (memWord &^ mask)
	case mips.SWR:
		shift := offset * 8
		mask := uint32(0xffff_ffff) << shift
		return (regVal << shift) | (memWord &^ mask)
	}
	panic("not a store opcode: " + op.String())
}

func branchTaken(op mips.Opcode, a, b uint32) bool {
	switch op {
	case mips.BEQ:
		return a == b
	case mips.BNE:
		return a != b
	case mips.BLEZ:
		return int32(a) <= 0
	case mips.BGTZ:
		return int32(a) > 0
	case mips.BLTZ:
		return int32(a) < 0
	case mips.BGEZ:
		return int32(a) >= 0
	}
	panic("not a branch opcode: " + op.String())
}

// executeMisc covers the read-modify-write family. prevA is the prior value
// of the destination register.
func executeMisc(op mips.Opcode, prevA, b, c uint32) uint32 {
	switch op {
	case mips.MEQ:
		if c == 0 {
			return b
		}
		return prevA
	case mips.MNE:
		if c != 0 {
			return b
		}
		return prevA
	case mips.SEXT:
		if c == 0 {
			return signExt8(b)
		}
		return signExt16(b)
	case mips.WSBH:
		return (b&0x00ff_00ff)<<8 | (b&0xff00_ff00)>>8
	case mips.EXT:
		lsb := c & 0x1f
		msbd := c >> 5
		return (b >> lsb) & uint32(1<<(msbd+1)-1)
	case mips.INS:
		lsb := c & 0x1f
		msb := c >> 5
		w := msb - lsb + 1
		mask := uint32(1<<w-1) << lsb
		return (prevA &^ mask) | (b<<lsb)&mask
	}
	panic("not a misc opcode: " + op.String())
}
