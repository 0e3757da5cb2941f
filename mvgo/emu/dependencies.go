package emu

import (
	"math/bits"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

// Dependency lowering: after a primary event is emitted, synthetic ALU events
// are appended that express the instruction's semantics as combinations of
// the primitive opcodes the proof backend has chips for. Synthetic events are
// marked with sentinel pc values (DepEventPC / DepEventNextPC).

func depEvent(op mips.Opcode, a, b, c uint32) AluEvent {
	return AluEvent{PC: DepEventPC, NextPC: DepEventNextPC, Opcode: op, A: a, B: b, C: c}
}

func depEventHI(op mips.Opcode, a, hi, b, c uint32) AluEvent {
	ev := depEvent(op, a, b, c)
	ev.HI = hi
	return ev
}

// emitLoadDependencies witnesses the address computation of every load, and
// for the sign-extending loads the relation between the raw and the
// sign-extended value.
func (e *Executor) emitLoadDependencies(op mips.Opcode, a, b, c, addr, memWord uint32) {
	e.appendDep(depEvent(mips.ADD, addr, b, c))
	offset := addr & 3
	switch op {
	case mips.LB:
		raw := memWord >> (offset * 8) & 0xff
		if raw&0x80 != 0 {
			// a = raw - 256 mod 2^32
			e.appendDep(depEvent(mips.SUB, a, raw, 256))
		}
	case mips.LH:
		raw := memWord >> ((offset & 2) * 8) & 0xffff
		if raw&0x8000 != 0 {
			e.appendDep(depEvent(mips.SUB, a, raw, 65536))
		}
	}
}

func (e *Executor) emitStoreDependencies(b, c, addr uint32) {
	e.appendDep(depEvent(mips.ADD, addr, b, c))
}

// emitBranchDependencies lowers the predicate into two signed compares, plus
// the target computation when the branch is taken.
func (e *Executor) emitBranchDependencies(a, b, c, nextPC, nextNextPC uint32, taken bool) {
	aLTb := uint32(0)
	if int32(a) < int32(b) {
		aLTb = 1
	}
	bLTa := uint32(0)
	if int32(b) < int32(a) {
		bLTa = 1
	}
	e.appendDep(depEvent(mips.SLT, aLTb, a, b))
	e.appendDep(depEvent(mips.SLT, bLTa, b, a))
	if taken {
		e.appendDep(depEvent(mips.ADD, nextNextPC, nextPC, c))
	}
}

func (e *Executor) emitJumpDirectDependencies(target, nextPC, offset uint32) {
	e.appendDep(depEvent(mips.ADD, target, nextPC, offset))
}

// emitDivRemDependencies witnesses q*c + r == b: absolute-value checks for
// the signed variants, a wide multiply of quotient and divisor, and a bound
// on the remainder.
func (e *Executor) emitDivRemDependencies(op mips.Opcode, b, c, quot, rem uint32) {
	signed := op == mips.DIV || op == mips.MOD
	if signed {
		if int32(b) < 0 {
			e.appendDep(depEvent(mips.ADD, 0, b, uint32(-int32(b))))
		}
		if int32(c) < 0 {
			e.appendDep(depEvent(mips.ADD, 0, c, uint32(-int32(c))))
		}
	}

	mulOp := mips.MULTU
	if signed {
		mulOp = mips.MULT
	}
	var lo, hi uint32
	if signed {
		prod := int64(int32(quot)) * int64(int32(c))
		lo, hi = uint32(prod), uint32(uint64(prod)>>32)
	} else {
		prod := uint64(quot) * uint64(c)
		lo, hi = uint32(prod), uint32(prod>>32)
	}
	e.appendDep(depEventHI(mulOp, lo, hi, quot, c))

	absRem, absC := rem, c
	if signed {
		absRem = absU32(rem)
		absC = absU32(c)
	}
	bound := absC
	if bound == 0 {
		bound = 1
	}
	lt := uint32(0)
	if absRem < bound {
		lt = 1
	}
	e.appendDep(depEvent(mips.SLTU, lt, absRem, bound))
}

func absU32(v uint32) uint32 {
	if int32(v) < 0 {
		return uint32(-int32(v))
	}
	return v
}

// emitCountDependencies witnesses CLZ/CLO with the shift that isolates the
// first significant bit. Emitted only when a significant bit exists.
func (e *Executor) emitCountDependencies(op mips.Opcode, a, b uint32) {
	if a >= 32 {
		return
	}
	word := b
	if op == mips.CLO {
		word = ^b
	}
	e.appendDep(depEvent(mips.SRL, word>>(31-a), word, 31-a))
}

func (e *Executor) emitMulAccDependencies(op mips.Opcode, b, c uint32) {
	if op == mips.MADD || op == mips.MSUB {
		prod := int64(int32(b)) * int64(int32(c))
		e.appendDep(depEventHI(mips.MULT, uint32(prod), uint32(uint64(prod)>>32), b, c))
	} else {
		prod := uint64(b) * uint64(c)
		e.appendDep(depEventHI(mips.MULTU, uint32(prod), uint32(prod>>32), b, c))
	}
}

// emitExtDependencies realizes the bit-range extract as a left shift that
// drops the high bits followed by a logical right shift.
func (e *Executor) emitExtDependencies(a, b, c uint32) {
	lsb := c & 0x1f
	msbd := c >> 5
	shiftL := 31 - lsb - msbd
	sll := b << shiftL
	e.appendDep(depEvent(mips.SLL, sll, b, shiftL))
	e.appendDep(depEvent(mips.SRL, a, sll, 31-msbd))
}

// emitInsDependencies witnesses the field replace: rotate the field to the
// bottom, drop it, reinstate the cleared word, then add the inserted field.
// The field extraction of b itself is constrained by the misc chip.
func (e *Executor) emitInsDependencies(a, prevA, b, c uint32) {
	lsb := c & 0x1f
	msb := c >> 5
	w := msb - lsb + 1
	if w >= 32 {
		return
	}
	u := bits.RotateLeft32(prevA, -int(lsb))
	v := u >> w
	x := v << w
	y := bits.RotateLeft32(x, int(lsb))
	field := (b << lsb) & (uint32(1<<w-1) << lsb)
	e.appendDep(depEvent(mips.ROR, u, prevA, lsb))
	e.appendDep(depEvent(mips.SRL, v, u, w))
	e.appendDep(depEvent(mips.SLL, x, v, w))
	e.appendDep(depEvent(mips.ROR, y, x, 32-lsb))
	e.appendDep(depEvent(mips.ADD, a, y, field))
}

func (e *Executor) appendDep(ev AluEvent) {
	e.Record.AluEvents = append(e.Record.AluEvents, ev)
}

// countDependencies precomputes upper bounds on the dependent events an
// instruction will emit, so shape fitting can estimate trace sizes in modes
// that do not generate the events themselves.
func (e *Executor) countDependencies(counts *LocalCounts, op mips.Opcode) {
	switch {
	case op.IsLoad():
		counts.Event[mips.ADD]++
		if op == mips.LB || op == mips.LH {
			counts.Event[mips.SUB]++
		}
	case op.IsStore():
		counts.Event[mips.ADD]++
	case op.IsBranch():
		counts.Event[mips.SLT] += 2
		counts.Event[mips.ADD]++
	case op == mips.JumpDirect:
		counts.Event[mips.ADD]++
	case op == mips.DIV || op == mips.MOD:
		counts.Event[mips.ADD] += 2
		counts.Event[mips.MULT]++
		counts.Event[mips.SLTU]++
	case op == mips.DIVU || op == mips.MODU:
		counts.Event[mips.MULTU]++
		counts.Event[mips.SLTU]++
	case op == mips.CLZ || op == mips.CLO:
		counts.Event[mips.SRL]++
	case op == mips.MADD || op == mips.MSUB:
		counts.Event[mips.MULT]++
	case op == mips.MADDU || op == mips.MSUBU:
		counts.Event[mips.MULTU]++
	case op == mips.EXT:
		counts.Event[mips.SLL]++
		counts.Event[mips.SRL]++
	case op == mips.INS:
		counts.Event[mips.ROR] += 2
		counts.Event[mips.SLL]++
		counts.Event[mips.SRL]++
		counts.Event[mips.ADD]++
	}
}
