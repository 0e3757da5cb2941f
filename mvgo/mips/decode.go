package mips

// Instruction word field accessors.
func opField(raw uint32) uint32 { return raw >> 26 }
func rsField(raw uint32) uint32 { return (raw >> 21) & 0x1f }
func rtField(raw uint32) uint32 { return (raw >> 16) & 0x1f }
func rdField(raw uint32) uint32 { return (raw >> 11) & 0x1f }
func saField(raw uint32) uint32 { return (raw >> 6) & 0x1f }
func fnField(raw uint32) uint32 { return raw & 0x3f }

func signExtImm(raw uint32) uint32 { return uint32(int32(int16(raw))) }
func zeroExtImm(raw uint32) uint32 { return raw & 0xffff }

// branch offsets are in instruction units, sign-extended then scaled to bytes.
func branchOffset(raw uint32) uint32 { return signExtImm(raw) << 2 }

func nop() Instruction { return Instruction{Opcode: ADD, ImmB: true, ImmC: true} }

func unimpl(raw uint32) Instruction { return Instruction{Opcode: UNIMPL, Raw: raw} }

// Decode maps a 32-bit MIPS instruction word into its decoded form.
// Unrecognized encodings decode to UNIMPL carrying the raw word; executing
// such an instruction fails.
func Decode(raw uint32) Instruction {
	ins := decode(raw)
	ins.Raw = raw
	return ins
}

func decode(raw uint32) Instruction {
	rs, rt, rd, sa := rsField(raw), rtField(raw), rdField(raw), saField(raw)

	switch opField(raw) {
	case 0x00: // SPECIAL
		return decodeSpecial(raw, rs, rt, rd, sa)
	case 0x01: // REGIMM
		switch rt {
		case 0x00:
			return Instruction{Opcode: BLTZ, OpA: rs, OpB: 0, OpC: branchOffset(raw), ImmB: true, ImmC: true}
		case 0x01:
			return Instruction{Opcode: BGEZ, OpA: rs, OpB: 0, OpC: branchOffset(raw), ImmB: true, ImmC: true}
		case 0x11:
			if rs == 0 { // BAL: unconditional branch-and-link
				return Instruction{Opcode: JumpDirect, OpA: RegRA, OpB: branchOffset(raw), ImmB: true, ImmC: true}
			}
			return unimpl(raw)
		case 0x1f: // SYNCI
			return nop()
		}
		return unimpl(raw)
	case 0x02: // J
		return Instruction{Opcode: Jumpi, OpA: 0, OpB: (raw & 0x03ff_ffff) << 2, ImmB: true, ImmC: true}
	case 0x03: // JAL
		return Instruction{Opcode: Jumpi, OpA: RegRA, OpB: (raw & 0x03ff_ffff) << 2, ImmB: true, ImmC: true}
	case 0x04:
		return Instruction{Opcode: BEQ, OpA: rs, OpB: rt, OpC: branchOffset(raw), ImmC: true}
	case 0x05:
		return Instruction{Opcode: BNE, OpA: rs, OpB: rt, OpC: branchOffset(raw), ImmC: true}
	case 0x06:
		if rt == 0 {
			return Instruction{Opcode: BLEZ, OpA: rs, OpB: 0, OpC: branchOffset(raw), ImmB: true, ImmC: true}
		}
		return unimpl(raw)
	case 0x07:
		if rt == 0 {
			return Instruction{Opcode: BGTZ, OpA: rs, OpB: 0, OpC: branchOffset(raw), ImmB: true, ImmC: true}
		}
		return unimpl(raw)
	case 0x08, 0x09: // ADDI, ADDIU
		return Instruction{Opcode: ADD, OpA: rt, OpB: rs, OpC: signExtImm(raw), ImmC: true}
	case 0x0a:
		return Instruction{Opcode: SLT, OpA: rt, OpB: rs, OpC: signExtImm(raw), ImmC: true}
	case 0x0b:
		return Instruction{Opcode: SLTU, OpA: rt, OpB: rs, OpC: signExtImm(raw), ImmC: true}
	case 0x0c:
		return Instruction{Opcode: AND, OpA: rt, OpB: rs, OpC: zeroExtImm(raw), ImmC: true}
	case 0x0d:
		return Instruction{Opcode: OR, OpA: rt, OpB: rs, OpC: zeroExtImm(raw), ImmC: true}
	case 0x0e:
		return Instruction{Opcode: XOR, OpA: rt, OpB: rs, OpC: zeroExtImm(raw), ImmC: true}
	case 0x0f: // LUI rt, imm == SLL rt, imm, 16
		return Instruction{Opcode: SLL, OpA: rt, OpB: zeroExtImm(raw), OpC: 16, ImmB: true, ImmC: true}
	case 0x1c: // SPECIAL2
		return decodeSpecial2(raw, rs, rt, rd)
	case 0x1f: // SPECIAL3
		return decodeSpecial3(raw, rs, rt, rd, sa)
	case 0x20:
		return loadStore(LB, raw, rs, rt)
	case 0x21:
		return loadStore(LH, raw, rs, rt)
	case 0x22:
		return loadStore(LWL, raw, rs, rt)
	case 0x23:
		return loadStore(LW, raw, rs, rt)
	case 0x24:
		return loadStore(LBU, raw, rs, rt)
	case 0x25:
		return loadStore(LHU, raw, rs, rt)
	case 0x26:
		return loadStore(LWR, raw, rs, rt)
	case 0x28:
		return loadStore(SB, raw, rs, rt)
	case 0x29:
		return loadStore(SH, raw, rs, rt)
	case 0x2a:
		return loadStore(SWL, raw, rs, rt)
	case 0x2b:
		return loadStore(SW, raw, rs, rt)
	case 0x2e:
		return loadStore(SWR, raw, rs, rt)
	case 0x30:
		return loadStore(LL, raw, rs, rt)
	case 0x33: // PREF
		return nop()
	case 0x38:
		return loadStore(SC, raw, rs, rt)
	}
	return unimpl(raw)
}

func loadStore(op Opcode, raw, rs, rt uint32) Instruction {
	return Instruction{Opcode: op, OpA: rt, OpB: rs, OpC: signExtImm(raw), ImmC: true}
}

func decodeSpecial(raw, rs, rt, rd, sa uint32) Instruction {
	switch fnField(raw) {
	case 0x00: // SLL (and the canonical NOP encoding)
		if raw == 0 {
			return nop()
		}
		return Instruction{Opcode: SLL, OpA: rd, OpB: rt, OpC: sa, ImmC: true}
	case 0x02: // SRL, or ROTR when rs bit 0 is set
		if rs&1 == 1 {
			return Instruction{Opcode: ROR, OpA: rd, OpB: rt, OpC: sa, ImmC: true}
		}
		return Instruction{Opcode: SRL, OpA: rd, OpB: rt, OpC: sa, ImmC: true}
	case 0x03:
		return Instruction{Opcode: SRA, OpA: rd, OpB: rt, OpC: sa, ImmC: true}
	case 0x04:
		return Instruction{Opcode: SLL, OpA: rd, OpB: rt, OpC: rs}
	case 0x06: // SRLV, or ROTRV when sa bit 0 is set
		if sa&1 == 1 {
			return Instruction{Opcode: ROR, OpA: rd, OpB: rt, OpC: rs}
		}
		return Instruction{Opcode: SRL, OpA: rd, OpB: rt, OpC: rs}
	case 0x07:
		return Instruction{Opcode: SRA, OpA: rd, OpB: rt, OpC: rs}
	case 0x08: // JR
		return Instruction{Opcode: Jump, OpA: 0, OpB: rs, OpC: 0, ImmC: true}
	case 0x09: // JALR
		return Instruction{Opcode: Jump, OpA: rd, OpB: rs, OpC: 0, ImmC: true}
	case 0x0a: // MOVZ
		return Instruction{Opcode: MEQ, OpA: rd, OpB: rs, OpC: rt}
	case 0x0b: // MOVN
		return Instruction{Opcode: MNE, OpA: rd, OpB: rs, OpC: rt}
	case 0x0c:
		return Instruction{Opcode: SYSCALL, OpA: RegV0, OpB: RegA0, OpC: RegA1}
	case 0x0d:
		return Instruction{Opcode: BREAK, Raw: raw}
	case 0x0f: // SYNC
		return nop()
	case 0x10: // MFHI
		return Instruction{Opcode: ADD, OpA: rd, OpB: RegHI, OpC: 0, ImmC: true}
	case 0x11: // MTHI
		return Instruction{Opcode: ADD, OpA: RegHI, OpB: rs, OpC: 0, ImmC: true}
	case 0x12: // MFLO
		return Instruction{Opcode: ADD, OpA: rd, OpB: RegLO, OpC: 0, ImmC: true}
	case 0x13: // MTLO
		return Instruction{Opcode: ADD, OpA: RegLO, OpB: rs, OpC: 0, ImmC: true}
	case 0x18:
		return Instruction{Opcode: MULT, OpA: RegLO, OpB: rs, OpC: rt}
	case 0x19:
		return Instruction{Opcode: MULTU, OpA: RegLO, OpB: rs, OpC: rt}
	case 0x1a:
		return Instruction{Opcode: DIV, OpA: RegLO, OpB: rs, OpC: rt}
	case 0x1b:
		return Instruction{Opcode: DIVU, OpA: RegLO, OpB: rs, OpC: rt}
	case 0x20, 0x21: // ADD, ADDU
		return Instruction{Opcode: ADD, OpA: rd, OpB: rs, OpC: rt}
	case 0x22, 0x23: // SUB, SUBU
		return Instruction{Opcode: SUB, OpA: rd, OpB: rs, OpC: rt}
	case 0x24:
		return Instruction{Opcode: AND, OpA: rd, OpB: rs, OpC: rt}
	case 0x25:
		return Instruction{Opcode: OR, OpA: rd, OpB: rs, OpC: rt}
	case 0x26:
		return Instruction{Opcode: XOR, OpA: rd, OpB: rs, OpC: rt}
	case 0x27:
		return Instruction{Opcode: NOR, OpA: rd, OpB: rs, OpC: rt}
	case 0x2a:
		return Instruction{Opcode: SLT, OpA: rd, OpB: rs, OpC: rt}
	case 0x2b:
		return Instruction{Opcode: SLTU, OpA: rd, OpB: rs, OpC: rt}
	case 0x34:
		return Instruction{Opcode: TEQ, OpA: rs, OpB: rt, OpC: 0, ImmC: true}
	}
	return unimpl(raw)
}

func decodeSpecial2(raw, rs, rt, rd uint32) Instruction {
	switch fnField(raw) {
	case 0x00:
		return Instruction{Opcode: MADD, OpA: RegLO, OpB: rs, OpC: rt}
	case 0x01:
		return Instruction{Opcode: MADDU, OpA: RegLO, OpB: rs, OpC: rt}
	case 0x02:
		return Instruction{Opcode: MUL, OpA: rd, OpB: rs, OpC: rt}
	case 0x04:
		return Instruction{Opcode: MSUB, OpA: RegLO, OpB: rs, OpC: rt}
	case 0x05:
		return Instruction{Opcode: MSUBU, OpA: RegLO, OpB: rs, OpC: rt}
	case 0x20:
		return Instruction{Opcode: CLZ, OpA: rd, OpB: rs, OpC: 0, ImmC: true}
	case 0x21:
		return Instruction{Opcode: CLO, OpA: rd, OpB: rs, OpC: 0, ImmC: true}
	}
	return unimpl(raw)
}

func decodeSpecial3(raw, rs, rt, rd, sa uint32) Instruction {
	switch fnField(raw) {
	case 0x00: // EXT rt, rs, pos, size: op_c packs msbd<<5 | lsb
		return Instruction{Opcode: EXT, OpA: rt, OpB: rs, OpC: rd<<5 | sa, ImmC: true}
	case 0x04: // INS rt, rs, pos, size: op_c packs msb<<5 | lsb
		return Instruction{Opcode: INS, OpA: rt, OpB: rs, OpC: rd<<5 | sa, ImmC: true}
	case 0x20: // BSHFL
		switch sa {
		case 0x02:
			return Instruction{Opcode: WSBH, OpA: rd, OpB: rt, OpC: 0, ImmC: true}
		case 0x10: // SEB
			return Instruction{Opcode: SEXT, OpA: rd, OpB: rt, OpC: 0, ImmC: true}
		case 0x18: // SEH
			return Instruction{Opcode: SEXT, OpA: rd, OpB: rt, OpC: 1, ImmC: true}
		}
		return unimpl(raw)
	}
	return unimpl(raw)
}
