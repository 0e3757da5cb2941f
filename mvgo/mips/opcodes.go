package mips

// Opcode is the decoded operation of an instruction. The set is a superset of
// MIPS32: conditional moves, jumps and bit-field ops are normalized into
// synthetic opcodes so the executor can dispatch on a flat enum.
type Opcode uint8

const (
	ADD Opcode = iota
	SUB
	MULT
	MULTU
	MUL
	DIV
	DIVU
	MOD
	MODU
	SLL
	SRL
	SRA
	ROR
	SLT
	SLTU
	AND
	OR
	XOR
	NOR
	CLZ
	CLO

	LB
	LBU
	LH
	LHU
	LW
	LWL
	LWR
	LL
	SB
	SH
	SW
	SWL
	SWR
	SC

	BEQ
	BNE
	BLEZ
	BGTZ
	BLTZ
	BGEZ

	Jump
	Jumpi
	JumpDirect

	MEQ
	MNE
	SEXT
	WSBH
	EXT
	INS
	MADD
	MADDU
	MSUB
	MSUBU
	TEQ

	SYSCALL
	BREAK
	UNIMPL

	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	ADD: "add", SUB: "sub", MULT: "mult", MULTU: "multu", MUL: "mul",
	DIV: "div", DIVU: "divu", MOD: "mod", MODU: "modu",
	SLL: "sll", SRL: "srl", SRA: "sra", ROR: "ror",
	SLT: "slt", SLTU: "sltu",
	AND: "and", OR: "or", XOR: "xor", NOR: "nor",
	CLZ: "clz", CLO: "clo",
	LB: "lb", LBU: "lbu", LH: "lh", LHU: "lhu", LW: "lw",
	LWL: "lwl", LWR: "lwr", LL: "ll",
	SB: "sb", SH: "sh", SW: "sw", SWL: "swl", SWR: "swr", SC: "sc",
	BEQ: "beq", BNE: "bne", BLEZ: "blez", BGTZ: "bgtz", BLTZ: "bltz", BGEZ: "bgez",
	Jump: "jump", Jumpi: "jumpi", JumpDirect: "jumpdirect",
	MEQ: "meq", MNE: "mne", SEXT: "sext", WSBH: "wsbh", EXT: "ext", INS: "ins",
	MADD: "madd", MADDU: "maddu", MSUB: "msub", MSUBU: "msubu", TEQ: "teq",
	SYSCALL: "syscall", BREAK: "break", UNIMPL: "unimpl",
}

func (op Opcode) String() string {
	if op >= numOpcodes {
		return "invalid"
	}
	return opcodeNames[op]
}

// NumOpcodes is the size of the opcode enum, for counter arrays.
const NumOpcodes = int(numOpcodes)

// IsALU reports whether the opcode is handled by the plain ALU path,
// writing a single destination and no HI result.
func (op Opcode) IsALU() bool {
	switch op {
	case ADD, SUB, MUL, MOD, MODU, SLL, SRL, SRA, ROR, SLT, SLTU,
		AND, OR, XOR, NOR, CLZ, CLO:
		return true
	}
	return false
}

// IsMulDiv reports whether the opcode writes the HI register in addition to
// its primary destination (the LO register slot).
func (op Opcode) IsMulDiv() bool {
	switch op {
	case MULT, MULTU, DIV, DIVU, MADD, MADDU, MSUB, MSUBU:
		return true
	}
	return false
}

func (op Opcode) IsLoad() bool {
	switch op {
	case LB, LBU, LH, LHU, LW, LWL, LWR, LL:
		return true
	}
	return false
}

func (op Opcode) IsStore() bool {
	switch op {
	case SB, SH, SW, SWL, SWR, SC:
		return true
	}
	return false
}

func (op Opcode) IsBranch() bool {
	switch op {
	case BEQ, BNE, BLEZ, BGTZ, BLTZ, BGEZ:
		return true
	}
	return false
}

func (op Opcode) IsJump() bool {
	switch op {
	case Jump, Jumpi, JumpDirect:
		return true
	}
	return false
}

// IsMisc covers the read-modify-write style instructions that carry the
// previous destination value in their event.
func (op Opcode) IsMisc() bool {
	switch op {
	case MEQ, MNE, SEXT, WSBH, EXT, INS, TEQ:
		return true
	}
	return false
}
