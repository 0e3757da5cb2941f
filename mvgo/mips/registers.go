package mips

// Registers are addressed uniformly as memory at addresses 0..NumRegisters:
// the 32 general purpose registers followed by the LO and HI multiply/divide
// result slots.
const (
	RegZero = 0
	RegV0   = 2 // syscall number and return value
	RegV1   = 3
	RegA0   = 4 // first syscall argument
	RegA1   = 5 // second syscall argument
	RegSP   = 29
	RegRA   = 31 // link register

	RegLO = 32
	RegHI = 33

	NumRegisters = 34
)

var regNames = [NumRegisters]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
	"lo", "hi",
}

// RegisterName returns the conventional ABI name of a register slot.
func RegisterName(r uint32) string {
	if r < NumRegisters {
		return regNames[r]
	}
	return "?"
}
