package emu

import (
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

// Program is the immutable executable: decoded instructions indexed from
// PCBase in 4-byte steps, plus the initial memory image. It is shared by
// reference between the executor and every record it produces.
type Program struct {
	Instructions []mips.Instruction
	PCStart      uint32
	PCBase       uint32
	NextPC       uint32
	// Image maps word-aligned addresses to their initial contents.
	Image map[uint32]uint32
}

// NewProgram builds a program from pre-decoded instructions, for tests and
// program builders. NextPC defaults to PCStart + 4.
func NewProgram(instructions []mips.Instruction, pcStart, pcBase uint32) *Program {
	return &Program{
		Instructions: instructions,
		PCStart:      pcStart,
		PCBase:       pcBase,
		NextPC:       pcStart + 4,
		Image:        make(map[uint32]uint32),
	}
}

// Fetch returns the instruction at pc, or false if pc is outside the program.
func (p *Program) Fetch(pc uint32) (mips.Instruction, bool) {
	if pc < p.PCBase || (pc-p.PCBase)&3 != 0 {
		return mips.Instruction{}, false
	}
	idx := (pc - p.PCBase) / 4
	if idx >= uint32(len(p.Instructions)) {
		return mips.Instruction{}, false
	}
	return p.Instructions[idx], true
}

// Contains reports whether pc addresses an instruction of this program.
func (p *Program) Contains(pc uint32) bool {
	_, ok := p.Fetch(pc)
	return ok
}

type programJSON struct {
	PCStart      uint32            `json:"pcStart"`
	PCBase       uint32            `json:"pcBase"`
	NextPC       uint32            `json:"nextPc"`
	Instructions []uint32          `json:"instructions"`
	Image        map[uint32]uint32 `json:"image"`
}

// MarshalJSON persists the program as raw instruction words; decoding is
// deterministic, so this round-trips for any program built from machine code.
func (p *Program) MarshalJSON() ([]byte, error) {
	out := programJSON{
		PCStart:      p.PCStart,
		PCBase:       p.PCBase,
		NextPC:       p.NextPC,
		Instructions: make([]uint32, len(p.Instructions)),
		Image:        p.Image,
	}
	for i, ins := range p.Instructions {
		out.Instructions[i] = ins.Raw
	}
	return json.Marshal(out)
}

func (p *Program) UnmarshalJSON(data []byte) error {
	var in programJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.PCStart = in.PCStart
	p.PCBase = in.PCBase
	p.NextPC = in.NextPC
	p.Instructions = make([]mips.Instruction, len(in.Instructions))
	for i, raw := range in.Instructions {
		p.Instructions[i] = mips.Decode(raw)
	}
	p.Image = in.Image
	if p.Image == nil {
		p.Image = make(map[uint32]uint32)
	}
	return nil
}

// Digest is a keccak256 commitment over the instruction stream and memory
// image, used to key checkpoints against the program they came from.
func (p *Program) Digest() [32]byte {
	buf := make([]byte, 0, len(p.Instructions)*4+len(p.Image)*8+12)
	buf = binary.BigEndian.AppendUint32(buf, p.PCBase)
	buf = binary.BigEndian.AppendUint32(buf, p.PCStart)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Instructions)))
	for _, ins := range p.Instructions {
		buf = binary.BigEndian.AppendUint32(buf, ins.Raw)
	}
	addrs := make([]uint32, 0, len(p.Image))
	for addr := range p.Image {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, addr := range addrs {
		buf = binary.BigEndian.AppendUint32(buf, addr)
		buf = binary.BigEndian.AppendUint32(buf, p.Image[addr])
	}
	var out [32]byte
	copy(out[:], crypto.Keccak256(buf))
	return out
}
