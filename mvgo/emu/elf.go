package emu

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

const (
	// stackTop is where the guest stack begins; the loader seeds the stack
	// pointer register and a minimal argc/argv/envp frame there.
	stackTop uint32 = 0x7f_ff_d0_00
)

// LoadELF turns a 32-bit MIPS ELF binary into a Program: the executable
// segments become the decoded instruction stream, every loaded byte lands in
// the initial memory image, and the entrypoint becomes the start pc.
func LoadELF(f *elf.File) (*Program, error) {
	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("only 32-bit binaries are supported, got %s", f.Class)
	}
	if f.Machine != elf.EM_MIPS {
		return nil, fmt.Errorf("not a MIPS binary: %s", f.Machine)
	}

	image := make(map[uint32]uint32)
	textStart := ^uint32(0)
	textEnd := uint32(0)

	for i, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Vaddr+prog.Memsz >= 1<<32 {
			return nil, fmt.Errorf("program segment %d out of 32-bit address space: %x-%x", i, prog.Vaddr, prog.Vaddr+prog.Memsz)
		}
		r := io.Reader(io.NewSectionReader(prog, 0, int64(prog.Filesz)))
		if prog.Filesz > prog.Memsz {
			return nil, fmt.Errorf("invalid PT_LOAD program segment %d, file size (%d) > mem size (%d)", i, prog.Filesz, prog.Memsz)
		}
		if prog.Filesz < prog.Memsz {
			r = io.MultiReader(r, bytes.NewReader(make([]byte, prog.Memsz-prog.Filesz)))
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read program segment %d: %w", i, err)
		}
		for off, b := range data {
			addr := uint32(prog.Vaddr) + uint32(off)
			shift := (addr & 3) * 8
			aligned := addr &^ 3
			image[aligned] = image[aligned]&^(0xff<<shift) | uint32(b)<<shift
		}
		if prog.Flags&elf.PF_X != 0 {
			if uint32(prog.Vaddr) < textStart {
				textStart = uint32(prog.Vaddr)
			}
			if end := uint32(prog.Vaddr + prog.Memsz); end > textEnd {
				textEnd = end
			}
		}
	}
	if textStart >= textEnd {
		return nil, fmt.Errorf("no executable segment found")
	}
	textStart &^= 3

	instructions := make([]mips.Instruction, 0, (textEnd-textStart)/4)
	for addr := textStart; addr < textEnd; addr += 4 {
		var raw uint32
		if word, ok := image[addr]; ok {
			raw = wordForDecode(f, word)
		}
		instructions = append(instructions, mips.Decode(raw))
	}

	entry := uint32(f.Entry)
	program := NewProgram(instructions, entry, textStart)
	program.Image = image

	seedStack(program)
	return program, nil
}

// wordForDecode undoes the little-endian image packing for big-endian
// binaries, so the decoder always sees the instruction as encoded.
func wordForDecode(f *elf.File, word uint32) uint32 {
	if f.ByteOrder == nil || f.ByteOrder.String() == "LittleEndian" {
		return word
	}
	return word<<24 | word&0xff00<<8 | word>>8&0xff00 | word>>24
}

// seedStack places the stack pointer and an empty argc/argv/envp frame.
// Registers live at the bottom of the address space, so the image can seed
// them directly.
func seedStack(p *Program) {
	p.Image[mips.RegSP] = stackTop
	p.Image[stackTop] = 0   // argc = 0
	p.Image[stackTop+4] = 0 // argv terminator
	p.Image[stackTop+8] = 0 // envp terminator
}
