package emu

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// Keccak sponge: hashes A2 bytes at A0 and writes the 256-bit digest over the
// eight words at A1. The input is absorbed untraced; the digest write is the
// precompile's memory footprint, and the sponge chip re-reads the input when
// constraining the permutation.
type keccakSpongeSyscall struct{}

func (keccakSpongeSyscall) NumExtraCycles() uint32 { return 8 }

func (keccakSpongeSyscall) Execute(ctx *SyscallContext, _, inPtr, outPtr uint32) (uint32, bool, error) {
	nbytes := ctx.e.peek(6) // a2
	input := ctx.Bytes(inPtr, nbytes)
	digest := crypto.Keccak256(input)
	ctx.WriteSlice(outPtr, bytesToWordsLE(digest))
	return 0, false, nil
}
