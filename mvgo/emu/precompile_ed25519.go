package emu

import (
	"fmt"

	"filippo.io/edwards25519"
)

// Ed25519 point decompression. A0 points at 16 words; the second eight hold
// the compressed point (little-endian y), A1 carries the sign bit of x. The
// recovered x coordinate lands in the first eight words.
type ed25519DecompressSyscall struct{}

func (ed25519DecompressSyscall) NumExtraCycles() uint32 { return 16 }

func (ed25519DecompressSyscall) Execute(ctx *SyscallContext, _, ptr, sign uint32) (uint32, bool, error) {
	yWords := ctx.ReadSlice(ptr+32, 8)
	compressed := wordsToBytesLE(yWords)
	compressed[31] = compressed[31]&0x7f | byte(sign&1)<<7

	point, err := new(edwards25519.Point).SetBytes(compressed)
	if err != nil {
		return 0, false, fmt.Errorf("ed25519 decompress: %w", err)
	}
	// SetBytes decodes to Z=1, so X is already affine
	x, _, _, _ := point.ExtendedCoordinates()
	ctx.WriteSlice(ptr, bytesToWordsLE(x.Bytes()))
	return 0, false, nil
}
