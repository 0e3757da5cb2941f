package emu

import "math/bits"

// SHA-256 message schedule extension over a 64-word block in guest memory:
// words 16..63 are filled in from words 0..15.
type shaExtendSyscall struct{}

func (shaExtendSyscall) NumExtraCycles() uint32 { return 48 * 5 }

func (shaExtendSyscall) Execute(ctx *SyscallContext, _, wPtr, _ uint32) (uint32, bool, error) {
	for i := uint32(16); i < 64; i++ {
		w15 := ctx.Read(wPtr + (i-15)*4)
		s0 := bits.RotateLeft32(w15, -7) ^ bits.RotateLeft32(w15, -18) ^ (w15 >> 3)
		w2 := ctx.Read(wPtr + (i-2)*4)
		s1 := bits.RotateLeft32(w2, -17) ^ bits.RotateLeft32(w2, -19) ^ (w2 >> 10)
		w16 := ctx.Read(wPtr + (i-16)*4)
		w7 := ctx.Read(wPtr + (i-7)*4)
		ctx.Write(wPtr+i*4, w16+s0+w7+s1)
	}
	return 0, false, nil
}

var shaK = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5, 0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3, 0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc, 0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7, 0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13, 0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3, 0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5, 0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208, 0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

// SHA-256 compression: folds the 64-word schedule at A0 into the 8-word hash
// state at A1.
type shaCompressSyscall struct{}

func (shaCompressSyscall) NumExtraCycles() uint32 { return 64 + 8 + 8 }

func (shaCompressSyscall) Execute(ctx *SyscallContext, _, wPtr, hPtr uint32) (uint32, bool, error) {
	state := ctx.ReadSlice(hPtr, 8)
	a, b, c, d, e, f, g, h := state[0], state[1], state[2], state[3], state[4], state[5], state[6], state[7]

	for i := uint32(0); i < 64; i++ {
		w := ctx.Read(wPtr + i*4)
		s1 := bits.RotateLeft32(e, -6) ^ bits.RotateLeft32(e, -11) ^ bits.RotateLeft32(e, -25)
		ch := (e & f) ^ (^e & g)
		t1 := h + s1 + ch + shaK[i] + w
		s0 := bits.RotateLeft32(a, -2) ^ bits.RotateLeft32(a, -13) ^ bits.RotateLeft32(a, -22)
		maj := (a & b) ^ (a & c) ^ (b & c)
		t2 := s0 + maj

		h, g, f, e, d, c, b, a = g, f, e, d+t1, c, b, a, t1+t2
	}

	ctx.WriteSlice(hPtr, []uint32{
		state[0] + a, state[1] + b, state[2] + c, state[3] + d,
		state[4] + e, state[5] + f, state[6] + g, state[7] + h,
	})
	return 0, false, nil
}
