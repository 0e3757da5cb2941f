package emu

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Uint256Mul computes x*y mod m in place at A0. A1 points at y followed by the
// modulus; a zero modulus means 2^256.
type uint256MulSyscall struct{}

func (uint256MulSyscall) NumExtraCycles() uint32 { return 32 }

func (uint256MulSyscall) Execute(ctx *SyscallContext, _, xPtr, yPtr uint32) (uint32, bool, error) {
	x := uint256FromWords(ctx.ReadSlice(xPtr, 8))
	y := uint256FromWords(ctx.ReadSlice(yPtr, 8))
	m := uint256FromWords(ctx.ReadSlice(yPtr+32, 8))

	var out uint256.Int
	if m.IsZero() {
		out.Mul(x, y)
	} else {
		out.MulMod(x, y, m)
	}
	ctx.WriteSlice(xPtr, uint256ToWords(&out))
	return 0, false, nil
}

// U256x2048Mul multiplies the 256-bit value at A0 by the 2048-bit value at A1.
// The 2048-bit low part of the product goes to the pointer in A2, the 256-bit
// high part to the pointer in A3.
type u256x2048MulSyscall struct{}

func (u256x2048MulSyscall) NumExtraCycles() uint32 { return 8 + 64 + 64 + 8 }

func (u256x2048MulSyscall) Execute(ctx *SyscallContext, _, xPtr, yPtr uint32) (uint32, bool, error) {
	loPtr := ctx.e.peek(6) // a2
	hiPtr := ctx.e.peek(7) // a3

	x := new(big.Int).SetBytes(reverseBytes(wordsToBytesLE(ctx.ReadSlice(xPtr, 8))))
	y := new(big.Int).SetBytes(reverseBytes(wordsToBytesLE(ctx.ReadSlice(yPtr, 64))))

	prod := new(big.Int).Mul(x, y)
	lo := new(big.Int).And(prod, new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 2048), big.NewInt(1)))
	hi := new(big.Int).Rsh(prod, 2048)

	ctx.WriteSlice(loPtr, bytesToWordsLE(reverseBytes(lo.FillBytes(make([]byte, 256)))))
	ctx.WriteSlice(hiPtr, bytesToWordsLE(reverseBytes(hi.FillBytes(make([]byte, 32)))))
	return 0, false, nil
}

func uint256FromWords(words []uint32) *uint256.Int {
	var out uint256.Int
	out.SetBytes(reverseBytes(wordsToBytesLE(words)))
	return &out
}

func uint256ToWords(v *uint256.Int) []uint32 {
	b := v.Bytes32()
	return bytesToWordsLE(reverseBytes(b[:]))
}
