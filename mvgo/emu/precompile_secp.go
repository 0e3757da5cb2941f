package emu

import (
	"crypto/elliptic"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Short Weierstrass precompiles over secp256k1 and secp256r1. Points are
// 16 words: affine x then y, little-endian.

func readSecpPoint(ctx *SyscallContext, ptr uint32) secp256k1.JacobianPoint {
	var p secp256k1.JacobianPoint
	words := ctx.ReadSlice(ptr, 16)
	p.X.SetByteSlice(reverseBytes(wordsToBytesLE(words[:8])))
	p.Y.SetByteSlice(reverseBytes(wordsToBytesLE(words[8:])))
	p.Z.SetInt(1)
	return p
}

func writeSecpPoint(ctx *SyscallContext, ptr uint32, p *secp256k1.JacobianPoint) {
	p.ToAffine()
	var x, y [32]byte
	p.X.PutBytes(&x)
	p.Y.PutBytes(&y)
	ctx.WriteSlice(ptr, bytesToWordsLE(reverseBytes(x[:])))
	ctx.WriteSlice(ptr+32, bytesToWordsLE(reverseBytes(y[:])))
}

type secp256k1AddSyscall struct{}

func (secp256k1AddSyscall) NumExtraCycles() uint32 { return 48 }

func (secp256k1AddSyscall) Execute(ctx *SyscallContext, _, pPtr, qPtr uint32) (uint32, bool, error) {
	p := readSecpPoint(ctx, pPtr)
	q := readSecpPoint(ctx, qPtr)
	var out secp256k1.JacobianPoint
	secp256k1.AddNonConst(&p, &q, &out)
	writeSecpPoint(ctx, pPtr, &out)
	return 0, false, nil
}

type secp256k1DoubleSyscall struct{}

func (secp256k1DoubleSyscall) NumExtraCycles() uint32 { return 32 }

func (secp256k1DoubleSyscall) Execute(ctx *SyscallContext, _, pPtr, _ uint32) (uint32, bool, error) {
	p := readSecpPoint(ctx, pPtr)
	var out secp256k1.JacobianPoint
	secp256k1.DoubleNonConst(&p, &out)
	writeSecpPoint(ctx, pPtr, &out)
	return 0, false, nil
}

// secp256k1Decompress recovers y from the x coordinate in the first 8 words at
// A0 and the parity flag in A1, writing y to the following 8 words.
type secp256k1DecompressSyscall struct{}

func (secp256k1DecompressSyscall) NumExtraCycles() uint32 { return 16 }

func (secp256k1DecompressSyscall) Execute(ctx *SyscallContext, _, ptr, odd uint32) (uint32, bool, error) {
	words := ctx.ReadSlice(ptr, 8)
	var x secp256k1.FieldVal
	x.SetByteSlice(reverseBytes(wordsToBytesLE(words)))
	var y secp256k1.FieldVal
	if !secp256k1.DecompressY(&x, odd == 1, &y) {
		return 0, false, fmt.Errorf("secp256k1 decompress: x %#x is not on the curve", words)
	}
	y.Normalize()
	var yb [32]byte
	y.PutBytes(&yb)
	ctx.WriteSlice(ptr+32, bytesToWordsLE(reverseBytes(yb[:])))
	return 0, false, nil
}

func readP256Point(ctx *SyscallContext, ptr uint32) (x, y *big.Int) {
	words := ctx.ReadSlice(ptr, 16)
	x = new(big.Int).SetBytes(reverseBytes(wordsToBytesLE(words[:8])))
	y = new(big.Int).SetBytes(reverseBytes(wordsToBytesLE(words[8:])))
	return x, y
}

func writeP256Point(ctx *SyscallContext, ptr uint32, x, y *big.Int) {
	ctx.WriteSlice(ptr, bytesToWordsLE(reverseBytes(x.FillBytes(make([]byte, 32)))))
	ctx.WriteSlice(ptr+32, bytesToWordsLE(reverseBytes(y.FillBytes(make([]byte, 32)))))
}

type secp256r1AddSyscall struct{}

func (secp256r1AddSyscall) NumExtraCycles() uint32 { return 48 }

func (secp256r1AddSyscall) Execute(ctx *SyscallContext, _, pPtr, qPtr uint32) (uint32, bool, error) {
	x1, y1 := readP256Point(ctx, pPtr)
	x2, y2 := readP256Point(ctx, qPtr)
	x3, y3 := elliptic.P256().Add(x1, y1, x2, y2)
	writeP256Point(ctx, pPtr, x3, y3)
	return 0, false, nil
}

type secp256r1DoubleSyscall struct{}

func (secp256r1DoubleSyscall) NumExtraCycles() uint32 { return 32 }

func (secp256r1DoubleSyscall) Execute(ctx *SyscallContext, _, pPtr, _ uint32) (uint32, bool, error) {
	x, y := readP256Point(ctx, pPtr)
	x2, y2 := elliptic.P256().Double(x, y)
	writeP256Point(ctx, pPtr, x2, y2)
	return 0, false, nil
}

type secp256r1DecompressSyscall struct{}

func (secp256r1DecompressSyscall) NumExtraCycles() uint32 { return 16 }

func (secp256r1DecompressSyscall) Execute(ctx *SyscallContext, _, ptr, odd uint32) (uint32, bool, error) {
	words := ctx.ReadSlice(ptr, 8)
	x := new(big.Int).SetBytes(reverseBytes(wordsToBytesLE(words)))

	curve := elliptic.P256().Params()
	// y^2 = x^3 - 3x + b mod p
	y2 := new(big.Int).Exp(x, big.NewInt(3), curve.P)
	y2.Sub(y2, new(big.Int).Lsh(x, 1))
	y2.Sub(y2, x)
	y2.Add(y2, curve.B)
	y2.Mod(y2, curve.P)
	y := new(big.Int).ModSqrt(y2, curve.P)
	if y == nil {
		return 0, false, fmt.Errorf("secp256r1 decompress: x %#x is not on the curve", words)
	}
	if y.Bit(0) != uint(odd&1) {
		y.Sub(curve.P, y)
	}
	ctx.WriteSlice(ptr+32, bytesToWordsLE(reverseBytes(y.FillBytes(make([]byte, 32)))))
	return 0, false, nil
}
