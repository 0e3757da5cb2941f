package emu

import (
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bn254"
)

// Pairing-curve point add/double. A point occupies 2*fpWords words: the affine
// x then y coordinate, little-endian. Add reads q from A1 and accumulates into
// p at A0; Double works on p in place.

const (
	bn254FpWords    = 8
	bls12381FpWords = 12
)

func readBn254Point(ctx *SyscallContext, ptr uint32) bn254.G1Affine {
	var p bn254.G1Affine
	words := ctx.ReadSlice(ptr, 2*bn254FpWords)
	p.X.SetBytes(reverseBytes(wordsToBytesLE(words[:bn254FpWords])))
	p.Y.SetBytes(reverseBytes(wordsToBytesLE(words[bn254FpWords:])))
	return p
}

func writeBn254Point(ctx *SyscallContext, ptr uint32, p *bn254.G1Affine) {
	x := p.X.Bytes()
	y := p.Y.Bytes()
	ctx.WriteSlice(ptr, bytesToWordsLE(reverseBytes(x[:])))
	ctx.WriteSlice(ptr+4*bn254FpWords, bytesToWordsLE(reverseBytes(y[:])))
}

type bn254AddSyscall struct{}

func (bn254AddSyscall) NumExtraCycles() uint32 { return 6 * bn254FpWords }

func (bn254AddSyscall) Execute(ctx *SyscallContext, _, pPtr, qPtr uint32) (uint32, bool, error) {
	p := readBn254Point(ctx, pPtr)
	q := readBn254Point(ctx, qPtr)
	var jac, qJac bn254.G1Jac
	jac.FromAffine(&p)
	qJac.FromAffine(&q)
	jac.AddAssign(&qJac)
	var out bn254.G1Affine
	out.FromJacobian(&jac)
	writeBn254Point(ctx, pPtr, &out)
	return 0, false, nil
}

type bn254DoubleSyscall struct{}

func (bn254DoubleSyscall) NumExtraCycles() uint32 { return 4 * bn254FpWords }

func (bn254DoubleSyscall) Execute(ctx *SyscallContext, _, pPtr, _ uint32) (uint32, bool, error) {
	p := readBn254Point(ctx, pPtr)
	var jac bn254.G1Jac
	jac.FromAffine(&p)
	jac.DoubleAssign()
	var out bn254.G1Affine
	out.FromJacobian(&jac)
	writeBn254Point(ctx, pPtr, &out)
	return 0, false, nil
}

func readBls12381Point(ctx *SyscallContext, ptr uint32) bls12381.G1Affine {
	var p bls12381.G1Affine
	words := ctx.ReadSlice(ptr, 2*bls12381FpWords)
	p.X.SetBytes(reverseBytes(wordsToBytesLE(words[:bls12381FpWords])))
	p.Y.SetBytes(reverseBytes(wordsToBytesLE(words[bls12381FpWords:])))
	return p
}

func writeBls12381Point(ctx *SyscallContext, ptr uint32, p *bls12381.G1Affine) {
	x := p.X.Bytes()
	y := p.Y.Bytes()
	ctx.WriteSlice(ptr, bytesToWordsLE(reverseBytes(x[:])))
	ctx.WriteSlice(ptr+4*bls12381FpWords, bytesToWordsLE(reverseBytes(y[:])))
}

type bls12381AddSyscall struct{}

func (bls12381AddSyscall) NumExtraCycles() uint32 { return 6 * bls12381FpWords }

func (bls12381AddSyscall) Execute(ctx *SyscallContext, _, pPtr, qPtr uint32) (uint32, bool, error) {
	p := readBls12381Point(ctx, pPtr)
	q := readBls12381Point(ctx, qPtr)
	var jac, qJac bls12381.G1Jac
	jac.FromAffine(&p)
	qJac.FromAffine(&q)
	jac.AddAssign(&qJac)
	var out bls12381.G1Affine
	out.FromJacobian(&jac)
	writeBls12381Point(ctx, pPtr, &out)
	return 0, false, nil
}

type bls12381DoubleSyscall struct{}

func (bls12381DoubleSyscall) NumExtraCycles() uint32 { return 4 * bls12381FpWords }

func (bls12381DoubleSyscall) Execute(ctx *SyscallContext, _, pPtr, _ uint32) (uint32, bool, error) {
	p := readBls12381Point(ctx, pPtr)
	var jac bls12381.G1Jac
	jac.FromAffine(&p)
	jac.DoubleAssign()
	var out bls12381.G1Affine
	out.FromJacobian(&jac)
	writeBls12381Point(ctx, pPtr, &out)
	return 0, false, nil
}
