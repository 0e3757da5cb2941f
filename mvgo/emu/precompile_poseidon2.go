package emu

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/field/koalabear"
	"github.com/consensys/gnark-crypto/field/koalabear/poseidon2"
)

// Poseidon2 permutation over 16 KoalaBear field elements, in place at A0.
type poseidon2Syscall struct{}

const poseidon2Width = 16

var poseidon2Perm = poseidon2.NewPermutation(poseidon2Width, 6, 21)

func (poseidon2Syscall) NumExtraCycles() uint32 { return 2 * poseidon2Width }

func (poseidon2Syscall) Execute(ctx *SyscallContext, _, statePtr, _ uint32) (uint32, bool, error) {
	words := ctx.ReadSlice(statePtr, poseidon2Width)

	state := make([]koalabear.Element, poseidon2Width)
	for i, w := range words {
		state[i].SetUint64(uint64(w))
	}
	if err := poseidon2Perm.Permutation(state); err != nil {
		return 0, false, err
	}
	for i := range state {
		b := state[i].Bytes()
		words[i] = binary.BigEndian.Uint32(b[:])
	}

	ctx.WriteSlice(statePtr, words)
	return 0, false, nil
}
