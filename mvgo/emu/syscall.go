package emu

import (
	"fmt"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

// Syscall codes. The high bytes encode scheduling hints for the proof backend
// (cycle weight, whether the call owns a table); the executor treats codes as
// opaque keys.
const (
	SyscallHalt                 uint32 = 0x00_00_00_00
	SyscallRead                 uint32 = 0x00_00_00_01
	SyscallWrite                uint32 = 0x00_00_00_02
	SyscallEnterUnconstrained   uint32 = 0x00_00_00_03
	SyscallExitUnconstrained    uint32 = 0x00_00_00_04
	SyscallShaExtend            uint32 = 0x00_30_01_05
	SyscallShaCompress          uint32 = 0x00_01_01_06
	SyscallEd25519Decompress    uint32 = 0x00_00_01_08
	SyscallKeccakSponge         uint32 = 0x00_01_01_09
	SyscallSecp256k1Add         uint32 = 0x00_01_01_0A
	SyscallSecp256k1Double      uint32 = 0x00_00_01_0B
	SyscallSecp256k1Decompress  uint32 = 0x00_00_01_0C
	SyscallBn254Add             uint32 = 0x00_01_01_0E
	SyscallBn254Double          uint32 = 0x00_00_01_0F
	SyscallCommit               uint32 = 0x00_00_00_10
	SyscallCommitDeferredProofs uint32 = 0x00_00_00_1A
	SyscallVerifyProof          uint32 = 0x00_00_00_1B
	SyscallUint256Mul           uint32 = 0x00_01_01_1D
	SyscallBls12381Add          uint32 = 0x00_01_01_1E
	SyscallBls12381Double       uint32 = 0x00_00_01_1F
	SyscallSecp256r1Add         uint32 = 0x00_01_01_2C
	SyscallSecp256r1Double      uint32 = 0x00_00_01_2D
	SyscallSecp256r1Decompress  uint32 = 0x00_00_01_2E
	SyscallU256x2048Mul         uint32 = 0x00_01_01_2F
	SyscallPoseidon2Permute     uint32 = 0x00_01_01_30
	SyscallHintLen              uint32 = 0xF0_00_00_00
	SyscallHintRead             uint32 = 0xF1_00_00_00
)

// Syscall is one registered handler. Execute may mutate the executor through
// the context; a true second return value means the word is written to V0,
// otherwise V0 receives the syscall code back.
type Syscall interface {
	Execute(ctx *SyscallContext, code, a0, a1 uint32) (uint32, bool, error)
	// NumExtraCycles is the advertised upper bound on the clock advance the
	// call adds on top of the regular per-cycle increment. The shard boundary
	// margin is derived from the maximum over the registry.
	NumExtraCycles() uint32
}

// SyscallContext is the handler's window into the executor for the duration of
// one syscall. Traced memory traffic goes through Read/Write helpers, which
// advance a private clock so every access gets a distinct timestamp; NextPC
// and NextNextPC preset the post-cycle pc chain and may be overridden.
type SyscallContext struct {
	e *Executor

	NextPC     uint32
	NextNextPC uint32

	clk   uint32
	shard uint32

	localMem   map[uint32]*MemoryLocalEvent
	memReads   []MemoryReadRecord
	memWrites  []MemoryWriteRecord
	precompile bool
}

// Read performs a traced word read at the context clock.
func (c *SyscallContext) Read(addr uint32) uint32 {
	c.precompile = true
	rec := c.e.mr(addr, c.shard, c.clk, c.localMem)
	c.memReads = append(c.memReads, rec)
	c.clk++
	return rec.Value
}

// ReadSlice reads n consecutive words starting at addr.
func (c *SyscallContext) ReadSlice(addr uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = c.Read(addr + uint32(i)*4)
	}
	return out
}

// Write performs a traced word write at the context clock.
func (c *SyscallContext) Write(addr, value uint32) {
	c.precompile = true
	rec := c.e.mw(addr, value, c.shard, c.clk, c.localMem)
	c.memWrites = append(c.memWrites, rec)
	c.clk++
}

// WriteSlice writes consecutive words starting at addr.
func (c *SyscallContext) WriteSlice(addr uint32, words []uint32) {
	for i, w := range words {
		c.Write(addr+uint32(i)*4, w)
	}
}

// Byte peeks a single byte without a traced access. Words pack bytes
// little-endian, matching the load semantics.
func (c *SyscallContext) Byte(addr uint32) byte {
	word := c.e.peek(addr &^ 3)
	return byte(word >> ((addr & 3) * 8))
}

// Bytes peeks n bytes starting at addr.
func (c *SyscallContext) Bytes(addr, n uint32) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = c.Byte(addr + uint32(i))
	}
	return out
}

// Postprocess drains the local-memory deltas this syscall caused, sorted by
// address, for inclusion in the precompile event.
func (c *SyscallContext) Postprocess() []MemoryLocalEvent {
	return drainLocal(c.localMem)
}

// executeSyscallInstr runs the SYSCALL instruction: traced reads of the two
// argument registers, an untraced read of the code register, handler dispatch,
// the V0 result write, and event assembly.
func (e *Executor) executeSyscallInstr(ins mips.Instruction, pc, clk, shard uint32, nextPC, nextNextPC *uint32) (a, b, c uint32, err error) {
	c = e.mrCPU(ins.OpC, PositionC)
	b = e.mrCPU(ins.OpB, PositionB)
	id := e.peek(ins.OpA)

	handler, ok := e.syscalls[id]
	if !ok {
		return 0, 0, 0, unsupportedSyscallErr(id)
	}
	if e.unconstrained && id != SyscallExitUnconstrained && id != SyscallWrite {
		return 0, 0, 0, invalidSyscallUsageErr(id)
	}
	if !e.unconstrained {
		e.State.SyscallCounts[id]++
		e.localCounts.Syscalls++
		if e.report != nil {
			e.report.SyscallCounts[id]++
		}
	}

	ctx := &SyscallContext{
		e:          e,
		NextPC:     *nextPC,
		NextNextPC: *nextNextPC,
		clk:        clk + uint32(PositionMemory),
		shard:      shard,
		localMem:   make(map[uint32]*MemoryLocalEvent),
	}
	ret, hasRet, err := handler.Execute(ctx, id, b, c)
	if err != nil {
		return 0, 0, 0, err
	}
	a = id
	if hasRet {
		a = ret
	}
	e.mwCPU(ins.OpA, a, PositionA)
	e.State.Clk += handler.NumExtraCycles()
	*nextPC = ctx.NextPC
	*nextNextPC = ctx.NextNextPC

	if e.traceCycle && e.opRecord.A != nil {
		sev := SyscallEvent{
			PC: pc, NextPC: *nextPC, Shard: shard, Clk: clk,
			SyscallID: id, Arg1: b, Arg2: c,
			ARecord: e.opRecord.A.Write,
		}
		e.Record.SyscallEvents = append(e.Record.SyscallEvents, sev)
		if ctx.precompile {
			e.Record.PrecompileEvents = append(e.Record.PrecompileEvents, PrecompileEvent{
				Syscall:   sev,
				MemReads:  ctx.memReads,
				MemWrites: ctx.memWrites,
				LocalMem:  ctx.Postprocess(),
			})
		}
	}
	return a, b, c, nil
}

// DefaultSyscalls is the registry every executor starts with.
func DefaultSyscalls() map[uint32]Syscall {
	return map[uint32]Syscall{
		SyscallHalt:                 haltSyscall{},
		SyscallRead:                 readSyscall{},
		SyscallWrite:                writeSyscall{},
		SyscallEnterUnconstrained:   enterUnconstrainedSyscall{},
		SyscallExitUnconstrained:    exitUnconstrainedSyscall{},
		SyscallCommit:               commitSyscall{},
		SyscallCommitDeferredProofs: commitDeferredProofsSyscall{},
		SyscallVerifyProof:          verifyProofSyscall{},
		SyscallHintLen:              hintLenSyscall{},
		SyscallHintRead:             hintReadSyscall{},

		SyscallShaExtend:           shaExtendSyscall{},
		SyscallShaCompress:         shaCompressSyscall{},
		SyscallKeccakSponge:        keccakSpongeSyscall{},
		SyscallPoseidon2Permute:    poseidon2Syscall{},
		SyscallEd25519Decompress:   ed25519DecompressSyscall{},
		SyscallSecp256k1Add:        secp256k1AddSyscall{},
		SyscallSecp256k1Double:     secp256k1DoubleSyscall{},
		SyscallSecp256k1Decompress: secp256k1DecompressSyscall{},
		SyscallSecp256r1Add:        secp256r1AddSyscall{},
		SyscallSecp256r1Double:     secp256r1DoubleSyscall{},
		SyscallSecp256r1Decompress: secp256r1DecompressSyscall{},
		SyscallBn254Add:            bn254AddSyscall{},
		SyscallBn254Double:         bn254DoubleSyscall{},
		SyscallBls12381Add:         bls12381AddSyscall{},
		SyscallBls12381Double:      bls12381DoubleSyscall{},
		SyscallUint256Mul:          uint256MulSyscall{},
		SyscallU256x2048Mul:        u256x2048MulSyscall{},
	}
}

// SubproofVerifier checks a deferred proof against the verifying key digest
// and public values digest the guest committed to.
type SubproofVerifier interface {
	Verify(proof []byte, vkDigest, pvDigest [8]uint32) error
}

type haltSyscall struct{}

func (haltSyscall) NumExtraCycles() uint32 { return 0 }

func (haltSyscall) Execute(ctx *SyscallContext, _, exitCode, _ uint32) (uint32, bool, error) {
	e := ctx.e
	e.State.Exited = true
	e.State.ExitCode = exitCode
	ctx.NextPC = 0
	ctx.NextNextPC = 0
	if exitCode != 0 {
		return 0, false, haltErr(exitCode)
	}
	return 0, false, nil
}

type writeSyscall struct{}

func (writeSyscall) NumExtraCycles() uint32 { return 0 }

// Execute handles WRITE(fd, buf). The byte count rides in A2. Stdout and
// stderr are buffered until postprocess; fd 4 is the hint channel whose writes
// survive unconstrained rollback; higher fds dispatch to registered hooks.
func (writeSyscall) Execute(ctx *SyscallContext, _, fd, ptr uint32) (uint32, bool, error) {
	e := ctx.e
	nbytes := e.peek(6) // a2
	buf := ctx.Bytes(ptr, nbytes)
	switch fd {
	case 1:
		e.stdoutBuf.Write(buf)
	case 2:
		e.stderrBuf.Write(buf)
	case 4:
		e.State.InputStream = append(e.State.InputStream, buf)
	default:
		if hook, ok := e.hooks.Get(fd); ok {
			e.State.InputStream = append(e.State.InputStream, hook(HookEnv{e}, buf)...)
		} else {
			e.log.Warn("write to unknown file descriptor dropped", "fd", fd, "len", nbytes)
		}
	}
	return 0, false, nil
}

type readSyscall struct{}

func (readSyscall) NumExtraCycles() uint32 { return 0 }

// Execute handles READ(fd, buf): copies up to A2 bytes from the current input
// buffer into guest memory and returns the number of bytes consumed.
func (readSyscall) Execute(ctx *SyscallContext, _, _, ptr uint32) (uint32, bool, error) {
	e := ctx.e
	nbytes := e.peek(6) // a2
	if e.State.InputStreamPtr >= len(e.State.InputStream) {
		return 0, true, nil
	}
	buf := e.State.InputStream[e.State.InputStreamPtr]
	if uint32(len(buf)) < nbytes {
		nbytes = uint32(len(buf))
	}
	writeBytes(e, ptr, buf[:nbytes])
	e.State.InputStream[e.State.InputStreamPtr] = buf[nbytes:]
	if len(buf[nbytes:]) == 0 {
		e.State.InputStreamPtr++
	}
	return nbytes, true, nil
}

type enterUnconstrainedSyscall struct{}

func (enterUnconstrainedSyscall) NumExtraCycles() uint32 { return 0 }

func (enterUnconstrainedSyscall) Execute(ctx *SyscallContext, _, _, _ uint32) (uint32, bool, error) {
	e := ctx.e
	if e.unconstrained {
		return 0, false, invalidSyscallUsageErr(SyscallEnterUnconstrained)
	}
	e.unconstrainedState = newForkState(e.State, e.opRecord)
	e.unconstrained = true
	return 1, true, nil
}

type exitUnconstrainedSyscall struct{}

func (exitUnconstrainedSyscall) NumExtraCycles() uint32 { return 0 }

func (exitUnconstrainedSyscall) Execute(ctx *SyscallContext, _, _, _ uint32) (uint32, bool, error) {
	e := ctx.e
	if !e.unconstrained {
		return 0, false, invalidSyscallUsageErr(SyscallExitUnconstrained)
	}
	fork := e.unconstrainedState
	for addr, rec := range fork.MemoryDiff {
		if rec == nil {
			e.State.Memory.Remove(addr)
		} else {
			e.State.Memory.Insert(addr, *rec)
		}
	}
	e.State.Clk = fork.Clk
	e.State.InputStreamPtr = fork.InputStreamPtr
	e.State.ProofStreamPtr = fork.ProofStreamPtr
	e.opRecord = fork.OpRecord
	ctx.NextPC = fork.NextPC
	ctx.NextNextPC = fork.NextPC + 4
	e.unconstrained = false
	e.unconstrainedState = nil
	return 0, true, nil
}

type commitSyscall struct{}

func (commitSyscall) NumExtraCycles() uint32 { return 0 }

func (commitSyscall) Execute(ctx *SyscallContext, _, wordIdx, word uint32) (uint32, bool, error) {
	e := ctx.e
	if wordIdx >= 8 {
		return 0, false, fmt.Errorf("commit: word index %d out of range", wordIdx)
	}
	e.Record.PublicValues.CommittedValueDigest[wordIdx] = word
	e.Record.PublicValues.CommittedValueDigests++
	return 0, false, nil
}

type commitDeferredProofsSyscall struct{}

func (commitDeferredProofsSyscall) NumExtraCycles() uint32 { return 0 }

func (commitDeferredProofsSyscall) Execute(ctx *SyscallContext, _, wordIdx, word uint32) (uint32, bool, error) {
	e := ctx.e
	if wordIdx >= 8 {
		return 0, false, fmt.Errorf("commit deferred proofs: word index %d out of range", wordIdx)
	}
	e.Record.PublicValues.DeferredProofsDigest[wordIdx] = word
	return 0, false, nil
}

type verifyProofSyscall struct{}

func (verifyProofSyscall) NumExtraCycles() uint32 { return 0 }

// Execute pops the next proof off the proof stream and, unless verification is
// deferred to an outer run, checks it against the vkey and public-values
// digests the guest supplied.
func (verifyProofSyscall) Execute(ctx *SyscallContext, _, vkPtr, pvPtr uint32) (uint32, bool, error) {
	e := ctx.e
	if e.State.ProofStreamPtr >= len(e.State.ProofStream) {
		return 0, false, fmt.Errorf("verify proof: proof stream exhausted at pc %#x", e.State.PC)
	}
	proof := e.State.ProofStream[e.State.ProofStreamPtr]
	e.State.ProofStreamPtr++
	if !e.Opts.DeferredProofVerification || e.subproofVerifier == nil {
		return 0, false, nil
	}
	var vk, pv [8]uint32
	for i := uint32(0); i < 8; i++ {
		vk[i] = e.peek((vkPtr + i*4) &^ 3)
		pv[i] = e.peek((pvPtr + i*4) &^ 3)
	}
	if err := e.subproofVerifier.Verify(proof, vk, pv); err != nil {
		return 0, false, fmt.Errorf("verify proof: %w", err)
	}
	return 0, false, nil
}

type hintLenSyscall struct{}

func (hintLenSyscall) NumExtraCycles() uint32 { return 0 }

func (hintLenSyscall) Execute(ctx *SyscallContext, _, _, _ uint32) (uint32, bool, error) {
	e := ctx.e
	if e.State.InputStreamPtr >= len(e.State.InputStream) {
		return 0, true, nil
	}
	return uint32(len(e.State.InputStream[e.State.InputStreamPtr])), true, nil
}

type hintReadSyscall struct{}

func (hintReadSyscall) NumExtraCycles() uint32 { return 0 }

// Execute consumes the next input buffer into guest memory. The bytes land as
// initial memory contents (the uninitialized overlay) rather than as traced
// writes, so reading a hint does not consume trace area.
func (hintReadSyscall) Execute(ctx *SyscallContext, _, ptr, length uint32) (uint32, bool, error) {
	e := ctx.e
	if e.State.InputStreamPtr >= len(e.State.InputStream) {
		return 0, false, fmt.Errorf("hint read: input stream exhausted at pc %#x", e.State.PC)
	}
	buf := e.State.InputStream[e.State.InputStreamPtr]
	e.State.InputStreamPtr++
	if uint32(len(buf)) != length {
		return 0, false, fmt.Errorf("hint read: expected %d bytes, next hint has %d", length, len(buf))
	}
	writeBytes(e, ptr, buf)
	return 0, false, nil
}

// writeBytes merges bytes into guest memory word by word, little-endian.
// Untouched cells receive the data through the uninitialized overlay so it
// reads back as initial memory.
func writeBytes(e *Executor, ptr uint32, data []byte) {
	for i := 0; i < len(data); i++ {
		addr := ptr + uint32(i)
		aligned := addr &^ 3
		shift := (addr & 3) * 8
		if rec, ok := e.State.Memory.Get(aligned); ok {
			rec.Value = rec.Value&^(0xff<<shift) | uint32(data[i])<<shift
			continue
		}
		word := e.State.UninitializedMemory[aligned]
		e.State.UninitializedMemory[aligned] = word&^(0xff<<shift) | uint32(data[i])<<shift
	}
}

func drainLocal(local map[uint32]*MemoryLocalEvent) []MemoryLocalEvent {
	if len(local) == 0 {
		return nil
	}
	out := make([]MemoryLocalEvent, 0, len(local))
	for _, ev := range local {
		out = append(out, *ev)
	}
	sortLocalEvents(out)
	return out
}
