package emu

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

func syscallIns() mips.Instruction {
	return mips.Instruction{Opcode: mips.SYSCALL, OpA: mips.RegV0, OpB: mips.RegA0, OpC: mips.RegA1}
}

// syscallProgram is a single SYSCALL whose registers are preloaded through the
// memory image: V0 carries the code, A0/A1 the arguments, a2/a3 the extras.
func syscallProgram(code, a0, a1 uint32) *Program {
	p := testProgram(syscallIns())
	p.Image[mips.RegV0] = code
	p.Image[mips.RegA0] = a0
	p.Image[mips.RegA1] = a1
	return p
}

func TestHaltSyscall(t *testing.T) {
	e := newTestExecutor(syscallProgram(SyscallHalt, 0, 0))
	require.NoError(t, e.RunVeryFast())
	require.True(t, e.State.Exited)
	require.Equal(t, uint32(0), e.State.ExitCode)
	require.Equal(t, uint32(0), e.State.PC)
}

func TestHaltSyscallNonZero(t *testing.T) {
	e := newTestExecutor(syscallProgram(SyscallHalt, 3, 0))
	require.ErrorIs(t, e.RunVeryFast(), ErrHaltWithNonZeroExitCode)
	require.Equal(t, uint32(3), e.State.ExitCode)
}

func TestUnsupportedSyscall(t *testing.T) {
	e := newTestExecutor(syscallProgram(0x1234_5678, 0, 0))
	require.ErrorIs(t, e.RunVeryFast(), ErrUnsupportedSyscall)
}

func TestExitUnconstrainedWithoutFork(t *testing.T) {
	e := newTestExecutor(syscallProgram(SyscallExitUnconstrained, 0, 0))
	require.ErrorIs(t, e.RunVeryFast(), ErrInvalidSyscallUsage)
}

func TestSyscallNotAllowedWhileUnconstrained(t *testing.T) {
	p := testProgram(
		syscallIns(),
		mips.NewImm(mips.ADD, mips.RegV0, 0, SyscallCommit),
		syscallIns(),
	)
	p.Image[mips.RegV0] = SyscallEnterUnconstrained
	e := newTestExecutor(p)
	require.ErrorIs(t, e.RunVeryFast(), ErrInvalidSyscallUsage)
}

func TestWriteSyscallStdout(t *testing.T) {
	p := syscallProgram(SyscallWrite, 1, 0x2000)
	p.Image[6] = 5 // a2: byte count
	p.Image[0x2000] = 0x6c6c_6568
	p.Image[0x2004] = 0x6f
	var out bytes.Buffer
	e := NewExecutor(p, DefaultOpts(), &out, io.Discard, testLogger())
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, "hello", out.String())
}

func TestWriteSyscallHintChannel(t *testing.T) {
	p := syscallProgram(SyscallWrite, 4, 0x2000)
	p.Image[6] = 3
	p.Image[0x2000] = 0x00_03_02_01
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, [][]byte{{1, 2, 3}}, e.State.InputStream)
}

func TestWriteSyscallUnknownFdDropped(t *testing.T) {
	p := syscallProgram(SyscallWrite, 77, 0x2000)
	p.Image[6] = 1
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Empty(t, e.State.InputStream)
}

func TestReadSyscall(t *testing.T) {
	p := syscallProgram(SyscallRead, 0, 0x2000)
	p.Image[6] = 8 // asks for more than the buffer holds
	e := newTestExecutor(p).WithInput([]byte{0xaa, 0xbb, 0xcc})
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(3), e.Register(mips.RegV0))
	require.Equal(t, uint32(0x00cc_bbaa), e.peek(0x2000))
	require.Equal(t, 1, e.State.InputStreamPtr)
}

func TestReadSyscallExhausted(t *testing.T) {
	p := syscallProgram(SyscallRead, 0, 0x2000)
	p.Image[6] = 8
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(0), e.Register(mips.RegV0))
}

func TestHintLenAndRead(t *testing.T) {
	p := testProgram(
		syscallIns(),
		mips.NewALU(mips.ADD, 10, mips.RegV0, 0), // save the returned length
	)
	p.Image[mips.RegV0] = SyscallHintLen
	e := newTestExecutor(p).WithInput([]byte{1, 2, 3, 4})
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(4), e.Register(10))

	// hint read consumes the buffer into the uninitialized overlay
	p2 := syscallProgram(SyscallHintRead, 0x2000, 4)
	e2 := newTestExecutor(p2).WithInput([]byte{1, 2, 3, 4})
	require.NoError(t, e2.RunVeryFast())
	require.Equal(t, uint32(0x0403_0201), e2.State.UninitializedMemory[0x2000])
	require.Equal(t, 1, e2.State.InputStreamPtr)
}

func TestHintReadLengthMismatch(t *testing.T) {
	p := syscallProgram(SyscallHintRead, 0x2000, 7)
	e := newTestExecutor(p).WithInput([]byte{1, 2, 3, 4})
	require.Error(t, e.RunVeryFast())
}

func TestCommitSyscall(t *testing.T) {
	e := newTestExecutor(syscallProgram(SyscallCommit, 2, 0xdead_beef))
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(0xdead_beef), e.Record.PublicValues.CommittedValueDigest[2])

	bad := newTestExecutor(syscallProgram(SyscallCommit, 8, 0))
	require.Error(t, bad.RunVeryFast())
}

func TestCommitDeferredProofsSyscall(t *testing.T) {
	e := newTestExecutor(syscallProgram(SyscallCommitDeferredProofs, 0, 0x1111_2222))
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(0x1111_2222), e.Record.PublicValues.DeferredProofsDigest[0])
}

type fixedVerifier struct {
	err  error
	seen int
}

func (v *fixedVerifier) Verify(proof []byte, vkDigest, pvDigest [8]uint32) error {
	v.seen++
	return v.err
}

func TestVerifyProofSyscall(t *testing.T) {
	v := &fixedVerifier{}
	e := newTestExecutor(syscallProgram(SyscallVerifyProof, 0x2000, 0x2100)).
		WithProofs([]byte{1, 2, 3}).
		WithSubproofVerifier(v)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, 1, v.seen)
	require.Equal(t, 1, e.State.ProofStreamPtr)
}

func TestVerifyProofStreamExhausted(t *testing.T) {
	e := newTestExecutor(syscallProgram(SyscallVerifyProof, 0x2000, 0x2100))
	require.Error(t, e.RunVeryFast())
}

func TestVerifyProofSkippedOnRecover(t *testing.T) {
	v := &fixedVerifier{}
	p := syscallProgram(SyscallVerifyProof, 0x2000, 0x2100)
	e := NewExecutor(p, DefaultOpts(), io.Discard, io.Discard, testLogger()).
		WithProofs([]byte{1}).
		WithSubproofVerifier(v)
	e.Opts.DeferredProofVerification = false
	require.NoError(t, e.RunVeryFast())
	require.Zero(t, v.seen, "verification is disabled when deferred")
	require.Equal(t, 1, e.State.ProofStreamPtr, "the proof is still consumed")
}

func TestSyscallEventEmitted(t *testing.T) {
	p := syscallProgram(SyscallCommit, 1, 42)
	e := NewExecutor(p, DefaultOpts(), io.Discard, io.Discard, testLogger())
	records, err := e.Run()
	require.NoError(t, err)

	var events []SyscallEvent
	for _, r := range records {
		events = append(events, r.SyscallEvents...)
	}
	require.Len(t, events, 1)
	require.Equal(t, SyscallCommit, events[0].SyscallID)
	require.Equal(t, uint32(1), events[0].Arg1)
	require.Equal(t, uint32(42), events[0].Arg2)
	require.Equal(t, uint32(0x1000), events[0].PC)
	// commit has no return value, so V0 reads back the code
	require.Equal(t, SyscallCommit, events[0].ARecord.Value)
}

func TestRegisterSyscallOverride(t *testing.T) {
	e := newTestExecutor(syscallProgram(0x42, 0, 0))
	e.RegisterSyscall(0x42, haltSyscall{})
	require.NoError(t, e.RunVeryFast())
	require.True(t, e.State.Exited)
}

func TestSyscallCountsTracked(t *testing.T) {
	e := newTestExecutor(syscallProgram(SyscallCommit, 0, 1))
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint64(1), e.State.SyscallCounts[SyscallCommit])
}
