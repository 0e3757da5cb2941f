package emu

import (
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func testProgram(ins ...mips.Instruction) *Program {
	return NewProgram(ins, 0x1000, 0x1000)
}

func newTestExecutor(p *Program) *Executor {
	return NewExecutor(p, DefaultOpts(), io.Discard, io.Discard, testLogger())
}

func nop() mips.Instruction {
	return mips.Instruction{Opcode: mips.ADD, ImmB: true, ImmC: true}
}

func TestAddWritesDestination(t *testing.T) {
	p := testProgram(mips.NewALU(mips.ADD, 31, 8, 9))
	p.Image[8] = 40
	p.Image[9] = 2
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(42), e.Register(31))
}

func TestRegisterZeroStaysZero(t *testing.T) {
	p := testProgram(
		mips.NewALU(mips.ADD, 0, 8, 9),
		mips.NewImm(mips.ADD, 0, 0, 0xdead),
	)
	p.Image[8] = 40
	p.Image[9] = 2
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(0), e.Register(0))
}

func TestBranchTakenRedirectsControlFlow(t *testing.T) {
	// beq lands 100 bytes past the delay slot's successor
	p := testProgram(
		mips.Instruction{Opcode: mips.BEQ, OpA: 8, OpB: 9, OpC: 100, ImmC: true},
		nop(),
	)
	p.Image[8] = 7
	p.Image[9] = 7
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(0x1004+100), e.State.PC)
}

func TestBranchNotTakenFallsThrough(t *testing.T) {
	p := testProgram(
		mips.Instruction{Opcode: mips.BEQ, OpA: 8, OpB: 9, OpC: 100, ImmC: true},
		nop(),
		mips.NewImm(mips.ADD, 10, 0, 1),
	)
	p.Image[8] = 7
	p.Image[9] = 8
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(1), e.Register(10))
}

func TestDivuByZero(t *testing.T) {
	p := testProgram(mips.Instruction{Opcode: mips.DIVU, OpA: mips.RegLO, OpB: 8, OpC: 9})
	p.Image[8] = 5
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(0xffff_ffff), e.Register(mips.RegLO))
	require.Equal(t, uint32(5), e.Register(mips.RegHI))
}

func TestLoadByteSignExtends(t *testing.T) {
	p := testProgram(mips.NewImm(mips.LB, 10, 8, 1))
	p.Image[8] = 0x2000
	p.Image[0x2000] = 0x1234_8765
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(0xffff_ff87), e.Register(10))
}

func TestStoreByteMergesWord(t *testing.T) {
	p := testProgram(mips.NewImm(mips.SB, 10, 8, 2))
	p.Image[8] = 0x2000
	p.Image[10] = 0xcc
	p.Image[0x2000] = 0x1122_3344
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(0x11cc_3344), e.peek(0x2000))
}

func TestJumpLinksReturnAddress(t *testing.T) {
	p := testProgram(
		mips.Instruction{Opcode: mips.Jumpi, OpA: mips.RegRA, OpB: 0x1010, ImmB: true, ImmC: true},
		nop(),
		mips.NewImm(mips.ADD, 10, 0, 7), // skipped
		nop(),
		mips.NewImm(mips.ADD, 9, 0, 1), // 0x1010, jump target
	)
	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(0x1008), e.Register(mips.RegRA))
	require.Equal(t, uint32(1), e.Register(9))
	require.Equal(t, uint32(0), e.Register(10))
}

func TestBreakFails(t *testing.T) {
	p := testProgram(mips.Instruction{Opcode: mips.BREAK})
	e := newTestExecutor(p)
	require.ErrorIs(t, e.RunVeryFast(), ErrBreakpoint)
}

func TestTeqTrapsOnEqual(t *testing.T) {
	p := testProgram(mips.Instruction{Opcode: mips.TEQ, OpA: 8, OpB: 9, OpC: 0, ImmC: true})
	p.Image[8] = 5
	p.Image[9] = 5
	e := newTestExecutor(p)
	require.ErrorIs(t, e.RunVeryFast(), ErrBreakpoint)

	p2 := testProgram(mips.Instruction{Opcode: mips.TEQ, OpA: 8, OpB: 9, OpC: 0, ImmC: true})
	p2.Image[8] = 5
	p2.Image[9] = 6
	require.NoError(t, newTestExecutor(p2).RunVeryFast())
}

func TestUnimplementedInstructionFails(t *testing.T) {
	p := testProgram(mips.Instruction{Opcode: mips.UNIMPL, Raw: 0xdead_beef})
	e := newTestExecutor(p)
	require.ErrorIs(t, e.RunVeryFast(), ErrUnsupportedInstruction)
}

func TestCycleLimit(t *testing.T) {
	ins := make([]mips.Instruction, 100)
	for i := range ins {
		ins[i] = nop()
	}
	e := newTestExecutor(testProgram(ins...))
	e.Opts.MaxCycles = 5
	require.ErrorIs(t, e.RunVeryFast(), ErrExceededCycleLimit)
	require.Equal(t, uint64(5), e.State.GlobalClk)
}

func TestGlobalClockCountsCycles(t *testing.T) {
	ins := make([]mips.Instruction, 25)
	for i := range ins {
		ins[i] = nop()
	}
	e := newTestExecutor(testProgram(ins...))
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint64(25), e.State.GlobalClk)
}

func TestShardSplitResetsClock(t *testing.T) {
	ins := make([]mips.Instruction, 100)
	for i := range ins {
		ins[i] = nop()
	}
	e := newTestExecutor(testProgram(ins...))
	e.Opts.ShardSize = e.maxSyscallCycles + 50 // 10 cycles per shard
	require.NoError(t, e.RunVeryFast())
	require.Equal(t, uint32(11), e.State.CurrentShard)
	require.Equal(t, uint32(0), e.State.Clk)
}

func TestShardSplitDefersPastDelaySlot(t *testing.T) {
	ins := []mips.Instruction{
		nop(),
		mips.Instruction{Opcode: mips.BEQ, OpA: 0, OpB: 0, OpC: 4, ImmC: true},
		nop(), // delay slot
		nop(),
	}
	e := newTestExecutor(testProgram(ins...))
	require.NoError(t, e.executeCycle())

	// a split is due at the end of the branch cycle, but the delay slot pins it
	e.Opts.ShardSize = e.State.Clk + e.maxSyscallCycles
	require.NoError(t, e.executeCycle())
	require.Equal(t, uint32(1), e.State.CurrentShard)
	require.NotZero(t, e.State.Clk)

	require.NoError(t, e.executeCycle())
	require.Equal(t, uint32(2), e.State.CurrentShard)
	require.Equal(t, uint32(0), e.State.Clk)
}

// mixedProgram is ALU heavy with loads, stores, divisions and an occasional
// branch, control flow fully sequential.
func mixedProgram(n int) *Program {
	ins := make([]mips.Instruction, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i%25 == 24:
			// taken branch whose target is the regular successor of the delay slot
			ins = append(ins, mips.Instruction{Opcode: mips.BEQ, OpA: 0, OpB: 0, OpC: 4, ImmC: true})
		case i%13 == 0:
			ins = append(ins, mips.NewImm(mips.SW, 8, 20, uint32(i%7)*4))
		case i%17 == 0:
			ins = append(ins, mips.NewImm(mips.LW, 9, 20, uint32(i%5)*4))
		case i%11 == 0:
			ins = append(ins, mips.Instruction{Opcode: mips.DIVU, OpA: mips.RegLO, OpB: 8, OpC: 9})
		default:
			r := uint32(8 + i%8)
			ins = append(ins, mips.NewImm(mips.ADD, r, 8+uint32((i+1)%8), uint32(i)*3+1))
		}
	}
	p := NewProgram(ins, 0x1000, 0x1000)
	p.Image[8] = 40
	p.Image[9] = 3
	p.Image[20] = 0x3000
	return p
}

func TestFastAndTraceAgree(t *testing.T) {
	fast := NewExecutor(mixedProgram(100), DefaultOpts(), io.Discard, io.Discard, testLogger())
	_, err := fast.RunFast()
	require.NoError(t, err)

	trace := NewExecutor(mixedProgram(100), DefaultOpts(), io.Discard, io.Discard, testLogger())
	records, err := trace.Run()
	require.NoError(t, err)
	require.NotEmpty(t, records)

	for reg := uint32(0); reg < mips.NumRegisters; reg++ {
		require.Equal(t, fast.Register(reg), trace.Register(reg), "register %s", mips.RegisterName(reg))
	}
	require.Equal(t, fast.State.GlobalClk, trace.State.GlobalClk)
	require.Equal(t, fast.State.ExitCode, trace.State.ExitCode)
}

func TestEveryCycleHasOneCpuEvent(t *testing.T) {
	e := NewExecutor(mixedProgram(100), DefaultOpts(), io.Discard, io.Discard, testLogger())
	records, err := e.Run()
	require.NoError(t, err)

	cycles := 0
	for _, r := range records {
		cycles += len(r.CpuEvents)
	}
	require.Equal(t, e.State.GlobalClk, uint64(cycles))
}

func TestTraceRecordsCarryPublicValues(t *testing.T) {
	e := NewExecutor(mixedProgram(100), DefaultOpts(), io.Discard, io.Discard, testLogger())
	e.Opts.ShardSize = e.maxSyscallCycles + 50
	records, err := e.Run()
	require.NoError(t, err)
	require.Greater(t, len(records), 1)

	require.Equal(t, uint32(0x1000), records[0].PublicValues.StartPC)
	for i := 1; i < len(records); i++ {
		require.Equal(t, records[i-1].PublicValues.NextPC, records[i].PublicValues.StartPC)
		require.Equal(t, uint32(i+1), records[i].Shard)
	}
	last := records[len(records)-1]
	require.NotEmpty(t, last.GlobalMemoryInitializeEvents)
	require.Equal(t, uint32(0), last.GlobalMemoryInitializeEvents[0].Addr)
	require.Len(t, last.GlobalMemoryFinalizeEvents, len(last.GlobalMemoryInitializeEvents))
}

func TestCheckpointReplayMatchesTrace(t *testing.T) {
	opts := DefaultOpts()
	opts.ShardBatchSize = 1
	mk := func() *Executor {
		e := NewExecutor(mixedProgram(100), opts, io.Discard, io.Discard, testLogger())
		e.Opts.ShardSize = e.maxSyscallCycles + 50
		return e
	}

	trace := mk()
	var want []*ExecutionRecord
	for {
		rs, done, err := trace.ExecuteRecords(false)
		require.NoError(t, err)
		want = append(want, rs...)
		if done {
			break
		}
	}
	require.Greater(t, len(want), 1)

	ck := mk()
	var snaps []*ExecutionState
	for {
		snap, done, err := ck.ExecuteState(false)
		require.NoError(t, err)
		snaps = append(snaps, snap)
		if done {
			break
		}
	}
	require.GreaterOrEqual(t, len(snaps), len(want))

	for i := range want {
		re := Recover(ck.Program, snaps[i], opts, io.Discard, io.Discard, testLogger())
		re.Opts.ShardSize = re.maxSyscallCycles + 50
		rs, _, err := re.ExecuteRecords(false)
		require.NoError(t, err)
		require.Len(t, rs, 1)
		require.Equal(t, want[i].Shard, rs[0].Shard)
		require.Equal(t, want[i].PublicValues, rs[0].PublicValues)
		require.Equal(t, want[i].CpuEvents, rs[0].CpuEvents)
		require.Equal(t, want[i].AluEvents, rs[0].AluEvents)
		require.Equal(t, want[i].MemInstrEvents, rs[0].MemInstrEvents)
		require.Equal(t, want[i].CpuLocalMemoryAccess, rs[0].CpuLocalMemoryAccess)
	}
}

func TestCheckpointReplayCarriesCommittedValues(t *testing.T) {
	mkProgram := func() *Program {
		ins := []mips.Instruction{
			{Opcode: mips.SYSCALL, OpA: mips.RegV0, OpB: mips.RegA0, OpC: mips.RegA1}, // commit
		}
		for i := 0; i < 30; i++ {
			ins = append(ins, nop())
		}
		p := testProgram(ins...)
		p.Image[mips.RegV0] = SyscallCommit
		p.Image[mips.RegA0] = 1  // word index
		p.Image[mips.RegA1] = 42 // digest word
		return p
	}
	opts := DefaultOpts()
	opts.ShardBatchSize = 1

	trace := NewExecutor(mkProgram(), opts, io.Discard, io.Discard, testLogger())
	trace.Opts.ShardSize = trace.maxSyscallCycles + 50
	var want []*ExecutionRecord
	for {
		rs, done, err := trace.ExecuteRecords(false)
		require.NoError(t, err)
		want = append(want, rs...)
		if done {
			break
		}
	}
	require.Greater(t, len(want), 1)
	for _, r := range want {
		require.Equal(t, uint32(42), r.PublicValues.CommittedValueDigest[1])
	}

	ck := NewExecutor(mkProgram(), opts, io.Discard, io.Discard, testLogger())
	ck.Opts.ShardSize = ck.maxSyscallCycles + 50
	var snaps []*ExecutionState
	for {
		snap, done, err := ck.ExecuteState(false)
		require.NoError(t, err)
		snaps = append(snaps, snap)
		if done {
			break
		}
	}

	// replay the final shard: the commit happened shards earlier and must
	// still be bound into the replayed record's public values
	last := len(want) - 1
	re := Recover(ck.Program, snaps[last], opts, io.Discard, io.Discard, testLogger())
	re.Opts.ShardSize = re.maxSyscallCycles + 50
	rs, _, err := re.ExecuteRecords(false)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.Equal(t, uint32(42), rs[0].PublicValues.CommittedValueDigest[1])
	require.Equal(t, want[last].PublicValues, rs[0].PublicValues)
}

func TestExecuteRecordsAfterDoneYieldsNothing(t *testing.T) {
	e := NewExecutor(mixedProgram(20), DefaultOpts(), io.Discard, io.Discard, testLogger())
	rs, done, err := e.ExecuteRecords(true)
	require.NoError(t, err)
	require.True(t, done)
	require.NotEmpty(t, rs)

	again, done, err := e.ExecuteRecords(true)
	require.NoError(t, err)
	require.True(t, done)
	require.Empty(t, again)
}

func TestUnconstrainedRollsBack(t *testing.T) {
	p := testProgram(
		mips.Instruction{Opcode: mips.SYSCALL, OpA: mips.RegV0, OpB: mips.RegA0, OpC: mips.RegA1}, // enter
		mips.Instruction{Opcode: mips.BEQ, OpA: mips.RegV0, OpB: 0, OpC: 0x10, ImmC: true},
		nop(),                           // delay slot
		mips.NewImm(mips.ADD, 8, 8, 99), // unconstrained only
		mips.NewImm(mips.ADD, mips.RegV0, 0, 4),
		mips.Instruction{Opcode: mips.SYSCALL, OpA: mips.RegV0, OpB: mips.RegA0, OpC: mips.RegA1}, // exit
		mips.NewImm(mips.ADD, 9, 0, 1), // 0x1018, constrained path
	)
	p.Image[mips.RegV0] = SyscallEnterUnconstrained
	p.Image[8] = 40

	e := newTestExecutor(p)
	require.NoError(t, e.RunVeryFast())

	require.Equal(t, uint32(40), e.Register(8), "unconstrained write must roll back")
	require.Equal(t, uint32(1), e.Register(9), "constrained path must run after exit")
	require.Equal(t, uint32(0), e.Register(mips.RegV0), "guest must observe 0 after exit")
	require.Equal(t, uint64(9), e.State.GlobalClk, "global clock is never rolled back")
	// the fork replays from the enter call's successor with the rolled back clock
	require.Equal(t, uint32(4*clkIncrement), e.State.Clk)
}

func TestUnconstrainedCyclesLeaveNoEvents(t *testing.T) {
	p := testProgram(
		mips.Instruction{Opcode: mips.SYSCALL, OpA: mips.RegV0, OpB: mips.RegA0, OpC: mips.RegA1},
		mips.Instruction{Opcode: mips.BEQ, OpA: mips.RegV0, OpB: 0, OpC: 0x10, ImmC: true},
		nop(),
		mips.NewImm(mips.ADD, 8, 8, 99),
		mips.NewImm(mips.ADD, mips.RegV0, 0, 4),
		mips.Instruction{Opcode: mips.SYSCALL, OpA: mips.RegV0, OpB: mips.RegA0, OpC: mips.RegA1},
		mips.NewImm(mips.ADD, 9, 0, 1),
	)
	p.Image[mips.RegV0] = SyscallEnterUnconstrained

	e := NewExecutor(p, DefaultOpts(), io.Discard, io.Discard, testLogger())
	records, err := e.Run()
	require.NoError(t, err)

	cpuEvents, syscallEvents := 0, 0
	for _, r := range records {
		cpuEvents += len(r.CpuEvents)
		syscallEvents += len(r.SyscallEvents)
	}
	require.Equal(t, uint64(9), e.State.GlobalClk)
	require.Equal(t, 4, cpuEvents, "the five cycles inside the fork are suppressed")
	require.Equal(t, 1, syscallEvents, "only the enter call is traced")
}

func TestUnconstrainedRegionNeverSplitsShards(t *testing.T) {
	ins := []mips.Instruction{
		{Opcode: mips.SYSCALL, OpA: mips.RegV0, OpB: mips.RegA0, OpC: mips.RegA1}, // enter
		{Opcode: mips.BEQ, OpA: mips.RegV0, OpB: 0, OpC: 0xac, ImmC: true},        // to 0x10b4 after exit
		nop(), // delay slot
	}
	for i := 0; i < 40; i++ {
		ins = append(ins, nop()) // unconstrained filler, far past the shard boundary
	}
	ins = append(ins,
		mips.NewImm(mips.ADD, mips.RegV0, 0, 4),
		mips.Instruction{Opcode: mips.SYSCALL, OpA: mips.RegV0, OpB: mips.RegA0, OpC: mips.RegA1}, // exit
		mips.NewImm(mips.ADD, 9, 0, 1), // 0x10b4, constrained path
	)
	p := testProgram(ins...)
	p.Image[mips.RegV0] = SyscallEnterUnconstrained

	e := newTestExecutor(p)
	e.Opts.ShardSize = e.maxSyscallCycles + 50 // 10 cycles per shard
	records, err := e.Run()
	require.NoError(t, err)

	require.Equal(t, uint32(1), e.State.CurrentShard, "fork cycles must not trip the shard boundary")
	require.Len(t, records, 1)
	require.Equal(t, uint32(1), e.Register(9))
}

func TestEndInUnconstrainedFails(t *testing.T) {
	p := testProgram(mips.Instruction{Opcode: mips.SYSCALL, OpA: mips.RegV0, OpB: mips.RegA0, OpC: mips.RegA1})
	p.Image[mips.RegV0] = SyscallEnterUnconstrained
	e := newTestExecutor(p)
	require.ErrorIs(t, e.RunVeryFast(), ErrEndInUnconstrained)
}

func TestDebugMemoryAccessGuard(t *testing.T) {
	p := testProgram(mips.NewImm(mips.LW, 10, 0, 16)) // load from address 16, inside the register file
	e := newTestExecutor(p)
	e.Opts.DebugMemoryAccess = true
	require.ErrorIs(t, e.RunVeryFast(), ErrInvalidMemoryAccess)
}

func TestExecutionReportCounts(t *testing.T) {
	e := NewExecutor(mixedProgram(100), DefaultOpts(), io.Discard, io.Discard, testLogger())
	report, err := e.RunFast()
	require.NoError(t, err)
	require.Equal(t, uint64(100), report.TotalCycles)

	var opTotal uint64
	for _, n := range report.OpcodeCounts {
		opTotal += n
	}
	require.Equal(t, uint64(100), opTotal)
	require.NotZero(t, report.TouchedMemoryAddresses)
	require.NotEmpty(t, report.String())
}

func TestProgramJSONRoundTrip(t *testing.T) {
	raws := []uint32{0x0109_4021, 0x8faa_0004, 0xafaa_fff8, 0x0109_001b, 0x1109_0004, 0}
	ins := make([]mips.Instruction, len(raws))
	for i, raw := range raws {
		ins[i] = mips.Decode(raw)
	}
	p := NewProgram(ins, 0x1000, 0x1000)
	p.Image[8] = 40
	p.Image[0x2000] = 0xdead_beef

	data, err := p.MarshalJSON()
	require.NoError(t, err)

	var out Program
	require.NoError(t, out.UnmarshalJSON(data))
	require.Equal(t, p.Instructions, out.Instructions)
	require.Equal(t, p.PCStart, out.PCStart)
	require.Equal(t, p.NextPC, out.NextPC)
	require.Equal(t, p.Image, out.Image)
	require.Equal(t, p.Digest(), out.Digest())
}
