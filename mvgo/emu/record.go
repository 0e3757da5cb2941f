package emu

import (
	"github.com/zkmips/mipsgo/mvgo/mips"
)

// MemoryAccessPosition disambiguates the up-to-five memory accesses that share
// one architectural clock. The position offset is added to the shard-local
// clock to give every access a distinct timestamp; the cycle advances the
// clock by 5 so positions of consecutive cycles never collide.
type MemoryAccessPosition uint32

const (
	PositionC      MemoryAccessPosition = 1
	PositionB      MemoryAccessPosition = 2
	PositionA      MemoryAccessPosition = 3
	PositionHI     MemoryAccessPosition = 4
	PositionMemory MemoryAccessPosition = 5

	clkIncrement = 5
)

// MemoryReadRecord wraps the observed record with the previous shard and
// timestamp of the cell.
type MemoryReadRecord struct {
	Value         uint32 `json:"value"`
	Shard         uint32 `json:"shard"`
	Timestamp     uint32 `json:"timestamp"`
	PrevShard     uint32 `json:"prevShard"`
	PrevTimestamp uint32 `json:"prevTimestamp"`
}

// MemoryWriteRecord additionally remembers the previous value.
type MemoryWriteRecord struct {
	Value         uint32 `json:"value"`
	Shard         uint32 `json:"shard"`
	Timestamp     uint32 `json:"timestamp"`
	PrevValue     uint32 `json:"prevValue"`
	PrevShard     uint32 `json:"prevShard"`
	PrevTimestamp uint32 `json:"prevTimestamp"`
}

// MemoryRecordEnum is either a read or a write record.
type MemoryRecordEnum struct {
	IsWrite bool
	Read    MemoryReadRecord
	Write   MemoryWriteRecord
}

func (e MemoryRecordEnum) CurrentRecord() MemoryRecord {
	if e.IsWrite {
		return MemoryRecord{Value: e.Write.Value, Shard: e.Write.Shard, Timestamp: e.Write.Timestamp}
	}
	return MemoryRecord{Value: e.Read.Value, Shard: e.Read.Shard, Timestamp: e.Read.Timestamp}
}

func (e MemoryRecordEnum) PreviousRecord() MemoryRecord {
	if e.IsWrite {
		return MemoryRecord{Value: e.Write.PrevValue, Shard: e.Write.PrevShard, Timestamp: e.Write.PrevTimestamp}
	}
	return MemoryRecord{Value: e.Read.Value, Shard: e.Read.PrevShard, Timestamp: e.Read.PrevTimestamp}
}

func readEnum(r MemoryReadRecord) *MemoryRecordEnum {
	return &MemoryRecordEnum{Read: r}
}

func writeEnum(w MemoryWriteRecord) *MemoryRecordEnum {
	return &MemoryRecordEnum{IsWrite: true, Write: w}
}

// MemoryAccessRecord aggregates the accesses of one cycle by position.
// Within one instruction each position is written at most once.
type MemoryAccessRecord struct {
	A      *MemoryRecordEnum
	B      *MemoryRecordEnum
	C      *MemoryRecordEnum
	HI     *MemoryRecordEnum
	Memory *MemoryRecordEnum
}

func (r *MemoryAccessRecord) slot(pos MemoryAccessPosition) **MemoryRecordEnum {
	switch pos {
	case PositionA:
		return &r.A
	case PositionB:
		return &r.B
	case PositionC:
		return &r.C
	case PositionHI:
		return &r.HI
	case PositionMemory:
		return &r.Memory
	}
	panic("invalid memory access position")
}

// CpuEvent is the per-cycle record tying the instruction to its accesses.
type CpuEvent struct {
	Clk        uint32
	PC         uint32
	NextPC     uint32
	NextNextPC uint32
	A, B, C    uint32
	HI         uint32
	Access     MemoryAccessRecord
	ExitCode   uint32
}

// Dependency events use sentinel pc values to mark them as synthetic:
// they witness a primary instruction rather than occupy a cycle themselves.
const (
	DepEventPC     = 1
	DepEventNextPC = 5
)

// AluEvent is an arithmetic check: a (and hi where applicable) is the result
// of opcode applied to b and c.
type AluEvent struct {
	PC     uint32
	NextPC uint32
	Opcode mips.Opcode
	A      uint32
	HI     uint32
	B      uint32
	C      uint32
}

// Synthetic reports whether the event is a lowered dependency rather than a
// primary instruction event.
func (e AluEvent) Synthetic() bool {
	return e.PC == DepEventPC && e.NextPC == DepEventNextPC
}

// CompAluEvent is an ALU event for the HI-writing opcodes, carrying the clock
// and the HI register write record.
type CompAluEvent struct {
	AluEvent
	Clk      uint32
	Shard    uint32
	HIRecord *MemoryWriteRecord
}

// MemInstrEvent is a load or store with its full memory access.
type MemInstrEvent struct {
	Shard   uint32
	Clk     uint32
	PC      uint32
	NextPC  uint32
	Opcode  mips.Opcode
	A, B, C uint32
	Addr    uint32
	Mem     MemoryRecordEnum
}

// BranchEvent and JumpEvent carry the resolved control flow.
type BranchEvent struct {
	PC         uint32
	NextPC     uint32
	NextNextPC uint32
	Opcode     mips.Opcode
	A, B, C    uint32
	Taken      bool
}

type JumpEvent struct {
	PC         uint32
	NextPC     uint32
	NextNextPC uint32
	Opcode     mips.Opcode
	A, B, C    uint32
}

// MiscEvent covers the read-modify-write instructions; PrevA is the
// destination value before the instruction.
type MiscEvent struct {
	PC      uint32
	NextPC  uint32
	Opcode  mips.Opcode
	A, B, C uint32
	PrevA   uint32
}

type SyscallEvent struct {
	PC        uint32
	NextPC    uint32
	Shard     uint32
	Clk       uint32
	SyscallID uint32
	Arg1      uint32
	Arg2      uint32
	ARecord   MemoryWriteRecord
}

// MemoryLocalEvent is the first and last access of an address within a shard,
// used to stitch shards together.
type MemoryLocalEvent struct {
	Addr    uint32
	Initial MemoryRecord
	Final   MemoryRecord
}

// MemoryInitializeFinalizeEvent is the global memory bookkeeping emitted at
// program start and end.
type MemoryInitializeFinalizeEvent struct {
	Addr      uint32
	Value     uint32
	Shard     uint32
	Timestamp uint32
	Used      bool
}

// PrecompileEvent carries the auxiliary data of one precompile syscall:
// its raw memory traffic plus the local-memory deltas it caused.
type PrecompileEvent struct {
	Syscall   SyscallEvent
	MemReads  []MemoryReadRecord
	MemWrites []MemoryWriteRecord
	LocalMem  []MemoryLocalEvent
}

// PublicValues is the part of the record bound into the proof statement.
type PublicValues struct {
	CommittedValueDigest  [8]uint32 `json:"committedValueDigest"`
	DeferredProofsDigest  [8]uint32 `json:"deferredProofsDigest"`
	StartPC               uint32    `json:"startPC"`
	NextPC                uint32    `json:"nextPC"`
	ExitCode              uint32    `json:"exitCode"`
	CommittedValueDigests uint32    `json:"committedValueDigests"` // count of COMMIT writes, for sanity checks
}

// ExecutionRecord owns the typed event buckets of one shard.
type ExecutionRecord struct {
	Program *Program
	Shard   uint32

	CpuEvents        []CpuEvent
	AluEvents        []AluEvent
	CompAluEvents    []CompAluEvent
	MemInstrEvents   []MemInstrEvent
	BranchEvents     []BranchEvent
	JumpEvents       []JumpEvent
	MiscEvents       []MiscEvent
	SyscallEvents    []SyscallEvent
	PrecompileEvents []PrecompileEvent

	CpuLocalMemoryAccess []MemoryLocalEvent

	GlobalMemoryInitializeEvents []MemoryInitializeFinalizeEvent
	GlobalMemoryFinalizeEvents   []MemoryInitializeFinalizeEvent

	PublicValues PublicValues
}

func NewExecutionRecord(program *Program, shard uint32) *ExecutionRecord {
	return &ExecutionRecord{Program: program, Shard: shard}
}

// EventCount totals every non-CPU event, for shape estimation and tests.
func (r *ExecutionRecord) EventCount() int {
	return len(r.AluEvents) + len(r.CompAluEvents) + len(r.MemInstrEvents) +
		len(r.BranchEvents) + len(r.JumpEvents) + len(r.MiscEvents) +
		len(r.SyscallEvents) + len(r.PrecompileEvents)
}
