package emu

import (
	"encoding/json"
	"io"
)

// ExecutionState is everything the executor mutates while running. It is
// cloneable so Checkpoint mode can hand out resumable snapshots.
type ExecutionState struct {
	// GlobalClk counts executed cycles across all shards.
	GlobalClk uint64 `json:"globalClk"`
	// Clk is the shard-local clock; it advances by 5 per cycle plus any
	// syscall extra cycles, and resets at shard boundaries.
	Clk uint32 `json:"clk"`

	PC     uint32 `json:"pc"`
	NextPC uint32 `json:"nextPc"`
	// NextIsDelaySlot marks that the next instruction is the delay slot of a
	// branch or jump, so the shard check must not split the pair.
	NextIsDelaySlot bool `json:"nextIsDelaySlot"`

	CurrentShard uint32 `json:"currentShard"`

	Memory *PagedMemory `json:"memory"`
	// UninitializedMemory overlays addresses that start with a specific
	// nonzero value before their first touch (hint-channel writes land here).
	UninitializedMemory map[uint32]uint32 `json:"uninitializedMemory"`

	InputStream    [][]byte `json:"inputStream"`
	InputStreamPtr int      `json:"inputStreamPtr"`
	ProofStream    [][]byte `json:"proofStream"`
	ProofStreamPtr int      `json:"proofStreamPtr"`

	SyscallCounts map[uint32]uint64 `json:"syscallCounts"`

	// PublicValues carries the committed digests as of this snapshot, so a
	// shard replayed from it binds the same proof statement as the original
	// run.
	PublicValues PublicValues `json:"publicValues"`

	Exited   bool   `json:"exited"`
	ExitCode uint32 `json:"exitCode"`
}

func NewExecutionState(pcStart, nextPC uint32) *ExecutionState {
	return &ExecutionState{
		PC:                  pcStart,
		NextPC:              nextPC,
		CurrentShard:        1,
		Memory:              NewPagedMemory(),
		UninitializedMemory: make(map[uint32]uint32),
		SyscallCounts:       make(map[uint32]uint64),
	}
}

func (s *ExecutionState) Clone() *ExecutionState {
	out := *s
	out.Memory = s.Memory.Clone()
	out.UninitializedMemory = make(map[uint32]uint32, len(s.UninitializedMemory))
	for k, v := range s.UninitializedMemory {
		out.UninitializedMemory[k] = v
	}
	out.SyscallCounts = make(map[uint32]uint64, len(s.SyscallCounts))
	for k, v := range s.SyscallCounts {
		out.SyscallCounts[k] = v
	}
	out.InputStream = make([][]byte, len(s.InputStream))
	copy(out.InputStream, s.InputStream)
	out.ProofStream = make([][]byte, len(s.ProofStream))
	copy(out.ProofStream, s.ProofStream)
	return &out
}

// WriteTo / ReadFrom persist the snapshot as JSON; the memory uses its compact
// cell encoding. Used by the CLI to store checkpoints between batches.
func (s *ExecutionState) WriteTo(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(s)
}

func ReadExecutionState(r io.Reader) (*ExecutionState, error) {
	out := NewExecutionState(0, 0)
	dec := json.NewDecoder(r)
	if err := dec.Decode(out); err != nil {
		return nil, err
	}
	if out.Memory == nil {
		out.Memory = NewPagedMemory()
	}
	if out.UninitializedMemory == nil {
		out.UninitializedMemory = make(map[uint32]uint32)
	}
	if out.SyscallCounts == nil {
		out.SyscallCounts = make(map[uint32]uint64)
	}
	return out, nil
}

// ForkState is the snapshot taken on entry to unconstrained mode. All
// observable state except hint-channel writes is rolled back from it on exit.
type ForkState struct {
	Clk    uint32
	PC     uint32
	NextPC uint32

	// MemoryDiff remembers, for every cell first touched while unconstrained,
	// the record to reinstate (nil if the cell did not exist).
	MemoryDiff map[uint32]*MemoryRecord

	InputStreamPtr int
	ProofStreamPtr int

	OpRecord MemoryAccessRecord
}

func newForkState(s *ExecutionState, opRecord MemoryAccessRecord) *ForkState {
	return &ForkState{
		Clk:            s.Clk,
		PC:             s.PC,
		NextPC:         s.NextPC,
		MemoryDiff:     make(map[uint32]*MemoryRecord),
		InputStreamPtr: s.InputStreamPtr,
		ProofStreamPtr: s.ProofStreamPtr,
		OpRecord:       opRecord,
	}
}
