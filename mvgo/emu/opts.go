package emu

// Opts is the configuration surface of the executor. The zero value is not
// usable; start from DefaultOpts.
type Opts struct {
	// ShardSize is the upper bound on the shard-local clock before a shard
	// boundary is forced.
	ShardSize uint32
	// ShardBatchSize is how many shards ExecuteRecords / ExecuteState produce
	// before yielding. 0 means no limit.
	ShardBatchSize uint32
	// MaxCycles, when nonzero, fails execution with ErrExceededCycleLimit once
	// the global clock reaches it.
	MaxCycles uint64
	// ShapeCheckFrequency is how often (in global cycles) the shape checker is
	// consulted for an early shard boundary.
	ShapeCheckFrequency uint64
	// LDESizeCheck enables the LDE memory estimate as a shard-split trigger.
	LDESizeCheck bool
	// LDESizeThreshold is the LDE estimate (in bytes) above which a shard is
	// split early.
	LDESizeThreshold uint64
	// DeferredProofVerification controls whether VERIFY_ZKM_PROOF invokes the
	// subproof verifier. Disabled when recovering from a checkpoint.
	DeferredProofVerification bool
	// DebugMemoryAccess enables the debug-only invalid memory access checks.
	DebugMemoryAccess bool
}

// DefaultOpts mirrors the production defaults: 2^22 cycles per shard and a
// shape probe every 16 cycles.
func DefaultOpts() Opts {
	return Opts{
		ShardSize:                 1 << 22,
		ShardBatchSize:            16,
		ShapeCheckFrequency:       16,
		LDESizeThreshold:          1 << 34,
		DeferredProofVerification: true,
	}
}

// ExecutorMode selects how much the executor records while running.
type ExecutorMode uint8

const (
	// ModeSimple executes without collecting events.
	ModeSimple ExecutorMode = iota
	// ModeCheckpoint captures the pre-state of touched memory so execution can
	// be resumed from the produced state snapshot.
	ModeCheckpoint
	// ModeTrace emits the full event record.
	ModeTrace
)

func (m ExecutorMode) String() string {
	switch m {
	case ModeSimple:
		return "simple"
	case ModeCheckpoint:
		return "checkpoint"
	case ModeTrace:
		return "trace"
	default:
		return "invalid"
	}
}
