package emu

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

// LocalCounts tracks, per shard, upper bounds on the events the shard will
// produce: per-opcode event counts (primary plus lowered dependencies) and the
// number of distinct addresses touched. Shape fitting consumes these without
// requiring the events themselves.
type LocalCounts struct {
	Event    [mips.NumOpcodes]uint64
	Syscalls uint64
	LocalMem uint64
}

// Executor drives the fetch/decode/execute/emit loop over a program. It is
// single-threaded and deterministic; everything it mutates hangs off State,
// Record and its private bookkeeping, so a value can be moved freely between
// goroutines as long as only one drives it at a time.
type Executor struct {
	Program *Program
	State   *ExecutionState
	Opts    Opts
	Mode    ExecutorMode

	// Record is the shard under construction; completed shards accumulate in
	// Records until the current batch is drained.
	Record  *ExecutionRecord
	Records []*ExecutionRecord

	syscalls         map[uint32]Syscall
	hooks            *HookRegistry
	maxSyscallCycles uint32

	subproofVerifier SubproofVerifier

	// opRecord aggregates the current cycle's memory accesses by position.
	// traceCycle is fixed at the top of each cycle so a syscall flipping the
	// unconstrained flag mid-cycle cannot leave the record half-built.
	opRecord   MemoryAccessRecord
	traceCycle bool

	unconstrained      bool
	unconstrainedState *ForkState

	// Checkpoint-mode capture: the pre-batch record of every address touched
	// (nil marks an address absent at batch start), and the overlay values
	// consumed at first touch.
	memoryCheckpoint              map[uint32]*MemoryRecord
	uninitializedMemoryCheckpoint map[uint32]uint32

	localMemoryAccess map[uint32]*MemoryLocalEvent
	localCounts       LocalCounts

	shape  ShapeChecker
	report *ExecutionReport

	stdOut, stdErr       io.Writer
	stdoutBuf, stderrBuf bytes.Buffer

	traceFile *os.File
	traceBuf  *bufio.Writer

	// emitGlobals controls whether the final record receives the global
	// memory initialize/finalize events; globalsEmitted latches the emission
	// so repeated finalize calls cannot duplicate it.
	emitGlobals    bool
	globalsEmitted bool

	log log.Logger
}

// NewExecutor builds an executor over program in Simple mode. The program's
// memory image becomes the uninitialized-memory overlay, so cells materialize
// lazily on first touch. If the TRACE_FILE environment variable is set, the
// file is opened now and receives per-cycle pc values until postprocess.
func NewExecutor(program *Program, opts Opts, stdOut, stdErr io.Writer, logger log.Logger) *Executor {
	state := NewExecutionState(program.PCStart, program.NextPC)
	for addr, val := range program.Image {
		state.UninitializedMemory[addr] = val
	}
	e := &Executor{
		Program:           program,
		State:             state,
		Opts:              opts,
		Mode:              ModeSimple,
		Record:            NewExecutionRecord(program, 1),
		syscalls:          DefaultSyscalls(),
		hooks:             DefaultHooks(),
		localMemoryAccess: make(map[uint32]*MemoryLocalEvent),
		stdOut:            stdOut,
		stdErr:            stdErr,
		log:               logger,
	}
	e.Record.PublicValues.StartPC = state.PC
	e.maxSyscallCycles = maxExtraCycles(e.syscalls) + clkIncrement
	if path := os.Getenv("TRACE_FILE"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			logger.Warn("could not open trace file", "path", path, "err", err)
		} else {
			e.traceFile = f
			e.traceBuf = bufio.NewWriter(f)
		}
	}
	return e
}

// Recover constructs an executor resuming from a prior checkpoint state.
// Deferred proofs were already verified by the run that produced the
// checkpoint, so verification is disabled.
func Recover(program *Program, state *ExecutionState, opts Opts, stdOut, stdErr io.Writer, logger log.Logger) *Executor {
	opts.DeferredProofVerification = false
	e := NewExecutor(program, opts, stdOut, stdErr, logger)
	e.State = state
	e.Record = NewExecutionRecord(program, state.CurrentShard)
	e.Record.PublicValues = state.PublicValues
	e.Record.PublicValues.StartPC = state.PC
	return e
}

// WithInput appends buffers to the guest's input stream.
func (e *Executor) WithInput(bufs ...[]byte) *Executor {
	e.State.InputStream = append(e.State.InputStream, bufs...)
	return e
}

// WithProofs appends serialized proofs consumed by proof verification.
func (e *Executor) WithProofs(proofs ...[]byte) *Executor {
	e.State.ProofStream = append(e.State.ProofStream, proofs...)
	return e
}

func (e *Executor) WithSubproofVerifier(v SubproofVerifier) *Executor {
	e.subproofVerifier = v
	return e
}

func (e *Executor) WithShapeChecker(s ShapeChecker) *Executor {
	e.shape = s
	return e
}

// RegisterSyscall installs or replaces a handler and refreshes the
// shard-boundary safety margin.
func (e *Executor) RegisterSyscall(id uint32, s Syscall) {
	e.syscalls[id] = s
	e.maxSyscallCycles = maxExtraCycles(e.syscalls) + clkIncrement
}

// RegisterHook installs a hook on a virtual file descriptor.
func (e *Executor) RegisterHook(fd uint32, hook HookFn) error {
	return e.hooks.Register(fd, hook)
}

// RunVeryFast executes to completion without collecting events or counts.
func (e *Executor) RunVeryFast() error {
	e.Mode = ModeSimple
	e.report = nil
	return e.runToCompletion()
}

// RunFast executes to completion in Simple mode while tallying an execution
// report of opcode and syscall frequencies.
func (e *Executor) RunFast() (*ExecutionReport, error) {
	e.Mode = ModeSimple
	e.report = NewExecutionReport()
	if err := e.runToCompletion(); err != nil {
		return nil, err
	}
	e.report.TotalCycles = e.State.GlobalClk
	e.report.TotalShards = e.State.CurrentShard
	e.report.TouchedMemoryAddresses = uint64(e.State.Memory.Len())
	return e.report, nil
}

// Run executes to completion in Trace mode and returns every shard record.
func (e *Executor) Run() ([]*ExecutionRecord, error) {
	var all []*ExecutionRecord
	for {
		records, done, err := e.ExecuteRecords(true)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if done {
			return all, nil
		}
	}
}

func (e *Executor) runToCompletion() error {
	for {
		done, err := e.executeBatch()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// ExecuteRecords runs up to ShardBatchSize shards in Trace mode and yields
// their records. done reports program termination; the final yielded record
// carries the global memory events when emitGlobals is set.
func (e *Executor) ExecuteRecords(emitGlobals bool) ([]*ExecutionRecord, bool, error) {
	e.Mode = ModeTrace
	e.emitGlobals = emitGlobals
	done, err := e.executeBatch()
	if err != nil {
		return nil, false, err
	}
	records := e.Records
	e.Records = nil
	return records, done, nil
}

// ExecuteState runs up to ShardBatchSize shards in Checkpoint mode and returns
// a state snapshot from which this batch can be re-executed. The snapshot's
// memory holds only the cells the batch touched, as they were at batch start.
func (e *Executor) ExecuteState(emitGlobals bool) (*ExecutionState, bool, error) {
	e.Mode = ModeCheckpoint
	e.emitGlobals = emitGlobals
	e.memoryCheckpoint = make(map[uint32]*MemoryRecord)
	e.uninitializedMemoryCheckpoint = make(map[uint32]uint32)

	head := *e.State
	head.PublicValues = e.Record.PublicValues
	head.InputStream = append([][]byte(nil), e.State.InputStream...)
	head.ProofStream = append([][]byte(nil), e.State.ProofStream...)
	head.SyscallCounts = make(map[uint32]uint64, len(e.State.SyscallCounts))
	for k, v := range e.State.SyscallCounts {
		head.SyscallCounts[k] = v
	}

	done, err := e.executeBatch()
	if err != nil {
		return nil, false, err
	}

	mem := NewPagedMemory()
	for addr, rec := range e.memoryCheckpoint {
		if rec != nil {
			mem.Insert(addr, *rec)
		}
	}
	head.Memory = mem
	head.UninitializedMemory = e.uninitializedMemoryCheckpoint
	e.memoryCheckpoint = nil
	e.uninitializedMemoryCheckpoint = nil
	return &head, done, nil
}

// executeBatch runs cycles until the program terminates or, when batching,
// until ShardBatchSize shard boundaries have passed since the call began.
func (e *Executor) executeBatch() (bool, error) {
	if e.terminated() {
		e.finalize()
		return true, nil
	}
	startShard := e.State.CurrentShard
	for {
		if err := e.executeCycle(); err != nil {
			return false, err
		}
		if e.terminated() {
			if e.unconstrained {
				return false, ErrEndInUnconstrained
			}
			e.finalize()
			return true, nil
		}
		if e.Opts.MaxCycles > 0 && e.State.GlobalClk >= e.Opts.MaxCycles {
			return false, cycleLimitErr(e.Opts.MaxCycles)
		}
		if e.Opts.ShardBatchSize > 0 && e.State.CurrentShard-startShard >= e.Opts.ShardBatchSize {
			return false, nil
		}
	}
}

func (e *Executor) terminated() bool {
	return e.State.Exited || e.State.PC == 0 || !e.Program.Contains(e.State.PC)
}

// shardCheck decides whether the next cycle must start a new shard. A branch
// or jump and its delay slot always land in the same shard, and an
// unconstrained region never splits: its clock rolls back on exit, so a
// boundary inside it would leak the fork into the records.
func (e *Executor) shardCheck() {
	if e.unconstrained || e.State.NextIsDelaySlot {
		return
	}
	split := e.State.Clk+e.maxSyscallCycles >= e.Opts.ShardSize
	if !split && e.shape != nil && e.Opts.ShapeCheckFrequency > 0 &&
		e.State.GlobalClk%e.Opts.ShapeCheckFrequency == 0 {
		if !e.shape.FitsShape(&e.localCounts) {
			split = true
		} else if e.Opts.LDESizeCheck && e.shape.EstimateLDESize(&e.localCounts) > e.Opts.LDESizeThreshold {
			split = true
		}
	}
	if split {
		e.State.CurrentShard++
		e.State.Clk = 0
		e.bumpRecord()
	}
}

// bumpRecord closes the shard under construction: the shard-local first/last
// access map drains into the outgoing record, which moves onto Records, and a
// fresh record inheriting the public values takes its place.
func (e *Executor) bumpRecord() {
	if e.Mode == ModeTrace {
		e.Record.CpuLocalMemoryAccess = drainLocal(e.localMemoryAccess)

		pv := e.Record.PublicValues
		pv.NextPC = e.State.PC
		pv.ExitCode = e.State.ExitCode
		e.Record.PublicValues = pv

		e.Records = append(e.Records, e.Record)
		e.Record = NewExecutionRecord(e.Program, e.State.CurrentShard)
		e.Record.PublicValues = pv
		e.Record.PublicValues.StartPC = e.State.PC
	}
	e.localMemoryAccess = make(map[uint32]*MemoryLocalEvent)
	e.localCounts = LocalCounts{}
}

// finalize closes the last shard and flushes the buffered output channels.
// Safe to call more than once; later calls find nothing to drain.
func (e *Executor) finalize() {
	if e.Mode == ModeTrace && e.emitGlobals && !e.globalsEmitted {
		e.emitGlobalMemoryEvents()
		e.globalsEmitted = true
	}
	if e.Mode == ModeTrace && (e.Record.EventCount() > 0 || len(e.Record.CpuEvents) > 0 ||
		len(e.Record.GlobalMemoryInitializeEvents) > 0) {
		e.bumpRecord()
	}
	e.postprocess()
}

// emitGlobalMemoryEvents records, for every touched address, its value before
// execution and its final record. Address 0 is always emitted first.
func (e *Executor) emitGlobalMemoryEvents() {
	addrs := e.State.Memory.Addrs()
	if _, ok := e.State.Memory.Get(0); !ok {
		addrs = append([]uint32{0}, addrs...)
	}
	for _, addr := range addrs {
		initValue := e.State.UninitializedMemory[addr]
		e.Record.GlobalMemoryInitializeEvents = append(e.Record.GlobalMemoryInitializeEvents,
			MemoryInitializeFinalizeEvent{Addr: addr, Value: initValue, Used: true})

		final := MemoryRecord{}
		if rec, ok := e.State.Memory.Get(addr); ok {
			final = *rec
		}
		e.Record.GlobalMemoryFinalizeEvents = append(e.Record.GlobalMemoryFinalizeEvents,
			MemoryInitializeFinalizeEvent{
				Addr:      addr,
				Value:     final.Value,
				Shard:     final.Shard,
				Timestamp: final.Timestamp,
				Used:      true,
			})
	}
}

// postprocess flushes stdout/stderr and the trace file. It runs only on clean
// exit paths; a failed execution leaves the buffers unflushed.
func (e *Executor) postprocess() {
	if e.stdoutBuf.Len() > 0 && e.stdOut != nil {
		_, _ = e.stdOut.Write(e.stdoutBuf.Bytes())
	}
	e.stdoutBuf.Reset()
	if e.stderrBuf.Len() > 0 && e.stdErr != nil {
		_, _ = e.stdErr.Write(e.stderrBuf.Bytes())
	}
	e.stderrBuf.Reset()
	if e.traceBuf != nil {
		if err := e.traceBuf.Flush(); err != nil {
			e.log.Warn("trace file flush failed", "err", err)
		}
		_ = e.traceFile.Close()
		e.traceBuf = nil
		e.traceFile = nil
	}
	e.log.Debug("execution finished",
		"cycles", e.State.GlobalClk,
		"shards", e.State.CurrentShard,
		"exitCode", e.State.ExitCode)
}

func (e *Executor) writeTracePC(pc uint32) {
	if e.traceBuf == nil {
		return
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], pc)
	_, _ = e.traceBuf.Write(buf[:])
}

func sortLocalEvents(events []MemoryLocalEvent) {
	sort.Slice(events, func(i, j int) bool { return events[i].Addr < events[j].Addr })
}

func maxExtraCycles(syscalls map[uint32]Syscall) uint32 {
	var max uint32
	for _, s := range syscalls {
		if n := s.NumExtraCycles(); n > max {
			max = n
		}
	}
	return max
}
