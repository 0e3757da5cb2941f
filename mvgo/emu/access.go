package emu

import (
	"fmt"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

// touch returns the live record for addr, seeding it from the
// uninitialized-memory overlay (or zero) at first touch. Checkpoint and
// unconstrained captures happen here, before any mutation, so they observe
// the pre-access state exactly once per address per batch.
func (e *Executor) touch(addr uint32) *MemoryRecord {
	if e.Mode == ModeCheckpoint || e.unconstrained {
		prev, existed := e.State.Memory.Get(addr)
		if e.Mode == ModeCheckpoint {
			if _, seen := e.memoryCheckpoint[addr]; !seen {
				e.memoryCheckpoint[addr] = copyRecord(prev, existed)
			}
		}
		if e.unconstrained {
			if _, seen := e.unconstrainedState.MemoryDiff[addr]; !seen {
				e.unconstrainedState.MemoryDiff[addr] = copyRecord(prev, existed)
			}
		}
	}

	rec, existed := e.State.Memory.GetOrInsert(addr, func() MemoryRecord {
		return MemoryRecord{Value: e.State.UninitializedMemory[addr]}
	})
	if !existed && e.Mode == ModeCheckpoint {
		if _, seen := e.uninitializedMemoryCheckpoint[addr]; !seen {
			e.uninitializedMemoryCheckpoint[addr] = e.State.UninitializedMemory[addr]
		}
	}
	return rec
}

func copyRecord(rec *MemoryRecord, existed bool) *MemoryRecord {
	if !existed {
		return nil
	}
	cp := *rec
	return &cp
}

// mr performs a traced read of addr at the given timestamp, updating the
// cell's shard/timestamp metadata and the shard-local first/last access map.
func (e *Executor) mr(addr, shard, timestamp uint32, local map[uint32]*MemoryLocalEvent) MemoryReadRecord {
	rec := e.touch(addr)
	prev := *rec
	rec.Shard = shard
	rec.Timestamp = timestamp
	e.trackLocal(addr, prev, *rec, local)
	return MemoryReadRecord{
		Value:         rec.Value,
		Shard:         shard,
		Timestamp:     timestamp,
		PrevShard:     prev.Shard,
		PrevTimestamp: prev.Timestamp,
	}
}

// mw performs a traced write. Values written to register zero are forced to 0
// by the register-position callers, not here; address 0 is a valid cell.
func (e *Executor) mw(addr, value, shard, timestamp uint32, local map[uint32]*MemoryLocalEvent) MemoryWriteRecord {
	rec := e.touch(addr)
	prev := *rec
	rec.Value = value
	rec.Shard = shard
	rec.Timestamp = timestamp
	e.trackLocal(addr, prev, *rec, local)
	return MemoryWriteRecord{
		Value:         value,
		Shard:         shard,
		Timestamp:     timestamp,
		PrevValue:     prev.Value,
		PrevShard:     prev.Shard,
		PrevTimestamp: prev.Timestamp,
	}
}

func (e *Executor) trackLocal(addr uint32, prev, cur MemoryRecord, local map[uint32]*MemoryLocalEvent) {
	if local == nil {
		return
	}
	if ev, ok := local[addr]; ok {
		ev.Final = cur
		return
	}
	local[addr] = &MemoryLocalEvent{Addr: addr, Initial: prev, Final: cur}
	e.localCounts.LocalMem++
}

func (e *Executor) timestamp(pos MemoryAccessPosition) uint32 {
	return e.State.Clk + uint32(pos)
}

// mrCPU reads for one of the per-cycle operand positions and records the
// access in the cycle's op record.
func (e *Executor) mrCPU(addr uint32, pos MemoryAccessPosition) uint32 {
	record := e.mr(addr, e.State.CurrentShard, e.timestamp(pos), e.cpuLocal())
	if e.traceCycle {
		e.setOpRecord(pos, readEnum(record))
	}
	return record.Value
}

// mwCPU writes for one of the per-cycle positions. Writes targeting register
// zero are forced to hold 0.
func (e *Executor) mwCPU(addr, value uint32, pos MemoryAccessPosition) {
	if addr == mips.RegZero && pos != PositionMemory {
		value = 0
	}
	record := e.mw(addr, value, e.State.CurrentShard, e.timestamp(pos), e.cpuLocal())
	if e.traceCycle {
		e.setOpRecord(pos, writeEnum(record))
	}
}

func (e *Executor) cpuLocal() map[uint32]*MemoryLocalEvent {
	if !e.traceCycle {
		return nil
	}
	return e.localMemoryAccess
}

func (e *Executor) setOpRecord(pos MemoryAccessPosition, rec *MemoryRecordEnum) {
	slot := e.opRecord.slot(pos)
	if *slot != nil {
		panic(fmt.Sprintf("memory access position %d written twice in one cycle", pos))
	}
	*slot = rec
}

// Register peeks a register without producing an access record.
func (e *Executor) Register(reg uint32) uint32 {
	return e.peek(reg)
}

func (e *Executor) peek(addr uint32) uint32 {
	if rec, ok := e.State.Memory.Get(addr); ok {
		return rec.Value
	}
	return e.State.UninitializedMemory[addr]
}
