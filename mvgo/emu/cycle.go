package emu

import (
	"fmt"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

// executeCycle runs a single instruction: fetch, operand reads, the opcode's
// semantics, result writes, event emission, pc chain update, clock advance and
// the shard boundary check. Termination is the caller's concern.
func (e *Executor) executeCycle() error {
	ins, ok := e.Program.Fetch(e.State.PC)
	if !ok {
		return unsupportedInstructionErr(0, e.State.PC)
	}
	op := ins.Opcode

	e.opRecord = MemoryAccessRecord{}
	e.traceCycle = e.Mode == ModeTrace && !e.unconstrained

	clk := e.State.Clk
	shard := e.State.CurrentShard
	pc := e.State.PC
	nextPC := e.State.NextPC
	nextNextPC := nextPC + 4
	e.State.NextIsDelaySlot = false

	if !e.unconstrained {
		e.localCounts.Event[op]++
		e.countDependencies(&e.localCounts, op)
		if e.report != nil {
			e.report.OpcodeCounts[op]++
		}
	}

	var a, b, c, hi uint32

	switch {
	case op == mips.SYSCALL:
		var err error
		a, b, c, err = e.executeSyscallInstr(ins, pc, clk, shard, &nextPC, &nextNextPC)
		if err != nil {
			return err
		}

	case op.IsALU():
		c = e.operandC(ins)
		b = e.operandB(ins)
		a = e.writeA(ins, executeALU(op, b, c))
		if e.traceCycle {
			e.Record.AluEvents = append(e.Record.AluEvents,
				AluEvent{PC: pc, NextPC: nextPC, Opcode: op, A: a, B: b, C: c})
			switch op {
			case mips.CLZ, mips.CLO:
				e.emitCountDependencies(op, a, b)
			case mips.MOD:
				q, _ := divide(b, c)
				e.emitDivRemDependencies(op, b, c, q, a)
			case mips.MODU:
				q, _ := divideU(b, c)
				e.emitDivRemDependencies(op, b, c, q, a)
			}
		}

	case op.IsMulDiv():
		c = e.operandC(ins)
		b = e.operandB(ins)
		prevLo := e.peek(mips.RegLO)
		prevHi := e.peek(mips.RegHI)
		var lo uint32
		lo, hi = executeMulDiv(op, b, c, prevLo, prevHi)
		a = e.writeA(ins, lo)
		e.mwCPU(mips.RegHI, hi, PositionHI)
		if e.traceCycle {
			ev := CompAluEvent{
				AluEvent: AluEvent{PC: pc, NextPC: nextPC, Opcode: op, A: a, HI: hi, B: b, C: c},
				Clk:      clk,
				Shard:    shard,
			}
			if e.opRecord.HI != nil {
				w := e.opRecord.HI.Write
				ev.HIRecord = &w
			}
			e.Record.CompAluEvents = append(e.Record.CompAluEvents, ev)
			switch op {
			case mips.DIV, mips.DIVU:
				e.emitDivRemDependencies(op, b, c, a, hi)
			case mips.MADD, mips.MADDU, mips.MSUB, mips.MSUBU:
				e.emitMulAccDependencies(op, b, c)
			}
		}

	case op.IsLoad():
		c = e.operandC(ins)
		b = e.operandB(ins)
		addr := b + c
		aligned := addr &^ 3
		if err := e.checkMemoryAccess(op, aligned); err != nil {
			return err
		}
		memWord := e.mrCPU(aligned, PositionMemory)
		prevA := e.peek(ins.OpA)
		a = e.writeA(ins, executeLoad(op, addr, memWord, prevA))
		if e.traceCycle {
			e.Record.MemInstrEvents = append(e.Record.MemInstrEvents, MemInstrEvent{
				Shard: shard, Clk: clk, PC: pc, NextPC: nextPC,
				Opcode: op, A: a, B: b, C: c, Addr: addr, Mem: *e.opRecord.Memory,
			})
			e.emitLoadDependencies(op, a, b, c, addr, memWord)
		}

	case op.IsStore():
		c = e.operandC(ins)
		b = e.operandB(ins)
		addr := b + c
		aligned := addr &^ 3
		if err := e.checkMemoryAccess(op, aligned); err != nil {
			return err
		}
		prevWord := e.peek(aligned)
		if op == mips.SC {
			regVal := e.peek(ins.OpA)
			e.mwCPU(aligned, executeStore(op, addr, regVal, prevWord), PositionMemory)
			a = e.writeA(ins, 1)
		} else {
			a = e.mrCPU(ins.OpA, PositionA)
			e.mwCPU(aligned, executeStore(op, addr, a, prevWord), PositionMemory)
		}
		if e.traceCycle {
			e.Record.MemInstrEvents = append(e.Record.MemInstrEvents, MemInstrEvent{
				Shard: shard, Clk: clk, PC: pc, NextPC: nextPC,
				Opcode: op, A: a, B: b, C: c, Addr: addr, Mem: *e.opRecord.Memory,
			})
			e.emitStoreDependencies(b, c, addr)
		}

	case op.IsBranch():
		c = e.operandC(ins)
		b = e.operandB(ins)
		a = e.mrCPU(ins.OpA, PositionA)
		taken := branchTaken(op, a, b)
		if taken {
			nextNextPC = nextPC + c
		}
		e.State.NextIsDelaySlot = true
		if e.traceCycle {
			e.Record.BranchEvents = append(e.Record.BranchEvents, BranchEvent{
				PC: pc, NextPC: nextPC, NextNextPC: nextNextPC,
				Opcode: op, A: a, B: b, C: c, Taken: taken,
			})
			e.emitBranchDependencies(a, b, c, nextPC, nextNextPC, taken)
		}

	case op.IsJump():
		var target uint32
		switch op {
		case mips.Jump:
			target = e.operandB(ins)
			b = target
		case mips.Jumpi:
			target = ins.OpB
			b = target
		case mips.JumpDirect:
			target = nextPC + ins.OpB
			b = ins.OpB
		}
		if ins.OpA != mips.RegZero {
			// link register receives the address after the delay slot
			a = e.writeA(ins, nextNextPC)
		}
		nextNextPC = target
		e.State.NextIsDelaySlot = true
		if e.traceCycle {
			e.Record.JumpEvents = append(e.Record.JumpEvents, JumpEvent{
				PC: pc, NextPC: nextPC, NextNextPC: nextNextPC,
				Opcode: op, A: a, B: b, C: c,
			})
			if op == mips.JumpDirect {
				e.emitJumpDirectDependencies(target, nextPC, ins.OpB)
			}
		}

	case op == mips.TEQ:
		c = e.operandC(ins)
		b = e.operandB(ins)
		a = e.mrCPU(ins.OpA, PositionA)
		if a == b {
			return fmt.Errorf("%w: teq trap at pc %#x", ErrBreakpoint, pc)
		}
		if e.traceCycle {
			e.Record.MiscEvents = append(e.Record.MiscEvents, MiscEvent{
				PC: pc, NextPC: nextPC, Opcode: op, A: a, B: b, C: c, PrevA: a,
			})
		}

	case op.IsMisc():
		c = e.operandC(ins)
		b = e.operandB(ins)
		prevA := e.peek(ins.OpA)
		a = e.writeA(ins, executeMisc(op, prevA, b, c))
		if e.traceCycle {
			e.Record.MiscEvents = append(e.Record.MiscEvents, MiscEvent{
				PC: pc, NextPC: nextPC, Opcode: op, A: a, B: b, C: c, PrevA: prevA,
			})
			switch op {
			case mips.EXT:
				e.emitExtDependencies(a, b, c)
			case mips.INS:
				e.emitInsDependencies(a, prevA, b, c)
			}
		}

	case op == mips.BREAK:
		return fmt.Errorf("%w: at pc %#x", ErrBreakpoint, pc)

	default:
		return unsupportedInstructionErr(ins.Raw, pc)
	}

	if e.traceCycle {
		e.Record.CpuEvents = append(e.Record.CpuEvents, CpuEvent{
			Clk: clk, PC: pc, NextPC: nextPC, NextNextPC: nextNextPC,
			A: a, B: b, C: c, HI: hi,
			Access:   e.opRecord,
			ExitCode: e.State.ExitCode,
		})
	}

	e.writeTracePC(pc)

	e.State.PC = nextPC
	e.State.NextPC = nextNextPC
	e.State.Clk += clkIncrement
	e.State.GlobalClk++

	e.shardCheck()
	return nil
}

// operandB resolves the second operand: an immediate or a traced register read.
func (e *Executor) operandB(ins mips.Instruction) uint32 {
	if ins.ImmB {
		return ins.OpB
	}
	return e.mrCPU(ins.OpB, PositionB)
}

func (e *Executor) operandC(ins mips.Instruction) uint32 {
	if ins.ImmC {
		return ins.OpC
	}
	return e.mrCPU(ins.OpC, PositionC)
}

// writeA writes the instruction's result register and returns the value that
// actually landed, which is 0 for writes targeting register zero.
func (e *Executor) writeA(ins mips.Instruction, value uint32) uint32 {
	if ins.OpA == mips.RegZero {
		value = 0
	}
	e.mwCPU(ins.OpA, value, PositionA)
	return value
}

// checkMemoryAccess is the debug-only guard against data accesses landing in
// the register file's address range.
func (e *Executor) checkMemoryAccess(op mips.Opcode, addr uint32) error {
	if !e.Opts.DebugMemoryAccess {
		return nil
	}
	if addr < uint32(mips.NumRegisters) {
		return fmt.Errorf("%w: %s at %#x", ErrInvalidMemoryAccess, op, addr)
	}
	return nil
}
