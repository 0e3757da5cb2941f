package emu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zkmips/mipsgo/mvgo/mips"
)

// ExecutionReport summarizes a fast run: how often each opcode and syscall
// fired, how long the run was and how much memory it touched.
type ExecutionReport struct {
	TotalCycles            uint64
	TotalShards            uint32
	OpcodeCounts           [mips.NumOpcodes]uint64
	SyscallCounts          map[uint32]uint64
	TouchedMemoryAddresses uint64
}

func NewExecutionReport() *ExecutionReport {
	return &ExecutionReport{SyscallCounts: make(map[uint32]uint64)}
}

func (r *ExecutionReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cycles: %d\n", r.TotalCycles)
	fmt.Fprintf(&sb, "shards: %d\n", r.TotalShards)
	fmt.Fprintf(&sb, "touched memory addresses: %d\n", r.TouchedMemoryAddresses)

	type entry struct {
		name  string
		count uint64
	}
	ops := make([]entry, 0, len(r.OpcodeCounts))
	for op, n := range r.OpcodeCounts {
		if n > 0 {
			ops = append(ops, entry{mips.Opcode(op).String(), n})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].count != ops[j].count {
			return ops[i].count > ops[j].count
		}
		return ops[i].name < ops[j].name
	})
	sb.WriteString("opcode counts:\n")
	for _, e := range ops {
		fmt.Fprintf(&sb, "  %8d %s\n", e.count, e.name)
	}

	if len(r.SyscallCounts) > 0 {
		ids := make([]uint32, 0, len(r.SyscallCounts))
		for id := range r.SyscallCounts {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		sb.WriteString("syscall counts:\n")
		for _, id := range ids {
			fmt.Fprintf(&sb, "  %8d %#08x\n", r.SyscallCounts[id], id)
		}
	}
	return sb.String()
}
